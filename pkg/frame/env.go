package frame

import (
	"fmt"
	"sort"
)

// Env is the capability set handed to generated code. It exposes exactly the
// tables bound to the query, nothing else: no filesystem, no network, no way
// to reach tables outside the binding.
type Env struct {
	tables map[string]*Frame
	budget *Budget
}

// NewEnv binds the given tables under a shared cell budget.
func NewEnv(tables map[string]*Frame, budget *Budget) *Env {
	bound := make(map[string]*Frame, len(tables))
	for name, f := range tables {
		bound[name] = f.WithBudget(budget)
	}
	return &Env{tables: bound, budget: budget}
}

// Table returns the named bound table.
func (e *Env) Table(name string) (*Frame, error) {
	f, ok := e.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q is not bound to this query (bound: %v)", name, e.TableNames())
	}
	return f, nil
}

// TableNames lists the bound table names, sorted.
func (e *Env) TableNames() []string {
	names := make([]string, 0, len(e.tables))
	for n := range e.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResultKind tags the variant held by a Result.
type ResultKind int

const (
	TableResult ResultKind = iota
	ScalarResult
	ChartResult
	ErrorResult
)

func (k ResultKind) String() string {
	switch k {
	case TableResult:
		return "table"
	case ScalarResult:
		return "scalar"
	case ChartResult:
		return "chart"
	case ErrorResult:
		return "error"
	}
	return "unknown"
}

// ChartSpec describes a chart without rendering it: the presentation layer
// owns pixels, the engine owns which columns go on which axis.
type ChartSpec struct {
	Kind   string   `json:"kind"` // bar, line, scatter, pie
	Title  string   `json:"title,omitempty"`
	X      string   `json:"x"`
	Y      []string `json:"y"`
	Source *Frame   `json:"-"`
}

// Result is the tagged output of one executed candidate. Immutable once
// built; a new query produces a new Result.
type Result struct {
	Kind   ResultKind
	Table  *Frame
	Scalar interface{}
	Chart  *ChartSpec
	ErrMsg string

	// ArtifactID records which generated artifact produced this result.
	// Set by the executor, not by candidate code.
	ArtifactID string
}

// NewTableResult wraps a frame as a table result.
func NewTableResult(f *Frame) *Result {
	return &Result{Kind: TableResult, Table: f}
}

// NewScalarResult wraps a single value.
func NewScalarResult(v interface{}) *Result {
	return &Result{Kind: ScalarResult, Scalar: v}
}

// NewChartResult wraps a chart spec.
func NewChartResult(c *ChartSpec) *Result {
	return &Result{Kind: ChartResult, Chart: c}
}

// NewErrorResult records a candidate-reported failure as a result value.
func NewErrorResult(msg string) *Result {
	return &Result{Kind: ErrorResult, ErrMsg: msg}
}

func (r *Result) String() string {
	switch r.Kind {
	case TableResult:
		if r.Table == nil {
			return "table: <nil>"
		}
		return r.Table.String()
	case ScalarResult:
		return fmt.Sprintf("%v", r.Scalar)
	case ChartResult:
		if r.Chart == nil {
			return "chart: <nil>"
		}
		return fmt.Sprintf("chart(%s): x=%s y=%v", r.Chart.Kind, r.Chart.X, r.Chart.Y)
	case ErrorResult:
		return "error: " + r.ErrMsg
	}
	return "<invalid result>"
}
