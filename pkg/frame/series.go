// Package frame implements the columnar in-memory tables the engine runs
// generated code against. It is the only surface exposed inside the sandbox:
// candidates receive an Env, read Frames from it, and return a Result.
package frame

import (
	"fmt"
	"time"
)

// Kind identifies the semantic type of a column.
type Kind int

const (
	Int Kind = iota
	Float
	String
	Datetime
	Bool
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "integer"
	case Float:
		return "float"
	case String:
		return "string"
	case Datetime:
		return "datetime"
	case Bool:
		return "boolean"
	case Categorical:
		return "categorical"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// KindFromString parses a semantic type name as used in schema files.
func KindFromString(s string) (Kind, error) {
	switch s {
	case "integer", "int":
		return Int, nil
	case "float", "double", "number":
		return Float, nil
	case "string", "text":
		return String, nil
	case "datetime", "timestamp", "date":
		return Datetime, nil
	case "boolean", "bool":
		return Bool, nil
	case "categorical", "category":
		return Categorical, nil
	default:
		return Int, fmt.Errorf("unknown semantic type %q", s)
	}
}

// Series is one named, typed column. Categorical columns share the string
// storage; the distinction only matters to the semantic layer and to
// aggregation defaults.
type Series struct {
	name  string
	kind  Kind
	ints  []int64
	flts  []float64
	strs  []string
	times []time.Time
	bools []bool
	valid []bool // nil means every row is non-null
}

// Ints builds an integer series.
func Ints(name string, vals ...int64) *Series {
	return &Series{name: name, kind: Int, ints: vals}
}

// Floats builds a float series.
func Floats(name string, vals ...float64) *Series {
	return &Series{name: name, kind: Float, flts: vals}
}

// Strings builds a string series.
func Strings(name string, vals ...string) *Series {
	return &Series{name: name, kind: String, strs: vals}
}

// Categories builds a categorical series backed by string storage.
func Categories(name string, vals ...string) *Series {
	return &Series{name: name, kind: Categorical, strs: vals}
}

// Times builds a datetime series.
func Times(name string, vals ...time.Time) *Series {
	return &Series{name: name, kind: Datetime, times: vals}
}

// Bools builds a boolean series.
func Bools(name string, vals ...bool) *Series {
	return &Series{name: name, kind: Bool, bools: vals}
}

// WithNulls attaches a validity mask. len(valid) must equal Len().
func (s *Series) WithNulls(valid []bool) *Series {
	s.valid = valid
	return s
}

// Name returns the column name.
func (s *Series) Name() string { return s.name }

// Kind returns the column's semantic type.
func (s *Series) Kind() Kind { return s.kind }

// Len returns the number of rows.
func (s *Series) Len() int {
	switch s.kind {
	case Int:
		return len(s.ints)
	case Float:
		return len(s.flts)
	case String, Categorical:
		return len(s.strs)
	case Datetime:
		return len(s.times)
	case Bool:
		return len(s.bools)
	}
	return 0
}

// IsNull reports whether row i is null.
func (s *Series) IsNull(i int) bool {
	return s.valid != nil && !s.valid[i]
}

// Value returns the value at row i boxed as interface{}, or nil for nulls.
func (s *Series) Value(i int) interface{} {
	if s.IsNull(i) {
		return nil
	}
	switch s.kind {
	case Int:
		return s.ints[i]
	case Float:
		return s.flts[i]
	case String, Categorical:
		return s.strs[i]
	case Datetime:
		return s.times[i]
	case Bool:
		return s.bools[i]
	}
	return nil
}

// Int returns the int64 at row i. Zero value for nulls or non-integer series.
func (s *Series) Int(i int) int64 {
	if s.kind != Int || s.IsNull(i) {
		return 0
	}
	return s.ints[i]
}

// Float returns the float64 at row i, widening integers. Zero for nulls.
func (s *Series) Float(i int) float64 {
	if s.IsNull(i) {
		return 0
	}
	switch s.kind {
	case Float:
		return s.flts[i]
	case Int:
		return float64(s.ints[i])
	}
	return 0
}

// Str returns the string at row i. Empty for nulls or non-string series.
func (s *Series) Str(i int) string {
	if (s.kind != String && s.kind != Categorical) || s.IsNull(i) {
		return ""
	}
	return s.strs[i]
}

// Time returns the timestamp at row i.
func (s *Series) Time(i int) time.Time {
	if s.kind != Datetime || s.IsNull(i) {
		return time.Time{}
	}
	return s.times[i]
}

// Bool returns the bool at row i.
func (s *Series) Bool(i int) bool {
	if s.kind != Bool || s.IsNull(i) {
		return false
	}
	return s.bools[i]
}

// take builds a new series from the given row indices.
func (s *Series) take(idx []int) *Series {
	out := &Series{name: s.name, kind: s.kind}
	if s.valid != nil {
		out.valid = make([]bool, len(idx))
		for j, i := range idx {
			out.valid[j] = s.valid[i]
		}
	}
	switch s.kind {
	case Int:
		out.ints = make([]int64, len(idx))
		for j, i := range idx {
			out.ints[j] = s.ints[i]
		}
	case Float:
		out.flts = make([]float64, len(idx))
		for j, i := range idx {
			out.flts[j] = s.flts[i]
		}
	case String, Categorical:
		out.strs = make([]string, len(idx))
		for j, i := range idx {
			out.strs[j] = s.strs[i]
		}
	case Datetime:
		out.times = make([]time.Time, len(idx))
		for j, i := range idx {
			out.times[j] = s.times[i]
		}
	case Bool:
		out.bools = make([]bool, len(idx))
		for j, i := range idx {
			out.bools[j] = s.bools[i]
		}
	}
	return out
}

// appendValue grows the series by one boxed value. Used by the joiners and
// the CSV loader; not exposed to sandboxed code.
func (s *Series) appendValue(v interface{}) {
	if v == nil {
		if s.valid == nil {
			s.valid = make([]bool, s.Len())
			for i := range s.valid {
				s.valid[i] = true
			}
		}
		s.valid = append(s.valid, false)
		switch s.kind {
		case Int:
			s.ints = append(s.ints, 0)
		case Float:
			s.flts = append(s.flts, 0)
		case String, Categorical:
			s.strs = append(s.strs, "")
		case Datetime:
			s.times = append(s.times, time.Time{})
		case Bool:
			s.bools = append(s.bools, false)
		}
		return
	}
	if s.valid != nil {
		s.valid = append(s.valid, true)
	}
	switch s.kind {
	case Int:
		s.ints = append(s.ints, v.(int64))
	case Float:
		switch n := v.(type) {
		case float64:
			s.flts = append(s.flts, n)
		case int64:
			s.flts = append(s.flts, float64(n))
		}
	case String, Categorical:
		s.strs = append(s.strs, v.(string))
	case Datetime:
		s.times = append(s.times, v.(time.Time))
	case Bool:
		s.bools = append(s.bools, v.(bool))
	}
}

// emptyLike returns a zero-row series with the same name and kind.
func (s *Series) emptyLike() *Series {
	return &Series{name: s.name, kind: s.kind}
}
