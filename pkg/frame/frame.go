package frame

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrBudgetExceeded is returned when an operation would allocate more cells
// than the sandbox allows. Deliberately a sentinel so the executor can
// classify it as a resource-limit failure rather than a plain runtime error.
var ErrBudgetExceeded = errors.New("frame: cell budget exceeded")

// Budget caps the total number of cells (rows x columns) operations may
// allocate. It is shared across all frames derived inside one execution, so
// a candidate cannot dodge the ceiling by chaining small steps.
type Budget struct {
	limit int64
	used  int64
}

// NewBudget creates a budget of n cells. n <= 0 means unlimited.
func NewBudget(n int64) *Budget {
	return &Budget{limit: n}
}

func (b *Budget) charge(cells int64) error {
	if b == nil || b.limit <= 0 {
		return nil
	}
	b.used += cells
	if b.used > b.limit {
		return ErrBudgetExceeded
	}
	return nil
}

// Frame is an immutable, ordered collection of equal-length Series.
// All transforming operations return a new Frame.
type Frame struct {
	cols   []*Series
	byName map[string]int
	budget *Budget
}

// New builds a frame from series. All series must have the same length and
// unique names.
func New(cols ...*Series) (*Frame, error) {
	f := &Frame{byName: make(map[string]int, len(cols))}
	n := -1
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("frame: nil series at position %d", i)
		}
		if _, dup := f.byName[c.name]; dup {
			return nil, fmt.Errorf("frame: duplicate column %q", c.name)
		}
		if n >= 0 && c.Len() != n {
			return nil, fmt.Errorf("frame: column %q has %d rows, want %d", c.name, c.Len(), n)
		}
		n = c.Len()
		f.byName[c.name] = i
		f.cols = append(f.cols, c)
	}
	return f, nil
}

// MustNew is New that panics. For tests and static fixtures.
func MustNew(cols ...*Series) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

// WithBudget returns a shallow copy of f whose derived frames charge against b.
func (f *Frame) WithBudget(b *Budget) *Frame {
	cp := *f
	cp.budget = b
	return &cp
}

// NumRows returns the row count.
func (f *Frame) NumRows() int {
	if len(f.cols) == 0 {
		return 0
	}
	return f.cols[0].Len()
}

// NumCols returns the column count.
func (f *Frame) NumCols() int { return len(f.cols) }

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.name
	}
	return names
}

// Column returns the named series or an error if absent.
func (f *Frame) Column(name string) (*Series, error) {
	i, ok := f.byName[name]
	if !ok {
		return nil, fmt.Errorf("frame: no column %q (have %s)", name, strings.Join(f.Columns(), ", "))
	}
	return f.cols[i], nil
}

// HasColumn reports whether the named column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.byName[name]
	return ok
}

// derive wraps New and propagates the budget.
func (f *Frame) derive(cols ...*Series) (*Frame, error) {
	out, err := New(cols...)
	if err != nil {
		return nil, err
	}
	out.budget = f.budget
	if len(cols) > 0 {
		if err := f.budget.charge(int64(out.NumRows()) * int64(out.NumCols())); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Select returns a frame containing only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([]*Series, 0, len(names))
	for _, n := range names {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return f.derive(cols...)
}

// Row is a cursor over one row, handed to Filter predicates.
type Row struct {
	f *Frame
	i int
}

// Index returns the row's position in the frame.
func (r Row) Index() int { return r.i }

// Float reads the named cell as float64 (integers widen).
func (r Row) Float(col string) float64 {
	c, err := r.f.Column(col)
	if err != nil {
		return 0
	}
	return c.Float(r.i)
}

// Int reads the named cell as int64.
func (r Row) Int(col string) int64 {
	c, err := r.f.Column(col)
	if err != nil {
		return 0
	}
	return c.Int(r.i)
}

// Str reads the named cell as string.
func (r Row) Str(col string) string {
	c, err := r.f.Column(col)
	if err != nil {
		return ""
	}
	return c.Str(r.i)
}

// Bool reads the named cell as bool.
func (r Row) Bool(col string) bool {
	c, err := r.f.Column(col)
	if err != nil {
		return false
	}
	return c.Bool(r.i)
}

// IsNull reports whether the named cell is null.
func (r Row) IsNull(col string) bool {
	c, err := r.f.Column(col)
	if err != nil {
		return true
	}
	return c.IsNull(r.i)
}

// Filter returns the rows for which keep returns true.
func (f *Frame) Filter(keep func(Row) bool) (*Frame, error) {
	var idx []int
	for i := 0; i < f.NumRows(); i++ {
		if keep(Row{f: f, i: i}) {
			idx = append(idx, i)
		}
	}
	return f.takeRows(idx)
}

// Head returns the first n rows (all rows when n exceeds the row count).
func (f *Frame) Head(n int) (*Frame, error) {
	if n > f.NumRows() {
		n = f.NumRows()
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return f.takeRows(idx)
}

// SortBy returns a copy sorted by the named column. Stable, so earlier sort
// passes survive as secondary order.
func (f *Frame) SortBy(col string, descending bool) (*Frame, error) {
	c, err := f.Column(col)
	if err != nil {
		return nil, err
	}
	idx := make([]int, f.NumRows())
	for i := range idx {
		idx[i] = i
	}
	less := func(a, b int) bool {
		// Nulls sort last regardless of direction.
		an, bn := c.IsNull(a), c.IsNull(b)
		if an || bn {
			return !an && bn
		}
		var r bool
		switch c.kind {
		case Int:
			r = c.ints[a] < c.ints[b]
		case Float:
			r = c.flts[a] < c.flts[b]
		case String, Categorical:
			r = c.strs[a] < c.strs[b]
		case Datetime:
			r = c.times[a].Before(c.times[b])
		case Bool:
			r = !c.bools[a] && c.bools[b]
		}
		if descending {
			return !r && !equalAt(c, a, b)
		}
		return r
	}
	sort.SliceStable(idx, func(x, y int) bool { return less(idx[x], idx[y]) })
	return f.takeRows(idx)
}

func equalAt(c *Series, a, b int) bool {
	switch c.kind {
	case Int:
		return c.ints[a] == c.ints[b]
	case Float:
		return c.flts[a] == c.flts[b]
	case String, Categorical:
		return c.strs[a] == c.strs[b]
	case Datetime:
		return c.times[a].Equal(c.times[b])
	case Bool:
		return c.bools[a] == c.bools[b]
	}
	return false
}

func (f *Frame) takeRows(idx []int) (*Frame, error) {
	cols := make([]*Series, len(f.cols))
	for i, c := range f.cols {
		cols[i] = c.take(idx)
	}
	return f.derive(cols...)
}

// String renders a compact textual preview, capped at 20 rows.
func (f *Frame) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(f.Columns(), "\t"))
	b.WriteByte('\n')
	limit := f.NumRows()
	if limit > 20 {
		limit = 20
	}
	for i := 0; i < limit; i++ {
		for j, c := range f.cols {
			if j > 0 {
				b.WriteByte('\t')
			}
			if c.IsNull(i) {
				b.WriteString("<null>")
			} else {
				fmt.Fprintf(&b, "%v", c.Value(i))
			}
		}
		b.WriteByte('\n')
	}
	if f.NumRows() > limit {
		fmt.Fprintf(&b, "... %d more rows\n", f.NumRows()-limit)
	}
	return b.String()
}
