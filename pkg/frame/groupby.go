package frame

import (
	"fmt"
	"math"
	"strings"
)

// Grouped is the intermediate result of GroupBy. Aggregations produce one
// output row per distinct key combination, in first-appearance order.
type Grouped struct {
	f      *Frame
	keys   []string
	order  []string // group keys in first-appearance order
	groups map[string][]int
	err    error
}

// GroupBy groups rows by the named key columns.
func (f *Frame) GroupBy(keys ...string) *Grouped {
	g := &Grouped{f: f, keys: keys, groups: make(map[string][]int)}
	cols := make([]*Series, len(keys))
	for i, k := range keys {
		c, err := f.Column(k)
		if err != nil {
			g.err = err
			return g
		}
		cols[i] = c
	}
	for i := 0; i < f.NumRows(); i++ {
		var kb strings.Builder
		for _, c := range cols {
			if c.IsNull(i) {
				kb.WriteString("\x00<null>")
			} else {
				fmt.Fprintf(&kb, "\x00%v", c.Value(i))
			}
		}
		k := kb.String()
		if _, seen := g.groups[k]; !seen {
			g.order = append(g.order, k)
		}
		g.groups[k] = append(g.groups[k], i)
	}
	return g
}

// AggKind selects the aggregation function.
type AggKind int

const (
	AggSum AggKind = iota
	AggMean
	AggMin
	AggMax
	AggCount
)

func (a AggKind) String() string {
	switch a {
	case AggSum:
		return "sum"
	case AggMean:
		return "mean"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggCount:
		return "count"
	}
	return "agg"
}

// Agg describes one aggregation: apply Fn to column Col, naming the output
// As (defaults to "<fn>_<col>").
type Agg struct {
	Col string
	Fn  AggKind
	As  string
}

// Sum is shorthand for Agg{Col: col, Fn: AggSum}.
func Sum(col string) Agg { return Agg{Col: col, Fn: AggSum} }

// Mean is shorthand for Agg{Col: col, Fn: AggMean}.
func Mean(col string) Agg { return Agg{Col: col, Fn: AggMean} }

// Min is shorthand for Agg{Col: col, Fn: AggMin}.
func Min(col string) Agg { return Agg{Col: col, Fn: AggMin} }

// Max is shorthand for Agg{Col: col, Fn: AggMax}.
func Max(col string) Agg { return Agg{Col: col, Fn: AggMax} }

// Count is shorthand for Agg{Col: col, Fn: AggCount}.
func Count(col string) Agg { return Agg{Col: col, Fn: AggCount} }

// Apply computes the aggregations and returns one row per group. Key columns
// come first, preserving their original kinds; aggregates are float columns
// except count, which is integer.
func (g *Grouped) Apply(aggs ...Agg) (*Frame, error) {
	if g.err != nil {
		return nil, g.err
	}
	if len(aggs) == 0 {
		return nil, fmt.Errorf("frame: GroupBy.Apply needs at least one aggregation")
	}

	// Key output columns: take the first row index of each group.
	firsts := make([]int, len(g.order))
	for gi, k := range g.order {
		firsts[gi] = g.groups[k][0]
	}
	out := make([]*Series, 0, len(g.keys)+len(aggs))
	for _, k := range g.keys {
		c, _ := g.f.Column(k)
		out = append(out, c.take(firsts))
	}

	for _, a := range aggs {
		c, err := g.f.Column(a.Col)
		if err != nil {
			return nil, err
		}
		name := a.As
		if name == "" {
			name = a.Fn.String() + "_" + a.Col
		}
		if a.Fn == AggCount {
			vals := make([]int64, len(g.order))
			for gi, k := range g.order {
				n := int64(0)
				for _, i := range g.groups[k] {
					if !c.IsNull(i) {
						n++
					}
				}
				vals[gi] = n
			}
			out = append(out, Ints(name, vals...))
			continue
		}
		if c.kind != Int && c.kind != Float {
			return nil, fmt.Errorf("frame: cannot %s non-numeric column %q (%s)", a.Fn, a.Col, c.kind)
		}
		vals := make([]float64, len(g.order))
		for gi, k := range g.order {
			vals[gi] = aggregate(c, g.groups[k], a.Fn)
		}
		out = append(out, Floats(name, vals...))
	}
	return g.f.derive(out...)
}

func aggregate(c *Series, idx []int, fn AggKind) float64 {
	sum, n := 0.0, 0
	mn, mx := math.Inf(1), math.Inf(-1)
	for _, i := range idx {
		if c.IsNull(i) {
			continue
		}
		v := c.Float(i)
		sum += v
		n++
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	switch fn {
	case AggSum:
		return sum
	case AggMean:
		if n == 0 {
			return math.NaN()
		}
		return sum / float64(n)
	case AggMin:
		if n == 0 {
			return math.NaN()
		}
		return mn
	case AggMax:
		if n == 0 {
			return math.NaN()
		}
		return mx
	}
	return math.NaN()
}
