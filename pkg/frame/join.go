package frame

import (
	"fmt"
)

// JoinKind selects the join behavior.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

// Join joins f with right on leftKey == rightKey. Right-side columns that
// collide with a left-side name are suffixed "_right". Left rows without a
// match are dropped for InnerJoin and null-padded for LeftJoin.
func (f *Frame) Join(right *Frame, leftKey, rightKey string, kind JoinKind) (*Frame, error) {
	lc, err := f.Column(leftKey)
	if err != nil {
		return nil, err
	}
	rc, err := right.Column(rightKey)
	if err != nil {
		return nil, err
	}
	if !kindsJoinable(lc.kind, rc.kind) {
		return nil, fmt.Errorf("frame: join keys %q (%s) and %q (%s) are not type-compatible",
			leftKey, lc.kind, rightKey, rc.kind)
	}

	// Hash the right side by key.
	index := make(map[interface{}][]int, right.NumRows())
	for i := 0; i < right.NumRows(); i++ {
		if rc.IsNull(i) {
			continue
		}
		k := joinKeyValue(rc, i)
		index[k] = append(index[k], i)
	}

	out := make([]*Series, 0, f.NumCols()+right.NumCols())
	for _, c := range f.cols {
		out = append(out, c.emptyLike())
	}
	rightStart := len(out)
	for _, c := range right.cols {
		name := c.name
		if f.HasColumn(name) {
			name = name + "_right"
		}
		e := c.emptyLike()
		e.name = name
		out = append(out, e)
	}

	emit := func(li int, ri int) {
		for ci, c := range f.cols {
			out[ci].appendValue(c.Value(li))
		}
		for ci, c := range right.cols {
			if ri < 0 {
				out[rightStart+ci].appendValue(nil)
			} else {
				out[rightStart+ci].appendValue(c.Value(ri))
			}
		}
	}

	for i := 0; i < f.NumRows(); i++ {
		if lc.IsNull(i) {
			if kind == LeftJoin {
				emit(i, -1)
			}
			continue
		}
		matches := index[joinKeyValue(lc, i)]
		if len(matches) == 0 {
			if kind == LeftJoin {
				emit(i, -1)
			}
			continue
		}
		for _, ri := range matches {
			emit(i, ri)
		}
	}
	return f.derive(out...)
}

// kindsJoinable reports whether two column kinds may be compared as join
// keys. Int/float are mutually joinable; string and categorical likewise.
func kindsJoinable(a, b Kind) bool {
	norm := func(k Kind) Kind {
		switch k {
		case Categorical:
			return String
		case Float:
			return Int
		default:
			return k
		}
	}
	return norm(a) == norm(b)
}

// joinKeyValue normalizes a key cell so int/float and string/categorical
// columns hash identically.
func joinKeyValue(c *Series, i int) interface{} {
	switch c.kind {
	case Int, Float:
		return c.Float(i)
	case String, Categorical:
		return c.strs[i]
	default:
		return c.Value(i)
	}
}
