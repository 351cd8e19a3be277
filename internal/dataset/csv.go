package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tabletalk/pkg/frame"
)

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// ReadCSV parses one CSV file into a frame. The first row is the header.
// Column types are inferred from the values: int, then float, then bool,
// then datetime, falling back to string. Empty cells are nulls.
func ReadCSV(path string) (*frame.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv file")
	}

	header := records[0]
	rows := records[1:]
	cols := make([]*frame.Series, len(header))
	for j, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("column %d has no name", j)
		}
		raw := make([]string, len(rows))
		for i, rec := range rows {
			raw[i] = rec[j]
		}
		cols[j] = inferColumn(name, raw)
	}
	return frame.New(cols...)
}

// inferColumn picks the narrowest type every non-empty value fits.
func inferColumn(name string, raw []string) *frame.Series {
	valid := make([]bool, len(raw))
	hasNull := false
	for i, v := range raw {
		valid[i] = strings.TrimSpace(v) != ""
		if !valid[i] {
			hasNull = true
		}
	}

	withNulls := func(s *frame.Series) *frame.Series {
		if hasNull {
			return s.WithNulls(valid)
		}
		return s
	}

	if vals, ok := tryInts(raw, valid); ok {
		return withNulls(frame.Ints(name, vals...))
	}
	if vals, ok := tryFloats(raw, valid); ok {
		return withNulls(frame.Floats(name, vals...))
	}
	if vals, ok := tryBools(raw, valid); ok {
		return withNulls(frame.Bools(name, vals...))
	}
	if vals, ok := tryTimes(raw, valid); ok {
		return withNulls(frame.Times(name, vals...))
	}

	vals := make([]string, len(raw))
	for i, v := range raw {
		if valid[i] {
			vals[i] = strings.TrimSpace(v)
		}
	}
	return withNulls(frame.Strings(name, vals...))
}

func tryInts(raw []string, valid []bool) ([]int64, bool) {
	vals := make([]int64, len(raw))
	any := false
	for i, v := range raw {
		if !valid[i] {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, false
		}
		vals[i] = n
		any = true
	}
	return vals, any
}

func tryFloats(raw []string, valid []bool) ([]float64, bool) {
	vals := make([]float64, len(raw))
	any := false
	for i, v := range raw {
		if !valid[i] {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, false
		}
		vals[i] = f
		any = true
	}
	return vals, any
}

func tryBools(raw []string, valid []bool) ([]bool, bool) {
	vals := make([]bool, len(raw))
	any := false
	for i, v := range raw {
		if !valid[i] {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			vals[i] = true
		case "false":
			vals[i] = false
		default:
			return nil, false
		}
		any = true
	}
	return vals, any
}

func tryTimes(raw []string, valid []bool) ([]time.Time, bool) {
	vals := make([]time.Time, len(raw))
	any := false
	for i, v := range raw {
		if !valid[i] {
			continue
		}
		t, ok := parseTime(strings.TrimSpace(v))
		if !ok {
			return nil, false
		}
		vals[i] = t
		any = true
	}
	return vals, any
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
