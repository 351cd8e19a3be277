package agent

import (
	"fmt"
	"math"

	"tabletalk/pkg/frame"
)

// Validator inspects a successful execution result and rejects it if it is
// not a usable answer. A rejection re-enters the retry loop.
type Validator func(*frame.Result) error

// DefaultValidators covers the three result shapes: tables must have rows,
// scalars must be concrete numbers or non-empty values, chart axes must name
// columns of their source frame.
func DefaultValidators() []Validator {
	return []Validator{ValidateTable, ValidateScalar, ValidateChart}
}

// ValidateTable rejects empty table results.
func ValidateTable(r *frame.Result) error {
	if r.Kind != frame.TableResult {
		return nil
	}
	if r.Table == nil {
		return &ValidationError{Kind: "table", Reason: "nil table"}
	}
	if r.Table.NumRows() == 0 {
		return &ValidationError{Kind: "table", Reason: "result has no rows"}
	}
	return nil
}

// ValidateScalar rejects nil and NaN scalar results.
func ValidateScalar(r *frame.Result) error {
	if r.Kind != frame.ScalarResult {
		return nil
	}
	if r.Scalar == nil {
		return &ValidationError{Kind: "scalar", Reason: "nil value"}
	}
	switch v := r.Scalar.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Kind: "scalar", Reason: "value is not a finite number"}
		}
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return &ValidationError{Kind: "scalar", Reason: "value is not a finite number"}
		}
	case string:
		if v == "" {
			return &ValidationError{Kind: "scalar", Reason: "empty string"}
		}
	}
	return nil
}

// ValidateChart rejects charts whose axes do not name columns of the chart's
// source frame.
func ValidateChart(r *frame.Result) error {
	if r.Kind != frame.ChartResult {
		return nil
	}
	c := r.Chart
	if c == nil {
		return &ValidationError{Kind: "chart", Reason: "nil chart spec"}
	}
	if c.Source == nil {
		return &ValidationError{Kind: "chart", Reason: "chart has no source table"}
	}
	if len(c.Y) == 0 {
		return &ValidationError{Kind: "chart", Reason: "chart has no y axis"}
	}
	for _, axis := range append([]string{c.X}, c.Y...) {
		if axis == "" {
			return &ValidationError{Kind: "chart", Reason: "chart axis unset"}
		}
		if !c.Source.HasColumn(axis) {
			return &ValidationError{
				Kind:   "chart",
				Reason: fmt.Sprintf("axis %q is not a column of the chart source", axis),
			}
		}
	}
	return nil
}
