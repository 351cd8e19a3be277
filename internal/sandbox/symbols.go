package sandbox

import (
	"reflect"

	"github.com/traefik/yaegi/interp"

	"tabletalk/pkg/frame"
)

// framePkgPath is the import path candidates use for the data-plane package.
const framePkgPath = "tabletalk/frame"

// Symbols exposes pkg/frame inside the interpreter. This is the whole
// capability set of generated code: frames, results, and nothing with I/O.
// Layout follows yaegi's extract convention ("importpath/pkgname").
var Symbols = interp.Exports{}

func init() {
	Symbols[framePkgPath+"/frame"] = map[string]reflect.Value{
		// types
		"Agg":        reflect.ValueOf((*frame.Agg)(nil)),
		"AggKind":    reflect.ValueOf((*frame.AggKind)(nil)),
		"Budget":     reflect.ValueOf((*frame.Budget)(nil)),
		"ChartSpec":  reflect.ValueOf((*frame.ChartSpec)(nil)),
		"Env":        reflect.ValueOf((*frame.Env)(nil)),
		"Frame":      reflect.ValueOf((*frame.Frame)(nil)),
		"Grouped":    reflect.ValueOf((*frame.Grouped)(nil)),
		"JoinKind":   reflect.ValueOf((*frame.JoinKind)(nil)),
		"Kind":       reflect.ValueOf((*frame.Kind)(nil)),
		"Result":     reflect.ValueOf((*frame.Result)(nil)),
		"ResultKind": reflect.ValueOf((*frame.ResultKind)(nil)),
		"Row":        reflect.ValueOf((*frame.Row)(nil)),
		"Series":     reflect.ValueOf((*frame.Series)(nil)),

		// constructors
		"Bools":           reflect.ValueOf(frame.Bools),
		"Categories":      reflect.ValueOf(frame.Categories),
		"Floats":          reflect.ValueOf(frame.Floats),
		"Ints":            reflect.ValueOf(frame.Ints),
		"MustNew":         reflect.ValueOf(frame.MustNew),
		"New":             reflect.ValueOf(frame.New),
		"NewBudget":       reflect.ValueOf(frame.NewBudget),
		"NewChartResult":  reflect.ValueOf(frame.NewChartResult),
		"NewEnv":          reflect.ValueOf(frame.NewEnv),
		"NewErrorResult":  reflect.ValueOf(frame.NewErrorResult),
		"NewScalarResult": reflect.ValueOf(frame.NewScalarResult),
		"NewTableResult":  reflect.ValueOf(frame.NewTableResult),
		"Strings":         reflect.ValueOf(frame.Strings),
		"Times":           reflect.ValueOf(frame.Times),

		// aggregation shorthands
		"Count": reflect.ValueOf(frame.Count),
		"Max":   reflect.ValueOf(frame.Max),
		"Mean":  reflect.ValueOf(frame.Mean),
		"Min":   reflect.ValueOf(frame.Min),
		"Sum":   reflect.ValueOf(frame.Sum),

		// enum values
		"AggCount":     reflect.ValueOf(frame.AggCount),
		"AggMax":       reflect.ValueOf(frame.AggMax),
		"AggMean":      reflect.ValueOf(frame.AggMean),
		"AggMin":       reflect.ValueOf(frame.AggMin),
		"AggSum":       reflect.ValueOf(frame.AggSum),
		"Bool":         reflect.ValueOf(frame.Bool),
		"Categorical":  reflect.ValueOf(frame.Categorical),
		"ChartResult":  reflect.ValueOf(frame.ChartResult),
		"Datetime":     reflect.ValueOf(frame.Datetime),
		"ErrorResult":  reflect.ValueOf(frame.ErrorResult),
		"Float":        reflect.ValueOf(frame.Float),
		"InnerJoin":    reflect.ValueOf(frame.InnerJoin),
		"Int":          reflect.ValueOf(frame.Int),
		"LeftJoin":     reflect.ValueOf(frame.LeftJoin),
		"ScalarResult": reflect.ValueOf(frame.ScalarResult),
		"String":       reflect.ValueOf(frame.String),
		"TableResult":  reflect.ValueOf(frame.TableResult),

		// errors
		"ErrBudgetExceeded": reflect.ValueOf(&frame.ErrBudgetExceeded).Elem(),
	}
}
