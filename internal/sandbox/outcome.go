// Package sandbox runs generated code candidates against bound in-memory
// tables under an import whitelist, a wall-clock timeout and a cell budget.
// Candidates are interpreted with yaegi rather than compiled: no toolchain
// on the host, no binaries, no dependency fetching, and a structured failure
// instead of a crash when the code is bad.
package sandbox

import (
	"fmt"

	"tabletalk/pkg/frame"
)

// OutcomeKind classifies one execution.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRuntimeFailure
	OutcomeTimeout
	OutcomeResourceLimit
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRuntimeFailure:
		return "runtime_failure"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeResourceLimit:
		return "resource_limit_exceeded"
	}
	return "unknown"
}

// Outcome is the structured result of one candidate execution. Exactly one
// of Result (on success) or FailureKind/Message (otherwise) is meaningful.
type Outcome struct {
	Kind   OutcomeKind
	Result *frame.Result

	// FailureKind names the failure class inside RuntimeFailure outcomes:
	// "forbidden_import", "eval", "contract", "panic", "candidate_error".
	FailureKind string
	Message     string
}

// Failure renders the outcome as a single line for retry-loop history.
func (o Outcome) Failure() string {
	if o.Kind == OutcomeSuccess {
		return ""
	}
	if o.FailureKind != "" {
		return fmt.Sprintf("%s (%s): %s", o.Kind, o.FailureKind, o.Message)
	}
	return fmt.Sprintf("%s: %s", o.Kind, o.Message)
}

func runtimeFailure(kind, format string, args ...interface{}) Outcome {
	return Outcome{
		Kind:        OutcomeRuntimeFailure,
		FailureKind: kind,
		Message:     fmt.Sprintf(format, args...),
	}
}
