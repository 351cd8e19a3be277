package agent

import (
	"fmt"
	"strings"
)

// ValidationError reports a result that executed cleanly but does not hold
// up as an answer: an empty table, a NaN scalar, a chart over columns its
// own data does not carry. Validation failures feed the retry loop like any
// runtime failure.
type ValidationError struct {
	Kind   string // "table", "scalar", "chart"
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation (%s): %s", e.Kind, e.Reason)
}

// AttemptFailure records one spent attempt in order.
type AttemptFailure struct {
	Attempt     int
	CandidateID string
	Reason      string
}

// RetryBudgetExhaustedError is returned when every attempt failed. It
// carries the full ordered failure history so the caller can see what was
// tried and why each attempt died.
type RetryBudgetExhaustedError struct {
	Query    string
	Attempts []AttemptFailure
}

func (e *RetryBudgetExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d attempts failed for %q:", len(e.Attempts), e.Query)
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "\n  attempt %d: %s", a.Attempt, a.Reason)
	}
	return b.String()
}
