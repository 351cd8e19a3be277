package agent

// State names the phase an attempt loop is in. Attempts are strictly
// sequential; the state only moves forward within one attempt and resets to
// Generating on retry.
type State int

const (
	StateResolving State = iota
	StateGenerating
	StateExecuting
	StateValidating
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateGenerating:
		return "generating"
	case StateExecuting:
		return "executing"
	case StateValidating:
		return "validating"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}
