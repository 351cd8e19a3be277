package semantic

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCyclicView is wrapped by RegisterView when a view definition would make
// the derivation graph cyclic.
var ErrCyclicView = errors.New("semantic: cyclic view derivation")

// ResolutionError reports an unknown or ambiguous entity reference. It is a
// configuration-time failure: the retry loop never retries it, since
// regenerating code cannot conjure a missing table.
type ResolutionError struct {
	Name   string
	Reason string // "unknown" or "ambiguous"
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("semantic: cannot resolve %q: %s", e.Name, e.Reason)
}

// TypeMismatchError reports a type-incompatible join key pair.
type TypeMismatchError struct {
	Source     ColumnRef
	Target     ColumnRef
	SourceType string
	TargetType string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("semantic: join key types incompatible: %s (%s) vs %s (%s)",
		e.Source, e.SourceType, e.Target, e.TargetType)
}

// cycleError decorates ErrCyclicView with the offending path.
func cycleError(path []string) error {
	return fmt.Errorf("%w: %s", ErrCyclicView, strings.Join(path, " -> "))
}
