// Package llm holds the code-generation client: the interface to the
// external text-completion service, provider implementations, and the
// Generator that turns a resolved schema context plus failure history into
// a runnable code candidate. The package never executes or validates code;
// it only produces candidates and reports the service's faults.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Client is the minimal surface the engine needs from a text-completion
// provider.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ErrUnavailable marks the generation service as unreachable or its output
// as unusable. The retry loop treats it as terminal: retrying generation
// cannot fix an absent service, so the fault is surfaced immediately.
var ErrUnavailable = errors.New("llm: generation service unavailable")

// unavailable wraps cause into ErrUnavailable.
func unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}
