package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Candidate is one opaque piece of generated code. Immutable once returned.
type Candidate struct {
	ID      string
	Code    string
	Attempt int
}

// PriorFailure pairs an earlier candidate with the reason it failed, in the
// order the failures happened. Passed by value into each new generation call
// so attempts never share mutable state.
type PriorFailure struct {
	CandidateID string
	Code        string
	Reason      string
}

// Generator formats prompts and extracts candidates from completions.
// Stateless per call; safe for concurrent use.
type Generator struct {
	client Client
	logger *zap.Logger
}

// NewGenerator creates a generator on the given client.
func NewGenerator(client Client, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, logger: logger}
}

// Generate requests one candidate. It does not execute or validate the code
// and never retries: transport faults and malformed output both surface as
// ErrUnavailable for the orchestration layer to report.
func (g *Generator) Generate(ctx context.Context, pc PromptContext, priorErrors []PriorFailure) (Candidate, error) {
	prompt := BuildPrompt(pc, priorErrors)
	g.logger.Debug("requesting candidate",
		zap.Int("attempt", len(priorErrors)+1),
		zap.Int("prompt_bytes", len(prompt)))

	raw, err := g.client.CompleteWithSystem(ctx, systemPrompt, prompt)
	if err != nil {
		return Candidate{}, err
	}

	code, err := ExtractCode(raw)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{
		ID:      uuid.NewString(),
		Code:    code,
		Attempt: len(priorErrors) + 1,
	}, nil
}

var codeBlockPattern = regexp.MustCompile("(?s)```(?:go)?\\s*\\n(.*?)```")

// ExtractCode pulls the Go source out of a completion. A fenced block wins;
// a bare response that already looks like Go (contains the Answer contract)
// is accepted as-is. Anything else is malformed output from the service.
func ExtractCode(raw string) (string, error) {
	if m := codeBlockPattern.FindStringSubmatch(raw); m != nil {
		code := strings.TrimSpace(m[1])
		if code == "" {
			return "", unavailable("empty code block in completion")
		}
		return code, nil
	}
	trimmed := strings.TrimSpace(raw)
	if strings.Contains(trimmed, "func Answer(") {
		return trimmed, nil
	}
	return "", unavailable("completion contains no code block")
}
