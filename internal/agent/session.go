package agent

import (
	"context"
	"sync"

	"tabletalk/internal/semantic"
	"tabletalk/pkg/frame"
)

// Session threads conversation history through consecutive queries so
// follow-ups like "and only for the north region" resolve against what was
// already asked. History only grows on success; a failed query leaves the
// conversation where it was.
type Session struct {
	mu      sync.Mutex
	agent   *Agent
	history []semantic.Turn
}

// NewSession starts an empty conversation on top of an agent.
func NewSession(a *Agent) *Session {
	return &Session{agent: a}
}

// Ask answers one query in conversation context.
func (s *Session) Ask(ctx context.Context, query string) (*frame.Result, error) {
	s.mu.Lock()
	hist := make([]semantic.Turn, len(s.history))
	copy(hist, s.history)
	s.mu.Unlock()

	r, err := s.agent.Ask(ctx, semantic.QueryContext{Query: query, History: hist})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.history = append(s.history, semantic.Turn{Query: query, Answer: r.String()})
	s.mu.Unlock()
	return r, nil
}

// History returns a copy of the conversation so far.
func (s *Session) History() []semantic.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]semantic.Turn, len(s.history))
	copy(out, s.history)
	return out
}
