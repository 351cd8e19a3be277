package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletalk/internal/semantic"
	"tabletalk/pkg/frame"
)

// MockClient scripts completions for tests.
type MockClient struct {
	CompleteFunc func(ctx context.Context, system, user string) (string, error)
	Calls        int
	LastPrompt   string
}

func (m *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *MockClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	m.Calls++
	m.LastPrompt = user
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, user)
	}
	return "```go\nfunc Answer(env *frame.Env) (*frame.Result, error) { return nil, nil }\n```", nil
}

func resolvedFixture() *semantic.ResolvedContext {
	return &semantic.ResolvedContext{
		SchemaName:    "sales",
		SchemaVersion: 1,
		Tables: []*semantic.Table{
			{
				Name:        "orders",
				Description: "customer orders",
				Columns: []semantic.Column{
					{Name: "amount", Type: frame.Float},
					{Name: "region", Type: frame.Categorical, Nullable: true},
				},
			},
		},
		Relationships: []semantic.Relationship{
			{
				Source:      semantic.ColumnRef{Table: "orders", Column: "customer_id"},
				Target:      semantic.ColumnRef{Table: "customers", Column: "id"},
				Cardinality: semantic.OneToMany,
			},
		},
	}
}

func TestBuildPromptContainsSchemaAndQuery(t *testing.T) {
	p := BuildPrompt(PromptContext{
		Resolved: resolvedFixture(),
		Query:    "total amount by region",
	}, nil)

	assert.Contains(t, p, "TABLE orders")
	assert.Contains(t, p, "amount: float")
	assert.Contains(t, p, "region: categorical nullable")
	assert.Contains(t, p, "orders.customer_id -> customers.id (one_to_many)")
	assert.Contains(t, p, "Question: total amount by region")
	assert.NotContains(t, p, "Earlier attempts")
}

func TestBuildPromptAppendsPriorFailuresInOrder(t *testing.T) {
	p := BuildPrompt(PromptContext{Resolved: resolvedFixture(), Query: "q"}, []PriorFailure{
		{Code: "code-one", Reason: "type error"},
		{Code: "code-two", Reason: "empty table"},
	})

	first := strings.Index(p, "code-one")
	second := strings.Index(p, "code-two")
	require.Greater(t, first, 0)
	require.Greater(t, second, first, "failures must appear in attempt order")
	assert.Contains(t, p, "failure: type error")
	assert.Contains(t, p, "failure: empty table")
}

func TestBuildPromptIncludesHistory(t *testing.T) {
	p := BuildPrompt(PromptContext{
		Resolved: resolvedFixture(),
		Query:    "and by city?",
		History:  []semantic.Turn{{Query: "total by region", Answer: "north: 40"}},
	}, nil)
	assert.Contains(t, p, "Conversation so far")
	assert.Contains(t, p, "total by region")
}

func TestGenerateExtractsCandidate(t *testing.T) {
	mock := &MockClient{}
	g := NewGenerator(mock, nil)

	cand, err := g.Generate(context.Background(), PromptContext{Resolved: resolvedFixture(), Query: "q"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, cand.ID)
	assert.Equal(t, 1, cand.Attempt)
	assert.Contains(t, cand.Code, "func Answer")
	assert.NotContains(t, cand.Code, "```")
}

func TestGenerateAttemptNumberFollowsHistory(t *testing.T) {
	mock := &MockClient{}
	g := NewGenerator(mock, nil)

	cand, err := g.Generate(context.Background(), PromptContext{Resolved: resolvedFixture(), Query: "q"},
		[]PriorFailure{{Code: "x", Reason: "boom"}, {Code: "y", Reason: "boom"}})
	require.NoError(t, err)
	assert.Equal(t, 3, cand.Attempt)
}

func TestGenerateMalformedOutputIsUnavailable(t *testing.T) {
	mock := &MockClient{
		CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			return "Sorry, I cannot help with that.", nil
		},
	}
	g := NewGenerator(mock, nil)

	_, err := g.Generate(context.Background(), PromptContext{Resolved: resolvedFixture(), Query: "q"}, nil)
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, mock.Calls, "generator must not retry on its own")
}

func TestGenerateTransportFaultIsUnavailable(t *testing.T) {
	mock := &MockClient{
		CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
			return "", unavailable("connection refused")
		},
	}
	g := NewGenerator(mock, nil)
	_, err := g.Generate(context.Background(), PromptContext{Resolved: resolvedFixture(), Query: "q"}, nil)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "fenced go block",
			raw:  "Here you go:\n```go\npackage main\n```\nDone.",
			want: "package main",
		},
		{
			name: "fenced plain block",
			raw:  "```\nfunc Answer() {}\n```",
			want: "func Answer() {}",
		},
		{
			name: "bare code with contract",
			raw:  "func Answer(env *frame.Env) (*frame.Result, error) { return nil, nil }",
			want: "func Answer(env *frame.Env) (*frame.Result, error) { return nil, nil }",
		},
		{name: "prose only", raw: "I cannot do that.", wantErr: true},
		{name: "empty block", raw: "```go\n```", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractCode(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnavailable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnavailableWraps(t *testing.T) {
	err := unavailable("because %s", "reasons")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatal("unavailable must wrap ErrUnavailable")
	}
}
