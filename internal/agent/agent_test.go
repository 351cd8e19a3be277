package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tabletalk/internal/llm"
	"tabletalk/internal/semantic"
	"tabletalk/internal/store"
	"tabletalk/pkg/frame"
)

func TestMain(m *testing.M) {
	// The genai dependency starts an opencensus stats worker at init that
	// never stops; it is process-global, not a leak from a test.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// scriptedClient returns canned completions in order and fails loudly when
// the script runs out.
type scriptedClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *scriptedClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	c.prompts = append(c.prompts, prompt)
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	if i >= len(c.responses) {
		return "", fmt.Errorf("scripted client exhausted after %d calls", len(c.responses))
	}
	return c.responses[i], nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *scriptedClient) prompt(i int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompts[i]
}

type staticProvider struct {
	tables map[string]*frame.Frame
}

func (p staticProvider) Tables(ctx context.Context, names []string) (map[string]*frame.Frame, error) {
	out := make(map[string]*frame.Frame, len(names))
	for _, n := range names {
		f, ok := p.tables[n]
		if !ok {
			return nil, fmt.Errorf("no data for table %q", n)
		}
		out[n] = f
	}
	return out, nil
}

func ordersSchema() *semantic.Schema {
	return &semantic.Schema{
		Name: "sales",
		Tables: map[string]*semantic.Table{
			"orders": {
				Name: "orders",
				Columns: []semantic.Column{
					{Name: "id", Type: frame.Int},
					{Name: "amount", Type: frame.Float},
					{Name: "region", Type: frame.Categorical},
				},
			},
		},
		Views: map[string]*semantic.View{},
	}
}

func ordersProvider() staticProvider {
	return staticProvider{tables: map[string]*frame.Frame{
		"orders": frame.MustNew(
			frame.Ints("id", 1, 2, 3, 4),
			frame.Floats("amount", 10, 20, 30, 15),
			frame.Categories("region", "north", "south", "north", "south"),
		),
	}}
}

func fenced(code string) string {
	return "Here you go:\n```go\n" + code + "\n```"
}

const brokenCandidate = `
import "tabletalk/frame"

func Answer(env *frame.Env) (*frame.Result, error) {
	var total int = "not a number"
	_ = total
	return nil, nil
}
`

const emptyTableCandidate = `
import "tabletalk/frame"

func Answer(env *frame.Env) (*frame.Result, error) {
	orders, err := env.Table("orders")
	if err != nil {
		return nil, err
	}
	head, err := orders.Head(0)
	if err != nil {
		return nil, err
	}
	return frame.NewTableResult(head), nil
}
`

const amountByRegionCandidate = `
import "tabletalk/frame"

func Answer(env *frame.Env) (*frame.Result, error) {
	orders, err := env.Table("orders")
	if err != nil {
		return nil, err
	}
	out, err := orders.GroupBy("region").Apply(frame.Sum("amount"))
	if err != nil {
		return nil, err
	}
	return frame.NewTableResult(out), nil
}
`

func newTestAgent(t *testing.T, client llm.Client, artifacts *store.ArtifactStore) (*Agent, *semantic.Registry) {
	t.Helper()
	reg := semantic.NewRegistry(nil)
	require.NoError(t, reg.Replace(ordersSchema()))
	return New(reg, client, ordersProvider(), artifacts, Options{}, nil), reg
}

func assertAmountByRegion(t *testing.T, r *frame.Result) {
	t.Helper()
	require.NotNil(t, r)
	require.Equal(t, frame.TableResult, r.Kind)
	require.Equal(t, 2, r.Table.NumRows())

	region, err := r.Table.Column("region")
	require.NoError(t, err)
	sum, err := r.Table.Column("sum_amount")
	require.NoError(t, err)
	assert.Equal(t, "north", region.Str(0))
	assert.Equal(t, 40.0, sum.Float(0))
	assert.Equal(t, "south", region.Str(1))
	assert.Equal(t, 35.0, sum.Float(1))
}

func TestRetryThenSucceedThenReplayFromCache(t *testing.T) {
	client := &scriptedClient{responses: []string{
		fenced(brokenCandidate),
		fenced(amountByRegionCandidate),
	}}
	a, _ := newTestAgent(t, client, nil)
	q := semantic.QueryContext{Query: "total amount by region"}

	r, err := a.Ask(context.Background(), q)
	require.NoError(t, err)
	assertAmountByRegion(t, r)
	assert.Equal(t, 2, client.callCount(), "first candidate fails, second succeeds")
	assert.Contains(t, client.prompt(1), "--- attempt 1 ---",
		"second prompt must carry the first failure")

	// Identical query replays from cache without touching the model.
	r2, err := a.Ask(context.Background(), q)
	require.NoError(t, err)
	assert.Same(t, r, r2)
	assert.Equal(t, 2, client.callCount())
}

func TestRetryBudgetExhausted(t *testing.T) {
	client := &scriptedClient{responses: []string{
		fenced(brokenCandidate),
		fenced(brokenCandidate),
		fenced(brokenCandidate),
		fenced(amountByRegionCandidate), // must never be reached
	}}
	a, _ := newTestAgent(t, client, nil)

	_, err := a.Ask(context.Background(), semantic.QueryContext{Query: "total amount by region"})
	var exhausted *RetryBudgetExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 3)
	for i, att := range exhausted.Attempts {
		assert.Equal(t, i+1, att.Attempt)
		assert.NotEmpty(t, att.Reason)
		assert.NotEmpty(t, att.CandidateID)
	}
	assert.Equal(t, 3, client.callCount(), "the loop stops at the attempt budget")
	assert.Equal(t, 0, a.CacheLen(), "a failed query leaves no cache entry")
}

func TestResolutionErrorSkipsGeneration(t *testing.T) {
	client := &scriptedClient{}
	a, _ := newTestAgent(t, client, nil)

	_, err := a.Ask(context.Background(), semantic.QueryContext{
		Query:    "totals",
		Entities: []string{"shipments"},
	})
	var rerr *semantic.ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 0, client.callCount())
}

func TestUnavailableServiceNotRetried(t *testing.T) {
	client := &scriptedClient{errs: []error{llm.ErrUnavailable}}
	a, _ := newTestAgent(t, client, nil)

	_, err := a.Ask(context.Background(), semantic.QueryContext{Query: "total amount by region"})
	require.ErrorIs(t, err, llm.ErrUnavailable)
	assert.Equal(t, 1, client.callCount(), "an absent service is not fixed by asking again")
}

func TestValidationFailureReentersLoop(t *testing.T) {
	client := &scriptedClient{responses: []string{
		fenced(emptyTableCandidate),
		fenced(amountByRegionCandidate),
	}}
	a, _ := newTestAgent(t, client, nil)

	r, err := a.Ask(context.Background(), semantic.QueryContext{Query: "total amount by region"})
	require.NoError(t, err)
	assertAmountByRegion(t, r)
	assert.Equal(t, 2, client.callCount())
	assert.Contains(t, client.prompt(1), "validation",
		"the empty-table rejection must reach the next prompt")
}

func TestConcurrentIdenticalQueriesGenerateOnce(t *testing.T) {
	client := &scriptedClient{responses: []string{fenced(amountByRegionCandidate)}}
	a, _ := newTestAgent(t, client, nil)
	q := semantic.QueryContext{Query: "total amount by region"}

	const n = 8
	results := make([]*frame.Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := a.Ask(context.Background(), q)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, client.callCount(), "concurrent identical queries share one computation")
	for i := 1; i < n; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestExplicitEntitiesKeyTheCache(t *testing.T) {
	client := &scriptedClient{responses: []string{
		fenced(amountByRegionCandidate),
		fenced(amountByRegionCandidate),
	}}
	a, _ := newTestAgent(t, client, nil)

	_, err := a.Ask(context.Background(), semantic.QueryContext{Query: "total amount by region"})
	require.NoError(t, err)
	_, err = a.Ask(context.Background(), semantic.QueryContext{
		Query:    "total amount by region",
		Entities: []string{"orders"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, client.callCount(), "same words, different bindings, different entry")

	_, err = a.Ask(context.Background(), semantic.QueryContext{
		Query:    "total amount by region",
		Entities: []string{"orders"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, client.callCount())
}

func TestPersistedArtifactSkipsGeneration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "artifacts.db")
	q := semantic.QueryContext{Query: "total amount by region"}

	s1, err := store.Open(dbPath, nil)
	require.NoError(t, err)
	client1 := &scriptedClient{responses: []string{fenced(amountByRegionCandidate)}}
	a1, _ := newTestAgent(t, client1, s1)

	r, err := a1.Ask(context.Background(), q)
	require.NoError(t, err)
	assertAmountByRegion(t, r)
	assert.Equal(t, 1, client1.callCount())
	require.NoError(t, s1.Close())

	// A fresh process with an empty cache but the same artifact database
	// replays the stored code instead of generating.
	s2, err := store.Open(dbPath, nil)
	require.NoError(t, err)
	defer s2.Close()
	client2 := &scriptedClient{}
	a2, _ := newTestAgent(t, client2, s2)

	r2, err := a2.Ask(context.Background(), q)
	require.NoError(t, err)
	assertAmountByRegion(t, r2)
	assert.Equal(t, 0, client2.callCount())
}

func TestSchemaChangeInvalidatesCache(t *testing.T) {
	client := &scriptedClient{responses: []string{
		fenced(amountByRegionCandidate),
		fenced(amountByRegionCandidate),
	}}
	a, reg := newTestAgent(t, client, nil)
	q := semantic.QueryContext{Query: "total amount by region"}

	_, err := a.Ask(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, 1, a.CacheLen())

	require.NoError(t, reg.Replace(ordersSchema()))
	assert.Equal(t, 0, a.CacheLen(), "a version bump drops stale entries")

	_, err = a.Ask(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, client.callCount(), "the old code must not serve the new schema")
}

func TestSchemaChangePrunesStoredArtifacts(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "artifacts.db"), nil)
	require.NoError(t, err)
	defer s.Close()
	client := &scriptedClient{responses: []string{fenced(amountByRegionCandidate)}}
	a, reg := newTestAgent(t, client, s)

	_, err = a.Ask(context.Background(), semantic.QueryContext{Query: "total amount by region"})
	require.NoError(t, err)
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// A version bump prunes stale artifacts off the mutation path; Drain
	// waits for the background pass.
	require.NoError(t, reg.Replace(ordersSchema()))
	a.Drain()

	n, err = s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "artifacts below the new schema version are gone")
}

func TestSessionCarriesHistory(t *testing.T) {
	client := &scriptedClient{responses: []string{
		fenced(amountByRegionCandidate),
		fenced(amountByRegionCandidate),
	}}
	a, _ := newTestAgent(t, client, nil)
	sess := NewSession(a)

	_, err := sess.Ask(context.Background(), "total amount by region")
	require.NoError(t, err)
	_, err = sess.Ask(context.Background(), "now sorted descending")
	require.NoError(t, err)

	require.Equal(t, 2, client.callCount())
	assert.Contains(t, client.prompt(1), "total amount by region",
		"the follow-up prompt must include the earlier turn")
	require.Len(t, sess.History(), 2)
	assert.Equal(t, "now sorted descending", sess.History()[1].Query)
}

func TestValidators(t *testing.T) {
	okTable := frame.MustNew(frame.Floats("x", 1), frame.Floats("y", 2))
	empty, err := okTable.Head(0)
	require.NoError(t, err)

	tests := []struct {
		name    string
		result  *frame.Result
		wantErr bool
	}{
		{"table with rows", frame.NewTableResult(okTable), false},
		{"empty table", frame.NewTableResult(empty), true},
		{"scalar number", frame.NewScalarResult(42.0), false},
		{"scalar nan", frame.NewScalarResult(nanValue()), true},
		{"scalar nil", frame.NewScalarResult(nil), true},
		{"chart with real axes", frame.NewChartResult(&frame.ChartSpec{Kind: "bar", X: "x", Y: []string{"y"}, Source: okTable}), false},
		{"chart with two series", frame.NewChartResult(&frame.ChartSpec{Kind: "line", X: "x", Y: []string{"x", "y"}, Source: okTable}), false},
		{"chart with bogus y axis", frame.NewChartResult(&frame.ChartSpec{Kind: "bar", X: "x", Y: []string{"z"}, Source: okTable}), true},
		{"chart with one bad series of two", frame.NewChartResult(&frame.ChartSpec{Kind: "line", X: "x", Y: []string{"y", "z"}, Source: okTable}), true},
		{"chart without y axes", frame.NewChartResult(&frame.ChartSpec{Kind: "bar", X: "x", Source: okTable}), true},
		{"chart without source", frame.NewChartResult(&frame.ChartSpec{Kind: "bar", X: "x", Y: []string{"y"}}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			for _, v := range DefaultValidators() {
				if err = v(tt.result); err != nil {
					break
				}
			}
			if tt.wantErr {
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func nanValue() float64 {
	zero := 0.0
	return zero / zero
}
