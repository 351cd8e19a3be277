// Package agent drives one query from natural language to a validated
// result. Each query moves through resolving, generating, executing and
// validating; execution and validation failures are fed back into the next
// generation attempt until the attempt budget runs out. Successful results
// are cached by fingerprint and their code persisted, so identical queries
// replay without touching the model again.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tabletalk/internal/cache"
	"tabletalk/internal/llm"
	"tabletalk/internal/sandbox"
	"tabletalk/internal/semantic"
	"tabletalk/internal/store"
	"tabletalk/pkg/frame"
)

// TableProvider materializes the named tables for one execution. The agent
// asks for exactly the tables the resolved context mentions.
type TableProvider interface {
	Tables(ctx context.Context, names []string) (map[string]*frame.Frame, error)
}

// Options tunes the attempt loop.
type Options struct {
	// MaxAttempts bounds generation attempts per query. Zero means the
	// default of 3.
	MaxAttempts int
	Sandbox     sandbox.Options
	// Validators run against successful executions. Nil means
	// DefaultValidators.
	Validators []Validator
	// CacheSize bounds the in-memory result cache. Zero takes the cache
	// package default.
	CacheSize int
}

const defaultMaxAttempts = 3

// Agent is the front door: it owns the schema registry, the generator, the
// sandbox, the result cache and the artifact store, and runs the attempt
// loop connecting them. Safe for concurrent use.
type Agent struct {
	registry  *semantic.Registry
	generator *llm.Generator
	executor  *sandbox.Executor
	provider  TableProvider
	cache     *cache.Cache
	store     *store.ArtifactStore // optional
	opts      Options
	logger    *zap.Logger

	pruneWG sync.WaitGroup
}

// New wires an agent together. store may be nil to run without persistence.
// Schema version changes invalidate cached results and prune persisted
// artifacts automatically.
func New(registry *semantic.Registry, client llm.Client, provider TableProvider, artifacts *store.ArtifactStore, opts Options, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Sandbox.Timeout <= 0 {
		opts.Sandbox = sandbox.DefaultOptions()
	}
	if opts.Validators == nil {
		opts.Validators = DefaultValidators()
	}

	a := &Agent{
		registry:  registry,
		generator: llm.NewGenerator(client, logger),
		executor:  sandbox.NewExecutor(logger),
		provider:  provider,
		cache:     cache.New(opts.CacheSize, logger),
		store:     artifacts,
		opts:      opts,
		logger:    logger,
	}

	registry.Subscribe(func(v uint64) {
		// Runs while the registry holds its mutation lock: only the cheap
		// in-memory invalidation happens here. Disk pruning goes to a
		// goroutine so a slow disk cannot stall schema edits.
		n := a.cache.InvalidateOlderThan(v)
		if n > 0 {
			logger.Info("schema change invalidated cached results",
				zap.Uint64("schema_version", v), zap.Int("dropped", n))
		}
		if a.store != nil {
			a.pruneWG.Add(1)
			go func() {
				defer a.pruneWG.Done()
				if _, err := a.store.PruneOlderThan(context.Background(), v); err != nil {
					logger.Warn("artifact prune failed", zap.Error(err))
				}
			}()
		}
	})
	return a
}

// Ask answers one query. Resolution errors and model unavailability are
// terminal; execution and validation failures retry up to the attempt
// budget. Concurrent identical queries share one computation.
func (a *Agent) Ask(ctx context.Context, q semantic.QueryContext) (*frame.Result, error) {
	rc, err := a.registry.Resolve(q)
	if err != nil {
		return nil, err
	}

	fp := cache.ComputeFingerprint(rc.SchemaVersion, q.Query, fingerprintParams(q))
	entry, err := a.cache.GetOrCompute(ctx, fp, func(ctx context.Context) (*cache.Entry, error) {
		return a.compute(ctx, fp, rc, q)
	})
	if err != nil {
		return nil, err
	}
	return entry.Result, nil
}

// fingerprintParams folds explicit entity bindings and conversation turns
// into the fingerprint. The same words bound to different tables, or asked
// under a different conversation, must not collide in the cache.
func fingerprintParams(q semantic.QueryContext) map[string]string {
	if len(q.Entities) == 0 && len(q.History) == 0 {
		return nil
	}
	params := make(map[string]string, len(q.History)+1)
	if len(q.Entities) > 0 {
		params["entities"] = strings.Join(q.Entities, ",")
	}
	for i, t := range q.History {
		params[fmt.Sprintf("turn%03d", i)] = t.Query + "\x1f" + t.Answer
	}
	return params
}

// compute runs the attempt loop for one cache miss. Runs at most once per
// fingerprint at a time; concurrent callers wait on this flight.
func (a *Agent) compute(ctx context.Context, fp cache.Fingerprint, rc *semantic.ResolvedContext, q semantic.QueryContext) (*cache.Entry, error) {
	tables, err := a.provider.Tables(ctx, rc.TableNames())
	if err != nil {
		return nil, fmt.Errorf("agent: load tables: %w", err)
	}

	// A persisted artifact from this exact fingerprint and schema version
	// skips generation entirely.
	if a.store != nil {
		if art, err := a.store.Get(ctx, fp, rc.SchemaVersion); err == nil {
			if entry, ok := a.replay(ctx, art, tables); ok {
				return entry, nil
			}
			a.logger.Warn("persisted artifact no longer executes, regenerating",
				zap.String("artifact", art.ID))
		}
	}

	pc := llm.PromptContext{Resolved: rc, Query: q.Query, History: q.History}
	var failures []llm.PriorFailure
	var history []AttemptFailure

	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		cand, err := a.generator.Generate(ctx, pc, failures)
		if err != nil {
			// Model unavailability and caller cancellation are not
			// repairable by another attempt.
			return nil, err
		}

		out := a.executor.Execute(ctx, cand, tables, a.opts.Sandbox)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		reason := ""
		if out.Kind == sandbox.OutcomeSuccess {
			if verr := a.validate(out.Result); verr != nil {
				reason = verr.Error()
			}
		} else {
			reason = out.Failure()
		}

		if reason == "" {
			a.logger.Info("query answered",
				zap.String("state", StateSucceeded.String()),
				zap.Int("attempt", attempt),
				zap.String("candidate", cand.ID))
			return a.finish(ctx, fp, rc.SchemaVersion, cand, out.Result), nil
		}

		a.logger.Info("attempt failed",
			zap.Int("attempt", attempt),
			zap.String("candidate", cand.ID),
			zap.String("reason", reason))
		failures = append(failures, llm.PriorFailure{
			CandidateID: cand.ID,
			Code:        cand.Code,
			Reason:      reason,
		})
		history = append(history, AttemptFailure{
			Attempt:     attempt,
			CandidateID: cand.ID,
			Reason:      reason,
		})
	}

	a.logger.Warn("attempt budget exhausted",
		zap.String("state", StateFailed.String()),
		zap.String("query", q.Query),
		zap.Int("attempts", len(history)))
	return nil, &RetryBudgetExhaustedError{Query: q.Query, Attempts: history}
}

// replay executes a persisted artifact. Any failure, including validation,
// falls back to fresh generation rather than surfacing to the caller.
func (a *Agent) replay(ctx context.Context, art cache.Artifact, tables map[string]*frame.Frame) (*cache.Entry, bool) {
	cand := llm.Candidate{ID: art.ID, Code: art.Code}
	out := a.executor.Execute(ctx, cand, tables, a.opts.Sandbox)
	if out.Kind != sandbox.OutcomeSuccess {
		return nil, false
	}
	if err := a.validate(out.Result); err != nil {
		return nil, false
	}
	return &cache.Entry{Artifact: art, Result: out.Result}, true
}

func (a *Agent) validate(r *frame.Result) error {
	for _, v := range a.opts.Validators {
		if err := v(r); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) finish(ctx context.Context, fp cache.Fingerprint, version uint64, cand llm.Candidate, result *frame.Result) *cache.Entry {
	art := cache.Artifact{
		ID:            cand.ID,
		Fingerprint:   fp,
		SchemaVersion: version,
		Code:          cand.Code,
		CreatedAt:     time.Now(),
	}
	if a.store != nil {
		if err := a.store.Put(ctx, art); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("artifact persistence failed", zap.Error(err))
		}
	}
	return &cache.Entry{Artifact: art, Result: result}
}

// Drain blocks until background maintenance kicked off by schema changes
// has finished. Call before closing the artifact store.
func (a *Agent) Drain() {
	a.pruneWG.Wait()
}

// CacheLen reports the number of cached results. Exposed for inspection.
func (a *Agent) CacheLen() int {
	return a.cache.Len()
}
