package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"tabletalk/internal/llm"
	"tabletalk/pkg/frame"
)

// Options bound one execution.
type Options struct {
	// Timeout caps wall-clock time for one candidate. Zero means the
	// context's deadline (if any) is the only bound.
	Timeout time.Duration
	// CellBudget caps total cells allocated by frame operations. This is
	// the deterministic stand-in for a byte ceiling: the interpreter shares
	// the host heap, so RSS cannot be attributed to one candidate.
	CellBudget int64
}

// DefaultOptions returns the executor defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:    10 * time.Second,
		CellBudget: 10_000_000,
	}
}

// Executor interprets candidates in a fresh yaegi instance per call.
// Stateless between calls; safe for concurrent use.
type Executor struct {
	allowedPackages map[string]bool
	logger          *zap.Logger
}

// NewExecutor creates an executor with the stdlib whitelist.
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		logger: logger,
		allowedPackages: map[string]bool{
			framePkgPath: true,

			"errors":  true,
			"fmt":     true,
			"math":    true,
			"sort":    true,
			"strconv": true,
			"strings": true,
			"time":    true,

			// Blocked by omission: os, os/exec, net, net/http, io, syscall,
			// unsafe, reflect, path/filepath. A candidate importing any of
			// them fails validation before evaluation.
		},
	}
}

// answerFunc is the contract every candidate must satisfy.
type answerFunc = func(env *frame.Env) (*frame.Result, error)

// Execute runs one candidate against the bound tables. Always returns a
// structured Outcome; an unhandled fault in the candidate never propagates.
// For a fixed table snapshot the Success/Failure classification is
// deterministic (wall-clock-dependent candidate code excepted).
func (e *Executor) Execute(ctx context.Context, cand llm.Candidate, tables map[string]*frame.Frame, opts Options) Outcome {
	if err := e.validateImports(cand.Code); err != nil {
		return runtimeFailure("forbidden_import", "%v", err)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	budget := frame.NewBudget(opts.CellBudget)
	env := frame.NewEnv(tables, budget)

	start := time.Now()
	done := make(chan Outcome, 1)
	// The interpreter cannot be preempted mid-statement, so the work runs
	// in its own goroutine and the select below enforces the deadline. A
	// runaway candidate leaks its goroutine until it next touches the
	// budget or finishes; the budget keeps that bounded in practice.
	go func() {
		done <- e.run(cand, env)
	}()

	select {
	case out := <-done:
		e.logger.Debug("candidate executed",
			zap.String("candidate", cand.ID),
			zap.String("outcome", out.Kind.String()),
			zap.Duration("elapsed", time.Since(start)))
		if out.Kind == OutcomeSuccess && out.Result != nil {
			out.Result.ArtifactID = cand.ID
		}
		return out
	case <-ctx.Done():
		kind := OutcomeTimeout
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// Caller cancellation, not a sandbox deadline.
			return Outcome{Kind: OutcomeRuntimeFailure, FailureKind: "cancelled", Message: ctx.Err().Error()}
		}
		e.logger.Warn("candidate timed out",
			zap.String("candidate", cand.ID),
			zap.Duration("elapsed", time.Since(start)))
		return Outcome{Kind: kind, Message: fmt.Sprintf("execution exceeded %s", opts.Timeout)}
	}
}

// run evaluates and invokes the candidate, converting panics and budget
// trips into outcomes.
func (e *Executor) run(cand llm.Candidate, env *frame.Env) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			if isBudgetFault(r) {
				out = Outcome{Kind: OutcomeResourceLimit, Message: frame.ErrBudgetExceeded.Error()}
				return
			}
			out = runtimeFailure("panic", "%v", r)
		}
	}()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return runtimeFailure("eval", "load stdlib: %v", err)
	}
	if err := i.Use(Symbols); err != nil {
		return runtimeFailure("eval", "load frame symbols: %v", err)
	}

	if _, err := i.Eval(wrapCode(cand.Code)); err != nil {
		return runtimeFailure("eval", "%v", err)
	}

	v, err := i.Eval("main.Answer")
	if err != nil {
		return runtimeFailure("contract", "Answer function not found: %v", err)
	}
	answer, ok := v.Interface().(answerFunc)
	if !ok {
		return runtimeFailure("contract",
			"Answer has wrong signature (want func(*frame.Env) (*frame.Result, error))")
	}

	result, err := answer(env)
	if err != nil {
		if errors.Is(err, frame.ErrBudgetExceeded) {
			return Outcome{Kind: OutcomeResourceLimit, Message: err.Error()}
		}
		return runtimeFailure("candidate_error", "%v", err)
	}
	if result == nil {
		return runtimeFailure("contract", "Answer returned a nil result")
	}
	return Outcome{Kind: OutcomeSuccess, Result: result}
}

func isBudgetFault(r interface{}) bool {
	err, ok := r.(error)
	return ok && errors.Is(err, frame.ErrBudgetExceeded)
}

// validateImports checks that the code only imports whitelisted packages.
func (e *Executor) validateImports(code string) error {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "import ("))
			// import ("fmt") puts the whole block on one line.
			if i := strings.IndexByte(rest, ')'); i >= 0 {
				imports = append(imports, splitImportList(rest[:i])...)
			} else {
				imports = append(imports, splitImportList(rest)...)
				inBlock = true
			}
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			imports = append(imports, importPath(trimmed))
		case strings.HasPrefix(trimmed, "import "):
			imports = append(imports, importPath(strings.TrimPrefix(trimmed, "import ")))
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		if pkg == "" {
			continue
		}
		if !e.allowedPackages[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %s", strings.Join(forbidden, ", "))
	}
	return nil
}

// splitImportList parses the inside of a one-line import block, where
// entries are separated by semicolons.
func splitImportList(s string) []string {
	var paths []string
	for _, part := range strings.Split(s, ";") {
		if p := importPath(part); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// importPath strips an optional alias and the quotes from one import line.
func importPath(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "//") {
		return ""
	}
	if i := strings.IndexByte(line, '"'); i >= 0 {
		line = line[i:]
	}
	return strings.Trim(line, `"`)
}

// wrapCode ensures the candidate is a main package.
func wrapCode(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	return "package main\n\n" + code
}
