package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DefikitTeam/claude-code-container-sub005/backend"
	"github.com/DefikitTeam/claude-code-container-sub005/classify"
	"github.com/DefikitTeam/claude-code-container-sub005/logging"
	"github.com/DefikitTeam/claude-code-container-sub005/tokencache"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxAttempts bounds the retry loop, counting the first attempt.
	MaxAttempts int
	// BaseDelay is the backoff base; attempt n waits BaseDelay * 2^n.
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// EventBufferSize sets channel buffering for async runs.
	EventBufferSize int
	// Tokens, when set, is invalidated for the run's key on auth failures
	// so the retried attempt fetches a fresh credential.
	Tokens *tokencache.Cache
	// Logger receives selection and retry diagnostics.
	Logger logging.Logger
	// Calls, when set, records per-attempt backend call telemetry. Async
	// runs scope it to their run ID.
	Calls *logging.RunLogger
}

// Runner picks the first eligible adapter for a runtime context, drives
// execution, and applies the retry/backoff policy using the classifier's
// verdict. Public methods are safe for concurrent use; concurrent runs
// share no mutable state beyond the optional token cache.
type Runner struct {
	adapters []backend.Adapter

	maxAttempts     int
	baseDelay       time.Duration
	maxDelay        time.Duration
	eventBufferSize int

	tokens *tokencache.Cache
	logger logging.Logger
	calls  *logging.RunLogger

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// New constructs a Runner over adapters in priority order.
func New(adapters []backend.Adapter, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		EventBufferSize: 64,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Calls != nil {
		opts.Calls = opts.Calls.WithComponent("runner")
	}

	return &Runner{
		adapters:        adapters,
		maxAttempts:     opts.MaxAttempts,
		baseDelay:       opts.BaseDelay,
		maxDelay:        opts.MaxDelay,
		eventBufferSize: opts.EventBufferSize,
		tokens:          opts.Tokens,
		logger:          opts.Logger,
		calls:           opts.Calls,
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// Execute runs prompt against the first eligible adapter, retrying transient
// failures with exponential backoff. Deltas already delivered through cb are
// not retracted on retry, so delivery is at-least-once across attempts;
// RunResult reflects only the final successful attempt. A triggered
// cancellation short-circuits the loop regardless of retryability. Failures
// surface as the last *classify.ClassifiedError unchanged.
func (r *Runner) Execute(
	ctx context.Context,
	prompt string,
	opts backend.RunOptions,
	rc backend.RuntimeContext,
	cb backend.Callbacks,
) (backend.RunResult, error) {
	return r.execute(ctx, prompt, opts, rc, cb, r.calls)
}

func (r *Runner) execute(
	ctx context.Context,
	prompt string,
	opts backend.RunOptions,
	rc backend.RuntimeContext,
	cb backend.Callbacks,
	calls *logging.RunLogger,
) (backend.RunResult, error) {
	adapter := r.selectAdapter(rc)
	if adapter == nil {
		return backend.RunResult{}, &classify.ClassifiedError{
			Code:    classify.CodeUnknown,
			Message: "no eligible backend for runtime context",
		}
	}
	r.logger.Debug("backend selected", "backend", adapter.Name())

	var last *classify.ClassifiedError
	authRetried := false
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := r.wait(ctx, r.backoff(attempt-1)); err != nil {
				return backend.RunResult{}, classify.Classify(err)
			}
		}
		if err := ctx.Err(); err != nil {
			return backend.RunResult{}, classify.Classify(err)
		}

		start := time.Now()
		res, err := adapter.Run(ctx, prompt, opts, rc, cb)
		if calls != nil {
			calls.LogBackendCall(adapter.Name(), attempt, time.Since(start), err)
		}
		if err == nil {
			r.logger.Debug("backend run succeeded",
				"backend", adapter.Name(), "attempt", attempt, "duration", time.Since(start))
			return res, nil
		}

		cerr := classify.Classify(err)
		last = cerr
		r.logger.Warn("backend run failed",
			"backend", adapter.Name(), "attempt", attempt, "code", string(cerr.Code), "error", cerr.Message)

		switch {
		case cerr.Code == classify.CodeCancelled:
			return backend.RunResult{}, cerr
		case cerr.Code == classify.CodeAuthError && !authRetried && attempt < r.maxAttempts-1:
			// One credential-refresh retry: drop the cached token so the
			// next attempt fetches a fresh one.
			authRetried = true
			if r.tokens != nil && rc.APIKey != "" {
				r.tokens.Invalidate(rc.APIKey)
			}
		case cerr.Retryable && attempt < r.maxAttempts-1:
			// Loop continues into the backoff wait.
		default:
			return backend.RunResult{}, cerr
		}
	}
	return backend.RunResult{}, last
}

// Run starts an asynchronous execution. Deltas arrive on the first channel
// in order; at most one terminal error arrives on the second. Both close
// when the run finishes. Cancel aborts the run by ID.
func (r *Runner) Run(
	ctx context.Context,
	prompt string,
	opts backend.RunOptions,
	rc backend.RuntimeContext,
) (string, <-chan backend.StreamDelta, <-chan error) {
	runID := backend.NewID()

	calls := r.calls
	if calls != nil {
		calls = calls.WithRun(runID)
	}

	deltas := make(chan backend.StreamDelta, r.eventBufferSize)
	errs := make(chan error, 1)

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.activeRuns, runID)
			r.mu.Unlock()
			cancel()
			close(deltas)
			close(errs)
		}()

		cb := backend.Callbacks{OnDelta: func(d backend.StreamDelta) {
			select {
			case <-runCtx.Done():
			case deltas <- d:
			}
		}}

		if _, err := r.execute(runCtx, prompt, opts, rc, cb, calls); err != nil {
			errs <- err
		}
	}()

	return runID, deltas, errs
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

func (r *Runner) selectAdapter(rc backend.RuntimeContext) backend.Adapter {
	for _, a := range r.adapters {
		if a.CanHandle(rc) {
			return a
		}
	}
	return nil
}

// backoff computes the delay before retry attempt n (zero-based), capped.
func (r *Runner) backoff(n int) time.Duration {
	d := r.baseDelay << n
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

// wait blocks for d without stalling other runs; a triggered cancellation
// interrupts it immediately.
func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
