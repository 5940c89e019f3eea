// Package claudecode provides a high-level façade over the runner and the
// backend adapters, enabling one-call construction of the execution layer.
// Most applications interact with this package by:
//  1. Creating an Executor via New() (optionally overriding the adapter
//     chain, the credential generator or the logger)
//  2. Executing prompts synchronously (Execute) or asynchronously (Run)
//  3. Cancelling in-flight runs by ID (Cancel)
//
// The façade delegates coordination to runner.Runner while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a structured logger and
// a credential generator backed by a real token issuer.
package claudecode

import (
	"context"
	"time"

	"github.com/DefikitTeam/claude-code-container-sub005/backend"
	"github.com/DefikitTeam/claude-code-container-sub005/backend/agentcli"
	"github.com/DefikitTeam/claude-code-container-sub005/backend/httpapi"
	"github.com/DefikitTeam/claude-code-container-sub005/logging"
	"github.com/DefikitTeam/claude-code-container-sub005/runner"
	"github.com/DefikitTeam/claude-code-container-sub005/tokencache"
)

// Options configures the Executor.
type Options struct {
	// Adapters overrides the default chain (agent CLI first, HTTP API as
	// the always-eligible fallback). Order is priority order.
	Adapters []backend.Adapter

	// TokenGenerator, when set, enables the credential cache; the runner
	// invalidates it on auth failures so retries fetch fresh tokens.
	TokenGenerator tokencache.Generator

	// TokenSweepInterval, when positive together with TokenGenerator,
	// starts a background sweep evicting credentials past their raw expiry.
	TokenSweepInterval time.Duration

	// MaxAttempts bounds the retry loop, counting the first attempt.
	MaxAttempts int

	// BaseDelay is the exponential backoff base between attempts.
	BaseDelay time.Duration

	// Logger receives diagnostics from every layer.
	Logger logging.Logger

	// Calls, when set, records per-attempt backend call telemetry through
	// the runner; async runs scope entries to their run ID.
	Calls *logging.RunLogger
}

// Executor bundles the runner, the default adapter chain and the optional
// credential cache behind a minimal surface.
type Executor struct {
	runner *runner.Runner
	tokens *tokencache.Cache
	logger logging.Logger
}

// New constructs an Executor with optional overrides.
func New(optFns ...func(o *Options)) *Executor {
	opts := Options{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Adapters == nil {
		opts.Adapters = []backend.Adapter{
			agentcli.New(func(o *agentcli.Options) { o.Logger = opts.Logger }),
			httpapi.New(func(o *httpapi.Options) { o.Logger = opts.Logger }),
		}
	}

	var tokens *tokencache.Cache
	if opts.TokenGenerator != nil {
		tokens = tokencache.New(opts.TokenGenerator, func(o *tokencache.Options) {
			o.Logger = opts.Logger
		})
	}

	r := runner.New(opts.Adapters, func(o *runner.Options) {
		o.MaxAttempts = opts.MaxAttempts
		o.BaseDelay = opts.BaseDelay
		o.Tokens = tokens
		o.Logger = opts.Logger
		o.Calls = opts.Calls
	})

	ex := &Executor{runner: r, tokens: tokens, logger: opts.Logger}
	if tokens != nil && opts.TokenSweepInterval > 0 {
		tokens.StartSweeper(context.Background(), opts.TokenSweepInterval)
	}
	return ex
}

// Execute runs a prompt synchronously, streaming deltas through cb.
func (e *Executor) Execute(
	ctx context.Context,
	prompt string,
	opts backend.RunOptions,
	rc backend.RuntimeContext,
	cb backend.Callbacks,
) (backend.RunResult, error) {
	return e.runner.Execute(ctx, prompt, opts, rc, cb)
}

// Run starts an asynchronous run; deltas and at most one terminal error
// arrive on the returned channels, both closed on completion.
func (e *Executor) Run(
	ctx context.Context,
	prompt string,
	opts backend.RunOptions,
	rc backend.RuntimeContext,
) (string, <-chan backend.StreamDelta, <-chan error) {
	return e.runner.Run(ctx, prompt, opts, rc)
}

// Cancel aborts an in-flight run by ID.
func (e *Executor) Cancel(runID string) error {
	return e.runner.Cancel(runID)
}

// Tokens exposes the credential cache, or nil when no generator was
// configured.
func (e *Executor) Tokens() *tokencache.Cache {
	return e.tokens
}
