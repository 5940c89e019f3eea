package backend

import (
	"context"
	"os"
	"strconv"

	"github.com/google/uuid"
)

// RuntimeContext carries the caller-supplied execution environment for one
// run. It is immutable per run and copied by value throughout.
type RuntimeContext struct {
	// APIKey authenticates against the backend and keys the credential cache.
	APIKey string
	// Model is the default model when RunOptions does not name one.
	Model string
	// Env is the explicit environment mapping handed to spawned processes.
	// It is passed directly to the spawn call; no process-global state is
	// mutated.
	Env map[string]string
	// DisableAgent excludes the agent CLI variant from selection.
	DisableAgent bool
	// ForceHTTPAPI forces the HTTP API variant regardless of other flags.
	ForceHTTPAPI bool
	// RunningAsRoot marks elevated privileges; spawning the agent subprocess
	// as root is unsafe in this deployment model.
	RunningAsRoot bool
}

// NewRuntimeContextFromEnv builds a RuntimeContext from an explicit
// environment map. The process's effective UID decides RunningAsRoot.
func NewRuntimeContextFromEnv(env map[string]string) RuntimeContext {
	copied := make(map[string]string, len(env))
	for k, v := range env {
		copied[k] = v
	}
	return RuntimeContext{
		APIKey:        env["ANTHROPIC_API_KEY"],
		Model:         env["ANTHROPIC_MODEL"],
		Env:           copied,
		DisableAgent:  envBool(env["DISABLE_AGENT_SDK"]),
		ForceHTTPAPI:  envBool(env["FORCE_HTTP_API"]),
		RunningAsRoot: os.Geteuid() == 0,
	}
}

func envBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// RunOptions are per-run tuning knobs, immutable for the duration of a run.
type RunOptions struct {
	// Model overrides RuntimeContext.Model when set.
	Model string
	// WorkspacePath is the working directory for backends that honor one.
	WorkspacePath string
	// SystemPrompt is prepended as the system instruction when supported.
	SystemPrompt string
	// MaxTokens caps generation length; 0 means the adapter default.
	MaxTokens int64
}

// StreamDelta is one incremental chunk of generated text. It is transient
// and not retained beyond the callback invocation.
type StreamDelta struct {
	Text string
}

// Callbacks receives streamed output during a run. OnDelta may be nil;
// when set it is invoked zero or more times, in strict arrival order.
type Callbacks struct {
	OnDelta func(StreamDelta)
}

// RunResult is the terminal value of a run: the concatenation of all deltas
// in arrival order. FullText may be empty on a legitimately empty stream.
type RunResult struct {
	FullText string
}

// Adapter is a strategy implementing prompt execution against one specific
// backend. Adapters are consulted in a fixed priority order by the runner.
type Adapter interface {
	// Name identifies the variant in logs and errors.
	Name() string
	// CanHandle is a pure predicate over the runtime context.
	CanHandle(rc RuntimeContext) bool
	// Run executes the prompt, forwarding streamed chunks through cb and
	// returning the accumulated full text. Cancellation is observed
	// cooperatively at stream-message boundaries.
	Run(ctx context.Context, prompt string, opts RunOptions, rc RuntimeContext, cb Callbacks) (RunResult, error)
}

// NewID returns a unique run identifier.
func NewID() string { return uuid.NewString() }
