// Package agentcli executes prompts through the agent CLI as a subprocess.
// The child emits newline-delimited JSON messages on stdout; each line is
// decoded through the backend message union and streamed to the caller. The
// child's environment is constructed explicitly from the runtime context and
// passed to the spawn call; the adapter never mutates process-global state.
package agentcli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/DefikitTeam/claude-code-container-sub005/backend"
	"github.com/DefikitTeam/claude-code-container-sub005/classify"
	"github.com/DefikitTeam/claude-code-container-sub005/logging"
)

const (
	defaultBinary     = "claude"
	stderrTailBytes   = 4096
	stdoutBufferBytes = 4 << 20
)

// Options configures the agent CLI adapter.
type Options struct {
	// Binary is the executable to spawn.
	Binary string
	// ExtraArgs are appended after the standard streaming flags.
	ExtraArgs []string
	// Timeout bounds a single run; zero means no adapter-imposed deadline.
	Timeout time.Duration
	// Logger receives per-run diagnostics.
	Logger logging.Logger
}

// Adapter runs prompts through the agent CLI subprocess.
type Adapter struct {
	opts Options
}

// New constructs the adapter with optional overrides.
func New(optFns ...func(o *Options)) *Adapter {
	opts := Options{
		Binary: defaultBinary,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Adapter{opts: opts}
}

// Name identifies the variant.
func (a *Adapter) Name() string { return "agent-cli" }

// CanHandle declines when the agent path is explicitly disabled, when the
// caller forces the HTTP API, or when the process runs with elevated
// privileges; spawning the agent subprocess as root is unsafe here.
func (a *Adapter) CanHandle(rc backend.RuntimeContext) bool {
	if rc.DisableAgent || rc.ForceHTTPAPI || rc.RunningAsRoot {
		return false
	}
	return true
}

// Run spawns the agent CLI and streams its stdout messages. A missing
// binary surfaces as a start error the classifier maps to CodeCliMissing;
// a nonzero exit carries the captured stderr tail as a classification hint.
func (a *Adapter) Run(
	ctx context.Context,
	prompt string,
	opts backend.RunOptions,
	rc backend.RuntimeContext,
	cb backend.Callbacks,
) (backend.RunResult, error) {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, a.opts.Binary, a.buildArgs(prompt, opts, rc)...)
	cmd.Env = buildEnv(rc)
	if opts.WorkspacePath != "" {
		cmd.Dir = opts.WorkspacePath
	}

	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return backend.RunResult{}, fmt.Errorf("opening stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return backend.RunResult{}, fmt.Errorf("starting %s: %w", a.opts.Binary, err)
	}
	a.opts.Logger.Debug("agent cli started", "binary", a.opts.Binary, "pid", cmd.Process.Pid)

	messages := make(chan backend.Message, 16)
	var scanErr error
	go func() {
		defer close(messages)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), stdoutBufferBytes)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			msg := backend.DecodeMessage(line)
			select {
			case <-ctx.Done():
				return
			case messages <- msg:
			}
		}
		scanErr = scanner.Err()
	}()

	res, runErr := backend.ConsumeStream(ctx, messages, cb)
	// scanErr is written before messages closes; a clean ConsumeStream return
	// happens after the close, making this read safe. A scanner abort (for
	// example a line exceeding the buffer) must not pass for normal stream
	// completion: the child may still be writing into an unread pipe.
	if runErr == nil && scanErr != nil {
		runErr = fmt.Errorf("reading agent cli stdout: %w", scanErr)
	}
	if runErr != nil {
		// The stream failed or was cancelled; reap the child before returning.
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return backend.RunResult{}, runErr
	}

	if err := cmd.Wait(); err != nil {
		return backend.RunResult{}, &classify.HintError{
			Err:    fmt.Errorf("agent cli exited: %w", err),
			Stderr: stderr.String(),
		}
	}
	return res, nil
}

func (a *Adapter) buildArgs(prompt string, opts backend.RunOptions, rc backend.RuntimeContext) []string {
	args := []string{"--print", "--output-format", "stream-json", "--verbose"}
	if model := resolveModel(opts, rc); model != "" {
		args = append(args, "--model", model)
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.SystemPrompt)
	}
	args = append(args, a.opts.ExtraArgs...)
	return append(args, prompt)
}

func resolveModel(opts backend.RunOptions, rc backend.RuntimeContext) string {
	if opts.Model != "" {
		return opts.Model
	}
	return rc.Model
}

// buildEnv assembles the child environment from the runtime context alone.
// The credential rides in explicitly; nothing is inherited implicitly.
func buildEnv(rc backend.RuntimeContext) []string {
	merged := make(map[string]string, len(rc.Env)+2)
	for k, v := range rc.Env {
		merged[k] = v
	}
	if rc.APIKey != "" {
		merged["ANTHROPIC_API_KEY"] = rc.APIKey
	}
	if rc.Model != "" {
		merged["ANTHROPIC_MODEL"] = rc.Model
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}

// tailBuffer keeps the last n bytes written, used to capture a stderr tail
// without unbounded growth.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(bytes.TrimSpace(t.buf))
}
