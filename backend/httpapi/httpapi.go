// Package httpapi executes prompts directly against the Anthropic Messages
// API using the official client. It is the always-eligible fallback variant:
// it needs no local binary and works in any runtime context.
package httpapi

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/DefikitTeam/claude-code-container-sub005/backend"
	"github.com/DefikitTeam/claude-code-container-sub005/classify"
	"github.com/DefikitTeam/claude-code-container-sub005/logging"
)

// Options configures the HTTP API adapter.
type Options struct {
	// Model is the default when neither RunOptions nor RuntimeContext name one.
	Model anthropic.Model
	// MaxTokens is the default generation cap.
	MaxTokens int64
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	// Logger receives per-run diagnostics.
	Logger logging.Logger
}

// Adapter streams Messages API responses behind the backend.Adapter contract.
type Adapter struct {
	client *anthropic.Client
	opts   Options
}

// New constructs the adapter; the client is built per run from the runtime
// context's API key.
func New(optFns ...func(o *Options)) *Adapter {
	opts := Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 4096,
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Adapter{opts: opts}
}

// NewFromClient constructs the adapter around an existing client, bypassing
// per-run client construction. Useful for tests and custom transports.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Adapter {
	a := New(optFns...)
	a.client = client
	return a
}

// Name identifies the variant.
func (a *Adapter) Name() string { return "http-api" }

// CanHandle always accepts; this variant is the fallback of last resort.
func (a *Adapter) CanHandle(backend.RuntimeContext) bool { return true }

// Run opens a streaming Messages session and forwards text deltas through
// the shared stream loop. API failures keep their HTTP status as a
// classification hint.
func (a *Adapter) Run(
	ctx context.Context,
	prompt string,
	opts backend.RunOptions,
	rc backend.RuntimeContext,
	cb backend.Callbacks,
) (backend.RunResult, error) {
	client := a.client
	if client == nil {
		var clientOpts []option.RequestOption
		if rc.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(rc.APIKey))
		}
		if a.opts.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(a.opts.BaseURL))
		}
		c := anthropic.NewClient(clientOpts...)
		client = &c
	}

	params := anthropic.MessageNewParams{
		Model:     a.resolveModel(opts, rc),
		MaxTokens: a.resolveMaxTokens(opts),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
	}

	stream := client.Messages.NewStreaming(ctx, params)

	messages := make(chan backend.Message, 32)
	var transportErr error
	go func() {
		defer close(messages)
		for stream.Next() {
			msg := convertEvent(stream.Current())
			select {
			case <-ctx.Done():
				return
			case messages <- msg:
			}
		}
		transportErr = stream.Err()
	}()

	res, err := backend.ConsumeStream(ctx, messages, cb)
	if err != nil {
		return backend.RunResult{}, err
	}
	// transportErr is written before messages closes; the close is the
	// happens-before edge making this read safe.
	if transportErr != nil {
		var apierr *anthropic.Error
		if errors.As(transportErr, &apierr) {
			return backend.RunResult{}, &classify.HintError{Err: transportErr, StatusCode: apierr.StatusCode}
		}
		return backend.RunResult{}, transportErr
	}
	return res, nil
}

// convertEvent maps one SDK stream event onto the backend message union.
// Only text deltas carry caller-visible output; everything else is the
// explicit unrecognized variant.
func convertEvent(event anthropic.MessageStreamEventUnion) backend.Message {
	switch ev := event.AsAny().(type) {
	case anthropic.ContentBlockDeltaEvent:
		if ev.Delta.Type == "text_delta" {
			return backend.TextMessage{Text: ev.Delta.Text}
		}
	}
	return backend.UnknownMessage{}
}

func (a *Adapter) resolveModel(opts backend.RunOptions, rc backend.RuntimeContext) anthropic.Model {
	if opts.Model != "" {
		return anthropic.Model(opts.Model)
	}
	if rc.Model != "" {
		return anthropic.Model(rc.Model)
	}
	return a.opts.Model
}

func (a *Adapter) resolveMaxTokens(opts backend.RunOptions) int64 {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return a.opts.MaxTokens
}
