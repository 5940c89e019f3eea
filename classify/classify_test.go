package classify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_MessageRules(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      Code
		retryable bool
	}{
		{
			name: "invalid api key",
			err:  errors.New("invalid API key provided"),
			code: CodeAuthError,
		},
		{
			name: "authentication failure",
			err:  errors.New("authentication_error: invalid x-api-key"),
			code: CodeAuthError,
		},
		{
			name: "missing binary",
			err:  errors.New(`exec: "claude": executable file not found in $PATH`),
			code: CodeCliMissing,
		},
		{
			name: "shell style missing binary",
			err:  errors.New("sh: claude: command not found"),
			code: CodeCliMissing,
		},
		{
			name: "missing binary by path",
			err:  errors.New("fork/exec /usr/local/bin/claude: no such file or directory"),
			code: CodeCliMissing,
		},
		{
			name: "cancelled run",
			err:  errors.New("operation was cancelled by caller"),
			code: CodeCancelled,
		},
		{
			name:      "http 429",
			err:       errors.New("upstream status 429: too many requests"),
			code:      CodeRateLimited,
			retryable: true,
		},
		{
			name:      "rate limit text",
			err:       errors.New("rate limit exceeded, slow down"),
			code:      CodeRateLimited,
			retryable: true,
		},
		{
			name:      "timeout text",
			err:       errors.New("request timed out after 60s"),
			code:      CodeTimeout,
			retryable: true,
		},
		{
			name: "unrecognized",
			err:  errors.New("something inexplicable happened"),
			code: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, tt.err.Error(), got.Message, "original message must be preserved")
		})
	}
}

func TestClassify_SentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
	}{
		{"context canceled", context.Canceled, CodeCancelled},
		{"wrapped context canceled", fmt.Errorf("run failed: %w", context.Canceled), CodeCancelled},
		{"deadline exceeded", context.DeadlineExceeded, CodeTimeout},
		{"exec not found", fmt.Errorf("starting agent cli: %w", exec.ErrNotFound), CodeCliMissing},
		{"path does not exist", fmt.Errorf("starting agent cli: %w", &fs.PathError{Op: "fork/exec", Path: "/x/claude", Err: fs.ErrNotExist}), CodeCliMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
		})
	}
}

func TestClassify_StatusHints(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      Code
		retryable bool
	}{
		{"401 unauthorized", 401, CodeAuthError, false},
		{"403 forbidden", 403, CodeAuthError, false},
		{"429 rate limited", 429, CodeRateLimited, true},
		{"504 gateway timeout", 504, CodeTimeout, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &HintError{Err: errors.New("upstream rejected request"), StatusCode: tt.status}
			got := Classify(err)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.retryable, got.Retryable)
		})
	}
}

func TestClassify_StderrTailHint(t *testing.T) {
	err := &HintError{
		Err:    errors.New("agent cli exited: exit status 127"),
		Stderr: "sh: line 1: claude: command not found",
	}
	got := Classify(err)
	require.NotNil(t, got)
	assert.Equal(t, CodeCliMissing, got.Code)
	assert.False(t, got.Retryable)
	assert.Contains(t, got.Detail, "command not found")
}

func TestClassify_NilAndPassthrough(t *testing.T) {
	assert.Nil(t, Classify(nil))

	original := Classify(errors.New("rate limit exceeded"))
	wrapped := fmt.Errorf("attempt 2: %w", original)
	assert.Same(t, original, Classify(wrapped), "already classified errors pass through")
}

func TestClassifiedError_Unwrap(t *testing.T) {
	cause := errors.New("authentication failed")
	got := Classify(cause)
	require.NotNil(t, got)
	assert.ErrorIs(t, got, cause)
	assert.Contains(t, got.Error(), "authentication failed")
}
