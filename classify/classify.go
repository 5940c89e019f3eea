package classify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
)

// Code identifies one member of the closed failure taxonomy shared by all
// backends. Backends raise heterogeneously shaped failures for the same
// logical condition; classification over message content and structured
// hints lets the runner apply a single retry policy uniformly.
type Code string

const (
	// CodeAuthError indicates an invalid or missing API key.
	CodeAuthError Code = "auth_error"
	// CodeCliMissing indicates the execution binary could not be found.
	CodeCliMissing Code = "cli_missing"
	// CodeCancelled indicates the run was cancelled by the caller.
	CodeCancelled Code = "cancelled"
	// CodeRateLimited indicates the backend rejected the request with HTTP 429.
	CodeRateLimited Code = "rate_limited"
	// CodeTimeout indicates the operation exceeded its deadline.
	CodeTimeout Code = "timeout"
	// CodeUnknown is the fallback for unrecognized failures.
	CodeUnknown Code = "unknown"
)

// ClassifiedError is a normalized failure descriptor. The original message is
// preserved verbatim for diagnostics; Retryable is the sole input to the
// runner's retry decision.
type ClassifiedError struct {
	Code      Code
	Retryable bool
	Message   string
	Detail    string
	cause     error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the original failure for errors.Is/As chains.
func (e *ClassifiedError) Unwrap() error { return e.cause }

// HintError attaches structured hints (an HTTP status code, a captured stderr
// tail) to a raw failure so classification does not depend on message text
// alone. Adapters wrap transport and process failures with it.
type HintError struct {
	Err        error
	StatusCode int
	Stderr     string
}

// Error implements the error interface.
func (e *HintError) Error() string { return e.Err.Error() }

// Unwrap exposes the wrapped failure.
func (e *HintError) Unwrap() error { return e.Err }

// rule is one ordered classification rule. Rules are evaluated first match
// wins over the lowercased message text, the structured status hint, and
// sentinel error identity.
type rule struct {
	code      Code
	retryable bool
	statuses  []int
	sentinels []error
	needles   []string
}

var rules = []rule{
	{
		code:      CodeAuthError,
		statuses:  []int{401, 403},
		needles:   []string{"invalid api key", "missing api key", "api key", "authentication", "unauthorized", "invalid x-api-key"},
	},
	{
		code:      CodeCliMissing,
		sentinels: []error{exec.ErrNotFound, fs.ErrNotExist},
		needles:   []string{"executable file not found", "command not found", "no such binary", "no such file or directory", "enoent"},
	},
	{
		code:      CodeCancelled,
		sentinels: []error{context.Canceled},
		needles:   []string{"cancel", "abort"},
	},
	{
		code:      CodeRateLimited,
		retryable: true,
		statuses:  []int{429},
		needles:   []string{"rate limit", "too many requests", "429"},
	},
	{
		code:      CodeTimeout,
		retryable: true,
		statuses:  []int{408, 504},
		sentinels: []error{context.DeadlineExceeded},
		needles:   []string{"timeout", "timed out", "deadline exceeded"},
	},
}

// Classify maps a raw failure to its ClassifiedError. It is pure and total:
// a nil error yields nil, anything unrecognized yields CodeUnknown with
// Retryable=false. Already-classified errors pass through unchanged.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var already *ClassifiedError
	if errors.As(err, &already) {
		return already
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	var detail string
	var status int
	var hint *HintError
	if errors.As(err, &hint) {
		status = hint.StatusCode
		detail = hint.Stderr
	}

	for _, r := range rules {
		if r.matches(err, lower, status, detail) {
			return &ClassifiedError{
				Code:      r.code,
				Retryable: r.retryable,
				Message:   msg,
				Detail:    detail,
				cause:     err,
			}
		}
	}

	return &ClassifiedError{Code: CodeUnknown, Message: msg, Detail: detail, cause: err}
}

func (r rule) matches(err error, lower string, status int, detail string) bool {
	for _, s := range r.statuses {
		if status == s {
			return true
		}
	}
	for _, sentinel := range r.sentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	haystacks := lower
	if detail != "" {
		haystacks += "\n" + strings.ToLower(detail)
	}
	for _, n := range r.needles {
		if strings.Contains(haystacks, n) {
			return true
		}
	}
	return false
}
