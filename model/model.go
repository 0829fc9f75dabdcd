package model

import (
	"context"
	"fmt"
)

// Request captures the normalized completion input.
type Request struct {
	// Prompt is the user-role message content.
	Prompt string `json:"prompt"`
	// Role is the system instruction framing the completion.
	Role string `json:"role"`
	// Temperature controls sampling randomness.
	Temperature float64 `json:"temperature"`
	// MaxTokens caps the completion length.
	MaxTokens int64 `json:"max_tokens"`
}

// Completer turns a prompt into a text completion. Implementations wrap any
// failure (timeout, non-2xx status, malformed response) in a
// *CompletionError so callers can branch with errors.As. The memory engine
// never retries a completion; retry policy belongs to the calling agent
// layer.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompletionError reports a failed completion call, identifying the provider
// for the calling agent layer.
type CompletionError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s completion failed: %v", e.Provider, e.Err)
}

// Unwrap exposes the provider SDK's underlying error.
func (e *CompletionError) Unwrap() error { return e.Err }
