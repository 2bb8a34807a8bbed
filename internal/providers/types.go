// Package providers defines the generative-language backend contract and
// its concrete implementations. The delivery pipeline depends only on the
// Backend interface; tests inject fakes.
package providers

import (
	"context"
	"errors"
	"strings"
)

// ErrQuotaExhausted is the distinguished backend failure for rate/resource
// limits. It triggers the demo-card shortcut in the fallback chain.
var ErrQuotaExhausted = errors.New("backend quota exhausted")

// StreamEvent is one event from a backend invocation stream.
type StreamEvent struct {
	Text        string // content carried by this event
	Final       bool   // marks the backend's final response text
	ToolInvoked bool   // the backend executed a delivery tool itself
}

// InvokeRequest is the input for one backend invocation.
type InvokeRequest struct {
	UserID    string
	SessionID string
	Prompt    string
}

// Backend is the black-box generative-language service. EnsureSession must
// be idempotent: "already exists" is not an error. Invoke streams events via
// the callback and returns after the stream ends.
type Backend interface {
	EnsureSession(ctx context.Context, userID, sessionID string) error
	Invoke(ctx context.Context, req InvokeRequest, onEvent func(StreamEvent)) error
}

// IsQuotaExhausted reports whether err carries the backend's rate/resource
// limit signal.
func IsQuotaExhausted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExhausted) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "RESOURCE_EXHAUSTED") || strings.Contains(s, "429")
}
