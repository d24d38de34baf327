// Package provider sends a single prompt to a hosted model and returns its
// reply text. Backends: OpenAI (and compatible servers), Anthropic, Google.
package provider

import (
	"context"
	"time"
)

// Provider is one model backend.
type Provider interface {
	// Query returns the complete reply for req.Prompt.
	// Failures are reported as *AuthError, *TransportError or *ServiceError.
	Query(ctx context.Context, req Request) (Response, error)
}

// Request is a single-turn completion request.
type Request struct {
	Model  string
	Prompt string

	// Temperature and MaxTokens are sent as-is; zero MaxTokens lets the
	// backend pick its own cap.
	Temperature float64
	MaxTokens   int
}

// Response is the reply to a Request. Content may be empty when the service
// answered without any text.
type Response struct {
	Model    string        `json:"model"`
	Content  string        `json:"content"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency_ns"`
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Response, error)

// Query calls f.
func (f ProviderFunc) Query(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
