// Package providers holds the upstream LLM callers. Every vendor implements
// Caller; the registry picks the implementation by provider name.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tokenwise-ai/tokenwise/pkg/config"
	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

// Caller performs one completion against a provider.
// Implementations must honor ctx cancellation.
type Caller interface {
	Call(ctx context.Context, model, prompt string, opts models.CallOptions) (*models.CallResult, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, model, prompt string, opts models.CallOptions) (*models.CallResult, error)

// Call implements Caller.
func (f CallerFunc) Call(ctx context.Context, model, prompt string, opts models.CallOptions) (*models.CallResult, error) {
	return f(ctx, model, prompt, opts)
}

var (
	// ErrNotConfigured is returned when a provider has no API key.
	ErrNotConfigured = errors.New("provider not configured")
	// ErrMalformedResponse is returned when a provider answers without usable text.
	ErrMalformedResponse = errors.New("malformed provider response")
)

// ProviderError is a failed call to an upstream provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

const defaultHTTPTimeout = 60 * time.Second

// New builds the Caller for a configured provider.
func New(ctx context.Context, pc config.ProviderConfig, client *http.Client) (Caller, error) {
	if pc.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", pc.Name, ErrNotConfigured)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	switch pc.Type {
	case "", "openai":
		return NewOpenAI(pc.Name, pc.URL, pc.APIKey, client), nil
	case "anthropic":
		return NewAnthropic(pc.Name, pc.URL, pc.APIKey, client), nil
	case "gemini":
		return NewGemini(ctx, pc.Name, pc.URL, pc.APIKey, client)
	default:
		return nil, fmt.Errorf("provider %q: unsupported type %q", pc.Name, pc.Type)
	}
}
