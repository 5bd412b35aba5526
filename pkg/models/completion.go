package models

// Complexity is the caller's hint steering model selection.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityMedium   Complexity = "medium"
	ComplexityComplex  Complexity = "complex"
	ComplexityCritical Complexity = "critical"
)

// CompletionOptions control a single orchestrated completion.
type CompletionOptions struct {
	Complexity    Complexity        `json:"complexity,omitempty"`
	ForceProvider string            `json:"force_provider,omitempty"`
	Model         string            `json:"model,omitempty"`
	MaxRetries    int               `json:"max_retries,omitempty"` // 0 uses the configured value
	Scope         string            `json:"scope,omitempty"`       // tenant or agent id
	Context       map[string]string `json:"context,omitempty"`
	Category      string            `json:"category,omitempty"` // cache TTL category
	NoCache       bool              `json:"no_cache,omitempty"`

	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

// CallOptions extracts the generation parameters for a provider call.
func (o CompletionOptions) CallOptions() CallOptions {
	return CallOptions{MaxTokens: o.MaxTokens, Temperature: o.Temperature, TopP: o.TopP}
}

// AttemptError records one failed attempt.
type AttemptError struct {
	ProviderID string `json:"provider_id"`
	ModelID    string `json:"model_id,omitempty"`
	Message    string `json:"message"`
}

// CompletionResult is the outcome of an orchestrated completion.
type CompletionResult struct {
	RequestID    string         `json:"request_id"`
	Success      bool           `json:"success"`
	ProviderID   string         `json:"provider_id,omitempty"`
	ModelID      string         `json:"model_id,omitempty"`
	Text         string         `json:"text,omitempty"`
	Cost         float64        `json:"cost"`
	InputTokens  int            `json:"input_tokens,omitempty"`
	OutputTokens int            `json:"output_tokens,omitempty"`
	FromCache    bool           `json:"from_cache"`
	UsedFallback bool           `json:"used_fallback,omitempty"`
	AttemptCount int            `json:"attempt_count"`
	Errors       []AttemptError `json:"errors,omitempty"`

	// Err is the terminal error of a failed completion, for errors.Is checks.
	Err error `json:"-"`
}
