package models

// ProviderStatus is the configuration state of a provider.
type ProviderStatus string

const (
	StatusAvailable     ProviderStatus = "available"
	StatusNotConfigured ProviderStatus = "not-configured"
)

// ProviderModel is the static metadata for one model of a provider.
type ProviderModel struct {
	ProviderID            string  `json:"provider_id" yaml:"-"`
	ModelID               string  `json:"model_id" yaml:"id"`
	MaxTokens             int     `json:"max_tokens" yaml:"max_tokens"`
	CostPerThousandInput  float64 `json:"cost_per_1k_input" yaml:"cost_per_1k_input"`
	CostPerThousandOutput float64 `json:"cost_per_1k_output" yaml:"cost_per_1k_output"`
	PriorityRank          int     `json:"priority_rank" yaml:"priority"`
	Description           string  `json:"description,omitempty" yaml:"description"`
}

// Cost returns the price of a call with the given token counts.
func (m ProviderModel) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*m.CostPerThousandInput +
		float64(outputTokens)/1000*m.CostPerThousandOutput
}

// CallOptions are the generation parameters passed to a provider.
type CallOptions struct {
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

// CallResult is what a provider returns for a single completion.
type CallResult struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// CostComparison is the estimated price of one model for a token count.
type CostComparison struct {
	ProviderID string         `json:"provider_id"`
	ModelID    string         `json:"model_id"`
	Tokens     int            `json:"tokens"`
	Cost       float64        `json:"cost"`
	Status     ProviderStatus `json:"status"`
}
