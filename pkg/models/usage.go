package models

import "time"

// UsageStats is a snapshot of the in-memory accountant.
// The figures are advisory; the ledger is the durable record.
type UsageStats struct {
	TotalCalls    int64     `json:"total_calls"`
	ProviderCalls int64     `json:"provider_calls"`
	Successes     int64     `json:"successes"`
	Failures      int64     `json:"failures"`
	TotalCost     float64   `json:"total_cost"`
	CacheHits     int64     `json:"cache_hits"`
	CacheMisses   int64     `json:"cache_misses"`
	FallbackCount int64     `json:"fallback_count"`
	Since         time.Time `json:"since"`
}

// UsageRecord is one successful provider call persisted in the ledger.
type UsageRecord struct {
	ID           int64     `json:"id"`
	RequestID    string    `json:"request_id"`
	Scope        string    `json:"scope,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Fallback     bool      `json:"fallback"`
	CreatedAt    time.Time `json:"created_at"`
}

// UsageSummary aggregates ledger rows by scope, provider and model.
type UsageSummary struct {
	Scope        string  `json:"scope"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	RequestCount int     `json:"request_count"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"`
	Fallbacks    int     `json:"fallbacks"`
}

// ManagerStats bundles everything the introspection surface reports.
type ManagerStats struct {
	Usage      UsageStats            `json:"usage"`
	Cache      CacheStats            `json:"cache"`
	RateLimits map[string]RateWindow `json:"rate_limits"`
}

// RateWindow is the current fixed window of one provider.
type RateWindow struct {
	Count   int       `json:"count"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}
