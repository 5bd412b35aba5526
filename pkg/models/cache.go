package models

import "time"

// CacheEntry is a single response held by the in-memory cache.
type CacheEntry struct {
	Key            string        `json:"key"`
	Value          any           `json:"value"`
	Category       string        `json:"category,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	TTL            time.Duration `json:"ttl"`
	SizeBytes      int64         `json:"size_bytes"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
}

// Expired reports whether the entry is no longer visible at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) >= e.TTL
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	HitRate          string  `json:"hit_rate"`
	Hits             int64   `json:"hits"`
	Misses           int64   `json:"misses"`
	Entries          int     `json:"entries"`
	MemoryBytes      int64   `json:"memory_bytes"`
	MemoryUsage      string  `json:"memory_usage"`
	Evictions        int64   `json:"evictions"`
	EstimatedSavings float64 `json:"estimated_savings"`
}

// CachedCompletion is the payload stored for a successful completion.
type CachedCompletion struct {
	ProviderID   string  `json:"provider_id"`
	ModelID      string  `json:"model_id"`
	Text         string  `json:"text"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}
