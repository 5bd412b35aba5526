package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all tokenwise configuration.
type Config struct {
	DBPath       string             `yaml:"db_path"`
	Log          LogConfig          `yaml:"log"`
	Providers    []ProviderConfig   `yaml:"providers"`
	Selector     SelectorConfig     `yaml:"selector"`
	Cache        CacheConfig        `yaml:"cache"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	Budget       BudgetConfig       `yaml:"budget"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// LogConfig selects the zap level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// ProviderConfig defines an upstream LLM provider and its models.
// Type is "openai" (OpenAI-compatible, default), "anthropic" or "gemini".
// A provider without an api_key is reported as not-configured.
type ProviderConfig struct {
	Name         string                 `yaml:"name"`
	Type         string                 `yaml:"type"`
	URL          string                 `yaml:"url"`
	APIKey       string                 `yaml:"api_key"`
	DefaultModel string                 `yaml:"default_model"`
	Models       []models.ProviderModel `yaml:"models"`
}

// RouteTarget identifies a specific provider and model.
type RouteTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// SelectorConfig is the static model selection table.
type SelectorConfig struct {
	Primary  string      `yaml:"primary"`
	Fallback RouteTarget `yaml:"fallback"`
	// Complexity maps a hint ("simple", "critical", ...) to a model of the
	// primary provider, overriding the cost-derived defaults.
	Complexity map[string]string `yaml:"complexity"`
}

// CacheConfig controls the in-memory response cache.
type CacheConfig struct {
	Enabled             bool                     `yaml:"enabled"`
	MaxBytes            int64                    `yaml:"max_bytes"`
	DefaultTTL          time.Duration            `yaml:"default_ttl"`
	Categories          map[string]time.Duration `yaml:"categories"`
	AverageCostPerCall  float64                  `yaml:"average_cost_per_call"`
	SimilarityThreshold float64                  `yaml:"similarity_threshold"`
}

// RateLimitConfig is the fixed window applied to every provider.
type RateLimitConfig struct {
	Window time.Duration `yaml:"window"`
	Limit  int           `yaml:"limit"`
}

// OrchestratorConfig controls retries and timeouts.
type OrchestratorConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// LedgerConfig controls the sqlite usage ledger.
type LedgerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BudgetConfig controls spend enforcement.
type BudgetConfig struct {
	Enabled  bool                  `yaml:"enabled"`
	Policies []models.BudgetPolicy `yaml:"policies"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns a Config with the reference providers and limits.
// API keys are read from GEMINI_API_KEY, GROQ_API_KEY, OPENAI_API_KEY and
// ANTHROPIC_API_KEY.
func Default() *Config {
	return &Config{
		DBPath: "tokenwise.db",
		Log:    LogConfig{Level: "info", Format: "json"},
		Providers: []ProviderConfig{
			{
				Name:         "gemini",
				Type:         "gemini",
				APIKey:       os.Getenv("GEMINI_API_KEY"),
				DefaultModel: "gemini-1.5-flash",
				Models: []models.ProviderModel{
					{ModelID: "gemini-1.5-flash", MaxTokens: 8192, CostPerThousandInput: 0.000075, CostPerThousandOutput: 0.0003, PriorityRank: 1, Description: "Fast, cost-efficient model for routine tasks"},
					{ModelID: "gemini-1.5-pro", MaxTokens: 8192, CostPerThousandInput: 0.00125, CostPerThousandOutput: 0.005, PriorityRank: 2, Description: "High quality reasoning for complex tasks"},
				},
			},
			{
				Name:         "groq",
				Type:         "openai",
				URL:          "https://api.groq.com/openai",
				APIKey:       os.Getenv("GROQ_API_KEY"),
				DefaultModel: "llama-3.1-8b-instant",
				Models: []models.ProviderModel{
					{ModelID: "llama-3.1-8b-instant", MaxTokens: 8192, CostPerThousandInput: 0.00005, CostPerThousandOutput: 0.00008, PriorityRank: 1, Description: "Very fast low-cost inference"},
					{ModelID: "llama-3.3-70b-versatile", MaxTokens: 32768, CostPerThousandInput: 0.00059, CostPerThousandOutput: 0.00079, PriorityRank: 2, Description: "Larger open model"},
				},
			},
			{
				Name:         "openai",
				Type:         "openai",
				URL:          "https://api.openai.com",
				APIKey:       os.Getenv("OPENAI_API_KEY"),
				DefaultModel: "gpt-4o-mini",
				Models: []models.ProviderModel{
					{ModelID: "gpt-4o-mini", MaxTokens: 16384, CostPerThousandInput: 0.00015, CostPerThousandOutput: 0.0006, PriorityRank: 1, Description: "Small, affordable general model"},
					{ModelID: "gpt-4o", MaxTokens: 16384, CostPerThousandInput: 0.0025, CostPerThousandOutput: 0.01, PriorityRank: 2, Description: "Flagship multimodal model"},
				},
			},
			{
				Name:         "anthropic",
				Type:         "anthropic",
				URL:          "https://api.anthropic.com",
				APIKey:       os.Getenv("ANTHROPIC_API_KEY"),
				DefaultModel: "claude-3-5-haiku-latest",
				Models: []models.ProviderModel{
					{ModelID: "claude-3-5-haiku-latest", MaxTokens: 8192, CostPerThousandInput: 0.0008, CostPerThousandOutput: 0.004, PriorityRank: 1, Description: "Fast Claude model"},
					{ModelID: "claude-3-5-sonnet-latest", MaxTokens: 8192, CostPerThousandInput: 0.003, CostPerThousandOutput: 0.015, PriorityRank: 2, Description: "Balanced Claude model"},
				},
			},
		},
		Selector: SelectorConfig{
			Primary:  "gemini",
			Fallback: RouteTarget{Provider: "groq", Model: "llama-3.1-8b-instant"},
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxBytes:   50 << 20,
			DefaultTTL: time.Hour,
			Categories: map[string]time.Duration{
				"specialist-response": 24 * time.Hour,
				"general-response":    time.Hour,
				"real-time-data":      5 * time.Minute,
			},
			AverageCostPerCall:  0.002,
			SimilarityThreshold: 0.85,
		},
		RateLimit: RateLimitConfig{
			Window: time.Minute,
			Limit:  100,
		},
		Orchestrator: OrchestratorConfig{
			MaxRetries:   2,
			CallTimeout:  30 * time.Second,
			RetryBackoff: 250 * time.Millisecond,
		},
		Ledger: LedgerConfig{Enabled: true},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Provider returns the provider with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Validate checks cross references between sections.
func (c *Config) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, errors.New("provider with empty name"))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("provider %q defined twice", p.Name))
		}
		seen[p.Name] = true
		for _, m := range p.Models {
			if m.ModelID == "" {
				errs = append(errs, fmt.Errorf("provider %q: model with empty id", p.Name))
			}
		}
		if p.DefaultModel != "" && !hasModel(p, p.DefaultModel) {
			errs = append(errs, fmt.Errorf("provider %q: default model %q not listed", p.Name, p.DefaultModel))
		}
	}

	primary, ok := c.Provider(c.Selector.Primary)
	if !ok {
		errs = append(errs, fmt.Errorf("selector: unknown primary provider %q", c.Selector.Primary))
	} else {
		for hint, model := range c.Selector.Complexity {
			if !hasModel(primary, model) {
				errs = append(errs, fmt.Errorf("selector: complexity %q maps to unknown model %q", hint, model))
			}
		}
	}
	if fb := c.Selector.Fallback; fb.Provider != "" {
		p, ok := c.Provider(fb.Provider)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("selector: unknown fallback provider %q", fb.Provider))
		case fb.Model != "" && !hasModel(p, fb.Model):
			errs = append(errs, fmt.Errorf("selector: unknown fallback model %q", fb.Model))
		}
	}

	if c.RateLimit.Limit < 0 {
		errs = append(errs, errors.New("rate_limit: limit must not be negative"))
	}
	if c.RateLimit.Limit > 0 && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit: window must be positive"))
	}
	if c.Orchestrator.MaxRetries < 0 {
		errs = append(errs, errors.New("orchestrator: max_retries must not be negative"))
	}
	if c.Cache.MaxBytes < 0 {
		errs = append(errs, errors.New("cache: max_bytes must not be negative"))
	}
	if t := c.Cache.SimilarityThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("cache: similarity_threshold %v outside [0,1]", t))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func hasModel(p ProviderConfig, model string) bool {
	for _, m := range p.Models {
		if m.ModelID == model {
			return true
		}
	}
	return false
}
