// Package registry holds the static provider and model metadata together
// with the caller for each configured provider.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/tokenwise-ai/tokenwise/pkg/config"
	"github.com/tokenwise-ai/tokenwise/pkg/logging"
	"github.com/tokenwise-ai/tokenwise/pkg/models"
	"github.com/tokenwise-ai/tokenwise/pkg/providers"
)

var (
	// ErrUnknownProvider is returned for a provider name that is not registered.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrUnknownModel is returned for a model the provider does not list.
	ErrUnknownModel = errors.New("unknown model")
)

type entry struct {
	name         string
	models       []models.ProviderModel
	defaultModel string
	caller       providers.Caller
}

// Registry is read-only after construction.
type Registry struct {
	order   []string
	entries map[string]*entry
}

// Option customizes registry construction.
type Option func(*builder)

type builder struct {
	callers    map[string]providers.Caller
	httpClient *http.Client
	logger     *zap.Logger
}

// WithCaller installs c for provider name instead of building one from config.
// A provider with an injected caller counts as configured.
func WithCaller(name string, c providers.Caller) Option {
	return func(b *builder) { b.callers[name] = c }
}

// WithHTTPClient sets the client used by HTTP-based callers.
func WithHTTPClient(c *http.Client) Option {
	return func(b *builder) { b.httpClient = c }
}

// WithLogger sets the logger used while building callers.
func WithLogger(l *zap.Logger) Option {
	return func(b *builder) { b.logger = logging.OrNop(l) }
}

// New builds a Registry from provider configs. Providers without an API key
// and without an injected caller are kept with status not-configured.
func New(ctx context.Context, cfgs []config.ProviderConfig, opts ...Option) (*Registry, error) {
	b := &builder{callers: make(map[string]providers.Caller), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}

	r := &Registry{entries: make(map[string]*entry, len(cfgs))}
	for _, pc := range cfgs {
		if _, dup := r.entries[pc.Name]; dup {
			return nil, fmt.Errorf("registry: provider %q defined twice", pc.Name)
		}

		e := &entry{name: pc.Name, defaultModel: pc.DefaultModel}
		for _, m := range pc.Models {
			m.ProviderID = pc.Name
			e.models = append(e.models, m)
		}
		sort.SliceStable(e.models, func(i, j int) bool {
			return e.models[i].PriorityRank < e.models[j].PriorityRank
		})
		if e.defaultModel == "" && len(e.models) > 0 {
			e.defaultModel = e.models[0].ModelID
		}

		if c, ok := b.callers[pc.Name]; ok {
			e.caller = c
		} else if pc.APIKey != "" {
			c, err := providers.New(ctx, pc, b.httpClient)
			if err != nil {
				return nil, fmt.Errorf("registry: %w", err)
			}
			e.caller = c
		} else {
			b.logger.Info("provider not configured", zap.String("provider", pc.Name))
		}

		r.entries[pc.Name] = e
		r.order = append(r.order, pc.Name)
	}
	return r, nil
}

// Providers returns provider names in configuration order.
func (r *Registry) Providers() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ModelsOf returns the models of provider ordered by priority rank.
func (r *Registry) ModelsOf(provider string) ([]models.ProviderModel, error) {
	e, ok := r.entries[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	out := make([]models.ProviderModel, len(e.models))
	copy(out, e.models)
	return out, nil
}

// DefaultModelOf returns the default model id of provider.
func (r *Registry) DefaultModelOf(provider string) (string, error) {
	e, ok := r.entries[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if e.defaultModel == "" {
		return "", fmt.Errorf("%w: provider %s lists no models", ErrUnknownModel, provider)
	}
	return e.defaultModel, nil
}

// StatusOf reports whether provider has a credential.
func (r *Registry) StatusOf(provider string) models.ProviderStatus {
	if e, ok := r.entries[provider]; ok && e.caller != nil {
		return models.StatusAvailable
	}
	return models.StatusNotConfigured
}

// Lookup returns the metadata of one model.
func (r *Registry) Lookup(provider, model string) (models.ProviderModel, error) {
	e, ok := r.entries[provider]
	if !ok {
		return models.ProviderModel{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	for _, m := range e.models {
		if m.ModelID == model {
			return m, nil
		}
	}
	return models.ProviderModel{}, fmt.Errorf("%w: %s/%s", ErrUnknownModel, provider, model)
}

// Caller returns the caller of provider, or nil when it is not configured.
func (r *Registry) Caller(provider string) providers.Caller {
	if e, ok := r.entries[provider]; ok {
		return e.caller
	}
	return nil
}

// Cost prices a call. Unknown models cost nothing.
func (r *Registry) Cost(provider, model string, inputTokens, outputTokens int) float64 {
	m, err := r.Lookup(provider, model)
	if err != nil {
		return 0
	}
	return m.Cost(inputTokens, outputTokens)
}

// Status returns the status of every provider.
func (r *Registry) Status() map[string]models.ProviderStatus {
	out := make(map[string]models.ProviderStatus, len(r.order))
	for _, name := range r.order {
		out[name] = r.StatusOf(name)
	}
	return out
}

// AvailableModels returns the models of every configured provider.
func (r *Registry) AvailableModels() map[string][]models.ProviderModel {
	out := make(map[string][]models.ProviderModel)
	for _, name := range r.order {
		if r.StatusOf(name) != models.StatusAvailable {
			continue
		}
		ms, _ := r.ModelsOf(name)
		out[name] = ms
	}
	return out
}

// CompareCosts prices tokens input plus tokens output tokens on every model,
// cheapest first.
func (r *Registry) CompareCosts(tokens int) []models.CostComparison {
	var out []models.CostComparison
	for _, name := range r.order {
		status := r.StatusOf(name)
		for _, m := range r.entries[name].models {
			out = append(out, models.CostComparison{
				ProviderID: name,
				ModelID:    m.ModelID,
				Tokens:     tokens,
				Cost:       m.Cost(tokens, tokens),
				Status:     status,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	return out
}
