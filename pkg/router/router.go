// Package router picks the provider and model for a completion.
package router

import (
	"fmt"

	"github.com/tokenwise-ai/tokenwise/pkg/config"
	"github.com/tokenwise-ai/tokenwise/pkg/models"
	"github.com/tokenwise-ai/tokenwise/pkg/registry"
)

// Route represents a resolved provider and model to try.
type Route struct {
	Provider string
	Model    string
}

func (r Route) String() string {
	return r.Provider + "/" + r.Model
}

// Catalog is the part of the registry the selector reads.
type Catalog interface {
	ModelsOf(provider string) ([]models.ProviderModel, error)
	DefaultModelOf(provider string) (string, error)
	Lookup(provider, model string) (models.ProviderModel, error)
}

// Selector maps a complexity hint to a route on the primary provider.
type Selector struct {
	catalog  Catalog
	primary  string
	fallback config.RouteTarget
	table    map[models.Complexity]string
}

// New creates a Selector from the selector section of the configuration.
func New(catalog Catalog, cfg config.SelectorConfig) *Selector {
	table := make(map[models.Complexity]string, len(cfg.Complexity))
	for hint, model := range cfg.Complexity {
		table[models.Complexity(hint)] = model
	}
	return &Selector{
		catalog:  catalog,
		primary:  cfg.Primary,
		fallback: cfg.Fallback,
		table:    table,
	}
}

// Primary returns the primary provider name.
func (s *Selector) Primary() string {
	return s.primary
}

// Select resolves the route for hint. A forced provider wins over the table
// and uses opts.Model or its default model. Simple and medium hints take the
// cheapest primary model, complex and critical the most expensive one, and
// anything else the primary default.
func (s *Selector) Select(hint models.Complexity, opts models.CompletionOptions) (Route, error) {
	if opts.ForceProvider != "" {
		return s.resolve(opts.ForceProvider, opts.Model)
	}

	if model, ok := s.table[hint]; ok {
		return s.resolve(s.primary, model)
	}

	switch hint {
	case models.ComplexitySimple, models.ComplexityMedium:
		return s.byCost(false)
	case models.ComplexityComplex, models.ComplexityCritical:
		return s.byCost(true)
	default:
		return s.resolve(s.primary, "")
	}
}

// Fallback returns the designated fallback route. The second result is false
// when no fallback is configured.
func (s *Selector) Fallback() (Route, bool) {
	if s.fallback.Provider == "" {
		return Route{}, false
	}
	r, err := s.resolve(s.fallback.Provider, s.fallback.Model)
	if err != nil {
		return Route{}, false
	}
	return r, true
}

func (s *Selector) resolve(provider, model string) (Route, error) {
	if model == "" {
		m, err := s.catalog.DefaultModelOf(provider)
		if err != nil {
			return Route{}, fmt.Errorf("select: %w", err)
		}
		model = m
	}
	if _, err := s.catalog.Lookup(provider, model); err != nil {
		return Route{}, fmt.Errorf("select: %w", err)
	}
	return Route{Provider: provider, Model: model}, nil
}

// byCost returns the cheapest primary model, or the most expensive one when
// highest is set. Equal prices keep priority order.
func (s *Selector) byCost(highest bool) (Route, error) {
	ms, err := s.catalog.ModelsOf(s.primary)
	if err != nil {
		return Route{}, fmt.Errorf("select: %w", err)
	}
	if len(ms) == 0 {
		return Route{}, fmt.Errorf("select: %w: provider %s lists no models", registry.ErrUnknownModel, s.primary)
	}

	best := ms[0]
	for _, m := range ms[1:] {
		price, bestPrice := unitPrice(m), unitPrice(best)
		if (highest && price > bestPrice) || (!highest && price < bestPrice) {
			best = m
		}
	}
	return Route{Provider: s.primary, Model: best.ModelID}, nil
}

func unitPrice(m models.ProviderModel) float64 {
	return m.CostPerThousandInput + m.CostPerThousandOutput
}
