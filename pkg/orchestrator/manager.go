// Package orchestrator runs completions through selection, caching, rate
// limiting, provider calls and the fallback chain.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokenwise-ai/tokenwise/pkg/cache"
	"github.com/tokenwise-ai/tokenwise/pkg/logging"
	"github.com/tokenwise-ai/tokenwise/pkg/models"
	"github.com/tokenwise-ai/tokenwise/pkg/providers"
	"github.com/tokenwise-ai/tokenwise/pkg/ratelimit"
	"github.com/tokenwise-ai/tokenwise/pkg/registry"
	"github.com/tokenwise-ai/tokenwise/pkg/router"
	"github.com/tokenwise-ai/tokenwise/pkg/usage"
)

const (
	DefaultMaxRetries  = 2
	DefaultCallTimeout = 30 * time.Second
)

var (
	// ErrRateLimited marks an attempt denied by the rate limiter.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrExhausted is the terminal error once every attempt has failed.
	ErrExhausted = errors.New("all providers failed")
)

// Ledger persists successful calls.
type Ledger interface {
	Record(ctx context.Context, rec models.UsageRecord) error
}

// Guard vetoes calls for a scope and provider, typically on spend.
type Guard interface {
	Check(ctx context.Context, scope, provider string) error
}

// Options wires a Manager. Registry and Selector are required; every other
// collaborator is optional.
type Options struct {
	Registry   *registry.Registry
	Selector   *router.Selector
	Cache      *cache.Store
	Limiter    *ratelimit.FixedWindow
	Accountant *usage.Accountant
	Ledger     Ledger
	Budget     Guard
	Logger     *zap.Logger

	// SimilarityThreshold enables fuzzy cache lookups when in (0,1).
	SimilarityThreshold float64
	// MaxRetries is the number of primary attempts. Defaults to DefaultMaxRetries.
	MaxRetries int
	// CallTimeout bounds each provider call. Defaults to DefaultCallTimeout.
	CallTimeout time.Duration
	// RetryBackoff is multiplied by the retry number before each primary retry.
	RetryBackoff time.Duration
	Now          func() time.Time
}

// Manager is safe for concurrent use.
type Manager struct {
	registry   *registry.Registry
	selector   *router.Selector
	cache      *cache.Store
	limiter    *ratelimit.FixedWindow
	accountant *usage.Accountant
	ledger     Ledger
	budget     Guard
	logger     *zap.Logger

	threshold    float64
	maxRetries   int
	callTimeout  time.Duration
	retryBackoff time.Duration
	now          func() time.Time
}

// New creates a Manager.
func New(opts Options) (*Manager, error) {
	if opts.Registry == nil {
		return nil, errors.New("orchestrator: registry is required")
	}
	if opts.Selector == nil {
		return nil, errors.New("orchestrator: selector is required")
	}
	if opts.Accountant == nil {
		opts.Accountant = usage.New()
	}
	opts.Logger = logging.OrNop(opts.Logger)
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		registry:     opts.Registry,
		selector:     opts.Selector,
		cache:        opts.Cache,
		limiter:      opts.Limiter,
		accountant:   opts.Accountant,
		ledger:       opts.Ledger,
		budget:       opts.Budget,
		logger:       opts.Logger.With(zap.String("component", "orchestrator")),
		threshold:    opts.SimilarityThreshold,
		maxRetries:   opts.MaxRetries,
		callTimeout:  opts.CallTimeout,
		retryBackoff: opts.RetryBackoff,
		now:          opts.Now,
	}, nil
}

// request carries the per-completion state through the attempts.
type request struct {
	id       string
	prompt   string
	opts     models.CompletionOptions
	cacheKey *cache.Key
	lastErr  error
	result   models.CompletionResult
}

// Complete runs one orchestrated completion. Failures never escape as errors:
// they are reported with Success=false, one AttemptError per failed attempt
// and Err set to the terminal cause.
func (m *Manager) Complete(ctx context.Context, prompt string, opts models.CompletionOptions) models.CompletionResult {
	req := &request{
		id:     uuid.NewString(),
		prompt: prompt,
		opts:   opts,
	}
	req.result.RequestID = req.id
	log := m.logger.With(zap.String("request_id", req.id), zap.String("scope", opts.Scope))

	route, err := m.selector.Select(opts.Complexity, opts)
	if err != nil {
		provider := opts.ForceProvider
		if provider == "" {
			provider = m.selector.Primary()
		}
		req.result.Errors = append(req.result.Errors, models.AttemptError{
			ProviderID: provider,
			ModelID:    opts.Model,
			Message:    err.Error(),
		})
		return m.fail(log, req, err)
	}

	if hit, ok := m.lookup(req, route); ok {
		m.accountant.Record(usage.Event{Kind: usage.CacheHit, Provider: hit.ProviderID, Model: hit.ModelID})
		log.Debug("cache hit", zap.Stringer("route", route))
		return models.CompletionResult{
			RequestID:    req.id,
			Success:      true,
			ProviderID:   hit.ProviderID,
			ModelID:      hit.ModelID,
			Text:         hit.Text,
			InputTokens:  hit.InputTokens,
			OutputTokens: hit.OutputTokens,
			FromCache:    true,
		}
	}

	retries := m.maxRetries
	if opts.MaxRetries > 0 {
		retries = opts.MaxRetries
	}

	for i := 0; i < retries; i++ {
		if i > 0 {
			if err := m.backoff(ctx, i); err != nil {
				return m.cancel(log, req, err)
			}
		}
		if m.try(ctx, log, req, route, false) {
			return req.result
		}
		if err := ctx.Err(); err != nil {
			return m.cancel(log, req, err)
		}
	}

	if fb, ok := m.selector.Fallback(); ok && fb != route {
		if m.registry.StatusOf(fb.Provider) != models.StatusAvailable {
			log.Warn("fallback provider not configured", zap.Stringer("route", fb))
		} else {
			m.accountant.Record(usage.Event{Kind: usage.FallbackUsed, Provider: fb.Provider, Model: fb.Model})
			log.Info("primary exhausted, trying fallback",
				zap.Stringer("primary", route),
				zap.Stringer("fallback", fb))
			if m.try(ctx, log, req, fb, true) {
				return req.result
			}
			if err := ctx.Err(); err != nil {
				return m.cancel(log, req, err)
			}
		}
	}

	if req.lastErr == nil {
		return m.fail(log, req, ErrExhausted)
	}
	return m.fail(log, req, fmt.Errorf("%w: %w", ErrExhausted, req.lastErr))
}

// lookup checks the cache and prepares the key used to store the answer.
func (m *Manager) lookup(req *request, route router.Route) (models.CachedCompletion, bool) {
	if m.cache == nil || req.opts.NoCache {
		return models.CachedCompletion{}, false
	}

	key := cache.GenerateRouteKey(req.opts.Scope, req.prompt,
		[]string{route.Provider, route.Model}, req.opts.Context)
	req.cacheKey = &key

	v, ok := m.cache.Get(key, m.threshold)
	if !ok {
		m.accountant.Record(usage.Event{Kind: usage.CacheMiss, Provider: route.Provider, Model: route.Model})
		return models.CachedCompletion{}, false
	}
	hit, ok := v.(models.CachedCompletion)
	if !ok {
		m.accountant.Record(usage.Event{Kind: usage.CacheMiss, Provider: route.Provider, Model: route.Model})
		return models.CachedCompletion{}, false
	}
	return hit, true
}

// try performs one attempt on route and reports whether it succeeded. A
// success fills req.result; a failure appends to its error list.
func (m *Manager) try(ctx context.Context, log *zap.Logger, req *request, route router.Route, fallback bool) bool {
	req.result.AttemptCount++

	res, err := m.call(ctx, req, route)
	if err == nil && ctx.Err() != nil {
		// The caller is gone; the answer is discarded uncommitted.
		err = ctx.Err()
	}
	if err != nil {
		req.lastErr = err
		req.result.Errors = append(req.result.Errors, models.AttemptError{
			ProviderID: route.Provider,
			ModelID:    route.Model,
			Message:    err.Error(),
		})
		log.Warn("attempt failed",
			zap.Stringer("route", route),
			zap.Int("attempt", req.result.AttemptCount),
			zap.Bool("fallback", fallback),
			zap.Error(err))
		return false
	}

	cost := m.registry.Cost(route.Provider, route.Model, res.InputTokens, res.OutputTokens)
	m.commit(ctx, log, req, route, res, cost, fallback)
	return true
}

// call runs the pre-flight checks and the provider call itself.
func (m *Manager) call(ctx context.Context, req *request, route router.Route) (*models.CallResult, error) {
	caller := m.registry.Caller(route.Provider)
	if caller == nil {
		return nil, fmt.Errorf("%s: %w", route.Provider, providers.ErrNotConfigured)
	}
	if m.budget != nil {
		if err := m.budget.Check(ctx, req.opts.Scope, route.Provider); err != nil {
			return nil, err
		}
	}
	if m.limiter != nil && !m.limiter.Allow(route.Provider) {
		return nil, fmt.Errorf("%s: %w", route.Provider, ErrRateLimited)
	}

	m.accountant.Record(usage.Event{Kind: usage.ProviderCall, Provider: route.Provider, Model: route.Model})

	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	defer cancel()

	res, err := caller.Call(callCtx, route.Model, req.prompt, req.opts.CallOptions())
	if err != nil {
		var pe *providers.ProviderError
		if errors.As(err, &pe) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		msg := err.Error()
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("timed out after %s", m.callTimeout)
		}
		return nil, &providers.ProviderError{Provider: route.Provider, Message: msg, Cause: err}
	}
	if res == nil {
		return nil, &providers.ProviderError{Provider: route.Provider, Message: "empty result", Cause: providers.ErrMalformedResponse}
	}
	return res, nil
}

func (m *Manager) commit(ctx context.Context, log *zap.Logger, req *request, route router.Route, res *models.CallResult, cost float64, fallback bool) {
	r := &req.result
	r.Success = true
	r.ProviderID = route.Provider
	r.ModelID = route.Model
	r.Text = res.Text
	r.Cost = cost
	r.InputTokens = res.InputTokens
	r.OutputTokens = res.OutputTokens
	r.UsedFallback = fallback

	if req.cacheKey != nil {
		m.cache.Set(*req.cacheKey, models.CachedCompletion{
			ProviderID:   route.Provider,
			ModelID:      route.Model,
			Text:         res.Text,
			InputTokens:  res.InputTokens,
			OutputTokens: res.OutputTokens,
			Cost:         cost,
		}, req.opts.Category)
	}

	m.accountant.Record(usage.Event{Kind: usage.CallSuccess, Provider: route.Provider, Model: route.Model, Cost: cost})

	if m.ledger != nil {
		err := m.ledger.Record(ctx, models.UsageRecord{
			RequestID:    req.id,
			Scope:        req.opts.Scope,
			Provider:     route.Provider,
			Model:        route.Model,
			InputTokens:  res.InputTokens,
			OutputTokens: res.OutputTokens,
			Cost:         cost,
			Fallback:     fallback,
			CreatedAt:    m.now(),
		})
		if err != nil {
			log.Error("ledger write failed", zap.Error(err))
		}
	}

	log.Info("completion served",
		zap.Stringer("route", route),
		zap.Int("attempts", r.AttemptCount),
		zap.Bool("fallback", fallback),
		zap.Int("input_tokens", res.InputTokens),
		zap.Int("output_tokens", res.OutputTokens),
		zap.Float64("cost", cost))
}

func (m *Manager) backoff(ctx context.Context, retry int) error {
	if m.retryBackoff <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(time.Duration(retry) * m.retryBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *Manager) fail(log *zap.Logger, req *request, err error) models.CompletionResult {
	m.accountant.Record(usage.Event{Kind: usage.CallFailure})
	log.Warn("completion failed",
		zap.Int("attempts", req.result.AttemptCount),
		zap.Error(err))
	req.result.Success = false
	req.result.Err = err
	return req.result
}

func (m *Manager) cancel(log *zap.Logger, req *request, err error) models.CompletionResult {
	m.accountant.Record(usage.Event{Kind: usage.CallFailure})
	log.Info("completion cancelled",
		zap.Int("attempts", req.result.AttemptCount),
		zap.Error(err))
	req.result.Success = false
	req.result.Err = err
	return req.result
}

// Stats returns the usage counters, cache metrics and rate windows.
func (m *Manager) Stats() models.ManagerStats {
	stats := models.ManagerStats{
		Usage:      m.accountant.Snapshot(),
		RateLimits: map[string]models.RateWindow{},
	}
	if m.cache != nil {
		stats.Cache = m.cache.Stats()
	} else {
		stats.Cache = models.CacheStats{HitRate: "0.00%", MemoryUsage: "0 B"}
	}
	if m.limiter != nil {
		stats.RateLimits = m.limiter.Snapshot()
	}
	return stats
}

// ClearCache drops every cached response and the cache counters.
func (m *Manager) ClearCache() {
	if m.cache != nil {
		m.cache.Clear()
	}
}

// PurgeCache drops expired cache entries and returns how many were removed.
func (m *Manager) PurgeCache() int {
	if m.cache == nil {
		return 0
	}
	return m.cache.Purge()
}

// ResetStats zeroes the usage counters.
func (m *Manager) ResetStats() {
	m.accountant.Reset()
}

// CompareCosts prices tokens input and tokens output on every known model.
func (m *Manager) CompareCosts(tokens int) []models.CostComparison {
	return m.registry.CompareCosts(tokens)
}

// AvailableModels lists the models of configured providers.
func (m *Manager) AvailableModels() map[string][]models.ProviderModel {
	return m.registry.AvailableModels()
}

// ProviderStatus reports every provider as available or not-configured.
func (m *Manager) ProviderStatus() map[string]models.ProviderStatus {
	return m.registry.Status()
}
