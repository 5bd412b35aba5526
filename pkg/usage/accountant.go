// Package usage keeps the in-memory call and spend counters.
package usage

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

// Kind identifies what happened.
type Kind string

const (
	CallSuccess  Kind = "call-success"
	CallFailure  Kind = "call-failure"
	CacheHit     Kind = "cache-hit"
	CacheMiss    Kind = "cache-miss"
	FallbackUsed Kind = "fallback-used"
	ProviderCall Kind = "provider-call"
)

// Event is one accounting observation. Provider, Model and Cost are only
// meaningful for some kinds.
type Event struct {
	Kind     Kind
	Provider string
	Model    string
	Cost     float64
}

// Accountant is safe for concurrent use.
type Accountant struct {
	now func() time.Time

	mu    sync.Mutex
	stats models.UsageStats

	events *prometheus.CounterVec
	cost   *prometheus.CounterVec
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Accountant) { a.now = now }
}

// WithRegisterer mirrors the counters into Prometheus metrics registered on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *Accountant) {
		if reg == nil {
			return
		}
		factory := promauto.With(reg)
		a.events = factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokenwise",
				Name:      "events_total",
				Help:      "Orchestrator events by kind, provider and model",
			},
			[]string{"kind", "provider", "model"},
		)
		a.cost = factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tokenwise",
				Name:      "cost_total",
				Help:      "Accumulated provider cost",
			},
			[]string{"provider", "model"},
		)
	}
}

// New creates an Accountant with zeroed counters.
func New(opts ...Option) *Accountant {
	a := &Accountant{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	a.stats.Since = a.now()
	return a
}

// Record applies ev. A call success, call failure or cache hit is a terminal
// outcome and counts towards TotalCalls.
func (a *Accountant) Record(ev Event) {
	a.mu.Lock()
	switch ev.Kind {
	case CallSuccess:
		a.stats.TotalCalls++
		a.stats.Successes++
		a.stats.TotalCost += ev.Cost
	case CallFailure:
		a.stats.TotalCalls++
		a.stats.Failures++
	case CacheHit:
		a.stats.TotalCalls++
		a.stats.CacheHits++
	case CacheMiss:
		a.stats.CacheMisses++
	case FallbackUsed:
		a.stats.FallbackCount++
	case ProviderCall:
		a.stats.ProviderCalls++
	}
	a.mu.Unlock()

	if a.events != nil {
		a.events.WithLabelValues(string(ev.Kind), ev.Provider, ev.Model).Inc()
		if ev.Kind == CallSuccess && ev.Cost > 0 {
			a.cost.WithLabelValues(ev.Provider, ev.Model).Add(ev.Cost)
		}
	}
}

// Snapshot returns a copy of the counters.
func (a *Accountant) Snapshot() models.UsageStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Reset zeroes the counters. Prometheus counters are monotonic and keep going.
func (a *Accountant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats = models.UsageStats{Since: a.now()}
}
