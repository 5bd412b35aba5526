// Package ratelimit implements the per-provider fixed-window call counter.
package ratelimit

import (
	"sync"
	"time"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

// Reference window applied when none is configured.
const (
	DefaultWindow = time.Minute
	DefaultLimit  = 100
)

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow counts calls per provider in fixed windows. Each provider has
// its own window, created on first use.
type FixedWindow struct {
	limit  int
	length time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// Option customizes a FixedWindow.
type Option func(*FixedWindow)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *FixedWindow) { f.now = now }
}

// New returns a limiter allowing limit calls per provider per window.
// A limit of zero or less disables limiting.
func New(limit int, length time.Duration, opts ...Option) *FixedWindow {
	if length <= 0 {
		length = DefaultWindow
	}
	f := &FixedWindow{
		limit:   limit,
		length:  length,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Allow counts one call for provider and reports whether it fits the window.
// The call is consumed even when denied.
func (f *FixedWindow) Allow(provider string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	w, ok := f.windows[provider]
	if !ok {
		w = &window{resetAt: now.Add(f.length)}
		f.windows[provider] = w
	}
	if !now.Before(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(f.length)
	}
	w.count++

	if f.limit <= 0 {
		return true
	}
	return w.count <= f.limit
}

// Status returns the current window of provider without consuming a call.
func (f *FixedWindow) Status(provider string) models.RateWindow {
	f.mu.Lock()
	defer f.mu.Unlock()

	rw := models.RateWindow{Limit: f.limit}
	if w, ok := f.windows[provider]; ok && f.now().Before(w.resetAt) {
		rw.Count = w.count
		rw.ResetAt = w.resetAt
	}
	return rw
}

// Snapshot returns the status of every provider seen so far.
func (f *FixedWindow) Snapshot() map[string]models.RateWindow {
	f.mu.Lock()
	providers := make([]string, 0, len(f.windows))
	for p := range f.windows {
		providers = append(providers, p)
	}
	f.mu.Unlock()

	out := make(map[string]models.RateWindow, len(providers))
	for _, p := range providers {
		out[p] = f.Status(p)
	}
	return out
}

// Reset forgets every window.
func (f *FixedWindow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = make(map[string]*window)
}
