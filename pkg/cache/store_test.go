package cache

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, opts Options) (*Store, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts.Now = clock.Now
	return NewStore(opts), clock
}

func key(prompt string) Key {
	return GenerateKey("agent", prompt, nil)
}

func TestSetAndGet(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	s.Set(key("hello"), "world", "")
	v, ok := s.Get(key("HELLO "), 0)
	require.True(t, ok)
	assert.Equal(t, "world", v)

	_, ok = s.Get(key("goodbye"), 0)
	assert.False(t, ok)
}

func TestTTLExpiration(t *testing.T) {
	s, clock := newTestStore(t, Options{
		DefaultTTL: time.Hour,
		Categories: map[string]time.Duration{"real-time-data": time.Minute},
	})

	s.Set(key("price"), 42, "real-time-data")
	s.Set(key("history"), "long", "specialist-response")

	clock.Advance(59 * time.Second)
	_, ok := s.Get(key("price"), 0)
	assert.True(t, ok, "entry should be visible inside its TTL")

	clock.Advance(time.Second)
	_, ok = s.Get(key("price"), 0)
	assert.False(t, ok, "entry should expire once now-createdAt reaches TTL")
	assert.Equal(t, 1, s.Len(), "expired entry should be purged on access")

	_, ok = s.Get(key("history"), 0)
	assert.True(t, ok, "unknown category falls back to the default TTL")
}

func TestEvictionLeastRecentlyUsed(t *testing.T) {
	// Each 10-char string marshals to 12 bytes.
	s, clock := newTestStore(t, Options{MaxBytes: 30})

	s.Set(key("a"), strings.Repeat("a", 10), "")
	clock.Advance(time.Second)
	s.Set(key("b"), strings.Repeat("b", 10), "")
	clock.Advance(time.Second)

	_, ok := s.Get(key("a"), 0)
	require.True(t, ok)

	s.Set(key("c"), strings.Repeat("c", 10), "")

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(24), stats.MemoryBytes)

	_, ok = s.Get(key("b"), 0)
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = s.Get(key("a"), 0)
	assert.True(t, ok)
	_, ok = s.Get(key("c"), 0)
	assert.True(t, ok)
}

func TestEvictionTieBreaksOnCreation(t *testing.T) {
	s, _ := newTestStore(t, Options{MaxBytes: 24})

	// Same clock reading for all three entries: the oldest insert goes first.
	s.Set(key("first"), strings.Repeat("x", 10), "")
	s.Set(key("second"), strings.Repeat("y", 10), "")
	s.Set(key("third"), strings.Repeat("z", 10), "")

	_, ok := s.Get(key("first"), 0)
	assert.False(t, ok)
	_, ok = s.Get(key("second"), 0)
	assert.True(t, ok)
}

func TestOversizedValueIsKeptAlone(t *testing.T) {
	s, _ := newTestStore(t, Options{MaxBytes: 30})

	s.Set(key("small-1"), "tiny", "")
	s.Set(key("small-2"), "tiny", "")
	s.Set(key("huge"), strings.Repeat("h", 100), "")

	stats := s.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(2), stats.Evictions)

	v, ok := s.Get(key("huge"), 0)
	require.True(t, ok)
	assert.Len(t, v, 100)
}

func TestReplaceUpdatesSize(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	s.Set(key("k"), strings.Repeat("a", 10), "")
	s.Set(key("k"), strings.Repeat("a", 20), "")

	stats := s.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(22), stats.MemoryBytes)
}

func TestFuzzyLookup(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	s.Set(key("explain go channels with examples"), "answer", "")

	v, ok := s.Get(key("explain go channels with an example"), 0.5)
	require.True(t, ok)
	assert.Equal(t, "answer", v)

	_, ok = s.Get(key("explain go channels with an example"), 0.9)
	assert.False(t, ok, "score below threshold should miss")

	_, ok = s.Get(key("channels examples go explain with"), 1.0)
	assert.False(t, ok, "threshold 1 must behave as exact match")

	other := GenerateKey("other-agent", "explain go channels with examples", nil)
	_, ok = s.Get(other, 0.1)
	assert.False(t, ok, "fuzzy matches never cross scopes")
}

func TestFuzzyLookupPrefersClosest(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	s.Set(key("how do I deploy a go service"), "far", "")
	s.Set(key("how do I deploy a go service to kubernetes"), "near", "")

	v, ok := s.Get(key("how do I deploy my go service to kubernetes"), 0.5)
	require.True(t, ok)
	assert.Equal(t, "near", v)
}

func TestStatsHitRate(t *testing.T) {
	s, _ := newTestStore(t, Options{AverageCostPerCall: 0.002})

	assert.Equal(t, "0.00%", s.Stats().HitRate)

	s.Set(key("q"), "a", "")
	s.Get(key("q"), 0)
	s.Get(key("q"), 0)
	s.Get(key("missing"), 0)

	stats := s.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, "66.67%", stats.HitRate)
	assert.InDelta(t, 0.004, stats.EstimatedSavings, 1e-12)
	assert.NotEmpty(t, stats.MemoryUsage)
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(t, Options{MaxBytes: 10})

	s.Set(key("a"), "aaaa", "")
	s.Set(key("b"), "bbbb", "")
	s.Get(key("a"), 0)
	s.Get(key("zzz"), 0)

	s.Clear()
	stats := s.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
	assert.Equal(t, int64(0), stats.Evictions)
	assert.Equal(t, int64(0), stats.MemoryBytes)
}

func TestPurge(t *testing.T) {
	s, clock := newTestStore(t, Options{
		Categories: map[string]time.Duration{"real-time-data": time.Minute},
	})

	s.Set(key("a"), 1, "real-time-data")
	s.Set(key("b"), 2, "real-time-data")
	s.Set(key("c"), 3, "")

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, s.Purge())
	assert.Equal(t, 1, s.Len())
}

func TestUnmarshalableValueStillStored(t *testing.T) {
	s, _ := newTestStore(t, Options{})

	ch := make(chan int)
	s.Set(key("chan"), ch, "")
	v, ok := s.Get(key("chan"), 0)
	require.True(t, ok)
	assert.Equal(t, ch, v)
	assert.Positive(t, s.Stats().MemoryBytes)
}

func TestConcurrentAccess(t *testing.T) {
	s, _ := newTestStore(t, Options{MaxBytes: 1 << 10})

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 100 {
				k := key(strings.Repeat("p", i+j%5))
				s.Set(k, j, "")
				s.Get(k, 0.5)
			}
		}(i)
	}
	wg.Wait()

	stats := s.Stats()
	assert.Equal(t, int64(16*100), stats.Hits+stats.Misses)
	assert.LessOrEqual(t, stats.MemoryBytes, int64(1<<10))
}
