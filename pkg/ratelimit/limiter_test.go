package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestWindowLimitAndReset(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(3, time.Minute, WithClock(c.Now))

	for i := range 3 {
		assert.True(t, l.Allow("gemini"), "call %d should be allowed", i+1)
	}
	assert.False(t, l.Allow("gemini"), "4th call inside the window should be denied")

	c.now = c.now.Add(time.Minute)
	assert.True(t, l.Allow("gemini"), "call after the window should be allowed")
	assert.Equal(t, 1, l.Status("gemini").Count, "counter restarts at 1")
}

func TestIndependentProviders(t *testing.T) {
	c := &clock{now: time.Now()}
	l := New(1, time.Minute, WithClock(c.Now))

	assert.True(t, l.Allow("gemini"))
	assert.False(t, l.Allow("gemini"))
	assert.True(t, l.Allow("groq"))
}

func TestDeniedCallsAreCounted(t *testing.T) {
	c := &clock{now: time.Now()}
	l := New(1, time.Minute, WithClock(c.Now))

	l.Allow("openai")
	l.Allow("openai")
	l.Allow("openai")
	assert.Equal(t, 3, l.Status("openai").Count)
}

func TestStatusAfterWindowElapsed(t *testing.T) {
	c := &clock{now: time.Now()}
	l := New(5, time.Second, WithClock(c.Now))

	l.Allow("anthropic")
	c.now = c.now.Add(2 * time.Second)

	st := l.Status("anthropic")
	assert.Equal(t, 0, st.Count)
	assert.Equal(t, 5, st.Limit)
}

func TestUnlimited(t *testing.T) {
	l := New(0, time.Minute)
	for range 1000 {
		assert.True(t, l.Allow("gemini"))
	}
}

func TestSnapshotAndReset(t *testing.T) {
	l := New(10, time.Minute)
	l.Allow("gemini")
	l.Allow("groq")
	l.Allow("groq")

	snap := l.Snapshot()
	assert.Len(t, snap, 2)
	assert.Equal(t, 2, snap["groq"].Count)

	l.Reset()
	assert.Empty(t, l.Snapshot())
}

func TestConcurrentAllowNoLostUpdates(t *testing.T) {
	l := New(500, time.Hour)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if l.Allow("gemini") {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(500), allowed.Load())
	assert.Equal(t, 1000, l.Status("gemini").Count)
}
