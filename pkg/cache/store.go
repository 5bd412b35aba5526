// Package cache is the in-memory response cache: a size-bounded TTL store
// with least-recently-used eviction and approximate key matching.
package cache

import (
	"container/list"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/tokenwise-ai/tokenwise/pkg/logging"
	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

// Options configures a Store.
type Options struct {
	// MaxBytes bounds the summed entry sizes. Zero disables the bound.
	MaxBytes int64
	// DefaultTTL applies to entries without a known category. Defaults to one hour.
	DefaultTTL time.Duration
	// Categories maps a category name to its TTL.
	Categories map[string]time.Duration
	// AverageCostPerCall is used to estimate savings from hits.
	AverageCostPerCall float64
	// Similarity scores fuzzy lookups. Defaults to TokenOverlap.
	Similarity Similarity
	// Now is the clock. Defaults to time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

type item struct {
	key   Key
	entry models.CacheEntry
}

// Store is safe for concurrent use. The list front holds the most recently
// used entry; eviction takes from the back.
type Store struct {
	opts Options

	mu        sync.Mutex
	items     map[string]*list.Element
	lru       *list.List
	used      int64
	hits      int64
	misses    int64
	evictions int64
}

// NewStore creates an empty Store.
func NewStore(opts Options) *Store {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = time.Hour
	}
	if opts.Similarity == nil {
		opts.Similarity = TokenOverlap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Logger = logging.OrNop(opts.Logger)
	return &Store{
		opts:  opts,
		items: make(map[string]*list.Element),
		lru:   list.New(),
	}
}

// TTL returns the time-to-live applied to category.
func (s *Store) TTL(category string) time.Duration {
	if ttl, ok := s.opts.Categories[category]; ok && ttl > 0 {
		return ttl
	}
	return s.opts.DefaultTTL
}

// Set stores value under key. When the store grows past MaxBytes, least
// recently used entries are evicted until it fits again. The new entry itself
// is never evicted, so a value larger than MaxBytes is kept alone.
func (s *Store) Set(key Key, value any, category string) {
	size := estimateSize(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	entry := models.CacheEntry{
		Key:            key.ID,
		Value:          value,
		Category:       category,
		CreatedAt:      now,
		TTL:            s.TTL(category),
		SizeBytes:      size,
		LastAccessedAt: now,
	}

	var el *list.Element
	if existing, ok := s.items[key.ID]; ok {
		it := existing.Value.(*item)
		s.used -= it.entry.SizeBytes
		it.key = key
		it.entry = entry
		s.lru.MoveToFront(existing)
		el = existing
	} else {
		el = s.lru.PushFront(&item{key: key, entry: entry})
		s.items[key.ID] = el
	}
	s.used += size

	if s.opts.MaxBytes > 0 && size > s.opts.MaxBytes {
		s.opts.Logger.Warn("cache entry exceeds memory budget",
			zap.String("key", key.ID),
			zap.Int64("size_bytes", size),
			zap.Int64("max_bytes", s.opts.MaxBytes))
	}
	s.evictLocked(el)
}

func (s *Store) evictLocked(keep *list.Element) {
	if s.opts.MaxBytes <= 0 {
		return
	}
	for s.used > s.opts.MaxBytes {
		victim := s.lru.Back()
		if victim == keep {
			victim = victim.Prev()
		}
		if victim == nil {
			return
		}
		it := victim.Value.(*item)
		s.removeLocked(victim)
		s.evictions++
		s.opts.Logger.Debug("cache eviction",
			zap.String("key", it.key.ID),
			zap.Int64("size_bytes", it.entry.SizeBytes))
	}
}

func (s *Store) removeLocked(el *list.Element) {
	it := el.Value.(*item)
	s.lru.Remove(el)
	delete(s.items, it.key.ID)
	s.used -= it.entry.SizeBytes
}

// Get returns the live value stored under key. On an exact miss, a threshold
// in (0,1) enables a scan for the most similar prompt of the same scope and
// context scoring above threshold. A threshold of 1 or more means exact only.
// Every call counts as one hit or one miss.
func (s *Store) Get(key Key, threshold float64) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()

	if el, ok := s.items[key.ID]; ok {
		it := el.Value.(*item)
		if !it.entry.Expired(now) {
			s.touchLocked(el, now)
			s.hits++
			return it.entry.Value, true
		}
		s.removeLocked(el)
	}

	if threshold > 0 && threshold < 1 {
		if el := s.closestLocked(key, threshold, now); el != nil {
			s.touchLocked(el, now)
			s.hits++
			return el.Value.(*item).entry.Value, true
		}
	}

	s.misses++
	return nil, false
}

func (s *Store) closestLocked(key Key, threshold float64, now time.Time) *list.Element {
	var (
		best      *list.Element
		bestScore float64
	)
	for el := s.lru.Front(); el != nil; {
		next := el.Next()
		it := el.Value.(*item)
		switch {
		case it.entry.Expired(now):
			s.removeLocked(el)
		case it.key.Scope == key.Scope && it.key.Context == key.Context:
			score := s.opts.Similarity(key.Text, it.key.Text)
			if score > threshold && score > bestScore {
				best, bestScore = el, score
			}
		}
		el = next
	}
	return best
}

func (s *Store) touchLocked(el *list.Element, now time.Time) {
	el.Value.(*item).entry.LastAccessedAt = now
	s.lru.MoveToFront(el)
}

// Purge removes every expired entry and returns how many were dropped.
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	removed := 0
	for el := s.lru.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*item).entry.Expired(now) {
			s.removeLocked(el)
			removed++
		}
		el = next
	}
	return removed
}

// Clear drops all entries and zeroes the counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*list.Element)
	s.lru.Init()
	s.used = 0
	s.hits = 0
	s.misses = 0
	s.evictions = 0
}

// Len returns the number of stored entries, expired ones included until purged.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Stats returns cache performance metrics.
func (s *Store) Stats() models.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := 0.0
	if total := s.hits + s.misses; total > 0 {
		rate = float64(s.hits) / float64(total) * 100
	}
	return models.CacheStats{
		HitRate:          fmt.Sprintf("%.2f%%", rate),
		Hits:             s.hits,
		Misses:           s.misses,
		Entries:          s.lru.Len(),
		MemoryBytes:      s.used,
		MemoryUsage:      humanize.IBytes(uint64(s.used)),
		Evictions:        s.evictions,
		EstimatedSavings: float64(s.hits) * s.opts.AverageCostPerCall,
	}
}

func estimateSize(value any) int64 {
	data, err := json.Marshal(value)
	if err != nil {
		return int64(len(fmt.Sprint(value)))
	}
	return int64(len(data))
}
