// Package cache implements the Tree's in-process read cache strategies
// (spec §4.3, cache strategy hook). A Strategy sits in front of a Trunk
// and decides what to keep hot; it never owns durability.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/acorndb/acorndb/pkg/acorn/envelope"
	"github.com/acorndb/acorndb/pkg/metrics"
)

// Strategy is the pluggable caching policy a Tree consults on every
// Stash/Crack/Toss. Implementations must be safe for concurrent use.
type Strategy[T any] interface {
	OnStash(id string, env *envelope.Envelope[T])
	OnToss(id string)
	Get(id string) (*envelope.Envelope[T], bool)
	Reset()
}

// NoCache never retains anything; every Crack falls through to the
// trunk. Useful for trunks that are already fast and in-memory (MemTrunk)
// where a second cache layer only adds bookkeeping.
type NoCache[T any] struct{}

func (NoCache[T]) OnStash(string, *envelope.Envelope[T]) {}
func (NoCache[T]) OnToss(string)                         {}
func (NoCache[T]) Get(string) (*envelope.Envelope[T], bool) {
	return nil, false
}
func (NoCache[T]) Reset() {}

// LRU wraps hashicorp/golang-lru with the envelope-typed Strategy
// interface. Eviction is size-bounded, not time-bounded; expiry is the
// Tree's concern (see the TTL sweeper), not the cache's.
type LRU[T any] struct {
	mu    sync.Mutex
	cache *lru.Cache
}

// NewLRU creates an LRU-backed strategy holding at most size entries.
func NewLRU[T any](size int) (*LRU[T], error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRU[T]{cache: c}, nil
}

func (l *LRU[T]) OnStash(id string, env *envelope.Envelope[T]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Add(id, env)
}

func (l *LRU[T]) OnToss(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache.Contains(id) {
		metrics.CacheEvictionsTotal.Inc()
	}
	l.cache.Remove(id)
}

func (l *LRU[T]) Get(id string) (*envelope.Envelope[T], bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.cache.Get(id)
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	env, ok := v.(*envelope.Envelope[T])
	return env, ok
}

func (l *LRU[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Purge()
}

// Len reports the current number of cached entries.
func (l *LRU[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache.Len()
}
