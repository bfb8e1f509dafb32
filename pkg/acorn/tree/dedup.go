package tree

import (
	lru "github.com/hashicorp/golang-lru"
)

// dedupSet is the bounded recent-changeId set every Tree keeps to drop
// already-seen writes during squabble admission (spec §4.4 step 1,
// §5 "LRU of e.g. 10k entries; must be thread-safe"). golang-lru's Cache
// is itself thread-safe, so this is a thin typed wrapper around it
// rather than a hand-rolled one.
type dedupSet struct {
	cache *lru.Cache
}

func newDedupSet(capacity int) *dedupSet {
	c, err := lru.New(capacity)
	if err != nil {
		// Only returns an error for a non-positive size; capacity is a
		// package constant known to be positive.
		panic(err)
	}
	return &dedupSet{cache: c}
}

func (d *dedupSet) Add(changeID string) {
	d.cache.Add(changeID, struct{}{})
}

func (d *dedupSet) Contains(changeID string) bool {
	return d.cache.Contains(changeID)
}
