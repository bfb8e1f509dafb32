package root

import (
	"sort"
	"sync"

	"github.com/acorndb/acorndb/pkg/metrics"
)

// Chain is the ordered root pipeline owned by a single trunk. Reads
// (ApplyStash/ApplyCrack) take the read lock; AddRoot/RemoveRoot take the
// write lock, matching spec §5's "root chain is read-mostly; mutations
// must be exclusive against concurrent reads/writes."
type Chain struct {
	mu    sync.RWMutex
	roots []Root
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddRoot inserts a root and re-sorts the chain by ascending Sequence.
func (c *Chain) AddRoot(r Root) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roots = append(c.roots, r)
	sort.SliceStable(c.roots, func(i, j int) bool {
		return c.roots[i].Sequence() < c.roots[j].Sequence()
	})
}

// RemoveRoot removes the first root with the given name, if present.
func (c *Chain) RemoveRoot(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.roots {
		if r.Name() == name {
			c.roots = append(c.roots[:i], c.roots[i+1:]...)
			return
		}
	}
}

// Roots returns a read-only snapshot of the current chain, ascending by
// sequence.
func (c *Chain) Roots() []Root {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Root, len(c.roots))
	copy(out, c.roots)
	return out
}

// ApplyStash runs bytes through the chain ascending by sequence — the
// write direction (spec §4.2 "On stash ... passes bytes through the root
// chain in ascending sequence order").
func (c *Chain) ApplyStash(b []byte, ctx *Context) ([]byte, error) {
	for _, r := range c.Roots() {
		before := len(b)
		var err error
		b, err = r.OnStash(b, ctx)
		if err != nil {
			metrics.RootErrorsTotal.WithLabelValues(r.Name(), "stash").Inc()
			return nil, err
		}
		metrics.RootBytesIn.WithLabelValues(r.Name()).Add(float64(before))
		metrics.RootBytesOut.WithLabelValues(r.Name()).Add(float64(len(b)))
	}
	return b, nil
}

// ApplyCrack runs bytes through the chain descending by sequence — the
// read direction, inverse of ApplyStash.
func (c *Chain) ApplyCrack(b []byte, ctx *Context) ([]byte, error) {
	roots := c.Roots()
	for i := len(roots) - 1; i >= 0; i-- {
		var err error
		b, err = roots[i].OnCrack(b, ctx)
		if err != nil {
			metrics.RootErrorsTotal.WithLabelValues(roots[i].Name(), "crack").Inc()
			return nil, err
		}
	}
	return b, nil
}
