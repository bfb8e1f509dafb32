// Package index implements a scalar secondary index over a Tree: an
// explicit reverse id-to-value map kept current as envelopes are
// stashed and tossed (spec's supplemented scalar index, resolving Open
// Question #1: Remove(id) looks the id's value up in the reverse map
// instead of scanning every value bucket and stopping at the first match).
package index

import "sync"

// Extractor pulls the indexed scalar value out of a payload. Returning
// ok=false means the payload has no value for this index and the id is
// left out of it (e.g. an optional field).
type Extractor[T any, V comparable] func(payload T) (value V, ok bool)

// ScalarIndex maintains value -> set-of-ids and id -> value mappings for
// one field of a tree's payload type.
type ScalarIndex[T any, V comparable] struct {
	mu        sync.RWMutex
	extract   Extractor[T, V]
	forward   map[string]V            // id -> value
	inverted  map[V]map[string]struct{} // value -> ids
}

// New creates an empty scalar index using extract to derive the indexed
// value from a payload.
func New[T any, V comparable](extract Extractor[T, V]) *ScalarIndex[T, V] {
	return &ScalarIndex[T, V]{
		extract:  extract,
		forward:  make(map[string]V),
		inverted: make(map[V]map[string]struct{}),
	}
}

// Add indexes id under the value extracted from payload, replacing any
// prior value id was indexed under.
func (idx *ScalarIndex[T, V]) Add(id string, payload T) {
	value, ok := idx.extract(payload)
	if !ok {
		idx.Remove(id)
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if prev, had := idx.forward[id]; had {
		if prev == value {
			return
		}
		idx.removeLocked(id, prev)
	}
	idx.forward[id] = value
	if idx.inverted[value] == nil {
		idx.inverted[value] = make(map[string]struct{})
	}
	idx.inverted[value][id] = struct{}{}
}

// Remove drops id from the index entirely.
func (idx *ScalarIndex[T, V]) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	value, ok := idx.forward[id]
	if !ok {
		return
	}
	idx.removeLocked(id, value)
}

func (idx *ScalarIndex[T, V]) removeLocked(id string, value V) {
	delete(idx.forward, id)
	if ids, ok := idx.inverted[value]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(idx.inverted, value)
		}
	}
}

// Lookup returns every id currently indexed under value.
func (idx *ScalarIndex[T, V]) Lookup(value V) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids, ok := idx.inverted[value]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

// Rebuild discards the current index and repopulates it from entries,
// used after a trunk's CrackAll on tree open or after a full resync.
func (idx *ScalarIndex[T, V]) Rebuild(entries map[string]T) {
	idx.mu.Lock()
	idx.forward = make(map[string]V)
	idx.inverted = make(map[V]map[string]struct{})
	idx.mu.Unlock()

	for id, payload := range entries {
		idx.Add(id, payload)
	}
}
