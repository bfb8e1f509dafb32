package envelope

import "time"

// Kind distinguishes the cause of a change event or leaf. "Update" exists
// for branches/tangles that want a generic catch-all label distinct from
// the three admission paths the Tree itself produces (stash, toss,
// squabble); the Tree never emits KindUpdate itself.
type Kind string

const (
	KindStash    Kind = "stash"
	KindToss     Kind = "toss"
	KindSquabble Kind = "squabble"
	KindUpdate   Kind = "update"
)

// ChangeEvent is produced on every admitted write or delete. It is
// ephemeral — never persisted, only broadcast to subscribers.
type ChangeEvent[T any] struct {
	Kind         Kind
	ID           string
	Payload      *T
	Env          *Envelope[T]
	Timestamp    time.Time
	OriginNodeID string
}

// Leaf is a change event crossing a tree boundary: the same information
// plus the anti-loop bookkeeping a mesh needs to terminate propagation.
type Leaf[T any] struct {
	LeafID       string
	OriginTreeID string
	VisitedTrees map[string]struct{}
	HopCount     int
	Type         Kind
	Key          string
	Env          *Envelope[T]
}

// Visited reports whether treeID has already handled this leaf.
func (l *Leaf[T]) Visited(treeID string) bool {
	_, ok := l.VisitedTrees[treeID]
	return ok
}

// WithVisit returns a copy of the leaf with treeID added to the visited
// set and HopCount incremented — the shape every forwarding hop produces.
func (l *Leaf[T]) WithVisit(treeID string) *Leaf[T] {
	visited := make(map[string]struct{}, len(l.VisitedTrees)+1)
	for k := range l.VisitedTrees {
		visited[k] = struct{}{}
	}
	visited[treeID] = struct{}{}
	return &Leaf[T]{
		LeafID:       l.LeafID,
		OriginTreeID: l.OriginTreeID,
		VisitedTrees: visited,
		HopCount:     l.HopCount + 1,
		Type:         l.Type,
		Key:          l.Key,
		Env:          l.Env,
	}
}
