package tree

import (
	"context"

	"github.com/acorndb/acorndb/pkg/acorn/envelope"
)

// TxnTree is the narrow view a Txn callback gets: Stash/Toss/Crack
// against the single tree the transaction was opened on, nothing else.
// The callback receives the tree itself, so each Stash/Toss runs the
// normal admission path and fans out to branches as soon as it is made.
type TxnTree[T any] interface {
	Stash(ctx context.Context, id string, payload T) (*envelope.Envelope[T], error)
	Toss(ctx context.Context, id string) error
	Crack(ctx context.Context, id string) (T, error)
}

// Txn serializes fn against every other Txn call on this tree, giving
// callers a single-tree transaction (spec.md §1's "optional single-tree
// transaction API", detailed in the expanded spec's transaction
// section). This is the minimal shape: a Go-side mutex-held section,
// shaped after bbolt's db.Update(func(tx) error) pattern, used for every
// trunk alike; no trunk-level transaction is opened, not even on
// BoltTrunk. fn's returned error aborts the
// transaction, but every Stash/Toss already applied inside fn has
// already landed in the trunk — there is no underlying rollback log, so
// callers that need atomicity across multiple calls inside fn must keep
// fn idempotent or single-operation.
func (t *Tree[T]) Txn(ctx context.Context, fn func(tx TxnTree[T]) error) error {
	t.txnMu.Lock()
	defer t.txnMu.Unlock()
	return fn(t)
}
