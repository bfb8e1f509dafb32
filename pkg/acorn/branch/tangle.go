package branch

import "context"

// Tangle is a named per-peer connector pairing a local tree with a
// remote Branch (spec §4.5): a Branch plus a peer name. It offers only
// PushAll; single-key push and push-delete go through Branch directly,
// and a Tangle does not register itself with any tree.
type Tangle[T any] struct {
	Name   string
	Branch Branch[T]
}

// NewTangle names an already-constructed branch.
func NewTangle[T any](name string, b Branch[T]) *Tangle[T] {
	return &Tangle[T]{Name: name, Branch: b}
}

// PushAll drives a full pull from the tangle's remote, equivalent to
// calling Shake directly but named for the "push/push-delete/push-all"
// vocabulary spec §4.5 gives a Tangle.
func (tg *Tangle[T]) PushAll(ctx context.Context, local SquabbleTarget[T]) error {
	return tg.Branch.Shake(ctx, local)
}
