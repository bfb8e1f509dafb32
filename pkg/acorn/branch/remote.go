package branch

import (
	"context"
	"time"

	"github.com/acorndb/acorndb/pkg/acorn/envelope"
	"github.com/acorndb/acorndb/pkg/log"
)

// Transport is what a Remote branch needs from whatever carries
// envelopes to the far side of a network boundary. Its concrete wire
// protocol (spec §6's "POST /<tree>/stash" HTTP surface) is explicitly
// out of scope here; Transport is the seam a real implementation plugs
// into.
type Transport[T any] interface {
	PushEnvelope(ctx context.Context, leaf *envelope.Leaf[T]) error
	PushTombstone(ctx context.Context, leaf *envelope.Leaf[T]) error
	PullCurrentSet(ctx context.Context) ([]*envelope.Envelope[T], error)
}

// Remote is a Branch whose peer lives across a Transport rather than in
// this process. It reuses InProcess's push-dedup and stats bookkeeping
// by composing the same pushed-set logic rather than duplicating it.
type Remote[T any] struct {
	remoteID  string
	mode      Mode
	transport Transport[T]

	pushed *InProcess[T] // reused only for its pushedKey bookkeeping via dedup helper
}

// newPushDedup builds an InProcess with no PushTarget so Remote can reuse
// its push-dedup set, stats, logger and mode checks, since Remote pushes
// over Transport instead of calling a local Tree directly.
func newPushDedup[T any](remoteID string, mode Mode) *InProcess[T] {
	return &InProcess[T]{
		remoteID: remoteID,
		mode:     mode,
		logger:   log.WithPeer(remoteID),
		pushed:   make(map[pushedKey]struct{}),
	}
}

// NewRemote creates a branch that delivers envelopes over transport to
// the peer identified by remoteID.
func NewRemote[T any](remoteID string, mode Mode, transport Transport[T]) *Remote[T] {
	return &Remote[T]{
		remoteID:  remoteID,
		mode:      mode,
		transport: transport,
		pushed:    newPushDedup[T](remoteID, mode),
	}
}

func (b *Remote[T]) RemoteTreeID() string { return b.remoteID }
func (b *Remote[T]) Mode() Mode           { return b.mode }

func (b *Remote[T]) TryPush(ctx context.Context, leaf *envelope.Leaf[T]) error {
	if !b.pushed.canPush() || leaf.Env == nil {
		return nil
	}
	key := pushedKey{id: leaf.Key, ts: leaf.Env.Timestamp.UnixNano()}
	b.pushed.mu.Lock()
	if _, already := b.pushed.pushed[key]; already {
		b.pushed.mu.Unlock()
		return nil
	}
	b.pushed.pushed[key] = struct{}{}
	b.pushed.mu.Unlock()

	if err := b.transport.PushEnvelope(ctx, leaf); err != nil {
		b.pushed.logger.Warn().Err(err).Str("id", leaf.Key).Msg("remote push failed")
		return err
	}
	b.pushed.mu.Lock()
	b.pushed.stats.Pushed++
	b.pushed.stats.LastSync = time.Now().UTC()
	b.pushed.mu.Unlock()
	return nil
}

func (b *Remote[T]) TryDelete(ctx context.Context, leaf *envelope.Leaf[T]) error {
	if !b.pushed.canPush() {
		return nil
	}
	if err := b.transport.PushTombstone(ctx, leaf); err != nil {
		b.pushed.logger.Warn().Err(err).Str("id", leaf.Key).Msg("remote delete failed")
		return err
	}
	b.pushed.mu.Lock()
	b.pushed.stats.Deleted++
	b.pushed.mu.Unlock()
	return nil
}

func (b *Remote[T]) Shake(ctx context.Context, local SquabbleTarget[T]) error {
	if !b.pushed.canPull() {
		return nil
	}
	envs, err := b.transport.PullCurrentSet(ctx)
	if err != nil {
		b.pushed.logger.Warn().Err(err).Msg("remote shake pull failed")
		return err
	}
	for _, env := range envs {
		if err := local.Squabble(ctx, env); err != nil {
			b.pushed.logger.Warn().Err(err).Str("id", env.ID).Msg("remote shake admission failed")
			b.pushed.mu.Lock()
			b.pushed.stats.Conflicts++
			b.pushed.mu.Unlock()
		}
	}
	b.pushed.mu.Lock()
	b.pushed.stats.Pulled += int64(len(envs))
	b.pushed.mu.Unlock()
	return nil
}

func (b *Remote[T]) Stats() Stats {
	return b.pushed.Stats()
}
