/*
Package branch implements outbound replication endpoints a Tree fans
leaves out to (spec §4.5). A Branch has a sync mode gating whether push
and pull occur. Conflicts are resolved by the receiving tree's judge;
the ConflictDirection values declared here are not read by any branch.
*/
package branch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/acorndb/acorndb/pkg/acorn/envelope"
	"github.com/acorndb/acorndb/pkg/log"
)

// Mode gates whether a branch pushes, pulls, both, or neither.
type Mode string

const (
	ModeBidirectional Mode = "bidirectional"
	ModePushOnly      Mode = "pushOnly"
	ModePullOnly      Mode = "pullOnly"
	ModeDisabled      Mode = "disabled"
)

// ConflictDirection names the ways a conflict on a pushed envelope can be
// settled. Neither the branches in this package nor Tree.Squabble read
// it; a receiving tree always settles conflicts with its configured
// judge.
type ConflictDirection string

const (
	DirectionUseJudge     ConflictDirection = "useJudge"
	DirectionPreferLocal  ConflictDirection = "preferLocal"
	DirectionPreferRemote ConflictDirection = "preferRemote"
)

// Stats tracks a branch's lifetime activity (spec §4.5 "per-branch
// stats").
type Stats struct {
	Pushed    int64
	Deleted   int64
	Pulled    int64
	Conflicts int64
	LastSync  time.Time
}

// Branch is the outbound endpoint contract every concrete
// implementation (in-process, remote) satisfies.
type Branch[T any] interface {
	RemoteTreeID() string
	Mode() Mode
	TryPush(ctx context.Context, leaf *envelope.Leaf[T]) error
	TryDelete(ctx context.Context, leaf *envelope.Leaf[T]) error
	Shake(ctx context.Context, local SquabbleTarget[T]) error
	Stats() Stats
}

// SquabbleTarget is the subset of Tree a branch needs to pull envelopes
// into during Shake.
type SquabbleTarget[T any] interface {
	Squabble(ctx context.Context, incoming *envelope.Envelope[T]) error
}

// PushTarget is the subset of a remote Tree an in-process branch invokes
// directly.
type PushTarget[T any] interface {
	SquabbleTarget[T]
	ID() string
	CrackAllEnvelopes(ctx context.Context) ([]*envelope.Envelope[T], error)
	Toss(ctx context.Context, id string) error
}

// pushedKey dedups repeated pushes of the same version to the same
// peer, keyed by (id, timestamp) per spec §4.5.
type pushedKey struct {
	id string
	ts int64
}

// InProcess wraps another Tree living in the same process: TryPush
// invokes the target's Squabble directly; Shake iterates the target's
// current set and squabbles each into the local tree (spec §4.5 "In-
// process branch").
type InProcess[T any] struct {
	remoteID string
	mode     Mode
	target   PushTarget[T]
	logger   zerolog.Logger

	mu     sync.Mutex
	pushed map[pushedKey]struct{}
	stats  Stats
}

// NewInProcess creates a branch pointed at target, reachable through the
// same process (no network).
func NewInProcess[T any](target PushTarget[T], mode Mode) *InProcess[T] {
	remoteID := target.ID()
	return &InProcess[T]{
		remoteID: remoteID,
		mode:     mode,
		target:   target,
		logger:   log.WithPeer(remoteID),
		pushed:   make(map[pushedKey]struct{}),
	}
}

func (b *InProcess[T]) RemoteTreeID() string { return b.remoteID }
func (b *InProcess[T]) Mode() Mode           { return b.mode }

func (b *InProcess[T]) canPush() bool {
	return b.mode == ModeBidirectional || b.mode == ModePushOnly
}

func (b *InProcess[T]) canPull() bool {
	return b.mode == ModeBidirectional || b.mode == ModePullOnly
}

func (b *InProcess[T]) TryPush(ctx context.Context, leaf *envelope.Leaf[T]) error {
	if !b.canPush() || leaf.Env == nil {
		return nil
	}
	key := pushedKey{id: leaf.Key, ts: leaf.Env.Timestamp.UnixNano()}

	b.mu.Lock()
	if _, already := b.pushed[key]; already {
		b.mu.Unlock()
		return nil
	}
	b.pushed[key] = struct{}{}
	b.mu.Unlock()

	if err := b.target.Squabble(ctx, leaf.Env); err != nil {
		b.logger.Warn().Err(err).Str("id", leaf.Key).Msg("in-process push failed")
		return err
	}

	b.mu.Lock()
	b.stats.Pushed++
	b.stats.LastSync = time.Now().UTC()
	b.mu.Unlock()
	return nil
}

// TryDelete delivers a tombstone by tossing the key on the remote tree
// directly.
func (b *InProcess[T]) TryDelete(ctx context.Context, leaf *envelope.Leaf[T]) error {
	if !b.canPush() {
		return nil
	}
	if err := b.target.Toss(ctx, leaf.Key); err != nil {
		b.logger.Warn().Err(err).Str("id", leaf.Key).Msg("in-process delete failed")
		return err
	}
	b.mu.Lock()
	b.stats.Deleted++
	b.stats.LastSync = time.Now().UTC()
	b.mu.Unlock()
	return nil
}

// Shake pulls the remote's current set and admits each into local via
// Squabble (spec §4.5 "shake(localTree)").
func (b *InProcess[T]) Shake(ctx context.Context, local SquabbleTarget[T]) error {
	if !b.canPull() {
		return nil
	}
	envs, err := b.target.CrackAllEnvelopes(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("in-process shake pull failed")
		return err
	}
	for _, env := range envs {
		if err := local.Squabble(ctx, env); err != nil {
			b.logger.Warn().Err(err).Str("id", env.ID).Msg("in-process shake admission failed")
			b.mu.Lock()
			b.stats.Conflicts++
			b.mu.Unlock()
			continue
		}
	}
	b.mu.Lock()
	b.stats.Pulled += int64(len(envs))
	b.stats.LastSync = time.Now().UTC()
	b.mu.Unlock()
	return nil
}

func (b *InProcess[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
