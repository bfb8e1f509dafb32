package trunk

import (
	"context"
	"sync"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
	"github.com/acorndb/acorndb/pkg/acorn/envelope"
	"github.com/acorndb/acorndb/pkg/acorn/root"
	"github.com/acorndb/acorndb/pkg/metrics"
)

const memTrunkKind = "memory"

// MemTrunk is a plain in-memory trunk: no durability, no history, used
// for tests and hot tiers (spec §4.2.1). It still routes every envelope
// through the owning root chain so policy/encryption roots behave
// identically regardless of which trunk a tree picks.
type MemTrunk[T any] struct {
	mu      sync.RWMutex
	current map[string][]byte
	chain   *root.Chain
}

// NewMemTrunk returns an empty in-memory trunk.
func NewMemTrunk[T any]() *MemTrunk[T] {
	return &MemTrunk[T]{
		current: make(map[string][]byte),
		chain:   root.NewChain(),
	}
}

func (t *MemTrunk[T]) Roots() *root.Chain { return t.chain }

func (t *MemTrunk[T]) Capabilities() Capabilities {
	return Capabilities{History: false, Sync: true, Durable: false, Async: false}
}

func (t *MemTrunk[T]) Stash(ctx context.Context, id string, env *envelope.Envelope[T]) error {
	timer := metrics.NewTimer()
	raw, err := envelope.Serialize(env)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(memTrunkKind, "stash", "error").Inc()
		return err
	}
	rctx := root.NewContext(ctx, id, root.OpStash)
	raw, err = t.chain.ApplyStash(raw, rctx)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(memTrunkKind, "stash", "error").Inc()
		return err
	}
	t.mu.Lock()
	t.current[id] = raw
	t.mu.Unlock()
	metrics.TrunkOpsTotal.WithLabelValues(memTrunkKind, "stash", "ok").Inc()
	timer.ObserveDurationVec(metrics.TrunkOpDuration, memTrunkKind, "stash")
	return nil
}

func (t *MemTrunk[T]) Crack(ctx context.Context, id string) (*envelope.Envelope[T], error) {
	timer := metrics.NewTimer()
	t.mu.RLock()
	raw, ok := t.current[id]
	t.mu.RUnlock()
	if !ok {
		metrics.TrunkOpsTotal.WithLabelValues(memTrunkKind, "crack", "not_found").Inc()
		return nil, acornerr.ErrNotFound
	}
	rctx := root.NewContext(ctx, id, root.OpCrack)
	raw, err := t.chain.ApplyCrack(raw, rctx)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(memTrunkKind, "crack", "error").Inc()
		return nil, err
	}
	env, err := envelope.Deserialize[T](raw)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(memTrunkKind, "crack", "error").Inc()
		return nil, err
	}
	metrics.TrunkOpsTotal.WithLabelValues(memTrunkKind, "crack", "ok").Inc()
	timer.ObserveDurationVec(metrics.TrunkOpDuration, memTrunkKind, "crack")
	return env, nil
}

func (t *MemTrunk[T]) Toss(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.current, id)
	metrics.TrunkOpsTotal.WithLabelValues(memTrunkKind, "toss", "ok").Inc()
	return nil
}

func (t *MemTrunk[T]) CrackAll(ctx context.Context) ([]*envelope.Envelope[T], error) {
	t.mu.RLock()
	ids := make([]string, 0, len(t.current))
	for id := range t.current {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	out := make([]*envelope.Envelope[T], 0, len(ids))
	for _, id := range ids {
		e, err := t.Crack(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (t *MemTrunk[T]) GetHistory(ctx context.Context, id string) ([]*envelope.Envelope[T], error) {
	return nil, acornerr.ErrUnsupported
}

func (t *MemTrunk[T]) ExportChanges(ctx context.Context, seq uint64) ([]ChangeRecord[T], uint64, error) {
	envs, err := t.CrackAll(ctx)
	if err != nil {
		return nil, seq, err
	}
	out := make([]ChangeRecord[T], 0, len(envs))
	for _, e := range envs {
		out = append(out, ChangeRecord[T]{Op: envelope.KindStash, Env: e})
	}
	return out, uint64(len(out)), nil
}

func (t *MemTrunk[T]) ImportChanges(ctx context.Context, records []ChangeRecord[T]) error {
	for _, rec := range records {
		if rec.Op == envelope.KindToss {
			if err := t.Toss(ctx, rec.Env.ID); err != nil {
				return err
			}
			continue
		}
		if err := t.Stash(ctx, rec.Env.ID, rec.Env); err != nil {
			return err
		}
	}
	return nil
}

func (t *MemTrunk[T]) Close() error { return nil }
