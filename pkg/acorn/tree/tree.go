/*
Package tree implements the typed façade every AcornDB caller actually
talks to (spec §4.4): a bounded read-through cache over a Trunk, auto-id
extraction, TTL enforcement, change events, and conflict-resolving write
admission. The Tree owns linearizability per id; the Trunk underneath it
owns durability.
*/
package tree

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
	"github.com/acorndb/acorndb/pkg/acorn/cache"
	"github.com/acorndb/acorndb/pkg/acorn/envelope"
	"github.com/acorndb/acorndb/pkg/acorn/judge"
	"github.com/acorndb/acorndb/pkg/acorn/trunk"
	"github.com/acorndb/acorndb/pkg/log"
	"github.com/acorndb/acorndb/pkg/metrics"
)

// Branch is the outbound fan-out target a Tree pushes leaves to. Defined
// here (rather than imported from package branch) to avoid an import
// cycle: package branch wraps a *Tree, so Tree can only depend on an
// interface its callers' branches satisfy.
type Branch[T any] interface {
	RemoteTreeID() string
	TryPush(ctx context.Context, leaf *envelope.Leaf[T]) error
	TryDelete(ctx context.Context, leaf *envelope.Leaf[T]) error
}

// DefaultMaxHops bounds mesh propagation distance when Options.MaxHops
// is left unset (spec §4.5, default 10).
const DefaultMaxHops = 10

// dedupCapacity bounds the recent-changeId set (spec §5, "LRU of e.g.
// 10k entries").
const dedupCapacity = 10000

// Options configures a Tree at construction time. Cache and Judge are
// passed separately to New so their type parameter can match T; Go does
// not allow a generic field inside a non-generic-at-use-site struct
// literal without repeating the type argument at every call site.
type Options struct {
	ID          string
	TTLInterval time.Duration // 0 uses a 60s sweep; negative disables the sweeper
	MaxHops     int           // 0 uses DefaultMaxHops
}

// Tree is the typed façade described in spec §4.4. T is the payload
// type stored in every envelope this tree admits.
type Tree[T any] struct {
	id    string
	trunk trunk.Trunk[T]

	mu    sync.Mutex // guards per-id linearizability of stash/toss/squabble
	txnMu sync.Mutex // serializes Txn calls against each other
	cache  cache.Strategy[T]
	judge  judge.ConflictJudge[T]
	logger zerolog.Logger

	branchesMu sync.RWMutex
	branches   map[string]Branch[T]

	dedup *dedupSet

	broker *broker[T]

	maxHops int

	ttlInterval time.Duration
	ttlStop     chan struct{}
	ttlDone     chan struct{}
	ttlOnce     sync.Once
}

// New constructs a Tree with the given trunk and options. A zero
// Options{} yields a random tree id, an LRU(1000) cache, a
// TimestampJudge, and a 60s TTL sweep — the spec's stated defaults.
func New[T any](tk trunk.Trunk[T], opts Options, cacheStrategy cache.Strategy[T], conflictJudge judge.ConflictJudge[T]) *Tree[T] {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	if cacheStrategy == nil {
		lru, err := cache.NewLRU[T](1000)
		if err != nil {
			lru = nil
		}
		if lru != nil {
			cacheStrategy = lru
		} else {
			cacheStrategy = cache.NoCache[T]{}
		}
	}
	if conflictJudge == nil {
		conflictJudge = judge.TimestampJudge[T]{}
	}
	ttlInterval := opts.TTLInterval
	if ttlInterval == 0 {
		ttlInterval = 60 * time.Second
	}
	maxHops := opts.MaxHops
	if maxHops == 0 {
		maxHops = DefaultMaxHops
	}

	t := &Tree[T]{
		id:          id,
		trunk:       tk,
		cache:       cacheStrategy,
		judge:       conflictJudge,
		logger:      log.WithTreeID(id),
		branches:    make(map[string]Branch[T]),
		dedup:       newDedupSet(dedupCapacity),
		broker:      newBroker[T](),
		maxHops:     maxHops,
		ttlInterval: ttlInterval,
		ttlStop:     make(chan struct{}),
		ttlDone:     make(chan struct{}),
	}

	if ttlInterval > 0 {
		go t.ttlSweepLoop()
	}
	return t
}

// ID returns the tree's unique id, used as originNodeId on every
// locally authored write.
func (t *Tree[T]) ID() string { return t.id }

// RegisterBranch adds an outbound branch. Its RemoteTreeID is used for
// loop-prevention's visited-set check.
func (t *Tree[T]) RegisterBranch(b Branch[T]) {
	t.branchesMu.Lock()
	defer t.branchesMu.Unlock()
	t.branches[b.RemoteTreeID()] = b
}

func (t *Tree[T]) branchSnapshot() []Branch[T] {
	t.branchesMu.RLock()
	defer t.branchesMu.RUnlock()
	out := make([]Branch[T], 0, len(t.branches))
	for _, b := range t.branches {
		out = append(out, b)
	}
	return out
}

// Subscribe registers a listener for every change event this tree
// admits. Events are queued to the tree's broker goroutine and then
// sent to the returned buffered channel; delivery is not synchronous
// with the admitting call, and an event is dropped for a subscriber
// whose channel is full.
func (t *Tree[T]) Subscribe() Subscriber[T] {
	return t.broker.Subscribe()
}

// Unsubscribe removes a prior subscription.
func (t *Tree[T]) Unsubscribe(sub Subscriber[T]) {
	t.broker.Unsubscribe(sub)
}

// Stash is write admission for a locally authored value (spec §4.4
// steps 1-7): extract or use the supplied id, compute the next version,
// persist through the trunk, update the cache, emit a change event, and
// fan out to branches.
func (t *Tree[T]) Stash(ctx context.Context, id string, payload T) (*envelope.Envelope[T], error) {
	if id == "" {
		extracted, err := extractID[T](payload)
		if err != nil {
			return nil, err
		}
		id = extracted
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	version := 1
	if cur, err := t.trunk.Crack(ctx, id); err == nil {
		version = cur.Version + 1
	}

	env := &envelope.Envelope[T]{
		ID:           id,
		Payload:      payload,
		Timestamp:    time.Now().UTC(),
		Version:      version,
		ChangeID:     uuid.NewString(),
		OriginNodeID: t.id,
		HopCount:     0,
	}

	if err := t.trunk.Stash(ctx, id, env); err != nil {
		return nil, err
	}
	t.cache.OnStash(id, env)
	t.dedup.Add(env.ChangeID)

	metrics.StashTotal.Inc()
	t.emit(envelope.KindStash, id, env)
	t.fanOut(ctx, envelope.KindStash, id, env, 0, map[string]struct{}{t.id: {}})

	return env, nil
}

// Squabble is conflict-resolving admission for an envelope arriving
// from a peer (spec §4.4 steps 1-7).
func (t *Tree[T]) Squabble(ctx context.Context, incoming *envelope.Envelope[T]) error {
	if t.dedup.Contains(incoming.ChangeID) || incoming.OriginNodeID == t.id {
		metrics.SquabbleTotal.WithLabelValues("dropped_dedup").Inc()
		return nil
	}
	if incoming.HopCount >= t.maxHops {
		metrics.SquabbleTotal.WithLabelValues("dropped_hop_limit").Inc()
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	current, err := t.trunk.Crack(ctx, incoming.ID)
	var local *envelope.Envelope[T]
	if err == nil {
		local = current
	} else if err != acornerr.ErrNotFound {
		return err
	}

	winner := incoming
	won := true
	if local != nil {
		verdict := t.judge.Resolve(local, incoming)
		if verdict.Winner == judge.WinnerLocal {
			winner = local
			won = false
		}
	}

	t.dedup.Add(incoming.ChangeID)

	if !won {
		metrics.SquabbleTotal.WithLabelValues("local_won").Inc()
		return nil
	}
	metrics.SquabbleTotal.WithLabelValues("incoming_won").Inc()

	if err := t.trunk.Stash(ctx, incoming.ID, winner); err != nil {
		return err
	}
	t.cache.OnStash(incoming.ID, winner)
	t.emit(envelope.KindSquabble, incoming.ID, winner)

	visited := map[string]struct{}{t.id: {}}
	t.fanOut(ctx, envelope.KindSquabble, incoming.ID, winner, incoming.HopCount+1, visited)
	return nil
}

// Toss deletes id via a versioned tombstone, emits a change event, and
// fans out.
func (t *Tree[T]) Toss(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.trunk.Toss(ctx, id); err != nil {
		return err
	}
	t.cache.OnToss(id)
	metrics.TossTotal.Inc()
	t.emit(envelope.KindToss, id, nil)
	t.fanOut(ctx, envelope.KindToss, id, nil, 0, map[string]struct{}{t.id: {}})
	return nil
}

// Crack returns the current payload for id or acornerr.ErrNotFound,
// consulting the cache first and rehydrating it from the trunk on miss
// (spec §4.4 cache semantics). Expired entries are treated as not found.
func (t *Tree[T]) Crack(ctx context.Context, id string) (T, error) {
	var zero T
	if env, ok := t.cache.Get(id); ok {
		if env.Expired(time.Now().UTC()) {
			t.cache.OnToss(id)
			return zero, acornerr.ErrNotFound
		}
		return env.Payload, nil
	}

	env, err := t.trunk.Crack(ctx, id)
	if err != nil {
		return zero, err
	}
	if env.Expired(time.Now().UTC()) {
		_ = t.Toss(ctx, id)
		return zero, acornerr.ErrNotFound
	}
	t.cache.OnStash(id, env)
	return env.Payload, nil
}

// CrackAll iterates every current entry directly from the trunk,
// bypassing the cache (spec §4.4 Reads).
func (t *Tree[T]) CrackAll(ctx context.Context) ([]T, error) {
	envs, err := t.trunk.CrackAll(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]T, 0, len(envs))
	for _, env := range envs {
		if env.Expired(now) {
			continue
		}
		out = append(out, env.Payload)
	}
	return out, nil
}

// CrackAllEnvelopes returns every current envelope directly from the
// trunk, including replication metadata — what an in-process branch's
// Shake pulls to squabble into a peer tree (spec §4.5 "shake... request
// the remote's current set").
func (t *Tree[T]) CrackAllEnvelopes(ctx context.Context) ([]*envelope.Envelope[T], error) {
	return t.trunk.CrackAll(ctx)
}

func (t *Tree[T]) emit(kind envelope.Kind, id string, env *envelope.Envelope[T]) {
	var payload *T
	if env != nil {
		payload = &env.Payload
	}
	t.broker.Publish(&envelope.ChangeEvent[T]{
		Kind:         kind,
		ID:           id,
		Payload:      payload,
		Env:          env,
		Timestamp:    time.Now().UTC(),
		OriginNodeID: t.id,
	})
}

// fanOut forwards a leaf to every branch whose remote tree id has not
// already seen it, bounded by maxHops (spec §4.5 loop-prevention
// algorithm). Per-branch delivery failures are isolated and logged, not
// propagated to the author (spec §7). The envelope handed to each branch
// carries the accumulated hop count so the remote's own Squabble enforces
// the same bound (spec §3 "hopCount incremented on each inter-tree
// hand-off").
func (t *Tree[T]) fanOut(ctx context.Context, kind envelope.Kind, id string, env *envelope.Envelope[T], hopCount int, visited map[string]struct{}) {
	if hopCount >= t.maxHops {
		metrics.MeshDroppedTotal.WithLabelValues("hop_limit").Inc()
		return
	}
	leaf := &envelope.Leaf[T]{
		LeafID:       uuid.NewString(),
		OriginTreeID: t.id,
		VisitedTrees: visited,
		HopCount:     hopCount,
		Type:         kind,
		Key:          id,
		Env:          env,
	}

	for _, b := range t.branchSnapshot() {
		if leaf.Visited(b.RemoteTreeID()) {
			metrics.MeshDroppedTotal.WithLabelValues("already_visited").Inc()
			continue
		}
		forwarded := leaf.WithVisit(b.RemoteTreeID())
		if forwarded.Env != nil {
			envCopy := forwarded.Env.Clone()
			envCopy.HopCount = forwarded.HopCount
			forwarded.Env = envCopy
		}
		timer := metrics.NewTimer()
		var err error
		if kind == envelope.KindToss {
			err = b.TryDelete(ctx, forwarded)
		} else {
			err = b.TryPush(ctx, forwarded)
		}
		timer.ObserveDurationVec(metrics.BranchDeliveryDuration, b.RemoteTreeID())
		if err != nil {
			// Isolated per branch: one unreachable peer must never fail
			// the author's write.
			metrics.MeshDroppedTotal.WithLabelValues("delivery_failed").Inc()
			t.logger.Warn().Err(err).Str("branch", b.RemoteTreeID()).Msg("branch delivery failed")
			continue
		}
		metrics.MeshHopsTotal.Inc()
	}
}

func (t *Tree[T]) ttlSweepLoop() {
	defer close(t.ttlDone)
	ticker := time.NewTicker(t.ttlInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweepExpired()
		case <-t.ttlStop:
			return
		}
	}
}

func (t *Tree[T]) sweepExpired() {
	ctx := context.Background()
	envs, err := t.trunk.CrackAll(ctx)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	for _, env := range envs {
		if env.Expired(now) {
			_ = t.Toss(ctx, env.ID)
			metrics.TTLExpiredTotal.Inc()
		}
	}
}

// Close stops the TTL sweeper and the change-event broker. It does not
// close the underlying trunk; callers own that lifecycle.
func (t *Tree[T]) Close() {
	t.ttlOnce.Do(func() {
		close(t.ttlStop)
		if t.ttlInterval > 0 {
			<-t.ttlDone
		}
	})
	t.broker.Stop()
}

func extractID[T any](payload T) (string, error) {
	return envelope.ExtractID(payload)
}
