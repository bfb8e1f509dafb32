package trunk

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
	"github.com/acorndb/acorndb/pkg/acorn/envelope"
	"github.com/acorndb/acorndb/pkg/acorn/root"
	"github.com/acorndb/acorndb/pkg/metrics"
	"github.com/edsrzf/mmap-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const initialMappingSize = 64 * 1024 * 1024 // 64 MiB, spec §4.2.3

const btreeTrunkKind = "btree"

// btreeIndexEntry is the in-memory pointer a live id resolves to.
type btreeIndexEntry struct {
	Offset    int64
	Length    int64
	Timestamp time.Time
	Version   int
}

// BTreeTrunk is the memory-mapped, batched record trunk (spec §4.2.3):
// the hardest trunk in the core. A single growable file holds
// consecutively written records; a concurrent index maps id to the most
// recent record's location; writes reserve space with an atomic
// fetch-add and are optionally batched before the mapping is synced to
// disk.
type BTreeTrunk[T any] struct {
	path   string
	file   *os.File
	logger zerolog.Logger
	chain  *root.Chain

	mapMu    sync.RWMutex // guards `mapping` and `capacity` together
	mapping  mmap.MMap
	capacity atomic.Int64
	growMu   sync.Mutex // serializes expansion

	cursor atomic.Int64 // next-write offset, fetch-add reserved

	index sync.Map // string id -> *btreeIndexEntry

	indexLoadOnce sync.Once
	indexLoaded   atomic.Bool

	batchThreshold int
	flushInterval  time.Duration
	pendingCount   atomic.Int64
	flushSem       *semaphore.Weighted
	stopCh         chan struct{}
	flusherDone    chan struct{}

	closed atomic.Bool
}

// BTreeOptions configures a BTreeTrunk.
type BTreeOptions struct {
	// BatchThreshold is the pending-write count that triggers an
	// immediate flush-to-disk. Default 100.
	BatchThreshold int
	// FlushInterval is the maximum time pending writes wait for a
	// flush-to-disk. Default 200ms.
	FlushInterval time.Duration
	Logger        zerolog.Logger
}

// DefaultBTreeOptions returns the spec's suggested batching defaults.
func DefaultBTreeOptions() BTreeOptions {
	return BTreeOptions{BatchThreshold: 100, FlushInterval: 200 * time.Millisecond}
}

// OpenBTreeTrunk opens (creating if absent) the record file at path,
// maps it into memory, and starts the background flusher. The index is
// lazily rebuilt on first access (see ensureIndexLoaded) rather than
// eagerly here, per spec §9's resolution of the "_indexLoaded ordering"
// open question: callers may register roots between Open and the first
// read.
func OpenBTreeTrunk[T any](path string, opts BTreeOptions) (*BTreeTrunk[T], error) {
	if opts.BatchThreshold == 0 {
		opts.BatchThreshold = 100
	}
	if opts.FlushInterval == 0 {
		opts.FlushInterval = 200 * time.Millisecond
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("btree trunk: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("btree trunk: stat: %w", err)
	}

	size := info.Size()
	if size < initialMappingSize {
		if err := f.Truncate(initialMappingSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("btree trunk: truncate: %w", err)
		}
		size = initialMappingSize
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("btree trunk: mmap: %w", err)
	}

	t := &BTreeTrunk[T]{
		path:          path,
		file:          f,
		logger:        orDefaultLogger(opts.Logger, btreeTrunkKind),
		chain:         root.NewChain(),
		mapping:       m,
		batchThreshold: opts.BatchThreshold,
		flushInterval:  opts.FlushInterval,
		flushSem:       semaphore.NewWeighted(1),
		stopCh:         make(chan struct{}),
		flusherDone:    make(chan struct{}),
	}
	t.capacity.Store(size)
	t.cursor.Store(info.Size()) // real prior content starts before the zero-padding, recovered during index load

	go t.flusherLoop()
	return t, nil
}

func (t *BTreeTrunk[T]) Roots() *root.Chain { return t.chain }

func (t *BTreeTrunk[T]) Capabilities() Capabilities {
	return Capabilities{History: false, Sync: true, Durable: true, Async: false}
}

// ensureIndexLoaded scans the file from offset zero, rebuilding the index
// and setting the write cursor to the first invalid-magic or truncated
// record it finds (spec §4.2.3: "the map is rebuilt on open by scanning
// records..., stopping at the first invalid magic or truncated record").
// Must complete before any Crack, CrackAll, or Toss (spec §9).
func (t *BTreeTrunk[T]) ensureIndexLoaded() {
	t.indexLoadOnce.Do(func() {
		t.mapMu.RLock()
		buf := t.mapping
		cap := t.capacity.Load()
		t.mapMu.RUnlock()

		var offset int64
		for offset < cap {
			rec, err := decodeRecord(buf[offset:])
			if err != nil {
				break
			}
			t.index.Store(rec.ID, &btreeIndexEntry{
				Offset:    offset,
				Length:    int64(rec.RecordLen),
				Timestamp: rec.Timestamp,
				Version:   rec.Version,
			})
			offset += int64(rec.RecordLen)
		}
		t.cursor.Store(offset)
		t.indexLoaded.Store(true)
	})
}

// reserve atomically claims [offset, offset+n) in the file, growing the
// mapping first if the reservation would exceed current capacity (spec
// §4.2.3 write path steps 4-5).
func (t *BTreeTrunk[T]) reserve(n int64) int64 {
	offset := t.cursor.Add(n) - n
	t.ensureCapacity(offset + n)
	return offset
}

func (t *BTreeTrunk[T]) ensureCapacity(need int64) {
	for {
		t.mapMu.RLock()
		cap := t.capacity.Load()
		t.mapMu.RUnlock()
		if need <= cap {
			return
		}
		t.growMu.Lock()
		if t.capacity.Load() < need {
			t.expand(need)
		}
		t.growMu.Unlock()
	}
}

// expand doubles the mapping (or grows to `need` if doubling isn't
// enough) by unmapping, resizing the underlying file, and remapping
// (spec §4.2.3 step 5). Callers hold growMu.
func (t *BTreeTrunk[T]) expand(need int64) {
	t.mapMu.Lock()
	defer t.mapMu.Unlock()

	newSize := t.capacity.Load() * 2
	if newSize < need {
		newSize = need
	}

	if err := t.mapping.Unmap(); err != nil {
		t.logger.Error().Err(err).Msg("btree trunk: unmap during expansion")
	}
	if err := t.file.Truncate(newSize); err != nil {
		t.logger.Error().Err(err).Msg("btree trunk: truncate during expansion")
		return
	}
	m, err := mmap.Map(t.file, mmap.RDWR, 0)
	if err != nil {
		t.logger.Error().Err(err).Msg("btree trunk: remap during expansion")
		return
	}
	t.mapping = m
	t.capacity.Store(newSize)
}

func (t *BTreeTrunk[T]) writeAt(offset int64, data []byte) {
	t.mapMu.RLock()
	defer t.mapMu.RUnlock()
	copy(t.mapping[offset:offset+int64(len(data))], data)
}

func (t *BTreeTrunk[T]) readAt(offset, length int64) []byte {
	t.mapMu.RLock()
	defer t.mapMu.RUnlock()
	out := make([]byte, length)
	copy(out, t.mapping[offset:offset+length])
	return out
}

func (t *BTreeTrunk[T]) Stash(ctx context.Context, id string, env *envelope.Envelope[T]) error {
	timer := metrics.NewTimer()
	t.ensureIndexLoaded()

	raw, err := envelope.Serialize(env)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(btreeTrunkKind, "stash", "error").Inc()
		return err
	}
	rctx := root.NewContext(ctx, id, root.OpStash)
	raw, err = t.chain.ApplyStash(raw, rctx)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(btreeTrunkKind, "stash", "error").Inc()
		return err
	}

	rec := encodeRecord(id, env.Version, env.Timestamp, raw)
	offset := t.reserve(int64(len(rec)))
	t.writeAt(offset, rec)

	t.index.Store(id, &btreeIndexEntry{
		Offset:    offset,
		Length:    int64(len(rec)),
		Timestamp: env.Timestamp,
		Version:   env.Version,
	})

	if t.pendingCount.Add(1) >= int64(t.batchThreshold) {
		go t.Flush()
	}
	metrics.TrunkOpsTotal.WithLabelValues(btreeTrunkKind, "stash", "ok").Inc()
	timer.ObserveDurationVec(metrics.TrunkOpDuration, btreeTrunkKind, "stash")
	return nil
}

func (t *BTreeTrunk[T]) Crack(ctx context.Context, id string) (*envelope.Envelope[T], error) {
	timer := metrics.NewTimer()
	t.ensureIndexLoaded()

	v, ok := t.index.Load(id)
	if !ok {
		metrics.TrunkOpsTotal.WithLabelValues(btreeTrunkKind, "crack", "not_found").Inc()
		return nil, acornerr.ErrNotFound
	}
	entry := v.(*btreeIndexEntry)
	buf := t.readAt(entry.Offset, entry.Length)

	rec, err := decodeRecord(buf)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(btreeTrunkKind, "crack", "error").Inc()
		return nil, err
	}
	rctx := root.NewContext(ctx, id, root.OpCrack)
	payload, err := t.chain.ApplyCrack(rec.Payload, rctx)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(btreeTrunkKind, "crack", "error").Inc()
		return nil, err
	}
	env, err := envelope.Deserialize[T](payload)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(btreeTrunkKind, "crack", "error").Inc()
		return nil, err
	}
	metrics.TrunkOpsTotal.WithLabelValues(btreeTrunkKind, "crack", "ok").Inc()
	timer.ObserveDurationVec(metrics.TrunkOpDuration, btreeTrunkKind, "crack")
	return env, nil
}

// Toss removes id from the index only; space is reclaimed by Compact
// (spec §4.2.3 deletes are logical).
func (t *BTreeTrunk[T]) Toss(ctx context.Context, id string) error {
	t.ensureIndexLoaded()
	t.index.Delete(id)
	metrics.TrunkOpsTotal.WithLabelValues(btreeTrunkKind, "toss", "ok").Inc()
	return nil
}

func (t *BTreeTrunk[T]) CrackAll(ctx context.Context) ([]*envelope.Envelope[T], error) {
	t.ensureIndexLoaded()
	var ids []string
	t.index.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
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

func (t *BTreeTrunk[T]) GetHistory(ctx context.Context, id string) ([]*envelope.Envelope[T], error) {
	return nil, acornerr.ErrUnsupported
}

func (t *BTreeTrunk[T]) ExportChanges(ctx context.Context, seq uint64) ([]ChangeRecord[T], uint64, error) {
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

func (t *BTreeTrunk[T]) ImportChanges(ctx context.Context, records []ChangeRecord[T]) error {
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
	return t.Flush()
}

// flusherLoop is the single background task that syncs the mapping to
// disk on a timer or when the pending-write count crosses the batch
// threshold (spec §4.2.3 Batching, §5 "a single background task; uses a
// semaphore to ensure serialized file-level flush").
func (t *BTreeTrunk[T]) flusherLoop() {
	defer close(t.flusherDone)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if t.pendingCount.Load() > 0 {
				if err := t.Flush(); err != nil {
					t.logger.Error().Err(err).Msg("btree trunk: periodic flush failed")
				}
			}
		case <-t.stopCh:
			return
		}
	}
}

// Flush syncs the mapping and the underlying file descriptor. Safe to
// call concurrently with writers and with itself; the semaphore ensures
// only one flush is in flight.
func (t *BTreeTrunk[T]) Flush() error {
	if err := t.flushSem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer t.flushSem.Release(1)

	timer := metrics.NewTimer()
	t.mapMu.RLock()
	m := t.mapping
	t.mapMu.RUnlock()

	if err := m.Flush(); err != nil {
		return fmt.Errorf("%w: mapping flush: %v", acornerr.ErrTransientIO, err)
	}
	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("%w: file sync: %v", acornerr.ErrTransientIO, err)
	}
	t.pendingCount.Store(0)
	timer.ObserveDuration(metrics.TrunkFlushDuration)
	return nil
}

// Compact drains pending writes, rewrites every live record into a new
// file, and swaps it in, reclaiming space held by tossed or superseded
// records (spec §4.2.3 Compaction). It is serialized against writers via
// growMu, the same lock write-path expansion uses.
func (t *BTreeTrunk[T]) Compact() error {
	if err := t.Flush(); err != nil {
		return err
	}

	t.growMu.Lock()
	defer t.growMu.Unlock()

	tmpPath := t.path + ".compact"
	newFile, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("btree trunk: compact create: %w", err)
	}

	type liveRecord struct {
		id  string
		buf []byte
	}
	var live []liveRecord
	t.index.Range(func(k, v any) bool {
		entry := v.(*btreeIndexEntry)
		live = append(live, liveRecord{id: k.(string), buf: t.readAt(entry.Offset, entry.Length)})
		return true
	})

	var offset int64
	newIndex := make(map[string]*btreeIndexEntry, len(live))
	for _, rec := range live {
		if _, err := newFile.WriteAt(rec.buf, offset); err != nil {
			newFile.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("%w: compact rewrite: %v", acornerr.ErrTransientIO, err)
		}
		decoded, err := decodeRecord(rec.buf)
		if err != nil {
			continue
		}
		newIndex[rec.id] = &btreeIndexEntry{
			Offset:    offset,
			Length:    int64(len(rec.buf)),
			Timestamp: decoded.Timestamp,
			Version:   decoded.Version,
		}
		offset += int64(len(rec.buf))
	}

	minSize := offset
	if minSize < initialMappingSize {
		minSize = initialMappingSize
	}
	if err := newFile.Truncate(minSize); err != nil {
		newFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("btree trunk: compact truncate: %w", err)
	}

	if err := t.mapping.Unmap(); err != nil {
		t.logger.Error().Err(err).Msg("btree trunk: unmap before compact swap")
	}
	if err := t.file.Close(); err != nil {
		t.logger.Error().Err(err).Msg("btree trunk: close before compact swap")
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		return fmt.Errorf("btree trunk: compact rename: %w", err)
	}
	newFile.Close()

	f, err := os.OpenFile(t.path, os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("btree trunk: reopen after compact: %w", err)
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return fmt.Errorf("btree trunk: remap after compact: %w", err)
	}

	t.mapMu.Lock()
	t.file = f
	t.mapping = m
	t.capacity.Store(minSize)
	t.mapMu.Unlock()

	t.cursor.Store(offset)
	t.index = sync.Map{}
	for id, entry := range newIndex {
		t.index.Store(id, entry)
	}
	return nil
}

func (t *BTreeTrunk[T]) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.stopCh)
	<-t.flusherDone

	t.ensureIndexLoaded()
	if err := t.Flush(); err != nil {
		return err
	}
	t.mapMu.Lock()
	defer t.mapMu.Unlock()
	if err := t.mapping.Unmap(); err != nil {
		return err
	}
	return t.file.Close()
}
