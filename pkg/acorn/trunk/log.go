package trunk

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
	"github.com/acorndb/acorndb/pkg/acorn/envelope"
	"github.com/acorndb/acorndb/pkg/acorn/root"
	"github.com/acorndb/acorndb/pkg/metrics"
	"github.com/rs/zerolog"
)

const logTrunkKind = "log"

// logRecord is the on-disk line format (spec §6): one JSON object per
// line, separated by OS newlines, tolerant of blank lines on replay.
// Shell carries the envelope's root-chain-transformed bytes, base64
// encoded so an encryption or compression root's arbitrary binary output
// survives as valid JSON text.
type logRecord struct {
	Action    string    `json:"Action"` // "Save" or "Delete"
	ID        string    `json:"Id"`
	Shell     string    `json:"Shell,omitempty"`
	Timestamp time.Time `json:"Timestamp"`
}

// LogTrunk is the append-only document log (spec §4.2.2): a sequential
// change log replayed on open to rebuild a current index and a history
// index, bounded only by log size.
type LogTrunk[T any] struct {
	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	chain   *root.Chain
	logger  zerolog.Logger

	current map[string]*envelope.Envelope[T]
	history map[string][]*envelope.Envelope[T]
}

// OpenLogTrunk opens (creating if absent) the log file at path and
// replays it to rebuild the current/history indexes. A truncated final
// record (a crash mid-append) is discarded; every write that completed
// before the crash survives (spec §4.2.2 crash safety).
func OpenLogTrunk[T any](path string, logger zerolog.Logger) (*LogTrunk[T], error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("log trunk: open: %w", err)
	}

	t := &LogTrunk[T]{
		file:    f,
		writer:  bufio.NewWriter(f),
		chain:   root.NewChain(),
		logger:  orDefaultLogger(logger, logTrunkKind),
		current: make(map[string]*envelope.Envelope[T]),
		history: make(map[string][]*envelope.Envelope[T]),
	}

	if err := t.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

// replay scans the file line by line, tolerating blank lines, and stops
// (truncating the write cursor to the last valid record) at the first
// line that fails to parse — the crash-recovery contract of spec
// §4.2.2/§8.
func (t *LogTrunk[T]) replay() error {
	if _, err := t.file.Seek(0, 0); err != nil {
		return fmt.Errorf("log trunk: seek: %w", err)
	}
	scanner := bufio.NewScanner(t.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var validOffset int64
	var offset int64
	for scanner.Scan() {
		line := scanner.Bytes()
		lineLen := int64(len(line)) + 1 // + newline
		if len(line) == 0 {
			offset += lineLen
			validOffset = offset
			continue
		}
		var rec logRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			t.logger.Warn().Err(err).Msg("log trunk: truncating at corrupt/partial tail record")
			break
		}
		if err := t.applyRecord(rec); err != nil {
			t.logger.Warn().Err(err).Msg("log trunk: truncating at unreadable record")
			break
		}
		offset += lineLen
		validOffset = offset
	}

	if err := t.file.Truncate(validOffset); err != nil {
		return fmt.Errorf("log trunk: truncate tail: %w", err)
	}
	if _, err := t.file.Seek(validOffset, 0); err != nil {
		return fmt.Errorf("log trunk: seek: %w", err)
	}
	t.writer = bufio.NewWriter(t.file)
	return nil
}

func (t *LogTrunk[T]) applyRecord(rec logRecord) error {
	if rec.Action == "Delete" {
		if cur, ok := t.current[rec.ID]; ok {
			t.history[rec.ID] = append(t.history[rec.ID], cur)
		}
		delete(t.current, rec.ID)
		return nil
	}

	raw, err := base64.StdEncoding.DecodeString(rec.Shell)
	if err != nil {
		return fmt.Errorf("log trunk: decode shell: %w", err)
	}
	rctx := root.NewContext(context.Background(), rec.ID, root.OpCrack)
	raw, err = t.chain.ApplyCrack(raw, rctx)
	if err != nil {
		return fmt.Errorf("log trunk: root chain on replay: %w", err)
	}
	env, err := envelope.Deserialize[T](raw)
	if err != nil {
		return fmt.Errorf("log trunk: deserialize: %w", err)
	}
	if cur, ok := t.current[rec.ID]; ok {
		t.history[rec.ID] = append(t.history[rec.ID], cur)
	}
	t.current[rec.ID] = env
	return nil
}

func (t *LogTrunk[T]) Roots() *root.Chain { return t.chain }

func (t *LogTrunk[T]) Capabilities() Capabilities {
	return Capabilities{History: true, Sync: true, Durable: true, Async: false}
}

func (t *LogTrunk[T]) appendRecord(ctx context.Context, rec logRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("log trunk: marshal record: %w", acornerr.ErrPermanentIO)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.writer.Write(line); err != nil {
		return fmt.Errorf("%w: %v", acornerr.ErrTransientIO, err)
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: %v", acornerr.ErrTransientIO, err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("%w: %v", acornerr.ErrTransientIO, err)
	}
	return t.file.Sync()
}

func (t *LogTrunk[T]) Stash(ctx context.Context, id string, env *envelope.Envelope[T]) error {
	timer := metrics.NewTimer()
	raw, err := envelope.Serialize(env)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(logTrunkKind, "stash", "error").Inc()
		return err
	}
	rctx := root.NewContext(ctx, id, root.OpStash)
	raw, err = t.chain.ApplyStash(raw, rctx)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(logTrunkKind, "stash", "error").Inc()
		return err
	}
	rec := logRecord{
		Action:    "Save",
		ID:        id,
		Shell:     base64.StdEncoding.EncodeToString(raw),
		Timestamp: env.Timestamp,
	}
	if err := t.appendRecord(ctx, rec); err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(logTrunkKind, "stash", "error").Inc()
		return err
	}

	t.mu.Lock()
	if cur, ok := t.current[id]; ok {
		t.history[id] = append(t.history[id], cur)
	}
	t.current[id] = env
	t.mu.Unlock()
	metrics.TrunkOpsTotal.WithLabelValues(logTrunkKind, "stash", "ok").Inc()
	timer.ObserveDurationVec(metrics.TrunkOpDuration, logTrunkKind, "stash")
	return nil
}

func (t *LogTrunk[T]) Crack(ctx context.Context, id string) (*envelope.Envelope[T], error) {
	t.mu.Lock()
	env, ok := t.current[id]
	t.mu.Unlock()
	if !ok {
		metrics.TrunkOpsTotal.WithLabelValues(logTrunkKind, "crack", "not_found").Inc()
		return nil, acornerr.ErrNotFound
	}
	metrics.TrunkOpsTotal.WithLabelValues(logTrunkKind, "crack", "ok").Inc()
	return env, nil
}

func (t *LogTrunk[T]) Toss(ctx context.Context, id string) error {
	rec := logRecord{Action: "Delete", ID: id, Timestamp: time.Now().UTC()}
	if err := t.appendRecord(ctx, rec); err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(logTrunkKind, "toss", "error").Inc()
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.current[id]; ok {
		t.history[id] = append(t.history[id], cur)
	}
	delete(t.current, id)
	metrics.TrunkOpsTotal.WithLabelValues(logTrunkKind, "toss", "ok").Inc()
	return nil
}

func (t *LogTrunk[T]) CrackAll(ctx context.Context) ([]*envelope.Envelope[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*envelope.Envelope[T], 0, len(t.current))
	for _, e := range t.current {
		out = append(out, e)
	}
	return out, nil
}

func (t *LogTrunk[T]) GetHistory(ctx context.Context, id string) ([]*envelope.Envelope[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	hist, ok := t.history[id]
	if !ok {
		return nil, nil
	}
	out := make([]*envelope.Envelope[T], len(hist))
	copy(out, hist)
	return out, nil
}

func (t *LogTrunk[T]) ExportChanges(ctx context.Context, seq uint64) ([]ChangeRecord[T], uint64, error) {
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

func (t *LogTrunk[T]) ImportChanges(ctx context.Context, records []ChangeRecord[T]) error {
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

func (t *LogTrunk[T]) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writer.Flush(); err != nil {
		return err
	}
	return t.file.Close()
}
