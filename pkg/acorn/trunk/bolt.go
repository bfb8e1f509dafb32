package trunk

import (
	"context"
	"fmt"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
	"github.com/acorndb/acorndb/pkg/acorn/envelope"
	"github.com/acorndb/acorndb/pkg/acorn/root"
	"github.com/acorndb/acorndb/pkg/metrics"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketCurrent = []byte("current")
	bucketHistory = []byte("history")
)

const boltTrunkKind = "bolt"

// BoltTrunk is a bbolt-backed trunk: one current bucket holding the
// latest envelope per id, one history bucket holding every prior
// version appended as it is superseded. It is a fourth concrete trunk
// beyond the core three, grounded on the same bucket-per-kind,
// db.Update/db.View idiom the teacher's store uses, generalized from
// fixed domain buckets to a single generic envelope bucket pair.
type BoltTrunk[T any] struct {
	db    *bolt.DB
	chain *root.Chain
}

// OpenBoltTrunk opens (creating if absent) a bbolt database at path and
// ensures the current/history buckets exist.
func OpenBoltTrunk[T any](path string) (*BoltTrunk[T], error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt trunk: open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCurrent); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketHistory)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt trunk: create buckets: %w", err)
	}

	return &BoltTrunk[T]{db: db, chain: root.NewChain()}, nil
}

func (t *BoltTrunk[T]) Roots() *root.Chain { return t.chain }

func (t *BoltTrunk[T]) Capabilities() Capabilities {
	return Capabilities{History: true, Sync: true, Durable: true, Async: false}
}

// Stash moves any current version of id into id's history entry, a
// length-prefixed list of encoded blobs under id in the history bucket
// (bbolt has no native multi-value-per-key store; see appendHistory).
func (t *BoltTrunk[T]) Stash(ctx context.Context, id string, env *envelope.Envelope[T]) error {
	timer := metrics.NewTimer()
	raw, err := envelope.Serialize(env)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(boltTrunkKind, "stash", "error").Inc()
		return err
	}
	rctx := root.NewContext(ctx, id, root.OpStash)
	raw, err = t.chain.ApplyStash(raw, rctx)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(boltTrunkKind, "stash", "error").Inc()
		return err
	}

	err = t.db.Update(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketCurrent)
		hist := tx.Bucket(bucketHistory)

		if prev := cur.Get([]byte(id)); prev != nil {
			if err := appendHistory(hist, id, prev); err != nil {
				return err
			}
		}
		return cur.Put([]byte(id), raw)
	})
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(boltTrunkKind, "stash", "error").Inc()
		return err
	}
	metrics.TrunkOpsTotal.WithLabelValues(boltTrunkKind, "stash", "ok").Inc()
	timer.ObserveDurationVec(metrics.TrunkOpDuration, boltTrunkKind, "stash")
	return nil
}

func (t *BoltTrunk[T]) Crack(ctx context.Context, id string) (*envelope.Envelope[T], error) {
	timer := metrics.NewTimer()
	var raw []byte
	err := t.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCurrent).Get([]byte(id))
		if v == nil {
			return acornerr.ErrNotFound
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		if err == acornerr.ErrNotFound {
			metrics.TrunkOpsTotal.WithLabelValues(boltTrunkKind, "crack", "not_found").Inc()
		} else {
			metrics.TrunkOpsTotal.WithLabelValues(boltTrunkKind, "crack", "error").Inc()
		}
		return nil, err
	}

	rctx := root.NewContext(ctx, id, root.OpCrack)
	raw, err = t.chain.ApplyCrack(raw, rctx)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(boltTrunkKind, "crack", "error").Inc()
		return nil, err
	}
	env, err := envelope.Deserialize[T](raw)
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(boltTrunkKind, "crack", "error").Inc()
		return nil, err
	}
	metrics.TrunkOpsTotal.WithLabelValues(boltTrunkKind, "crack", "ok").Inc()
	timer.ObserveDurationVec(metrics.TrunkOpDuration, boltTrunkKind, "crack")
	return env, nil
}

func (t *BoltTrunk[T]) Toss(ctx context.Context, id string) error {
	err := t.db.Update(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketCurrent)
		hist := tx.Bucket(bucketHistory)
		if prev := cur.Get([]byte(id)); prev != nil {
			if err := appendHistory(hist, id, prev); err != nil {
				return err
			}
		}
		return cur.Delete([]byte(id))
	})
	if err != nil {
		metrics.TrunkOpsTotal.WithLabelValues(boltTrunkKind, "toss", "error").Inc()
		return err
	}
	metrics.TrunkOpsTotal.WithLabelValues(boltTrunkKind, "toss", "ok").Inc()
	return nil
}

func (t *BoltTrunk[T]) CrackAll(ctx context.Context) ([]*envelope.Envelope[T], error) {
	var raws [][]byte
	err := t.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCurrent).ForEach(func(k, v []byte) error {
			raws = append(raws, append([]byte(nil), v...))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	out := make([]*envelope.Envelope[T], 0, len(raws))
	for _, raw := range raws {
		decoded, err := t.chain.ApplyCrack(raw, root.NewContext(ctx, "", root.OpCrack))
		if err != nil {
			continue
		}
		env, err := envelope.Deserialize[T](decoded)
		if err != nil {
			continue
		}
		out = append(out, env)
	}
	return out, nil
}

func (t *BoltTrunk[T]) GetHistory(ctx context.Context, id string) ([]*envelope.Envelope[T], error) {
	var entries [][]byte
	err := t.db.View(func(tx *bolt.Tx) error {
		entries = decodeHistoryList(tx.Bucket(bucketHistory).Get([]byte(id)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*envelope.Envelope[T], 0, len(entries))
	for _, raw := range entries {
		decoded, err := t.chain.ApplyCrack(raw, root.NewContext(ctx, id, root.OpCrack))
		if err != nil {
			continue
		}
		env, err := envelope.Deserialize[T](decoded)
		if err != nil {
			continue
		}
		out = append(out, env)
	}
	return out, nil
}

func (t *BoltTrunk[T]) ExportChanges(ctx context.Context, seq uint64) ([]ChangeRecord[T], uint64, error) {
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

func (t *BoltTrunk[T]) ImportChanges(ctx context.Context, records []ChangeRecord[T]) error {
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

func (t *BoltTrunk[T]) Close() error { return t.db.Close() }

// appendHistory and decodeHistoryList use a trivial length-prefixed
// concatenation rather than pulling in a list codec: history entries are
// already root-chain-encoded opaque blobs, so this just needs to find
// their boundaries again.
func appendHistory(hist *bolt.Bucket, id string, entry []byte) error {
	existing := hist.Get([]byte(id))
	encoded := encodeHistoryEntry(entry)
	return hist.Put([]byte(id), append(existing, encoded...))
}

func encodeHistoryEntry(entry []byte) []byte {
	lenPrefix := make([]byte, 4)
	putUint32(lenPrefix, uint32(len(entry)))
	return append(lenPrefix, entry...)
}

func decodeHistoryList(buf []byte) [][]byte {
	var out [][]byte
	for len(buf) >= 4 {
		n := getUint32(buf)
		buf = buf[4:]
		if len(buf) < int(n) {
			break
		}
		out = append(out, buf[:n])
		buf = buf[n:]
	}
	return out
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
