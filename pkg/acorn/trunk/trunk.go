/*
Package trunk implements pluggable persistence for AcornDB trees (spec
§4.2). A Trunk is an opaque container mapping id -> current envelope and,
optionally, id -> ordered prior envelopes. It owns its bytes; it never
owns the Tree sitting above it.

Four concrete trunks are provided:

  - MemTrunk: a plain map, non-durable, no history. Hot tiers and tests.
  - LogTrunk: an append-only change log of JSON lines with replay.
  - BTreeTrunk: a memory-mapped, batched, growable record file.
  - BoltTrunk: a bbolt-backed trunk, grounded on the teacher's
    bucket-per-kind storage.Store pattern — a fourth, durable option
    beyond the three spec calls "core," reusing the teacher's embedded-KV
    idiom rather than hand-rolling a fifth persistence format.

Every trunk applies the owning Root chain between its serializer and its
storage medium: ascending on Stash, descending on Crack (spec §4.2).
*/
package trunk

import (
	"context"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/acorndb/acorndb/pkg/acorn/envelope"
	"github.com/acorndb/acorndb/pkg/acorn/root"
	"github.com/acorndb/acorndb/pkg/log"
)

// Capabilities is the immutable descriptor a trunk exposes so callers
// (and the Tree above it) can branch on what it supports without a type
// switch.
type Capabilities struct {
	History bool
	Sync    bool
	Durable bool
	Async   bool
}

// ChangeRecord is the unit exportChanges/importChanges move in bulk sync
// (spec §4.2 "bulk transfer primitives for sync").
type ChangeRecord[T any] struct {
	Op  envelope.Kind
	Env *envelope.Envelope[T]
}

// Trunk is the persistence contract every implementation satisfies.
type Trunk[T any] interface {
	// Stash writes, replacing any current version. History-preserving
	// trunks append the prior current version to history first.
	Stash(ctx context.Context, id string, env *envelope.Envelope[T]) error
	// Crack reads the current envelope for id, or acornerr.ErrNotFound.
	Crack(ctx context.Context, id string) (*envelope.Envelope[T], error)
	// Toss deletes id. History-preserving trunks move the current version
	// into history; LogTrunk also appends a Delete record to its log,
	// while BoltTrunk stores no tombstone.
	Toss(ctx context.Context, id string) error
	// CrackAll iterates current versions only.
	CrackAll(ctx context.Context) ([]*envelope.Envelope[T], error)
	// GetHistory returns id's prior envelopes in admission order, oldest
	// first, or acornerr.ErrUnsupported if the trunk lacks history.
	GetHistory(ctx context.Context, id string) ([]*envelope.Envelope[T], error)

	// ExportChanges returns the trunk's changes plus a next sequence.
	// Every trunk in this package ignores seq: it returns the whole
	// current set as KindStash records (no tombstones) and the record
	// count as the next sequence.
	ExportChanges(ctx context.Context, seq uint64) ([]ChangeRecord[T], uint64, error)
	// ImportChanges applies a batch of changes produced by another
	// trunk's ExportChanges.
	ImportChanges(ctx context.Context, records []ChangeRecord[T]) error

	// Capabilities describes what this trunk supports.
	Capabilities() Capabilities

	// Roots exposes the root chain this trunk applies around its medium.
	Roots() *root.Chain

	// Close flushes any pending writes and releases resources.
	Close() error
}

// orDefaultLogger returns in unless it is the zero-value zerolog.Logger
// (the caller left it unset), in which case it falls back to a logger
// scoped to kind so every durable trunk still logs somewhere.
func orDefaultLogger(in zerolog.Logger, kind string) zerolog.Logger {
	if reflect.DeepEqual(in, zerolog.Logger{}) {
		return log.WithTrunk(kind)
	}
	return in
}
