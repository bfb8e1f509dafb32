package trunk

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
	"github.com/acorndb/acorndb/pkg/acorn/envelope"
)

func openTestBTreeTrunk(t *testing.T) *BTreeTrunk[string] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "btree-trunk.db")
	tr, err := OpenBTreeTrunk[string](path, DefaultBTreeOptions())
	assert.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestBTreeTrunkStashCrackRoundtrip(t *testing.T) {
	tr := openTestBTreeTrunk(t)

	env := &envelope.Envelope[string]{ID: "a", Payload: "hello", Timestamp: time.Now().UTC(), Version: 1}
	assert.NoError(t, tr.Stash(context.Background(), "a", env))

	got, err := tr.Crack(context.Background(), "a")
	assert.NoError(t, err)
	assert.Equal(t, "hello", got.Payload)
	assert.Equal(t, 1, got.Version)
}

func TestBTreeTrunkCrackMissingReturnsNotFound(t *testing.T) {
	tr := openTestBTreeTrunk(t)
	_, err := tr.Crack(context.Background(), "missing")
	assert.ErrorIs(t, err, acornerr.ErrNotFound)
}

func TestBTreeTrunkSupersedingVersionsKeepsLatest(t *testing.T) {
	tr := openTestBTreeTrunk(t)

	env1 := &envelope.Envelope[string]{ID: "a", Payload: "v1", Timestamp: time.Now().UTC(), Version: 1}
	env2 := &envelope.Envelope[string]{ID: "a", Payload: "v2", Timestamp: time.Now().UTC(), Version: 2}
	assert.NoError(t, tr.Stash(context.Background(), "a", env1))
	assert.NoError(t, tr.Stash(context.Background(), "a", env2))

	got, err := tr.Crack(context.Background(), "a")
	assert.NoError(t, err)
	assert.Equal(t, "v2", got.Payload)
	assert.Equal(t, 2, got.Version)
}

func TestBTreeTrunkTossIsLogicalDelete(t *testing.T) {
	tr := openTestBTreeTrunk(t)

	env := &envelope.Envelope[string]{ID: "a", Payload: "hello", Timestamp: time.Now().UTC(), Version: 1}
	assert.NoError(t, tr.Stash(context.Background(), "a", env))
	assert.NoError(t, tr.Toss(context.Background(), "a"))

	_, err := tr.Crack(context.Background(), "a")
	assert.ErrorIs(t, err, acornerr.ErrNotFound)
}

func TestBTreeTrunkGrowsBeyondInitialMapping(t *testing.T) {
	tr := openTestBTreeTrunk(t)

	big := make([]byte, 1024*1024)
	for i := range big {
		big[i] = byte(i)
	}
	bigPayload := string(big)

	// Enough large writes to force expand() past the 64MiB default.
	for i := 0; i < 80; i++ {
		env := &envelope.Envelope[string]{
			ID:        string(rune('a' + i%26)),
			Payload:   bigPayload,
			Timestamp: time.Now().UTC(),
			Version:   i + 1,
		}
		assert.NoError(t, tr.Stash(context.Background(), env.ID, env))
	}

	got, err := tr.Crack(context.Background(), "a")
	assert.NoError(t, err)
	assert.Equal(t, bigPayload, got.Payload)
}

func TestBTreeTrunkReplayRebuildsIndexAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "btree-trunk.db")
	tr, err := OpenBTreeTrunk[string](path, DefaultBTreeOptions())
	assert.NoError(t, err)

	env := &envelope.Envelope[string]{ID: "a", Payload: "hello", Timestamp: time.Now().UTC(), Version: 1}
	assert.NoError(t, tr.Stash(context.Background(), "a", env))
	assert.NoError(t, tr.Flush())
	assert.NoError(t, tr.Close())

	reopened, err := OpenBTreeTrunk[string](path, DefaultBTreeOptions())
	assert.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Crack(context.Background(), "a")
	assert.NoError(t, err)
	assert.Equal(t, "hello", got.Payload)
}

func TestBTreeTrunkCompactReclaimsSpace(t *testing.T) {
	tr := openTestBTreeTrunk(t)

	for i := 0; i < 5; i++ {
		env := &envelope.Envelope[string]{ID: "a", Payload: "v", Timestamp: time.Now().UTC(), Version: i + 1}
		assert.NoError(t, tr.Stash(context.Background(), "a", env))
	}
	assert.NoError(t, tr.Toss(context.Background(), "a"))

	env := &envelope.Envelope[string]{ID: "b", Payload: "still here", Timestamp: time.Now().UTC(), Version: 1}
	assert.NoError(t, tr.Stash(context.Background(), "b", env))

	assert.NoError(t, tr.Compact())

	_, err := tr.Crack(context.Background(), "a")
	assert.ErrorIs(t, err, acornerr.ErrNotFound)

	got, err := tr.Crack(context.Background(), "b")
	assert.NoError(t, err)
	assert.Equal(t, "still here", got.Payload)
}

func TestBTreeTrunkCapabilities(t *testing.T) {
	tr := openTestBTreeTrunk(t)
	caps := tr.Capabilities()
	assert.False(t, caps.History)
	assert.True(t, caps.Durable)
}
