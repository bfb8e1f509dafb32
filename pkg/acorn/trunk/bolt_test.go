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

func openTestBoltTrunk(t *testing.T) *BoltTrunk[string] {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bolt-trunk.db")
	tr, err := OpenBoltTrunk[string](path)
	assert.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestBoltTrunkStashCrackRoundtrip(t *testing.T) {
	tr := openTestBoltTrunk(t)

	env := &envelope.Envelope[string]{ID: "a", Payload: "hello", Timestamp: time.Now().UTC(), Version: 1}
	assert.NoError(t, tr.Stash(context.Background(), "a", env))

	got, err := tr.Crack(context.Background(), "a")
	assert.NoError(t, err)
	assert.Equal(t, "hello", got.Payload)
}

func TestBoltTrunkCrackMissingReturnsNotFound(t *testing.T) {
	tr := openTestBoltTrunk(t)
	_, err := tr.Crack(context.Background(), "missing")
	assert.ErrorIs(t, err, acornerr.ErrNotFound)
}

func TestBoltTrunkTossRecordsHistory(t *testing.T) {
	tr := openTestBoltTrunk(t)

	env := &envelope.Envelope[string]{ID: "a", Payload: "v1", Timestamp: time.Now().UTC(), Version: 1}
	assert.NoError(t, tr.Stash(context.Background(), "a", env))
	assert.NoError(t, tr.Toss(context.Background(), "a"))

	_, err := tr.Crack(context.Background(), "a")
	assert.ErrorIs(t, err, acornerr.ErrNotFound)

	hist, err := tr.GetHistory(context.Background(), "a")
	assert.NoError(t, err)
	assert.Len(t, hist, 1)
	assert.Equal(t, "v1", hist[0].Payload)
}

func TestBoltTrunkMultipleSupersedingVersionsAccumulateHistory(t *testing.T) {
	tr := openTestBoltTrunk(t)

	for i := 1; i <= 3; i++ {
		env := &envelope.Envelope[string]{ID: "a", Payload: string(rune('0' + i)), Timestamp: time.Now().UTC(), Version: i}
		assert.NoError(t, tr.Stash(context.Background(), "a", env))
	}

	hist, err := tr.GetHistory(context.Background(), "a")
	assert.NoError(t, err)
	assert.Len(t, hist, 2)

	current, err := tr.Crack(context.Background(), "a")
	assert.NoError(t, err)
	assert.Equal(t, 3, current.Version)
}

func TestBoltTrunkCrackAll(t *testing.T) {
	tr := openTestBoltTrunk(t)
	for _, id := range []string{"a", "b", "c"} {
		env := &envelope.Envelope[string]{ID: id, Payload: id, Timestamp: time.Now().UTC(), Version: 1}
		assert.NoError(t, tr.Stash(context.Background(), id, env))
	}

	all, err := tr.CrackAll(context.Background())
	assert.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestBoltTrunkPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bolt-trunk.db")
	tr, err := OpenBoltTrunk[string](path)
	assert.NoError(t, err)

	env := &envelope.Envelope[string]{ID: "a", Payload: "hello", Timestamp: time.Now().UTC(), Version: 1}
	assert.NoError(t, tr.Stash(context.Background(), "a", env))
	assert.NoError(t, tr.Close())

	reopened, err := OpenBoltTrunk[string](path)
	assert.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Crack(context.Background(), "a")
	assert.NoError(t, err)
	assert.Equal(t, "hello", got.Payload)
}

func TestBoltTrunkCapabilities(t *testing.T) {
	tr := openTestBoltTrunk(t)
	caps := tr.Capabilities()
	assert.True(t, caps.History)
	assert.True(t, caps.Durable)
}

func TestEncodeDecodeHistoryListRoundtrip(t *testing.T) {
	entries := [][]byte{[]byte("one"), []byte("two"), []byte("three")}

	var buf []byte
	for _, e := range entries {
		buf = append(buf, encodeHistoryEntry(e)...)
	}

	decoded := decodeHistoryList(buf)
	assert.Equal(t, entries, decoded)
}

func TestDecodeHistoryListEmptyBuffer(t *testing.T) {
	decoded := decodeHistoryList(nil)
	assert.Nil(t, decoded)
}
