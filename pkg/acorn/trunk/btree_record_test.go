package trunk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
)

func TestEncodeDecodeRecordRoundtrip(t *testing.T) {
	ts := time.Now().UTC().Truncate(time.Second)
	payload := []byte("root-chain-encoded-bytes")

	buf := encodeRecord("doc-1", 3, ts, payload)
	rec, err := decodeRecord(buf)

	assert.NoError(t, err)
	assert.Equal(t, "doc-1", rec.ID)
	assert.Equal(t, 3, rec.Version)
	assert.True(t, ts.Equal(rec.Timestamp))
	assert.Equal(t, payload, rec.Payload)
	assert.Equal(t, len(buf), rec.RecordLen)
}

func TestDecodeRecordRejectsShortHeader(t *testing.T) {
	_, err := decodeRecord([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, acornerr.ErrCorruptRecord)
}

func TestDecodeRecordRejectsBadMagic(t *testing.T) {
	buf := encodeRecord("doc-1", 1, time.Now(), []byte("x"))
	buf[0] = 0xFF
	_, err := decodeRecord(buf)
	assert.ErrorIs(t, err, acornerr.ErrCorruptRecord)
}

func TestDecodeRecordRejectsTruncatedPayload(t *testing.T) {
	buf := encodeRecord("doc-1", 1, time.Now(), []byte("full payload"))
	truncated := buf[:len(buf)-5]
	_, err := decodeRecord(truncated)
	assert.ErrorIs(t, err, acornerr.ErrCorruptRecord)
}

func TestDecodeRecordAllowsEmptyPayload(t *testing.T) {
	buf := encodeRecord("doc-1", 1, time.Now(), []byte{})
	rec, err := decodeRecord(buf)
	assert.NoError(t, err)
	assert.Empty(t, rec.Payload)
}

func TestEncodeRecordMultipleRecordsConcatenate(t *testing.T) {
	ts := time.Now().UTC()
	first := encodeRecord("a", 1, ts, []byte("one"))
	second := encodeRecord("b", 1, ts, []byte("two"))

	buf := append(append([]byte{}, first...), second...)

	recA, err := decodeRecord(buf)
	assert.NoError(t, err)
	assert.Equal(t, "a", recA.ID)

	recB, err := decodeRecord(buf[recA.RecordLen:])
	assert.NoError(t, err)
	assert.Equal(t, "b", recB.ID)
}
