package trunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
)

// btreeMagic is the fixed sentinel ("ACOR") that identifies a valid
// record start during replay and lets the reader detect corruption
// (spec §4.2.3).
const btreeMagic uint32 = 0x41434F52

// recordHeaderLen is the fixed-size prefix before the null-terminated id
// and the payload: magic(4) + version(4) + timestamp(8) + payloadLen(4).
const recordHeaderLen = 4 + 4 + 8 + 4

// encodeRecord builds the on-disk record: header + id + NUL + payload
// (spec §4.2.3 file layout). payload has already been passed through the
// root chain ascending by the caller.
func encodeRecord(id string, version int, ts time.Time, payload []byte) []byte {
	idBytes := append([]byte(id), 0)
	total := recordHeaderLen + len(idBytes) + len(payload)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], btreeMagic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(version))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(ts.UnixNano()))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(payload)))
	copy(buf[recordHeaderLen:], idBytes)
	copy(buf[recordHeaderLen+len(idBytes):], payload)
	return buf
}

// decodedRecord is a parsed record with the payload still root-chain
// encoded — the caller runs the chain descending before deserializing.
type decodedRecord struct {
	ID        string
	Version   int
	Timestamp time.Time
	Payload   []byte
	// RecordLen is the total byte length of the record as encoded, used
	// by replay to advance its cursor.
	RecordLen int
}

// decodeRecord parses a single record starting at buf[0]. It returns
// acornerr.ErrCorruptRecord if the magic is invalid or the buffer is too
// short to contain a complete record (a truncated tail).
func decodeRecord(buf []byte) (*decodedRecord, error) {
	if len(buf) < recordHeaderLen {
		return nil, fmt.Errorf("%w: short header", acornerr.ErrCorruptRecord)
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != btreeMagic {
		return nil, fmt.Errorf("%w: bad magic", acornerr.ErrCorruptRecord)
	}
	version := int(binary.LittleEndian.Uint32(buf[4:8]))
	tsNano := int64(binary.LittleEndian.Uint64(buf[8:16]))
	payloadLen := int(binary.LittleEndian.Uint32(buf[16:20]))

	rest := buf[recordHeaderLen:]
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return nil, fmt.Errorf("%w: unterminated id", acornerr.ErrCorruptRecord)
	}
	id := string(rest[:nul])
	payloadStart := nul + 1
	if len(rest) < payloadStart+payloadLen {
		return nil, fmt.Errorf("%w: truncated payload", acornerr.ErrCorruptRecord)
	}
	payload := make([]byte, payloadLen)
	copy(payload, rest[payloadStart:payloadStart+payloadLen])

	return &decodedRecord{
		ID:        id,
		Version:   version,
		Timestamp: time.Unix(0, tsNano).UTC(),
		Payload:   payload,
		RecordLen: recordHeaderLen + payloadStart + payloadLen,
	}, nil
}
