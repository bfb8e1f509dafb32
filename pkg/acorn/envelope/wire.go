package envelope

import (
	"encoding/json"
	"time"
)

// wireEnvelope mirrors the stable JSON field names from spec §6. Field
// names are exported exactly as named there so the format is stable
// across languages, independent of the Go struct's own field names.
type wireEnvelope[T any] struct {
	ID           string     `json:"Id"`
	Payload      T          `json:"Payload"`
	Timestamp    time.Time  `json:"Timestamp"`
	Version      int        `json:"Version"`
	ExpiresAt    *time.Time `json:"ExpiresAt,omitempty"`
	ChangeID     string     `json:"ChangeId"`
	OriginNodeID string     `json:"OriginNodeId"`
	HopCount     int        `json:"HopCount"`
}

// MarshalJSON emits the stable wire format.
func (e Envelope[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEnvelope[T]{
		ID:           e.ID,
		Payload:      e.Payload,
		Timestamp:    e.Timestamp,
		Version:      e.Version,
		ExpiresAt:    e.ExpiresAt,
		ChangeID:     e.ChangeID,
		OriginNodeID: e.OriginNodeID,
		HopCount:     e.HopCount,
	})
}

// UnmarshalJSON parses the stable wire format, defaulting any missing
// optional field (spec §6: "implementations must accept missing optional
// fields and default them").
func (e *Envelope[T]) UnmarshalJSON(data []byte) error {
	var w wireEnvelope[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Version == 0 {
		w.Version = 1
	}
	if w.Timestamp.IsZero() {
		w.Timestamp = time.Now().UTC()
	}
	e.ID = w.ID
	e.Payload = w.Payload
	e.Timestamp = w.Timestamp
	e.Version = w.Version
	e.ExpiresAt = w.ExpiresAt
	e.ChangeID = w.ChangeID
	e.OriginNodeID = w.OriginNodeID
	e.HopCount = w.HopCount
	return nil
}
