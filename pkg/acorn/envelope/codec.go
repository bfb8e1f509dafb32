package envelope

import "encoding/json"

// Serialize renders an envelope to its wire bytes (spec §4.1 contract:
// serialize(envelope) -> bytes). Trunks call this before handing bytes to
// the root chain.
func Serialize[T any](e *Envelope[T]) ([]byte, error) {
	return json.Marshal(e)
}

// Deserialize parses wire bytes back into an envelope (the inverse of
// Serialize). Trunks call this after the root chain has decoded bytes on
// read.
func Deserialize[T any](b []byte) (*Envelope[T], error) {
	var e Envelope[T]
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
