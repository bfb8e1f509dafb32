package envelope

import (
	"reflect"

	"github.com/acorndb/acorndb/pkg/acorn/acornerr"
)

// Identifiable is the capability a payload type can implement to supply
// its own id at author time. It is checked first, ahead of the
// conventional "Id" field fallback.
type Identifiable interface {
	GetID() string
}

// ExtractID resolves the id for a write that did not supply one
// explicitly. Order: (a) the Identifiable capability, (b) a field
// conventionally named "Id" or "ID", (c) acornerr.ErrMissingID. No silent
// id fabrication — a write without a resolvable id fails closed.
func ExtractID(payload any) (string, error) {
	if ider, ok := payload.(Identifiable); ok {
		if id := ider.GetID(); id != "" {
			return id, nil
		}
		return "", acornerr.ErrMissingID
	}

	v := reflect.ValueOf(payload)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", acornerr.ErrMissingID
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", acornerr.ErrMissingID
	}

	for _, name := range []string{"Id", "ID"} {
		f := v.FieldByName(name)
		if f.IsValid() && f.Kind() == reflect.String && f.String() != "" {
			return f.String(), nil
		}
	}

	return "", acornerr.ErrMissingID
}
