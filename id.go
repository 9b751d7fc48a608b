package mcp

import (
	"encoding/json"
	"fmt"
)

// ID is a JSON-RPC request/response identifier. It tolerates the three
// shapes JSON-RPC allows on the wire: a JSON string, a JSON number, or an
// explicit JSON null (used on parse-error responses where no request id
// could be recovered). When a message is decoded into a *ID field, such as
// Message.ID, a nil pointer results both when the id field is absent, as
// on a notification, and when it is an explicit JSON null.
type ID struct {
	set   bool
	value string
}

// NewID builds a set ID from a string value.
func NewID(v string) ID { return ID{set: true, value: v} }

// NullID builds an explicit JSON-null ID, distinct from an absent id field.
func NullID() ID { return ID{} }

// String returns the id's string form; it is empty for a null ID.
func (i ID) String() string { return i.value }

// IsNull reports whether this ID marshals to JSON null.
func (i ID) IsNull() bool { return !i.set }

// MarshalJSON implements json.Marshaler.
func (i ID) MarshalJSON() ([]byte, error) {
	if !i.set {
		return []byte("null"), nil
	}
	return json.Marshal(i.value)
}

// UnmarshalJSON implements json.Unmarshaler, accepting string, number, or
// null, tolerating whichever shape a peer's JSON-RPC implementation uses
// for request ids.
func (i *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*i = ID{}
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*i = ID{set: true, value: t}
	case float64:
		*i = ID{set: true, value: fmt.Sprintf("%d", int64(t))}
	default:
		return fmt.Errorf("mcp: id must be a string, number, or null, got %T", v)
	}
	return nil
}
