package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// jsonRPCVersion is the fixed JSON-RPC version literal this engine emits
// and requires on every inbound message.
const jsonRPCVersion = "2.0"

// Message is the wire shape of a single JSON-RPC 2.0 value: a request,
// response, or notification, discriminated by which fields are set.
//   - Request: JSONRPC, ID, Method, (Params) are set.
//   - Notification: JSONRPC, Method are set; ID is absent (nil).
//   - Response: JSONRPC, ID are set, and exactly one of Result / Error.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// IsRequest reports whether m is a request (has both a method and an id).
func (m Message) IsRequest() bool { return m.Method != "" && m.ID != nil }

// IsNotification reports whether m is a notification (a method, no id).
func (m Message) IsNotification() bool { return m.Method != "" && m.ID == nil }

// IsResponse reports whether m is a response (no method, has result/error).
func (m Message) IsResponse() bool {
	return m.Method == "" && (m.Result != nil || m.Error != nil)
}

// MakeRequest builds the raw JSON for a request with the given id, method,
// and params (params may be nil).
func MakeRequest(id ID, method string, params any) (json.RawMessage, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{JSONRPC: jsonRPCVersion, ID: &id, Method: method, Params: raw})
}

// MakeNotification builds the raw JSON for a notification (no id).
func MakeNotification(method string, params any) (json.RawMessage, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{JSONRPC: jsonRPCVersion, Method: method, Params: raw})
}

// MakeResult builds the raw JSON for a successful response.
func MakeResult(id ID, value any) (json.RawMessage, error) {
	raw, err := marshalParams(value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{JSONRPC: jsonRPCVersion, ID: &id, Result: raw})
}

// MakeError builds the raw JSON for an error response.
func MakeError(id ID, rpcErr *RPCError) (json.RawMessage, error) {
	return json.Marshal(Message{JSONRPC: jsonRPCVersion, ID: &id, Error: rpcErr})
}

func marshalParams(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// IsBatch reports whether raw is a JSON array rather than a single object,
// by inspecting its first non-whitespace byte.
func IsBatch(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// ValidateRequest reports whether raw decodes into a well-formed request
// or notification: version "2.0", a non-empty method, and (if present) an
// id that is not itself null. It returns a human-readable reason on
// failure.
func ValidateRequest(raw json.RawMessage) (bool, string) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, "invalid json: " + err.Error()
	}
	if m.JSONRPC != jsonRPCVersion {
		return false, fmt.Sprintf("jsonrpc must be %q", jsonRPCVersion)
	}
	if m.Method == "" {
		return false, "method is required"
	}
	// An explicit "id": null leaves m.ID nil, just like an absent id, so
	// the raw id is inspected to tell the two apart.
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && string(probe.ID) == "null" {
		return false, "id must not be null"
	}
	return true, ""
}

// ValidateResponse reports whether raw decodes into a well-formed
// response: version "2.0", an id, and exactly one of result/error set.
func ValidateResponse(raw json.RawMessage) (bool, string) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return false, "invalid json: " + err.Error()
	}
	if m.JSONRPC != jsonRPCVersion {
		return false, fmt.Sprintf("jsonrpc must be %q", jsonRPCVersion)
	}
	if m.ID == nil {
		return false, "id is required"
	}
	if (m.Result == nil) == (m.Error == nil) {
		return false, "exactly one of result or error must be set"
	}
	return true, ""
}

// DecodeBatch splits a raw batch array into its individual raw elements,
// preserving order. It returns an error if raw is not a JSON array.
func DecodeBatch(raw json.RawMessage) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("mcp: invalid batch: %w", err)
	}
	return items, nil
}
