package mcp

import (
	"context"
	"encoding/json"
)

// Transport moves opaque JSON-RPC messages across a single connection. It
// is symmetric: the same interface is consumed by both a client-role and a
// server-role Endpoint. Implementations are responsible only for framing
// and delivery, never for interpreting message contents.
//
// Start must be called before Send or before messages are delivered to the
// handler registered via OnMessage. Close is idempotent and unblocks any
// goroutine reading from the transport.
type Transport interface {
	// Start begins accepting/delivering messages. It returns once the
	// transport is ready to Send, and does not block for the life of the
	// connection.
	Start(ctx context.Context) error

	// Send writes a single raw JSON value (an object or, for batches, an
	// array) to the peer. It is safe to call concurrently.
	Send(ctx context.Context, msg json.RawMessage) error

	// OnMessage registers the sink invoked for every message arriving
	// from the peer. It must be called before Start.
	OnMessage(func(json.RawMessage))

	// OnError registers the sink invoked for a soft error encountered
	// while servicing the connection — a read failure short of closing
	// it, or an inbound message that could not be framed or classified.
	// The connection stays open; OnError never substitutes for OnClose.
	OnError(func(error))

	// OnClose registers a callback invoked exactly once when the
	// transport is closed, whether by a local Close call or a peer
	// disconnect.
	OnClose(func())

	// Close shuts the transport down. It is idempotent.
	Close() error
}
