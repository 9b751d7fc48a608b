package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Dispatcher routes JSON-RPC method names to registered Handlers and
// translates their outcome into a result or error, without knowing
// anything about transports, correlation, or cancellation — those are the
// Endpoint's job. A Dispatcher is safe for concurrent registration and
// concurrent dispatch.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher builds an empty Dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger.With(slog.String("component", "dispatcher")),
		handlers: make(map[string]Handler),
	}
}

// Register binds method to h, replacing any previous binding.
func (d *Dispatcher) Register(method string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = h
}

// Lookup returns the handler bound to method, if any.
func (d *Dispatcher) Lookup(method string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[method]
	return h, ok
}

// DispatchRequest runs the handler bound to method and returns the raw
// JSON of the response to send back, carrying id. ctx must already carry
// the RequestContext for this call, if any progress/cancellation tracking
// is wanted.
func (d *Dispatcher) DispatchRequest(ctx context.Context, id ID, method string, params json.RawMessage) json.RawMessage {
	h, ok := d.Lookup(method)
	if !ok {
		raw, _ := MakeError(id, NewRPCError(CodeMethodNotFound, "method not found: "+method))
		return raw
	}

	result, err := h.Handle(ctx, params)
	if err != nil {
		raw, _ := MakeError(id, AsRPCError(err))
		return raw
	}
	raw, err := MakeResult(id, result)
	if err != nil {
		errRaw, _ := MakeError(id, NewRPCError(CodeInternalError, "failed to encode result: "+err.Error()))
		return errRaw
	}
	return raw
}

// DispatchNotification runs the handler bound to method, if any, and
// discards its result. Handler errors are logged, never surfaced to the
// peer, matching JSON-RPC's rule that notifications never produce a
// response.
func (d *Dispatcher) DispatchNotification(ctx context.Context, method string, params json.RawMessage) {
	h, ok := d.Lookup(method)
	if !ok {
		d.logger.Debug("no handler for notification", slog.String("method", method))
		return
	}
	if _, err := h.Handle(ctx, params); err != nil {
		d.logger.Error("notification handler failed", slog.String("method", method), slog.String("err", err.Error()))
	}
}
