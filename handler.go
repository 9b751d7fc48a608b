package mcp

import (
	"context"
	"encoding/json"
	"iter"
)

// Handler is the unified contract the dispatcher invokes for every
// registered method, regardless of which of the three outcome shapes
// backs it. Handle runs with ctx carrying the RequestContext for this
// call (see FromContext) and must return the value to marshal into the
// response's result field, or an error to translate into an error
// response.
type Handler interface {
	Handle(ctx context.Context, params json.RawMessage) (any, error)
}

// EagerFunc adapts a plain function into a Handler for the "eager"
// outcome: the handler computes its result synchronously and returns.
type EagerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Handle implements Handler.
func (f EagerFunc) Handle(ctx context.Context, params json.RawMessage) (any, error) {
	return f(ctx, params)
}

// SuspendFunc adapts a plain function into a Handler for the
// "suspendable" outcome. Structurally identical to EagerFunc: Go's
// goroutine scheduler is itself the suspension mechanism, so a handler
// that blocks on a channel or on I/O already yields control without any
// extra machinery. The distinct type exists for registration-site clarity
// and documents that the function is expected to poll IsCancelled(ctx) at
// its own checkpoints while blocked. A peer's "$/cancelRequest" sets that
// flag only; it does not cancel ctx, so ctx.Done() does not report it.
type SuspendFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Handle implements Handler.
func (f SuspendFunc) Handle(ctx context.Context, params json.RawMessage) (any, error) {
	return f(ctx, params)
}

// StreamHandler adapts a lazy sequence of chunks into a Handler for the
// "streaming" outcome: Produce yields chunks one at a time, each chunk is
// reported as progress and accumulated, and Aggregate folds the collected
// chunks into the final result value.
//
// If the peer cancels the request mid-stream, the default behavior is to
// stop iterating and fail the call with CodeRequestCancelled, per
// SPEC_FULL.md's resolution of the cancelled-stream open question. Setting
// PartialOnCancel returns whatever was aggregated so far as a successful
// result instead.
type StreamHandler struct {
	Produce         func(ctx context.Context, params json.RawMessage) iter.Seq[any]
	Aggregate       func(chunks []any) any
	PartialOnCancel bool
}

// Handle implements Handler.
func (s StreamHandler) Handle(ctx context.Context, params json.RawMessage) (any, error) {
	rc, _ := FromContext(ctx)

	var chunks []any
	n := 0
	for chunk := range s.Produce(ctx, params) {
		chunks = append(chunks, chunk)
		n++
		rc.ReportProgress(float64(n), 0)

		if rc.Cancelled() {
			if s.PartialOnCancel {
				return s.Aggregate(chunks), nil
			}
			return nil, NewRPCError(CodeRequestCancelled, "request cancelled")
		}
	}
	return s.Aggregate(chunks), nil
}

// AggregateAny is a convenience Aggregate implementation for StreamHandler
// that returns the collected chunks as a []any.
func AggregateAny(chunks []any) any { return chunks }
