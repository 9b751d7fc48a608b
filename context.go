package mcp

import (
	"context"
	"sync"
)

// RequestContext carries the state an inbound-request handler needs beyond
// its arguments: the request's id, its cancellation status, and a sink for
// progress notifications. It is reachable from the handler's
// context.Context via FromContext, an ambient-lookup escape hatch for
// request-scoped state that doesn't fit the handler's own parameters.
type RequestContext struct {
	id       ID
	sendFunc func(progress, total float64)

	mu        sync.Mutex
	cancelled bool
}

func newRequestContext(id ID, progress func(progress, total float64)) *RequestContext {
	return &RequestContext{id: id, sendFunc: progress}
}

// ID returns the request id this context tracks.
func (r *RequestContext) ID() ID { return r.id }

// Cancelled reports whether the peer has asked this request to stop.
func (r *RequestContext) Cancelled() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *RequestContext) cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

// ReportProgress emits a progress notification for this request, if a
// progress token was supplied by the caller. It is a no-op otherwise.
func (r *RequestContext) ReportProgress(progress, total float64) {
	if r == nil || r.sendFunc == nil {
		return
	}
	r.sendFunc(progress, total)
}

type requestContextKey struct{}

func withRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext extracts the RequestContext a dispatcher attached to ctx for
// the handler currently running, if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

// IsCancelled reports whether the request associated with ctx has been
// cancelled by the peer. It is safe to call from any handler outcome.
func IsCancelled(ctx context.Context) bool {
	rc, ok := FromContext(ctx)
	return ok && rc.Cancelled()
}

// ReportProgress emits a progress update for the request associated with
// ctx, if any. It is a no-op for contexts with no attached RequestContext
// or no progress token.
func ReportProgress(ctx context.Context, progress, total float64) {
	if rc, ok := FromContext(ctx); ok {
		rc.ReportProgress(progress, total)
	}
}
