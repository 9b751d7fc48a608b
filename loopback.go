package mcp

import (
	"context"
	"encoding/json"
	"sync"
)

// LoopbackTransport is an in-process Transport that delivers everything
// sent on one end directly to the peer end, with no serialization. It is
// meant for wiring a ClientSession directly to a ServerSession within a
// single process (tests, embedding a server in its own host process)
// without a byte-oriented framing layer in between.
//
// NewLoopbackPair returns two LoopbackTransport values already connected
// to each other.
type LoopbackTransport struct {
	peer *LoopbackTransport

	mu        sync.Mutex
	onMessage func(json.RawMessage)
	onError   func(error)
	onClose   func()
	closed    bool

	queue     chan json.RawMessage
	closeOnce sync.Once
	done      chan struct{}
}

// NewLoopbackPair builds two connected LoopbackTransport ends. Messages
// sent on a are delivered to b's OnMessage sink, and vice versa.
func NewLoopbackPair() (a, b *LoopbackTransport) {
	a = &LoopbackTransport{queue: make(chan json.RawMessage, 64), done: make(chan struct{})}
	b = &LoopbackTransport{queue: make(chan json.RawMessage, 64), done: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

// OnMessage implements Transport.
func (t *LoopbackTransport) OnMessage(f func(json.RawMessage)) {
	t.mu.Lock()
	t.onMessage = f
	t.mu.Unlock()
}

// OnError implements Transport.
func (t *LoopbackTransport) OnError(f func(error)) {
	t.mu.Lock()
	t.onError = f
	t.mu.Unlock()
}

// OnClose implements Transport.
func (t *LoopbackTransport) OnClose(f func()) {
	t.mu.Lock()
	t.onClose = f
	t.mu.Unlock()
}

// Start implements Transport, launching the goroutine that delivers
// queued inbound messages to the registered sink in the order they were
// sent.
func (t *LoopbackTransport) Start(_ context.Context) error {
	go func() {
		for {
			select {
			case <-t.done:
				return
			case msg := <-t.queue:
				t.mu.Lock()
				sink := t.onMessage
				t.mu.Unlock()
				if sink != nil {
					sink(msg)
				}
			}
		}
	}()
	return nil
}

// Send implements Transport by handing msg directly to the peer's queue.
func (t *LoopbackTransport) Send(ctx context.Context, msg json.RawMessage) error {
	cp := append(json.RawMessage{}, msg...)
	select {
	case <-t.done:
		return errLoopbackClosed
	case <-t.peer.done:
		return errLoopbackClosed
	case <-ctx.Done():
		return ctx.Err()
	case t.peer.queue <- cp:
		return nil
	}
}

// Close implements Transport. It is idempotent and does not close the
// peer; each end owns its own lifecycle.
func (t *LoopbackTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		t.mu.Lock()
		closer := t.onClose
		t.mu.Unlock()
		if closer != nil {
			closer()
		}
	})
	return nil
}

var errLoopbackClosed = &RPCError{Code: CodeInternalError, Message: "loopback transport closed"}
