// Package sse implements an HTTP/SSE Transport for the engine's mcp
// package: server-to-client streaming over Server-Sent Events plus
// client-to-server messages over HTTP POST, fitted to the engine's
// single-connection, sink-based mcp.Transport contract.
package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"

	"github.com/haldor-dev/go-mcp"
)

// Transport is one connected SSE client, implementing mcp.Transport. It
// is created by Listener.HandleSSE for each incoming connection and
// handed to a new mcp.ServerSession via Listener's onConnect callback.
type Transport struct {
	id     string
	sess   *sse.Session
	logger *slog.Logger

	mu        sync.Mutex
	onMessage func(json.RawMessage)
	onError   func(error)
	onClose   func()

	incoming  chan json.RawMessage
	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the session identifier embedded in this transport's message
// URL, used by Listener to route POSTed client messages back to it.
func (t *Transport) ID() string { return t.id }

// OnMessage implements mcp.Transport.
func (t *Transport) OnMessage(f func(json.RawMessage)) {
	t.mu.Lock()
	t.onMessage = f
	t.mu.Unlock()
}

// OnError implements mcp.Transport.
func (t *Transport) OnError(f func(error)) {
	t.mu.Lock()
	t.onError = f
	t.mu.Unlock()
}

// OnClose implements mcp.Transport.
func (t *Transport) OnClose(f func()) {
	t.mu.Lock()
	t.onClose = f
	t.mu.Unlock()
}

// Start implements mcp.Transport, launching delivery of messages POSTed
// by the client to the registered sink.
func (t *Transport) Start(_ context.Context) error {
	go func() {
		for {
			select {
			case <-t.done:
				return
			case msg := <-t.incoming:
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

// Send implements mcp.Transport by writing msg as one SSE data event.
func (t *Transport) Send(_ context.Context, msg json.RawMessage) error {
	m := &sse.Message{}
	m.AppendData(string(msg))
	if err := t.sess.Send(m); err != nil {
		return fmt.Errorf("sse: send: %w", err)
	}
	return t.sess.Flush()
}

// Close implements mcp.Transport. It is idempotent.
func (t *Transport) Close() error {
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

func (t *Transport) deliver(msg json.RawMessage) {
	select {
	case t.incoming <- msg:
	case <-t.done:
	}
}

// Listener accepts SSE connections and hands each one, wrapped as a
// Transport, to onConnect — typically a callback that builds an
// mcp.ServerSession around it. Wire Listener.HandleSSE and
// Listener.HandleMessage into an HTTP mux at messageURL (and whatever
// path HandleSSE is mounted on).
type Listener struct {
	messageURL string
	logger     *slog.Logger
	onConnect  func(*Transport)

	mu       sync.Mutex
	sessions map[string]*Transport
}

// NewListener builds a Listener whose client-message endpoint is
// messageURL. onConnect is invoked once per new SSE connection.
func NewListener(messageURL string, onConnect func(*Transport)) *Listener {
	return &Listener{
		messageURL: messageURL,
		logger:     slog.Default().With(slog.String("component", "sse-listener")),
		onConnect:  onConnect,
		sessions:   make(map[string]*Transport),
	}
}

// HandleSSE upgrades the request to an SSE stream, sends the client its
// message-POST URL, and blocks for the life of the connection.
func (l *Listener) HandleSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sse.Upgrade(w, r)
		if err != nil {
			l.logger.Error("failed to upgrade session", slog.String("err", err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		id := uuid.New().String()
		t := &Transport{
			id:       id,
			sess:     sess,
			logger:   l.logger,
			incoming: make(chan json.RawMessage, 16),
			done:     make(chan struct{}),
		}

		endpointMsg := sse.Message{Type: sse.Type("endpoint")}
		endpointMsg.AppendData(fmt.Sprintf("%s?sessionID=%s", l.messageURL, id))
		if err := sess.Send(&endpointMsg); err != nil {
			l.logger.Error("failed to send endpoint event", slog.String("err", err.Error()))
			return
		}
		if err := sess.Flush(); err != nil {
			l.logger.Error("failed to flush endpoint event", slog.String("err", err.Error()))
			return
		}

		l.mu.Lock()
		l.sessions[id] = t
		l.mu.Unlock()

		l.onConnect(t)

		<-t.done

		l.mu.Lock()
		delete(l.sessions, id)
		l.mu.Unlock()
	})
}

// HandleMessage routes a POSTed client message to the Transport named by
// its sessionID query parameter.
func (l *Listener) HandleMessage() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("sessionID")
		if id == "" {
			http.Error(w, "missing sessionID query parameter", http.StatusBadRequest)
			return
		}

		l.mu.Lock()
		t, ok := l.sessions[id]
		l.mu.Unlock()
		if !ok {
			http.Error(w, "unknown sessionID", http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var js json.RawMessage
		if err := json.Unmarshal(bytes.TrimSpace(body), &js); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		t.deliver(js)
		w.WriteHeader(http.StatusAccepted)
	})
}

var _ mcp.Transport = (*Transport)(nil)
