package mcp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/haldor-dev/go-mcp"
)

func TestLineTransport_DeliversLinesToSink(t *testing.T) {
	pr, pw := io.Pipe()
	var out bytes.Buffer

	transport := mcp.NewLineTransport(pr, &out)
	received := make(chan json.RawMessage, 1)
	transport.OnMessage(func(msg json.RawMessage) { received <- msg })

	if err := transport.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer transport.Close()

	go func() {
		_, _ = pw.Write([]byte(`{"jsonrpc":"2.0","method":"ping"}` + "\n"))
	}()

	select {
	case msg := <-received:
		var m mcp.Message
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if m.Method != "ping" {
			t.Errorf("Method = %q, want ping", m.Method)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered in time")
	}
}

func TestLineTransport_SendWritesNewlineTerminatedLine(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	defer pw.Close()
	var out bytes.Buffer

	transport := mcp.NewLineTransport(pr, &out)
	if err := transport.Send(context.Background(), json.RawMessage(`{"a":1}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if out.String() != "{\"a\":1}\n" {
		t.Errorf("written = %q, want %q", out.String(), "{\"a\":1}\n")
	}
}

func TestLineTransport_CloseIsIdempotentAndFiresOnClose(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	var out bytes.Buffer

	transport := mcp.NewLineTransport(pr, &out)
	closed := make(chan struct{}, 2)
	transport.OnClose(func() { closed <- struct{}{} })

	if err := transport.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := transport.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := transport.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if len(closed) != 1 {
		t.Errorf("onClose fired %d times, want exactly 1", len(closed))
	}
}
