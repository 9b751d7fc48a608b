package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// LineTransport implements Transport by framing each JSON-RPC message as a
// single newline-terminated line over an io.Reader/io.Writer pair. It can
// carry a stdio connection or any other byte stream that preserves line
// framing.
type LineTransport struct {
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	writeMu sync.Mutex

	onMessage func(json.RawMessage)
	onError   func(error)
	onClose   func()

	done       chan struct{}
	closeOnce  sync.Once
	readClosed chan struct{}
}

// NewLineTransport builds a LineTransport over the given byte stream.
func NewLineTransport(reader io.Reader, writer io.Writer) *LineTransport {
	return &LineTransport{
		reader:     reader,
		writer:     writer,
		logger:     slog.Default().With(slog.String("component", "line-transport")),
		done:       make(chan struct{}),
		readClosed: make(chan struct{}),
	}
}

// OnMessage implements Transport.
func (t *LineTransport) OnMessage(f func(json.RawMessage)) { t.onMessage = f }

// OnError implements Transport.
func (t *LineTransport) OnError(f func(error)) { t.onError = f }

// OnClose implements Transport.
func (t *LineTransport) OnClose(f func()) { t.onClose = f }

// Start implements Transport, launching the background line-reader
// goroutine. It returns immediately.
func (t *LineTransport) Start(_ context.Context) error {
	go t.readLoop()
	return nil
}

// Send implements Transport by writing msg followed by a newline. Writes
// are serialized so concurrent callers cannot interleave partial lines.
func (t *LineTransport) Send(ctx context.Context, msg json.RawMessage) error {
	line := append(append([]byte{}, msg...), '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.done:
		return errors.New("mcp: transport closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := t.writer.Write(line)
	return err
}

// Close implements Transport. It is idempotent.
func (t *LineTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		<-t.readClosed
		if t.onClose != nil {
			t.onClose()
		}
	})
	return nil
}

func (t *LineTransport) readLoop() {
	defer close(t.readClosed)

	reader := bufio.NewReader(t.reader)
	for {
		type lineResult struct {
			line string
			err  error
		}
		lines := make(chan lineResult, 1)

		go func() {
			line, err := reader.ReadString('\n')
			lines <- lineResult{line: strings.TrimSuffix(line, "\n"), err: err}
		}()

		var lr lineResult
		select {
		case <-t.done:
			return
		case lr = <-lines:
		}

		if lr.line != "" && t.onMessage != nil {
			t.onMessage(json.RawMessage(lr.line))
		}

		if lr.err != nil {
			if !errors.Is(lr.err, io.EOF) {
				t.logger.Error("read failed", slog.String("err", lr.err.Error()))
				if t.onError != nil {
					t.onError(lr.err)
				}
			}
			return
		}
	}
}
