package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// EndpointRole distinguishes the client and server sides of a connection,
// since only the server side gates non-initialize MCP methods on a
// completed handshake.
type EndpointRole int

// The two endpoint roles.
const (
	RoleClient EndpointRole = iota
	RoleServer
)

// Initializer performs the MCP handshake for a server-role Endpoint. A
// ServerSession implements this to negotiate capabilities and return an
// InitializeResult; a client-role Endpoint has no Initializer since its
// "initialize" call is an ordinary outbound request.
type Initializer interface {
	Initialize(ctx context.Context, params json.RawMessage) (any, error)
}

// EndpointOption configures an Endpoint at construction time.
type EndpointOption func(*Endpoint)

// WithInitializer installs the handshake handler for a server-role
// Endpoint's built-in "initialize" method.
func WithInitializer(i Initializer) EndpointOption {
	return func(e *Endpoint) { e.initializer = i }
}

// WithLogger overrides the endpoint's default logger.
func WithLogger(l *slog.Logger) EndpointOption {
	return func(e *Endpoint) { e.logger = l }
}

// WithGatedMethods marks methods that a server-role Endpoint refuses with
// CodeInvalidRequest until initialize has completed successfully.
func WithGatedMethods(methods ...string) EndpointOption {
	return func(e *Endpoint) {
		for _, m := range methods {
			e.gated[m] = true
		}
	}
}

// pendingRequest tracks one outstanding outbound request awaiting a
// response.
type pendingRequest struct {
	result json.RawMessage
	err    *RPCError
}

// PendingRequest is a handle to an outbound request in flight. Wait blocks
// until the response arrives, ctx is cancelled, or the request is
// explicitly cancelled; Cancel unregisters it and notifies the peer.
type PendingRequest struct {
	id string
	ep *Endpoint
	ch chan pendingRequest
}

// Wait blocks for the response, translating a caller-side ctx
// cancellation into an outbound "$/cancelRequest" notification to the
// peer.
func (p *PendingRequest) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case out := <-p.ch:
		if out.err != nil {
			return nil, out.err
		}
		return out.result, nil
	case <-ctx.Done():
		p.Cancel(context.Background())
		return nil, ctx.Err()
	}
}

// Cancel unregisters the pending request and sends an outbound
// "$/cancelRequest" notification. Any response the peer sends afterward
// is dropped as unrecognized. It is safe to call more than once.
func (p *PendingRequest) Cancel(ctx context.Context) {
	p.ep.mu.Lock()
	_, present := p.ep.outstanding[p.id]
	delete(p.ep.outstanding, p.id)
	p.ep.mu.Unlock()
	if !present {
		return
	}
	p.ch <- pendingRequest{err: NewRPCError(CodeRequestCancelled, "request cancelled")}
	raw, err := MakeNotification(MethodCancelRequest, cancelRequestParams{RequestID: NewID(p.id)})
	if err != nil {
		return
	}
	_ = p.ep.transport.Send(ctx, raw)
}

// Endpoint is a JSON-RPC 2.0 correlation layer over a Transport: it
// assigns outbound request ids, matches inbound responses back to their
// PendingRequest, hands inbound requests and notifications to a
// Dispatcher under a per-request RequestContext, and implements the two
// built-in methods every MCP connection needs regardless of role:
// "initialize" (server role only) and "$/cancelRequest" (both roles).
type Endpoint struct {
	role        EndpointRole
	transport   Transport
	dispatcher  *Dispatcher
	logger      *slog.Logger
	initializer Initializer
	gated       map[string]bool

	nextID atomic.Int64

	mu          sync.Mutex
	outstanding map[string]*PendingRequest
	inbound     map[string]*RequestContext
	initialized bool
	closed      bool
}

// NewEndpoint builds an Endpoint over transport, wiring inbound messages
// to dispatcher. Start must be called before use.
func NewEndpoint(role EndpointRole, transport Transport, dispatcher *Dispatcher, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		role:        role,
		transport:   transport,
		dispatcher:  dispatcher,
		logger:      slog.Default().With(slog.String("component", "endpoint")),
		gated:       make(map[string]bool),
		outstanding: make(map[string]*PendingRequest),
		inbound:     make(map[string]*RequestContext),
	}
	for _, opt := range opts {
		opt(e)
	}
	transport.OnMessage(e.receive)
	transport.OnError(e.reportError)
	transport.OnClose(e.onTransportClosed)
	return e
}

// reportError is the endpoint's single soft-error path: transport-level
// read/framing failures reported through the transport's error sink, and
// protocol-level messages this endpoint could not classify, both land
// here. The connection stays open either way.
func (e *Endpoint) reportError(err error) {
	e.logger.Warn("soft error", slog.String("err", err.Error()))
}

// Start begins delivering and accepting messages on the underlying
// transport.
func (e *Endpoint) Start(ctx context.Context) error {
	return e.transport.Start(ctx)
}

// Initialized reports whether a server-role Endpoint has completed the
// handshake. Always true for a client-role Endpoint.
func (e *Endpoint) Initialized() bool {
	if e.role == RoleClient {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// Close aborts every outstanding outbound request with an error, then
// closes the underlying transport. It is idempotent.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	pending := e.outstanding
	e.outstanding = make(map[string]*PendingRequest)
	e.mu.Unlock()

	for _, p := range pending {
		p.ch <- pendingRequest{err: NewRPCError(CodeInternalError, "endpoint closed")}
	}
	return e.transport.Close()
}

func (e *Endpoint) onTransportClosed() {
	_ = e.Close()
}

// SendRequest allocates the next outbound id, sends method/params as a
// request, and returns a handle the caller awaits with Wait.
func (e *Endpoint) SendRequest(ctx context.Context, method string, params any) (*PendingRequest, error) {
	id := e.nextID.Add(1)
	idVal := NewID(fmt.Sprintf("%d", id))

	raw, err := MakeRequest(idVal, method, params)
	if err != nil {
		return nil, fmt.Errorf("mcp: encode request: %w", err)
	}

	p := &PendingRequest{id: idVal.String(), ep: e, ch: make(chan pendingRequest, 1)}
	e.mu.Lock()
	e.outstanding[p.id] = p
	e.mu.Unlock()

	if err := e.transport.Send(ctx, raw); err != nil {
		e.mu.Lock()
		delete(e.outstanding, p.id)
		e.mu.Unlock()
		return nil, err
	}
	return p, nil
}

// SendNotification sends method/params with no id and expects no
// response.
func (e *Endpoint) SendNotification(ctx context.Context, method string, params any) error {
	raw, err := MakeNotification(method, params)
	if err != nil {
		return fmt.Errorf("mcp: encode notification: %w", err)
	}
	return e.transport.Send(ctx, raw)
}

// SendProgress emits a "notifications/progress" for the given token.
func (e *Endpoint) SendProgress(ctx context.Context, token ID, progress, total float64) error {
	return e.SendNotification(ctx, MethodNotificationsProgress, progressParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
	})
}

// receive is registered as the transport's message sink. It classifies
// raw as a batch or a single value and processes it on its own
// goroutine, so a blocked handler never stalls the transport's delivery
// pump: two inbound requests can be in flight at once, and a
// "$/cancelRequest" notification arriving mid-handler is dispatched
// concurrently instead of queueing behind it.
func (e *Endpoint) receive(raw json.RawMessage) {
	go func() {
		if IsBatch(raw) {
			e.receiveBatch(raw)
			return
		}
		if resp := e.handleSingle(context.Background(), raw, false); resp != nil {
			if err := e.transport.Send(context.Background(), *resp); err != nil {
				e.logger.Error("failed to send response", slog.String("err", err.Error()))
			}
		}
	}()
}

func (e *Endpoint) receiveBatch(raw json.RawMessage) {
	items, err := DecodeBatch(raw)
	if err != nil {
		resp, _ := MakeError(NullID(), NewRPCError(CodeParseError, "invalid batch"))
		_ = e.transport.Send(context.Background(), resp)
		return
	}
	if len(items) == 0 {
		resp, _ := MakeError(NullID(), NewRPCError(CodeInvalidRequest, "empty batch"))
		_ = e.transport.Send(context.Background(), resp)
		return
	}

	responses := make([]*json.RawMessage, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item json.RawMessage) {
			defer wg.Done()
			responses[i] = e.handleSingle(context.Background(), item, true)
		}(i, item)
	}
	wg.Wait()

	var ordered []json.RawMessage
	for _, r := range responses {
		if r != nil {
			ordered = append(ordered, *r)
		}
	}
	if len(ordered) == 0 {
		return
	}
	batchRaw, err := json.Marshal(ordered)
	if err != nil {
		e.logger.Error("failed to encode batch response", slog.String("err", err.Error()))
		return
	}
	if err := e.transport.Send(context.Background(), batchRaw); err != nil {
		e.logger.Error("failed to send batch response", slog.String("err", err.Error()))
	}
}

// handleSingle processes one non-batch JSON value: a request,
// notification, or response. It returns a non-nil raw response for
// requests and, outside a batch, a null-id parse error for a value that is
// not valid JSON; never for notifications or responses. A request whose
// "jsonrpc" member is not "2.0" is answered with CodeInvalidRequest; any
// other message with a wrong version goes to the soft-error path.
func (e *Endpoint) handleSingle(ctx context.Context, raw json.RawMessage, isBatchChild bool) *json.RawMessage {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		if isBatchChild {
			return nil
		}
		resp, _ := MakeError(NullID(), NewRPCError(CodeParseError, "invalid json"))
		return &resp
	}
	if m.JSONRPC != jsonRPCVersion {
		err := fmt.Errorf("mcp: inbound message has jsonrpc %q, want %q", m.JSONRPC, jsonRPCVersion)
		if m.IsRequest() {
			resp, _ := MakeError(*m.ID, NewRPCError(CodeInvalidRequest, err.Error()))
			return &resp
		}
		e.reportError(err)
		return nil
	}

	switch {
	case m.IsResponse():
		e.routeResponse(m)
		return nil
	case m.IsNotification():
		e.handleNotification(ctx, m)
		return nil
	case m.IsRequest():
		resp := e.handleRequest(ctx, m)
		return &resp
	default:
		// Valid JSON that is neither a request, a notification, nor a
		// response: a soft error on the error sink, not a wire-level
		// error response. The connection stays open.
		e.reportError(fmt.Errorf("mcp: inbound message is neither request nor response: %s", raw))
		return nil
	}
}

func (e *Endpoint) routeResponse(m Message) {
	id := ""
	if m.ID != nil {
		id = m.ID.String()
	}
	e.mu.Lock()
	p, ok := e.outstanding[id]
	if ok {
		delete(e.outstanding, id)
	}
	e.mu.Unlock()
	if !ok {
		e.logger.Debug("dropping response for unknown request", slog.String("id", id))
		return
	}
	if m.Error != nil {
		p.ch <- pendingRequest{err: m.Error}
		return
	}
	p.ch <- pendingRequest{result: m.Result}
}

func (e *Endpoint) handleNotification(ctx context.Context, m Message) {
	switch m.Method {
	case MethodNotificationsInitialized:
		return
	case MethodCancelRequest:
		var params cancelRequestParams
		if err := json.Unmarshal(m.Params, &params); err != nil {
			return
		}
		e.mu.Lock()
		rc, ok := e.inbound[params.RequestID.String()]
		e.mu.Unlock()
		if ok {
			rc.cancel()
		}
		return
	}
	e.dispatcher.DispatchNotification(ctx, m.Method, m.Params)
}

func (e *Endpoint) handleRequest(ctx context.Context, m Message) json.RawMessage {
	id := *m.ID

	if m.Method == MethodInitialize && e.initializer != nil {
		result, err := e.initializer.Initialize(ctx, m.Params)
		if err != nil {
			resp, _ := MakeError(id, AsRPCError(err))
			return resp
		}
		e.mu.Lock()
		e.initialized = true
		e.mu.Unlock()
		resp, _ := MakeResult(id, result)
		return resp
	}

	if e.role == RoleServer && e.gated[m.Method] && !e.Initialized() {
		resp, _ := MakeError(id, NewRPCError(CodeInvalidRequest, "server not yet initialized"))
		return resp
	}

	var progressFn func(progress, total float64)
	if token, ok := progressTokenFromParams(m.Params); ok {
		progressFn = func(progress, total float64) {
			_ = e.SendProgress(context.Background(), token, progress, total)
		}
	}
	rc := newRequestContext(id, progressFn)
	e.mu.Lock()
	e.inbound[id.String()] = rc
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inbound, id.String())
		e.mu.Unlock()
	}()

	reqCtx := withRequestContext(ctx, rc)
	return e.dispatcher.DispatchRequest(reqCtx, id, m.Method, m.Params)
}

// progressTokenFromParams extracts a request's declared progress token
// from its params._meta.progressToken field, per §6's request/response
// binding table. It reports false if no token was supplied; handleRequest
// then installs no progress sink, so RequestContext.ReportProgress is a
// no-op and no progress notification is sent.
func progressTokenFromParams(params json.RawMessage) (ID, bool) {
	var withMeta struct {
		Meta struct {
			ProgressToken *ID `json:"progressToken"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(params, &withMeta); err != nil || withMeta.Meta.ProgressToken == nil {
		return ID{}, false
	}
	return *withMeta.Meta.ProgressToken, true
}

type cancelRequestParams struct {
	RequestID ID `json:"requestId"`
}

type progressParams struct {
	ProgressToken ID      `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
}

// ErrNotInitialized is returned by session-level wrapper methods when
// called before the handshake has completed.
var ErrNotInitialized = errors.New("mcp: endpoint not initialized")
