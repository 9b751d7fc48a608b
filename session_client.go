package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ClientSessionOption configures a ClientSession at construction time.
type ClientSessionOption func(*ClientSession)

// WithClientLogger overrides the session's default logger.
func WithClientLogger(logger *slog.Logger) ClientSessionOption {
	return func(c *ClientSession) { c.logger = logger }
}

// WithClientCapabilities overrides the capabilities declared during
// initialize (by default, none).
func WithClientCapabilities(caps ClientCapabilities) ClientSessionOption {
	return func(c *ClientSession) { c.capabilities = caps }
}

// ClientSession is the MCP client-role session layer (C9): it performs
// the initialize handshake and exposes one wrapper method per MCP request
// family, translating Go calls into Endpoint.SendRequest/Wait pairs.
type ClientSession struct {
	info         Implementation
	capabilities ClientCapabilities
	logger       *slog.Logger

	endpoint   *Endpoint
	dispatcher *Dispatcher

	mu                 sync.RWMutex
	initialized        bool
	serverInfo         Implementation
	serverCapabilities ServerCapabilities
}

// NewClientSession builds a ClientSession identified by info, wired to
// transport. Start must be called to open the transport, then Initialize
// to perform the handshake, before any other wrapper method is used.
func NewClientSession(info Implementation, transport Transport, opts ...ClientSessionOption) *ClientSession {
	c := &ClientSession{
		info:   info,
		logger: slog.Default().With(slog.String("component", "client-session")),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.dispatcher = NewDispatcher(c.logger)
	c.dispatcher.Register(MethodPing, EagerFunc(func(_ context.Context, _ json.RawMessage) (any, error) {
		return struct{}{}, nil
	}))
	c.dispatcher.Register(MethodNotificationsToolsListChanged, noopNotificationHandler())
	c.dispatcher.Register(MethodNotificationsPromptsListChanged, noopNotificationHandler())
	c.dispatcher.Register(MethodNotificationsResourcesListChanged, noopNotificationHandler())
	c.dispatcher.Register(MethodNotificationsResourcesUpdated, noopNotificationHandler())
	c.dispatcher.Register(MethodNotificationsMessage, noopNotificationHandler())

	c.endpoint = NewEndpoint(RoleClient, transport, c.dispatcher, WithLogger(c.logger))
	return c
}

func noopNotificationHandler() Handler {
	return EagerFunc(func(_ context.Context, _ json.RawMessage) (any, error) { return nil, nil })
}

// Start opens the underlying transport.
func (c *ClientSession) Start(ctx context.Context) error {
	return c.endpoint.Start(ctx)
}

// Close tears the session down.
func (c *ClientSession) Close() error {
	return c.endpoint.Close()
}

// Initialize performs the MCP handshake: it sends "initialize" with this
// session's declared capabilities, records the server's response, and
// sends the "notifications/initialized" follow-up.
func (c *ClientSession) Initialize(ctx context.Context) error {
	pending, err := c.endpoint.SendRequest(ctx, MethodInitialize, InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    c.capabilities,
		ClientInfo:      c.info,
	})
	if err != nil {
		return err
	}
	raw, err := pending.Wait(ctx)
	if err != nil {
		return err
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("mcp: malformed initialize result: %w", err)
	}
	if result.ProtocolVersion != protocolVersion {
		return fmt.Errorf("mcp: unsupported server protocol version %q", result.ProtocolVersion)
	}

	c.mu.Lock()
	c.serverInfo = result.ServerInfo
	c.serverCapabilities = result.Capabilities
	c.initialized = true
	c.mu.Unlock()

	return c.endpoint.SendNotification(ctx, MethodNotificationsInitialized, nil)
}

// ServerInfo returns the peer's declared Implementation, valid after
// Initialize succeeds.
func (c *ClientSession) ServerInfo() Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// ServerCapabilities returns the peer's declared capabilities, valid
// after Initialize succeeds.
func (c *ClientSession) ServerCapabilities() ServerCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverCapabilities
}

func (c *ClientSession) requireInitialized() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (c *ClientSession) call(ctx context.Context, method string, params, out any) error {
	if err := c.requireInitialized(); err != nil {
		return err
	}
	pending, err := c.endpoint.SendRequest(ctx, method, params)
	if err != nil {
		return err
	}
	raw, err := pending.Wait(ctx)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// ListTools calls "tools/list".
func (c *ClientSession) ListTools(ctx context.Context) ([]Tool, error) {
	var result ListToolsResult
	if err := c.call(ctx, MethodToolsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool calls "tools/call".
func (c *ClientSession) CallTool(ctx context.Context, name string, arguments json.RawMessage) (CallToolResult, error) {
	var result CallToolResult
	err := c.call(ctx, MethodToolsCall, CallToolParams{Name: name, Arguments: arguments}, &result)
	return result, err
}

// ListPrompts calls "prompts/list".
func (c *ClientSession) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var result ListPromptsResult
	if err := c.call(ctx, MethodPromptsList, nil, &result); err != nil {
		return nil, err
	}
	return result.Prompts, nil
}

// GetPrompt calls "prompts/get".
func (c *ClientSession) GetPrompt(ctx context.Context, name string, arguments map[string]string) (GetPromptResult, error) {
	var result GetPromptResult
	err := c.call(ctx, MethodPromptsGet, GetPromptParams{Name: name, Arguments: arguments}, &result)
	return result, err
}

// ListResources calls "resources/list".
func (c *ClientSession) ListResources(ctx context.Context) ([]Resource, error) {
	var result ListResourcesResult
	if err := c.call(ctx, MethodResourcesList, nil, &result); err != nil {
		return nil, err
	}
	return result.Resources, nil
}

// ReadResource calls "resources/read".
func (c *ClientSession) ReadResource(ctx context.Context, uri string) ([]ResourceContent, error) {
	var result ReadResourceResult
	if err := c.call(ctx, MethodResourcesRead, ReadResourceParams{URI: uri}, &result); err != nil {
		return nil, err
	}
	return result.Contents, nil
}

// ListResourceTemplates calls "resources/templates/list".
func (c *ClientSession) ListResourceTemplates(ctx context.Context) ([]ResourceTemplate, error) {
	var result ListResourceTemplatesResult
	if err := c.call(ctx, MethodResourcesTemplates, nil, &result); err != nil {
		return nil, err
	}
	return result.ResourceTemplates, nil
}

// SubscribeResource calls "resources/subscribe".
func (c *ClientSession) SubscribeResource(ctx context.Context, uri string) error {
	return c.call(ctx, MethodResourcesSubscribe, SubscribeResourceParams{URI: uri}, nil)
}

// SetLogLevel calls "logging/setLevel".
func (c *ClientSession) SetLogLevel(ctx context.Context, level LogLevel) error {
	return c.call(ctx, MethodLoggingSetLevel, SetLevelParams{Level: level}, nil)
}

// ToolCall names one call for CallToolsParallel.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// ToolCallOutcome is one result from CallToolsParallel, paired with the
// index of the ToolCall it answers.
type ToolCallOutcome struct {
	Index  int
	Result CallToolResult
	Err    error
}

// CallToolsParallel fans calls out concurrently via
// golang.org/x/sync/errgroup, one goroutine per call. If cancelOnFirstErr
// is set, the first failing call cancels the context passed to the
// others; either way, CallToolsParallel always waits for every goroutine
// to finish before returning.
func (c *ClientSession) CallToolsParallel(ctx context.Context, calls []ToolCall, cancelOnFirstErr bool) ([]ToolCallOutcome, error) {
	outcomes := make([]ToolCallOutcome, len(calls))

	var g *errgroup.Group
	var gctx context.Context
	if cancelOnFirstErr {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
		gctx = ctx
	}

	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			result, err := c.CallTool(gctx, call.Name, call.Arguments)
			outcomes[i] = ToolCallOutcome{Index: i, Result: result, Err: err}
			if cancelOnFirstErr {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && cancelOnFirstErr {
		return outcomes, err
	}
	return outcomes, nil
}
