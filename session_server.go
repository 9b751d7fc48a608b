package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ToolHandlerFunc implements one registered tool's "tools/call". A
// ToolFailure error is translated into a successful CallToolResult with
// IsError set, for expected, tool-level failures; an *RPCError is passed
// through with its own code; any other error wraps as a -32603 internal
// error for unexpected handler failures (see DESIGN.md's deviation entry).
type ToolHandlerFunc func(ctx context.Context, arguments json.RawMessage) (CallToolResult, error)

// ToolFailure marks an error as an expected tool-level failure: the
// ServerSession reports it as CallToolResult{IsError:true}, not as a
// protocol-level -32603 error.
type ToolFailure struct {
	Reason string
}

// Error implements error.
func (f *ToolFailure) Error() string { return f.Reason }

// PromptHandlerFunc implements one registered prompt's "prompts/get".
type PromptHandlerFunc func(ctx context.Context, arguments map[string]string) (GetPromptResult, error)

// ResourceHandlerFunc implements one registered resource's
// "resources/read".
type ResourceHandlerFunc func(ctx context.Context, uri string) (ReadResourceResult, error)

type toolEntry struct {
	def     Tool
	handler Handler
}

type promptEntry struct {
	def     Prompt
	handler PromptHandlerFunc
}

type resourceEntry struct {
	def     Resource
	handler ResourceHandlerFunc
}

// ServerSessionOption configures a ServerSession at construction time.
type ServerSessionOption func(*ServerSession)

// WithInstructions sets the free-text instructions returned from
// initialize.
func WithInstructions(instructions string) ServerSessionOption {
	return func(s *ServerSession) { s.instructions = instructions }
}

// WithServerLogger overrides the session's default logger.
func WithServerLogger(logger *slog.Logger) ServerSessionOption {
	return func(s *ServerSession) { s.logger = logger }
}

// WithToolsListChanged enables the tools.listChanged capability flag,
// advertising that NotifyToolsListChanged may be called.
func WithToolsListChanged() ServerSessionOption {
	return func(s *ServerSession) { s.toolsListChanged = true }
}

// WithPromptsListChanged enables the prompts.listChanged capability flag.
func WithPromptsListChanged() ServerSessionOption {
	return func(s *ServerSession) { s.promptsListChanged = true }
}

// WithResourcesListChanged enables the resources.listChanged capability
// flag.
func WithResourcesListChanged() ServerSessionOption {
	return func(s *ServerSession) { s.resourcesListChanged = true }
}

// WithResourcesSubscribe enables the resources.subscribe capability flag.
func WithResourcesSubscribe() ServerSessionOption {
	return func(s *ServerSession) { s.resourcesSubscribe = true }
}

// ServerSession is the MCP server-role session layer (C10): it owns the
// tool/prompt/resource registries, negotiates capabilities during
// initialize, and dispatches the six MCP request families plus "ping" and
// "resources/templates/list" (which always answers with an empty list)
// over an Endpoint. No handler is registered for "logging/setLevel" or
// "resources/subscribe".
type ServerSession struct {
	id           string
	info         Implementation
	instructions string
	logger       *slog.Logger

	endpoint   *Endpoint
	dispatcher *Dispatcher

	mu             sync.RWMutex
	tools          map[string]toolEntry
	toolsOrder     []string
	prompts        map[string]promptEntry
	promptsOrder   []string
	resources      map[string]resourceEntry
	resourcesOrder []string

	toolsListChanged      bool
	promptsListChanged    bool
	resourcesListChanged  bool
	resourcesSubscribe    bool

	peerCapabilities ClientCapabilities
}

// NewServerSession builds a ServerSession identified by info, wired to
// transport, and Start begins serving. The capabilities advertised during
// initialize reflect whatever RegisterTool/RegisterPrompt/RegisterResource
// have added by then; the registries also accept registrations while the
// session is serving.
func NewServerSession(info Implementation, transport Transport, opts ...ServerSessionOption) *ServerSession {
	s := &ServerSession{
		id:        uuid.New().String(),
		info:      info,
		logger:    slog.Default().With(slog.String("component", "server-session")),
		tools:     make(map[string]toolEntry),
		prompts:   make(map[string]promptEntry),
		resources: make(map[string]resourceEntry),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.dispatcher = NewDispatcher(s.logger)
	s.dispatcher.Register(MethodPing, EagerFunc(s.handlePing))
	s.dispatcher.Register(MethodToolsList, EagerFunc(s.handleToolsList))
	s.dispatcher.Register(MethodToolsCall, EagerFunc(s.handleToolsCall))
	s.dispatcher.Register(MethodPromptsList, EagerFunc(s.handlePromptsList))
	s.dispatcher.Register(MethodPromptsGet, EagerFunc(s.handlePromptsGet))
	s.dispatcher.Register(MethodResourcesList, EagerFunc(s.handleResourcesList))
	s.dispatcher.Register(MethodResourcesRead, EagerFunc(s.handleResourcesRead))
	s.dispatcher.Register(MethodResourcesTemplates, EagerFunc(s.handleResourcesTemplatesList))

	s.endpoint = NewEndpoint(RoleServer, transport, s.dispatcher,
		WithInitializer(s),
		WithLogger(s.logger),
		WithGatedMethods(gatedMCPMethods...),
	)
	return s
}

// Start begins serving on the underlying transport.
func (s *ServerSession) Start(ctx context.Context) error {
	return s.endpoint.Start(ctx)
}

// Close tears the session down.
func (s *ServerSession) Close() error {
	return s.endpoint.Close()
}

// RegisterTool adds (or replaces) a tool backed by an eager handler in
// the registry.
func (s *ServerSession) RegisterTool(def Tool, handler ToolHandlerFunc) {
	s.registerToolHandler(def, EagerFunc(func(ctx context.Context, params json.RawMessage) (any, error) {
		return handler(ctx, params)
	}))
}

// RegisterStreamingTool adds (or replaces) a tool whose result is
// produced incrementally: produce yields ContentBlocks one at a time,
// each reported as progress. SPEC_FULL.md's cancelled-stream default (a
// -32800 error) applies unless partialOnCancel is set, in which case the
// blocks collected before cancellation are returned as a normal result.
func (s *ServerSession) RegisterStreamingTool(
	def Tool,
	produce func(ctx context.Context, arguments json.RawMessage) iter.Seq[ContentBlock],
	partialOnCancel bool,
) {
	s.registerToolHandler(def, StreamHandler{
		Produce: func(ctx context.Context, params json.RawMessage) iter.Seq[any] {
			return func(yield func(any) bool) {
				for block := range produce(ctx, params) {
					if !yield(block) {
						return
					}
				}
			}
		},
		Aggregate: func(chunks []any) any {
			blocks := make([]ContentBlock, 0, len(chunks))
			for _, c := range chunks {
				if b, ok := c.(ContentBlock); ok {
					blocks = append(blocks, b)
				}
			}
			return CallToolResult{Content: blocks}
		},
		PartialOnCancel: partialOnCancel,
	})
}

func (s *ServerSession) registerToolHandler(def Tool, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[def.Name]; !exists {
		s.toolsOrder = append(s.toolsOrder, def.Name)
	}
	s.tools[def.Name] = toolEntry{def: def, handler: handler}
}

// RegisterPrompt adds (or replaces) a prompt in the registry.
func (s *ServerSession) RegisterPrompt(def Prompt, handler PromptHandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.prompts[def.Name]; !exists {
		s.promptsOrder = append(s.promptsOrder, def.Name)
	}
	s.prompts[def.Name] = promptEntry{def: def, handler: handler}
}

// RegisterResource adds (or replaces) a resource in the registry.
func (s *ServerSession) RegisterResource(def Resource, handler ResourceHandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.resources[def.URI]; !exists {
		s.resourcesOrder = append(s.resourcesOrder, def.URI)
	}
	s.resources[def.URI] = resourceEntry{def: def, handler: handler}
}

// NotifyToolsListChanged emits "notifications/tools/list_changed".
func (s *ServerSession) NotifyToolsListChanged(ctx context.Context) error {
	return s.endpoint.SendNotification(ctx, MethodNotificationsToolsListChanged, nil)
}

// NotifyPromptsListChanged emits "notifications/prompts/list_changed".
func (s *ServerSession) NotifyPromptsListChanged(ctx context.Context) error {
	return s.endpoint.SendNotification(ctx, MethodNotificationsPromptsListChanged, nil)
}

// NotifyResourcesListChanged emits "notifications/resources/list_changed".
func (s *ServerSession) NotifyResourcesListChanged(ctx context.Context) error {
	return s.endpoint.SendNotification(ctx, MethodNotificationsResourcesListChanged, nil)
}

// SendLog emits a "notifications/message" log entry.
func (s *ServerSession) SendLog(ctx context.Context, level LogLevel, logger string, data any) error {
	return s.endpoint.SendNotification(ctx, MethodNotificationsMessage, LogParams{Level: level, Logger: logger, Data: data})
}

// Initialize implements Initializer: it negotiates capabilities from
// which registries are non-empty and which options were set, and records
// the peer's declared capabilities.
func (s *ServerSession) Initialize(_ context.Context, params json.RawMessage) (any, error) {
	var p InitializeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, NewRPCError(CodeInvalidParams, "malformed initialize params: "+err.Error())
	}
	if p.ProtocolVersion != protocolVersion {
		return nil, NewRPCError(CodeInvalidRequest, fmt.Sprintf("unsupported protocol version %q", p.ProtocolVersion))
	}

	s.mu.Lock()
	s.peerCapabilities = p.Capabilities
	s.mu.Unlock()

	return InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    s.capabilities(),
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}, nil
}

func (s *ServerSession) capabilities() ServerCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var caps ServerCapabilities
	if len(s.tools) > 0 {
		caps.Tools = &ToolsCapability{ListChanged: s.toolsListChanged}
	}
	if len(s.prompts) > 0 {
		caps.Prompts = &PromptsCapability{ListChanged: s.promptsListChanged}
	}
	if len(s.resources) > 0 {
		caps.Resources = &ResourcesCapability{
			Subscribe:   s.resourcesSubscribe,
			ListChanged: s.resourcesListChanged,
		}
	}
	return caps
}

func (s *ServerSession) handlePing(_ context.Context, _ json.RawMessage) (any, error) {
	return struct{}{}, nil
}

func (s *ServerSession) handleToolsList(_ context.Context, _ json.RawMessage) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tools := make([]Tool, 0, len(s.toolsOrder))
	for _, name := range s.toolsOrder {
		tools = append(tools, s.tools[name].def)
	}
	return ListToolsResult{Tools: tools}, nil
}

func (s *ServerSession) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, NewRPCError(CodeInvalidParams, "malformed tools/call params: "+err.Error())
	}
	if p.Name == "" {
		return nil, NewRPCError(CodeInvalidParams, "tools/call: name is required")
	}

	s.mu.RLock()
	entry, ok := s.tools[p.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, NewRPCError(CodeMethodNotFound, "unknown tool: "+p.Name)
	}

	result, err := entry.handler.Handle(ctx, p.Arguments)
	if err != nil {
		if failure, ok := err.(*ToolFailure); ok {
			return CallToolResult{IsError: true, Content: []ContentBlock{TextContent(failure.Reason)}}, nil
		}
		if rpcErr, ok := err.(*RPCError); ok {
			return nil, rpcErr
		}
		return nil, NewRPCError(CodeInternalError, "tool call failed: "+err.Error())
	}
	out, ok := result.(CallToolResult)
	if !ok {
		return nil, NewRPCError(CodeInternalError, "tool handler returned an unexpected result type")
	}
	return out, nil
}

func (s *ServerSession) handlePromptsList(_ context.Context, _ json.RawMessage) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prompts := make([]Prompt, 0, len(s.promptsOrder))
	for _, name := range s.promptsOrder {
		prompts = append(prompts, s.prompts[name].def)
	}
	return ListPromptsResult{Prompts: prompts}, nil
}

func (s *ServerSession) handlePromptsGet(ctx context.Context, params json.RawMessage) (any, error) {
	var p GetPromptParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, NewRPCError(CodeInvalidParams, "malformed prompts/get params: "+err.Error())
	}
	if p.Name == "" {
		return nil, NewRPCError(CodeInvalidParams, "prompts/get: name is required")
	}

	s.mu.RLock()
	entry, ok := s.prompts[p.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, NewRPCError(CodeMethodNotFound, "unknown prompt: "+p.Name)
	}

	result, err := entry.handler(ctx, p.Arguments)
	if err != nil {
		return nil, NewRPCError(CodeInternalError, "prompt render failed: "+err.Error())
	}
	return result, nil
}

func (s *ServerSession) handleResourcesList(_ context.Context, _ json.RawMessage) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resources := make([]Resource, 0, len(s.resourcesOrder))
	for _, uri := range s.resourcesOrder {
		resources = append(resources, s.resources[uri].def)
	}
	return ListResourcesResult{Resources: resources}, nil
}

func (s *ServerSession) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, error) {
	var p ReadResourceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, NewRPCError(CodeInvalidParams, "malformed resources/read params: "+err.Error())
	}
	if p.URI == "" {
		return nil, NewRPCError(CodeInvalidParams, "resources/read: uri is required")
	}

	s.mu.RLock()
	entry, ok := s.resources[p.URI]
	s.mu.RUnlock()
	if !ok {
		return nil, NewRPCError(CodeMethodNotFound, "unknown resource: "+p.URI)
	}

	result, err := entry.handler(ctx, p.URI)
	if err != nil {
		return nil, NewRPCError(CodeInternalError, "resource read failed: "+err.Error())
	}
	return result, nil
}

func (s *ServerSession) handleResourcesTemplatesList(_ context.Context, _ json.RawMessage) (any, error) {
	return ListResourceTemplatesResult{ResourceTemplates: nil}, nil
}
