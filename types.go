package mcp

import "encoding/json"

// protocolVersion is the fixed MCP protocol version this engine speaks.
const protocolVersion = "2024-11-05"

// MCP method names.
const (
	MethodInitialize          = "initialize"
	MethodPing                = "ping"
	MethodToolsList           = "tools/list"
	MethodToolsCall           = "tools/call"
	MethodPromptsList         = "prompts/list"
	MethodPromptsGet          = "prompts/get"
	MethodResourcesList       = "resources/list"
	MethodResourcesRead       = "resources/read"
	MethodResourcesSubscribe  = "resources/subscribe"
	MethodResourcesTemplates  = "resources/templates/list"
	MethodCancelRequest       = "$/cancelRequest"
	MethodLoggingSetLevel     = "logging/setLevel"

	MethodNotificationsInitialized           = "notifications/initialized"
	MethodNotificationsProgress              = "notifications/progress"
	MethodNotificationsMessage               = "notifications/message"
	MethodNotificationsToolsListChanged      = "notifications/tools/list_changed"
	MethodNotificationsPromptsListChanged    = "notifications/prompts/list_changed"
	MethodNotificationsResourcesListChanged  = "notifications/resources/list_changed"
	MethodNotificationsResourcesUpdated      = "notifications/resources/updated"
)

// gatedMCPMethods lists every request method that a server-role Endpoint
// refuses until initialize has completed. "initialize" itself and
// $/cancelRequest are intentionally absent.
var gatedMCPMethods = []string{
	MethodToolsList,
	MethodToolsCall,
	MethodPromptsList,
	MethodPromptsGet,
	MethodResourcesList,
	MethodResourcesRead,
	MethodResourcesSubscribe,
	MethodResourcesTemplates,
	MethodLoggingSetLevel,
}

// Implementation identifies a client or server by name and version, sent
// during the initialize handshake.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities is what a client declares it supports during
// initialize.
type ClientCapabilities struct {
	Roots    *RootsCapability `json:"roots,omitempty"`
	Sampling *struct{}        `json:"sampling,omitempty"`
}

// RootsCapability declares whether the client will emit
// notifications/roots/list_changed.
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities is what a server declares it supports during
// initialize, computed from which registries were populated.
type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Logging   *struct{}            `json:"logging,omitempty"`
}

// ToolsCapability declares tool support and whether the server may emit
// notifications/tools/list_changed.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability declares prompt support and list-change notification
// support.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability declares resource support, subscription support,
// and list-change notification support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams is the payload of the outbound/inbound "initialize"
// request.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the payload of a successful "initialize" response.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ContentType discriminates the shape of a ContentBlock.
type ContentType string

// Recognized content block types.
const (
	ContentTypeText     ContentType = "text"
	ContentTypeImage    ContentType = "image"
	ContentTypeResource ContentType = "resource"
)

// ContentBlock is one element of a message's content array: a tagged
// union over text, image, and embedded-resource shapes, used in prompt
// messages and tool results. Resource reads use ResourceContent instead.
type ContentBlock struct {
	Type ContentType `json:"type"`

	// Text is set when Type == ContentTypeText.
	Text string `json:"text,omitempty"`

	// Data and MimeType are set when Type == ContentTypeImage (Data is
	// base64-encoded, per the MCP wire format).
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	// Resource is set when Type == ContentTypeResource.
	Resource *ResourceContent `json:"resource,omitempty"`
}

// TextContent builds a ContentBlock carrying plain text.
func TextContent(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

// Role identifies who authored a prompt message.
type Role string

// The two roles a PromptMessage may carry.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Tool describes one callable tool a server exposes.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsResult is the payload of a "tools/list" response.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is the payload of a "tools/call" request.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the payload of a "tools/call" response. IsError set
// alongside a populated Content signals a tool-level failure the handler
// chose to report as a normal result; unexpected handler errors are
// instead translated to a -32603 error response (see DESIGN.md).
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Prompt describes one named prompt template a server exposes.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes one named argument a Prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ListPromptsResult is the payload of a "prompts/list" response.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// GetPromptParams is the payload of a "prompts/get" request.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// PromptMessage is one message in a rendered prompt. Content is an array
// of content blocks, per SPEC_FULL.md's resolution of the prompt-content
// open question.
type PromptMessage struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// GetPromptResult is the payload of a "prompts/get" response.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// Resource describes one resource a server exposes.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult is the payload of a "resources/list" response.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ReadResourceParams is the payload of a "resources/read" request.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ResourceContent is the contents of one resource, either text or binary
// (base64-encoded in Blob).
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ReadResourceResult is the payload of a "resources/read" response.
type ReadResourceResult struct {
	Contents []ResourceContent `json:"contents"`
}

// ResourceTemplate describes a URI-templated family of resources.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourceTemplatesResult is the payload of a
// "resources/templates/list" response.
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
}

// SubscribeResourceParams is the payload of a "resources/subscribe"
// request.
type SubscribeResourceParams struct {
	URI string `json:"uri"`
}

// LogLevel is an RFC 5424 syslog severity, as used by
// "logging/setLevel" and "notifications/message".
type LogLevel string

// Recognized log levels, ordered from most to least severe.
const (
	LogLevelEmergency LogLevel = "emergency"
	LogLevelAlert     LogLevel = "alert"
	LogLevelCritical  LogLevel = "critical"
	LogLevelError     LogLevel = "error"
	LogLevelWarning   LogLevel = "warning"
	LogLevelNotice    LogLevel = "notice"
	LogLevelInfo      LogLevel = "info"
	LogLevelDebug     LogLevel = "debug"
)

// SetLevelParams is the payload of a "logging/setLevel" request.
type SetLevelParams struct {
	Level LogLevel `json:"level"`
}

// LogParams is the payload of a "notifications/message" notification.
type LogParams struct {
	Level  LogLevel `json:"level"`
	Logger string   `json:"logger,omitempty"`
	Data   any      `json:"data"`
}

// ModelPreferences carries sampling hints. The engine carries this type
// for wire-shape completeness, but implements no sampling/createMessage
// invocation loop.
type ModelPreferences struct {
	Hints                []ModelHint `json:"hints,omitempty"`
	CostPriority         float64     `json:"costPriority,omitempty"`
	SpeedPriority        float64     `json:"speedPriority,omitempty"`
	IntelligencePriority float64     `json:"intelligencePriority,omitempty"`
}

// ModelHint names a model family a sampling request would prefer.
type ModelHint struct {
	Name string `json:"name,omitempty"`
}
