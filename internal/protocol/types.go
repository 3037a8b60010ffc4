// Package protocol implements the C4 layer: the typed MCP method surface,
// capability negotiation, the tool/resource/prompt registries, and the
// exchange object sessions use to call back into their peer.
package protocol

import "encoding/json"

// ProtocolVersion is the version this implementation speaks by default.
// Initialize negotiates down to whatever both sides support from
// SupportedProtocolVersions.
const ProtocolVersion = "2025-03-26"

// SupportedProtocolVersions lists every version this server accepts during
// initialize, most preferred first.
var SupportedProtocolVersions = []string{ProtocolVersion, "2024-11-05"}

// ClientInfo/ServerInfo identify the two ends of a session (spec.md §4.1).
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities and ServerCapabilities are declared during initialize
// and gate which methods each side may invoke on the other (spec.md §3).
type ClientCapabilities struct {
	Roots        *RootsCapability       `json:"roots,omitempty"`
	Sampling     *SamplingCapability    `json:"sampling,omitempty"`
	Experimental map[string]any         `json:"experimental,omitempty"`
}

type ServerCapabilities struct {
	Tools        *ToolsCapability       `json:"tools,omitempty"`
	Resources    *ResourcesCapability   `json:"resources,omitempty"`
	Prompts      *PromptsCapability     `json:"prompts,omitempty"`
	Logging      *LoggingCapability     `json:"logging,omitempty"`
	Completions  *CompletionsCapability `json:"completions,omitempty"`
	Experimental map[string]any         `json:"experimental,omitempty"`
}

type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}
type SamplingCapability struct{}
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}
type LoggingCapability struct{}
type CompletionsCapability struct{}

// InitializeParams/InitializeResult carry the handshake (spec.md §4.1).
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
	Capabilities    ClientCapabilities `json:"capabilities"`
}

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Cursor is an opaque pagination token (spec.md §4.4.6). The zero value
// requests the first page.
type Cursor string

// Content is the common payload shape for tool results, resource reads, and
// prompt messages.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// --- tools ---

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type ToolsListParams struct {
	Cursor Cursor `json:"cursor,omitempty"`
}

type ToolsListResult struct {
	Tools      []ToolDefinition `json:"tools"`
	NextCursor Cursor           `json:"nextCursor,omitempty"`
}

type ToolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type ToolsCallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// --- resources ---

type ResourceDefinition struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

type ResourceTemplateDefinition struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

type ResourcesListParams struct {
	Cursor Cursor `json:"cursor,omitempty"`
}

type ResourcesListResult struct {
	Resources  []ResourceDefinition `json:"resources"`
	NextCursor Cursor               `json:"nextCursor,omitempty"`
}

type ResourceTemplatesListResult struct {
	ResourceTemplates []ResourceTemplateDefinition `json:"resourceTemplates"`
	NextCursor        Cursor                        `json:"nextCursor,omitempty"`
}

type ResourcesReadParams struct {
	URI string `json:"uri"`
}

type ResourcesReadResult struct {
	Contents []Content `json:"contents"`
}

type ResourcesSubscribeParams struct {
	URI string `json:"uri"`
}

// --- prompts ---

type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

type PromptDefinition struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

type PromptsListParams struct {
	Cursor Cursor `json:"cursor,omitempty"`
}

type PromptsListResult struct {
	Prompts    []PromptDefinition `json:"prompts"`
	NextCursor Cursor             `json:"nextCursor,omitempty"`
}

type PromptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

type PromptsGetResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// --- completions ---

type CompleteRef struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
}

type CompleteArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type CompleteParams struct {
	Ref      CompleteRef      `json:"ref"`
	Argument CompleteArgument `json:"argument"`
}

type CompleteResult struct {
	Completion struct {
		Values  []string `json:"values"`
		Total   int      `json:"total,omitempty"`
		HasMore bool     `json:"hasMore,omitempty"`
	} `json:"completion"`
}

// --- roots (client-exposed, server calls back) ---

type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

type RootsListResult struct {
	Roots []Root `json:"roots"`
}

// --- sampling (client-exposed, server calls back) ---

type SamplingMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

type CreateMessageParams struct {
	Messages    []SamplingMessage `json:"messages"`
	MaxTokens   int               `json:"maxTokens"`
	Temperature float64           `json:"temperature,omitempty"`
}

type CreateMessageResult struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
	Model   string  `json:"model,omitempty"`
}

// --- logging ---

type SetLoggingLevelParams struct {
	Level LogLevel `json:"level"`
}

type LoggingMessageParams struct {
	Level  LogLevel `json:"level"`
	Logger string   `json:"logger,omitempty"`
	Data   any      `json:"data"`
}
