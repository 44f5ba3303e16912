package mcp

// This file defines the MCP-specific request/result/notification shapes
// named by SPEC_FULL.md §3.1 and §4.1's method registries. Field layout
// follows the protocol's JSON wire names (camelCase via json tags) while
// keeping Go-idiomatic exported names, mirroring the shape of the
// teacher's generated schema.go without depending on its code generator.

// Role identifies who a piece of content is intended for.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Annotations carries hints about how to handle a content block.
type Annotations struct {
	Audience []Role   `json:"audience,omitempty"`
	Priority *float64 `json:"priority,omitempty"`
}

// TextContent, ImageContent, AudioContent and EmbeddedResource are the
// members of the AnyContent union. ContentBlock is their Go encoding: a
// struct with exactly one non-nil field, matching the teacher's
// ContentBlock/helpers.go pattern generalized from ACP's block kinds to
// MCP's.
type TextContent struct {
	Type        string       `json:"type"`
	Text        string       `json:"text"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

type ImageContent struct {
	Type        string       `json:"type"`
	MimeType    string       `json:"mimeType"`
	Data        string       `json:"data"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

type AudioContent struct {
	Type        string       `json:"type"`
	MimeType    string       `json:"mimeType"`
	Data        string       `json:"data"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// ResourceContents is either TextResourceContents or BlobResourceContents.
type TextResourceContents struct {
	URI      string  `json:"uri"`
	MimeType *string `json:"mimeType,omitempty"`
	Text     string  `json:"text"`
}

type BlobResourceContents struct {
	URI      string  `json:"uri"`
	MimeType *string `json:"mimeType,omitempty"`
	Blob     string  `json:"blob"`
}

type EmbeddedResource struct {
	Type        string                `json:"type"`
	Text        *TextResourceContents `json:"-"`
	Blob        *BlobResourceContents `json:"-"`
	Annotations *Annotations          `json:"annotations,omitempty"`
}

// ContentBlock is a tagged union over the four content kinds a prompt,
// tool result or sampling message may carry. Exactly one field is set;
// MarshalJSON/UnmarshalJSON flatten it to the discriminated wire shape.
type ContentBlock struct {
	Text     *TextContent      `json:"-"`
	Image    *ImageContent     `json:"-"`
	Audio    *AudioContent     `json:"-"`
	Resource *EmbeddedResource `json:"-"`
}

// Common request/result shapes shared across both directions.

type EmptyResult struct{}

type PingRequest struct{}

// ProgressToken identifies the operation a ProgressNotification reports
// on; callers attach it via _meta.progressToken on the originating
// request.
type ProgressToken = any

type ProgressNotification struct {
	ProgressToken ProgressToken `json:"progressToken"`
	Progress      float64       `json:"progress"`
	Total         *float64      `json:"total,omitempty"`
	Message       *string       `json:"message,omitempty"`
}

type CancelledNotification struct {
	RequestID RequestID `json:"requestId"`
	Reason    *string   `json:"reason,omitempty"`
}

// Initialization.

type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type SamplingCapability struct{}

type ElicitationCapability struct{}

type ClientCapabilities struct {
	Roots        *RootsCapability       `json:"roots,omitempty"`
	Sampling     *SamplingCapability    `json:"sampling,omitempty"`
	Elicitation  *ElicitationCapability `json:"elicitation,omitempty"`
	Experimental map[string]any         `json:"experimental,omitempty"`
}

type ListChangedCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ServerCapabilities struct {
	Tools        *ToolsCapability       `json:"tools,omitempty"`
	Prompts      *ListChangedCapability `json:"prompts,omitempty"`
	Resources    *ResourcesCapability   `json:"resources,omitempty"`
	Logging      *struct{}              `json:"logging,omitempty"`
	Completions  *struct{}              `json:"completions,omitempty"`
	Experimental map[string]any         `json:"experimental,omitempty"`
}

type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    *string            `json:"instructions,omitempty"`
}

type InitializedNotification struct{}

// SupportedProtocolVersion is the only protocol version this package
// negotiates; SPEC_FULL.md §8 scenario 2 requires rejecting any other.
const SupportedProtocolVersion = "2025-06-18"

// Tools.

type ToolAnnotations struct {
	Title           *string `json:"title,omitempty"`
	ReadOnlyHint    *bool   `json:"readOnlyHint,omitempty"`
	DestructiveHint *bool   `json:"destructiveHint,omitempty"`
	IdempotentHint  *bool   `json:"idempotentHint,omitempty"`
	OpenWorldHint   *bool   `json:"openWorldHint,omitempty"`
}

type Tool struct {
	Name        string                 `json:"name"`
	Description *string                `json:"description,omitempty"`
	InputSchema map[string]any         `json:"inputSchema"`
	Annotations *ToolAnnotations       `json:"annotations,omitempty"`
	Meta        map[string]any         `json:"_meta,omitempty"`
}

type ListToolsRequest struct {
	Cursor *string `json:"cursor,omitempty"`
}

type ListToolsResult struct {
	Tools      []Tool  `json:"tools"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

type CallToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ToolListChangedNotification struct{}

// Prompts.

type PromptArgument struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Required    bool    `json:"required,omitempty"`
}

type Prompt struct {
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

type PromptReference struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type ListPromptsRequest struct {
	Cursor *string `json:"cursor,omitempty"`
}

type ListPromptsResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor *string  `json:"nextCursor,omitempty"`
}

type PromptMessage struct {
	Role    Role         `json:"role"`
	Content ContentBlock `json:"content"`
}

type GetPromptRequest struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

type GetPromptResult struct {
	Description *string         `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

type PromptListChangedNotification struct{}

// Resources.

type Resource struct {
	URI         string       `json:"uri"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	MimeType    *string      `json:"mimeType,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

type ResourceTemplate struct {
	URITemplate string       `json:"uriTemplate"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	MimeType    *string      `json:"mimeType,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

type ResourceReference struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

type ListResourcesRequest struct {
	Cursor *string `json:"cursor,omitempty"`
}

type ListResourcesResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor *string    `json:"nextCursor,omitempty"`
}

type ListResourceTemplatesRequest struct {
	Cursor *string `json:"cursor,omitempty"`
}

type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
	NextCursor        *string            `json:"nextCursor,omitempty"`
}

type ReadResourceRequest struct {
	URI string `json:"uri"`
}

type ReadResourceContents struct {
	Text *TextResourceContents `json:"-"`
	Blob *BlobResourceContents `json:"-"`
}

type ReadResourceResult struct {
	Contents []ReadResourceContents `json:"contents"`
}

type SubscribeRequest struct {
	URI string `json:"uri"`
}

type UnsubscribeRequest struct {
	URI string `json:"uri"`
}

type ResourceListChangedNotification struct{}

type ResourceUpdatedNotification struct {
	URI string `json:"uri"`
}

// Roots.

type Root struct {
	URI      string         `json:"uri"`
	Name     *string        `json:"name,omitempty"`
	Metadata map[string]any `json:"_meta,omitempty"`
}

type ListRootsRequest struct{}

type ListRootsResult struct {
	Roots []Root `json:"roots"`
}

type RootsListChangedNotification struct{}

// Sampling.

type SamplingMessage struct {
	Role    Role         `json:"role"`
	Content ContentBlock `json:"content"`
}

type ModelHint struct {
	Name *string `json:"name,omitempty"`
}

type ModelPreferences struct {
	Hints                []ModelHint `json:"hints,omitempty"`
	CostPriority         *float64    `json:"costPriority,omitempty"`
	SpeedPriority        *float64    `json:"speedPriority,omitempty"`
	IntelligencePriority *float64    `json:"intelligencePriority,omitempty"`
}

type CreateMessageRequest struct {
	Messages         []SamplingMessage `json:"messages"`
	ModelPreferences *ModelPreferences `json:"modelPreferences,omitempty"`
	SystemPrompt     *string           `json:"systemPrompt,omitempty"`
	MaxTokens        int               `json:"maxTokens"`
	StopSequences    []string          `json:"stopSequences,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
}

type CreateMessageResult struct {
	Role       Role         `json:"role"`
	Content    ContentBlock `json:"content"`
	Model      string       `json:"model"`
	StopReason *string      `json:"stopReason,omitempty"`
}

// Elicitation.

type ElicitRequest struct {
	Message         string         `json:"message"`
	RequestedSchema map[string]any `json:"requestedSchema"`
}

type ElicitResult struct {
	Action  string         `json:"action"`
	Content map[string]any `json:"content,omitempty"`
}

// Logging.

type LoggingLevel string

const (
	LogDebug     LoggingLevel = "debug"
	LogInfo      LoggingLevel = "info"
	LogNotice    LoggingLevel = "notice"
	LogWarning   LoggingLevel = "warning"
	LogError     LoggingLevel = "error"
	LogCritical  LoggingLevel = "critical"
	LogAlert     LoggingLevel = "alert"
	LogEmergency LoggingLevel = "emergency"
)

// loggingLevelPriority orders severities for should-send comparisons,
// generalizing LoggingManager.should_send_log's priority table.
var loggingLevelPriority = map[LoggingLevel]int{
	LogDebug: 0, LogInfo: 1, LogNotice: 2, LogWarning: 3,
	LogError: 4, LogCritical: 5, LogAlert: 6, LogEmergency: 7,
}

type SetLevelRequest struct {
	Level LoggingLevel `json:"level"`
}

type LoggingMessageNotification struct {
	Level  LoggingLevel `json:"level"`
	Logger *string      `json:"logger,omitempty"`
	Data   any          `json:"data"`
}

// Completions.

type CompletionArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type CompletionValues struct {
	Values  []string `json:"values"`
	Total   *int     `json:"total,omitempty"`
	HasMore *bool    `json:"hasMore,omitempty"`
}

// CompletionReference is either a PromptReference or a ResourceReference,
// distinguished on the wire by its "type" field ("ref/prompt" or
// "ref/resource").
type CompletionReference struct {
	Prompt   *PromptReference
	Resource *ResourceReference
}

type CompleteRequest struct {
	Ref      CompletionReference `json:"ref"`
	Argument CompletionArgument  `json:"argument"`
}

type CompleteResult struct {
	Completion CompletionValues `json:"completion"`
}
