package mcp

// methodSpec pairs a request method with factories for its params type
// and its expected result type, so the parser can both decode inbound
// params and validate a response against the request that provoked it.
// This table is this package's reimplementation of the method-string
// dispatch conduit.protocol.unions builds from CLIENT_SENT_NOTIFICATION_REGISTRY
// / SERVER_SENT_NOTIFICATION_REGISTRY and the per-direction request unions.
type methodSpec struct {
	newParams func() any
	newResult func() any
}

// clientRequestMethods are requests a client sends and a server handles
// (conduit.protocol.unions.ClientRequest).
var clientRequestMethods = map[string]methodSpec{
	"ping":                     {func() any { return &PingRequest{} }, func() any { return &EmptyResult{} }},
	"initialize":               {func() any { return &InitializeRequest{} }, func() any { return &InitializeResult{} }},
	"completion/complete":      {func() any { return &CompleteRequest{} }, func() any { return &CompleteResult{} }},
	"logging/setLevel":         {func() any { return &SetLevelRequest{} }, func() any { return &EmptyResult{} }},
	"prompts/get":              {func() any { return &GetPromptRequest{} }, func() any { return &GetPromptResult{} }},
	"prompts/list":             {func() any { return &ListPromptsRequest{} }, func() any { return &ListPromptsResult{} }},
	"resources/list":           {func() any { return &ListResourcesRequest{} }, func() any { return &ListResourcesResult{} }},
	"resources/templates/list": {func() any { return &ListResourceTemplatesRequest{} }, func() any { return &ListResourceTemplatesResult{} }},
	"resources/read":           {func() any { return &ReadResourceRequest{} }, func() any { return &ReadResourceResult{} }},
	"resources/subscribe":      {func() any { return &SubscribeRequest{} }, func() any { return &EmptyResult{} }},
	"resources/unsubscribe":    {func() any { return &UnsubscribeRequest{} }, func() any { return &EmptyResult{} }},
	"tools/call":               {func() any { return &CallToolRequest{} }, func() any { return &CallToolResult{} }},
	"tools/list":               {func() any { return &ListToolsRequest{} }, func() any { return &ListToolsResult{} }},
}

// serverRequestMethods are requests a server sends and a client handles
// (conduit.protocol.unions.ServerRequest). The source union also lists
// ListToolsRequest here, which would mean a server asks a client to list
// tools — there is no such client-side tool registry anywhere in the
// source or the spec, so that entry is treated as a transcription error
// in the source and omitted.
var serverRequestMethods = map[string]methodSpec{
	"ping":                   {func() any { return &PingRequest{} }, func() any { return &EmptyResult{} }},
	"sampling/createMessage": {func() any { return &CreateMessageRequest{} }, func() any { return &CreateMessageResult{} }},
	"roots/list":             {func() any { return &ListRootsRequest{} }, func() any { return &ListRootsResult{} }},
	"elicitation/create":     {func() any { return &ElicitRequest{} }, func() any { return &ElicitResult{} }},
}

// clientSentNotifications: notifications a client may send to a server
// (conduit.protocol.unions.CLIENT_SENT_NOTIFICATION_REGISTRY).
var clientSentNotifications = map[string]func() any{
	"notifications/initialized":       func() any { return &InitializedNotification{} },
	"notifications/cancelled":         func() any { return &CancelledNotification{} },
	"notifications/progress":          func() any { return &ProgressNotification{} },
	"notifications/roots/list_changed": func() any { return &RootsListChangedNotification{} },
}

// serverSentNotifications: notifications a server may send to a client
// (conduit.protocol.unions.SERVER_SENT_NOTIFICATION_REGISTRY).
var serverSentNotifications = map[string]func() any{
	"notifications/cancelled":               func() any { return &CancelledNotification{} },
	"notifications/message":                 func() any { return &LoggingMessageNotification{} },
	"notifications/progress":                func() any { return &ProgressNotification{} },
	"notifications/resources/updated":       func() any { return &ResourceUpdatedNotification{} },
	"notifications/resources/list_changed":  func() any { return &ResourceListChangedNotification{} },
	"notifications/tools/list_changed":      func() any { return &ToolListChangedNotification{} },
	"notifications/prompts/list_changed":    func() any { return &PromptListChangedNotification{} },
}

// capabilityForMethod names the capability (if any) that must be
// advertised by the handling side before an inbound request of this
// method is dispatched, rather than rejected with METHOD_NOT_FOUND per
// SPEC_FULL.md §3 invariant 5. The empty string means no capability
// gate applies (e.g. ping, initialize).
func capabilityForMethod(method string) string {
	switch method {
	case "tools/call", "tools/list":
		return "tools"
	case "prompts/get", "prompts/list":
		return "prompts"
	case "resources/list", "resources/read", "resources/templates/list", "resources/subscribe", "resources/unsubscribe":
		return "resources"
	case "logging/setLevel":
		return "logging"
	case "completion/complete":
		return "completions"
	case "sampling/createMessage":
		return "sampling"
	case "roots/list":
		return "roots"
	case "elicitation/create":
		return "elicitation"
	default:
		return ""
	}
}
