package mcp

import "context"

// Feature manager interfaces. The coordinator and session façades are
// agnostic to what tools compute, what prompts say, or which resources
// exist; they only need a collaborator that can answer one of the
// capability-gated methods in methods.go. Grounded on conduit's
// manager contracts (conduit/server/managers/*.py), generalized to the
// client-id-aware v2 shape per SPEC_FULL.md §9's resolved open question:
// every manager that answers a server-side request takes the calling
// client's peer id, since one server process serves many clients and a
// manager may want to scope its answer (e.g. per-client roots) to the
// caller.

// ToolManager answers tools/list and tools/call on behalf of a server.
type ToolManager interface {
	ListTools(ctx context.Context, clientID string, cursor *string) (*ListToolsResult, *Error)
	CallTool(ctx context.Context, clientID string, req *CallToolRequest) (*CallToolResult, *Error)
}

// PromptManager answers prompts/list and prompts/get.
type PromptManager interface {
	ListPrompts(ctx context.Context, clientID string, cursor *string) (*ListPromptsResult, *Error)
	GetPrompt(ctx context.Context, clientID string, req *GetPromptRequest) (*GetPromptResult, *Error)
}

// ResourceManager answers resources/list, resources/templates/list,
// resources/read, resources/subscribe and resources/unsubscribe.
type ResourceManager interface {
	ListResources(ctx context.Context, clientID string, cursor *string) (*ListResourcesResult, *Error)
	ListResourceTemplates(ctx context.Context, clientID string, cursor *string) (*ListResourceTemplatesResult, *Error)
	ReadResource(ctx context.Context, clientID string, uri string) (*ReadResourceResult, *Error)
	Subscribe(ctx context.Context, clientID string, uri string) *Error
	Unsubscribe(ctx context.Context, clientID string, uri string) *Error
}

// RootsManager answers a server's roots/list request sent to a client.
// It is asked "what roots does the client at serverID (the peer on the
// client side, i.e. the server connection this answer is for) expose",
// matching the multi-server-aware SamplingManager shape.
type RootsManager interface {
	ListRoots(ctx context.Context, serverID string) (*ListRootsResult, *Error)
}

// SamplingManager answers a server's sampling/createMessage request,
// canonicalized per SPEC_FULL.md §9 to the multi-server-aware signature:
// a client with one SamplingManager shared across many server
// connections must be told which server's request it is answering.
type SamplingManager interface {
	HandleCreateMessage(ctx context.Context, serverID string, req *CreateMessageRequest) (*CreateMessageResult, *Error)
}

// ElicitationManager answers a server's elicitation/create request.
type ElicitationManager interface {
	HandleElicit(ctx context.Context, serverID string, req *ElicitRequest) (*ElicitResult, *Error)
}

// LoggingManager tracks each peer's requested minimum log level and
// decides whether a given LoggingMessageNotification should be sent to
// that peer, per loggingLevelPriority in schema.go.
type LoggingManager interface {
	SetLevel(ctx context.Context, peerID string, level LoggingLevel) *Error
	ShouldSend(peerID string, level LoggingLevel) bool
}

// CompletionManager answers completion/complete.
type CompletionManager interface {
	Complete(ctx context.Context, clientID string, req *CompleteRequest) (*CompleteResult, *Error)
}

// ServerManagers bundles the optional server-side feature managers a
// ServerSession is constructed with. A nil field means that capability
// is not advertised and any inbound request naming it resolves to
// METHOD_NOT_FOUND per invariant 5.
type ServerManagers struct {
	Tools       ToolManager
	Prompts     PromptManager
	Resources   ResourceManager
	Logging     LoggingManager
	Completions CompletionManager
}

// ClientManagers bundles the optional client-side feature managers a
// ClientSession is constructed with.
type ClientManagers struct {
	Roots       RootsManager
	Sampling    SamplingManager
	Elicitation ElicitationManager
}

func (m ServerManagers) capabilities() ServerCapabilities {
	var caps ServerCapabilities
	if m.Tools != nil {
		caps.Tools = &ToolsCapability{}
	}
	if m.Prompts != nil {
		caps.Prompts = &ListChangedCapability{}
	}
	if m.Resources != nil {
		caps.Resources = &ResourcesCapability{}
	}
	if m.Logging != nil {
		caps.Logging = &struct{}{}
	}
	if m.Completions != nil {
		caps.Completions = &struct{}{}
	}
	return caps
}

func (m ClientManagers) capabilities() ClientCapabilities {
	var caps ClientCapabilities
	if m.Roots != nil {
		caps.Roots = &RootsCapability{}
	}
	if m.Sampling != nil {
		caps.Sampling = &SamplingCapability{}
	}
	if m.Elicitation != nil {
		caps.Elicitation = &ElicitationCapability{}
	}
	return caps
}

// hasCapability reports whether this side has a manager registered for
// the named capability, per capabilityForMethod's naming in methods.go.
// Dispatch consults this before routing a request to the manager that
// handles it, per SPEC_FULL.md §3 invariant 5 (capability gating).
func (m ServerManagers) hasCapability(name string) bool {
	switch name {
	case "tools":
		return m.Tools != nil
	case "prompts":
		return m.Prompts != nil
	case "resources":
		return m.Resources != nil
	case "logging":
		return m.Logging != nil
	case "completions":
		return m.Completions != nil
	default:
		return false
	}
}

// hasCapability is ClientManagers' counterpart to ServerManagers.hasCapability.
func (m ClientManagers) hasCapability(name string) bool {
	switch name {
	case "sampling":
		return m.Sampling != nil
	case "roots":
		return m.Roots != nil
	case "elicitation":
		return m.Elicitation != nil
	default:
		return false
	}
}
