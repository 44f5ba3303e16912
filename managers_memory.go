package mcp

import (
	"context"
	"sort"
	"sync"
)

// MemoryToolManager is a reference ToolManager backed by an in-memory
// map, grounded on conduit/server/managers/tools_v2.py's client-id-aware
// registry generalized to Go. It exists so the coordinator, dispatcher
// and session façade are exercised end to end by the example programs
// and tests without pulling in a real tool implementation, matching
// SPEC_FULL.md §1's note that reference managers here are illustrative.
type MemoryToolManager struct {
	mu    sync.RWMutex
	tools map[string]Tool
	call  func(ctx context.Context, clientID string, req *CallToolRequest) (*CallToolResult, *Error)
}

// NewMemoryToolManager constructs a manager whose tools/call dispatches
// to call. call may itself return a domain failure via
// CallToolResult{IsError: true, ...} per the propagation rule in
// SPEC_FULL.md §7: only unknown-tool lookups become protocol errors.
func NewMemoryToolManager(call func(ctx context.Context, clientID string, req *CallToolRequest) (*CallToolResult, *Error)) *MemoryToolManager {
	return &MemoryToolManager{tools: make(map[string]Tool), call: call}
}

// Register adds or replaces a tool definition.
func (m *MemoryToolManager) Register(t Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools[t.Name] = t
}

func (m *MemoryToolManager) ListTools(_ context.Context, _ string, _ *string) (*ListToolsResult, *Error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tools))
	for name := range m.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, m.tools[name])
	}
	return &ListToolsResult{Tools: tools}, nil
}

func (m *MemoryToolManager) CallTool(ctx context.Context, clientID string, req *CallToolRequest) (*CallToolResult, *Error) {
	m.mu.RLock()
	_, ok := m.tools[req.Name]
	m.mu.RUnlock()
	if !ok {
		return nil, NewMethodNotFound("tools/call:" + req.Name)
	}
	if m.call == nil {
		return &CallToolResult{Content: []ContentBlock{{Text: &TextContent{Type: "text", Text: "no-op"}}}}, nil
	}
	return m.call(ctx, clientID, req)
}

// MemoryPromptManager is a reference PromptManager over an in-memory map.
type MemoryPromptManager struct {
	mu      sync.RWMutex
	prompts map[string]Prompt
	render  func(name string, args map[string]string) ([]PromptMessage, *Error)
}

func NewMemoryPromptManager(render func(name string, args map[string]string) ([]PromptMessage, *Error)) *MemoryPromptManager {
	return &MemoryPromptManager{prompts: make(map[string]Prompt), render: render}
}

func (m *MemoryPromptManager) Register(p Prompt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[p.Name] = p
}

func (m *MemoryPromptManager) ListPrompts(_ context.Context, _ string, _ *string) (*ListPromptsResult, *Error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.prompts))
	for name := range m.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	prompts := make([]Prompt, 0, len(names))
	for _, name := range names {
		prompts = append(prompts, m.prompts[name])
	}
	return &ListPromptsResult{Prompts: prompts}, nil
}

func (m *MemoryPromptManager) GetPrompt(_ context.Context, _ string, req *GetPromptRequest) (*GetPromptResult, *Error) {
	m.mu.RLock()
	_, ok := m.prompts[req.Name]
	m.mu.RUnlock()
	if !ok {
		return nil, NewMethodNotFound("prompts/get:" + req.Name)
	}
	if m.render == nil {
		return &GetPromptResult{Messages: nil}, nil
	}
	msgs, pErr := m.render(req.Name, req.Arguments)
	if pErr != nil {
		return nil, pErr
	}
	return &GetPromptResult{Messages: msgs}, nil
}

// MemoryResourceManager is a reference ResourceManager over an
// in-memory map of URI to contents, with a per-client subscription set
// (subscriptions are tracked but no change notifications are emitted by
// this reference implementation — a real ResourceManager would call
// back into the session to send notifications/resources/updated).
type MemoryResourceManager struct {
	mu            sync.RWMutex
	resources     map[string]Resource
	contents      map[string]ReadResourceContents
	subscriptions map[string]map[string]struct{} // uri -> set of client ids
}

func NewMemoryResourceManager() *MemoryResourceManager {
	return &MemoryResourceManager{
		resources:     make(map[string]Resource),
		contents:      make(map[string]ReadResourceContents),
		subscriptions: make(map[string]map[string]struct{}),
	}
}

func (m *MemoryResourceManager) Register(r Resource, contents ReadResourceContents) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[r.URI] = r
	m.contents[r.URI] = contents
}

func (m *MemoryResourceManager) ListResources(_ context.Context, _ string, _ *string) (*ListResourcesResult, *Error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uris := make([]string, 0, len(m.resources))
	for uri := range m.resources {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	out := make([]Resource, 0, len(uris))
	for _, uri := range uris {
		out = append(out, m.resources[uri])
	}
	return &ListResourcesResult{Resources: out}, nil
}

func (m *MemoryResourceManager) ListResourceTemplates(_ context.Context, _ string, _ *string) (*ListResourceTemplatesResult, *Error) {
	return &ListResourceTemplatesResult{}, nil
}

func (m *MemoryResourceManager) ReadResource(_ context.Context, _ string, uri string) (*ReadResourceResult, *Error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contents[uri]
	if !ok {
		return nil, NewMethodNotFound("resources/read:" + uri)
	}
	return &ReadResourceResult{Contents: []ReadResourceContents{c}}, nil
}

func (m *MemoryResourceManager) Subscribe(_ context.Context, clientID string, uri string) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[uri]; !ok {
		return NewMethodNotFound("resources/subscribe:" + uri)
	}
	set, ok := m.subscriptions[uri]
	if !ok {
		set = make(map[string]struct{})
		m.subscriptions[uri] = set
	}
	set[clientID] = struct{}{}
	return nil
}

func (m *MemoryResourceManager) Unsubscribe(_ context.Context, clientID string, uri string) *Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.subscriptions[uri]; ok {
		delete(set, clientID)
	}
	return nil
}

// MemoryLoggingManager is a reference LoggingManager tracking each
// peer's minimum severity in memory, per conduit's LoggingManager
// should_send_log behavior ported to loggingLevelPriority.
type MemoryLoggingManager struct {
	mu     sync.RWMutex
	levels map[string]LoggingLevel
}

func NewMemoryLoggingManager() *MemoryLoggingManager {
	return &MemoryLoggingManager{levels: make(map[string]LoggingLevel)}
}

func (m *MemoryLoggingManager) SetLevel(_ context.Context, peerID string, level LoggingLevel) *Error {
	if _, ok := loggingLevelPriority[level]; !ok {
		return NewInvalidParams(map[string]any{"level": level})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[peerID] = level
	return nil
}

func (m *MemoryLoggingManager) ShouldSend(peerID string, level LoggingLevel) bool {
	m.mu.RLock()
	min, ok := m.levels[peerID]
	m.mu.RUnlock()
	if !ok {
		return true
	}
	return loggingLevelPriority[level] >= loggingLevelPriority[min]
}

// MemoryRootsManager is a reference RootsManager answering with a fixed
// set of roots regardless of which server asks, suitable for example
// client programs that expose a single workspace.
type MemoryRootsManager struct {
	mu    sync.RWMutex
	roots []Root
}

func NewMemoryRootsManager(roots ...Root) *MemoryRootsManager {
	return &MemoryRootsManager{roots: roots}
}

func (m *MemoryRootsManager) ListRoots(_ context.Context, _ string) (*ListRootsResult, *Error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Root, len(m.roots))
	copy(out, m.roots)
	return &ListRootsResult{Roots: out}, nil
}

// MemorySamplingManager is a reference SamplingManager that answers every
// server's sampling/createMessage with a fixed canned reply, or a
// caller-supplied respond func when one of sampling's "ask the user's
// LLM" semantics needs to be exercised by a test or example program. The
// serverID argument is accepted but unused here, matching the canonical
// multi-server-aware signature SPEC_FULL.md §9 resolved on, since this
// reference implementation has nothing per-server to distinguish.
type MemorySamplingManager struct {
	respond func(ctx context.Context, serverID string, req *CreateMessageRequest) (*CreateMessageResult, *Error)
}

// NewMemorySamplingManager constructs a manager whose createMessage calls
// respond. A nil respond produces a fixed "no model configured" reply
// text so example programs can wire the capability without a real LLM.
func NewMemorySamplingManager(respond func(ctx context.Context, serverID string, req *CreateMessageRequest) (*CreateMessageResult, *Error)) *MemorySamplingManager {
	return &MemorySamplingManager{respond: respond}
}

func (m *MemorySamplingManager) HandleCreateMessage(ctx context.Context, serverID string, req *CreateMessageRequest) (*CreateMessageResult, *Error) {
	if m.respond != nil {
		return m.respond(ctx, serverID, req)
	}
	return &CreateMessageResult{
		Role:    RoleAssistant,
		Content: ContentBlock{Text: &TextContent{Type: "text", Text: "no model configured"}},
		Model:   "memory-sampling-manager",
	}, nil
}

// MemoryElicitationManager is a reference ElicitationManager that answers
// every server's elicitation/create with a caller-supplied decide func,
// or declines by default so example programs don't hang waiting on a
// human who isn't there.
type MemoryElicitationManager struct {
	decide func(ctx context.Context, serverID string, req *ElicitRequest) (*ElicitResult, *Error)
}

func NewMemoryElicitationManager(decide func(ctx context.Context, serverID string, req *ElicitRequest) (*ElicitResult, *Error)) *MemoryElicitationManager {
	return &MemoryElicitationManager{decide: decide}
}

func (m *MemoryElicitationManager) HandleElicit(ctx context.Context, serverID string, req *ElicitRequest) (*ElicitResult, *Error) {
	if m.decide != nil {
		return m.decide(ctx, serverID, req)
	}
	return &ElicitResult{Action: "decline"}, nil
}

// MemoryCompletionManager is a reference CompletionManager serving
// canned completion suggestions registered per prompt/resource
// reference and argument name, matching the shape conduit's
// CompletionManager.complete indexes its static suggestion tables by.
type MemoryCompletionManager struct {
	mu          sync.RWMutex
	suggestions map[string][]string // "<ref-kind>:<ref-name-or-uri>:<argument-name>" -> values
}

func NewMemoryCompletionManager() *MemoryCompletionManager {
	return &MemoryCompletionManager{suggestions: make(map[string][]string)}
}

func completionKey(ref CompletionReference, argumentName string) string {
	switch {
	case ref.Prompt != nil:
		return "prompt:" + ref.Prompt.Name + ":" + argumentName
	case ref.Resource != nil:
		return "resource:" + ref.Resource.URI + ":" + argumentName
	default:
		return ":" + argumentName
	}
}

// Register associates candidate completion values with a prompt or
// resource reference and the argument name being completed.
func (m *MemoryCompletionManager) Register(ref CompletionReference, argumentName string, values ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suggestions[completionKey(ref, argumentName)] = values
}

func (m *MemoryCompletionManager) Complete(_ context.Context, _ string, req *CompleteRequest) (*CompleteResult, *Error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := m.suggestions[completionKey(req.Ref, req.Argument.Name)]
	out := make([]string, 0, len(values))
	prefix := req.Argument.Value
	for _, v := range values {
		if prefix == "" || (len(v) >= len(prefix) && v[:len(prefix)] == prefix) {
			out = append(out, v)
		}
	}
	return &CompleteResult{Completion: CompletionValues{Values: out}}, nil
}
