package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/Lab11HQ/conduit-mcp-sub001/transport"
)

// ServerSession wires a MessageCoordinator, a PeerRegistry of connected
// clients, and a ServerManagers bundle into the server's view of MCP:
// the session façade conduit/server/session.py plays for the Python
// source, generalized to Go with no back-pointer into the coordinator
// (ServerSession implements Dispatcher; the coordinator holds it only
// as that interface, per SPEC_FULL.md §9).
type ServerSession struct {
	info         Implementation
	managers     ServerManagers
	instructions *string

	registry *PeerRegistry
	coord    *MessageCoordinator
	logger   *slog.Logger
}

// NewServerSession constructs a server session advertising info and
// instructions, backed by managers. A nil field in managers means that
// capability is not advertised and any inbound request naming it
// resolves to METHOD_NOT_FOUND (invariant 5).
func NewServerSession(info Implementation, managers ServerManagers, instructions *string, opts ...CoordinatorOption) *ServerSession {
	s := &ServerSession{
		info:         info,
		managers:     managers,
		instructions: instructions,
		registry:     NewPeerRegistry(),
	}
	s.coord = NewMessageCoordinator(ServerSide, nil, s.registry, s, opts...)
	s.logger = s.coord.logger()
	return s
}

// Serve binds tr as the transport this session reads from and writes
// to, and starts the coordinator's read loop.
func (s *ServerSession) Serve(ctx context.Context, tr transport.Transport) error {
	s.coord.transport = tr
	return s.coord.Start(ctx)
}

// Stop tears the session down: cancels every in-flight handler task,
// resolves every pending slot with an internal error, and joins the
// read loop.
func (s *ServerSession) Stop() { s.coord.Stop() }

// Registry exposes the peer registry of connected clients.
func (s *ServerSession) Registry() *PeerRegistry { return s.registry }

// Dispatch implements Dispatcher for the server side: an exhaustive
// type switch over the concrete request type methods.go's factories
// produced, since parsed.Params already carries that type. Every
// capability-gated method is checked against capabilityForMethod before
// the switch, per SPEC_FULL.md §3 invariant 5 — a missing manager is
// METHOD_NOT_FOUND, not a per-case special case.
func (s *ServerSession) Dispatch(ctx context.Context, clientID string, req *ParsedRequest) (any, *Error) {
	if cap := capabilityForMethod(req.Method); cap != "" && !s.managers.hasCapability(cap) {
		return nil, NewMethodNotFound(req.Method)
	}
	switch p := req.Params.(type) {
	case *InitializeRequest:
		return s.handleInitialize(clientID, p)
	case *PingRequest:
		return &EmptyResult{}, nil
	case *ListToolsRequest:
		return s.managers.Tools.ListTools(ctx, clientID, p.Cursor)
	case *CallToolRequest:
		return s.managers.Tools.CallTool(ctx, clientID, p)
	case *ListPromptsRequest:
		return s.managers.Prompts.ListPrompts(ctx, clientID, p.Cursor)
	case *GetPromptRequest:
		return s.managers.Prompts.GetPrompt(ctx, clientID, p)
	case *ListResourcesRequest:
		return s.managers.Resources.ListResources(ctx, clientID, p.Cursor)
	case *ListResourceTemplatesRequest:
		return s.managers.Resources.ListResourceTemplates(ctx, clientID, p.Cursor)
	case *ReadResourceRequest:
		return s.managers.Resources.ReadResource(ctx, clientID, p.URI)
	case *SubscribeRequest:
		if err := s.managers.Resources.Subscribe(ctx, clientID, p.URI); err != nil {
			return nil, err
		}
		return &EmptyResult{}, nil
	case *UnsubscribeRequest:
		if err := s.managers.Resources.Unsubscribe(ctx, clientID, p.URI); err != nil {
			return nil, err
		}
		return &EmptyResult{}, nil
	case *SetLevelRequest:
		if err := s.managers.Logging.SetLevel(ctx, clientID, p.Level); err != nil {
			return nil, err
		}
		return &EmptyResult{}, nil
	case *CompleteRequest:
		return s.managers.Completions.Complete(ctx, clientID, p)
	default:
		return nil, NewMethodNotFound(req.Method)
	}
}

func (s *ServerSession) handleInitialize(clientID string, p *InitializeRequest) (any, *Error) {
	if p.ProtocolVersion != SupportedProtocolVersion {
		return nil, NewProtocolVersionMismatch(p.ProtocolVersion, SupportedProtocolVersion)
	}
	if !s.registry.SetClientInitialized(clientID, p.ProtocolVersion, p.ClientInfo, p.Capabilities) {
		return nil, NewMethodNotFound("initialize")
	}
	return &InitializeResult{
		ProtocolVersion: SupportedProtocolVersion,
		Capabilities:    s.managers.capabilities(),
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}, nil
}

// NotifyToolsListChanged, NotifyPromptsListChanged,
// NotifyResourcesListChanged and NotifyResourceUpdated fan the
// corresponding server-sent notification out to clientID.
func (s *ServerSession) NotifyToolsListChanged(ctx context.Context, clientID string) error {
	return s.coord.SendNotificationToPeer(ctx, clientID, "notifications/tools/list_changed", &ToolListChangedNotification{})
}

func (s *ServerSession) NotifyPromptsListChanged(ctx context.Context, clientID string) error {
	return s.coord.SendNotificationToPeer(ctx, clientID, "notifications/prompts/list_changed", &PromptListChangedNotification{})
}

func (s *ServerSession) NotifyResourcesListChanged(ctx context.Context, clientID string) error {
	return s.coord.SendNotificationToPeer(ctx, clientID, "notifications/resources/list_changed", &ResourceListChangedNotification{})
}

func (s *ServerSession) NotifyResourceUpdated(ctx context.Context, clientID, uri string) error {
	return s.coord.SendNotificationToPeer(ctx, clientID, "notifications/resources/updated", &ResourceUpdatedNotification{URI: uri})
}

// SendLogMessage sends a notifications/message to clientID if the
// client's registered minimum log level permits it, per LoggingManager.
func (s *ServerSession) SendLogMessage(ctx context.Context, clientID string, level LoggingLevel, logger *string, data any) error {
	if s.managers.Logging != nil && !s.managers.Logging.ShouldSend(clientID, level) {
		return nil
	}
	return s.coord.SendNotificationToPeer(ctx, clientID, "notifications/message", &LoggingMessageNotification{Level: level, Logger: logger, Data: data})
}

// SendProgress sends a notifications/progress update to clientID for
// the operation identified by token.
func (s *ServerSession) SendProgress(ctx context.Context, clientID string, token ProgressToken, progress float64, total *float64, message *string) error {
	return s.coord.SendNotificationToPeer(ctx, clientID, "notifications/progress", &ProgressNotification{ProgressToken: token, Progress: progress, Total: total, Message: message})
}

// ListRoots asks clientID for its current roots.
func (s *ServerSession) ListRoots(ctx context.Context, clientID string, timeout time.Duration) (*ListRootsResult, *Error) {
	res, err := s.coord.SendRequestToPeer(ctx, clientID, "roots/list", &ListRootsRequest{}, timeout)
	if err != nil {
		return nil, err
	}
	return res.(*ListRootsResult), nil
}

// CreateMessage asks clientID to sample a completion via its LLM.
func (s *ServerSession) CreateMessage(ctx context.Context, clientID string, req *CreateMessageRequest, timeout time.Duration) (*CreateMessageResult, *Error) {
	res, err := s.coord.SendRequestToPeer(ctx, clientID, "sampling/createMessage", req, timeout)
	if err != nil {
		return nil, err
	}
	return res.(*CreateMessageResult), nil
}

// Elicit asks clientID to collect structured input from its user.
func (s *ServerSession) Elicit(ctx context.Context, clientID string, req *ElicitRequest, timeout time.Duration) (*ElicitResult, *Error) {
	res, err := s.coord.SendRequestToPeer(ctx, clientID, "elicitation/create", req, timeout)
	if err != nil {
		return nil, err
	}
	return res.(*ElicitResult), nil
}

// Ping sends a liveness check to clientID; it is the one request
// allowed before initialization completes.
func (s *ServerSession) Ping(ctx context.Context, clientID string, timeout time.Duration) *Error {
	_, err := s.coord.SendRequestToPeer(ctx, clientID, "ping", &PingRequest{}, timeout)
	return err
}

// CancelRequest cancels a request this session is still handling on
// behalf of clientID.
func (s *ServerSession) CancelRequest(clientID string, id RequestID) bool {
	return s.coord.CancelRequestFromPeer(clientID, id)
}
