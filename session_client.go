package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lab11HQ/conduit-mcp-sub001/transport"
)

// serverConnection pairs a transport to one connected server with the
// coordinator that owns its read loop. A ClientSession holds one of
// these per server it talks to, all sharing a single PeerRegistry keyed
// by server id, mirroring how a server-side session shares one registry
// across many client connections on one transport.
type serverConnection struct {
	coord     *MessageCoordinator
	transport transport.Transport
}

// ClientSession is the client's view of MCP: a process connected to
// potentially many MCP servers at once, each its own peer in registry,
// each backed by its own transport and coordinator. Grounded on
// conduit/client/session.py's multi-server ClientSession, generalized
// per SPEC_FULL.md §9's resolved open question that ClientManagers
// methods must be server-id aware.
type ClientSession struct {
	info     Implementation
	managers ClientManagers

	registry *PeerRegistry
	opts     []CoordinatorOption
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]*serverConnection
}

// NewClientSession constructs a client session advertising info, backed
// by managers. A nil field in managers means that capability is not
// advertised and any inbound request naming it resolves to
// METHOD_NOT_FOUND.
func NewClientSession(info Implementation, managers ClientManagers, opts ...CoordinatorOption) *ClientSession {
	cfg := defaultCoordinatorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ClientSession{
		info:     info,
		managers: managers,
		registry: NewPeerRegistry(),
		opts:     opts,
		logger:   cfg.logger,
		conns:    make(map[string]*serverConnection),
	}
}

// Registry exposes the peer registry of connected servers.
func (s *ClientSession) Registry() *PeerRegistry { return s.registry }

// Connect registers serverID as a peer, starts a coordinator over tr,
// and performs the initialize handshake. On a protocol version mismatch
// or any other initialize failure the peer record is rolled back and
// the transport is left for the caller to close, matching the
// server-side register-then-rollback behavior in coordinator.go.
func (s *ClientSession) Connect(ctx context.Context, serverID string, tr transport.Transport, timeout time.Duration) (*InitializeResult, error) {
	s.mu.Lock()
	if _, exists := s.conns[serverID]; exists {
		s.mu.Unlock()
		return nil, &ConnectionError{Op: "connect", Err: fmt.Errorf("server %q already connected", serverID)}
	}
	s.mu.Unlock()

	s.registry.Register(serverID)
	coord := NewMessageCoordinator(ClientSide, tr, s.registry, s, s.opts...)
	if err := coord.Start(ctx); err != nil {
		s.registry.Unregister(serverID)
		return nil, err
	}

	s.mu.Lock()
	s.conns[serverID] = &serverConnection{coord: coord, transport: tr}
	s.mu.Unlock()

	res, ierr := coord.SendRequestToPeer(ctx, serverID, "initialize", &InitializeRequest{
		ProtocolVersion: SupportedProtocolVersion,
		Capabilities:    s.managers.capabilities(),
		ClientInfo:      s.info,
	}, timeout)
	if ierr != nil {
		coord.Stop()
		s.mu.Lock()
		delete(s.conns, serverID)
		s.mu.Unlock()
		s.registry.Unregister(serverID)
		return nil, ierr
	}
	result := res.(*InitializeResult)
	if result.ProtocolVersion != SupportedProtocolVersion {
		coord.Stop()
		s.mu.Lock()
		delete(s.conns, serverID)
		s.mu.Unlock()
		s.registry.Unregister(serverID)
		return nil, NewProtocolVersionMismatch(result.ProtocolVersion, SupportedProtocolVersion)
	}
	if !s.registry.SetServerInitialized(serverID, result.ProtocolVersion, result.ServerInfo, result.Capabilities) {
		coord.Stop()
		s.mu.Lock()
		delete(s.conns, serverID)
		s.mu.Unlock()
		s.registry.Unregister(serverID)
		return nil, NewInternalError(map[string]any{"error": "failed to record server initialization"})
	}
	if err := coord.SendNotificationToPeer(ctx, serverID, "notifications/initialized", &InitializedNotification{}); err != nil {
		s.logger.Warn("failed to send initialized notification", "server_id", serverID, "err", err)
	}
	return result, nil
}

// Disconnect stops the coordinator for serverID, closes its transport,
// and drops the peer record.
func (s *ClientSession) Disconnect(serverID string) error {
	s.mu.Lock()
	conn, ok := s.conns[serverID]
	delete(s.conns, serverID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	conn.coord.Stop()
	return conn.transport.Close()
}

func (s *ClientSession) conn(serverID string) (*serverConnection, *Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[serverID]
	if !ok {
		return nil, NewInternalError(map[string]any{"error": fmt.Sprintf("not connected to server %q", serverID)})
	}
	return conn, nil
}

// Dispatch implements Dispatcher for the client side: inbound requests
// a server may send are ping, sampling/createMessage, roots/list and
// elicitation/create.
func (s *ClientSession) Dispatch(ctx context.Context, serverID string, req *ParsedRequest) (any, *Error) {
	if cap := capabilityForMethod(req.Method); cap != "" && !s.managers.hasCapability(cap) {
		return nil, NewMethodNotFound(req.Method)
	}
	switch p := req.Params.(type) {
	case *PingRequest:
		return &EmptyResult{}, nil
	case *ListRootsRequest:
		return s.managers.Roots.ListRoots(ctx, serverID)
	case *CreateMessageRequest:
		return s.managers.Sampling.HandleCreateMessage(ctx, serverID, p)
	case *ElicitRequest:
		return s.managers.Elicitation.HandleElicit(ctx, serverID, p)
	default:
		return nil, NewMethodNotFound(req.Method)
	}
}

// ListTools asks serverID for its tools.
func (s *ClientSession) ListTools(ctx context.Context, serverID string, cursor *string, timeout time.Duration) (*ListToolsResult, *Error) {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return nil, cerr
	}
	res, err := conn.coord.SendRequestToPeer(ctx, serverID, "tools/list", &ListToolsRequest{Cursor: cursor}, timeout)
	if err != nil {
		return nil, err
	}
	return res.(*ListToolsResult), nil
}

// CallTool invokes a tool on serverID.
func (s *ClientSession) CallTool(ctx context.Context, serverID string, req *CallToolRequest, timeout time.Duration) (*CallToolResult, *Error) {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return nil, cerr
	}
	res, err := conn.coord.SendRequestToPeer(ctx, serverID, "tools/call", req, timeout)
	if err != nil {
		return nil, err
	}
	return res.(*CallToolResult), nil
}

// ListPrompts asks serverID for its prompts.
func (s *ClientSession) ListPrompts(ctx context.Context, serverID string, cursor *string, timeout time.Duration) (*ListPromptsResult, *Error) {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return nil, cerr
	}
	res, err := conn.coord.SendRequestToPeer(ctx, serverID, "prompts/list", &ListPromptsRequest{Cursor: cursor}, timeout)
	if err != nil {
		return nil, err
	}
	return res.(*ListPromptsResult), nil
}

// GetPrompt renders a prompt on serverID.
func (s *ClientSession) GetPrompt(ctx context.Context, serverID string, req *GetPromptRequest, timeout time.Duration) (*GetPromptResult, *Error) {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return nil, cerr
	}
	res, err := conn.coord.SendRequestToPeer(ctx, serverID, "prompts/get", req, timeout)
	if err != nil {
		return nil, err
	}
	return res.(*GetPromptResult), nil
}

// ListResources asks serverID for its resources.
func (s *ClientSession) ListResources(ctx context.Context, serverID string, cursor *string, timeout time.Duration) (*ListResourcesResult, *Error) {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return nil, cerr
	}
	res, err := conn.coord.SendRequestToPeer(ctx, serverID, "resources/list", &ListResourcesRequest{Cursor: cursor}, timeout)
	if err != nil {
		return nil, err
	}
	return res.(*ListResourcesResult), nil
}

// ListResourceTemplates asks serverID for its resource templates.
func (s *ClientSession) ListResourceTemplates(ctx context.Context, serverID string, cursor *string, timeout time.Duration) (*ListResourceTemplatesResult, *Error) {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return nil, cerr
	}
	res, err := conn.coord.SendRequestToPeer(ctx, serverID, "resources/templates/list", &ListResourceTemplatesRequest{Cursor: cursor}, timeout)
	if err != nil {
		return nil, err
	}
	return res.(*ListResourceTemplatesResult), nil
}

// ReadResource reads uri from serverID.
func (s *ClientSession) ReadResource(ctx context.Context, serverID, uri string, timeout time.Duration) (*ReadResourceResult, *Error) {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return nil, cerr
	}
	res, err := conn.coord.SendRequestToPeer(ctx, serverID, "resources/read", &ReadResourceRequest{URI: uri}, timeout)
	if err != nil {
		return nil, err
	}
	return res.(*ReadResourceResult), nil
}

// Subscribe asks serverID to notify this client of updates to uri.
func (s *ClientSession) Subscribe(ctx context.Context, serverID, uri string, timeout time.Duration) *Error {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return cerr
	}
	_, err := conn.coord.SendRequestToPeer(ctx, serverID, "resources/subscribe", &SubscribeRequest{URI: uri}, timeout)
	return err
}

// Unsubscribe cancels a prior Subscribe.
func (s *ClientSession) Unsubscribe(ctx context.Context, serverID, uri string, timeout time.Duration) *Error {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return cerr
	}
	_, err := conn.coord.SendRequestToPeer(ctx, serverID, "resources/unsubscribe", &UnsubscribeRequest{URI: uri}, timeout)
	return err
}

// SetLoggingLevel asks serverID to only send log messages at level or
// more severe.
func (s *ClientSession) SetLoggingLevel(ctx context.Context, serverID string, level LoggingLevel, timeout time.Duration) *Error {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return cerr
	}
	_, err := conn.coord.SendRequestToPeer(ctx, serverID, "logging/setLevel", &SetLevelRequest{Level: level}, timeout)
	return err
}

// Complete asks serverID for completion suggestions.
func (s *ClientSession) Complete(ctx context.Context, serverID string, req *CompleteRequest, timeout time.Duration) (*CompleteResult, *Error) {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return nil, cerr
	}
	res, err := conn.coord.SendRequestToPeer(ctx, serverID, "completion/complete", req, timeout)
	if err != nil {
		return nil, err
	}
	return res.(*CompleteResult), nil
}

// Ping sends a liveness check to serverID.
func (s *ClientSession) Ping(ctx context.Context, serverID string, timeout time.Duration) *Error {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return cerr
	}
	_, err := conn.coord.SendRequestToPeer(ctx, serverID, "ping", &PingRequest{}, timeout)
	return err
}

// NotifyRootsListChanged tells every connected server this client's
// roots changed.
func (s *ClientSession) NotifyRootsListChanged(ctx context.Context) {
	s.mu.Lock()
	conns := make(map[string]*serverConnection, len(s.conns))
	for id, c := range s.conns {
		conns[id] = c
	}
	s.mu.Unlock()
	for serverID, conn := range conns {
		if err := conn.coord.SendNotificationToPeer(ctx, serverID, "notifications/roots/list_changed", &RootsListChangedNotification{}); err != nil {
			s.logger.Warn("failed to notify roots list changed", "server_id", serverID, "err", err)
		}
	}
}

// CancelRequest cancels a request this session is still handling on
// behalf of serverID.
func (s *ClientSession) CancelRequest(serverID string, id RequestID) bool {
	conn, cerr := s.conn(serverID)
	if cerr != nil {
		return false
	}
	return conn.coord.CancelRequestFromPeer(serverID, id)
}
