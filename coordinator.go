package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	json "github.com/segmentio/encoding/json"
	"golang.org/x/sync/errgroup"

	"github.com/Lab11HQ/conduit-mcp-sub001/transport"
)

// connectionErrorFor wraps a transport-level send failure as a
// *ConnectionError, tagging it ConnectionErrorNoStream when the
// underlying transport reports transport.ErrNoStream (SPEC_FULL.md
// §4.4's NO_STREAM case) so callers can distinguish "retry once a
// stream reconnects" from a dead connection.
func connectionErrorFor(op string, sendErr error) *ConnectionError {
	kind := ConnectionErrorUnspecified
	if errors.Is(sendErr, transport.ErrNoStream) {
		kind = ConnectionErrorNoStream
	}
	return &ConnectionError{Op: op, Kind: kind, Err: sendErr}
}

// RequestHandler answers one inbound request after it has been parsed
// into its typed params, returning the value to be marshaled into the
// JSON-RPC result, or a protocol error.
type RequestHandler func(ctx context.Context, peerID string, parsed *ParsedRequest) (any, *Error)

// NotificationHandler reacts to an inbound notification already parsed
// into its typed payload.
type NotificationHandler func(ctx context.Context, peerID string, method string, params any)

// Dispatcher routes an inbound request to the handler responsible for
// its method. The coordinator holds no knowledge of individual methods
// or of what tools/prompts/resources exist — only of this contract,
// avoiding the cyclic coordinator<->façade reference the source has
// (conduit's Server/Client hold a direct reference to their
// coordinator *and* the coordinator calls back into them) per
// SPEC_FULL.md §9. The "sum-typed request variant plus exhaustive
// match" the design note calls for happens inside an implementation's
// Dispatch: parsed.Params already carries the concrete *XRequest type
// methods.go's factories produce, so a type switch over it is
// exhaustive by construction — new methods.go entries without a
// matching case are a compile-time-obvious gap, not a runtime one.
type Dispatcher interface {
	Dispatch(ctx context.Context, peerID string, req *ParsedRequest) (any, *Error)
}

// MessageCoordinator drives the single bidirectional read loop described
// in SPEC_FULL.md §4.3: one goroutine consumes transport.Messages(),
// classifies each payload, and either spawns a handler goroutine
// (request), resolves a completion slot (response), or fans out to
// notification handlers (notification). It is deliberately symmetric:
// the same type serves both the server side (peers are clients) and
// the client side (peers are servers) — only the Dispatcher and method
// tables passed in differ.
type MessageCoordinator struct {
	side      Side
	transport transport.Transport
	registry  *PeerRegistry
	parser    *MessageParser
	dispatch  Dispatcher
	cfg       coordinatorConfig

	mu                   sync.Mutex
	running              bool
	notificationHandlers map[string][]NotificationHandler

	ctx     context.Context
	cancel  context.CancelFunc
	handlers *errgroup.Group // joins per-request and per-notification handler goroutines
	loop     *errgroup.Group // joins the read loop goroutine
}

// NewMessageCoordinator constructs a coordinator for one side of the
// protocol. side selects which method tables the parser consults;
// dispatch answers inbound requests; registry owns per-peer state and
// may be shared with the session façade that constructs dispatch, so
// both see the same peer records.
func NewMessageCoordinator(side Side, tr transport.Transport, registry *PeerRegistry, dispatch Dispatcher, opts ...CoordinatorOption) *MessageCoordinator {
	cfg := defaultCoordinatorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MessageCoordinator{
		side:                 side,
		transport:            tr,
		registry:             registry,
		parser:               NewMessageParser(side),
		dispatch:             dispatch,
		cfg:                  cfg,
		notificationHandlers: make(map[string][]NotificationHandler),
	}
}

func (c *MessageCoordinator) logger() *slog.Logger { return c.cfg.logger }

// RegisterNotificationHandler adds h to the handlers invoked, in
// registration order, whenever a notification for method arrives.
func (c *MessageCoordinator) RegisterNotificationHandler(method string, h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notificationHandlers[method] = append(c.notificationHandlers[method], h)
}

// Running reports whether the read loop is currently active.
func (c *MessageCoordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start launches the read loop. It is idempotent: calling Start on an
// already-running coordinator is a no-op.
func (c *MessageCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	select {
	case <-c.transport.Done():
		c.mu.Unlock()
		return &ConnectionError{Op: "start", Err: fmt.Errorf("transport already closed")}
	default:
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.handlers = &errgroup.Group{}
	c.loop = &errgroup.Group{}
	c.running = true
	c.mu.Unlock()

	c.loop.Go(func() error {
		c.readLoop()
		return nil
	})
	return nil
}

// Stop cancels every in-flight handler task, resolves every pending
// completion slot with an internal error, and joins the read loop. It
// is idempotent.
func (c *MessageCoordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.handlers.Wait()
	c.loop.Wait()

	for _, peerID := range c.registry.PeerIDs() {
		c.registry.CleanupPeer(peerID)
	}
}

func (c *MessageCoordinator) readLoop() {
	for {
		select {
		case msg, ok := <-c.transport.Messages():
			if !ok {
				c.stopFromTransportClosure()
				return
			}
			c.handlePayload(msg.PeerID, msg.Payload)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *MessageCoordinator) stopFromTransportClosure() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()
	cancel()
	c.handlers.Wait()
	for _, peerID := range c.registry.PeerIDs() {
		c.registry.CleanupPeer(peerID)
	}
}

// handlePayload classifies one transport payload, which per §4.3 step 1
// may itself be a JSON-RPC batch (a top-level array processed
// element-wise with the same per-kind rules).
func (c *MessageCoordinator) handlePayload(peerID string, payload []byte) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			c.logger().Warn("dropping malformed batch payload", "peer_id", peerID, "err", err)
			return
		}
		for _, item := range items {
			c.handleSingle(peerID, item)
		}
		return
	}
	c.handleSingle(peerID, trimmed)
}

func (c *MessageCoordinator) handleSingle(peerID string, payload []byte) {
	raw, rawResp, rawNotif, kind, err := classify(payload)
	if err != nil {
		c.logger().Warn("dropping malformed message", "peer_id", peerID, "err", err)
		return
	}
	switch kind {
	case KindRequest:
		c.handleRequest(peerID, raw)
	case KindResponse:
		c.handleResponse(peerID, rawResp)
	case KindNotification:
		c.handleNotification(peerID, rawNotif)
	default:
		c.logger().Warn("dropping invalid message envelope", "peer_id", peerID)
	}
}

func (c *MessageCoordinator) handleRequest(peerID string, raw RawRequest) {
	peer, existed := c.registry.Get(peerID)
	justRegistered := false
	if !existed {
		if raw.Method != "initialize" {
			c.sendErrorResponse(peerID, raw.ID, NewMethodNotFound(raw.Method))
			return
		}
		peer = c.registry.Register(peerID)
		justRegistered = true
	}

	if raw.Method == "initialize" {
		if peer.Initialized {
			c.sendErrorResponse(peerID, raw.ID, NewMethodNotFound(raw.Method))
			return
		}
	} else if !peer.Initialized {
		c.sendErrorResponse(peerID, raw.ID, NewMethodNotFound(raw.Method))
		return
	}

	parsed, perr := c.parser.ParseRequest(raw)
	if perr != nil {
		if justRegistered {
			c.registry.Unregister(peerID)
		}
		c.sendErrorResponse(peerID, raw.ID, perr)
		return
	}

	hctx, cancel := context.WithCancel(c.ctx)
	if !c.registry.TrackRequestFromPeer(peerID, raw.ID, raw, cancel) {
		cancel()
		return
	}

	c.handlers.Go(func() error {
		result, derr := c.safeDispatch(hctx, peerID, parsed)
		c.registry.UntrackRequestFromPeer(peerID, raw.ID)

		if raw.Method == "initialize" {
			if derr != nil && justRegistered {
				c.registry.Unregister(peerID)
			} else if derr == nil {
				// A successful initialize marks the peer initialized; when
				// the Dispatcher already recorded it (ServerSession does),
				// this second call is a no-op.
				if p, ok := parsed.Params.(*InitializeRequest); ok {
					c.registry.SetClientInitialized(peerID, p.ProtocolVersion, p.ClientInfo, p.Capabilities)
				}
			}
		}

		select {
		case <-hctx.Done():
			if hctx.Err() != nil {
				return nil
			}
		default:
		}
		c.respond(peerID, raw.ID, result, derr)
		return nil
	})
}

func (c *MessageCoordinator) safeDispatch(ctx context.Context, peerID string, parsed *ParsedRequest) (result any, derr *Error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger().Error("handler panicked", "peer_id", peerID, "method", parsed.Method, "panic", r)
			derr = NewInternalError(map[string]any{"panic": fmt.Sprintf("%v", r)})
		}
	}()
	return c.dispatch.Dispatch(ctx, peerID, parsed)
}

func (c *MessageCoordinator) handleResponse(peerID string, raw RawResponse) {
	method, ok := c.registry.LookupRequestToPeer(peerID, raw.ID)
	if !ok {
		return
	}
	result, perr := c.parser.ParseResponse(method, raw)
	c.registry.ResolveRequestToPeer(peerID, raw.ID, result, perr)
}

func (c *MessageCoordinator) handleNotification(peerID string, raw RawNotification) {
	method, params, perr := c.parser.ParseNotification(raw)
	if method == "" && params == nil && perr == nil {
		return
	}
	if perr != nil {
		c.logger().Warn("dropping unparseable notification", "peer_id", peerID, "method", raw.Method, "err", perr)
		return
	}

	if method == "notifications/cancelled" {
		if cn, ok := params.(*CancelledNotification); ok {
			c.registry.CancelRequestFromPeer(peerID, cn.RequestID)
		}
	}

	c.mu.Lock()
	handlers := append([]NotificationHandler(nil), c.notificationHandlers[method]...)
	c.mu.Unlock()
	if len(handlers) == 0 {
		return
	}

	c.handlers.Go(func() error {
		for _, h := range handlers {
			c.safeNotify(h, peerID, method, params)
		}
		return nil
	})
}

func (c *MessageCoordinator) safeNotify(h NotificationHandler, peerID, method string, params any) {
	defer func() {
		if r := recover(); r != nil {
			c.logger().Error("notification handler panicked", "peer_id", peerID, "method", method, "panic", r)
		}
	}()
	h(c.ctx, peerID, method, params)
}

func (c *MessageCoordinator) respond(peerID string, id RequestID, result any, derr *Error) {
	var payload []byte
	var err error
	if derr != nil {
		payload, err = encodeErrorResponse(id, derr)
	} else {
		payload, err = encodeResultResponse(id, result)
	}
	if err != nil {
		c.logger().Error("failed to encode response", "peer_id", peerID, "err", err)
		return
	}
	if sendErr := c.transport.Send(c.ctx, peerID, payload); sendErr != nil {
		c.logger().Warn("failed to send response", "peer_id", peerID, "err", sendErr)
	}
}

func (c *MessageCoordinator) sendErrorResponse(peerID string, id RequestID, derr *Error) {
	payload, err := encodeErrorResponse(id, derr)
	if err != nil {
		c.logger().Error("failed to encode error response", "peer_id", peerID, "err", err)
		return
	}
	if sendErr := c.transport.Send(c.ctx, peerID, payload); sendErr != nil {
		c.logger().Warn("failed to send error response", "peer_id", peerID, "err", sendErr)
	}
}

// SendRequestToPeer allocates a request id, tracks a completion slot,
// sends method/params to peerID, and blocks until a response arrives, a
// timeout elapses, ctx is cancelled, or the coordinator stops. On ctx
// cancellation it notifies the peer with notifications/cancelled
// (best-effort) before resolving the caller with Error{CANCELLED}, per
// SPEC_FULL.md §5.
func (c *MessageCoordinator) SendRequestToPeer(ctx context.Context, peerID, method string, params any, timeout time.Duration) (any, *Error) {
	if !c.Running() {
		return nil, NewInternalError(map[string]any{"error": "coordinator is not running"})
	}
	peer, ok := c.registry.Get(peerID)
	if !ok {
		return nil, NewInternalError(map[string]any{"error": fmt.Sprintf("unknown peer %q", peerID)})
	}
	if method != "ping" && method != "initialize" && !peer.Initialized {
		return nil, NewInternalError(map[string]any{"error": "peer is not initialized"})
	}

	id, ok := c.registry.NextRequestID(peerID)
	if !ok {
		return nil, NewInternalError(map[string]any{"error": fmt.Sprintf("unknown peer %q", peerID)})
	}
	payload, encErr := encodeRequest(id, method, params)
	if encErr != nil {
		return nil, toError(encErr)
	}

	slot := make(chan outboundResult, 1)
	c.registry.TrackRequestToPeer(peerID, id, method, slot)

	if sendErr := c.transport.Send(ctx, peerID, payload); sendErr != nil {
		c.registry.UntrackRequestToPeer(peerID, id)
		return nil, &Error{Code: -32099, Message: "connection error", Data: map[string]any{"error": sendErr.Error()}}
	}

	if timeout <= 0 {
		timeout = c.cfg.defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-slot:
		return res.Result, res.Err
	case <-timer.C:
		c.registry.UntrackRequestToPeer(peerID, id)
		return nil, NewRequestTimeout(timeout.Milliseconds())
	case <-ctx.Done():
		c.registry.UntrackRequestToPeer(peerID, id)
		cancelPayload, err := encodeNotification("notifications/cancelled", &CancelledNotification{RequestID: id})
		if err == nil {
			_ = c.transport.Send(context.Background(), peerID, cancelPayload)
		}
		return nil, NewCancelled("local context cancelled")
	case <-c.ctx.Done():
		c.registry.UntrackRequestToPeer(peerID, id)
		return nil, NewInternalError(map[string]any{"error": "coordinator stopped"})
	}
}

// SendNotificationToPeer sends a fire-and-forget notification to peerID.
func (c *MessageCoordinator) SendNotificationToPeer(ctx context.Context, peerID, method string, params any) error {
	if !c.Running() {
		return &ConnectionError{Op: "send", Err: fmt.Errorf("coordinator is not running")}
	}
	if _, ok := c.registry.Get(peerID); !ok {
		return &ConnectionError{Op: "send", Err: fmt.Errorf("unknown peer %q", peerID)}
	}
	payload, err := encodeNotification(method, params)
	if err != nil {
		return err
	}
	if sendErr := c.transport.Send(ctx, peerID, payload); sendErr != nil {
		return connectionErrorFor("send", sendErr)
	}
	return nil
}

// CancelRequestFromPeer cancels the handler task for an inbound request
// this side is still processing, returning true iff the request was
// found and still running.
func (c *MessageCoordinator) CancelRequestFromPeer(peerID string, id RequestID) bool {
	return c.registry.CancelRequestFromPeer(peerID, id)
}

// Registry exposes the peer registry backing this coordinator, for
// session façades that need to inspect or pre-register peer state.
func (c *MessageCoordinator) Registry() *PeerRegistry { return c.registry }
