package mcp

import (
	"context"
	"fmt"
	"sync"
)

// PeerRegistry is the pure in-memory peer_id → PeerState map described
// in SPEC_FULL.md §4.2, playing the role of the server-side ClientManager
// or the client-side ServerManager depending on which side constructs
// it. All operations are O(1); the critical section of every method is
// bounded to the map/struct-field mutation itself and never spans I/O,
// per §5's shared-resource rule. Grounded on conduit/client/server_manager.py's
// ServerManager, the one fully-implemented peer registry in the source.
type PeerRegistry struct {
	mu    sync.Mutex
	peers map[string]*PeerState
}

func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{peers: make(map[string]*PeerState)}
}

// Register creates (or returns the existing) PeerState for peerID.
func (r *PeerRegistry) Register(peerID string) *PeerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[peerID]; ok {
		return p
	}
	p := newPeerState(peerID)
	r.peers[peerID] = p
	return p
}

// Unregister drops peerID's record without resolving any in-flight
// state; callers that need the invariant-4 teardown semantics should
// call CleanupPeer first.
func (r *PeerRegistry) Unregister(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, peerID)
}

func (r *PeerRegistry) Get(peerID string) (*PeerState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	return p, ok
}

func (r *PeerRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// NextRequestID mints the next outbound request id for peerID.
func (r *PeerRegistry) NextRequestID(peerID string) (RequestID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return RequestID{}, false
	}
	return p.ids.nextID(), true
}

// TrackRequestFromPeer registers a cancellable handler goroutine for an
// inbound request, before that goroutine is started.
func (r *PeerRegistry) TrackRequestFromPeer(peerID string, id RequestID, req RawRequest, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return false
	}
	p.requestsFromPeer[id.Key()] = &inboundRequestRecord{Request: req, Cancel: cancel}
	return true
}

// UntrackRequestFromPeer removes and returns the record for id, if any.
func (r *PeerRegistry) UntrackRequestFromPeer(peerID string, id RequestID) (*inboundRequestRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return nil, false
	}
	rec, ok := p.requestsFromPeer[id.Key()]
	if ok {
		delete(p.requestsFromPeer, id.Key())
	}
	return rec, ok
}

// CancelRequestFromPeer cancels the handler goroutine for id if it is
// still tracked, returning true iff cancellation actually took effect.
func (r *PeerRegistry) CancelRequestFromPeer(peerID string, id RequestID) bool {
	r.mu.Lock()
	rec, ok := r.peers[peerID].requestsFromPeerSafe(id.Key())
	r.mu.Unlock()
	if !ok {
		return false
	}
	rec.Cancel()
	return true
}

func (p *PeerState) requestsFromPeerSafe(key string) (*inboundRequestRecord, bool) {
	if p == nil {
		return nil, false
	}
	rec, ok := p.requestsFromPeer[key]
	return rec, ok
}

// TrackRequestToPeer registers a completion slot for an outbound request,
// before it is sent on the transport.
func (r *PeerRegistry) TrackRequestToPeer(peerID string, id RequestID, method string, slot chan outboundResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return false
	}
	p.requestsToPeer[id.Key()] = &outboundRequestRecord{Method: method, slot: slot}
	return true
}

// UntrackRequestToPeer removes the record for id without resolving it,
// used by the timeout path which resolves the caller's slot directly.
func (r *PeerRegistry) UntrackRequestToPeer(peerID string, id RequestID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[peerID]; ok {
		delete(p.requestsToPeer, id.Key())
	}
}

// LookupRequestToPeer returns the tracked method for an in-flight
// outbound request, used to select the expected result type when
// parsing its response.
func (r *PeerRegistry) LookupRequestToPeer(peerID string, id RequestID) (method string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return "", false
	}
	rec, ok := p.requestsToPeer[id.Key()]
	if !ok {
		return "", false
	}
	return rec.Method, true
}

// ResolveRequestToPeer resolves the completion slot for id with result
// or err (exactly one should be set). It is idempotent: resolving an
// already-resolved or no-longer-tracked slot is a silent no-op, matching
// invariant 3's "double-resolution is a bug" by making the second call
// observably harmless rather than panicking a concurrent caller.
func (r *PeerRegistry) ResolveRequestToPeer(peerID string, id RequestID, result any, err *Error) bool {
	r.mu.Lock()
	p, ok := r.peers[peerID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	rec, ok := p.requestsToPeer[id.Key()]
	if !ok || rec.resolved {
		r.mu.Unlock()
		return false
	}
	rec.resolved = true
	delete(p.requestsToPeer, id.Key())
	r.mu.Unlock()

	rec.slot <- outboundResult{Result: result, Err: err}
	return true
}

// IsInitialized reports whether peerID has completed the initialize
// handshake. A missing peer is treated as uninitialized.
func (r *PeerRegistry) IsInitialized(peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	return ok && p.Initialized
}

// SetClientInitialized records a successful initialize handshake on the
// server side: peerID is a client, negotiated via InitializeRequest.
func (r *PeerRegistry) SetClientInitialized(peerID, protocolVersion string, info Implementation, caps ClientCapabilities) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok || p.Initialized {
		return false
	}
	p.ProtocolVersion = protocolVersion
	p.ClientInfo = &info
	p.ClientCapabilities = &caps
	p.Initialized = true
	return true
}

// SetServerInitialized records a successful initialize handshake on the
// client side: peerID is a server, negotiated via InitializeResult.
func (r *PeerRegistry) SetServerInitialized(peerID, protocolVersion string, info Implementation, caps ServerCapabilities) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok || p.Initialized {
		return false
	}
	p.ProtocolVersion = protocolVersion
	p.ServerInfo = &info
	p.ServerCapabilities = &caps
	p.Initialized = true
	return true
}

// SetLogLevel records the minimum severity peerID wants for
// notifications/message, per the logging manager's per-client levels.
func (r *PeerRegistry) SetLogLevel(peerID string, level LoggingLevel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return false
	}
	p.LogLevel = &level
	return true
}

// LogLevel returns the minimum severity peerID wants, if any.
func (r *PeerRegistry) LogLevel(peerID string) (LoggingLevel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok || p.LogLevel == nil {
		return "", false
	}
	return *p.LogLevel, true
}

// PeerIDs returns a snapshot of currently registered peer ids.
func (r *PeerRegistry) PeerIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	return ids
}

// CleanupPeer cancels every requests_from_peer handler, resolves every
// requests_to_peer slot with an internal-error failure, and drops the
// peer record, implementing invariant 4.
func (r *PeerRegistry) CleanupPeer(peerID string) {
	r.mu.Lock()
	p, ok := r.peers[peerID]
	if !ok {
		r.mu.Unlock()
		return
	}
	fromPeer := p.requestsFromPeer
	toPeer := p.requestsToPeer
	p.requestsFromPeer = make(map[string]*inboundRequestRecord)
	p.requestsToPeer = make(map[string]*outboundRequestRecord)
	delete(r.peers, peerID)
	r.mu.Unlock()

	for _, rec := range fromPeer {
		rec.Cancel()
	}
	for _, rec := range toPeer {
		if rec.resolved {
			continue
		}
		rec.resolved = true
		rec.slot <- outboundResult{Err: NewInternalError(map[string]any{"error": fmt.Sprintf("peer %q cleaned up", peerID)})}
	}
}
