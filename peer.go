package mcp

import "context"

// PeerState is one record per connected counterparty, generalizing
// conduit.client.server_manager.ServerContext to either direction: the
// server side's ClientManager holds one PeerState per connected client,
// the client side's ServerManager one per connected server.
type PeerState struct {
	ID string

	Initialized     bool
	ProtocolVersion string

	// Exactly one of these is populated depending on which side this
	// registry belongs to: a server-side registry records the client's
	// identity and capabilities; a client-side registry the server's.
	ClientInfo         *Implementation
	ClientCapabilities *ClientCapabilities
	ServerInfo         *Implementation
	ServerCapabilities *ServerCapabilities

	LogLevel *LoggingLevel

	requestsFromPeer map[string]*inboundRequestRecord
	requestsToPeer   map[string]*outboundRequestRecord

	ids idGenerator
}

// inboundRequestRecord is cancellable work this side owes its peer:
// a handler goroutine plus the cancel func that stops it, tracked under
// requests_from_peer per SPEC_FULL.md §3.
type inboundRequestRecord struct {
	Request RawRequest
	Cancel  context.CancelFunc
}

// outboundRequestRecord is a completion slot this side is waiting on,
// tracked under requests_to_peer. The channel has capacity 1 and is
// resolved at most once; resolved guards against the double-resolution
// bug invariant 3 forbids.
type outboundRequestRecord struct {
	Method   string
	slot     chan outboundResult
	resolved bool
}

type outboundResult struct {
	Result any
	Err    *Error
}

func newPeerState(id string) *PeerState {
	return &PeerState{
		ID:               id,
		requestsFromPeer: make(map[string]*inboundRequestRecord),
		requestsToPeer:   make(map[string]*outboundRequestRecord),
	}
}
