// Package transport provides the byte-level delivery mechanisms the MCP
// session coordinator sits on top of: stdio (newline-delimited JSON) and
// streamable HTTP (POST/GET/DELETE with SSE). It knows nothing about
// JSON-RPC semantics — only about getting framed payloads to and from a
// peer — mirroring conduit.transport.base.Transport's send/messages/close
// shape generalized from a single connection to a per-peer-id multiplexed
// one, since a server transport serves many clients at once.
package transport

import (
	"context"
	"errors"
)

// ErrNoStream is returned by Send when a message has no open stream to
// be delivered on, per SPEC_FULL.md §4.4 ("If no matching stream exists,
// the caller gets a NO_STREAM connection error"). Callers that need to
// distinguish this from a dead connection should check with errors.Is.
var ErrNoStream = errors.New("transport: no open stream for peer")

// PeerMessage is one inbound payload, tagged with the peer it arrived
// from. For stdio (always exactly one peer) PeerID is constant; for the
// HTTP server transport it is the client_id assigned at session creation.
type PeerMessage struct {
	PeerID  string
	Payload []byte
}

// Transport is the abstract bidirectional message stream the coordinator
// drives its read loop over. Implementations must be safe for concurrent
// Send calls from multiple goroutines; Messages is read by exactly one
// goroutine (the coordinator's read loop).
type Transport interface {
	// Send delivers payload to peerID. Implementations return a plain
	// error on failure; in the mcp package, SendNotificationToPeer wraps
	// it as a *ConnectionError and SendRequestToPeer reports it as an
	// *Error with code -32099.
	Send(ctx context.Context, peerID string, payload []byte) error

	// Messages returns the channel of inbound payloads. It is closed
	// when the transport shuts down.
	Messages() <-chan PeerMessage

	// Close shuts the transport down, closing Messages and unblocking
	// any in-flight Send calls with an error.
	Close() error

	// Done is closed when the transport has shut down, whether via
	// Close or because the underlying connection failed.
	Done() <-chan struct{}
}
