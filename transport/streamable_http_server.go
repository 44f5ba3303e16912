package transport

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/segmentio/encoding/json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// sessionHeader and lastEventIDHeader are the streamable HTTP transport's
// session and resumption headers, per SPEC_FULL.md §6.2.
const (
	sessionHeader     = "Mcp-Session-Id"
	lastEventIDHeader = "Last-Event-ID"

	// standingStreamID is the stream server-initiated requests and
	// notifications are written to: the long-lived stream a client
	// opens with GET, since those messages are not produced in answer
	// to any one POST.
	standingStreamID int64 = 0
)

// wireItem is the minimal shape the server transport needs to classify
// one JSON-RPC message without depending on package mcp's envelope
// types: whether it carries an id, and whether it carries a method.
// Request = id+method, notification = method only, response = id only.
type wireItem struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
}

func (w wireItem) isRequest() bool      { return len(w.ID) > 0 && w.Method != "" }
func (w wireItem) isNotification() bool { return len(w.ID) == 0 && w.Method != "" }
func (w wireItem) isResponse() bool     { return len(w.ID) > 0 && w.Method == "" }

func idKey(raw json.RawMessage) string { return string(bytes.TrimSpace(raw)) }

// probeItems parses body as either a single JSON-RPC message or a batch
// array of them, returning one wireItem per message.
func probeItems(body []byte) ([]wireItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []wireItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var item wireItem
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return nil, err
	}
	return []wireItem{item}, nil
}

// sseEvent is one buffered server-sent event, addressable for resumption
// by its (streamID, index) pair via formatEventID.
type sseEvent struct {
	data []byte
}

func formatEventID(streamID int64, idx int) string {
	return fmt.Sprintf("%d_%d", streamID, idx)
}

func parseEventID(s string) (streamID int64, idx int, ok bool) {
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	sid, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	i, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return sid, i, true
}

// sseStream is one POST response stream or the standing GET stream.
// Events are appended as the coordinator answers requests or pushes
// notifications; signal wakes a blocked writer loop.
type sseStream struct {
	events []sseEvent
	signal chan struct{}
}

func newSSEStream() *sseStream {
	return &sseStream{signal: make(chan struct{}, 1)}
}

func (s *sseStream) append(data []byte) {
	s.events = append(s.events, sseEvent{data: data})
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// httpSession is one client's bookkeeping: the standing GET stream plus
// one stream per in-flight POST, and the mapping from a request's id to
// the stream its response must land on. Generalizes the go-sdk
// reference's StreamableServerTransport, simplified from per-connection
// streamID accounting to a flat "server pushes go to the standing
// stream" rule, since MCP gives the server no reason to route a
// notification to one particular POST's stream over another.
type httpSession struct {
	id string

	mu             sync.Mutex
	nextStreamID   atomic.Int64
	streams        map[int64]*sseStream
	requestStream  map[string]int64
	streamPending  map[int64]map[string]struct{}
	closed         bool
	done           chan struct{}
	lastActivity   time.Time
}

func newHTTPSession(id string) *httpSession {
	return &httpSession{
		id:            id,
		streams:       map[int64]*sseStream{standingStreamID: newSSEStream()},
		requestStream: make(map[string]int64),
		streamPending: make(map[int64]map[string]struct{}),
		done:          make(chan struct{}),
		lastActivity:  time.Now(),
	}
}

func (s *httpSession) newStream() (int64, *sseStream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextStreamID.Add(1)
	stream := newSSEStream()
	s.streams[id] = stream
	return id, stream
}

func (s *httpSession) registerPending(streamID int64, ids []string) {
	if len(ids) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.streamPending[streamID]
	if set == nil {
		set = make(map[string]struct{}, len(ids))
		s.streamPending[streamID] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
		s.requestStream[id] = streamID
	}
}

// resolve marks idKey answered, returning the stream it belongs to and
// whether that stream has no pending requests left.
func (s *httpSession) resolve(idKey string) (streamID int64, drained bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	streamID, ok = s.requestStream[idKey]
	if !ok {
		return 0, false, false
	}
	delete(s.requestStream, idKey)
	if set := s.streamPending[streamID]; set != nil {
		delete(set, idKey)
		drained = len(set) == 0
	}
	return streamID, drained, true
}

func (s *httpSession) pendingCount(streamID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streamPending[streamID])
}

func (s *httpSession) stream(streamID int64) (*sseStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[streamID]
	return st, ok
}

func (s *httpSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// StreamableHTTPServer is a transport.Transport implemented as an
// http.Handler: one goroutine-safe multiplexer serving any number of
// client sessions, each identified by the Mcp-Session-Id header, per
// SPEC_FULL.md §6.2. It is grounded on
// da844fc4_modelcontextprotocol-go-sdk's StreamableHTTPHandler /
// StreamableServerTransport, with session lifecycle also informed by
// conduit's server/session_manager.py.
type StreamableHTTPServer struct {
	msgs chan PeerMessage

	mu       sync.Mutex
	sessions map[string]*httpSession
	closed   bool

	writeLimiter *rate.Limiter
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewStreamableHTTPServer constructs a server transport. writeRate bounds
// how fast SSE events are flushed per second across all sessions
// (golang.org/x/time/rate), pacing a slow or misbehaving client instead
// of buffering unboundedly; pass 0 for no limit.
func NewStreamableHTTPServer(writeRate float64, logger *slog.Logger) *StreamableHTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	var limiter *rate.Limiter
	if writeRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(writeRate), int(writeRate)+1)
	}
	return &StreamableHTTPServer{
		msgs:         make(chan PeerMessage, 64),
		sessions:     make(map[string]*httpSession),
		writeLimiter: limiter,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (t *StreamableHTTPServer) Messages() <-chan PeerMessage { return t.msgs }
func (t *StreamableHTTPServer) Done() <-chan struct{}        { return t.ctx.Done() }

func (t *StreamableHTTPServer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, s := range t.sessions {
		s.close()
	}
	t.cancel()
	close(t.msgs)
	return nil
}

func (t *StreamableHTTPServer) session(id string) (*httpSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[id]
	return s, ok
}

// Send implements transport.Transport: it routes payload to the stream
// its request id was registered on (for a response), or to peerID's
// standing stream (for a server-initiated request or notification).
func (t *StreamableHTTPServer) Send(ctx context.Context, peerID string, payload []byte) error {
	sess, ok := t.session(peerID)
	if !ok {
		return fmt.Errorf("streamable http: unknown session %q", peerID)
	}

	items, err := probeItems(payload)
	if err != nil {
		return fmt.Errorf("streamable http: encoding outgoing payload: %w", err)
	}

	streamID := standingStreamID
	if len(items) == 1 && items[0].isResponse() {
		if sid, _, ok := sess.resolve(idKey(items[0].ID)); ok {
			streamID = sid
		}
	}

	stream, ok := sess.stream(streamID)
	if !ok {
		stream, ok = sess.stream(standingStreamID)
		if !ok {
			return fmt.Errorf("streamable http: session %q has no open stream: %w", peerID, ErrNoStream)
		}
	}
	if t.writeLimiter != nil {
		if err := t.writeLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	stream.append(payload)
	return nil
}

// ServeHTTP implements the three verbs SPEC_FULL.md §6.2 defines on the
// MCP endpoint: POST for client-to-server messages, GET for the
// server's standing push stream, DELETE to end a session.
func (t *StreamableHTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.servePOST(w, r)
	case http.MethodGet:
		t.serveGET(w, r)
	case http.MethodDelete:
		t.serveDELETE(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func acceptsBoth(r *http.Request, a, b string) bool {
	accept := r.Header.Get("Accept")
	return (strings.Contains(accept, a) || strings.Contains(accept, "*/*")) &&
		(strings.Contains(accept, b) || strings.Contains(accept, "*/*"))
}

func (t *StreamableHTTPServer) servePOST(w http.ResponseWriter, r *http.Request) {
	if !acceptsBoth(r, "application/json", "text/event-stream") {
		http.Error(w, "Accept header must allow application/json and text/event-stream", http.StatusNotAcceptable)
		return
	}
	body, err := readAndClose(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	items, err := probeItems(body)
	if err != nil {
		http.Error(w, "malformed JSON-RPC payload", http.StatusBadRequest)
		return
	}

	sessionID := r.Header.Get(sessionHeader)
	newSession := sessionID == ""
	var sess *httpSession
	if newSession {
		sessionID = uuid.NewString()
		sess = newHTTPSession(sessionID)
		t.mu.Lock()
		t.sessions[sessionID] = sess
		t.mu.Unlock()
	} else {
		var ok bool
		sess, ok = t.session(sessionID)
		if !ok {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
	}

	streamID, stream := sess.newStream()
	var pendingIDs []string
	for _, item := range items {
		if item.isRequest() {
			pendingIDs = append(pendingIDs, idKey(item.ID))
		}
	}
	sess.registerPending(streamID, pendingIDs)

	select {
	case t.msgs <- PeerMessage{PeerID: sessionID, Payload: body}:
	case <-r.Context().Done():
		return
	case <-t.ctx.Done():
		http.Error(w, "transport closed", http.StatusServiceUnavailable)
		return
	}

	if newSession {
		w.Header().Set(sessionHeader, sessionID)
	}

	if len(pendingIDs) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	t.streamEvents(w, r, sess, streamID, stream, 0, func() bool {
		return sess.pendingCount(streamID) == 0
	})
}

func (t *StreamableHTTPServer) serveGET(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		http.Error(w, "Accept header must allow text/event-stream", http.StatusNotAcceptable)
		return
	}
	sessionID := r.Header.Get(sessionHeader)
	sess, ok := t.session(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	stream, ok := sess.stream(standingStreamID)
	if !ok {
		http.Error(w, "no standing stream", http.StatusInternalServerError)
		return
	}

	from := 0
	if last := r.Header.Get(lastEventIDHeader); last != "" {
		if _, idx, ok := parseEventID(last); ok {
			from = idx + 1
		}
	}
	t.streamEvents(w, r, sess, standingStreamID, stream, from, func() bool { return false })
}

func (t *StreamableHTTPServer) serveDELETE(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	t.mu.Lock()
	sess, ok := t.sessions[sessionID]
	if ok {
		delete(t.sessions, sessionID)
	}
	t.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	sess.close()
	w.WriteHeader(http.StatusNoContent)
}

// streamEvents writes buffered and newly appended events on stream as
// server-sent events starting at index from, until done reports true,
// the session closes, or the request's context is cancelled (client
// disconnected). done is checked after every new batch of events and
// should return false unconditionally for the standing GET stream,
// which lives for the session's whole lifetime.
func (t *StreamableHTTPServer) streamEvents(w http.ResponseWriter, r *http.Request, sess *httpSession, streamID int64, stream *sseStream, from int, done func() bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	idx := from
	for {
		for idx < len(stream.events) {
			if t.writeLimiter != nil {
				if err := t.writeLimiter.Wait(r.Context()); err != nil {
					return
				}
			}
			writeSSE(w, formatEventID(streamID, idx), stream.events[idx].data)
			flusher.Flush()
			idx++
		}
		if done() {
			return
		}
		select {
		case <-stream.signal:
		case <-sess.done:
			return
		case <-r.Context().Done():
			return
		case <-t.ctx.Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, id string, data []byte) {
	fmt.Fprintf(w, "id: %s\nevent: message\ndata: %s\n\n", id, data)
}

func readAndClose(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
