package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
)

// streamableClientPeerID is the constant peer identity an MCP client
// assigns its single server connection, mirroring Stdio's stdioPeerID:
// a client transport always talks to exactly one server.
const streamableClientPeerID = "server"

// TokenSource supplies a bearer token for outgoing requests, satisfied by
// *oauth.Client.TokenSource or any golang.org/x/oauth2.TokenSource.
type TokenSource = oauth2.TokenSource

// UnauthorizedHandler resolves a 401 response's WWW-Authenticate
// challenge into a fresh bearer token, per SPEC_FULL.md §4.5: run OAuth
// discovery/registration/authorization (or a token refresh, if already
// authorized) and return the resulting access token for the transport's
// single retry of the original request. It is a plain function type
// rather than an *oauth.Client so this package does not need to depend
// on the oauth package, which itself depends on this module's root
// package; oauth.Client exposes an UnauthorizedHandler method adapting
// itself to this signature.
type UnauthorizedHandler func(ctx context.Context, wwwAuthenticate string) (token string, err error)

// StreamableHTTPClient is a transport.Transport that speaks the
// streamable HTTP wire protocol described in SPEC_FULL.md §6.2 to a
// single MCP server: POST for outgoing messages, with a standing GET
// maintained in the background for server-initiated pushes. Grounded on
// da844fc4_modelcontextprotocol-go-sdk's StreamableClientTransport /
// streamableClientConn, with retry/backoff parameters taken from the
// same reference's isRetryable and exponential-backoff loop.
type StreamableHTTPClient struct {
	endpoint     string
	httpClient   *http.Client
	tokenSource  TokenSource
	unauthorized UnauthorizedHandler
	logger       *slog.Logger

	sessionID atomic.Value // string

	msgs   chan PeerMessage
	ctx    context.Context
	cancel context.CancelFunc

	getCancel   context.CancelFunc
	getCancelMu sync.Mutex

	maxRetries     int
	initialBackoff time.Duration
	rnd            *rand.Rand
	rndMu          sync.Mutex
}

// ClientOption configures a StreamableHTTPClient.
type ClientOption func(*StreamableHTTPClient)

// WithTokenSource attaches an OAuth token source; every outgoing request
// carries its current access token as a Bearer Authorization header.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *StreamableHTTPClient) { c.tokenSource = ts }
}

// WithHTTPClient overrides the *http.Client used for all requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *StreamableHTTPClient) { c.httpClient = hc }
}

// WithUnauthorizedHandler attaches the hook run on a 401 response, per
// SPEC_FULL.md §4.5's bootstrap/refresh-then-retry-once behavior. Without
// one, a 401 is surfaced as a plain *httpStatusError.
func WithUnauthorizedHandler(h UnauthorizedHandler) ClientOption {
	return func(c *StreamableHTTPClient) { c.unauthorized = h }
}

// NewStreamableHTTPClient connects to endpoint (the MCP server's single
// HTTP endpoint URL) and starts maintaining the standing GET stream for
// server-initiated pushes.
func NewStreamableHTTPClient(endpoint string, logger *slog.Logger, opts ...ClientOption) *StreamableHTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &StreamableHTTPClient{
		endpoint:       endpoint,
		httpClient:     http.DefaultClient,
		logger:         logger,
		msgs:           make(chan PeerMessage, 64),
		ctx:            ctx,
		cancel:         cancel,
		maxRetries:     5,
		initialBackoff: 250 * time.Millisecond,
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.maintainStandingStream()
	return c
}

func (c *StreamableHTTPClient) Messages() <-chan PeerMessage { return c.msgs }
func (c *StreamableHTTPClient) Done() <-chan struct{}        { return c.ctx.Done() }

func (c *StreamableHTTPClient) Close() error {
	c.getCancelMu.Lock()
	if c.getCancel != nil {
		c.getCancel()
	}
	c.getCancelMu.Unlock()

	sessionID, _ := c.sessionID.Load().(string)
	if sessionID != "" {
		req, err := http.NewRequest(http.MethodDelete, c.endpoint, nil)
		if err == nil {
			req.Header.Set(sessionHeader, sessionID)
			c.authorize(context.Background(), req)
			resp, err := c.httpClient.Do(req)
			if err == nil {
				resp.Body.Close()
			}
		}
	}

	c.cancel()
	close(c.msgs)
	return nil
}

func (c *StreamableHTTPClient) authorize(ctx context.Context, req *http.Request) {
	if c.tokenSource == nil {
		return
	}
	tok, err := c.tokenSource.Token()
	if err != nil {
		return
	}
	tok.SetAuthHeader(req)
}

// Send POSTs payload to the server. peerID is ignored beyond validating
// it names the client's one server connection; a streamable HTTP client
// transport is always single-peer.
func (c *StreamableHTTPClient) Send(ctx context.Context, peerID string, payload []byte) error {
	if peerID != streamableClientPeerID {
		return fmt.Errorf("streamable http client: unknown peer %q", peerID)
	}
	return c.postWithRetry(ctx, payload)
}

func (c *StreamableHTTPClient) postWithRetry(ctx context.Context, payload []byte) error {
	backoff := c.initialBackoff
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff + c.jitter(backoff)):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
		err := c.post(ctx, payload)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return lastErr
}

func (c *StreamableHTTPClient) jitter(base time.Duration) time.Duration {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return time.Duration(c.rnd.Int63n(int64(base) / 2))
}

// httpStatusError reports a non-2xx HTTP response, letting isRetryable
// distinguish transient server trouble from a permanent rejection.
type httpStatusError struct {
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("streamable http: unexpected status %d", e.StatusCode)
}

func isRetryable(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func (c *StreamableHTTPClient) post(ctx context.Context, payload []byte) error {
	return c.doPost(ctx, payload, "")
}

// doPost POSTs payload once. overrideToken, when non-empty, is used as
// the bearer token in place of c.tokenSource — it carries the token an
// UnauthorizedHandler just obtained into the single retry SPEC_FULL.md
// §4.5 calls for, so that retry does not race the ordinary token source
// (which may not have observed the new token yet).
func (c *StreamableHTTPClient) doPost(ctx context.Context, payload []byte, overrideToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID, ok := c.sessionID.Load().(string); ok && sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	if overrideToken != "" {
		req.Header.Set("Authorization", "Bearer "+overrideToken)
	} else {
		c.authorize(ctx, req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get(sessionHeader); sid != "" {
		c.sessionID.Store(sid)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted:
		return nil
	case http.StatusUnauthorized:
		if overrideToken != "" || c.unauthorized == nil {
			// Already retried once with a freshly resolved token, or
			// nothing is configured to resolve the challenge.
			return &httpStatusError{StatusCode: resp.StatusCode}
		}
		token, aerr := c.unauthorized(ctx, resp.Header.Get("WWW-Authenticate"))
		if aerr != nil {
			return fmt.Errorf("streamable http: resolving 401 challenge: %w", aerr)
		}
		return c.doPost(ctx, payload, token)
	case http.StatusNotFound:
		c.sessionID.Store("")
		return &httpStatusError{StatusCode: resp.StatusCode}
	default:
		return &httpStatusError{StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "text/event-stream"):
		return c.consumeSSE(resp.Body, nil)
	case strings.HasPrefix(contentType, "application/json"):
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return c.publish(body)
	default:
		return nil
	}
}

func (c *StreamableHTTPClient) publish(payload []byte) error {
	select {
	case c.msgs <- PeerMessage{PeerID: streamableClientPeerID, Payload: payload}:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// consumeSSE reads one SSE response body to completion, publishing each
// "data:" field as an inbound message and reporting the last event id it
// saw through lastEventID when non-nil, for the standing stream's
// resumption bookkeeping.
func (c *StreamableHTTPClient) consumeSSE(body io.Reader, lastEventID *string) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var data bytes.Buffer
	var eventID string
	flush := func() error {
		if data.Len() == 0 {
			return nil
		}
		defer data.Reset()
		if eventID != "" && lastEventID != nil {
			*lastEventID = eventID
		}
		return c.publish(append([]byte{}, data.Bytes()...))
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
			eventID = ""
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "id:"):
			eventID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		}
	}
	return flush()
}

// maintainStandingStream holds a hanging GET open for server-initiated
// pushes, reconnecting with exponential backoff and Last-Event-ID
// resumption whenever the connection drops, until the transport closes.
func (c *StreamableHTTPClient) maintainStandingStream() {
	backoff := c.initialBackoff
	var lastEventID string
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		getCtx, cancel := context.WithCancel(c.ctx)
		c.getCancelMu.Lock()
		c.getCancel = cancel
		c.getCancelMu.Unlock()

		err := c.performHangingGet(getCtx, &lastEventID)
		cancel()
		if c.ctx.Err() != nil {
			return
		}
		if err == nil {
			backoff = c.initialBackoff
			continue
		}
		select {
		case <-time.After(backoff + c.jitter(backoff)):
		case <-c.ctx.Done():
			return
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *StreamableHTTPClient) performHangingGet(ctx context.Context, lastEventID *string) error {
	sessionID, _ := c.sessionID.Load().(string)
	if sessionID == "" {
		// No session established yet; nothing to attach a standing
		// stream to until the first POST (an initialize request)
		// completes.
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(sessionHeader, sessionID)
	if *lastEventID != "" {
		req.Header.Set(lastEventIDHeader, *lastEventID)
	}
	c.authorize(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		// Server does not support the standing stream; nothing to
		// retry.
		<-ctx.Done()
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return &httpStatusError{StatusCode: resp.StatusCode}
	}
	return c.consumeSSE(resp.Body, lastEventID)
}
