package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestStreamableHTTPClientJSONResponsePublishesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			// Standing stream: server doesn't support it here.
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		case http.MethodPost:
			w.Header().Set(sessionHeader, "sess-1")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
		}
	}))
	defer srv.Close()

	c := NewStreamableHTTPClient(srv.URL, nil, WithHTTPClient(srv.Client()))
	defer c.Close()

	if err := c.Send(context.Background(), streamableClientPeerID, []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-c.Messages():
		if !strings.Contains(string(msg.Payload), `"id":1`) {
			t.Fatalf("unexpected payload: %s", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the response to be published")
	}

	if sid, _ := c.sessionID.Load().(string); sid != "sess-1" {
		t.Fatalf("session id = %q, want sess-1 to persist after the response", sid)
	}
}

func TestStreamableHTTPClientSSEResponsePublishesEachEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		w.Write([]byte("data: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\",\"params\":{}}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	c := NewStreamableHTTPClient(srv.URL, nil, WithHTTPClient(srv.Client()))
	defer c.Close()

	if err := c.Send(context.Background(), streamableClientPeerID, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var got []string
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case msg := <-c.Messages():
			got = append(got, string(msg.Payload))
		case <-deadline:
			t.Fatalf("timed out waiting for 2 SSE-delivered messages, got %v", got)
		}
	}
	if !strings.Contains(got[0], "notifications/progress") {
		t.Fatalf("expected the interim notification first, got %v", got)
	}
	if !strings.Contains(got[1], `"id":1`) {
		t.Fatalf("expected the response second, got %v", got)
	}
}

func TestStreamableHTTPClientNotFoundDropsSession(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		n := calls.Add(1)
		if n == 1 {
			w.Header().Set(sessionHeader, "sess-1")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewStreamableHTTPClient(srv.URL, nil, WithHTTPClient(srv.Client()))
	defer c.Close()

	if err := c.Send(context.Background(), streamableClientPeerID, []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	<-c.Messages()

	err := c.Send(context.Background(), streamableClientPeerID, []byte(`{"jsonrpc":"2.0","id":2,"method":"tools/call"}`))
	if err == nil {
		t.Fatal("expected the second Send to surface a 404 error")
	}
	if sid, _ := c.sessionID.Load().(string); sid != "" {
		t.Fatalf("expected the session id to be cleared after a 404, got %q", sid)
	}
}

func TestStreamableHTTPClientRejectsUnknownPeer(t *testing.T) {
	c := NewStreamableHTTPClient("http://127.0.0.1:0", nil)
	defer c.Close()
	if err := c.Send(context.Background(), "not-the-server", []byte("{}")); err == nil {
		t.Fatal("expected an error for a peer id other than the client's single server connection")
	}
}

func TestStreamableHTTPClientUnauthorizedHandlerRetriesOnceWithFreshToken(t *testing.T) {
	var posts atomic.Int32
	var gotChallenge, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if posts.Add(1) == 1 {
			w.Header().Set("WWW-Authenticate", `Bearer resource_metadata="https://rs.example.com/.well-known/oauth-protected-resource"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	defer srv.Close()

	c := NewStreamableHTTPClient(srv.URL, nil, WithHTTPClient(srv.Client()), WithUnauthorizedHandler(
		func(ctx context.Context, wwwAuthenticate string) (string, error) {
			gotChallenge = wwwAuthenticate
			return "fresh-access-token", nil
		},
	))
	defer c.Close()

	if err := c.Send(context.Background(), streamableClientPeerID, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-c.Messages():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the retried response")
	}

	if posts.Load() != 2 {
		t.Fatalf("expected exactly one retry (2 POSTs total), got %d", posts.Load())
	}
	if !strings.Contains(gotChallenge, "resource_metadata") {
		t.Fatalf("expected the WWW-Authenticate header to reach the handler, got %q", gotChallenge)
	}
	if gotAuth != "Bearer fresh-access-token" {
		t.Fatalf("expected the retry to carry the handler's token, got %q", gotAuth)
	}
}

func TestStreamableHTTPClientUnauthorizedWithoutHandlerSurfacesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewStreamableHTTPClient(srv.URL, nil, WithHTTPClient(srv.Client()))
	defer c.Close()

	err := c.Send(context.Background(), streamableClientPeerID, []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call"}`))
	if err == nil {
		t.Fatal("expected a 401 with no configured handler to surface as an error")
	}
	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected an httpStatusError{401}, got %v", err)
	}
}

func TestIsRetryableClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		err := &httpStatusError{StatusCode: tc.status}
		if got := isRetryable(err); got != tc.want {
			t.Errorf("isRetryable(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}
