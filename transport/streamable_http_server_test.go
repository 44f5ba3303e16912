package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestStreamableHTTPServerSSEAutoClose covers SPEC_FULL.md §8 scenario
// 6: a POST response stream carries one interim notification then the
// matching JSON-RPC response, and must close immediately after.
func TestStreamableHTTPServerSSEAutoClose(t *testing.T) {
	tr := NewStreamableHTTPServer(0, nil)
	defer tr.Close()
	srv := httptest.NewServer(tr)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call"}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	done := make(chan struct{})
	var resp *http.Response
	go func() {
		resp, err = http.DefaultClient.Do(req)
		close(done)
	}()

	var peerID string
	select {
	case msg := <-tr.Messages():
		peerID = msg.PeerID
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the POST body to be delivered")
	}
	if peerID == "" {
		t.Fatal("expected a non-empty session id")
	}

	if sendErr := tr.Send(req.Context(), peerID, []byte(`{"jsonrpc":"2.0","method":"notifications/progress","params":{"progressToken":"t","progress":1}}`)); sendErr != nil {
		t.Fatalf("Send notification: %v", sendErr)
	}
	if sendErr := tr.Send(req.Context(), peerID, []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)); sendErr != nil {
		t.Fatalf("Send response: %v", sendErr)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the HTTP response to complete; the stream should auto-close after the matching response")
	}
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q, want text/event-stream", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	events := countSSEEvents(t, body)
	if events != 2 {
		t.Fatalf("expected 2 SSE events (notification + response), got %d: %s", events, body)
	}
	if !strings.Contains(string(body), "notifications/progress") {
		t.Errorf("expected the interim notification to appear before the response: %s", body)
	}
}

func countSSEEvents(t *testing.T, body []byte) int {
	t.Helper()
	sc := bufio.NewScanner(strings.NewReader(string(body)))
	n := 0
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "data: ") {
			n++
		}
	}
	return n
}

func TestStreamableHTTPServerDeleteEndsSession(t *testing.T) {
	tr := NewStreamableHTTPServer(0, nil)
	defer tr.Close()
	srv := httptest.NewServer(tr)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL, nil)
	req.Header.Set(sessionHeader, "does-not-exist")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for an unknown session", resp.StatusCode)
	}
}

func TestStreamableHTTPServerMethodNotAllowed(t *testing.T) {
	tr := NewStreamableHTTPServer(0, nil)
	defer tr.Close()
	srv := httptest.NewServer(tr)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

// TestStreamableHTTPServerSendWithNoStreamReturnsErrNoStream covers
// SPEC_FULL.md §4.4's "If no matching stream exists, the caller gets a
// NO_STREAM connection error": a session with no open stream at all
// (the test deletes its standing stream directly; the server itself
// never removes a stream from a session) must fail Send with an
// error that wraps ErrNoStream, not a generic failure indistinguishable
// from a dead connection.
func TestStreamableHTTPServerSendWithNoStreamReturnsErrNoStream(t *testing.T) {
	tr := NewStreamableHTTPServer(0, nil)
	defer tr.Close()

	sess := newHTTPSession("peer-without-a-stream")
	delete(sess.streams, standingStreamID)
	tr.mu.Lock()
	tr.sessions[sess.id] = sess
	tr.mu.Unlock()

	err := tr.Send(context.Background(), sess.id, []byte(`{"jsonrpc":"2.0","method":"notifications/message"}`))
	if err == nil {
		t.Fatal("expected Send to fail when the session has no open stream")
	}
	if !errors.Is(err, ErrNoStream) {
		t.Fatalf("Send error = %v, want it to wrap ErrNoStream", err)
	}
}
