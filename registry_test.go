package mcp

import (
	"context"
	"testing"
)

func TestPeerRegistryRegisterIsIdempotent(t *testing.T) {
	r := NewPeerRegistry()
	a := r.Register("p1")
	b := r.Register("p1")
	if a != b {
		t.Fatal("Register should return the existing record for an already-registered peer")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}
}

func TestPeerRegistryUnregisterAndGet(t *testing.T) {
	r := NewPeerRegistry()
	r.Register("p1")
	r.Unregister("p1")
	if _, ok := r.Get("p1"); ok {
		t.Fatal("peer should be gone after Unregister")
	}
}

func TestTrackRequestFromPeerMutualExclusionWithToPeer(t *testing.T) {
	r := NewPeerRegistry()
	r.Register("p1")
	id := NewIntID(1)

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	ok := r.TrackRequestFromPeer("p1", id, RawRequest{ID: id, Method: "tools/call"}, cancel)
	if !ok {
		t.Fatal("TrackRequestFromPeer should succeed for a registered peer")
	}

	slot := make(chan outboundResult, 1)
	ok = r.TrackRequestToPeer("p1", id, "tools/call", slot)
	if !ok {
		t.Fatal("TrackRequestToPeer should succeed independently of requests_from_peer")
	}

	if _, ok := r.UntrackRequestFromPeer("p1", id); !ok {
		t.Fatal("expected to find the tracked inbound request")
	}
	if method, ok := r.LookupRequestToPeer("p1", id); !ok || method != "tools/call" {
		t.Fatalf("expected to find the tracked outbound request, got %q, %v", method, ok)
	}
}

func TestResolveRequestToPeerIsIdempotent(t *testing.T) {
	r := NewPeerRegistry()
	r.Register("p1")
	id := NewIntID(1)
	slot := make(chan outboundResult, 1)
	r.TrackRequestToPeer("p1", id, "ping", slot)

	if ok := r.ResolveRequestToPeer("p1", id, &EmptyResult{}, nil); !ok {
		t.Fatal("first resolve should succeed")
	}
	if ok := r.ResolveRequestToPeer("p1", id, &EmptyResult{}, nil); ok {
		t.Fatal("second resolve of the same slot should be a no-op")
	}

	select {
	case res := <-slot:
		if res.Err != nil {
			t.Errorf("unexpected error in resolved slot: %v", res.Err)
		}
	default:
		t.Fatal("slot should have been resolved exactly once")
	}
}

func TestCancelRequestFromPeerCancelsTrackedHandler(t *testing.T) {
	r := NewPeerRegistry()
	r.Register("p1")
	id := NewIntID(7)
	cancelled := false
	_, cancel := context.WithCancel(context.Background())
	wrapped := func() {
		cancelled = true
		cancel()
	}
	r.TrackRequestFromPeer("p1", id, RawRequest{ID: id, Method: "tools/call"}, wrapped)

	if !r.CancelRequestFromPeer("p1", id) {
		t.Fatal("expected cancellation to take effect for a tracked request")
	}
	if !cancelled {
		t.Fatal("expected the cancel func to have been invoked")
	}

	r.UntrackRequestFromPeer("p1", id)
	if r.CancelRequestFromPeer("p1", id) {
		t.Fatal("expected cancelling an untracked request to report false")
	}
}

func TestCleanupPeerCancelsAndResolvesEverything(t *testing.T) {
	r := NewPeerRegistry()
	r.Register("p1")

	fromID := NewIntID(1)
	cancelled := false
	r.TrackRequestFromPeer("p1", fromID, RawRequest{ID: fromID, Method: "tools/call"}, func() { cancelled = true })

	toID := NewIntID(2)
	slot := make(chan outboundResult, 1)
	r.TrackRequestToPeer("p1", toID, "ping", slot)

	r.CleanupPeer("p1")

	if !cancelled {
		t.Error("expected in-flight handler to be cancelled on cleanup")
	}
	select {
	case res := <-slot:
		if res.Err == nil {
			t.Error("expected an internal error resolving the pending slot on cleanup")
		}
	default:
		t.Error("expected the pending slot to be resolved on cleanup")
	}
	if _, ok := r.Get("p1"); ok {
		t.Error("peer record should be dropped after cleanup")
	}
}

func TestSetClientInitializedOnlyOnce(t *testing.T) {
	r := NewPeerRegistry()
	r.Register("p1")
	info := Implementation{Name: "t", Version: "1"}
	if !r.SetClientInitialized("p1", "2025-06-18", info, ClientCapabilities{}) {
		t.Fatal("first SetClientInitialized should succeed")
	}
	if r.SetClientInitialized("p1", "2025-06-18", info, ClientCapabilities{}) {
		t.Fatal("initialized=true must never revert or re-initialize")
	}
	if !r.IsInitialized("p1") {
		t.Fatal("peer should report initialized")
	}
}

func TestIsInitializedMissingPeerIsFalse(t *testing.T) {
	r := NewPeerRegistry()
	if r.IsInitialized("ghost") {
		t.Fatal("a peer that was never registered must not report initialized")
	}
}
