package transport

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

// nopCloserReader lets Close() on the Stdio transport complete without
// requiring a real pipe.
type nopCloserReader struct{ io.Reader }

func (nopCloserReader) Close() error { return nil }

func TestStdioDeliversNewlineDelimitedMessages(t *testing.T) {
	input := strings.NewReader("{\"a\":1}\n\n{\"b\":2}\n")
	var out bytes.Buffer
	tr := NewStdio(&out, nopCloserReader{input}, nil)
	defer tr.Close()

	var got []string
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case msg, ok := <-tr.Messages():
			if !ok {
				t.Fatalf("channel closed early after %d messages", len(got))
			}
			got = append(got, string(msg.Payload))
		case <-deadline:
			t.Fatalf("timed out waiting for messages, got %v so far", got)
		}
	}
	if got[0] != `{"a":1}` || got[1] != `{"b":2}` {
		t.Fatalf("got %v", got)
	}
}

func TestStdioSendWritesTrailingNewline(t *testing.T) {
	var out bytes.Buffer
	tr := NewStdio(&out, nopCloserReader{strings.NewReader("")}, nil)
	defer tr.Close()

	if err := tr.Send(context.Background(), "stdio", []byte(`{"hello":"world"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out.String() != "{\"hello\":\"world\"}\n" {
		t.Fatalf("got %q", out.String())
	}
}

func TestStdioChannelClosesOnEOF(t *testing.T) {
	tr := NewStdio(io.Discard, nopCloserReader{strings.NewReader("")}, nil)
	select {
	case _, ok := <-tr.Messages():
		if ok {
			t.Fatal("expected the messages channel to be closed with no data on immediate EOF")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the messages channel to close on EOF")
	}
	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Done() to close")
	}
}

func TestStdioSendAfterCloseErrors(t *testing.T) {
	var out bytes.Buffer
	tr := NewStdio(&out, nopCloserReader{strings.NewReader("")}, nil)
	tr.Close()
	if err := tr.Send(context.Background(), "stdio", []byte("{}")); err == nil {
		t.Fatal("expected Send to error after Close")
	}
}
