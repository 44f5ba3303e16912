package mcp

import (
	"bytes"
	"fmt"
	"strconv"
	"sync/atomic"

	json "github.com/segmentio/encoding/json"
)

// RequestID is a JSON-RPC request id: a string or an integer, never a
// bool, float or null, per SPEC_FULL.md §4.1's validation rules.
type RequestID struct {
	str    string
	num    int64
	isStr  bool
	isZero bool
}

// NewStringID wraps a string request id.
func NewStringID(s string) RequestID { return RequestID{str: s, isStr: true} }

// NewIntID wraps an integer request id.
func NewIntID(n int64) RequestID { return RequestID{num: n, isZero: n == 0} }

// IsZero reports whether this RequestID was never assigned a value
// (the zero RequestID{}), as opposed to the integer id 0.
func (id RequestID) IsZero() bool { return !id.isStr && id.num == 0 && !id.isZero }

// Key returns a value suitable for use as a map key, distinguishing the
// string id "7" from the integer id 7.
func (id RequestID) Key() string {
	if id.isStr {
		return "s:" + id.str
	}
	return "n:" + strconv.FormatInt(id.num, 10)
}

func (id RequestID) String() string {
	if id.isStr {
		return id.str
	}
	return strconv.FormatInt(id.num, 10)
}

func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.isStr {
		return json.Marshal(id.str)
	}
	return json.Marshal(id.num)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return fmt.Errorf("mcp: request id must not be null")
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = RequestID{str: s, isStr: true}
		return nil
	}
	if string(trimmed) == "true" || string(trimmed) == "false" {
		return fmt.Errorf("mcp: request id must not be a boolean")
	}
	n, err := strconv.ParseInt(string(trimmed), 10, 64)
	if err != nil {
		return fmt.Errorf("mcp: request id must be a string or integer, got %q", string(trimmed))
	}
	*id = RequestID{num: n, isZero: n == 0}
	return nil
}

// idGenerator mints unique, monotonically increasing integer request ids
// for outbound requests, scoped to a single peer connection, following
// the teacher's atomic.Uint64 counter in connection.go generalized to
// per-peer scope (the registry holds one idGenerator per PeerState).
type idGenerator struct {
	next atomic.Int64
}

func (g *idGenerator) nextID() RequestID {
	return NewIntID(g.next.Add(1))
}
