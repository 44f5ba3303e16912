package mcp

import json "github.com/segmentio/encoding/json"

// wireMessage is the envelope shape as it appears on the wire: any of
// Request, Response or Notification, classified after unmarshaling by
// which fields are present. It generalizes connection.go's anyMessage
// probe to multi-peer JSON-RPC, using segmentio/encoding/json for the
// hot decode path (SPEC_FULL.md §6).
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// MessageKind classifies a decoded wireMessage.
type MessageKind int

const (
	KindInvalid MessageKind = iota
	KindRequest
	KindResponse
	KindNotification
)

func (m *wireMessage) kind() MessageKind {
	switch {
	case m.ID != nil && m.Method != "":
		return KindRequest
	case m.ID != nil && m.Method == "":
		return KindResponse
	case m.ID == nil && m.Method != "":
		return KindNotification
	default:
		return KindInvalid
	}
}

// RawRequest is an inbound request after envelope classification but
// before its params have been parsed into a typed value.
type RawRequest struct {
	ID     RequestID
	Method string
	Params json.RawMessage
}

// RawResponse is an inbound response after envelope classification.
type RawResponse struct {
	ID     RequestID
	Result json.RawMessage
	Error  *Error
}

// RawNotification is an inbound notification after envelope classification.
type RawNotification struct {
	Method string
	Params json.RawMessage
}

func encodeRequest(id RequestID, method string, params any) ([]byte, error) {
	msg := wireMessage{JSONRPC: "2.0", ID: &id, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, NewInvalidParams(map[string]any{"error": err.Error()})
		}
		msg.Params = b
	}
	return json.Marshal(msg)
}

func encodeNotification(method string, params any) ([]byte, error) {
	msg := wireMessage{JSONRPC: "2.0", Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, NewInvalidParams(map[string]any{"error": err.Error()})
		}
		msg.Params = b
	}
	return json.Marshal(msg)
}

func encodeResultResponse(id RequestID, result any) ([]byte, error) {
	msg := wireMessage{JSONRPC: "2.0", ID: &id}
	b, err := json.Marshal(result)
	if err != nil {
		msg.Error = NewInternalError(map[string]any{"error": err.Error()})
	} else {
		msg.Result = b
	}
	return json.Marshal(msg)
}

func encodeErrorResponse(id RequestID, reqErr *Error) ([]byte, error) {
	msg := wireMessage{JSONRPC: "2.0", ID: &id, Error: reqErr}
	return json.Marshal(msg)
}
