package mcp

import json "github.com/segmentio/encoding/json"

// Side identifies which direction's method table a parser instance
// consults: a server-side parser validates requests a client sends (and
// the notifications a client sends), a client-side parser the reverse.
type Side int

const (
	ServerSide Side = iota
	ClientSide
)

// MessageParser converts validated JSON objects to typed variants and
// back, per SPEC_FULL.md §4.1. Its behavior is implemented directly from
// that section: the teacher's source-equivalent, shared/message_parser.py,
// ships as an unimplemented stub, so there is no existing behavior to
// port.
type MessageParser struct {
	side Side
}

func NewMessageParser(side Side) *MessageParser { return &MessageParser{side: side} }

func (p *MessageParser) inboundRequestMethods() map[string]methodSpec {
	if p.side == ServerSide {
		return clientRequestMethods
	}
	return serverRequestMethods
}

func (p *MessageParser) inboundNotificationMethods() map[string]func() any {
	if p.side == ServerSide {
		return clientSentNotifications
	}
	return serverSentNotifications
}

// ParsedRequest is the result of successfully parsing an inbound request.
type ParsedRequest struct {
	ID     RequestID
	Method string
	Params any // concrete *XRequest type from methods.go
}

// ParseRequest validates and decodes a raw inbound request. A nil
// *Error with a nil ParsedRequest never occurs: exactly one of the
// return values is meaningful, matching the teacher's toReqErr coercion
// shape generalized to a two-value return.
func (p *MessageParser) ParseRequest(raw RawRequest) (*ParsedRequest, *Error) {
	spec, ok := p.inboundRequestMethods()[raw.Method]
	if !ok {
		return nil, NewMethodNotFound(raw.Method)
	}
	params := spec.newParams()
	if len(raw.Params) > 0 {
		if err := json.Unmarshal(raw.Params, params); err != nil {
			return nil, NewInvalidParams(map[string]any{"error": err.Error(), "method": raw.Method})
		}
	}
	return &ParsedRequest{ID: raw.ID, Method: raw.Method, Params: params}, nil
}

// ParseNotification validates and decodes a raw inbound notification.
// An unknown method yields (nil, nil): per §4.1, unknown notification
// methods are silently dropped rather than reported as an error.
func (p *MessageParser) ParseNotification(raw RawNotification) (method string, params any, parseErr *Error) {
	factory, ok := p.inboundNotificationMethods()[raw.Method]
	if !ok {
		return "", nil, nil
	}
	v := factory()
	if len(raw.Params) > 0 {
		if err := json.Unmarshal(raw.Params, v); err != nil {
			return raw.Method, nil, NewInvalidParams(map[string]any{"error": err.Error(), "method": raw.Method})
		}
	}
	return raw.Method, v, nil
}

// ParseResponse validates a raw inbound response against the method of
// the outbound request it answers. originalMethod must be the method
// string of the request the coordinator tracked for this id; it
// determines the expected result type.
func (p *MessageParser) ParseResponse(originalMethod string, raw RawResponse) (result any, respErr *Error) {
	if raw.Error != nil {
		return nil, raw.Error
	}
	// The outbound side of a parser always looks up its own-sent
	// requests in the *other* side's inbound table, since "the request
	// we sent" matches the method table of the side we sent it to.
	var methods map[string]methodSpec
	if p.side == ServerSide {
		methods = serverRequestMethods
	} else {
		methods = clientRequestMethods
	}
	spec, ok := methods[originalMethod]
	if !ok {
		return nil, NewInternalError(map[string]any{"error": "unknown original request method", "method": originalMethod})
	}
	v := spec.newResult()
	if len(raw.Result) > 0 {
		if err := json.Unmarshal(raw.Result, v); err != nil {
			return nil, NewInternalError(map[string]any{"error": err.Error(), "method": originalMethod})
		}
	}
	return v, nil
}

// IsValidRequest reports whether data decodes to an object with a
// method string and a well-formed id (no id key at all is invalid here;
// use IsValidNotification for that shape).
func IsValidRequest(data []byte) bool {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return false
	}
	return w.kind() == KindRequest
}

// IsValidResponse reports whether data decodes to an object with an id
// and exactly one of result/error.
func IsValidResponse(data []byte) bool {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return false
	}
	if w.kind() != KindResponse {
		return false
	}
	hasResult := len(w.Result) > 0
	hasError := w.Error != nil
	return hasResult != hasError // XOR
}

// IsValidNotification reports whether data decodes to an object with a
// method and no id key.
func IsValidNotification(data []byte) bool {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return false
	}
	return w.kind() == KindNotification
}

// classify decodes a single wire message and buckets it into exactly
// one of the three raw shapes, or reports invalid. Batches are handled
// by the caller (the coordinator's read loop) by decoding a JSON array
// and classifying each element independently, per §4.3 step 1.
func classify(data []byte) (RawRequest, RawResponse, RawNotification, MessageKind, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return RawRequest{}, RawResponse{}, RawNotification{}, KindInvalid, err
	}
	switch w.kind() {
	case KindRequest:
		return RawRequest{ID: *w.ID, Method: w.Method, Params: w.Params}, RawResponse{}, RawNotification{}, KindRequest, nil
	case KindResponse:
		return RawRequest{}, RawResponse{ID: *w.ID, Result: w.Result, Error: w.Error}, RawNotification{}, KindResponse, nil
	case KindNotification:
		return RawRequest{}, RawResponse{}, RawNotification{Method: w.Method, Params: w.Params}, KindNotification, nil
	default:
		return RawRequest{}, RawResponse{}, RawNotification{}, KindInvalid, nil
	}
}
