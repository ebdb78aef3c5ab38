// Package message defines the JSON-RPC 2.0 messages exchanged between client and server.
//
// Request and Response are the two envelopes of the protocol. ClientRequest is what a server
// observes on the wire (one request or a batch of them) and ServerResponse is what a client
// observes (one response or a batch). Payloads (params, result, error data) are kept as raw JSON
// and are never interpreted by this package.
//
//	client                                   server
//	  Request ──encode──► {"jsonrpc":"2.0",...} ──decode──► ClientRequest
//	  ServerResponse ◄──decode── {"jsonrpc":"2.0",...} ◄──encode── Response
package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-json-experiment/json/jsontext"
)

// Version is the only protocol version accepted and produced.
const Version = "2.0"

// Value is a raw JSON value. Its Kind reports which JSON type it holds
// (null, bool, number, string, array or object).
//
// A nil Value means the field is absent; Null is a present JSON null.
type Value = jsontext.Value

// Null is the JSON null literal.
var Null = Value("null")

// Request is a call (ID set) or a notification (ID nil).
type Request struct {
	Method string
	Params Value // Optional, usually an array or object
	ID     Value // String or number; nil for notifications
}

// NewRequest builds a call expecting a response.
// params and id may be any value that marshals to JSON; a nil params is omitted.
func NewRequest(method string, params, id any) Request {
	return Request{
		Method: method,
		Params: toValue(params, nil),
		ID:     toValue(id, Null),
	}
}

// NewNotification builds a request that carries no id and receives no response.
func NewNotification(method string, params any) Request {
	return Request{
		Method: method,
		Params: toValue(params, nil),
	}
}

// IsNotification reports whether the request carries no id.
func (r Request) IsNotification() bool {
	return r.ID == nil
}

// Response answers a call. Exactly one of Result and Error is set when the
// response was built with NewResultResponse or NewErrorResponse.
type Response struct {
	Result Value
	Error  Value // Serialized ProtocolError
	ID     Value // Mirrors the request id, Null when it could not be determined
}

// NewResultResponse builds a successful response. A nil result encodes as null.
func NewResultResponse(result any, id Value) Response {
	return Response{
		Result: toValue(result, Null),
		ID:     idOrNull(id),
	}
}

// NewErrorResponse builds a failed response carrying err.
func NewErrorResponse(err *ProtocolError, id Value) Response {
	return Response{
		Error: err.Value(),
		ID:    idOrNull(id),
	}
}

// ProtocolError decodes the error slot. It returns nil, nil when the response
// carries no error.
func (r Response) ProtocolError() (*ProtocolError, error) {
	if r.Error == nil {
		return nil, nil
	}
	perr := new(ProtocolError)
	if err := json.Unmarshal(r.Error, perr); err != nil {
		return nil, fmt.Errorf("decode error object: %w", err)
	}
	return perr, nil
}

// ClientRequest is the request envelope as observed by a server: a single
// request, or a batch (possibly empty) when IsBatch is set.
type ClientRequest struct {
	Requests []Request
	IsBatch  bool
}

// NewSingleRequest wraps one request.
func NewSingleRequest(req Request) ClientRequest {
	return ClientRequest{Requests: []Request{req}}
}

// NewBatchRequest wraps a batch of requests, preserving their order.
func NewBatchRequest(reqs ...Request) ClientRequest {
	if reqs == nil {
		reqs = []Request{}
	}
	return ClientRequest{Requests: reqs, IsBatch: true}
}

// ServerResponse is the response envelope as observed by a client.
type ServerResponse struct {
	Responses []Response
	IsBatch   bool
}

// NewSingleResponse wraps one response.
func NewSingleResponse(resp Response) ServerResponse {
	return ServerResponse{Responses: []Response{resp}}
}

// NewBatchResponse wraps a batch of responses, preserving their order.
func NewBatchResponse(resps ...Response) ServerResponse {
	if resps == nil {
		resps = []Response{}
	}
	return ServerResponse{Responses: resps, IsBatch: true}
}

// MustValue marshals v into a Value. A Value or json.RawMessage is taken as
// already encoded and only compacted. It panics if v cannot be represented as
// JSON, which is a programming error at every call site in this module.
func MustValue(v any) Value {
	switch v := v.(type) {
	case Value:
		return mustCompact(v)
	case json.RawMessage:
		return mustCompact(v)
	}
	data, err := marshal(v)
	if err != nil {
		panic(fmt.Sprintf("message: value is not representable as JSON: %v", err))
	}
	return Value(data)
}

// mustCompact returns a compacted copy of raw, so that a value supplied as raw
// JSON equals the same value after an encode/decode round trip. A nil raw
// stays nil.
func mustCompact(raw []byte) Value {
	if raw == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		panic(fmt.Sprintf("message: value is not valid JSON: %v", err))
	}
	return Value(buf.Bytes())
}

// marshal is json.Marshal without HTML escaping.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// toValue converts v, using ifNil when v is nil.
func toValue(v any, ifNil Value) Value {
	if v == nil {
		return ifNil
	}
	return MustValue(v)
}

func idOrNull(id Value) Value {
	if id == nil {
		return Null
	}
	return id
}
