package message

import (
	"encoding/json"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     int64 = -32700
	CodeInvalidRequest int64 = -32600
	CodeMethodNotFound int64 = -32601
	CodeInvalidParams  int64 = -32602
	CodeInternalError  int64 = -32603

	// Implementation-defined server errors live in [CodeServerErrorMin, CodeServerErrorMax].
	CodeServerErrorMin int64 = -32099
	CodeServerErrorMax int64 = -32000
)

// ProtocolError is the error object carried by a failed Response.
type ProtocolError struct {
	Code    int64
	Message string
	Data    Value // Optional detail
}

func (e *ProtocolError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("jsonrpc: %s (%d): %s", e.Message, e.Code, e.Data)
	}
	return fmt.Sprintf("jsonrpc: %s (%d)", e.Message, e.Code)
}

// Fields in alphabetical order, like every other object this module writes.
type wireError struct {
	Code    int64           `json:"code"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message"`
}

func (e *ProtocolError) MarshalJSON() ([]byte, error) {
	return marshal(wireError{
		Code:    e.Code,
		Message: e.Message,
		Data:    json.RawMessage(e.Data),
	})
}

func (e *ProtocolError) UnmarshalJSON(data []byte) error {
	var w wireError
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Code = w.Code
	e.Message = w.Message
	e.Data = nil
	if w.Data != nil {
		e.Data = Value(w.Data)
	}
	return nil
}

// Value returns the serialized error object.
func (e *ProtocolError) Value() Value {
	return MustValue(e)
}

func newProtocolError(code int64, msg string, data any) *ProtocolError {
	return &ProtocolError{
		Code:    code,
		Message: msg,
		Data:    toValue(data, nil),
	}
}

// NewParseError reports that the peer sent invalid JSON. data may be nil.
func NewParseError(data any) *ProtocolError {
	return newProtocolError(CodeParseError, "Parse error", data)
}

// NewInvalidRequest reports that the JSON sent is not a valid request object.
func NewInvalidRequest(data any) *ProtocolError {
	return newProtocolError(CodeInvalidRequest, "Invalid Request", data)
}

// NewMethodNotFound reports that the method does not exist or is not available.
func NewMethodNotFound(data any) *ProtocolError {
	return newProtocolError(CodeMethodNotFound, "Method not found", data)
}

// NewInvalidParams reports invalid method parameters.
func NewInvalidParams(data any) *ProtocolError {
	return newProtocolError(CodeInvalidParams, "Invalid params", data)
}

// NewInternalError reports an internal JSON-RPC error.
func NewInternalError(data any) *ProtocolError {
	return newProtocolError(CodeInternalError, "Internal error", data)
}

// NewServerError reports an implementation-defined server error.
// It panics if code is outside [-32099, -32000].
func NewServerError(code int64, data any) *ProtocolError {
	if code < CodeServerErrorMin || code > CodeServerErrorMax {
		panic(fmt.Sprintf("message: server error code %d outside [%d, %d]", code, CodeServerErrorMin, CodeServerErrorMax))
	}
	return newProtocolError(code, "Server error", data)
}
