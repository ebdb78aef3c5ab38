package codec

import (
	"errors"
	"fmt"

	"mini-jsonrpc/message"
)

// Server error codes assigned to local failures.
const (
	CodeIOFailure     int64 = -32000
	CodeEncodeFailure int64 = -32001
)

// ErrNonUTF8 is returned when an incoming message is not valid UTF-8.
var ErrNonUTF8 = errors.New("jsonrpc: input is not valid UTF-8")

// IOError is a failure of the underlying stream.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return "jsonrpc: i/o failure: " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// EncodeError is returned when a message cannot be represented on the wire.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return "jsonrpc: encode failure: " + e.Err.Error() }
func (e *EncodeError) Unwrap() error { return e.Err }

// ParseError is returned when the input is not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "jsonrpc: parse failure: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// ErrorKind classifies an InternalError.
type ErrorKind int

const (
	KindInvalidVersion ErrorKind = iota + 1
	KindInvalidResponse
	KindInvalidRequest
	KindMethodNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidVersion:
		return "InvalidVersion"
	case KindInvalidResponse:
		return "InvalidResponse"
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindMethodNotFound:
		return "MethodNotFound"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// InternalError is a local classification of a message that was valid JSON
// but not a valid envelope. It is never sent as is; ToProtocolError picks the
// wire error for it.
type InternalError struct {
	Kind   ErrorKind
	Desc   string // Fixed description for the kind of violation
	Detail string // Optional, human readable
}

func newInternalError(kind ErrorKind, desc, format string, args ...any) *InternalError {
	return &InternalError{Kind: kind, Desc: desc, Detail: fmt.Sprintf(format, args...)}
}

func (e *InternalError) Error() string {
	if e.Detail == "" {
		return "jsonrpc: " + e.Desc
	}
	return "jsonrpc: " + e.Desc + ": " + e.Detail
}

// IsKind reports whether err is an InternalError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ierr *InternalError
	return errors.As(err, &ierr) && ierr.Kind == kind
}

// ToProtocolError maps a local failure onto the error object reported to the peer.
//
//	*message.ProtocolError               → unchanged
//	InternalError{InvalidVersion}        → Invalid Request  (-32600)
//	InternalError{InvalidRequest}        → Invalid Request  (-32600)
//	InternalError{InvalidResponse}       → Internal error   (-32603)
//	InternalError{MethodNotFound}        → Method not found (-32601)
//	ErrNonUTF8                           → Invalid Request  (-32600)
//	ParseError                           → Parse error      (-32700)
//	EncodeError                          → Server error     (-32001)
//	IOError                              → Server error     (-32000)
//
// Any other error is reported as Internal error with its text as data. A nil
// err yields nil.
func ToProtocolError(err error) *message.ProtocolError {
	if err == nil {
		return nil
	}
	var (
		perr   *message.ProtocolError
		ierr   *InternalError
		parse  *ParseError
		encode *EncodeError
		ioErr  *IOError
	)
	switch {
	case errors.As(err, &perr):
		return perr
	case errors.As(err, &ierr):
		return internalToProtocol(ierr)
	case errors.Is(err, ErrNonUTF8):
		return message.NewInvalidRequest(nil)
	case errors.As(err, &parse):
		return message.NewParseError(nil)
	case errors.As(err, &encode):
		return message.NewServerError(CodeEncodeFailure, encode.Error())
	case errors.As(err, &ioErr):
		return message.NewServerError(CodeIOFailure, ioErr.Error())
	default:
		return message.NewInternalError(err.Error())
	}
}

func internalToProtocol(ierr *InternalError) *message.ProtocolError {
	var data any
	if ierr.Detail != "" {
		data = ierr.Detail
	}
	switch ierr.Kind {
	case KindInvalidResponse:
		return message.NewInternalError(data)
	case KindMethodNotFound:
		return message.NewMethodNotFound(data)
	default:
		return message.NewInvalidRequest(data)
	}
}
