package server

import (
	"io"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/protocol"
)

// Conn is the responder side of a JSON-RPC exchange over one byte stream.
//
// GetRequest hands out a validated envelope; the caller dispatches it and
// writes back with Response or BatchResponse. Conn is not safe for concurrent use.
type Conn struct {
	w    io.Writer
	dec  *protocol.Decoder
	last []byte // Raw bytes of the last message read, for id recovery
}

// NewConn wraps rw.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		w:   rw,
		dec: protocol.NewDecoder(rw),
	}
}

// GetRequest reads the next request envelope.
// It returns io.EOF when the client closed the stream between messages.
func (c *Conn) GetRequest() (message.ClientRequest, error) {
	body, err := c.dec.Decode()
	if err != nil {
		c.last = nil
		return message.ClientRequest{}, err
	}
	c.last = body
	return codec.DecodeRequest(body)
}

// Response sends a single response.
func (c *Conn) Response(resp message.Response) error {
	body, err := codec.EncodeResponse(resp)
	if err != nil {
		return err
	}
	return protocol.Encode(c.w, body)
}

// BatchResponse sends responses as one batch.
func (c *Conn) BatchResponse(resps []message.Response) error {
	body, err := codec.EncodeResponses(resps)
	if err != nil {
		return err
	}
	return protocol.Encode(c.w, body)
}

// ErrorResponse builds the response reporting err, a failure returned by
// GetRequest. It is addressed to the id of the offending message when one can
// be recovered, and to null otherwise.
func (c *Conn) ErrorResponse(err error) message.Response {
	id := message.Null
	if c.last != nil {
		id = codec.RecoverID(c.last)
	}
	return message.NewErrorResponse(codec.ToProtocolError(err), id)
}
