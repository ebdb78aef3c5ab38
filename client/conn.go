package client

import (
	"io"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/protocol"
)

// Conn is the caller side of a JSON-RPC exchange over one byte stream.
//
// The exchange is half-duplex: send a request (or batch), then read its
// response before sending the next one. Conn holds no state besides the read
// buffer and is not safe for concurrent use.
type Conn struct {
	w   io.Writer
	dec *protocol.Decoder
}

// NewConn wraps rw. Wrap a net.Conn in a bufio.ReadWriter to batch small
// writes; Conn flushes after every message.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		w:   rw,
		dec: protocol.NewDecoder(rw),
	}
}

// Request sends a single request.
func (c *Conn) Request(req message.Request) error {
	body, err := codec.EncodeRequest(req)
	if err != nil {
		return err
	}
	return protocol.Encode(c.w, body)
}

// BatchRequest sends requests as one batch.
func (c *Conn) BatchRequest(reqs []message.Request) error {
	body, err := codec.EncodeRequests(reqs)
	if err != nil {
		return err
	}
	return protocol.Encode(c.w, body)
}

// GetResponse reads the next response envelope.
// It returns io.EOF when the server closed the stream between messages.
func (c *Conn) GetResponse() (message.ServerResponse, error) {
	body, err := c.dec.Decode()
	if err != nil {
		return message.ServerResponse{}, err
	}
	return codec.DecodeResponse(body)
}
