// Package protocol implements message framing for JSON-RPC over a byte stream.
//
// There is no length prefix: a message is exactly one JSON value, and the
// reader relies on the JSON tokenizer to find where it ends. The writer
// terminates every message with CRLF so that line-oriented peers (telnet, nc,
// log tailers) see one message per line.
//
//	┌──────────────────────────────────────────────┬────┐
//	│ {"id":1,"jsonrpc":"2.0","method":"echo",...} │\r\n│
//	└──────────────────────────────────────────────┴────┘
package protocol

import (
	"bytes"
	"errors"
	"io"

	"github.com/go-json-experiment/json/jsontext"

	"mini-jsonrpc/codec"
)

// Delimiter is written after every message.
var Delimiter = []byte("\r\n")

// Flusher is implemented by buffered writers such as *bufio.Writer.
type Flusher interface {
	Flush() error
}

// Encode writes one encoded message followed by Delimiter, then flushes w if it
// buffers. Failures are reported as *codec.IOError.
func Encode(w io.Writer, body []byte) error {
	if _, err := w.Write(body); err != nil {
		return &codec.IOError{Err: err}
	}
	if _, err := w.Write(Delimiter); err != nil {
		return &codec.IOError{Err: err}
	}
	if f, ok := w.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return &codec.IOError{Err: err}
		}
	}
	return nil
}

// Decoder reads one JSON value at a time from a stream.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	dec *jsontext.Decoder
}

// NewDecoder returns a Decoder reading from r. Invalid UTF-8 is let through so
// that the codec can classify it instead of failing the whole stream.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		dec: jsontext.NewDecoder(r,
			jsontext.AllowInvalidUTF8(true),
			jsontext.AllowDuplicateNames(true),
		),
	}
}

// Decode returns the bytes of the next JSON value.
//
// It returns io.EOF, unwrapped, when the stream ends cleanly between
// messages. A stream that ends inside a value or holds malformed JSON yields a
// *codec.ParseError; any other read failure yields a *codec.IOError.
func (d *Decoder) Decode() ([]byte, error) {
	val, err := d.dec.ReadValue()
	if err != nil {
		return nil, classify(err)
	}
	// The returned value aliases the decoder's buffer until the next read.
	return bytes.Clone(val), nil
}

func classify(err error) error {
	var syntaxErr *jsontext.SyntacticError
	switch {
	case errors.Is(err, io.EOF):
		return io.EOF
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return &codec.ParseError{Err: err}
	default:
		return &codec.IOError{Err: err}
	}
}
