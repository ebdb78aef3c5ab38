// Package codec translates JSON-RPC 2.0 messages to and from their wire form.
//
// Encoding produces compact JSON with keys in alphabetical order, so the output
// for a given message is byte-for-byte deterministic:
//
//	Request  → {"id":1,"jsonrpc":"2.0","method":"echo","params":["ping"]}
//	Response → {"id":1,"jsonrpc":"2.0","result":"pong"}
//
// Decoding runs in three steps and reports the first failure:
//
//	bytes ──utf8──► ErrNonUTF8
//	      ──json──► *ParseError                    (not JSON at all)
//	      ──envelope──► *InternalError{Kind: ...}  (JSON, but not a valid message)
//
// A batch is decoded atomically: one bad element fails the whole batch.
package codec

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"github.com/buger/jsonparser"

	"mini-jsonrpc/message"
)

// marshal encodes v without HTML escaping and without a trailing newline.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, &EncodeError{Err: err}
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// compact returns a compacted copy of raw so that decoded values compare
// equal to the values they were encoded from.
func compact(raw []byte) message.Value {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return message.Value(bytes.Clone(raw))
	}
	return message.Value(buf.Bytes())
}

// RecoverID extracts the id of an envelope that failed validation so that the
// error response can still be addressed to the right call. It returns
// message.Null when no string or number id can be found, or when the id is
// not valid UTF-8 and so could not be echoed back in a valid response.
func RecoverID(data []byte) message.Value {
	value, dataType, _, err := jsonparser.Get(data, "id")
	if err != nil {
		return message.Null
	}
	switch dataType {
	case jsonparser.String:
		if !utf8.Valid(value) {
			return message.Null
		}
		// jsonparser strips the quotes but leaves escapes intact.
		return message.Value(`"` + string(value) + `"`)
	case jsonparser.Number:
		return message.Value(bytes.Clone(value))
	default:
		return message.Null
	}
}
