package client

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
)

type stream struct {
	io.Reader
	io.Writer
}

func newTestConn(input string) (*Conn, *bytes.Buffer) {
	var out bytes.Buffer
	return NewConn(stream{strings.NewReader(input), &out}), &out
}

func TestConnRequest(t *testing.T) {
	conn, out := newTestConn("")

	require.NoError(t, conn.Request(message.NewRequest("echo", []string{"hello"}, 1)))
	require.NoError(t, conn.Request(message.NewNotification("touch", nil)))

	assert.Equal(t,
		"{\"id\":1,\"jsonrpc\":\"2.0\",\"method\":\"echo\",\"params\":[\"hello\"]}\r\n"+
			"{\"jsonrpc\":\"2.0\",\"method\":\"touch\"}\r\n",
		out.String())
}

func TestConnBatchRequest(t *testing.T) {
	conn, out := newTestConn("")

	require.NoError(t, conn.BatchRequest([]message.Request{
		message.NewRequest("add", []int{1, 2}, 1),
		message.NewNotification("touch", nil),
	}))

	assert.Equal(t, "[{\"id\":1,\"jsonrpc\":\"2.0\",\"method\":\"add\",\"params\":[1,2]},{\"jsonrpc\":\"2.0\",\"method\":\"touch\"}]\r\n", out.String())
}

func TestConnGetResponse(t *testing.T) {
	conn, _ := newTestConn("{\"id\":1,\"jsonrpc\":\"2.0\",\"result\":\"hello\"}\r\n" +
		"[{\"id\":2,\"jsonrpc\":\"2.0\",\"result\":3},{\"error\":{\"code\":-32601,\"message\":\"Method not found\"},\"id\":3,\"jsonrpc\":\"2.0\"}]\r\n")

	single, err := conn.GetResponse()
	require.NoError(t, err)
	assert.Equal(t, message.NewSingleResponse(message.NewResultResponse("hello", message.Value(`1`))), single)

	batch, err := conn.GetResponse()
	require.NoError(t, err)
	require.True(t, batch.IsBatch)
	require.Len(t, batch.Responses, 2)
	perr, err := batch.Responses[1].ProtocolError()
	require.NoError(t, err)
	assert.Equal(t, message.CodeMethodNotFound, perr.Code)

	_, err = conn.GetResponse()
	assert.Equal(t, io.EOF, err)
}

func TestConnGetResponseInvalid(t *testing.T) {
	conn, _ := newTestConn(`{"jsonrpc":"2.0","result":1} {"jsonrpc":"2.0","result":2,"id":2}`)

	_, err := conn.GetResponse()
	assert.True(t, codec.IsKind(err, codec.KindInvalidResponse))

	// A rejected envelope does not desynchronize the stream.
	resp, err := conn.GetResponse()
	require.NoError(t, err)
	assert.Equal(t, message.Value(`2`), resp.Responses[0].Result)
}

func TestConnGetResponseTruncated(t *testing.T) {
	conn, _ := newTestConn(`{"jsonrpc":"2.0","result":`)

	_, err := conn.GetResponse()
	var perr *codec.ParseError
	assert.ErrorAs(t, err, &perr)
}
