package server

import (
	"bytes"
	"context"
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

func echo(_ context.Context, req message.Request) *message.Response {
	resp := message.NewResultResponse(req.Params, req.ID)
	return &resp
}

func TestConnExchange(t *testing.T) {
	conn, out := newTestConn("{\"jsonrpc\":\"2.0\",\"method\":\"echo\",\"params\":[\"hi\"],\"id\":1}\r\n")

	req, err := conn.GetRequest()
	require.NoError(t, err)
	require.False(t, req.IsBatch)
	assert.Equal(t, "echo", req.Requests[0].Method)

	require.NoError(t, conn.Response(message.NewResultResponse("hi", req.Requests[0].ID)))
	assert.Equal(t, "{\"id\":1,\"jsonrpc\":\"2.0\",\"result\":\"hi\"}\r\n", out.String())

	_, err = conn.GetRequest()
	assert.Equal(t, io.EOF, err)
}

func TestConnBatchSkipsNotifications(t *testing.T) {
	conn, out := newTestConn(`[
		{"jsonrpc":"2.0","method":"echo","params":[1],"id":1},
		{"jsonrpc":"2.0","method":"echo","params":[2]},
		{"jsonrpc":"2.0","method":"echo","params":[3],"id":3}
	]`)

	req, err := conn.GetRequest()
	require.NoError(t, err)
	require.True(t, req.IsBatch)
	require.Len(t, req.Requests, 3)

	resps := DispatchBatch(context.Background(), DispatcherFunc(echo), req.Requests)
	require.Len(t, resps, 2)
	require.NoError(t, conn.BatchResponse(resps))

	assert.Equal(t, "[{\"id\":1,\"jsonrpc\":\"2.0\",\"result\":[1]},{\"id\":3,\"jsonrpc\":\"2.0\",\"result\":[3]}]\r\n", out.String())
}

func TestConnErrorResponseRecoversID(t *testing.T) {
	conn, _ := newTestConn(`{"jsonrpc":"1.0","method":"echo","id":5} {"jsonrpc":"2.0","method":"echo","id":6}`)

	_, err := conn.GetRequest()
	require.True(t, codec.IsKind(err, codec.KindInvalidVersion))

	resp := conn.ErrorResponse(err)
	assert.Equal(t, message.Value(`5`), resp.ID)
	perr, perrErr := resp.ProtocolError()
	require.NoError(t, perrErr)
	assert.Equal(t, message.CodeInvalidRequest, perr.Code)
	assert.Equal(t, message.Value(`"expecting JSON-RPC 2.0, but found 1.0"`), perr.Data)

	// The exchange goes on after an envelope failure.
	req, err := conn.GetRequest()
	require.NoError(t, err)
	assert.Equal(t, message.Value(`6`), req.Requests[0].ID)
}

func TestConnErrorResponseNonUTF8(t *testing.T) {
	conn, _ := newTestConn("{\"jsonrpc\":\"2.0\",\"method\":\"\xff\",\"id\":9}")

	_, err := conn.GetRequest()
	require.ErrorIs(t, err, codec.ErrNonUTF8)

	resp := conn.ErrorResponse(err)
	assert.Equal(t, message.Value(`9`), resp.ID)
	perr, _ := resp.ProtocolError()
	assert.Equal(t, message.CodeInvalidRequest, perr.Code)
}

func TestConnErrorResponseNonUTF8ID(t *testing.T) {
	conn, out := newTestConn("{\"jsonrpc\":\"2.0\",\"method\":\"m\",\"id\":\"\xff\"}")

	_, err := conn.GetRequest()
	require.ErrorIs(t, err, codec.ErrNonUTF8)

	// The id cannot be echoed without making the reply invalid too.
	resp := conn.ErrorResponse(err)
	assert.Equal(t, message.Null, resp.ID)
	require.NoError(t, conn.Response(resp))

	reply, err := codec.DecodeResponse(bytes.TrimSuffix(out.Bytes(), []byte("\r\n")))
	require.NoError(t, err)
	require.Len(t, reply.Responses, 1)
	assert.Equal(t, message.Null, reply.Responses[0].ID)
	perr, err := reply.Responses[0].ProtocolError()
	require.NoError(t, err)
	assert.Equal(t, message.CodeInvalidRequest, perr.Code)
}

func TestConnErrorResponseParseFailure(t *testing.T) {
	conn, _ := newTestConn(`{"jsonrpc":"2.0","id":4,"method":`)

	_, err := conn.GetRequest()
	var perr *codec.ParseError
	require.ErrorAs(t, err, &perr)

	// Nothing complete was read, so there is no id to recover.
	resp := conn.ErrorResponse(err)
	assert.Equal(t, message.Null, resp.ID)
	got, _ := resp.ProtocolError()
	assert.Equal(t, message.CodeParseError, got.Code)
}
