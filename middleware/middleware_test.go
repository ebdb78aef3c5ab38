package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mini-jsonrpc/message"
)

func echoHandler(_ context.Context, req message.Request) *message.Response {
	if req.IsNotification() {
		return nil
	}
	resp := message.NewResultResponse(req.Params, req.ID)
	return &resp
}

func slowHandler(ctx context.Context, req message.Request) *message.Response {
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
	}
	return echoHandler(ctx, req)
}

func failingHandler(_ context.Context, req message.Request) *message.Response {
	resp := message.NewErrorResponse(message.NewMethodNotFound(nil), req.ID)
	return &resp
}

func requireError(t *testing.T, resp *message.Response) *message.ProtocolError {
	t.Helper()
	require.NotNil(t, resp)
	perr, err := resp.ProtocolError()
	require.NoError(t, err)
	require.NotNil(t, perr)
	return perr
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := Logging(zap.New(core))(echoHandler)

	resp := handler(context.Background(), message.NewRequest("Arith.Add", []int{1, 2}, 1))
	require.NotNil(t, resp)
	assert.Equal(t, message.Value(`[1,2]`), resp.Result)

	entries := logs.FilterMessage("call").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "Arith.Add", fields["method"])
	assert.Equal(t, "1", fields["id"])
}

func TestLoggingErrorAndNotification(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	Logging(log)(failingHandler)(context.Background(), message.NewRequest("nope", nil, "x"))
	failed := logs.FilterLevelExact(zap.WarnLevel).All()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(message.CodeMethodNotFound), failed[0].ContextMap()["code"])

	resp := Logging(log)(echoHandler)(context.Background(), message.NewNotification("touch", nil))
	assert.Nil(t, resp)
	notes := logs.FilterField(zap.Bool("notification", true)).All()
	assert.Len(t, notes, 1)
}

func TestTimeoutPass(t *testing.T) {
	handler := Timeout(500 * time.Millisecond)(echoHandler)

	resp := handler(context.Background(), message.NewRequest("Arith.Add", nil, 1))
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
}

func TestTimeoutExceeded(t *testing.T) {
	handler := Timeout(50 * time.Millisecond)(slowHandler)

	resp := handler(context.Background(), message.NewRequest("Arith.Add", nil, 7))
	perr := requireError(t, resp)
	assert.Equal(t, CodeTimeout, perr.Code)
	assert.Equal(t, message.Value(`"request timed out"`), perr.Data)
	assert.Equal(t, message.Value(`7`), resp.ID)
}

func TestTimeoutNotification(t *testing.T) {
	handler := Timeout(50 * time.Millisecond)(slowHandler)

	assert.Nil(t, handler(context.Background(), message.NewNotification("touch", nil)))
}

func TestRateLimit(t *testing.T) {
	// One token per second with a burst of two: the third call is rejected.
	handler := RateLimit(1, 2)(echoHandler)
	req := message.NewRequest("Arith.Add", nil, 1)

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), req)
		require.NotNil(t, resp)
		assert.Nil(t, resp.Error, "request %d", i)
	}

	perr := requireError(t, handler(context.Background(), req))
	assert.Equal(t, CodeRateLimited, perr.Code)
	assert.Equal(t, message.Value(`"rate limit exceeded"`), perr.Data)

	assert.Nil(t, handler(context.Background(), message.NewNotification("touch", nil)))
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	Tracing(tracer)(echoHandler)(context.Background(), message.NewRequest("Arith.Add", nil, 1))
	Tracing(tracer)(failingHandler)(context.Background(), message.NewRequest("nope", nil, 2))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "Arith.Add", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "nope", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "Method not found", spans[1].Status().Description)
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req message.Request) *message.Response {
				order = append(order, name+">")
				resp := next(ctx, req)
				order = append(order, "<"+name)
				return resp
			}
		}
	}

	handler := Chain(mark("a"), mark("b"), Timeout(500*time.Millisecond))(echoHandler)
	resp := handler(context.Background(), message.NewRequest("Arith.Add", nil, 1))

	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
	assert.Equal(t, []string{"a>", "b>", "<b", "<a"}, order)
}
