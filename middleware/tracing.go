package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mini-jsonrpc/message"
)

// Tracing opens a server span named after the method around each dispatch.
func Tracing(tracer trace.Tracer) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Request) *message.Response {
			ctx, span := tracer.Start(ctx, req.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("rpc.system", "jsonrpc"),
					attribute.String("rpc.method", req.Method),
					attribute.String("rpc.jsonrpc.version", message.Version),
				),
			)
			defer span.End()

			if !req.IsNotification() {
				span.SetAttributes(attribute.String("rpc.jsonrpc.request_id", string(req.ID)))
			}

			resp := next(ctx, req)
			if resp != nil && resp.Error != nil {
				if perr, err := resp.ProtocolError(); err == nil {
					span.SetAttributes(
						attribute.Int64("rpc.jsonrpc.error_code", perr.Code),
						attribute.String("rpc.jsonrpc.error_message", perr.Message),
					)
					span.SetStatus(codes.Error, perr.Message)
				}
			}
			return resp
		}
	}
}
