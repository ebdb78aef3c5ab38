package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-jsonrpc/message"
)

// Logging logs every dispatched request with its duration and outcome.
// Error responses are logged at warn level.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Duration("duration", time.Since(start)),
			}
			if req.IsNotification() {
				fields = append(fields, zap.Bool("notification", true))
			} else {
				fields = append(fields, zap.ByteString("id", req.ID))
			}

			if resp != nil && resp.Error != nil {
				if perr, err := resp.ProtocolError(); err == nil {
					fields = append(fields, zap.Int64("code", perr.Code), zap.String("error", perr.Message))
				}
				logger.Warn("call failed", fields...)
				return resp
			}
			logger.Info("call", fields...)
			return resp
		}
	}
}
