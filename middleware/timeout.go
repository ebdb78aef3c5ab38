package middleware

import (
	"context"
	"time"

	"mini-jsonrpc/message"
)

// CodeTimeout is the server error code answered when a call runs past its deadline.
const CodeTimeout int64 = -32002

// Timeout bounds each dispatch to d. The handler keeps running in the
// background after the deadline; its context is cancelled so that it can stop.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return reject(req, message.NewServerError(CodeTimeout, "request timed out"))
			}
		}
	}
}
