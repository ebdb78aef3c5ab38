package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"mini-jsonrpc/message"
)

// CodeRateLimited is the server error code answered when a call is rejected by RateLimit.
const CodeRateLimited int64 = -32003

// RateLimit admits rps requests per second with bursts of up to burst, using a
// token bucket shared by every connection of the server.
func RateLimit(rps float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req message.Request) *message.Response {
			if !limiter.Allow() {
				return reject(req, message.NewServerError(CodeRateLimited, "rate limit exceeded"))
			}
			return next(ctx, req)
		}
	}
}
