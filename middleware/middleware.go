// Package middleware wraps request dispatch with cross-cutting behavior.
//
// Middlewares see every dispatched request, calls and notifications alike. A
// middleware that rejects a request answers calls with an error response and
// returns nil for notifications, which never get a response.
package middleware

import (
	"context"

	"mini-jsonrpc/message"
)

// HandlerFunc dispatches one request. It returns nil when there is no response
// to send.
type HandlerFunc func(ctx context.Context, req message.Request) *message.Response

// Middleware decorates a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one listed runs outermost:
//
//	Chain(A, B, C)(h) == A(B(C(h)))
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// reject answers req with perr, or drops it when req is a notification.
func reject(req message.Request, perr *message.ProtocolError) *message.Response {
	if req.IsNotification() {
		return nil
	}
	resp := message.NewErrorResponse(perr, req.ID)
	return &resp
}
