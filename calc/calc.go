// Package calc is the sample service served by calc-server: echo, touch and
// add, reachable both as bare method names and as "Calculator.Method".
package calc

import (
	"context"

	"go.uber.org/zap"

	"mini-jsonrpc/message"
	"mini-jsonrpc/server"
)

// MsgArgs accepts {"msg": "..."} or ["..."].
type MsgArgs struct {
	Msg *string `json:"msg"`
}

func (a *MsgArgs) msg() (string, error) {
	if a.Msg == nil {
		return "", message.NewInvalidParams("missing msg")
	}
	return *a.Msg, nil
}

// AddArgs accepts {"a": 1, "b": 2} or [1, 2].
type AddArgs struct {
	A int64 `json:"a"`
	B int64 `json:"b"`
}

// Calculator implements the sample methods.
type Calculator struct {
	logger *zap.Logger
}

// New returns a Calculator logging touches to logger.
func New(logger *zap.Logger) *Calculator {
	return &Calculator{logger: logger}
}

// Echo returns the message it was given.
func (c *Calculator) Echo(_ context.Context, args *MsgArgs, reply *string) error {
	msg, err := args.msg()
	if err != nil {
		return err
	}
	*reply = msg
	return nil
}

// Touch logs the message. The result of a call is null.
func (c *Calculator) Touch(_ context.Context, args *MsgArgs, reply *any) error {
	msg, err := args.msg()
	if err != nil {
		return err
	}
	c.logger.Info("touch", zap.String("msg", msg))
	return nil
}

// Add returns the sum of two integers.
func (c *Calculator) Add(_ context.Context, args *AddArgs, reply *int64) error {
	sum := args.A + args.B
	if (sum > args.A) != (args.B > 0) {
		return message.NewInvalidParams("integer overflow")
	}
	*reply = sum
	return nil
}

// Mux is implemented by *server.Server and *server.Services.
type Mux interface {
	Register(rcvr any) error
	Handle(method string, d server.Dispatcher)
}

// Mount registers c on s under "Calculator" and binds the bare names echo,
// touch and add. The bare names require params.
func Mount(s Mux, c *Calculator) error {
	if err := s.Register(c); err != nil {
		return err
	}
	s.Handle("echo", requireParams(server.Func(c.Echo)))
	s.Handle("touch", requireParams(server.Func(c.Touch)))
	s.Handle("add", requireParams(server.Func(c.Add)))
	return nil
}

func requireParams(d server.Dispatcher) server.Dispatcher {
	return server.DispatcherFunc(func(ctx context.Context, req message.Request) *message.Response {
		if req.Params == nil {
			if req.IsNotification() {
				return nil
			}
			resp := message.NewErrorResponse(message.NewInvalidParams("params required"), req.ID)
			return &resp
		}
		return d.Dispatch(ctx, req)
	})
}
