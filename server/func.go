package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mini-jsonrpc/message"
)

// Func adapts a typed function to a Dispatcher. Params are bound into args
// with BindParams and reply is marshaled as the result. Failures are reported
// the same way Services reports them for registered receivers.
func Func[A, R any](fn func(ctx context.Context, args *A, reply *R) error) Dispatcher {
	return DispatcherFunc(func(ctx context.Context, req message.Request) *message.Response {
		result, perr := callFunc(ctx, req, fn)
		if req.IsNotification() {
			return nil
		}
		var r message.Response
		if perr != nil {
			r = message.NewErrorResponse(perr, req.ID)
		} else {
			r = message.NewResultResponse(result, req.ID)
		}
		return &r
	})
}

func callFunc[A, R any](ctx context.Context, req message.Request, fn func(context.Context, *A, *R) error) (result message.Value, perr *message.ProtocolError) {
	var (
		args  A
		reply R
	)
	if err := BindParams(req.Params, &args); err != nil {
		return nil, message.NewInvalidParams(err.Error())
	}

	defer func() {
		if p := recover(); p != nil {
			result, perr = nil, message.NewInternalError(fmt.Sprintf("panic in %s: %v", req.Method, p))
		}
	}()
	if err := fn(ctx, &args, &reply); err != nil {
		return nil, handlerError(err)
	}
	return marshalReply(&reply)
}

// handlerError passes a *message.ProtocolError through and turns anything
// else into an InternalError carrying the error text.
func handlerError(err error) *message.ProtocolError {
	var perr *message.ProtocolError
	if errors.As(err, &perr) {
		return perr
	}
	return message.NewInternalError(err.Error())
}

func marshalReply(reply any) (message.Value, *message.ProtocolError) {
	data, err := json.Marshal(reply)
	if err != nil {
		return nil, message.NewInternalError(fmt.Sprintf("marshal result: %v", err))
	}
	return message.Value(data), nil
}
