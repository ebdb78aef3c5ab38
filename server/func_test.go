package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"mini-jsonrpc/message"
)

func TestFunc(t *testing.T) {
	add := Func(func(_ context.Context, args *Args, reply *Reply) error {
		if args.A < 0 {
			return errors.New("negative")
		}
		reply.Result = args.A + args.B
		return nil
	})
	ctx := context.Background()

	resp := add.Dispatch(ctx, message.NewRequest("add", []int{1, 2}, 1))
	assert.JSONEq(t, `{"Result":3}`, string(requireResult(t, resp)))

	resp = add.Dispatch(ctx, message.NewRequest("add", map[string]int{"A": 4, "B": 5}, 2))
	assert.JSONEq(t, `{"Result":9}`, string(requireResult(t, resp)))

	perr := requireError(t, add.Dispatch(ctx, message.NewRequest("add", []int{1, 2, 3}, 3)))
	assert.Equal(t, message.CodeInvalidParams, perr.Code)

	perr = requireError(t, add.Dispatch(ctx, message.NewRequest("add", []int{-1, 2}, 4)))
	assert.Equal(t, message.CodeInternalError, perr.Code)
	assert.Equal(t, message.MustValue("negative"), perr.Data)

	assert.Nil(t, add.Dispatch(ctx, message.NewNotification("add", []int{1, 2})))
}

func TestFuncRecoversPanic(t *testing.T) {
	crash := Func(func(context.Context, *Args, *Reply) error { panic("boom") })

	perr := requireError(t, crash.Dispatch(context.Background(), message.NewRequest("crash", nil, 1)))
	assert.Equal(t, message.CodeInternalError, perr.Code)
	assert.Contains(t, string(perr.Data), "panic in crash: boom")
}
