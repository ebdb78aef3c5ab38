package server

import (
	"context"
	"sync"

	"mini-jsonrpc/message"
)

// Dispatcher executes requests. Dispatch returns nil when there is nothing to
// send back, which is always the case for notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, req message.Request) *message.Response
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, req message.Request) *message.Response

func (f DispatcherFunc) Dispatch(ctx context.Context, req message.Request) *message.Response {
	return f(ctx, req)
}

// DispatchBatch runs the requests of a batch concurrently and collects the
// responses to its calls in call order. Notifications are executed but never
// answered, so the result is empty when every element was a notification.
func DispatchBatch(ctx context.Context, d Dispatcher, reqs []message.Request) []message.Response {
	slots := make([]*message.Response, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slots[i] = d.Dispatch(ctx, req)
		}()
	}
	wg.Wait()

	resps := make([]message.Response, 0, len(reqs))
	for i, resp := range slots {
		if resp == nil || reqs[i].IsNotification() {
			continue
		}
		resps = append(resps, *resp)
	}
	return resps
}
