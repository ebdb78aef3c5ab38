// Package transport provides a connection pool for half-duplex exchanges.
//
// A JSON-RPC connection carries one request at a time, so the pool hands each
// connection out exclusively: Get borrows, Put returns. The pool grows lazily
// up to its limit; once at the limit Get waits for a Put.
//
// Pool design: idle connections sit in a buffered channel (FIFO, goroutine
// safe), and a second buffered channel of the same size counts open
// connections so that discarding one frees a slot for a waiting Get.
package transport

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("transport: pool closed")

// Factory opens a new connection.
type Factory[T io.Closer] func(ctx context.Context) (T, error)

// ConnPool manages reusable connections to a single address.
type ConnPool[T io.Closer] struct {
	idle    chan T
	slots   chan struct{} // One token per open connection
	factory Factory[T]

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewConnPool creates an empty pool holding at most maxConns connections.
func NewConnPool[T io.Closer](maxConns int, factory Factory[T]) *ConnPool[T] {
	if maxConns < 1 {
		maxConns = 1
	}
	return &ConnPool[T]{
		idle:    make(chan T, maxConns),
		slots:   make(chan struct{}, maxConns),
		factory: factory,
		done:    make(chan struct{}),
	}
}

// Get borrows a connection. It prefers an idle one, opens a new one while
// under the limit, and otherwise waits until a connection is returned, ctx is
// done, or the pool is closed.
func (p *ConnPool[T]) Get(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-p.done:
		return zero, ErrPoolClosed
	default:
	}

	select {
	case conn := <-p.idle:
		return conn, nil
	default:
	}

	select {
	case conn := <-p.idle:
		return conn, nil
	case p.slots <- struct{}{}:
		conn, err := p.factory(ctx)
		if err != nil {
			<-p.slots
			return zero, err
		}
		return conn, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-p.done:
		return zero, ErrPoolClosed
	}
}

// Put returns a borrowed connection. An unhealthy connection (one that saw an
// I/O or framing failure) is closed and its slot released instead.
func (p *ConnPool[T]) Put(conn T, healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !healthy || p.closed {
		conn.Close()
		<-p.slots
		return
	}
	// Never blocks: at most cap(slots) connections exist.
	p.idle <- conn
}

// Open reports how many connections exist, borrowed or idle.
func (p *ConnPool[T]) Open() int {
	return len(p.slots)
}

// Idle reports how many connections are waiting to be borrowed.
func (p *ConnPool[T]) Idle() int {
	return len(p.idle)
}

// Close closes idle connections and makes later Gets fail. Borrowed
// connections are closed when they are Put back.
func (p *ConnPool[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)

	var errs []error
	for {
		select {
		case conn := <-p.idle:
			if err := conn.Close(); err != nil {
				errs = append(errs, err)
			}
			<-p.slots
		default:
			return errors.Join(errs...)
		}
	}
}
