// Package client implements the caller side of JSON-RPC 2.0 over a byte
// stream, and a discovering client built on it.
//
// Call path:
//
//	Call → Registry.Discover(service) → Balancer.Pick(method) → CircuitBreaker(addr)
//	  → ConnPool.Get(addr) → Conn.Request → Conn.GetResponse → ConnPool.Put
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/message"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/transport"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("client: closed")

// Client calls methods on servers found through a registry. It is safe for
// concurrent use; every call borrows a connection exclusively.
type Client struct {
	registry    registry.Registry
	balancer    loadbalance.Balancer
	logger      *zap.Logger
	poolSize    int
	dialTimeout time.Duration
	callTimeout time.Duration

	breakerFailures uint32 // Zero disables circuit breaking
	breakerTimeout  time.Duration

	watch     bool
	discovery *discovery // nil unless watch

	mu       sync.Mutex
	pools    map[string]*transport.ConnPool[*pooledConn] // One pool per instance address
	breakers map[string]*gobreaker.CircuitBreaker[*message.Response]
	closed   bool
}

type pooledConn struct {
	net.Conn
	rpc *Conn
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithPoolSize bounds the connections kept open to each instance.
func WithPoolSize(n int) Option {
	return func(c *Client) { c.poolSize = n }
}

// WithDialTimeout bounds connection establishment.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithCallTimeout bounds calls whose context has no deadline. Zero means no bound.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// WithWatch caches the instances of every service called and keeps them
// current through Registry.Watch, instead of reading the registry on each
// call. Changes reach the client as fast as the registry reports them.
func WithWatch() Option {
	return func(c *Client) { c.watch = true }
}

// WithCircuitBreaker opens the circuit of an instance after maxFailures
// consecutive failed exchanges. While open, the instance is skipped when
// another one is available, and calls routed to it fail with
// gobreaker.ErrOpenState. After timeout, a single trial call is let through.
func WithCircuitBreaker(maxFailures uint32, timeout time.Duration) Option {
	return func(c *Client) {
		c.breakerFailures = maxFailures
		c.breakerTimeout = timeout
	}
}

// NewClient creates a client that discovers instances in reg and spreads calls with bal.
func NewClient(reg registry.Registry, bal loadbalance.Balancer, opts ...Option) *Client {
	c := &Client{
		registry:    reg,
		balancer:    bal,
		logger:      zap.NewNop(),
		poolSize:    4,
		dialTimeout: 5 * time.Second,
		pools:       make(map[string]*transport.ConnPool[*pooledConn]),
		breakers:    make(map[string]*gobreaker.CircuitBreaker[*message.Response]),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.watch {
		c.discovery = newDiscovery(reg)
	}
	return c
}

// ServiceName returns the service a method belongs to: the text before its
// last dot, or the whole method name when it has none.
func ServiceName(method string) string {
	if i := strings.LastIndex(method, "."); i >= 0 {
		return method[:i]
	}
	return method
}

// Call invokes method with params and unmarshals the result into reply,
// which may be nil to discard it. A failure reported by the server is
// returned as a *message.ProtocolError.
func (c *Client) Call(ctx context.Context, method string, params, reply any) error {
	req := message.NewRequest(method, params, ulid.Make().String())
	resp, err := c.exchange(ctx, req)
	if err != nil {
		return err
	}

	perr, err := resp.ProtocolError()
	if err != nil {
		return fmt.Errorf("client: %s: %w", method, err)
	}
	if perr != nil {
		return perr
	}
	if reply == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, reply); err != nil {
		return fmt.Errorf("client: %s: decode result: %w", method, err)
	}
	return nil
}

// Notify sends method as a notification. It returns once the message is written.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	_, err := c.exchange(ctx, message.NewNotification(method, params))
	return err
}

func (c *Client) exchange(ctx context.Context, req message.Request) (*message.Response, error) {
	if c.callTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
			defer cancel()
		}
	}

	instances, err := c.discover(ctx, ServiceName(req.Method))
	if err != nil {
		return nil, err
	}
	inst, err := c.balancer.Pick(req.Method, c.closedCircuits(instances))
	if err != nil {
		return nil, err
	}

	cb := c.breaker(inst.Addr)
	if cb == nil {
		return c.send(ctx, inst.Addr, req)
	}
	resp, err := cb.Execute(func() (*message.Response, error) {
		return c.send(ctx, inst.Addr, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("client: %s: circuit open: %w", inst.Addr, err)
	}
	return resp, err
}

func (c *Client) discover(ctx context.Context, serviceName string) ([]registry.ServiceInstance, error) {
	if c.discovery != nil {
		return c.discovery.Discover(ctx, serviceName)
	}
	return c.registry.Discover(ctx, serviceName)
}

// send exchanges req on a connection borrowed from the pool of addr.
func (c *Client) send(ctx context.Context, addr string, req message.Request) (*message.Response, error) {
	pool, err := c.pool(addr)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	healthy := false
	defer func() { pool.Put(conn, healthy) }()

	// Deadlines make blocked reads and writes observe ctx.
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer func() {
		if !stop() {
			// Cancellation already poisoned the deadline.
			healthy = false
			return
		}
		conn.SetDeadline(time.Time{})
	}()

	resp, err := roundTrip(conn.rpc, req)
	if err != nil {
		healthy = codec.IsKind(err, codec.KindInvalidResponse) || codec.IsKind(err, codec.KindInvalidVersion)
		if ctx.Err() != nil {
			healthy = false
			return nil, fmt.Errorf("client: %s: %w", req.Method, ctx.Err())
		}
		c.logger.Warn("call failed",
			zap.String("method", req.Method),
			zap.String("addr", addr),
			zap.Bool("discard", !healthy),
			zap.Error(err),
		)
		return nil, err
	}
	healthy = true
	return resp, nil
}

// roundTrip runs one half-duplex exchange. The response is nil for a notification.
func roundTrip(conn *Conn, req message.Request) (*message.Response, error) {
	if err := conn.Request(req); err != nil {
		return nil, err
	}
	if req.IsNotification() {
		return nil, nil
	}

	env, err := conn.GetResponse()
	if err != nil {
		return nil, err
	}
	if env.IsBatch || len(env.Responses) != 1 {
		return nil, fmt.Errorf("client: expecting a single response, but found a batch of %d", len(env.Responses))
	}
	resp := env.Responses[0]
	if !bytes.Equal(resp.ID, req.ID) {
		return nil, fmt.Errorf("client: response id %s does not match request id %s", resp.ID, req.ID)
	}
	return &resp, nil
}

func (c *Client) pool(addr string) (*transport.ConnPool[*pooledConn], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if p, ok := c.pools[addr]; ok {
		return p, nil
	}
	p := transport.NewConnPool[*pooledConn](c.poolSize, func(ctx context.Context) (*pooledConn, error) {
		d := net.Dialer{Timeout: c.dialTimeout}
		nc, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("client: dial %s: %w", addr, err)
		}
		c.logger.Debug("connection opened", zap.String("addr", addr))
		rw := bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc))
		return &pooledConn{Conn: nc, rpc: NewConn(rw)}, nil
	})
	c.pools[addr] = p
	return p, nil
}

// breaker returns the circuit breaker of addr, or nil when breaking is disabled.
func (c *Client) breaker(addr string) *gobreaker.CircuitBreaker[*message.Response] {
	if c.breakerFailures == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[addr]; ok {
		return cb
	}
	maxFailures := c.breakerFailures
	cb := gobreaker.NewCircuitBreaker[*message.Response](gobreaker.Settings{
		Name:        addr,
		MaxRequests: 1,
		Timeout:     c.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				zap.String("addr", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
		// A caller giving up says nothing about the instance.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	c.breakers[addr] = cb
	return cb
}

// closedCircuits drops the instances whose circuit is open, unless that
// would leave none.
func (c *Client) closedCircuits(instances []registry.ServiceInstance) []registry.ServiceInstance {
	if c.breakerFailures == 0 {
		return instances
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	usable := make([]registry.ServiceInstance, 0, len(instances))
	for _, inst := range instances {
		if cb, ok := c.breakers[inst.Addr]; ok && cb.State() == gobreaker.StateOpen {
			continue
		}
		usable = append(usable, inst)
	}
	if len(usable) == 0 {
		return instances
	}
	return usable
}

// Close closes every pooled connection. Calls in flight finish with their
// connection, which is then closed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.discovery != nil {
		c.discovery.close()
	}
	var errs []error
	for addr, p := range c.pools {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.pools, addr)
	}
	return errors.Join(errs...)
}
