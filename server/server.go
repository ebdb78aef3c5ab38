// Package server implements the responder side of JSON-RPC 2.0 over a byte
// stream, and a TCP server built on it.
//
// Request processing pipeline:
//
//	Accept conn → serveConn (one goroutine per connection, one message at a time)
//	  → Conn.GetRequest → Middleware Chain → Services.Dispatch (reflect.Call) → Conn.Response
//
// Requests inside a batch are dispatched concurrently; the batch response
// keeps call order.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mini-jsonrpc/codec"
	"mini-jsonrpc/message"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/registry"
)

// DefaultLeaseTTL is the registry TTL, in seconds, used unless WithLeaseTTL is given.
const DefaultLeaseTTL = 10

// Server accepts connections and answers the requests they carry.
type Server struct {
	services    *Services
	logger      *zap.Logger
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(middleware(...(services.Dispatch)))
	leaseTTL    int64

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup // Tracks live connections for graceful shutdown
	shutdown atomic.Bool

	registry registry.Registry // nil when not using discovery
	// advertiseAddr is the address published in the registry. It differs from
	// the listen address because ":8080" is not routable for clients.
	advertiseAddr string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithLeaseTTL sets the registry lease TTL in seconds.
func WithLeaseTTL(ttl int64) Option {
	return func(s *Server) { s.leaseTTL = ttl }
}

// NewServer creates a server with no services.
func NewServer(opts ...Option) *Server {
	s := &Server{
		services: NewServices(),
		logger:   zap.NewNop(),
		leaseTTL: DefaultLeaseTTL,
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register exposes the methods of rcvr as "Type.Method". See Services.Register.
func (s *Server) Register(rcvr any) error {
	return s.services.Register(rcvr)
}

// Handle routes method to d.
func (s *Server) Handle(method string, d Dispatcher) {
	s.services.Handle(method, d)
}

// Use appends a middleware. Middlewares run in the order they are added and
// must be added before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Serve listens on address and serves until Shutdown. When reg is non-nil,
// every registered service is announced at advertiseAddr.
func (s *Server) Serve(network, address, advertiseAddr string, reg registry.Registry) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.ServeListener(ln, advertiseAddr, reg)
}

// ServeListener is Serve on an existing listener. An empty advertiseAddr
// defaults to the listener address.
func (s *Server) ServeListener(ln net.Listener, advertiseAddr string, reg registry.Registry) error {
	s.handler = middleware.Chain(s.middlewares...)(s.services.Dispatch)

	if advertiseAddr == "" {
		advertiseAddr = ln.Addr().String()
	}

	s.mu.Lock()
	s.listener = ln
	s.advertiseAddr = advertiseAddr
	s.registry = reg
	s.mu.Unlock()

	if reg != nil {
		for _, name := range s.services.Names() {
			err := reg.Register(context.Background(), name, registry.ServiceInstance{Addr: advertiseAddr}, s.leaseTTL)
			if err != nil {
				ln.Close()
				return fmt.Errorf("server: register %s: %w", name, err)
			}
		}
	}

	s.logger.Info("serving", zap.Stringer("addr", ln.Addr()), zap.String("advertise", advertiseAddr))
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Close from Shutdown surfaces here as an Accept error.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}
		s.track(conn)
		go s.serveConn(conn)
	}
}

// Addr returns the listen address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
	s.wg.Done()
}

// serveConn runs the half-duplex exchange for one connection.
func (s *Server) serveConn(nc net.Conn) {
	defer s.untrack(nc)
	defer nc.Close()

	log := s.logger.With(zap.Stringer("remote", nc.RemoteAddr()))
	log.Debug("connection accepted")

	rw := bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc))
	if err := s.ServeConn(context.Background(), NewConn(rw), log); err != nil {
		log.Debug("connection closed", zap.Error(err))
		return
	}
	log.Debug("connection closed")
}

// ServeConn answers requests read from conn until the peer closes the stream,
// a framing or I/O failure occurs, or the server is shut down. It returns nil
// on a clean close.
//
// Envelope failures (invalid version, invalid request) are answered with an
// error response and the exchange continues. Framing failures are answered
// with a best-effort parse error, then the exchange ends, since the stream
// position is lost.
func (s *Server) ServeConn(ctx context.Context, conn *Conn, log *zap.Logger) error {
	handler := s.handler
	if handler == nil {
		handler = middleware.Chain(s.middlewares...)(s.services.Dispatch)
	}
	d := DispatcherFunc(handler)

	for {
		req, err := conn.GetRequest()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil && s.shutdown.Load():
			// Woken up by the read deadline set in Shutdown.
			return nil
		case isFramingFailure(err):
			log.Warn("unreadable message", zap.Error(err))
			var ioErr *codec.IOError
			if !errors.As(err, &ioErr) {
				conn.Response(conn.ErrorResponse(err))
			}
			return err
		case err != nil:
			log.Info("invalid request", zap.Error(err))
			if werr := conn.Response(conn.ErrorResponse(err)); werr != nil {
				return werr
			}
			continue
		}

		if err := s.answer(ctx, conn, d, req); err != nil {
			log.Warn("write failed", zap.Error(err))
			return err
		}
		if s.shutdown.Load() {
			return nil
		}
	}
}

func (s *Server) answer(ctx context.Context, conn *Conn, d Dispatcher, req message.ClientRequest) error {
	if !req.IsBatch {
		resp := d.Dispatch(ctx, req.Requests[0])
		if resp == nil || req.Requests[0].IsNotification() {
			return nil
		}
		return conn.Response(*resp)
	}

	if len(req.Requests) == 0 {
		return conn.Response(message.NewErrorResponse(message.NewInvalidRequest("empty batch"), nil))
	}
	resps := DispatchBatch(ctx, d, req.Requests)
	if len(resps) == 0 {
		return nil
	}
	return conn.BatchResponse(resps)
}

func isFramingFailure(err error) bool {
	var parseErr *codec.ParseError
	var ioErr *codec.IOError
	return errors.As(err, &parseErr) || errors.As(err, &ioErr)
}

// Shutdown performs graceful shutdown:
//  1. Deregister every service (clients stop routing here)
//  2. Stop accepting connections
//  3. Let each connection finish the exchange in progress, up to timeout
//
// Connections still open at the deadline are closed.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	reg, addr, ln := s.registry, s.advertiseAddr, s.listener
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if reg != nil {
		for _, name := range s.services.Names() {
			if err := reg.Deregister(ctx, name, addr); err != nil {
				errs = append(errs, err)
			}
		}
	}

	// Set the flag before closing so Serve sees the Accept error as intentional.
	s.shutdown.Store(true)
	if ln != nil {
		ln.Close()
	}

	// Idle connections are blocked in a read; a read deadline wakes them up.
	// A connection in the middle of a call still gets to write its response.
	s.mu.Lock()
	for conn := range s.conns {
		conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		errs = append(errs, fmt.Errorf("server: timeout waiting for connections to finish"))
	}
	return errors.Join(errs...)
}
