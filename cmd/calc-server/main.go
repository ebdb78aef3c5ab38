// Command calc-server serves the calc methods over TCP.
//
// Usage:
//
//	calc-server [-config config.yaml]
//
// JSONRPC_* environment variables override the file. With registry
// endpoints configured, the Calculator service is announced in etcd.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mini-jsonrpc/calc"
	"mini-jsonrpc/config"
	"mini-jsonrpc/logging"
	"mini-jsonrpc/middleware"
	"mini-jsonrpc/registry"
	"mini-jsonrpc/server"
	"mini-jsonrpc/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracing.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	var reg registry.Registry
	if len(cfg.Registry.Endpoints) > 0 {
		r, closeReg, err := registry.Open(cfg.Registry, log)
		if err != nil {
			return fmt.Errorf("registry: %w", err)
		}
		defer closeReg()
		reg = r
	}

	srv := server.NewServer(
		server.WithLogger(log),
		server.WithLeaseTTL(cfg.Registry.LeaseTTL),
	)
	useMiddlewares(srv, cfg.Middleware, log)
	if err := calc.Mount(srv, calc.New(log)); err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(cfg.Server.Network, cfg.Server.Address, cfg.Server.AdvertiseAddr, reg)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownErr := srv.Shutdown(cfg.Server.ShutdownTimeout)
	return errors.Join(shutdownErr, <-errc)
}

// useMiddlewares installs the middlewares enabled in cfg. Tracing runs
// outermost so that rejected calls still get a span.
func useMiddlewares(srv *server.Server, cfg config.MiddlewareConfig, log *zap.Logger) {
	srv.Use(middleware.Tracing(tracing.Tracer()))
	srv.Use(middleware.Logging(log))
	if cfg.RateLimit > 0 {
		srv.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.Timeout > 0 {
		srv.Use(middleware.Timeout(cfg.Timeout))
	}
}
