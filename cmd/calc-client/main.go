// Command calc-client calls calc-server.
//
// By default it sends one raw request to -addr and prints both messages:
//
//	calc-client -method echo -params '["ping"]'
//
// With -discover, the call goes through the registry and balancer named in
// the config, so the method must be qualified ("Calculator.Add").
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mini-jsonrpc/client"
	"mini-jsonrpc/codec"
	"mini-jsonrpc/config"
	"mini-jsonrpc/loadbalance"
	"mini-jsonrpc/logging"
	"mini-jsonrpc/message"
	"mini-jsonrpc/registry"
)

type options struct {
	configPath string
	addr       string
	method     string
	params     string
	id         string
	notify     bool
	discover   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "config.yaml", "path to the YAML config file")
	flag.StringVar(&opts.addr, "addr", "", "server address (default: server.address from the config)")
	flag.StringVar(&opts.method, "method", "echo", "method to call")
	flag.StringVar(&opts.params, "params", `["ping"]`, "params as JSON, empty for none")
	flag.StringVar(&opts.id, "id", "1", "request id as JSON")
	flag.BoolVar(&opts.notify, "notify", false, "send a notification and expect no response")
	flag.BoolVar(&opts.discover, "discover", false, "find the server through the configured registry")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	var params message.Value
	if opts.params != "" {
		if !json.Valid([]byte(opts.params)) {
			return fmt.Errorf("params %q are not valid JSON", opts.params)
		}
		params = message.Value(opts.params)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.discover {
		return callDiscovered(ctx, cfg, log, opts, params)
	}

	addr := opts.addr
	if addr == "" {
		addr = cfg.Server.Address
	}
	return callRaw(ctx, addr, opts, params)
}

// callRaw runs one exchange on a fresh connection and prints both sides.
func callRaw(ctx context.Context, addr string, opts options, params message.Value) error {
	var req message.Request
	if opts.notify {
		req = message.NewNotification(opts.method, params)
	} else {
		if !json.Valid([]byte(opts.id)) {
			return fmt.Errorf("id %q is not valid JSON", opts.id)
		}
		req = message.NewRequest(opts.method, params, message.Value(opts.id))
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer nc.Close()
	if deadline, ok := ctx.Deadline(); ok {
		nc.SetDeadline(deadline)
	}

	body, err := codec.EncodeRequest(req)
	if err != nil {
		return err
	}
	fmt.Printf("--> %s\n", body)

	conn := client.NewConn(bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc)))
	if err := conn.Request(req); err != nil {
		return err
	}
	if req.IsNotification() {
		return nil
	}

	resp, err := conn.GetResponse()
	if err != nil {
		return err
	}
	if resp.IsBatch {
		body, err = codec.EncodeResponses(resp.Responses)
	} else {
		body, err = codec.EncodeResponse(resp.Responses[0])
	}
	if err != nil {
		return err
	}
	fmt.Printf("<-- %s\n", body)
	return nil
}

// callDiscovered calls through a Client and prints the result.
func callDiscovered(ctx context.Context, cfg *config.Config, log *zap.Logger, opts options, params message.Value) error {
	reg, closeReg, err := registry.Open(cfg.Registry, log)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	defer closeReg()

	bal, err := loadbalance.New(cfg.Client.Balancer)
	if err != nil {
		return err
	}

	clientOpts := []client.Option{
		client.WithLogger(log),
		client.WithPoolSize(cfg.Client.PoolSize),
		client.WithDialTimeout(cfg.Client.DialTimeout),
		client.WithCallTimeout(cfg.Client.CallTimeout),
		client.WithCircuitBreaker(cfg.Client.Breaker.MaxFailures, cfg.Client.Breaker.Timeout),
	}
	if cfg.Client.Watch {
		clientOpts = append(clientOpts, client.WithWatch())
	}
	c := client.NewClient(reg, bal, clientOpts...)
	defer c.Close()

	if opts.notify {
		return c.Notify(ctx, opts.method, params)
	}
	var result json.RawMessage
	if err := c.Call(ctx, opts.method, params, &result); err != nil {
		return err
	}
	fmt.Printf("%s\n", result)
	return nil
}
