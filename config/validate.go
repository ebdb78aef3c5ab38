package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg and reports every problem found as a *ValidationError.
func Validate(cfg *Config) error {
	ve := &ValidationError{}

	switch cfg.Server.Network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		ve.Add("server.network must be tcp, tcp4, tcp6 or unix, got %q", cfg.Server.Network)
	}
	if cfg.Server.Address == "" {
		ve.Add("server.address is required")
	} else if strings.HasPrefix(cfg.Server.Network, "tcp") {
		if _, _, err := net.SplitHostPort(cfg.Server.Address); err != nil {
			ve.Add("server.address: %v", err)
		}
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		ve.Add("server.shutdown_timeout must be > 0")
	}

	if cfg.Registry.LeaseTTL <= 0 {
		ve.Add("registry.lease_ttl must be > 0")
	}
	for service, addrs := range cfg.Registry.Static {
		if len(addrs) == 0 {
			ve.Add("registry.static.%s has no addresses", service)
		}
	}

	if cfg.Client.PoolSize <= 0 {
		ve.Add("client.pool_size must be > 0")
	}
	switch cfg.Client.Balancer {
	case "round_robin", "weighted_random", "consistent_hash":
	default:
		ve.Add("client.balancer must be round_robin, weighted_random or consistent_hash, got %q", cfg.Client.Balancer)
	}
	if cfg.Client.CallTimeout < 0 {
		ve.Add("client.call_timeout must be >= 0")
	}
	if cfg.Client.Breaker.MaxFailures > 0 && cfg.Client.Breaker.Timeout <= 0 {
		ve.Add("client.breaker.timeout must be > 0 when max_failures is set")
	}

	if cfg.Middleware.Timeout < 0 {
		ve.Add("middleware.timeout must be >= 0")
	}
	if cfg.Middleware.RateLimit < 0 {
		ve.Add("middleware.rate_limit must be >= 0")
	}
	if cfg.Middleware.RateLimit > 0 && cfg.Middleware.RateBurst <= 0 {
		ve.Add("middleware.rate_burst must be > 0 when rate_limit is set")
	}

	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		ve.Add("logger.level must be debug, info, warn or error, got %q", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "json", "console":
	default:
		ve.Add("logger.format must be json or console, got %q", cfg.Logger.Format)
	}

	if cfg.Tracer.Enabled {
		switch cfg.Tracer.Exporter {
		case "stdout", "noop", "":
		default:
			ve.Add("tracer.exporter must be stdout or noop, got %q", cfg.Tracer.Exporter)
		}
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}
