// Package config loads the settings shared by the calculator server and client.
//
// Precedence, lowest first: Defaults, the YAML file, a .env file, the process
// environment (JSONRPC_* variables).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Registry   RegistryConfig   `yaml:"registry"`
	Client     ClientConfig     `yaml:"client"`
	Middleware MiddlewareConfig `yaml:"middleware"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Network         string        `yaml:"network"`
	Address         string        `yaml:"address"`
	AdvertiseAddr   string        `yaml:"advertise_addr"` // Defaults to the listen address
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RegistryConfig selects service discovery. With no etcd endpoints, the
// static instance list is used.
type RegistryConfig struct {
	Endpoints   []string            `yaml:"endpoints"`
	DialTimeout time.Duration       `yaml:"dial_timeout"`
	LeaseTTL    int64               `yaml:"lease_ttl"` // Seconds
	Static      map[string][]string `yaml:"static"`    // Service name → addresses
}

// ClientConfig holds caller settings.
type ClientConfig struct {
	PoolSize    int           `yaml:"pool_size"`
	Balancer    string        `yaml:"balancer"` // round_robin, weighted_random, consistent_hash
	DialTimeout time.Duration `yaml:"dial_timeout"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	Watch       bool          `yaml:"watch"` // Cache instances and follow registry changes
	Breaker     BreakerConfig `yaml:"breaker"`
}

// BreakerConfig sets up a circuit breaker per server instance. Zero
// MaxFailures disables it.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"` // Consecutive failures that open the circuit
	Timeout     time.Duration `yaml:"timeout"`      // Open → half-open
}

// MiddlewareConfig enables server middlewares. Zero values disable them.
type MiddlewareConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"` // Requests per second
	RateBurst int           `yaml:"rate_burst"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout or noop
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Network:         "tcp",
			Address:         "127.0.0.1:7070",
			ShutdownTimeout: 5 * time.Second,
		},
		Registry: RegistryConfig{
			DialTimeout: 5 * time.Second,
			LeaseTTL:    10,
		},
		Client: ClientConfig{
			PoolSize:    4,
			Balancer:    "round_robin",
			DialTimeout: 5 * time.Second,
			CallTimeout: 10 * time.Second,
			Watch:       true,
			Breaker: BreakerConfig{
				Timeout: 30 * time.Second,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "console",
		},
		Tracer: TracerConfig{
			Exporter: "stdout",
		},
	}
}

// Load reads the YAML file at path over Defaults, then applies .env and
// environment overrides and validates the result. A missing file, or an empty
// path, is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// Variables already set in the environment win over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps JSONRPC_* environment variables to config fields.
func ApplyEnvOverrides(cfg *Config) error {
	ve := &ValidationError{}

	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				ve.Add("%s: %v", name, err)
				return
			}
			*dst = d
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				ve.Add("%s: %v", name, err)
				return
			}
			*dst = n
		}
	}

	str("JSONRPC_SERVER_NETWORK", &cfg.Server.Network)
	str("JSONRPC_SERVER_ADDRESS", &cfg.Server.Address)
	str("JSONRPC_SERVER_ADVERTISE_ADDR", &cfg.Server.AdvertiseAddr)
	dur("JSONRPC_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	if v := os.Getenv("JSONRPC_REGISTRY_ENDPOINTS"); v != "" {
		cfg.Registry.Endpoints = strings.Split(v, ",")
	}
	dur("JSONRPC_REGISTRY_DIAL_TIMEOUT", &cfg.Registry.DialTimeout)

	num("JSONRPC_CLIENT_POOL_SIZE", &cfg.Client.PoolSize)
	str("JSONRPC_CLIENT_BALANCER", &cfg.Client.Balancer)
	dur("JSONRPC_CLIENT_CALL_TIMEOUT", &cfg.Client.CallTimeout)
	if v := os.Getenv("JSONRPC_CLIENT_BREAKER_MAX_FAILURES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			ve.Add("JSONRPC_CLIENT_BREAKER_MAX_FAILURES: %v", err)
		} else {
			cfg.Client.Breaker.MaxFailures = uint32(n)
		}
	}

	dur("JSONRPC_MIDDLEWARE_TIMEOUT", &cfg.Middleware.Timeout)

	str("JSONRPC_LOGGER_LEVEL", &cfg.Logger.Level)
	str("JSONRPC_LOGGER_FORMAT", &cfg.Logger.Format)

	if v := os.Getenv("JSONRPC_TRACER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			ve.Add("JSONRPC_TRACER_ENABLED: %v", err)
		} else {
			cfg.Tracer.Enabled = enabled
		}
	}
	str("JSONRPC_TRACER_EXPORTER", &cfg.Tracer.Exporter)

	if ve.HasErrors() {
		return ve
	}
	return nil
}
