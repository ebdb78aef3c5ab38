// Package registry tracks which addresses serve which JSON-RPC service.
//
// A service is the part of a method name before its last dot: "Arith.Add" is
// served by every instance registered under "Arith".
package registry

import (
	"context"
	"errors"
)

// ErrNoInstances is returned by Discover when a service has no live instance.
var ErrNoInstances = errors.New("registry: no instances available")

// ServiceInstance describes one server offering a service.
type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight,omitempty"` // Relative share for weighted balancing
	Version string `json:"version,omitempty"`
}

// Registry is implemented by service directories.
type Registry interface {
	// Register announces instance under serviceName. ttl is in seconds; the
	// entry outlives the caller by at most ttl once it stops renewing.
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list whenever it changes, until ctx is done.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
