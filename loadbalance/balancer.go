// Package loadbalance picks the instance that receives a call.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  instances with different capacity
//   - ConsistentHash:  affinity, the same key lands on the same instance
package loadbalance

import (
	"errors"
	"fmt"

	"mini-jsonrpc/registry"
)

// ErrNoInstances is returned by every Balancer when the list is empty.
var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer selects one instance per call. Implementations are goroutine-safe.
type Balancer interface {
	// Pick selects one of instances. key identifies the call (the client
	// passes the method name); strategies without affinity ignore it.
	Pick(key string, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name, as accepted by New.
	Name() string
}

// New returns the balancer called name: "round_robin", "weighted_random" or
// "consistent_hash".
func New(name string) (Balancer, error) {
	switch name {
	case "round_robin", "":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown strategy %q", name)
	}
}
