package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// StaticRegistry is an in-process Registry for deployments without etcd and
// for tests. TTLs are ignored.
type StaticRegistry struct {
	mu       sync.Mutex
	services map[string][]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

// NewStaticRegistry returns a registry preloaded with services.
func NewStaticRegistry(services map[string][]ServiceInstance) *StaticRegistry {
	r := &StaticRegistry{
		services: make(map[string][]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
	for name, instances := range services {
		r.services[name] = slices.Clone(instances)
	}
	return r
}

// Register adds or replaces the instance with the same address.
func (r *StaticRegistry) Register(_ context.Context, serviceName string, instance ServiceInstance, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := slices.DeleteFunc(r.services[serviceName], func(i ServiceInstance) bool {
		return i.Addr == instance.Addr
	})
	r.services[serviceName] = append(list, instance)
	r.notify(serviceName)
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, serviceName, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.services[serviceName] = slices.DeleteFunc(r.services[serviceName], func(i ServiceInstance) bool {
		return i.Addr == addr
	})
	r.notify(serviceName)
	return nil
}

func (r *StaticRegistry) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.services[serviceName]
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoInstances, serviceName)
	}
	return slices.Clone(list), nil
}

func (r *StaticRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	r.mu.Lock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		r.watchers[serviceName] = slices.DeleteFunc(r.watchers[serviceName], func(c chan []ServiceInstance) bool {
			return c == ch
		})
		close(ch)
	}()
	return ch
}

// notify must be called with mu held. A watcher that has not drained its
// previous update only sees the latest list.
func (r *StaticRegistry) notify(serviceName string) {
	snapshot := slices.Clone(r.services[serviceName])
	for _, ch := range r.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
