package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"mini-jsonrpc/registry"
)

// discovery caches the instance list of each service looked up once and
// keeps it current with Registry.Watch, so calls stop hitting the registry.
type discovery struct {
	registry registry.Registry
	ctx      context.Context // Bounds every watch; canceled by close
	cancel   context.CancelFunc

	mu       sync.Mutex
	services map[string]*watchedService
}

type watchedService struct {
	mu        sync.RWMutex
	instances []registry.ServiceInstance
}

func newDiscovery(reg registry.Registry) *discovery {
	ctx, cancel := context.WithCancel(context.Background())
	return &discovery{
		registry: reg,
		ctx:      ctx,
		cancel:   cancel,
		services: make(map[string]*watchedService),
	}
}

// Discover returns the cached instances of serviceName. The first lookup of a
// service starts its watch and reads the registry.
func (d *discovery) Discover(ctx context.Context, serviceName string) ([]registry.ServiceInstance, error) {
	d.mu.Lock()
	w, ok := d.services[serviceName]
	d.mu.Unlock()
	if ok {
		return w.get(serviceName)
	}

	// Watch before reading so that no change falls between the two.
	wctx, cancel := context.WithCancel(d.ctx)
	updates := d.registry.Watch(wctx, serviceName)
	instances, err := d.registry.Discover(ctx, serviceName)
	if err != nil && !errors.Is(err, registry.ErrNoInstances) {
		cancel()
		return nil, err
	}

	d.mu.Lock()
	if existing, ok := d.services[serviceName]; ok {
		d.mu.Unlock()
		cancel()
		return existing.get(serviceName)
	}
	w = &watchedService{instances: instances}
	d.services[serviceName] = w
	d.mu.Unlock()

	go func() {
		defer cancel()
		for list := range updates {
			w.set(list)
		}
	}()
	return w.get(serviceName)
}

func (d *discovery) close() {
	d.cancel()
}

func (w *watchedService) get(serviceName string) ([]registry.ServiceInstance, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.instances) == 0 {
		return nil, fmt.Errorf("%w: %s", registry.ErrNoInstances, serviceName)
	}
	return slices.Clone(w.instances), nil
}

func (w *watchedService) set(instances []registry.ServiceInstance) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.instances = instances
}
