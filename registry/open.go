package registry

import (
	"go.uber.org/zap"

	"mini-jsonrpc/config"
)

// Open returns the registry described by cfg and a function releasing it.
// Configured etcd endpoints select an EtcdRegistry; otherwise a
// StaticRegistry is seeded from cfg.Static.
func Open(cfg config.RegistryConfig, logger *zap.Logger) (Registry, func() error, error) {
	if len(cfg.Endpoints) > 0 {
		reg, err := NewEtcdRegistry(cfg.Endpoints,
			WithDialTimeout(cfg.DialTimeout),
			WithEtcdLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		return reg, reg.Close, nil
	}

	services := make(map[string][]ServiceInstance, len(cfg.Static))
	for name, addrs := range cfg.Static {
		for _, addr := range addrs {
			services[name] = append(services[name], ServiceInstance{Addr: addr})
		}
	}
	return NewStaticRegistry(services), func() error { return nil }, nil
}
