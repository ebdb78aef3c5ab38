package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewStaticRegistry(map[string][]ServiceInstance{
		"Arith": {{Addr: "127.0.0.1:8001"}},
	})

	instances, err := reg.Discover(ctx, "Arith")
	require.NoError(t, err)
	assert.Equal(t, []ServiceInstance{{Addr: "127.0.0.1:8001"}}, instances)

	require.NoError(t, reg.Register(ctx, "Arith", ServiceInstance{Addr: "127.0.0.1:8002", Weight: 3}, 0))
	// Re-registering an address replaces it.
	require.NoError(t, reg.Register(ctx, "Arith", ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5}, 0))

	instances, err = reg.Discover(ctx, "Arith")
	require.NoError(t, err)
	assert.Equal(t, []ServiceInstance{
		{Addr: "127.0.0.1:8001"},
		{Addr: "127.0.0.1:8002", Weight: 5},
	}, instances)

	require.NoError(t, reg.Deregister(ctx, "Arith", "127.0.0.1:8001"))
	require.NoError(t, reg.Deregister(ctx, "Arith", "127.0.0.1:8002"))

	_, err = reg.Discover(ctx, "Arith")
	assert.ErrorIs(t, err, ErrNoInstances)
}

func TestStaticRegistryDiscoverReturnsCopy(t *testing.T) {
	reg := NewStaticRegistry(map[string][]ServiceInstance{
		"Arith": {{Addr: "a"}},
	})

	instances, err := reg.Discover(context.Background(), "Arith")
	require.NoError(t, err)
	instances[0].Addr = "mutated"

	again, err := reg.Discover(context.Background(), "Arith")
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Addr)
}

func TestStaticRegistryWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := NewStaticRegistry(nil)

	updates := reg.Watch(ctx, "Arith")

	require.NoError(t, reg.Register(context.Background(), "Arith", ServiceInstance{Addr: "a"}, 0))
	require.NoError(t, reg.Register(context.Background(), "Arith", ServiceInstance{Addr: "b"}, 0))

	// Only the latest list is kept for a slow watcher.
	select {
	case got := <-updates:
		assert.Equal(t, []ServiceInstance{{Addr: "a"}, {Addr: "b"}}, got)
	case <-time.After(time.Second):
		t.Fatal("no watch update")
	}

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-updates
		return !ok
	}, time.Second, 10*time.Millisecond)
}
