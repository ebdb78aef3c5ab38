package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mini-jsonrpc/config"
)

func TestOpenStatic(t *testing.T) {
	reg, closeFn, err := Open(config.RegistryConfig{
		Static: map[string][]string{"Calculator": {"127.0.0.1:7070", "127.0.0.1:7071"}},
	}, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()

	require.IsType(t, &StaticRegistry{}, reg)
	instances, err := reg.Discover(context.Background(), "Calculator")
	require.NoError(t, err)
	assert.Equal(t, []ServiceInstance{{Addr: "127.0.0.1:7070"}, {Addr: "127.0.0.1:7071"}}, instances)

	_, err = reg.Discover(context.Background(), "Other")
	assert.ErrorIs(t, err, ErrNoInstances)
}
