package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcflow/orchestrator/registry"
)

func TestBaseRegistry_RegisterGetRemove(t *testing.T) {
	r := registry.NewBaseRegistry[int]()

	require.NoError(t, r.Register("a", 1))
	require.Error(t, r.Register("a", 2), "duplicate registration must fail")
	require.Error(t, r.Register("", 3), "empty name must fail")

	v, ok := r.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	require.Equal(t, 1, r.Count())
	require.ElementsMatch(t, []string{"a"}, r.Names())

	require.NoError(t, r.Remove("a"))
	require.Error(t, r.Remove("a"))
	require.Equal(t, 0, r.Count())
}

func TestBaseRegistry_ListAndClear(t *testing.T) {
	r := registry.NewBaseRegistry[string]()
	require.NoError(t, r.Register("x", "vx"))
	require.NoError(t, r.Register("y", "vy"))

	require.ElementsMatch(t, []string{"vx", "vy"}, r.List())

	r.Clear()
	require.Equal(t, 0, r.Count())
	_, ok := r.Get("x")
	require.False(t, ok)
}
