package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronovar/chronovar/internal/registry"
	"github.com/chronovar/chronovar/slice"
)

func TestGetOrCreateReturnsSameInstanceForSameName(t *testing.T) {
	r := registry.New()
	a := registry.GetOrCreate(r, "antival", slice.New(-1))
	b := registry.GetOrCreate(r, "antival", slice.New(999))
	require.Same(t, a, b)
	require.Equal(t, 1, r.Len())
}

func TestGetOrCreateDistinguishesNames(t *testing.T) {
	r := registry.New()
	antival := registry.GetOrCreate(r, "antival", slice.New(-1))
	temp := registry.GetOrCreate(r, "temp", slice.New(0))
	require.NotEqual(t, antival.ID(), temp.ID())
	require.Equal(t, 2, r.Len())
}

func TestLookupMissIsFalse(t *testing.T) {
	r := registry.New()
	_, ok := registry.Lookup[int](r, "missing")
	require.False(t, ok)
}

func TestAllEnumeratesEveryVariable(t *testing.T) {
	r := registry.New()
	registry.GetOrCreate(r, "a", slice.New(0))
	registry.GetOrCreate(r, "b", slice.New("x"))
	require.Len(t, r.All(), 2)
}
