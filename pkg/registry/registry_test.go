package registry_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parolabs/governor/pkg/registry"
)

type stubResolver struct {
	addresses map[string]string
	err       error
}

func (r *stubResolver) Resolve(module string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if address, ok := r.addresses[module]; ok {
		return address, nil
	}
	return "", errors.New("unknown module")
}

func TestResolve(t *testing.T) {
	t.Run("static addresses without upstream", func(t *testing.T) {
		r := registry.NewRegistry(nil, map[string]string{"oracle": "http://a"}, nil)

		address, err := r.Resolve("oracle")
		require.NoError(t, err)
		assert.Equal(t, "http://a", address)

		_, err = r.Resolve("unknown")
		assert.ErrorIs(t, err, registry.ErrModuleNotFound)
	})

	t.Run("fresh upstream answer refreshes the cache", func(t *testing.T) {
		upstream := &stubResolver{addresses: map[string]string{"oracle": "http://new"}}
		r := registry.NewRegistry(upstream, map[string]string{"oracle": "http://old"}, nil)

		address, err := r.Resolve("oracle")
		require.NoError(t, err)
		assert.Equal(t, "http://new", address)

		// The upstream goes down; the refreshed address survives.
		upstream.err = errors.New("upstream down")
		address, err = r.Resolve("oracle")
		require.NoError(t, err)
		assert.Equal(t, "http://new", address)
	})

	t.Run("upstream failure falls back to last known", func(t *testing.T) {
		upstream := &stubResolver{err: errors.New("upstream down")}
		r := registry.NewRegistry(upstream, map[string]string{"oracle": "http://old"}, nil)

		address, err := r.Resolve("oracle")
		require.NoError(t, err)
		assert.Equal(t, "http://old", address)

		_, err = r.Resolve("unknown")
		assert.ErrorIs(t, err, registry.ErrModuleNotFound)
	})

	t.Run("register records directly", func(t *testing.T) {
		r := registry.NewRegistry(nil, nil, nil)
		r.Register("vault", "http://vault")

		address, err := r.Resolve("vault")
		require.NoError(t, err)
		assert.Equal(t, "http://vault", address)
		assert.Equal(t, map[string]string{"vault": "http://vault"}, r.Known())
	})
}
