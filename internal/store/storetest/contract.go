// Package storetest is the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/arena-sessions/internal/store"
)

// Run exercises s. Namespaces are prefixed with t.Name() so a shared backend
// can be reused across runs.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	ns := func(n string) string { return t.Name() + "/" + n }

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Get(ctx, ns("a"), "state")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, ns("b"), "state", []byte(`{"v":1}`)))
		got, err := s.Get(ctx, ns("b"), "state")
		require.NoError(t, err)
		assert.Equal(t, `{"v":1}`, string(got))
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, ns("c"), "state", []byte(`1`)))
		require.NoError(t, s.Put(ctx, ns("c"), "state", []byte(`2`)))
		got, err := s.Get(ctx, ns("c"), "state")
		require.NoError(t, err)
		assert.Equal(t, `2`, string(got))
	})

	t.Run("delete one key", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, ns("d"), "state", []byte(`1`)))
		require.NoError(t, s.Put(ctx, ns("d"), "alarm", []byte(`2`)))
		require.NoError(t, s.Delete(ctx, ns("d"), "alarm"))

		_, err := s.Get(ctx, ns("d"), "alarm")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Get(ctx, ns("d"), "state")
		assert.NoError(t, err)
	})

	t.Run("delete all is scoped", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, ns("e1"), "state", []byte(`1`)))
		require.NoError(t, s.Put(ctx, ns("e1"), "alarm", []byte(`1`)))
		require.NoError(t, s.Put(ctx, ns("e2"), "state", []byte(`2`)))

		require.NoError(t, s.DeleteAll(ctx, ns("e1")))

		_, err := s.Get(ctx, ns("e1"), "state")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Get(ctx, ns("e1"), "alarm")
		assert.ErrorIs(t, err, store.ErrNotFound)
		got, err := s.Get(ctx, ns("e2"), "state")
		require.NoError(t, err)
		assert.Equal(t, `2`, string(got))
	})

	t.Run("deleting missing data is not an error", func(t *testing.T) {
		assert.NoError(t, s.Delete(ctx, ns("f"), "nope"))
		assert.NoError(t, s.DeleteAll(ctx, ns("f")))
	})

	t.Run("scan finds key across namespaces", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, ns("g1"), "alarm", []byte(`10`)))
		require.NoError(t, s.Put(ctx, ns("g2"), "alarm", []byte(`20`)))
		require.NoError(t, s.Put(ctx, ns("g3"), "state", []byte(`30`)))

		got, err := s.Scan(ctx, "alarm")
		require.NoError(t, err)
		assert.Equal(t, `10`, string(got[ns("g1")]))
		assert.Equal(t, `20`, string(got[ns("g2")]))
		assert.NotContains(t, got, ns("g3"))
	})

	t.Run("scoped json helpers", func(t *testing.T) {
		sc := store.Scope(s, ns("h"))
		require.NoError(t, sc.PutJSON(ctx, "state", map[string]int{"n": 3}))

		var out map[string]int
		require.NoError(t, sc.GetJSON(ctx, "state", &out))
		assert.Equal(t, 3, out["n"])

		require.NoError(t, sc.DeleteAll(ctx))
		assert.ErrorIs(t, sc.GetJSON(ctx, "state", &out), store.ErrNotFound)
	})
}
