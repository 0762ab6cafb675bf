package resultcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCacheStoreLookup(t *testing.T) {
	c := NewMemory(500 * time.Millisecond)
	ctx := context.Background()

	entry := Entry{Value: true, Reason: "TARGETING_MATCH", StoredAt: time.Now().UTC()}
	entry.ExpiresAt = entry.StoredAt.Add(500 * time.Millisecond)

	require.NoError(t, c.Store(ctx, "new_dashboard:abc", entry))

	got, ok, err := c.Lookup(ctx, "new_dashboard:abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, true, got.Value)

	size, err := c.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), size)

	require.NoError(t, c.DeletePrefix(ctx, "new_dashboard"))
	_, ok, err = c.Lookup(ctx, "new_dashboard:abc")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Close(ctx))
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemory(10 * time.Millisecond)
	ctx := context.Background()

	entry := Entry{Value: false, StoredAt: time.Now().UTC()}
	entry.ExpiresAt = entry.StoredAt.Add(10 * time.Millisecond)
	require.NoError(t, c.Store(ctx, "k", entry))

	time.Sleep(20 * time.Millisecond)
	_, ok, err := c.Lookup(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCacheInvalidateAll(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Store(ctx, "a", Entry{Value: 1}))
	require.NoError(t, c.Store(ctx, "b", Entry{Value: 2}))

	require.NoError(t, c.InvalidateAll(ctx))

	size, err := c.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), size)
}

func TestKeyCanonicalizationStripsPrototypeKeys(t *testing.T) {
	withDanger := map[string]any{"role": "admin", "__proto__": map[string]any{"x": 1}}
	without := map[string]any{"role": "admin"}
	require.Equal(t, Key("flag", without), Key("flag", withDanger))
}

func TestKeyOrderIndependence(t *testing.T) {
	a := map[string]any{"role": "admin", "env": "prod"}
	b := map[string]any{"env": "prod", "role": "admin"}
	require.Equal(t, Key("flag", a), Key("flag", b))
}

func TestKeyDistinguishesFlags(t *testing.T) {
	ctx := map[string]any{"role": "admin"}
	require.NotEqual(t, Key("flag_a", ctx), Key("flag_b", ctx))
}
