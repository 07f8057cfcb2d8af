package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	var kv KVStore = NewMemoryStore()

	require.NoError(t, kv.SetValue(ctx, "cti:snapshot:2025-01-02-000000", "b"))
	require.NoError(t, kv.SetValueWithTTL(ctx, "cti:snapshot:2025-01-01-000000", "a", 60))
	require.NoError(t, kv.SetValue(ctx, "cti:history:0000000001", "h"))

	v, err := kv.GetValue(ctx, "cti:snapshot:2025-01-01-000000")
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	keys, err := kv.ListKeys(ctx, "cti:snapshot:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"cti:snapshot:2025-01-01-000000", "cti:snapshot:2025-01-02-000000"}, keys)

	require.NoError(t, kv.DeleteValue(ctx, "cti:history:0000000001"))
	_, err = kv.GetValue(ctx, "cti:history:0000000001")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, kv.Close())
}

func TestMemoryStoreListKeysMatchesLikeKEYS(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	for _, k := range []string{"cti:snapshot:team/a", "cti:snapshot:nested:b", "cti:snapshot:c", "cti:apikey:x"} {
		require.NoError(t, kv.SetValue(ctx, k, "v"))
	}

	keys, err := kv.ListKeys(ctx, "cti:snapshot:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"cti:snapshot:c", "cti:snapshot:nested:b", "cti:snapshot:team/a"}, keys)

	keys, err = kv.ListKeys(ctx, "cti:snapshot:?")
	require.NoError(t, err)
	assert.Equal(t, []string{"cti:snapshot:c"}, keys)
}
