package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	raw, meta, err := IssueAPIKey(ctx, s, "dashboard")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, APIKeyPrefix))
	assert.Equal(t, hashKey(raw), meta.ID)
	assert.NotContains(t, meta.Prefix, raw[len(APIKeyPrefix)+8:])

	got, err := ValidateAPIKey(ctx, s, raw)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", got.Label)
	assert.NotEmpty(t, got.LastUsedAt)

	keys, err := ListAPIKeys(ctx, s)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotEmpty(t, keys[0].LastUsedAt)

	require.NoError(t, RevokeAPIKey(ctx, s, meta.ID))
	_, err = ValidateAPIKey(ctx, s, raw)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, RevokeAPIKey(ctx, s, meta.ID), ErrNotFound)
}

func TestValidateAPIKeyRejectsForeignKeys(t *testing.T) {
	_, err := ValidateAPIKey(context.Background(), NewMemoryStore(), "sk_whatever")
	assert.ErrorIs(t, err, ErrNotFound)
}

// revokeAfterRead deletes a key right after it is read, as a concurrent
// RevokeAPIKey would.
type revokeAfterRead struct {
	*MemoryStore
	target string
}

func (r *revokeAfterRead) GetValue(ctx context.Context, key string) (string, error) {
	value, err := r.MemoryStore.GetValue(ctx, key)
	if err == nil && key == r.target {
		_ = r.MemoryStore.DeleteValue(ctx, key)
	}
	return value, err
}

func TestValidateAPIKeyDoesNotResurrectRevokedKey(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	raw, meta, err := IssueAPIKey(ctx, mem, "racy")
	require.NoError(t, err)

	s := &revokeAfterRead{MemoryStore: mem, target: apiKeyStorePrefix + meta.ID}
	_, err = ValidateAPIKey(ctx, s, raw)
	require.NoError(t, err, "the key was valid when read")

	_, err = mem.GetValue(ctx, apiKeyStorePrefix+meta.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = ValidateAPIKey(ctx, s, raw)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreConditionalSets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.SetValueXX(ctx, "k", "1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.GetValue(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err = s.SetValueNX(ctx, "k", "1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.SetValueNX(ctx, "k", "2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.SetValueXX(ctx, "k", "3")
	require.NoError(t, err)
	assert.True(t, ok)
	v, err := s.GetValue(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
}
