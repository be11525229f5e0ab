package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewGormStore(GormConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	return store
}

func TestGormStore_SaveLoad(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "repo-1", "snapshot", []byte("v1")))

	data, err := store.Load(ctx, "repo-1", "snapshot")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data)
}

func TestGormStore_SaveOverwrites(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "repo-1", "snapshot", []byte("v1")))
	require.NoError(t, store.Save(ctx, "repo-1", "snapshot", []byte("v2")))

	data, err := store.Load(ctx, "repo-1", "snapshot")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestGormStore_LoadMissing(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Load(context.Background(), "repo-1", "missing")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGormStore_DeleteAndExists(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "repo-1", "snapshot", []byte("v1")))
	exists, err := store.Exists(ctx, "repo-1", "snapshot")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, "repo-1", "snapshot"))
	exists, err = store.Exists(ctx, "repo-1", "snapshot")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGormStore_NamespacesAreIndependent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "repo-1", "snapshot", []byte("a")))
	require.NoError(t, store.Save(ctx, "repo-2", "snapshot", []byte("b")))

	a, err := store.Load(ctx, "repo-1", "snapshot")
	require.NoError(t, err)
	b, err := store.Load(ctx, "repo-2", "snapshot")
	require.NoError(t, err)

	assert.Equal(t, []byte("a"), a)
	assert.Equal(t, []byte("b"), b)
}
