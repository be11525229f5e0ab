package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replistore/crdb/pkg/rconfig"
)

func TestNewLocalStore(t *testing.T) {
	t.Run("CreatesMissingDirectory", func(t *testing.T) {
		tempDir := t.TempDir()
		p := filepath.Join(tempDir, "repos")

		store, err := NewLocalStore(p)
		require.NoError(t, err)
		require.NotNil(t, store)

		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestLocalStore_SaveLoad(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewLocalStore(tempDir)
	require.NoError(t, err)
	ctx := context.Background()

	content := []byte("snapshot bytes")
	require.NoError(t, store.Save(ctx, "repo-1", "snapshot", content))

	data, err := store.Load(ctx, "repo-1", "snapshot")
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestLocalStore_LoadMissing(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewLocalStore(tempDir)
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "repo-1", "missing")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLocalStore_Delete(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewLocalStore(tempDir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "repo-1", "snapshot", []byte("x")))
	require.NoError(t, store.Delete(ctx, "repo-1", "snapshot"))

	exists, err := store.Exists(ctx, "repo-1", "snapshot")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting an already-absent blob is not an error.
	require.NoError(t, store.Delete(ctx, "repo-1", "snapshot"))
}

func TestLocalStore_Exists(t *testing.T) {
	tempDir := t.TempDir()
	store, err := NewLocalStore(tempDir)
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "repo-1", "snapshot")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Save(ctx, "repo-1", "snapshot", []byte("x")))

	exists, err = store.Exists(ctx, "repo-1", "snapshot")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestNewFactory_Local(t *testing.T) {
	tempDir := t.TempDir()
	store, err := New(&rconfig.KVStoreConfig{Type: "local", LocalPath: tempDir})
	require.NoError(t, err)
	_, ok := store.(*LocalStore)
	assert.True(t, ok)
}

func TestNewFactory_DefaultsToLocal(t *testing.T) {
	tempDir := t.TempDir()
	store, err := New(&rconfig.KVStoreConfig{LocalPath: tempDir})
	require.NoError(t, err)
	_, ok := store.(*LocalStore)
	assert.True(t, ok)
}
