package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/internal/kvstore"
	"github.com/replistore/crdb/internal/repo"
	"github.com/replistore/crdb/internal/wire"
	"github.com/replistore/crdb/pkg/rconfig"
)

func newTestOwner(t *testing.T) (*Owner, kvstore.Store) {
	t.Helper()
	store, err := kvstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	cfg := &rconfig.PersistenceConfig{WorkerCount: 2, FlushInterval: 60, QueueSize: 16}
	return New(cfg, store, nil), store
}

func TestTrackAndMarkDirtyFlushesSnapshot(t *testing.T) {
	owner, store := newTestOwner(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go owner.Start(ctx)

	id := ids.RepoIdFromParts(1, 1)
	r := repo.New(0, nil)
	owner.Track(id, r)

	_, err := r.CreateBranch("main")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ok, _ := store.Exists(context.Background(), repoNamespace, blobKey(id))
		return ok
	}, time.Second, 5*time.Millisecond, "snapshot should be flushed after a local operation")

	data, err := store.Load(context.Background(), repoNamespace, blobKey(id))
	require.NoError(t, err)
	snapshot, err := wire.DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Len(t, snapshot.Branches, 1)
}

func TestLoadRoundTripsPersistedRepo(t *testing.T) {
	owner, _ := newTestOwner(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go owner.Start(ctx)

	id := ids.RepoIdFromParts(2, 2)
	r := repo.New(0, nil)
	owner.Track(id, r)
	_, err := r.CreateBranch("main")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := owner.Load(id)
		return ok
	}, time.Second, 5*time.Millisecond)

	restored, ok := owner.Load(id)
	require.True(t, ok)
	_, err = restored.BranchByName("main")
	assert.NoError(t, err)
}

func TestMarkDirtyDedupesWhilePending(t *testing.T) {
	owner, _ := newTestOwner(t)

	id := ids.RepoIdFromParts(3, 3)
	r := repo.New(0, nil)
	owner.Track(id, r)

	owner.MarkDirty(id)
	owner.mu.Lock()
	_, pending := owner.pending[id]
	owner.mu.Unlock()
	assert.True(t, pending, "first MarkDirty should record a pending flush")

	// A second MarkDirty before the pool has started must not block, since
	// the item is deduplicated rather than enqueued again.
	done := make(chan struct{})
	go func() {
		owner.MarkDirty(id)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("MarkDirty should not block on an already-pending id")
	}
}
