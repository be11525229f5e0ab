// Package persistence drains mutated repository snapshots to the key-value
// store on a background task, the way §5 describes: "a separate lock-free
// channel drains mutated RepoSnapshots to a background persistence task."
// The core's Repo never blocks on KV I/O; a SnapshotChanged notification
// only enqueues a RepoId, and a fixed pool of workers independently pulls
// ids off that channel and flushes whichever snapshot currently sits
// behind them.
package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/internal/kvstore"
	"github.com/replistore/crdb/internal/ops"
	"github.com/replistore/crdb/internal/repo"
	"github.com/replistore/crdb/internal/wire"
	"github.com/replistore/crdb/pkg/rconfig"
	"github.com/replistore/crdb/pkg/rlog"
	"github.com/replistore/crdb/pkg/rparallel"
	"github.com/replistore/crdb/pkg/rtelemetry"
)

// repoNamespace is the kvstore namespace every repository snapshot is
// persisted under, per §6: "the engine persists each repository under the
// 'repo' namespace at key = repo_id." The key within it is the repo id
// followed by snapshotKey (see blobKey).
const repoNamespace = "repo"

// snapshotKey is the suffix blobKey appends to a repo id to form the
// kvstore key a RepoSnapshot is stored at within the repo namespace.
const snapshotKey = "snapshot"

// Owner tracks every Repo a coordinator process currently serves and
// drains dirty ones to store through a DrainPool, deduplicating pending
// flushes so a repo under heavy local edit traffic enqueues at most once
// until a worker picks up its pending flush.
type Owner struct {
	mu      sync.Mutex
	repos   map[ids.RepoId]*repo.Repo
	pending map[ids.RepoId]struct{}

	pool          *rparallel.DrainPool[ids.RepoId]
	store         kvstore.Store
	logger        rlog.Logger
	flushInterval time.Duration
}

// New builds an Owner that flushes through store, sized by cfg.
func New(cfg *rconfig.PersistenceConfig, store kvstore.Store, logger rlog.Logger) *Owner {
	if logger == nil {
		logger = rlog.NullLogger{}
	}

	flushInterval := time.Duration(cfg.FlushInterval) * time.Second
	if flushInterval <= 0 {
		flushInterval = 2 * time.Second
	}

	o := &Owner{
		repos:         map[ids.RepoId]*repo.Repo{},
		pending:       map[ids.RepoId]struct{}{},
		store:         store,
		logger:        logger,
		flushInterval: flushInterval,
	}
	o.pool = rparallel.NewDrainPool(cfg.QueueSize, cfg.WorkerCount, o.flush, o.onFlushError)
	return o
}

// Start launches the drain pool's workers and the periodic full-resync
// ticker, and blocks until ctx is cancelled.
func (o *Owner) Start(ctx context.Context) {
	o.pool.Start(ctx)

	ticker := time.NewTicker(o.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.pool.Close()
			o.pool.Wait()
			return
		case <-ticker.C:
			// A periodic safety net: re-enqueue every tracked repo so a
			// MarkDirty notification that raced a worker marking itself
			// no-longer-pending can't leave a dirty snapshot unflushed
			// indefinitely.
			o.markAllDirty()
		}
	}
}

// Track registers r under id so the drain pool can look its live snapshot
// up by id and subscribes an observer that enqueues id whenever r's
// snapshot changes.
func (o *Owner) Track(id ids.RepoId, r *repo.Repo) {
	o.mu.Lock()
	o.repos[id] = r
	o.mu.Unlock()

	r.Subscribe(&dirtyObserver{id: id, owner: o})
}

// Load reads a persisted snapshot back from the store and restores a Repo
// around it, for SyncRepo/PublishOperations (via Registry.Lookup) against
// a repo the coordinator's in-memory registry does not hold (e.g. after a
// restart).
func (o *Owner) Load(id ids.RepoId) (*repo.Repo, bool) {
	data, err := o.store.Load(context.Background(), repoNamespace, blobKey(id))
	if err != nil {
		return nil, false
	}

	snapshot, err := wire.DecodeSnapshot(data)
	if err != nil {
		o.logger.Warn("persistence: failed to decode snapshot for repo %s: %v", id, err)
		return nil, false
	}

	r := repo.Restore(ids.ReplicaId(0), snapshot, o.logger.WithField("repo", id.String()))
	return r, true
}

// MarkDirty enqueues id for flushing unless a flush for it is already
// pending, implementing the "drains mutated RepoSnapshots" dedup §5
// implies (otherwise every single operation would enqueue its own flush).
func (o *Owner) MarkDirty(id ids.RepoId) {
	o.mu.Lock()
	if _, already := o.pending[id]; already {
		o.mu.Unlock()
		return
	}
	o.pending[id] = struct{}{}
	o.mu.Unlock()

	o.pool.Enqueue(id)
}

func (o *Owner) markAllDirty() {
	o.mu.Lock()
	dirty := make([]ids.RepoId, 0, len(o.repos))
	for id := range o.repos {
		dirty = append(dirty, id)
	}
	o.mu.Unlock()

	for _, id := range dirty {
		o.MarkDirty(id)
	}
}

// flush is the DrainPool's handle func: look the repo up by id, encode its
// current snapshot, and save it, clearing the pending flag before doing
// the I/O so a SnapshotChanged that arrives mid-flush schedules a follow-up
// flush rather than being dropped.
func (o *Owner) flush(ctx context.Context, id ids.RepoId) error {
	ctx, span := rtelemetry.StartSpan(ctx, "persistence", "flush_snapshot")
	defer span.End()

	o.mu.Lock()
	r, ok := o.repos[id]
	delete(o.pending, id)
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("persistence: repo %s is no longer tracked", id)
	}

	data, err := wire.EncodeSnapshot(r.Snapshot())
	if err != nil {
		return fmt.Errorf("persistence: encode snapshot for repo %s: %w", id, err)
	}

	if err := o.store.Save(ctx, repoNamespace, blobKey(id), data); err != nil {
		return fmt.Errorf("persistence: save snapshot for repo %s: %w", id, err)
	}
	return nil
}

func (o *Owner) onFlushError(id ids.RepoId, err error) {
	o.logger.Error("persistence: failed to flush repo %s: %v", id, err)
}

func blobKey(id ids.RepoId) string {
	return id.String() + "/" + snapshotKey
}

// dirtyObserver adapts Owner to repo.Observer: every SnapshotChanged
// notification (including the one a LocalOperation notification also
// fires) enqueues the owning repo for a flush.
type dirtyObserver struct {
	id    ids.RepoId
	owner *Owner
}

func (d *dirtyObserver) LocalOperation(_ ops.Operation) {}

func (d *dirtyObserver) SnapshotChanged() {
	d.owner.MarkDirty(d.id)
}
