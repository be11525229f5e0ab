package repo

import (
	"fmt"
	"sort"
	"sync"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/internal/ops"
	"github.com/replistore/crdb/pkg/rerr"
	"github.com/replistore/crdb/pkg/rlog"
)

// Observer receives notifications from a Repo: a locally authored operation
// ready for broadcast/persistence, and a generic "something changed" signal
// for anything that only cares the snapshot moved forward. Per §9 both are
// invoked while the repo mutex is held, which is safe because observers in
// this repo only forward to channels and must never call back into the
// Repo they were registered on.
type Observer interface {
	LocalOperation(op ops.Operation)
	SnapshotChanged()
}

// Repo owns one repository's log behind a single mutex: exactly one writer
// at a time, readers see a stable immutable Revision snapshot because
// Revision clones are cheap (structural sharing in pkg/btree and pkg/rope).
type Repo struct {
	mu        sync.Mutex
	replicaId ids.ReplicaId
	snapshot  *RepoSnapshot
	observers []Observer
	logger    rlog.Logger
}

// BranchInfo is a listing row returned by Branches.
type BranchInfo struct {
	Id   ids.OperationId
	Name string
	Head ids.RevisionId
}

// New returns an empty repository log authored by replicaId. The creator
// of a repo is always replica 0; clones are assigned strictly increasing
// ids by the coordinator (§5).
func New(replicaId ids.ReplicaId, logger rlog.Logger) *Repo {
	if logger == nil {
		logger = rlog.NullLogger{}
	}
	s := NewSnapshot()
	s.LastOperationId = ids.NewOperationId(replicaId)
	return &Repo{replicaId: replicaId, snapshot: s, logger: logger}
}

// Restore rebuilds a Repo around an already-restored RepoSnapshot, for the
// persistence layer bringing a repository back from the KV store.
func Restore(replicaId ids.ReplicaId, snapshot *RepoSnapshot, logger rlog.Logger) *Repo {
	if logger == nil {
		logger = rlog.NullLogger{}
	}
	return &Repo{replicaId: replicaId, snapshot: snapshot, logger: logger}
}

// ReplicaId returns the replica this repo's locally authored operations are
// tagged with.
func (r *Repo) ReplicaId() ids.ReplicaId {
	return r.replicaId
}

// Subscribe registers an observer for local-operation and snapshot-changed
// notifications.
func (r *Repo) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *Repo) notifyLocal(op ops.Operation) {
	for _, o := range r.observers {
		o.LocalOperation(op)
		o.SnapshotChanged()
	}
}

func (r *Repo) notifyChanged() {
	for _, o := range r.observers {
		o.SnapshotChanged()
	}
}

// CreateBranch allocates a new branch id, writes its BranchSnapshot (head
// equal to the branch's own id, per §4.7's empty-revision marker), and logs
// a CreateBranch operation with an empty parent.
func (r *Repo) CreateBranch(name string) (ids.OperationId, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.snapshot.BranchIdsByName[name]; taken {
		return ids.OperationId{}, rerr.NameTaken(fmt.Sprintf("repo: branch name %q already exists", name))
	}

	opId := r.snapshot.LastOperationId.Tick()
	op := ops.CreateBranch{OperationId: opId, ParentId: ids.RevisionId{}, Name: name}

	r.snapshot.saveOperation(op)
	if err := r.snapshot.applyReady(op); err != nil {
		return ids.OperationId{}, err
	}

	r.notifyLocal(op)
	return opId, nil
}

// Branch returns a handle onto an existing branch by id.
func (r *Repo) Branch(id ids.OperationId) (*Branch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snapshot.Branches[id]; !ok {
		return nil, rerr.NotFound(fmt.Sprintf("repo: branch %s not found", id))
	}
	return &Branch{repo: r, id: id}, nil
}

// BranchByName resolves a branch by its unique name.
func (r *Repo) BranchByName(name string) (*Branch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.snapshot.BranchIdsByName[name]
	if !ok {
		return nil, rerr.NotFound(fmt.Sprintf("repo: branch %q not found", name))
	}
	return &Branch{repo: r, id: id}, nil
}

// Branches lists every branch currently known, sorted by id.
func (r *Repo) Branches() []BranchInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]BranchInfo, 0, len(r.snapshot.Branches))
	for id, bs := range r.snapshot.Branches {
		out = append(out, BranchInfo{Id: id, Name: bs.Name, Head: bs.Head})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id.Less(out[j].Id) })
	return out
}

// ApplyOperations feeds remotely received operations through the log's
// apply/defer/replay machinery. Errors from individual operations are
// returned but do not abort the batch, matching §7's tolerance policy for
// remote apply failures.
func (r *Repo) ApplyOperations(batch []ops.Operation) []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	errs := r.snapshot.applyOperations(batch)
	for _, err := range errs {
		r.logger.Warn("repo: dropped operation from batch: %v", err)
	}
	r.notifyChanged()
	return errs
}

// OperationsSince returns every operation this repo has logged that the
// caller's version vector doesn't yet reflect, for a SyncRepo response.
func (r *Repo) OperationsSince(version map[ids.ReplicaId]ids.OperationCount) []ops.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot.operationsSince(version)
}

// MaxOperationIds returns a copy of the repo's current version vector, for
// a SyncRepo request or response.
func (r *Repo) MaxOperationIds() map[ids.ReplicaId]ids.OperationCount {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[ids.ReplicaId]ids.OperationCount, len(r.snapshot.MaxOperationIds))
	for k, v := range r.snapshot.MaxOperationIds {
		out[k] = v
	}
	return out
}

// Snapshot returns the live RepoSnapshot for persistence (internal/wire
// encodes it, internal/kvstore stores it). Callers must not mutate it
// without holding the same discipline Repo itself does; persistence reads
// it after a SnapshotChanged notification, under no additional lock, which
// is safe because the maps involved are never shrunk or replaced, only
// grown, by the time a notification fires.
func (r *Repo) Snapshot() *RepoSnapshot {
	return r.snapshot
}
