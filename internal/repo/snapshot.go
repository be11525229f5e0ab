// Package repo implements the repository log: the append-only operation
// history, branch index, deferred-operation queue, and revision
// materialisation cache a coordinator or client keeps for one repository.
package repo

import (
	"fmt"
	"sort"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/internal/ops"
	"github.com/replistore/crdb/internal/revision"
	"github.com/replistore/crdb/pkg/rerr"
)

// BranchSnapshot is the persisted view of one branch: its name and the
// frontier its current head names.
type BranchSnapshot struct {
	Name string
	Head ids.RevisionId
}

// DeferredOperation parks an operation one of whose parents hasn't arrived
// yet, tagged with the specific missing parent that blocks it. An operation
// with several missing parents gets one entry per missing parent.
type DeferredOperation struct {
	Parent    ids.OperationId
	Operation ops.Operation
}

// RepoSnapshot is the full log for one repository: every applied operation,
// the branch index, the deferred queue, and a cache of materialised
// revisions keyed by RevisionId. It is not safe for concurrent use; Repo
// (repo.go) guards it with a mutex.
type RepoSnapshot struct {
	LastOperationId    ids.OperationId
	Branches           map[ids.OperationId]BranchSnapshot
	BranchIdsByName    map[string]ids.OperationId
	Operations         map[ids.OperationId]ops.Operation
	MaxOperationIds    map[ids.ReplicaId]ids.OperationCount
	DeferredOperations []DeferredOperation

	revisions map[string]revision.Revision
}

// NewSnapshot returns an empty repository log with the zero RevisionId
// pre-cached against an empty Revision, matching the invariant that
// load_revision always has a base case to fall back to.
func NewSnapshot() *RepoSnapshot {
	s := &RepoSnapshot{
		Branches:        map[ids.OperationId]BranchSnapshot{},
		BranchIdsByName: map[string]ids.OperationId{},
		Operations:      map[ids.OperationId]ops.Operation{},
		MaxOperationIds: map[ids.ReplicaId]ids.OperationCount{},
		revisions:       map[string]revision.Revision{},
	}
	s.revisions[ids.RevisionId{}.Key()] = revision.Empty()
	return s
}

// RestoreSnapshot rebuilds a RepoSnapshot from its persisted fields (see
// internal/wire's SavedRepoSnapshot), seeding the revision cache with just
// the empty base case; every other revision is rematerialised lazily by
// loadRevision the first time a branch head needs it.
func RestoreSnapshot(
	lastOperationId ids.OperationId,
	branches map[ids.OperationId]BranchSnapshot,
	branchIdsByName map[string]ids.OperationId,
	operations map[ids.OperationId]ops.Operation,
	maxOperationIds map[ids.ReplicaId]ids.OperationCount,
	deferredOperations []DeferredOperation,
) *RepoSnapshot {
	s := NewSnapshot()
	s.LastOperationId = lastOperationId
	if branches != nil {
		s.Branches = branches
	}
	if branchIdsByName != nil {
		s.BranchIdsByName = branchIdsByName
	}
	if operations != nil {
		s.Operations = operations
	}
	if maxOperationIds != nil {
		s.MaxOperationIds = maxOperationIds
	}
	s.DeferredOperations = deferredOperations

	for _, bs := range branches {
		if _, ok := s.revisions[bs.Head.Key()]; !ok {
			if _, err := s.loadRevision(bs.Head); err != nil {
				// Leave uncached; the next access through Branch will
				// surface the same error loadRevision hit here.
				continue
			}
		}
	}
	return s
}

// saveOperation appends op to the log: advances max_operation_ids,
// advances last_operation_id via the Lamport observe rule, and records op.
func (s *RepoSnapshot) saveOperation(op ops.Operation) {
	id := op.Id()
	if count, ok := s.MaxOperationIds[id.ReplicaId]; !ok || id.OperationCount > count {
		s.MaxOperationIds[id.ReplicaId] = id.OperationCount
	}
	s.LastOperationId.Observe(id)
	s.Operations[id] = op
}

func (s *RepoSnapshot) hasDeferred(parent ids.OperationId, id ids.OperationId) bool {
	for _, d := range s.DeferredOperations {
		if d.Parent == parent && d.Operation.Id() == id {
			return true
		}
	}
	return false
}

// applyOperations drains queue FIFO, deferring any operation whose parents
// haven't all arrived and promoting deferred operations once their blocking
// parent lands. Returns every error an applied operation raised; per
// §7 a caller driving a batch of remote operations should log it and drop
// the offending operation from the batch rather than abort the whole batch.
func (s *RepoSnapshot) applyOperations(queue []ops.Operation) []error {
	work := append([]ops.Operation(nil), queue...)
	var errs []error

	for len(work) > 0 {
		op := work[0]
		work = work[1:]
		id := op.Id()

		if _, ok := s.Operations[id]; ok {
			continue
		}

		parentIds := op.Parent().Ids()
		ready := true
		for _, p := range parentIds {
			if _, ok := s.Operations[p]; !ok {
				ready = false
				break
			}
		}
		if !ready {
			for _, p := range parentIds {
				if _, ok := s.Operations[p]; !ok && !s.hasDeferred(p, id) {
					s.DeferredOperations = append(s.DeferredOperations, DeferredOperation{Parent: p, Operation: op})
				}
			}
			continue
		}

		s.saveOperation(op)
		if err := s.applyReady(op); err != nil {
			errs = append(errs, err)
		}

		var remaining []DeferredOperation
		for _, d := range s.DeferredOperations {
			if d.Parent == id {
				work = append(work, d.Operation)
			} else {
				remaining = append(remaining, d)
			}
		}
		s.DeferredOperations = remaining
	}
	return errs
}

// applyReady applies an operation whose parents are all already in the log.
func (s *RepoSnapshot) applyReady(op ops.Operation) error {
	switch o := op.(type) {
	case ops.CreateBranch:
		head := ids.RevisionFromOperation(o.OperationId)
		s.Branches[o.OperationId] = BranchSnapshot{Name: o.Name, Head: head}
		if _, taken := s.BranchIdsByName[o.Name]; !taken {
			s.BranchIdsByName[o.Name] = o.OperationId
		}
		s.revisions[head.Key()] = revision.Empty()
		return nil
	case ops.CreateDocument:
		return s.applyToBranch(o.BranchId, o)
	case ops.Edit:
		return s.applyToBranch(o.BranchId, o)
	default:
		return rerr.InvalidOperationf("repo: unknown operation type %T", op)
	}
}

// applyToBranch advances a branch's head past op and materialises the
// resulting revision, caching it under the new head.
func (s *RepoSnapshot) applyToBranch(branchId ids.OperationId, op ops.Operation) error {
	branch, ok := s.Branches[branchId]
	if !ok {
		return rerr.NotFound(fmt.Sprintf("repo: branch %s not found", branchId))
	}
	newHead := branch.Head.Observe(op.Id(), op.Parent())
	branch.Head = newHead
	s.Branches[branchId] = branch
	_, err := s.loadRevision(newHead)
	return err
}

// applyOperationToRevision folds one operation into rev. CreateBranch never
// touches document state, so it is a no-op here; it only exists in the log
// to anchor the branch's genesis.
func applyOperationToRevision(rev revision.Revision, op ops.Operation) (revision.Revision, error) {
	switch o := op.(type) {
	case ops.CreateBranch:
		return rev, nil
	case ops.CreateDocument:
		return rev.CreateDocument(o.OperationId), nil
	case ops.Edit:
		return rev.ApplyRemoteEdit(o)
	default:
		return rev, rerr.InvalidOperationf("repo: unknown operation type %T", op)
	}
}

// loadRevision returns the materialised Revision for target, computing and
// caching it if necessary. See §4.6: walk backwards across parent pointers
// from every id in target, find the closest common ancestor with a cached
// Revision (or fall back to the pre-cached empty Revision), then apply
// every operation collected along the way whose count exceeds the highest
// count in the chosen ancestor's RevisionId, in (count, replica) order.
func (s *RepoSnapshot) loadRevision(target ids.RevisionId) (revision.Revision, error) {
	if cached, ok := s.revisions[target.Key()]; ok {
		return cached.Clone(), nil
	}

	targetIds := target.Ids()

	type queueItem struct {
		op      ids.OperationId
		sources map[ids.OperationId]bool
	}
	queue := make([]queueItem, 0, len(targetIds))
	for _, id := range targetIds {
		queue = append(queue, queueItem{op: id, sources: map[ids.OperationId]bool{id: true}})
	}

	visitedSources := map[ids.OperationId]map[ids.OperationId]bool{}
	collected := map[ids.OperationId]bool{}
	var ancestor *ids.RevisionId
	var ancestorRevision revision.Revision

	for len(queue) > 0 && ancestor == nil {
		item := queue[0]
		queue = queue[1:]

		merged := unionSources(visitedSources[item.op], item.sources)
		if sameSources(visitedSources[item.op], merged) {
			continue
		}
		visitedSources[item.op] = merged
		collected[item.op] = true

		op, ok := s.Operations[item.op]
		if !ok {
			continue
		}
		parent := op.Parent()
		key := parent.Key()

		if allReachable(merged, targetIds) {
			if cached, ok := s.revisions[key]; ok {
				p := parent
				ancestor = &p
				ancestorRevision = cached
				break
			}
		}

		for _, pid := range parent.Ids() {
			queue = append(queue, queueItem{op: pid, sources: merged})
		}
	}

	var base revision.Revision
	var threshold ids.OperationCount
	if ancestor != nil {
		base = ancestorRevision.Clone()
		threshold = maxCount(ancestor.Ids())
	} else {
		base = s.revisions[ids.RevisionId{}.Key()].Clone()
		threshold = 0
	}

	var toApply []ops.Operation
	for id := range collected {
		if id.OperationCount > threshold {
			if op, ok := s.Operations[id]; ok {
				toApply = append(toApply, op)
			}
		}
	}
	sort.Slice(toApply, func(i, j int) bool { return toApply[i].Id().Less(toApply[j].Id()) })

	rev := base
	for _, op := range toApply {
		var err error
		rev, err = applyOperationToRevision(rev, op)
		if err != nil {
			return revision.Revision{}, rerr.Wrap(rerr.CodeInvalidOperation, fmt.Sprintf("repo: replaying %s against revision", op.Id()), err)
		}
	}

	s.revisions[target.Key()] = rev
	return rev.Clone(), nil
}

func unionSources(a, b map[ids.OperationId]bool) map[ids.OperationId]bool {
	out := make(map[ids.OperationId]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

func sameSources(a, b map[ids.OperationId]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range b {
		if !a[k] {
			return false
		}
	}
	return true
}

func allReachable(sources map[ids.OperationId]bool, targetIds []ids.OperationId) bool {
	for _, id := range targetIds {
		if !sources[id] {
			return false
		}
	}
	return true
}

func maxCount(idList []ids.OperationId) ids.OperationCount {
	var highest ids.OperationCount
	for _, id := range idList {
		if id.OperationCount > highest {
			highest = id.OperationCount
		}
	}
	return highest
}

// operationsSince returns every operation whose (replica, count) strictly
// exceeds version[replica] (or every operation by a replica absent from
// version), grouped by replica in ascending replica order and, within a
// replica, ascending count order.
func (s *RepoSnapshot) operationsSince(version map[ids.ReplicaId]ids.OperationCount) []ops.Operation {
	byReplica := map[ids.ReplicaId][]ops.Operation{}
	for _, op := range s.Operations {
		id := op.Id()
		if floor, known := version[id.ReplicaId]; known && id.OperationCount <= floor {
			continue
		}
		byReplica[id.ReplicaId] = append(byReplica[id.ReplicaId], op)
	}

	replicas := make([]ids.ReplicaId, 0, len(byReplica))
	for r := range byReplica {
		replicas = append(replicas, r)
	}
	sort.Slice(replicas, func(i, j int) bool { return replicas[i] < replicas[j] })

	var out []ops.Operation
	for _, r := range replicas {
		list := byReplica[r]
		sort.Slice(list, func(i, j int) bool { return list[i].Id().OperationCount < list[j].Id().OperationCount })
		out = append(out, list...)
	}
	return out
}
