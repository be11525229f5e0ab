package repo

import (
	"fmt"
	"sort"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/internal/ops"
	"github.com/replistore/crdb/internal/revision"
	"github.com/replistore/crdb/pkg/rerr"
	"github.com/replistore/crdb/pkg/rope"
)

// Branch is a handle onto one named head within a Repo. It carries no state
// of its own beyond the id; every method reaches back into the owning
// Repo's snapshot under its mutex.
type Branch struct {
	repo *Repo
	id   ids.OperationId
}

// Id returns the branch's identity, which is the OperationId of the
// CreateBranch operation that created it.
func (b *Branch) Id() ids.OperationId {
	return b.id
}

func (b *Branch) snapshot() (BranchSnapshot, error) {
	bs, ok := b.repo.snapshot.Branches[b.id]
	if !ok {
		return BranchSnapshot{}, rerr.NotFound(fmt.Sprintf("repo: branch %s not found", b.id))
	}
	return bs, nil
}

// Name returns the branch's name.
func (b *Branch) Name() (string, error) {
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()
	bs, err := b.snapshot()
	if err != nil {
		return "", err
	}
	return bs.Name, nil
}

// Head returns the branch's current head frontier.
func (b *Branch) Head() (ids.RevisionId, error) {
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()
	bs, err := b.snapshot()
	if err != nil {
		return ids.RevisionId{}, err
	}
	return bs.Head, nil
}

// update ticks a fresh operation id, loads the branch's current head
// Revision, calls f to produce the operation and successor Revision, then
// commits both: the branch head advances, the operation joins the log, the
// new Revision is cached, and local-operation observers fire — all inside
// a single hold of the repo mutex, matching §4.7 and §9's observer note.
func (b *Branch) update(f func(opId ids.OperationId, head ids.RevisionId, rev revision.Revision) (ops.Operation, revision.Revision, error)) (ops.Operation, error) {
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()

	bs, err := b.snapshot()
	if err != nil {
		return nil, err
	}

	opId := b.repo.snapshot.LastOperationId.Tick()
	head, err := b.repo.snapshot.loadRevision(bs.Head)
	if err != nil {
		return nil, err
	}

	op, next, err := f(opId, bs.Head, head)
	if err != nil {
		return nil, err
	}

	newHead := bs.Head.Observe(op.Id(), op.Parent())
	bs.Head = newHead
	b.repo.snapshot.Branches[b.id] = bs
	b.repo.snapshot.saveOperation(op)
	b.repo.snapshot.revisions[newHead.Key()] = next

	b.repo.notifyLocal(op)
	return op, nil
}

// CreateDocument inserts a new empty document into the branch and returns
// its id (the OperationId of the CreateDocument operation itself).
func (b *Branch) CreateDocument() (ids.OperationId, error) {
	op, err := b.update(func(opId ids.OperationId, head ids.RevisionId, rev revision.Revision) (ops.Operation, revision.Revision, error) {
		o := ops.CreateDocument{OperationId: opId, ParentId: head, BranchId: b.id}
		return o, rev.CreateDocument(opId), nil
	})
	if err != nil {
		return ids.OperationId{}, err
	}
	return op.Id(), nil
}

// Edit applies a local edit to a document and returns the Edit operation
// produced, whose edits carry AnchorRanges rather than raw offsets so it
// can be replayed at other replicas.
func (b *Branch) Edit(documentId ids.OperationId, edits []revision.RawEdit) (ops.Edit, error) {
	var editOp ops.Edit
	_, err := b.update(func(opId ids.OperationId, head ids.RevisionId, rev revision.Revision) (ops.Operation, revision.Revision, error) {
		e, next, err := rev.Edit(b.id, documentId, opId, head, edits)
		if err != nil {
			return nil, revision.Revision{}, err
		}
		editOp = e
		return e, next, nil
	})
	return editOp, err
}

func (b *Branch) headRevision() (revision.Revision, error) {
	bs, err := b.snapshot()
	if err != nil {
		return revision.Revision{}, err
	}
	return b.repo.snapshot.loadRevision(bs.Head)
}

// Text returns documentId's current visible text.
func (b *Branch) Text(documentId ids.OperationId) (string, error) {
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()
	rev, err := b.headRevision()
	if err != nil {
		return "", err
	}
	return rev.Text(documentId)
}

// Len returns the byte length of documentId's current visible text.
func (b *Branch) Len(documentId ids.OperationId) (int, error) {
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()
	rev, err := b.headRevision()
	if err != nil {
		return 0, err
	}
	return rev.Len(documentId)
}

// ClipOffset snaps a document-local offset to the nearest code-point
// boundary.
func (b *Branch) ClipOffset(documentId ids.OperationId, offset int, bias rope.Bias) (int, error) {
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()
	rev, err := b.headRevision()
	if err != nil {
		return 0, err
	}
	return rev.ClipOffset(documentId, offset, bias)
}

// Documents lists every document currently known on the branch's head
// revision, in ascending OperationId order.
func (b *Branch) Documents() ([]ids.OperationId, error) {
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()
	rev, err := b.headRevision()
	if err != nil {
		return nil, err
	}
	out := make([]ids.OperationId, 0, len(rev.DocumentMetadata))
	for id := range rev.DocumentMetadata {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}
