package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/internal/ops"
	"github.com/replistore/crdb/internal/revision"
	"github.com/replistore/crdb/pkg/rerr"
)

func newTestRepo(t *testing.T, replicaId ids.ReplicaId) *Repo {
	t.Helper()
	return New(replicaId, nil)
}

func TestCreateBranchAndDocument(t *testing.T) {
	r := newTestRepo(t, 0)

	branchId, err := r.CreateBranch("main")
	require.NoError(t, err)

	branch, err := r.Branch(branchId)
	require.NoError(t, err)

	name, err := branch.Name()
	require.NoError(t, err)
	assert.Equal(t, "main", name)

	docId, err := branch.CreateDocument()
	require.NoError(t, err)

	text, err := branch.Text(docId)
	require.NoError(t, err)
	assert.Equal(t, "", text)

	docs, err := branch.Documents()
	require.NoError(t, err)
	assert.Equal(t, []ids.OperationId{docId}, docs)
}

func TestCreateBranchNameTaken(t *testing.T) {
	r := newTestRepo(t, 0)

	_, err := r.CreateBranch("main")
	require.NoError(t, err)

	_, err = r.CreateBranch("main")
	require.Error(t, err)
	assert.Equal(t, rerr.CodeNameTaken, rerr.Code(err))
}

func TestBranchEditRoundTrip(t *testing.T) {
	r := newTestRepo(t, 0)

	branchId, err := r.CreateBranch("main")
	require.NoError(t, err)
	branch, err := r.Branch(branchId)
	require.NoError(t, err)

	docId, err := branch.CreateDocument()
	require.NoError(t, err)

	_, err = branch.Edit(docId, []revision.RawEdit{{Start: 0, End: 0, NewText: "hello"}})
	require.NoError(t, err)

	text, err := branch.Text(docId)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	_, err = branch.Edit(docId, []revision.RawEdit{{Start: 5, End: 5, NewText: " world"}})
	require.NoError(t, err)

	text, err = branch.Text(docId)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	_, err = branch.Edit(docId, []revision.RawEdit{{Start: 0, End: 5, NewText: "goodbye"}})
	require.NoError(t, err)

	text, err = branch.Text(docId)
	require.NoError(t, err)
	assert.Equal(t, "goodbye world", text)
}

// TestApplyOperationsDefersUntilParentArrives exercises the deferred-queue
// path: an Edit arrives before the CreateDocument it depends on, and must
// wait until the dependency is applied before it takes effect.
func TestApplyOperationsDefersUntilParentArrives(t *testing.T) {
	author := newTestRepo(t, 0)
	branchId, err := author.CreateBranch("main")
	require.NoError(t, err)
	authorBranch, err := author.Branch(branchId)
	require.NoError(t, err)

	docId, err := authorBranch.CreateDocument()
	require.NoError(t, err)

	editOp, err := authorBranch.Edit(docId, []revision.RawEdit{{Start: 0, End: 0, NewText: "hi"}})
	require.NoError(t, err)

	createBranchOp := findOperation(t, author, branchId)
	createDocOp := findOperation(t, author, docId)

	replica := newTestRepo(t, 1)

	// Feed the Edit before its CreateDocument/CreateBranch ancestors: it
	// must be deferred, not dropped.
	errs := replica.ApplyOperations([]ops.Operation{editOp})
	assert.Empty(t, errs)

	replicaBranch, err := replica.Branch(branchId)
	assert.Error(t, err, "branch should not exist yet: Edit was deferred")
	_ = replicaBranch

	errs = replica.ApplyOperations([]ops.Operation{createBranchOp, createDocOp})
	assert.Empty(t, errs)

	replicaBranch, err = replica.Branch(branchId)
	require.NoError(t, err)

	text, err := replicaBranch.Text(docId)
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
}

// TestConvergence exercises §8 property 1: two replicas that apply the same
// set of operations (regardless of order, within causal constraints) agree
// on document text.
func TestConvergence(t *testing.T) {
	author := newTestRepo(t, 0)
	branchId, err := author.CreateBranch("main")
	require.NoError(t, err)
	authorBranch, err := author.Branch(branchId)
	require.NoError(t, err)

	docId, err := authorBranch.CreateDocument()
	require.NoError(t, err)

	_, err = authorBranch.Edit(docId, []revision.RawEdit{{Start: 0, End: 0, NewText: "abc"}})
	require.NoError(t, err)
	_, err = authorBranch.Edit(docId, []revision.RawEdit{{Start: 1, End: 2, NewText: "XY"}})
	require.NoError(t, err)

	allOps := collectAllOperations(author)

	replicaA := newTestRepo(t, 1)
	errsA := replicaA.ApplyOperations(allOps)
	assert.Empty(t, errsA)

	// Apply to replicaB in reverse order: apply_operations must defer
	// causally-unready operations until their ancestors land.
	reversed := make([]ops.Operation, len(allOps))
	for i, op := range allOps {
		reversed[len(allOps)-1-i] = op
	}
	replicaB := newTestRepo(t, 2)
	errsB := replicaB.ApplyOperations(reversed)
	assert.Empty(t, errsB)

	branchA, err := replicaA.Branch(branchId)
	require.NoError(t, err)
	branchB, err := replicaB.Branch(branchId)
	require.NoError(t, err)

	textAuthor, err := authorBranch.Text(docId)
	require.NoError(t, err)
	textA, err := branchA.Text(docId)
	require.NoError(t, err)
	textB, err := branchB.Text(docId)
	require.NoError(t, err)

	assert.Equal(t, textAuthor, textA)
	assert.Equal(t, textAuthor, textB)
}

// TestIdempotence exercises §8 property 3: re-applying an already-logged
// operation is a no-op.
func TestIdempotence(t *testing.T) {
	author := newTestRepo(t, 0)
	branchId, err := author.CreateBranch("main")
	require.NoError(t, err)
	authorBranch, err := author.Branch(branchId)
	require.NoError(t, err)
	docId, err := authorBranch.CreateDocument()
	require.NoError(t, err)
	_, err = authorBranch.Edit(docId, []revision.RawEdit{{Start: 0, End: 0, NewText: "xyz"}})
	require.NoError(t, err)

	allOps := collectAllOperations(author)

	replica := newTestRepo(t, 1)
	errs := replica.ApplyOperations(allOps)
	require.Empty(t, errs)
	branch, err := replica.Branch(branchId)
	require.NoError(t, err)
	text1, err := branch.Text(docId)
	require.NoError(t, err)

	errs = replica.ApplyOperations(allOps)
	require.Empty(t, errs)
	text2, err := branch.Text(docId)
	require.NoError(t, err)

	assert.Equal(t, text1, text2)
}

func TestOperationsSince(t *testing.T) {
	r := newTestRepo(t, 0)
	branchId, err := r.CreateBranch("main")
	require.NoError(t, err)
	branch, err := r.Branch(branchId)
	require.NoError(t, err)
	docId, err := branch.CreateDocument()
	require.NoError(t, err)
	_, err = branch.Edit(docId, []revision.RawEdit{{Start: 0, End: 0, NewText: "a"}})
	require.NoError(t, err)

	all := r.OperationsSince(nil)
	assert.Len(t, all, 3) // CreateBranch, CreateDocument, Edit

	version := map[ids.ReplicaId]ids.OperationCount{0: all[0].Id().OperationCount}
	rest := r.OperationsSince(version)
	assert.Len(t, rest, 2)
}

func collectAllOperations(r *Repo) []ops.Operation {
	s := r.Snapshot()
	out := make([]ops.Operation, 0, len(s.Operations))
	for _, op := range s.Operations {
		out = append(out, op)
	}
	return out
}

func findOperation(t *testing.T, r *Repo, id ids.OperationId) ops.Operation {
	t.Helper()
	s := r.Snapshot()
	op, ok := s.Operations[id]
	require.True(t, ok, "operation %s not found", id)
	return op
}
