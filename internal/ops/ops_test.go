package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/replistore/crdb/internal/ids"
)

func opId(replica ids.ReplicaId, count ids.OperationCount) ids.OperationId {
	return ids.OperationId{ReplicaId: replica, OperationCount: count}
}

func TestKindOf(t *testing.T) {
	t.Run("CreateBranch", func(t *testing.T) {
		assert.Equal(t, KindCreateBranch, KindOf(CreateBranch{OperationId: opId(0, 1)}))
	})

	t.Run("CreateDocument", func(t *testing.T) {
		assert.Equal(t, KindCreateDocument, KindOf(CreateDocument{OperationId: opId(0, 1)}))
	})

	t.Run("Edit", func(t *testing.T) {
		assert.Equal(t, KindEdit, KindOf(Edit{OperationId: opId(0, 1)}))
	})
}

func TestOperationIdentity(t *testing.T) {
	id := opId(2, 5)
	parent := ids.RevisionId{}

	branch := CreateBranch{OperationId: id, ParentId: parent, Name: "main"}
	assert.Equal(t, id, branch.Id())
	assert.Equal(t, parent, branch.Parent())

	doc := CreateDocument{OperationId: id, ParentId: parent, BranchId: opId(0, 1)}
	assert.Equal(t, id, doc.Id())

	edit := Edit{OperationId: id, ParentId: parent, BranchId: opId(0, 1), DocumentId: opId(0, 2)}
	assert.Equal(t, id, edit.Id())
}

func TestRequestEnvelopeCarriesExactlyOnePayload(t *testing.T) {
	env := RequestEnvelope{
		Kind:        RequestPublishRepo,
		PublishRepo: &PublishRepoRequest{Name: "my-doc"},
	}

	assert.Equal(t, RequestPublishRepo, env.Kind)
	assert.NotNil(t, env.PublishRepo)
	assert.Nil(t, env.CloneRepo)
	assert.Nil(t, env.SyncRepo)
	assert.Nil(t, env.PublishOperations)
}

func TestMessageEnvelopeWrapsOperation(t *testing.T) {
	op := CreateBranch{OperationId: opId(0, 1), Name: "main"}
	env := MessageEnvelope{Kind: MessageOperation, Operation: op}

	assert.Equal(t, MessageOperation, env.Kind)
	assert.Equal(t, KindCreateBranch, KindOf(env.Operation))
}
