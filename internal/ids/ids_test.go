package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationIdOrdering(t *testing.T) {
	a := OperationId{ReplicaId: 1, OperationCount: 5}
	b := OperationId{ReplicaId: 0, OperationCount: 6}
	c := OperationId{ReplicaId: 0, OperationCount: 5}

	assert.True(t, a.Less(b), "lower count sorts first regardless of replica")
	assert.True(t, c.Less(a), "equal count ties break by replica")
	assert.Equal(t, -1, c.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestTickAndObserve(t *testing.T) {
	id := NewOperationId(3)
	first := id.Tick()
	assert.Equal(t, OperationCount(1), first.OperationCount)

	second := id.Tick()
	assert.Equal(t, OperationCount(2), second.OperationCount)

	other := OperationId{ReplicaId: 9, OperationCount: 10}
	id.Observe(other)
	assert.Equal(t, OperationCount(11), id.OperationCount)

	// Observing a lower count than our own still advances by one.
	id2 := OperationId{ReplicaId: 3, OperationCount: 20}
	id2.Observe(OperationId{ReplicaId: 1, OperationCount: 2})
	assert.Equal(t, OperationCount(21), id2.OperationCount)
}

func TestBiasStringRoundTrip(t *testing.T) {
	assert.Equal(t, "left", BiasLeft.String())
	assert.Equal(t, "right", BiasRight.String())

	parsed, err := ParseBias("left")
	require.NoError(t, err)
	assert.Equal(t, BiasLeft, parsed)

	parsed, err = ParseBias("right")
	require.NoError(t, err)
	assert.Equal(t, BiasRight, parsed)

	_, err = ParseBias("up")
	assert.Error(t, err)
}

func TestRevisionIdObserveSupersedesParent(t *testing.T) {
	op1 := OperationId{ReplicaId: 0, OperationCount: 1}
	rev := RevisionFromOperation(op1)

	op2 := OperationId{ReplicaId: 0, OperationCount: 2}
	next := rev.Observe(op2, RevisionFromOperation(op1))

	assert.Equal(t, 1, next.Len())
	assert.True(t, next.Contains(op2))
	assert.False(t, next.Contains(op1))
}

func TestRevisionIdObserveConcurrentHeads(t *testing.T) {
	op1 := OperationId{ReplicaId: 0, OperationCount: 1}
	op2 := OperationId{ReplicaId: 1, OperationCount: 1}
	rev := RevisionFromOperation(op1)

	// op2's parent is the empty revision, not rev, so it joins rather than
	// superseding op1: the two concurrent heads coexist in the frontier.
	next := rev.Observe(op2, RevisionId{})

	assert.Equal(t, 2, next.Len())
	assert.True(t, next.Contains(op1))
	assert.True(t, next.Contains(op2))
}

func TestRevisionIdObserveMergesConcurrentFrontier(t *testing.T) {
	op1 := OperationId{ReplicaId: 0, OperationCount: 1}
	op2 := OperationId{ReplicaId: 1, OperationCount: 1}
	frontier := RevisionId{}.Observe(op1, RevisionId{}).Observe(op2, RevisionId{})
	require.Equal(t, 2, frontier.Len())

	merge := OperationId{ReplicaId: 0, OperationCount: 5}
	merged := frontier.Observe(merge, frontier)

	assert.Equal(t, 1, merged.Len())
	assert.True(t, merged.Contains(merge))
}

func TestRevisionIdEqualAndKey(t *testing.T) {
	op1 := OperationId{ReplicaId: 0, OperationCount: 1}
	op2 := OperationId{ReplicaId: 1, OperationCount: 1}

	a := RevisionId{}.Observe(op1, RevisionId{}).Observe(op2, RevisionId{})
	b := RevisionId{}.Observe(op2, RevisionId{}).Observe(op1, RevisionId{})

	assert.True(t, a.Equal(b), "frontier order must not matter once sorted")
	assert.Equal(t, a.Key(), b.Key())
}

func TestRepoIdPartsRoundTrip(t *testing.T) {
	id := RepoIdFromParts(0x1122334455667788, 0x99aabbccddeeff00)
	hi, lo := id.Parts()
	assert.Equal(t, uint64(0x1122334455667788), hi)
	assert.Equal(t, uint64(0x99aabbccddeeff00), lo)

	other := RepoIdFromParts(hi, lo)
	assert.True(t, id.Equal(other))
}

func TestParseRepoIdRoundTripsString(t *testing.T) {
	id := RepoIdFromParts(0x1122334455667788, 0x99aabbccddeeff00)

	parsed, err := ParseRepoId(id.String())
	require.NoError(t, err)
	assert.True(t, id.Equal(parsed))
}

func TestParseRepoIdRejectsMalformedInput(t *testing.T) {
	_, err := ParseRepoId("too-short")
	assert.Error(t, err)

	_, err = ParseRepoId(strings.Repeat("zz", 16))
	assert.Error(t, err)
}
