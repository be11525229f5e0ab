package wire

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/internal/ops"
	"github.com/replistore/crdb/internal/repo"
)

// deferredOperationWire mirrors repo.DeferredOperation.
type deferredOperationWire struct {
	Parent    ids.OperationId
	Operation operationWire
}

// SavedRepoSnapshot is the on-disk/kvstore wire shape of a repo.RepoSnapshot:
// every exported field of the in-memory snapshot except the lazily
// rebuilt revision cache, which loadRevision regenerates from Operations
// the first time each branch head is needed again.
type SavedRepoSnapshot struct {
	Version            uint32
	LastOperationId    ids.OperationId
	Branches           map[ids.OperationId]repo.BranchSnapshot
	BranchIdsByName    map[string]ids.OperationId
	Operations         []operationWire
	MaxOperationIds    map[ids.ReplicaId]ids.OperationCount
	DeferredOperations []deferredOperationWire
}

// snapshotWireVersion is bumped whenever SavedRepoSnapshot's shape changes
// in a way that isn't simply additive.
const snapshotWireVersion = 1

// EncodeSnapshot serialises a RepoSnapshot for persistence.
func EncodeSnapshot(s *repo.RepoSnapshot) ([]byte, error) {
	operations := make([]ops.Operation, 0, len(s.Operations))
	for _, op := range s.Operations {
		operations = append(operations, op)
	}
	sort.Slice(operations, func(i, j int) bool { return operations[i].Id().Less(operations[j].Id()) })

	opWires := make([]operationWire, len(operations))
	for i, op := range operations {
		w, err := toOperationWire(op)
		if err != nil {
			return nil, err
		}
		opWires[i] = w
	}

	deferred := make([]deferredOperationWire, len(s.DeferredOperations))
	for i, d := range s.DeferredOperations {
		w, err := toOperationWire(d.Operation)
		if err != nil {
			return nil, err
		}
		deferred[i] = deferredOperationWire{Parent: d.Parent, Operation: w}
	}

	saved := SavedRepoSnapshot{
		Version:            snapshotWireVersion,
		LastOperationId:    s.LastOperationId,
		Branches:           s.Branches,
		BranchIdsByName:    s.BranchIdsByName,
		Operations:         opWires,
		MaxOperationIds:    s.MaxOperationIds,
		DeferredOperations: deferred,
	}
	return cbor.Marshal(saved)
}

// DecodeSnapshot deserialises a RepoSnapshot from its persisted form.
func DecodeSnapshot(data []byte) (*repo.RepoSnapshot, error) {
	var saved SavedRepoSnapshot
	if err := cbor.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("wire: decode snapshot: %w", err)
	}
	if saved.Version != snapshotWireVersion {
		return nil, fmt.Errorf("wire: unsupported snapshot version %d", saved.Version)
	}

	operations := make(map[ids.OperationId]ops.Operation, len(saved.Operations))
	for _, w := range saved.Operations {
		op, err := fromOperationWire(w)
		if err != nil {
			return nil, err
		}
		operations[op.Id()] = op
	}

	deferred := make([]repo.DeferredOperation, len(saved.DeferredOperations))
	for i, w := range saved.DeferredOperations {
		op, err := fromOperationWire(w.Operation)
		if err != nil {
			return nil, err
		}
		deferred[i] = repo.DeferredOperation{Parent: w.Parent, Operation: op}
	}

	return repo.RestoreSnapshot(
		saved.LastOperationId,
		saved.Branches,
		saved.BranchIdsByName,
		operations,
		saved.MaxOperationIds,
		deferred,
	), nil
}
