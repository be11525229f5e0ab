// Package wire implements the binary encoding operations, transport
// envelopes, and persisted repository snapshots round-trip through, using
// CBOR as a compact self-describing format per §6's wire contract.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/replistore/crdb/internal/ops"
)

// operationWire is Operation's tagged-union wire shape: exactly one payload
// field is populated, selected by Kind, mirroring ops.KindOf's dispatch.
type operationWire struct {
	Kind           ops.Kind
	CreateBranch   *ops.CreateBranch   `cbor:",omitempty"`
	CreateDocument *ops.CreateDocument `cbor:",omitempty"`
	Edit           *ops.Edit           `cbor:",omitempty"`
}

func toOperationWire(op ops.Operation) (operationWire, error) {
	switch o := op.(type) {
	case ops.CreateBranch:
		return operationWire{Kind: ops.KindCreateBranch, CreateBranch: &o}, nil
	case ops.CreateDocument:
		return operationWire{Kind: ops.KindCreateDocument, CreateDocument: &o}, nil
	case ops.Edit:
		return operationWire{Kind: ops.KindEdit, Edit: &o}, nil
	default:
		return operationWire{}, fmt.Errorf("wire: unknown operation type %T", op)
	}
}

func fromOperationWire(w operationWire) (ops.Operation, error) {
	switch w.Kind {
	case ops.KindCreateBranch:
		if w.CreateBranch == nil {
			return nil, fmt.Errorf("wire: CreateBranch payload missing for its kind")
		}
		return *w.CreateBranch, nil
	case ops.KindCreateDocument:
		if w.CreateDocument == nil {
			return nil, fmt.Errorf("wire: CreateDocument payload missing for its kind")
		}
		return *w.CreateDocument, nil
	case ops.KindEdit:
		if w.Edit == nil {
			return nil, fmt.Errorf("wire: Edit payload missing for its kind")
		}
		return *w.Edit, nil
	default:
		return nil, fmt.Errorf("wire: unknown operation kind %d", w.Kind)
	}
}

// EncodeOperation encodes a single Operation.
func EncodeOperation(op ops.Operation) ([]byte, error) {
	w, err := toOperationWire(op)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(w)
}

// DecodeOperation decodes a single Operation.
func DecodeOperation(data []byte) (ops.Operation, error) {
	var w operationWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("wire: decode operation: %w", err)
	}
	return fromOperationWire(w)
}

// EncodeOperations encodes an ordered list of operations (a SyncRepo
// response, a PublishOperations request, or a repository's full log).
func EncodeOperations(list []ops.Operation) ([]byte, error) {
	wires := make([]operationWire, len(list))
	for i, op := range list {
		w, err := toOperationWire(op)
		if err != nil {
			return nil, err
		}
		wires[i] = w
	}
	return cbor.Marshal(wires)
}

// DecodeOperations decodes an ordered list of operations.
func DecodeOperations(data []byte) ([]ops.Operation, error) {
	var wires []operationWire
	if err := cbor.Unmarshal(data, &wires); err != nil {
		return nil, fmt.Errorf("wire: decode operations: %w", err)
	}
	out := make([]ops.Operation, len(wires))
	for i, w := range wires {
		op, err := fromOperationWire(w)
		if err != nil {
			return nil, err
		}
		out[i] = op
	}
	return out, nil
}
