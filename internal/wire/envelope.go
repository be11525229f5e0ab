package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/internal/ops"
)

// publishOperationsRequestWire mirrors ops.PublishOperationsRequest with its
// Operation interface slice replaced by the wire union, the same reason
// operationWire exists: CBOR can't discriminate an interface slice on its
// own.
type publishOperationsRequestWire struct {
	RepoId     ids.RepoId
	Operations []operationWire
}

// syncRepoResponseWire mirrors ops.SyncRepoResponse for the same reason.
type syncRepoResponseWire struct {
	Operations      []operationWire
	MaxOperationIds map[ids.ReplicaId]ids.OperationCount
}

// requestEnvelopeWire mirrors ops.RequestEnvelope, routing the two payload
// variants that carry operations through their wire forms.
type requestEnvelopeWire struct {
	Kind              ops.RequestKind
	PublishRepo       *ops.PublishRepoRequest       `cbor:",omitempty"`
	CloneRepo         *ops.CloneRepoRequest         `cbor:",omitempty"`
	SyncRepo          *ops.SyncRepoRequest          `cbor:",omitempty"`
	PublishOperations *publishOperationsRequestWire `cbor:",omitempty"`
}

// EncodeRequest encodes one RequestEnvelope for transport.
func EncodeRequest(req ops.RequestEnvelope) ([]byte, error) {
	w := requestEnvelopeWire{Kind: req.Kind, PublishRepo: req.PublishRepo, CloneRepo: req.CloneRepo, SyncRepo: req.SyncRepo}

	if req.PublishOperations != nil {
		wires := make([]operationWire, len(req.PublishOperations.Operations))
		for i, op := range req.PublishOperations.Operations {
			ow, err := toOperationWire(op)
			if err != nil {
				return nil, err
			}
			wires[i] = ow
		}
		w.PublishOperations = &publishOperationsRequestWire{
			RepoId:     req.PublishOperations.RepoId,
			Operations: wires,
		}
	}

	return cbor.Marshal(w)
}

// DecodeRequest decodes a RequestEnvelope.
func DecodeRequest(data []byte) (ops.RequestEnvelope, error) {
	var w requestEnvelopeWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return ops.RequestEnvelope{}, fmt.Errorf("wire: decode request: %w", err)
	}

	out := ops.RequestEnvelope{Kind: w.Kind, PublishRepo: w.PublishRepo, CloneRepo: w.CloneRepo, SyncRepo: w.SyncRepo}

	if w.PublishOperations != nil {
		operations := make([]ops.Operation, len(w.PublishOperations.Operations))
		for i, ow := range w.PublishOperations.Operations {
			op, err := fromOperationWire(ow)
			if err != nil {
				return ops.RequestEnvelope{}, err
			}
			operations[i] = op
		}
		out.PublishOperations = &ops.PublishOperationsRequest{
			RepoId:     w.PublishOperations.RepoId,
			Operations: operations,
		}
	}

	return out, nil
}

// EncodeSyncRepoResponse encodes a SyncRepoResponse.
func EncodeSyncRepoResponse(resp ops.SyncRepoResponse) ([]byte, error) {
	wires := make([]operationWire, len(resp.Operations))
	for i, op := range resp.Operations {
		w, err := toOperationWire(op)
		if err != nil {
			return nil, err
		}
		wires[i] = w
	}
	return cbor.Marshal(syncRepoResponseWire{Operations: wires, MaxOperationIds: resp.MaxOperationIds})
}

// DecodeSyncRepoResponse decodes a SyncRepoResponse.
func DecodeSyncRepoResponse(data []byte) (ops.SyncRepoResponse, error) {
	var w syncRepoResponseWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return ops.SyncRepoResponse{}, fmt.Errorf("wire: decode sync repo response: %w", err)
	}
	operations := make([]ops.Operation, len(w.Operations))
	for i, ow := range w.Operations {
		op, err := fromOperationWire(ow)
		if err != nil {
			return ops.SyncRepoResponse{}, err
		}
		operations[i] = op
	}
	return ops.SyncRepoResponse{Operations: operations, MaxOperationIds: w.MaxOperationIds}, nil
}

// EncodePublishRepoResponse encodes a PublishRepoResponse.
func EncodePublishRepoResponse(resp ops.PublishRepoResponse) ([]byte, error) {
	return cbor.Marshal(resp)
}

// DecodePublishRepoResponse decodes a PublishRepoResponse.
func DecodePublishRepoResponse(data []byte) (ops.PublishRepoResponse, error) {
	var resp ops.PublishRepoResponse
	if err := cbor.Unmarshal(data, &resp); err != nil {
		return ops.PublishRepoResponse{}, fmt.Errorf("wire: decode publish repo response: %w", err)
	}
	return resp, nil
}

// EncodeCloneRepoResponse encodes a CloneRepoResponse.
func EncodeCloneRepoResponse(resp ops.CloneRepoResponse) ([]byte, error) {
	return cbor.Marshal(resp)
}

// DecodeCloneRepoResponse decodes a CloneRepoResponse.
func DecodeCloneRepoResponse(data []byte) (ops.CloneRepoResponse, error) {
	var resp ops.CloneRepoResponse
	if err := cbor.Unmarshal(data, &resp); err != nil {
		return ops.CloneRepoResponse{}, fmt.Errorf("wire: decode clone repo response: %w", err)
	}
	return resp, nil
}

// ErrorResponse is the wire shape of a failed request: a stable code (see
// pkg/rerr) plus a human-readable message, the way §7's error kinds are
// surfaced to a caller of a suspending transport API.
type ErrorResponse struct {
	Code    string
	Message string
}

// EncodeError encodes an ErrorResponse.
func EncodeError(e ErrorResponse) ([]byte, error) {
	return cbor.Marshal(e)
}

// DecodeError decodes an ErrorResponse.
func DecodeError(data []byte) (ErrorResponse, error) {
	var e ErrorResponse
	if err := cbor.Unmarshal(data, &e); err != nil {
		return ErrorResponse{}, fmt.Errorf("wire: decode error response: %w", err)
	}
	return e, nil
}

// messageEnvelopeWire mirrors ops.MessageEnvelope, routing its Operation
// field through the wire union.
type messageEnvelopeWire struct {
	Kind      ops.MessageKind
	Operation operationWire
}

// EncodeMessage encodes one room-broadcast MessageEnvelope.
func EncodeMessage(msg ops.MessageEnvelope) ([]byte, error) {
	w, err := toOperationWire(msg.Operation)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(messageEnvelopeWire{Kind: msg.Kind, Operation: w})
}

// DecodeMessage decodes one room-broadcast MessageEnvelope.
func DecodeMessage(data []byte) (ops.MessageEnvelope, error) {
	var w messageEnvelopeWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return ops.MessageEnvelope{}, fmt.Errorf("wire: decode message: %w", err)
	}
	op, err := fromOperationWire(w.Operation)
	if err != nil {
		return ops.MessageEnvelope{}, err
	}
	return ops.MessageEnvelope{Kind: w.Kind, Operation: op}, nil
}
