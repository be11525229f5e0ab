// Package ops defines the three operation types a repository's log is built
// from, plus the tagged envelopes used to carry them over the wire and
// between the coordinator and its rooms.
package ops

import (
	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/pkg/denseid"
)

// Anchor names a position by the insertion that originally placed it, so it
// stays valid across concurrent edits that move surrounding fragments.
type Anchor struct {
	InsertionId       ids.OperationId
	OffsetInInsertion int
	Bias              ids.Bias
}

// AnchorRange names a half-open span within one document using independent
// anchors (and biases) for its two ends.
type AnchorRange struct {
	DocumentId ids.OperationId
	Start      Anchor
	End        Anchor
}

// TextEdit pairs an AnchorRange with the text that replaces it. An empty
// NewText is a pure deletion; a zero-length range with non-empty NewText is
// a pure insertion.
//
// The three Location fields are the DenseIds the authoring replica assigned
// to any new DocumentFragment this edit creates: a prefix split, the newly
// inserted text, a suffix split. They're carried on the wire and reused
// verbatim by every replica that replays this edit rather than recomputed
// against whatever that replica's own fragment neighbours happen to be at
// replay time, which could differ from the author's neighbours if a
// concurrent edit landed in the same gap first. Recomputing independently
// would let two replicas order the same pair of concurrent inserts
// differently depending on which one they apply first; reusing the
// author's own answer keeps that pair ordered identically everywhere it's
// later compared. A zero-value Location (no bytes) means that split/
// insertion didn't happen in this edit.
type TextEdit struct {
	Range               AnchorRange
	NewText             string
	PrefixSplitLocation denseid.DenseId
	InsertionLocation   denseid.DenseId
	SuffixSplitLocation denseid.DenseId
}

// Operation is anything with an identity and a causal parent.
type Operation interface {
	Id() ids.OperationId
	Parent() ids.RevisionId
}

// CreateBranch allocates a new named branch whose head starts at its own id.
type CreateBranch struct {
	OperationId ids.OperationId
	ParentId    ids.RevisionId
	Name        string
}

func (o CreateBranch) Id() ids.OperationId    { return o.OperationId }
func (o CreateBranch) Parent() ids.RevisionId { return o.ParentId }

// CreateDocument inserts an empty document (metadata plus sentinel fragment)
// into a branch.
type CreateDocument struct {
	OperationId ids.OperationId
	ParentId    ids.RevisionId
	BranchId    ids.OperationId
}

func (o CreateDocument) Id() ids.OperationId    { return o.OperationId }
func (o CreateDocument) Parent() ids.RevisionId { return o.ParentId }

// Edit applies one or more text edits to a single document.
type Edit struct {
	OperationId ids.OperationId
	ParentId    ids.RevisionId
	BranchId    ids.OperationId
	DocumentId  ids.OperationId
	Edits       []TextEdit
}

func (o Edit) Id() ids.OperationId    { return o.OperationId }
func (o Edit) Parent() ids.RevisionId { return o.ParentId }

// Kind tags an Operation's concrete variant for envelopes and wire encoding.
type Kind int

const (
	KindCreateBranch Kind = iota + 1
	KindCreateDocument
	KindEdit
)

// KindOf reports which Kind an Operation is, for dispatch without runtime
// type assertions scattered across callers.
func KindOf(op Operation) Kind {
	switch op.(type) {
	case CreateBranch:
		return KindCreateBranch
	case CreateDocument:
		return KindCreateDocument
	case Edit:
		return KindEdit
	default:
		return 0
	}
}

// RequestKind tags the point-to-point request/response variants of §6.
type RequestKind int

const (
	RequestPublishRepo RequestKind = iota + 1
	RequestCloneRepo
	RequestSyncRepo
	RequestPublishOperations
)

// RequestEnvelope wraps one request variant for the wire; exactly one of
// the payload fields is populated, matching RequestKind.
type RequestEnvelope struct {
	Kind              RequestKind
	PublishRepo       *PublishRepoRequest
	CloneRepo         *CloneRepoRequest
	SyncRepo          *SyncRepoRequest
	PublishOperations *PublishOperationsRequest
}

type PublishRepoRequest struct {
	RepoId ids.RepoId
	Name   string
}

type PublishRepoResponse struct {
	Credentials RoomCredentials
}

type CloneRepoRequest struct {
	Name string
}

type CloneRepoResponse struct {
	RepoId      ids.RepoId
	ReplicaId   ids.ReplicaId
	Credentials RoomCredentials
}

type SyncRepoRequest struct {
	RepoId          ids.RepoId
	MaxOperationIds map[ids.ReplicaId]ids.OperationCount
}

type SyncRepoResponse struct {
	Operations      []Operation
	MaxOperationIds map[ids.ReplicaId]ids.OperationCount
}

type PublishOperationsRequest struct {
	RepoId     ids.RepoId
	Operations []Operation
}

// RoomCredentials authorises a replica to join a repo's broadcast room.
type RoomCredentials struct {
	Name  RoomName
	Token RoomToken
}

type RoomName string
type RoomToken string

// MessageKind tags the one-to-many room-broadcast variants of §6.
type MessageKind int

const (
	MessageOperation MessageKind = iota + 1
)

// MessageEnvelope wraps one room-broadcast message variant.
type MessageEnvelope struct {
	Kind      MessageKind
	Operation Operation
}
