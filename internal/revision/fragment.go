// Package revision implements the per-revision document model: fragments,
// insertions, tombstones, and the incremental edit algorithm that turns a
// set of visible-offset edits into a new Revision plus an Edit operation
// whose ranges are anchors, replayable on any revision.
package revision

import (
	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/pkg/denseid"
)

// Tombstone records that an edit removed a fragment; a fragment stays
// visible only while every tombstone on it has an odd undo_count.
type Tombstone struct {
	Id        ids.OperationId
	UndoCount int
}

// DocumentFragment is a contiguous run of one insertion, placed at a
// DenseId location within its document's fragment sequence.
type DocumentFragment struct {
	DocumentId    ids.OperationId
	Location      denseid.DenseId
	InsertionId   ids.OperationId
	SubrangeStart int
	SubrangeEnd   int
	Tombstones    []Tombstone
	UndoCount     int
}

// Len returns the fragment's length: the span of its insertion it covers.
func (f DocumentFragment) Len() int {
	return f.SubrangeEnd - f.SubrangeStart
}

// IsSentinel reports whether f is the zero-length marker CreateDocument
// installs as the document's anchor head.
func (f DocumentFragment) IsSentinel() bool {
	return f.InsertionId == f.DocumentId
}

// Visible reports whether f currently contributes to the document's visible
// text: its own undo_count is even and every tombstone on it is odd.
func (f DocumentFragment) Visible() bool {
	if f.UndoCount%2 != 0 {
		return false
	}
	for _, t := range f.Tombstones {
		if t.UndoCount%2 == 0 {
			return false
		}
	}
	return true
}

// DocumentFragmentSummary folds over a run of DocumentFragments.
type DocumentFragmentSummary struct {
	VisibleLen    int
	HiddenLen     int
	MaxDocumentId ids.OperationId
	MaxLocation   denseid.DenseId
}

// Summary implements btree.Item.
func (f DocumentFragment) Summary() DocumentFragmentSummary {
	s := DocumentFragmentSummary{MaxDocumentId: f.DocumentId, MaxLocation: f.Location}
	if f.Visible() {
		s.VisibleLen = f.Len()
	} else {
		s.HiddenLen = f.Len()
	}
	return s
}

// Add implements btree.Summary.
func (s DocumentFragmentSummary) Add(other DocumentFragmentSummary) DocumentFragmentSummary {
	out := DocumentFragmentSummary{
		VisibleLen:    s.VisibleLen + other.VisibleLen,
		HiddenLen:     s.HiddenLen + other.HiddenLen,
		MaxDocumentId: s.MaxDocumentId,
		MaxLocation:   s.MaxLocation,
	}
	if other.MaxDocumentId.Compare(out.MaxDocumentId) > 0 {
		out.MaxDocumentId = other.MaxDocumentId
	}
	if out.MaxLocation.Bytes() == nil || out.MaxLocation.Less(other.MaxLocation) {
		out.MaxLocation = other.MaxLocation
	}
	return out
}

// InsertionFragment maps an author's insertion offset back to the current
// fragment location, resolving anchors across concurrent edits.
type InsertionFragment struct {
	InsertionId       ids.OperationId
	OffsetInInsertion int
	FragmentLocation  denseid.DenseId
}

// InsertionFragmentSummary folds over a run of InsertionFragments.
type InsertionFragmentSummary struct {
	MaxInsertionId       ids.OperationId
	MaxOffsetInInsertion int
}

// Summary implements btree.Item.
func (f InsertionFragment) Summary() InsertionFragmentSummary {
	return InsertionFragmentSummary{MaxInsertionId: f.InsertionId, MaxOffsetInInsertion: f.OffsetInInsertion}
}

// Add implements btree.Summary.
func (s InsertionFragmentSummary) Add(other InsertionFragmentSummary) InsertionFragmentSummary {
	out := s
	cmp := other.MaxInsertionId.Compare(out.MaxInsertionId)
	if cmp > 0 || (cmp == 0 && other.MaxOffsetInInsertion > out.MaxOffsetInInsertion) {
		out.MaxInsertionId = other.MaxInsertionId
		out.MaxOffsetInInsertion = other.MaxOffsetInInsertion
	}
	return out
}

// DocumentMetadata is the per-document bookkeeping entry kept in a
// revision's document_metadata map.
type DocumentMetadata struct {
	LastChange ids.OperationId
}

// byDocument seeks document_fragments to the first fragment of a document.
type byDocument struct {
	DocumentId ids.OperationId
}

func (t byDocument) CompareCumulative(cum DocumentFragmentSummary) int {
	return cum.MaxDocumentId.Compare(t.DocumentId)
}

// byDocumentVisibleOffset seeks document_fragments to the fragment
// containing a given visible offset within a specific document.
type byDocumentVisibleOffset struct {
	DocumentId ids.OperationId
	VisibleLen int
}

func (t byDocumentVisibleOffset) CompareCumulative(cum DocumentFragmentSummary) int {
	if c := cum.MaxDocumentId.Compare(t.DocumentId); c != 0 {
		return c
	}
	return intCompare(cum.VisibleLen, t.VisibleLen)
}

// byInsertionOffset seeks insertion_fragments to a specific
// (insertion_id, offset_in_insertion) key.
type byInsertionOffset struct {
	InsertionId ids.OperationId
	Offset      int
}

func (t byInsertionOffset) CompareCumulative(cum InsertionFragmentSummary) int {
	if c := cum.MaxInsertionId.Compare(t.InsertionId); c != 0 {
		return c
	}
	return intCompare(cum.MaxOffsetInInsertion, t.Offset)
}

func intCompare(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
