package revision

import (
	"fmt"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/internal/ops"
	"github.com/replistore/crdb/pkg/btree"
	"github.com/replistore/crdb/pkg/denseid"
	"github.com/replistore/crdb/pkg/rerr"
	"github.com/replistore/crdb/pkg/rope"
)

// Revision is the materialised state at one RevisionId: every document's
// metadata, the fragment sequence backing every document, the reverse
// insertion index, and the two ropes (visible, hidden) those fragments
// project onto.
type Revision struct {
	DocumentMetadata   map[ids.OperationId]DocumentMetadata
	DocumentFragments  btree.Tree[DocumentFragment, DocumentFragmentSummary]
	InsertionFragments btree.Tree[InsertionFragment, InsertionFragmentSummary]
	VisibleText        rope.Rope
	HiddenText         rope.Rope
}

// Empty returns the base revision every repository's history starts from.
func Empty() Revision {
	return Revision{DocumentMetadata: map[ids.OperationId]DocumentMetadata{}}
}

// clone shallow-copies the document metadata map (the one piece of mutable
// state this package doesn't get structural sharing on for free) while
// sharing the fragment trees and ropes by value, which is cheap because
// their Push/Append methods always allocate fresh backing storage instead
// of writing through a shared one.
func (r Revision) clone() Revision {
	meta := make(map[ids.OperationId]DocumentMetadata, len(r.DocumentMetadata)+1)
	for k, v := range r.DocumentMetadata {
		meta[k] = v
	}
	return Revision{
		DocumentMetadata:   meta,
		DocumentFragments:  r.DocumentFragments,
		InsertionFragments: r.InsertionFragments,
		VisibleText:        r.VisibleText,
		HiddenText:         r.HiddenText,
	}
}

// Clone returns an independent copy safe for a caller (e.g. a cache keyed by
// RevisionId) to hand out repeatedly: the document metadata map is copied,
// the fragment trees and ropes are shared by value per the same reasoning as
// the package-private clone.
func (r Revision) Clone() Revision {
	return r.clone()
}

// CreateDocument inserts an empty document: a DocumentMetadata entry and a
// zero-length sentinel fragment used as the document's anchor head. Callers
// must create documents in increasing OperationId order within one
// revision's lifetime (true of every path that replays the operation log),
// since the fragment and insertion sequences are append-only here.
func (r Revision) CreateDocument(documentId ids.OperationId) Revision {
	next := r.clone()
	next.DocumentMetadata[documentId] = DocumentMetadata{LastChange: documentId}
	next.DocumentFragments.Push(DocumentFragment{
		DocumentId:  documentId,
		Location:    denseid.Min(),
		InsertionId: documentId,
	})
	next.InsertionFragments.Push(InsertionFragment{
		InsertionId:      documentId,
		FragmentLocation: denseid.Min(),
	})
	return next
}

// RawEdit is one (range, new text) pair against a document's visible
// offsets, as supplied by a caller authoring a local edit.
//
// The three Location fields let ApplyRemoteEdit replay a previously-authored
// edit's fragment placements verbatim instead of recomputing them: see
// ops.TextEdit's doc comment for why recomputing against local neighbours
// can diverge across replicas. Left zero, Edit derives fresh locations
// itself, which is what every local (author-side) caller wants.
type RawEdit struct {
	Start, End int
	NewText    string

	PrefixSplitLocation denseid.DenseId
	InsertionLocation   denseid.DenseId
	SuffixSplitLocation denseid.DenseId
}

// placeBetween picks the location for a newly created fragment: it reuses a
// carried location verbatim when replaying a remote edit, or derives a
// fresh one, tagged with the authoring operation's id, when authoring
// locally. The tiebreak tag is what lets two concurrent local edits that
// independently bisect the identical (lastLoc, nextLoc) bracket end up with
// distinct, consistently-ordered locations instead of colliding.
func placeBetween(carried, lastLoc, nextLoc denseid.DenseId, opId ids.OperationId) denseid.DenseId {
	if len(carried.Bytes()) > 0 {
		return carried
	}
	return denseid.Between(lastLoc, nextLoc).WithTiebreak(uint32(opId.ReplicaId), uint64(opId.OperationCount))
}

// piece is one run of text carried from the old ropes (or freshly inserted)
// into the rebuilt visible/hidden ropes for the edited document.
type piece struct {
	len        int
	literal    string
	fromHidden bool
	newVisible bool
}

// Edit implements the incremental edit algorithm: it rewrites the document's
// fragment sequence and the revision's two ropes, and returns the Edit
// operation whose ranges are anchors so it can be replayed on any revision.
func (r Revision) Edit(branchId, documentId, opId ids.OperationId, parent ids.RevisionId, edits []RawEdit) (ops.Edit, Revision, error) {
	for i := 1; i < len(edits); i++ {
		if edits[i].Start < edits[i-1].End {
			return ops.Edit{}, Revision{}, rerr.InvalidOperationf("edit ranges must be ascending and non-overlapping: [%d,%d) before [%d,%d)", edits[i-1].Start, edits[i-1].End, edits[i].Start, edits[i].End)
		}
	}
	for _, e := range edits {
		if e.Start < 0 || e.End < e.Start {
			return ops.Edit{}, Revision{}, rerr.InvalidOperationf("invalid edit range [%d,%d)", e.Start, e.End)
		}
	}

	cursor := r.DocumentFragments.NewCursor()
	prefixTree := cursor.Slice(byDocument{DocumentId: documentId}, btree.Left)
	documentVisibleStart := prefixTree.Summary().VisibleLen
	documentHiddenStart := prefixTree.Summary().HiddenLen

	var docFragments []DocumentFragment
	for {
		item, ok := cursor.Item()
		if !ok || item.DocumentId != documentId {
			break
		}
		docFragments = append(docFragments, item)
		cursor.Next()
	}
	suffixTree := cursor.Suffix()

	if len(docFragments) == 0 {
		return ops.Edit{}, Revision{}, rerr.NotFound(fmt.Sprintf("document %s not found", documentId))
	}

	oldDocVisibleLen, oldDocHiddenLen := 0, 0
	for _, f := range docFragments {
		if f.Visible() {
			oldDocVisibleLen += f.Len()
		} else {
			oldDocHiddenLen += f.Len()
		}
	}
	oldDocVisibleRope := r.VisibleText.Slice(documentVisibleStart, documentVisibleStart+oldDocVisibleLen)
	oldDocHiddenRope := r.HiddenText.Slice(documentHiddenStart, documentHiddenStart+oldDocHiddenLen)

	var newDocFragments []DocumentFragment
	var pieces []piece
	lastLoc := denseid.Min()
	k := 0
	fi := 0
	visiblePos := 0

	emitWhole := func(f DocumentFragment) {
		newDocFragments = append(newDocFragments, f)
		pieces = append(pieces, piece{len: f.Len(), fromHidden: !f.Visible(), newVisible: f.Visible()})
		if f.Visible() {
			visiblePos += f.Len()
		}
		lastLoc = f.Location
	}

	var edit ops.Edit
	edit.OperationId = opId
	edit.ParentId = parent
	edit.BranchId = branchId
	edit.DocumentId = documentId

	for _, e := range edits {
		absStart, absEnd := e.Start, e.End

		hasCarriedInsertion := len(e.InsertionLocation.Bytes()) > 0
		for fi < len(docFragments) {
			f := docFragments[fi]
			if !f.Visible() {
				emitWhole(f)
				fi++
				continue
			}
			if visiblePos+f.Len() <= absStart {
				emitWhole(f)
				fi++
				continue
			}
			// Replaying a remote insertion whose location was already decided
			// by its author: a fragment that sorts before that location is a
			// concurrent sibling that landed here first locally (this replica
			// applied it before this operation arrived) and belongs ahead of
			// the incoming insertion regardless of what the offset-based walk
			// alone would conclude, so every replica places the pair of
			// concurrent inserts in the same relative order.
			if hasCarriedInsertion && f.Location.Less(e.InsertionLocation) {
				emitWhole(f)
				fi++
				continue
			}
			break
		}
		if fi >= len(docFragments) && visiblePos < absStart {
			return ops.Edit{}, Revision{}, rerr.InvalidOperationf("edit start %d beyond document length %d", absStart, visiblePos)
		}

		var prefixSplitLoc denseid.DenseId
		var startAnchor ops.Anchor
		splitAtStart := false
		if fi < len(docFragments) {
			f := docFragments[fi]
			if f.Visible() && absStart > visiblePos {
				offsetWithin := absStart - visiblePos
				newLoc := placeBetween(e.PrefixSplitLocation, lastLoc, f.Location, opId)
				prefixSplitLoc = newLoc
				prefix := f
				prefix.Location = newLoc
				prefix.SubrangeEnd = f.SubrangeStart + offsetWithin
				newDocFragments = append(newDocFragments, prefix)
				pieces = append(pieces, piece{len: offsetWithin, newVisible: true})
				lastLoc = newLoc
				visiblePos += offsetWithin

				startAnchor = ops.Anchor{InsertionId: f.InsertionId, OffsetInInsertion: f.SubrangeStart + offsetWithin, Bias: ids.BiasRight}
				splitAtStart = true

				remainder := f
				remainder.SubrangeStart = f.SubrangeStart + offsetWithin
				docFragments[fi] = remainder
			}
		}
		if !splitAtStart {
			if prev, ok := lastEmitted(newDocFragments); ok {
				startAnchor = ops.Anchor{InsertionId: prev.InsertionId, OffsetInInsertion: prev.SubrangeEnd, Bias: ids.BiasRight}
			} else {
				startAnchor = ops.Anchor{InsertionId: documentId, OffsetInInsertion: 0, Bias: ids.BiasRight}
			}
		}

		var insertionLoc denseid.DenseId
		if e.NewText != "" {
			var nextLoc denseid.DenseId
			if fi < len(docFragments) {
				nextLoc = docFragments[fi].Location
			} else {
				nextLoc = denseid.Max()
			}
			newLoc := placeBetween(e.InsertionLocation, lastLoc, nextLoc, opId)
			insertionLoc = newLoc
			ins := DocumentFragment{
				DocumentId:    documentId,
				Location:      newLoc,
				InsertionId:   opId,
				SubrangeStart: k,
				SubrangeEnd:   k + len(e.NewText),
			}
			newDocFragments = append(newDocFragments, ins)
			pieces = append(pieces, piece{len: len(e.NewText), literal: e.NewText, newVisible: true})
			k += len(e.NewText)
			lastLoc = newLoc
		}

		var suffixSplitLoc denseid.DenseId
		for fi < len(docFragments) && visiblePos < absEnd {
			f := docFragments[fi]
			if !f.Visible() {
				emitWhole(f)
				fi++
				continue
			}
			if visiblePos+f.Len() <= absEnd {
				tomb := f
				tomb.Tombstones = appendTombstone(f.Tombstones, opId)
				newDocFragments = append(newDocFragments, tomb)
				pieces = append(pieces, piece{len: f.Len(), newVisible: false})
				visiblePos += f.Len()
				lastLoc = f.Location
				fi++
				continue
			}

			offsetWithin := absEnd - visiblePos
			tomb := f
			tomb.SubrangeEnd = f.SubrangeStart + offsetWithin
			tomb.Tombstones = appendTombstone(f.Tombstones, opId)
			newDocFragments = append(newDocFragments, tomb)
			pieces = append(pieces, piece{len: offsetWithin, newVisible: false})
			visiblePos += offsetWithin
			lastLoc = f.Location

			var afterLoc denseid.DenseId
			if fi+1 < len(docFragments) {
				afterLoc = docFragments[fi+1].Location
			} else {
				afterLoc = denseid.Max()
			}
			newLoc := placeBetween(e.SuffixSplitLocation, lastLoc, afterLoc, opId)
			suffixSplitLoc = newLoc
			remainder := f
			remainder.Location = newLoc
			remainder.SubrangeStart = f.SubrangeStart + offsetWithin
			docFragments[fi] = remainder
			break
		}

		var endAnchor ops.Anchor
		if fi < len(docFragments) {
			nf := docFragments[fi]
			endAnchor = ops.Anchor{InsertionId: nf.InsertionId, OffsetInInsertion: nf.SubrangeStart, Bias: ids.BiasLeft}
		} else if last, ok := lastEmitted(newDocFragments); ok {
			endAnchor = ops.Anchor{InsertionId: last.InsertionId, OffsetInInsertion: last.SubrangeEnd, Bias: ids.BiasLeft}
		} else {
			endAnchor = ops.Anchor{InsertionId: documentId, OffsetInInsertion: 0, Bias: ids.BiasLeft}
		}

		edit.Edits = append(edit.Edits, ops.TextEdit{
			Range:               ops.AnchorRange{DocumentId: documentId, Start: startAnchor, End: endAnchor},
			NewText:             e.NewText,
			PrefixSplitLocation: prefixSplitLoc,
			InsertionLocation:   insertionLoc,
			SuffixSplitLocation: suffixSplitLoc,
		})
	}

	for fi < len(docFragments) {
		emitWhole(docFragments[fi])
		fi++
	}

	ovc := oldDocVisibleRope.Cursor(0)
	ohc := oldDocHiddenRope.Cursor(0)
	var newDocVisible, newDocHidden rope.Rope
	for _, p := range pieces {
		var text string
		switch {
		case p.literal != "":
			text = p.literal
		case p.fromHidden:
			text = ohc.Slice(ohc.Offset() + p.len).String()
		default:
			text = ovc.Slice(ovc.Offset() + p.len).String()
		}
		if p.newVisible {
			newDocVisible.Push(text)
		} else {
			newDocHidden.Push(text)
		}
	}

	next := r.clone()
	next.DocumentMetadata[documentId] = DocumentMetadata{LastChange: opId}

	rebuiltDocFragments := append(append([]DocumentFragment{}, prefixTree.Items()...), newDocFragments...)
	rebuiltDocFragments = append(rebuiltDocFragments, suffixTree.Items()...)
	next.DocumentFragments = btree.FromItems[DocumentFragment, DocumentFragmentSummary](rebuiltDocFragments)

	oldDocKeys := make(map[insertionKey]struct{}, len(docFragments))
	for _, f := range docFragments {
		oldDocKeys[insertionKey{f.InsertionId, f.SubrangeStart}] = struct{}{}
	}
	var rebuiltInsertions []InsertionFragment
	for _, item := range r.InsertionFragments.Items() {
		if _, stale := oldDocKeys[insertionKey{item.InsertionId, item.OffsetInInsertion}]; stale {
			continue
		}
		rebuiltInsertions = append(rebuiltInsertions, item)
	}
	for _, f := range newDocFragments {
		rebuiltInsertions = append(rebuiltInsertions, InsertionFragment{
			InsertionId:       f.InsertionId,
			OffsetInInsertion: f.SubrangeStart,
			FragmentLocation:  f.Location,
		})
	}
	sortInsertionFragments(rebuiltInsertions)
	next.InsertionFragments = btree.FromItems[InsertionFragment, InsertionFragmentSummary](rebuiltInsertions)

	next.VisibleText = rope.New()
	next.VisibleText.Append(r.VisibleText.Slice(0, documentVisibleStart))
	next.VisibleText.Append(newDocVisible)
	next.VisibleText.Append(r.VisibleText.Slice(documentVisibleStart+oldDocVisibleLen, r.VisibleText.Len()))

	next.HiddenText = rope.New()
	next.HiddenText.Append(r.HiddenText.Slice(0, documentHiddenStart))
	next.HiddenText.Append(newDocHidden)
	next.HiddenText.Append(r.HiddenText.Slice(documentHiddenStart+oldDocHiddenLen, r.HiddenText.Len()))

	return edit, next, nil
}

type insertionKey struct {
	insertionId ids.OperationId
	offset      int
}

func appendTombstone(existing []Tombstone, id ids.OperationId) []Tombstone {
	out := make([]Tombstone, len(existing)+1)
	copy(out, existing)
	out[len(existing)] = Tombstone{Id: id, UndoCount: 0}
	return out
}

func lastEmitted(fs []DocumentFragment) (DocumentFragment, bool) {
	if len(fs) == 0 {
		return DocumentFragment{}, false
	}
	return fs[len(fs)-1], true
}

func sortInsertionFragments(items []InsertionFragment) {
	// insertion sort: the rebuilt slice is the concatenation of two already
	// mostly-sorted runs (surviving old entries, new entries), so this
	// stays close to linear in practice.
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && insertionLess(items[j], items[j-1]) {
			items[j], items[j-1] = items[j-1], items[j]
			j--
		}
	}
}

func insertionLess(a, b InsertionFragment) bool {
	if a.InsertionId != b.InsertionId {
		return a.InsertionId.Less(b.InsertionId)
	}
	return a.OffsetInInsertion < b.OffsetInInsertion
}
