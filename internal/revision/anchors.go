package revision

import (
	"fmt"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/internal/ops"
	"github.com/replistore/crdb/pkg/btree"
	"github.com/replistore/crdb/pkg/denseid"
	"github.com/replistore/crdb/pkg/rerr"
)

// fragmentLocation resolves an anchor's (insertion_id, offset_in_insertion)
// to the DenseId currently holding that insertion offset, seeking past the
// exact key if necessary and stepping back to the last entry at or before
// it — the fragment an insertion offset falls into isn't always keyed
// exactly at that offset once later edits have split it further. within is
// how far offset sits past that entry's own start, for anchors that land
// strictly inside a fragment rather than exactly on one of its split
// boundaries.
func (r Revision) fragmentLocation(insertionId ids.OperationId, offset int) (loc denseid.DenseId, within int, ok bool) {
	cursor := r.InsertionFragments.NewCursor()
	cursor.Seek(byInsertionOffset{InsertionId: insertionId, Offset: offset}, btree.Right)
	item, found := cursor.PrevItem()
	if !found || item.InsertionId != insertionId {
		return denseid.DenseId{}, 0, false
	}
	return item.FragmentLocation, offset - item.OffsetInInsertion, true
}

// visibleOffsetAt computes the document-local visible offset a resolved
// anchor location names: the cumulative visible length of every fragment of
// documentId sorting strictly before loc, plus (when the fragment at loc is
// currently visible) the within portion of that fragment's own length lying
// before the anchor. Using the fragment's *current* visibility (not what it
// was when the anchor was authored) is what lets an anchor track a gap
// correctly even after a concurrent edit has tombstoned or revealed a
// neighbouring fragment.
func (r Revision) visibleOffsetAt(documentId ids.OperationId, loc denseid.DenseId, within int) (int, error) {
	cursor := r.DocumentFragments.NewCursor()
	cursor.Seek(byDocument{DocumentId: documentId}, btree.Left)

	before := 0
	for {
		item, ok := cursor.Item()
		if !ok || item.DocumentId != documentId {
			return 0, rerr.InvalidOperationf("anchor location not found in document %s", documentId)
		}
		if item.Location.Equal(loc) {
			if item.Visible() {
				before += within
			}
			return before, nil
		}
		if loc.Less(item.Location) {
			return 0, rerr.InvalidOperationf("anchor location not found in document %s", documentId)
		}
		if item.Visible() {
			before += item.Len()
		}
		cursor.Next()
	}
}

// ResolveAnchorRange resolves an AnchorRange emitted by a past edit into the
// RawEdits it currently names, against selfId (the operation being
// replayed). A range whose end anchor names selfId itself is a trailing
// insertion whose own fragment doesn't exist yet in r, so it resolves to a
// zero-width edit at the start anchor.
//
// When a fragment inserted by some other concurrent operation now sits
// between the two anchors, it isn't one either anchor named and must
// survive the edit untouched, so the result splits into one RawEdit per
// contiguous run of fragments belonging to the range's own endpoints,
// skipping over anything else in between.
func (r Revision) ResolveAnchorRange(rng ops.AnchorRange, selfId ids.OperationId) ([]RawEdit, error) {
	startLoc, startWithin, ok := r.fragmentLocation(rng.Start.InsertionId, rng.Start.OffsetInInsertion)
	if !ok {
		return nil, rerr.InvalidOperation(fmt.Sprintf("start anchor (%s,%d) fails to resolve", rng.Start.InsertionId, rng.Start.OffsetInInsertion))
	}
	start, err := r.visibleOffsetAt(rng.DocumentId, startLoc, startWithin)
	if err != nil {
		return nil, err
	}

	if rng.End.InsertionId == selfId {
		return []RawEdit{{Start: start, End: start}}, nil
	}

	endLoc, endWithin, ok := r.fragmentLocation(rng.End.InsertionId, rng.End.OffsetInInsertion)
	if !ok {
		return nil, rerr.InvalidOperation(fmt.Sprintf("end anchor (%s,%d) fails to resolve", rng.End.InsertionId, rng.End.OffsetInInsertion))
	}
	end, err := r.visibleOffsetAt(rng.DocumentId, endLoc, endWithin)
	if err != nil {
		return nil, err
	}
	if end < start {
		end = start
	}
	if startLoc.Equal(endLoc) || end <= start {
		return []RawEdit{{Start: start, End: end}}, nil
	}

	return r.splitEligibleRuns(rng, startLoc, startWithin, endLoc, endWithin, start, end)
}

// splitEligibleRuns walks documentId's fragments from startLoc to endLoc,
// carving [start,end) into the sub-ranges whose fragments belong to the
// range's own two endpoint insertions. A fragment from any other insertion
// — one authored by an operation that raced the edit being replayed — falls
// in the gap between two runs and is left out of every returned RawEdit.
func (r Revision) splitEligibleRuns(rng ops.AnchorRange, startLoc denseid.DenseId, startWithin int, endLoc denseid.DenseId, endWithin int, start, end int) ([]RawEdit, error) {
	eligible := func(insertionId ids.OperationId) bool {
		return insertionId == rng.Start.InsertionId || insertionId == rng.End.InsertionId
	}

	cursor := r.DocumentFragments.NewCursor()
	cursor.Seek(byDocument{DocumentId: rng.DocumentId}, btree.Left)
	for {
		item, ok := cursor.Item()
		if !ok || item.DocumentId != rng.DocumentId {
			return nil, rerr.InvalidOperationf("anchor range not found in document %s", rng.DocumentId)
		}
		if item.Location.Equal(startLoc) {
			break
		}
		cursor.Next()
	}

	pos := start - startWithin
	var out []RawEdit
	runStart := -1
	for {
		item, ok := cursor.Item()
		if !ok || item.DocumentId != rng.DocumentId {
			return nil, rerr.InvalidOperationf("anchor range not found in document %s", rng.DocumentId)
		}
		visLen := 0
		if item.Visible() {
			visLen = item.Len()
		}
		segStart, segEnd := pos, pos+visLen
		if item.Location.Equal(startLoc) {
			segStart = start
		}
		atEnd := item.Location.Equal(endLoc)
		if atEnd {
			segEnd = end
		}

		if eligible(item.InsertionId) && segEnd > segStart {
			if runStart == -1 {
				runStart = segStart
			}
		} else if runStart != -1 {
			out = append(out, RawEdit{Start: runStart, End: segStart})
			runStart = -1
		}

		pos += visLen
		if atEnd {
			break
		}
		cursor.Next()
	}
	if runStart != -1 {
		out = append(out, RawEdit{Start: runStart, End: end})
	}
	if len(out) == 0 {
		out = append(out, RawEdit{Start: start, End: start})
	}
	return out, nil
}

// ApplyRemoteEdit replays an Edit operation authored elsewhere: every
// AnchorRange is resolved against this revision before any of them are
// applied (matching how the author computed them against a single
// snapshot), then the resolved offsets go through the same Edit machinery
// local edits use. A TextEdit that resolves to more than one RawEdit keeps
// its carried split locations on the first and last pieces, the ones
// bordering the prefix and suffix of the original range.
func (r Revision) ApplyRemoteEdit(op ops.Edit) (Revision, error) {
	var raw []RawEdit
	for _, te := range op.Edits {
		edits, err := r.ResolveAnchorRange(te.Range, op.OperationId)
		if err != nil {
			return Revision{}, err
		}
		last := len(edits) - 1
		edits[0].PrefixSplitLocation = te.PrefixSplitLocation
		edits[last].NewText = te.NewText
		edits[last].InsertionLocation = te.InsertionLocation
		edits[last].SuffixSplitLocation = te.SuffixSplitLocation
		raw = append(raw, edits...)
	}
	sortRawEdits(raw)

	_, next, err := r.Edit(op.BranchId, op.DocumentId, op.OperationId, op.ParentId, raw)
	return next, err
}

func sortRawEdits(edits []RawEdit) {
	for i := 1; i < len(edits); i++ {
		j := i
		for j > 0 && edits[j].Start < edits[j-1].Start {
			edits[j], edits[j-1] = edits[j-1], edits[j]
			j--
		}
	}
}
