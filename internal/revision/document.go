package revision

import (
	"fmt"

	"github.com/replistore/crdb/internal/ids"
	"github.com/replistore/crdb/pkg/btree"
	"github.com/replistore/crdb/pkg/rerr"
	"github.com/replistore/crdb/pkg/rope"
)

// DocumentVisibleStart returns the cumulative visible length of every
// fragment sorting before documentId's own fragments — the offset within
// VisibleText where this document's text begins.
func (r Revision) DocumentVisibleStart(documentId ids.OperationId) int {
	cursor := r.DocumentFragments.NewCursor()
	prefix := cursor.Slice(byDocument{DocumentId: documentId}, btree.Left)
	return prefix.Summary().VisibleLen
}

// DocumentVisibleRange returns the half-open byte range within VisibleText
// that documentId's text occupies.
func (r Revision) DocumentVisibleRange(documentId ids.OperationId) (int, int, error) {
	if _, ok := r.DocumentMetadata[documentId]; !ok {
		return 0, 0, rerr.NotFound(fmt.Sprintf("document %s not found", documentId))
	}
	start := r.DocumentVisibleStart(documentId)

	cursor := r.DocumentFragments.NewCursor()
	cursor.Slice(byDocument{DocumentId: documentId}, btree.Left)
	visibleLen := 0
	for {
		item, ok := cursor.Item()
		if !ok || item.DocumentId != documentId {
			break
		}
		if item.Visible() {
			visibleLen += item.Len()
		}
		cursor.Next()
	}
	return start, start + visibleLen, nil
}

// Text returns documentId's current visible text.
func (r Revision) Text(documentId ids.OperationId) (string, error) {
	start, end, err := r.DocumentVisibleRange(documentId)
	if err != nil {
		return "", err
	}
	return r.VisibleText.Slice(start, end).String(), nil
}

// Len returns the byte length of documentId's visible text.
func (r Revision) Len(documentId ids.OperationId) (int, error) {
	start, end, err := r.DocumentVisibleRange(documentId)
	if err != nil {
		return 0, err
	}
	return end - start, nil
}

// ClipOffset snaps a document-local offset to the nearest code-point
// boundary within documentId's visible text.
func (r Revision) ClipOffset(documentId ids.OperationId, offset int, bias rope.Bias) (int, error) {
	start, end, err := r.DocumentVisibleRange(documentId)
	if err != nil {
		return 0, err
	}
	clipped := r.VisibleText.ClipOffset(start+offset, bias)
	if clipped < start {
		clipped = start
	}
	if clipped > end {
		clipped = end
	}
	return clipped - start, nil
}

// CheckInvariants verifies the structural invariants of §3 that aren't
// enforced by construction: strictly increasing locations per document,
// a unique sentinel, and a non-empty insertion_subrange on every
// non-sentinel fragment. It is a debug aid exercised by tests, not part of
// any hot path.
func (r Revision) CheckInvariants() error {
	fragments := r.DocumentFragments.Items()
	sentinelSeen := map[ids.OperationId]bool{}

	for _, f := range fragments {
		if f.IsSentinel() {
			if sentinelSeen[f.DocumentId] {
				return fmt.Errorf("revision: duplicate sentinel for document %s", f.DocumentId)
			}
			sentinelSeen[f.DocumentId] = true
		} else if f.Len() == 0 {
			return fmt.Errorf("revision: non-sentinel fragment %s/%d has empty insertion_subrange", f.InsertionId, f.SubrangeStart)
		}
	}

	byDoc := map[ids.OperationId][]DocumentFragment{}
	for _, f := range fragments {
		byDoc[f.DocumentId] = append(byDoc[f.DocumentId], f)
	}
	for doc, fs := range byDoc {
		for i := 1; i < len(fs); i++ {
			if !fs[i-1].Location.Less(fs[i].Location) {
				return fmt.Errorf("revision: document %s fragment locations not strictly increasing at index %d", doc, i)
			}
		}
	}

	seen := map[insertionKey]bool{}
	for _, f := range fragments {
		key := insertionKey{f.InsertionId, f.SubrangeStart}
		if seen[key] {
			return fmt.Errorf("revision: duplicate document fragment for insertion %s offset %d", f.InsertionId, f.SubrangeStart)
		}
		seen[key] = true
	}
	return nil
}
