// Package rope implements a chunked, structurally-shared text buffer used as
// the visible/hidden backing store for documents: cheap to clone, cheap to
// append, and able to clip an arbitrary byte offset to the nearest UTF-8
// code-point boundary.
package rope

import (
	"strings"
	"unicode/utf8"
)

// chunkTarget is the target size in bytes for a single chunk; chunks are
// merged or split to stay near this size as ropes are built and sliced.
const chunkTarget = 64

// Bias selects which side of a non-boundary offset clipping should snap to.
type Bias int

const (
	// Left snaps down to the nearest boundary at or before the offset.
	Left Bias = iota
	// Right snaps up to the nearest boundary at or after the offset.
	Right
)

// chunk is an immutable leaf of text; ropes share chunks by reference so
// cloning a Rope is O(len(chunks)) rather than O(bytes).
type chunk struct {
	text string
}

// Rope is a sequence of chunks forming one contiguous piece of text. The
// zero value is an empty rope.
type Rope struct {
	chunks []chunk
	length int
}

// New returns an empty rope.
func New() Rope {
	return Rope{}
}

// FromString builds a rope out of a plain string, splitting it into chunks.
func FromString(s string) Rope {
	var r Rope
	r.Push(s)
	return r
}

// Len returns the rope's length in bytes.
func (r Rope) Len() int {
	return r.length
}

// String materialises the rope's full text. Intended for tests and small
// ropes; callers on a hot path should use Slice+Cursor instead.
func (r Rope) String() string {
	var b strings.Builder
	b.Grow(r.length)
	for _, c := range r.chunks {
		b.WriteString(c.text)
	}
	return b.String()
}

// Push appends raw text to the rope, repacking the tail chunk so that most
// chunks stay near chunkTarget bytes.
//
// Ropes are copied by struct-value assignment to clone them cheaply, so
// every mutation here allocates a fresh, exact-capacity chunks slice rather
// than writing through the existing one: two ropes sharing a backing array
// must never be able to corrupt each other when one is pushed to.
func (r *Rope) Push(s string) {
	if s == "" {
		return
	}
	r.length += len(s)

	n := len(r.chunks)
	if n > 0 && len(r.chunks[n-1].text) < chunkTarget {
		combined := r.chunks[n-1].text + s
		newChunks := make([]chunk, n)
		copy(newChunks, r.chunks)
		if len(combined) <= chunkTarget*2 {
			newChunks[n-1] = chunk{text: combined}
			r.chunks = newChunks
			return
		}
		newChunks[n-1] = chunk{text: combined[:chunkTarget]}
		r.chunks = newChunks
		s = combined[chunkTarget:]
	}

	var appended []chunk
	for len(s) > chunkTarget {
		cut := chunkTarget
		for cut < len(s) && !utf8.RuneStart(s[cut]) {
			cut++
		}
		if cut >= len(s) {
			break
		}
		appended = append(appended, chunk{text: s[:cut]})
		s = s[cut:]
	}
	if s != "" {
		appended = append(appended, chunk{text: s})
	}
	if len(appended) == 0 {
		return
	}
	newChunks := make([]chunk, len(r.chunks)+len(appended))
	copy(newChunks, r.chunks)
	copy(newChunks[len(r.chunks):], appended)
	r.chunks = newChunks
}

// Append concatenates other onto r, sharing other's chunks by reference.
func (r *Rope) Append(other Rope) {
	if other.length == 0 {
		return
	}
	if r.length == 0 {
		*r = other
		return
	}
	newChunks := make([]chunk, len(r.chunks)+len(other.chunks))
	copy(newChunks, r.chunks)
	copy(newChunks[len(r.chunks):], other.chunks)
	r.chunks = newChunks
	r.length += other.length
}

// Slice returns the substring rope covering the half-open byte range.
func (r Rope) Slice(start, end int) Rope {
	if start < 0 {
		start = 0
	}
	if end > r.length {
		end = r.length
	}
	if start >= end {
		return Rope{}
	}

	var out Rope
	offset := 0
	for _, c := range r.chunks {
		chunkStart, chunkEnd := offset, offset+len(c.text)
		offset = chunkEnd
		if chunkEnd <= start || chunkStart >= end {
			continue
		}
		lo := start - chunkStart
		if lo < 0 {
			lo = 0
		}
		hi := end - chunkStart
		if hi > len(c.text) {
			hi = len(c.text)
		}
		out.Push(c.text[lo:hi])
	}
	return out
}

// ClipOffset snaps offset to the nearest UTF-8 code-point boundary,
// preferring the boundary at or before offset for Left bias and at or after
// offset for Right bias.
func (r Rope) ClipOffset(offset int, bias Bias) int {
	if offset <= 0 {
		return 0
	}
	if offset >= r.length {
		return r.length
	}

	full := r.String() // boundary search only; callers doing hot-path work use Cursor
	if utf8.RuneStart(full[offset]) {
		return offset
	}
	if bias == Left {
		for offset > 0 && !utf8.RuneStart(full[offset]) {
			offset--
		}
		return offset
	}
	for offset < len(full) && !utf8.RuneStart(full[offset]) {
		offset++
	}
	return offset
}

// Cursor returns a cursor positioned at the given byte offset.
func (r Rope) Cursor(offset int) *Cursor {
	return &Cursor{rope: r, offset: offset}
}

// Cursor walks a rope from a starting offset, handing out slices of the
// traversed text and the untouched suffix.
type Cursor struct {
	rope   Rope
	offset int
}

// Offset returns the cursor's current byte position.
func (c *Cursor) Offset() int {
	return c.offset
}

// Slice advances the cursor to end and returns the rope spanning
// [offset, end).
func (c *Cursor) Slice(end int) Rope {
	out := c.rope.Slice(c.offset, end)
	c.offset = end
	return out
}

// Suffix consumes and returns the remainder of the rope from the cursor's
// current position.
func (c *Cursor) Suffix() Rope {
	return c.Slice(c.rope.Len())
}
