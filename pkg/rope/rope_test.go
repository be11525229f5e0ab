package rope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushAndString(t *testing.T) {
	r := New()
	r.Push("hello")
	r.Push(" world")
	assert.Equal(t, "hello world", r.String())
	assert.Equal(t, len("hello world"), r.Len())
}

func TestPushAcrossChunkBoundary(t *testing.T) {
	r := New()
	// Push enough text that chunking kicks in, then verify the concatenated
	// text round-trips exactly regardless of how it was internally split.
	long := ""
	for i := 0; i < 20; i++ {
		long += "0123456789"
	}
	r.Push(long)
	assert.Equal(t, long, r.String())
	assert.Equal(t, len(long), r.Len())
}

func TestAppendSharesChunks(t *testing.T) {
	a := FromString("abc")
	b := FromString("def")
	a.Append(b)
	assert.Equal(t, "abcdef", a.String())
	// b itself must be untouched.
	assert.Equal(t, "def", b.String())
}

func TestCloneIsolation(t *testing.T) {
	a := FromString("hello")
	b := a
	b.Push(" world")
	assert.Equal(t, "hello", a.String(), "pushing to a value-copy must not mutate the original")
	assert.Equal(t, "hello world", b.String())
}

func TestSlice(t *testing.T) {
	r := FromString("hello world")
	assert.Equal(t, "hello", r.Slice(0, 5).String())
	assert.Equal(t, "world", r.Slice(6, 11).String())
	assert.Equal(t, "", r.Slice(3, 3).String())
	assert.Equal(t, "hello world", r.Slice(0, 100).String())
	assert.Equal(t, "", r.Slice(-5, 0).String())
}

func TestSliceLongRope(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "abcdefghij"
	}
	r := FromString(long)
	for _, cut := range []int{0, 1, 63, 64, 65, 200, 499, 500} {
		require.Equal(t, long[:cut], r.Slice(0, cut).String(), "cut=%d", cut)
	}
}

func TestCursorSliceAndSuffix(t *testing.T) {
	r := FromString("hello world")
	c := r.Cursor(0)
	assert.Equal(t, "hello", c.Slice(5).String())
	assert.Equal(t, 5, c.Offset())
	assert.Equal(t, " world", c.Suffix().String())
}

func TestClipOffsetOnCodePointBoundary(t *testing.T) {
	// "é" is a 2-byte UTF-8 sequence (U+00E9 -> 0xC3 0xA9); offset 2 lands
	// inside it.
	r := FromString("aéb")
	// byte layout: a(1) é(2) b(1) -> offsets 0..4
	mid := 2 // inside the 2-byte rune
	left := r.ClipOffset(mid, Left)
	right := r.ClipOffset(mid, Right)
	assert.Equal(t, 1, left)
	assert.Equal(t, 3, right)
}

func TestClipOffsetOutOfRange(t *testing.T) {
	r := FromString("abc")
	assert.Equal(t, 0, r.ClipOffset(-5, Left))
	assert.Equal(t, 3, r.ClipOffset(100, Right))
}

func TestEmptyRope(t *testing.T) {
	r := New()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, "", r.String())
	assert.Equal(t, "", r.Slice(0, 0).String())
}
