package denseid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinMaxOrdering(t *testing.T) {
	assert.True(t, Min().Less(Max()))
	assert.False(t, Max().Less(Min()))
}

func TestBetweenOrdering(t *testing.T) {
	a, b := Min(), Max()
	m := Between(a, b)
	assert.True(t, a.Less(m))
	assert.True(t, m.Less(b))
}

func TestBetweenRepeatedInsertionsStayOrdered(t *testing.T) {
	lo, hi := Min(), Max()
	var chain []DenseId
	chain = append(chain, lo)
	for i := 0; i < 200; i++ {
		m := Between(chain[len(chain)-1], hi)
		chain = append(chain, m)
	}
	chain = append(chain, hi)
	for i := 1; i < len(chain); i++ {
		assert.True(t, chain[i-1].Less(chain[i]), "index %d not strictly increasing", i)
	}
}

func TestBetweenBisecting(t *testing.T) {
	lo, hi := Min(), Max()
	for i := 0; i < 64; i++ {
		m := Between(lo, hi)
		assert.True(t, lo.Less(m))
		assert.True(t, m.Less(hi))
		hi = m
	}
}

func TestBetweenLengthGrowsSlowly(t *testing.T) {
	// Repeated insertion at the same spot (always splitting between the
	// previous id and a fixed upper bound) should not blow up id length
	// linearly with insert count: bisection within the [1,254] digit space
	// buys roughly one extra byte per ~8 inserts, nowhere near one byte per
	// insert.
	lo, hi := Min(), Max()
	for i := 0; i < 500; i++ {
		lo = Between(lo, hi)
	}
	assert.Less(t, len(lo.Bytes()), 120)
}

func TestBetweenPanicsOnBadRange(t *testing.T) {
	assert.Panics(t, func() { Between(Max(), Min()) })
	assert.Panics(t, func() { Between(Min(), Min()) })
}

func TestFromBytesRoundTrip(t *testing.T) {
	original := Between(Min(), Max())
	cp := FromBytes(original.Bytes())
	assert.True(t, cp.Equal(original))

	// FromBytes must copy, not alias, so mutating the source slice later
	// can't corrupt the DenseId.
	raw := append([]byte{}, original.Bytes()...)
	wrapped := FromBytes(raw)
	raw[0] = 0
	require.True(t, wrapped.Equal(original))
}

func TestWithTiebreakStaysWithinBracket(t *testing.T) {
	a, b := Min(), Max()
	base := Between(a, b)
	tagged := base.WithTiebreak(7, 42)
	assert.True(t, a.Less(tagged))
	assert.True(t, tagged.Less(b))
	assert.True(t, base.Less(tagged))
}

func TestWithTiebreakBreaksTiesConsistently(t *testing.T) {
	a, b := Min(), Max()
	// Two replicas computing Between on the identical bracket get identical
	// results; tagging with distinct operation ids must still let the two be
	// compared consistently regardless of which side evaluates the order.
	base1 := Between(a, b)
	base2 := Between(a, b)
	require.True(t, base1.Equal(base2))

	x := base1.WithTiebreak(1, 10)
	y := base2.WithTiebreak(2, 10)
	assert.NotEqual(t, x.Compare(y), 0)
	assert.Equal(t, x.Compare(y), -y.Compare(x))
}

func TestCompareTransitivity(t *testing.T) {
	a := Min()
	b := Between(a, Max())
	c := Between(b, Max())
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, -1, b.Compare(c))
	assert.Equal(t, -1, a.Compare(c))
	assert.Equal(t, 0, a.Compare(a))
}
