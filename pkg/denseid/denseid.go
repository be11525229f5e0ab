// Package denseid implements dense, infinitely-subdividable position keys:
// non-empty byte strings that are totally ordered lexicographically, with a
// `Between` operation that always produces a value strictly between any two
// distinct, correctly-ordered inputs.
package denseid

import (
	"encoding/binary"
	"fmt"
)

// DenseId is an ordered, subdividable position key. The zero value is not
// valid; use Min for the smallest id.
type DenseId struct {
	bytes []byte
}

// Digit space: Min and Max are the single digits 1 and 254, and the final
// digit Between picks always lies in [1, 254]; the digits before it are
// copied from Between's inputs. digitAt reads 0 past the end of an
// exhausted id. WithTiebreak appends raw big-endian integers, whose bytes
// may take any value, 0 and 255 included.
const (
	minDigit = 1
	maxDigit = 254
)

// Min returns the smallest possible DenseId, bracketing every other id from
// below.
func Min() DenseId {
	return DenseId{bytes: []byte{minDigit}}
}

// Max returns the largest possible DenseId, bracketing every other id from
// above.
func Max() DenseId {
	return DenseId{bytes: []byte{maxDigit}}
}

// FromBytes wraps a previously-constructed id, e.g. when deserialising.
func FromBytes(b []byte) DenseId {
	cp := make([]byte, len(b))
	copy(cp, b)
	return DenseId{bytes: cp}
}

// Bytes returns the id's byte representation. Callers must not mutate it.
func (d DenseId) Bytes() []byte {
	return d.bytes
}

// Compare returns -1, 0, or 1 following lexicographic byte order.
func (d DenseId) Compare(other DenseId) int {
	a, b := d.bytes, other.bytes
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Less reports whether d sorts strictly before other.
func (d DenseId) Less(other DenseId) bool {
	return d.Compare(other) < 0
}

// Equal reports byte-for-byte equality.
func (d DenseId) Equal(other DenseId) bool {
	return d.Compare(other) == 0
}

// Between returns a new DenseId m such that a < m < b. It panics if a is not
// strictly less than b, matching the fail-fast contract in spec §4.1.
func Between(a, b DenseId) DenseId {
	if !a.Less(b) {
		panic(fmt.Sprintf("denseid: Between requires a < b, got %v >= %v", a.bytes, b.bytes))
	}

	result := make([]byte, 0, len(a.bytes)+1)
	i := 0
	for {
		aDigit := digitAt(a.bytes, i)
		bDigit := digitAt(b.bytes, i)

		if aDigit == bDigit {
			result = append(result, aDigit)
			i++
			continue
		}

		// aDigit < bDigit (else a would not be < b at this point, since the
		// shared prefix matched exactly up to i).
		if bDigit-aDigit > 1 {
			mid := aDigit + (bDigit-aDigit)/2
			result = append(result, mid)
			return DenseId{bytes: result}
		}

		// Adjacent digits: the new id must extend past `a` deeper, picking a
		// midpoint between a's continuation and the top of the digit space,
		// which keeps the id length growing only logarithmically with the
		// number of inserts interleaved at one spot.
		result = append(result, aDigit)
		i++
		for {
			aDigit = digitAt(a.bytes, i)
			if aDigit < maxDigit {
				mid := aDigit + (maxDigit-aDigit+1)/2
				if mid <= aDigit {
					mid = aDigit + 1
				}
				result = append(result, mid)
				return DenseId{bytes: result}
			}
			result = append(result, aDigit)
			i++
		}
	}
}

// WithTiebreak appends an exact encoding of (replica, count) to d, producing
// a DenseId that still sorts strictly between whatever bracket d itself was
// computed to sit within (appending bytes after a value already decided to
// be inside a bracket can't move it outside that bracket). Two replicas that
// independently call Between on the identical (a, b) bracket - the case when
// two operations concurrently insert at the same gap, neither aware of the
// other - get byte-identical results from Between alone; tagging each with
// its own operation id before either has seen the other's breaks the tie the
// same way everywhere the two results are later compared, without needing
// the two authors to coordinate.
func (d DenseId) WithTiebreak(replica uint32, count uint64) DenseId {
	out := make([]byte, len(d.bytes)+12)
	copy(out, d.bytes)
	binary.BigEndian.PutUint32(out[len(d.bytes):], replica)
	binary.BigEndian.PutUint64(out[len(d.bytes)+4:], count)
	return DenseId{bytes: out}
}

// digitAt returns the conceptual digit of id at position i: the id's byte
// if present, or 0 once the id has been exhausted, which sorts below every
// digit Min, Max and Between produce.
func digitAt(id []byte, i int) int {
	if i < len(id) {
		return int(id[i])
	}
	return 0
}
