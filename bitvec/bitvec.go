// Package bitvec provides fixed-width bit vectors for request and grant
// tracking. All operations are defined over exactly N bits with no sign
// extension; bits above N in the top word are always kept clear.
package bitvec

import (
	"math/bits"
	"strings"
)

const wordBits = 64

// Vector is an N-bit vector backed by 64-bit words. Bit 0 is the lowest
// index; word 0 holds bits 0..63.
type Vector struct {
	n     int
	words []uint64
}

// New creates a zeroed Vector of n bits. It panics if n < 1.
func New(n int) *Vector {
	if n < 1 {
		panic("bitvec: vector width must be at least 1")
	}
	return &Vector{
		n:     n,
		words: make([]uint64, (n+wordBits-1)/wordBits),
	}
}

// Len returns the width of the vector in bits.
func (v *Vector) Len() int {
	return v.n
}

func (v *Vector) checkIndex(i int) {
	if i < 0 || i >= v.n {
		panic("bitvec: bit index out of range")
	}
}

func (v *Vector) checkWidth(o *Vector) {
	if v.n != o.n {
		panic("bitvec: vector width mismatch")
	}
}

// trim clears the bits above n in the top word.
func (v *Vector) trim() {
	if rem := v.n % wordBits; rem != 0 {
		v.words[len(v.words)-1] &= 1<<rem - 1
	}
}

// Set sets bit i to 1.
func (v *Vector) Set(i int) {
	v.checkIndex(i)
	v.words[i/wordBits] |= 1 << (i % wordBits)
}

// Clear sets bit i to 0.
func (v *Vector) Clear(i int) {
	v.checkIndex(i)
	v.words[i/wordBits] &^= 1 << (i % wordBits)
}

// Test reports whether bit i is set.
func (v *Vector) Test(i int) bool {
	v.checkIndex(i)
	return v.words[i/wordBits]&(1<<(i%wordBits)) != 0
}

// Any reports whether any bit is set.
func (v *Vector) Any() bool {
	for _, w := range v.words {
		if w != 0 {
			return true
		}
	}
	return false
}

// OnesCount returns the number of set bits.
func (v *Vector) OnesCount() int {
	count := 0
	for _, w := range v.words {
		count += bits.OnesCount64(w)
	}
	return count
}

// FirstSet returns the index of the lowest set bit, or -1 if the vector
// is all-zero.
func (v *Vector) FirstSet() int {
	for wi, w := range v.words {
		if w != 0 {
			return wi*wordBits + bits.TrailingZeros64(w)
		}
	}
	return -1
}

// Zero clears all bits.
func (v *Vector) Zero() {
	for wi := range v.words {
		v.words[wi] = 0
	}
}

// CopyFrom overwrites v with the contents of o. The widths must match.
func (v *Vector) CopyFrom(o *Vector) {
	v.checkWidth(o)
	copy(v.words, o.words)
}

// Clone returns an independent copy of v.
func (v *Vector) Clone() *Vector {
	c := New(v.n)
	copy(c.words, v.words)
	return c
}

// Equal reports whether v and o have the same width and contents.
func (v *Vector) Equal(o *Vector) bool {
	if v.n != o.n {
		return false
	}
	for wi, w := range v.words {
		if w != o.words[wi] {
			return false
		}
	}
	return true
}

// And replaces v with the bitwise AND of v and o. The widths must match.
func (v *Vector) And(o *Vector) {
	v.checkWidth(o)
	for wi := range v.words {
		v.words[wi] &= o.words[wi]
	}
}

// PrefixOR replaces v with its running OR from bit 0 upward:
// out[i] = v[0] OR v[1] OR ... OR v[i]. Within a word the prefix is
// evaluated with doubling shifts, so the depth is logarithmic in the
// word size; the result is bit-identical to a sequential scan.
func (v *Vector) PrefixOR() {
	saturate := false
	for wi := range v.words {
		if saturate {
			v.words[wi] = ^uint64(0)
			continue
		}
		x := v.words[wi]
		x |= x << 1
		x |= x << 2
		x |= x << 4
		x |= x << 8
		x |= x << 16
		x |= x << 32
		v.words[wi] = x
		// Once any bit is set, every higher word is all-ones.
		saturate = x != 0
	}
	v.trim()
}

// IsolateLowest clears every bit except the lowest set one. Equivalent
// to prefix XOR (prefix << 1) on the prefix-OR of v, computed here with
// the two's-complement identity x AND -x on the first nonzero word.
func (v *Vector) IsolateLowest() {
	found := false
	for wi, w := range v.words {
		if found {
			v.words[wi] = 0
			continue
		}
		if w != 0 {
			v.words[wi] = w & -w
			found = true
		}
	}
}

// RotateLeft1 rotates the N-bit vector left by one position: bit i moves
// to bit i+1 and bit N-1 wraps around to bit 0.
func (v *Vector) RotateLeft1() {
	wrap := v.Test(v.n - 1)
	carry := uint64(0)
	for wi := range v.words {
		next := v.words[wi] >> (wordBits - 1)
		v.words[wi] = v.words[wi]<<1 | carry
		carry = next
	}
	v.trim()
	if wrap {
		v.words[0] |= 1
	}
}

// String renders the vector in binary with the highest index first, so
// an N=4 vector with bits 1 and 3 set prints as "1010".
func (v *Vector) String() string {
	var sb strings.Builder
	sb.Grow(v.n)
	for i := v.n - 1; i >= 0; i-- {
		if v.Test(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
