package xgboost

import (
	"math/bits"
	"slices"
)

// Bitset is a fixed-length bit vector over category indices. A set bit sends
// the category to the right child of a categorical split.
type Bitset struct {
	words  []uint64
	length int
}

// NewBitset creates an empty bitset of the given length.
func NewBitset(length int) *Bitset {
	return &Bitset{words: make([]uint64, (length+63)/64), length: length}
}

// BitsetOf creates the smallest bitset holding the given indices, so its
// length is the largest index plus one.
func BitsetOf(indices ...int) *Bitset {
	length := 0
	for _, i := range indices {
		length = max(length, i+1)
	}
	b := NewBitset(length)
	for _, i := range indices {
		b.Set(i)
	}
	return b
}

// Set sets bit i. It panics if i is outside the bitset.
func (b *Bitset) Set(i int) {
	if i < 0 || i >= b.length {
		panic("bitset index out of range")
	}
	b.words[i/64] |= 1 << (uint(i) % 64)
}

// Test reports whether bit i is set. Bits beyond the length are unset.
func (b *Bitset) Test(i int) bool {
	if b == nil || i < 0 || i >= b.length {
		return false
	}
	return b.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Len returns the number of bits.
func (b *Bitset) Len() int {
	if b == nil {
		return 0
	}
	return b.length
}

// Count returns the number of set bits.
func (b *Bitset) Count() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Indices returns the set bits in increasing order.
func (b *Bitset) Indices() []int {
	var result []int
	for i := 0; i < b.Len(); i++ {
		if b.Test(i) {
			result = append(result, i)
		}
	}
	return result
}

// Union returns a new bitset holding the bits of both. Either side may be nil.
func (b *Bitset) Union(other *Bitset) *Bitset {
	result := NewBitset(max(b.Len(), other.Len()))
	for _, src := range []*Bitset{b, other} {
		if src == nil {
			continue
		}
		for i, w := range src.words {
			result.words[i] |= w
		}
	}
	return result
}

// Equal reports whether both bitsets have the same length and bits.
func (b *Bitset) Equal(other *Bitset) bool {
	return b.Len() == other.Len() && (b.Len() == 0 || slices.Equal(b.words, other.words))
}
