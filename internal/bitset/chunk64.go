// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package bitset implements a fixed 64-bit used-mask for slab chunks.
//
// Studied github.com/gaissmai/bart/internal/bitset (a 4x uint64 BitSet256
// for 256-wide popcount-compressed arrays) and narrowed it to a single
// uint64, since a slab chunk holds exactly 64 cells.
package bitset

import "math/bits"

// Chunk64 represents a fixed size bitset over [0..63], one bit per
// slab slot in a chunk.
type Chunk64 uint64

// Test reports whether bit is set.
func (b Chunk64) Test(bit uint) bool {
	return b&(1<<bit) != 0
}

// MustSet sets bit. A bit above 63 shifts out of the word, so the call
// changes nothing; it does not panic.
func (b *Chunk64) MustSet(bit uint) {
	*b |= 1 << bit
}

// MustClear clears bit. A bit above 63 shifts out of the word, so the
// call changes nothing; it does not panic.
func (b *Chunk64) MustClear(bit uint) {
	*b &^= 1 << bit
}

// FirstFree returns the lowest-numbered unset bit and true, or
// (0, false) if every bit is set.
func (b Chunk64) FirstFree() (uint, bool) {
	free := ^b
	if free == 0 {
		return 0, false
	}
	return uint(bits.TrailingZeros64(uint64(free))), true
}

// Size returns the popcount, the number of set bits.
func (b Chunk64) Size() int {
	return bits.OnesCount64(uint64(b))
}

// IsEmpty reports whether no bit is set.
func (b Chunk64) IsEmpty() bool {
	return b == 0
}

// IsFull reports whether every bit is set.
func (b Chunk64) IsFull() bool {
	return b == ^Chunk64(0)
}

// AsSlice returns all set bits as a slice of uint, ascending.
func (b Chunk64) AsSlice(buf []uint) []uint {
	buf = buf[:0]
	word := uint64(b)
	for word != 0 {
		buf = append(buf, uint(bits.TrailingZeros64(word)))
		word &= word - 1 // clear the rightmost set bit
	}
	return buf
}
