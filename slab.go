// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import "github.com/ySion/nbtsystem/internal/bitset"

// chunkSize is the number of cells per slab chunk (spec §4.B).
const chunkSize = 64

// slabChunk is one fixed-capacity page of the allocator (spec §4.B,
// grounded on the 64-cell FAttributeChunk of original_source's
// NBTAllocator.h, and on the teacher's sparse.Array256 popcount
// technique for the used-mask, narrowed to a single Chunk64 word).
type slabChunk struct {
	used           bitset.Chunk64
	generation     [chunkSize]uint16
	dataVersion    [chunkSize]uint32
	subtreeVersion [chunkSize]uint32
	cells          [chunkSize]Cell
	usedCount      int
}

func newSlabChunk() *slabChunk {
	return &slabChunk{}
}

// allocateAtResult is the tri-state outcome of allocateAt (spec §4.B).
// The delta apply path and the full-sync load both ignore it; no
// statistics are kept.
type allocateAtResult uint8

const (
	arReplaced allocateAtResult = iota
	arExist
	arNewOne
)

// allocator is a growable vector of slabChunk pages plus generational
// handles, the on-disk/on-wire baseline layout the delta protocol
// diffs against (spec §4.B, §9).
type allocator struct {
	chunks []*slabChunk
	active int
}

func newAllocator() *allocator {
	return &allocator{}
}

func (a *allocator) reset() {
	a.chunks = a.chunks[:0]
	a.active = 0
}

func (a *allocator) freeRemaining() int {
	return maxActiveNodes - a.active
}

// selectChunkForAllocate implements "best-fit-densest": the chunk with
// at least one free slot and the highest current used count, or a
// freshly appended chunk when none qualifies.
func (a *allocator) selectChunkForAllocate() int {
	best := -1
	bestUsed := -1
	for i, c := range a.chunks {
		if c.usedCount < chunkSize && c.usedCount > bestUsed {
			best = i
			bestUsed = c.usedCount
		}
	}
	if best == -1 {
		a.chunks = append(a.chunks, newSlabChunk())
		best = len(a.chunks) - 1
	}
	return best
}

// allocate picks a free slot via best-fit-densest chunk selection, the
// lowest zero bit within it, and returns a fresh Handle with an empty
// Cell installed. ok is false once the active cap (65534) is reached.
func (a *allocator) allocate() (h Handle, ok bool) {
	if a.active >= maxActiveNodes {
		return InvalidHandle, false
	}

	ci := a.selectChunkForAllocate()
	c := a.chunks[ci]

	local, hasFree := c.used.FirstFree()
	if !hasFree {
		// selectChunkForAllocate guarantees a free slot; this would be
		// an allocator bug, not caller input.
		return InvalidHandle, false
	}

	c.used.MustSet(local)
	c.usedCount++
	c.generation[local]++
	c.dataVersion[local] = 0
	c.subtreeVersion[local] = 0
	c.cells[local].reset()

	a.active++

	return handleFrom(ci, local, c.generation[local]), true
}

// growTo ensures chunk index ci exists, appending empty chunks as
// needed (spec §4.B: "grows chunks as needed", used to build the
// identical memory layout a deterministic replication peer expects).
func (a *allocator) growTo(ci int) {
	for ci >= len(a.chunks) {
		a.chunks = append(a.chunks, newSlabChunk())
	}
}

// allocateAt deterministically installs h, for use by the replication
// apply path and full-sync load (spec §4.B).
func (a *allocator) allocateAt(h Handle) (*Cell, allocateAtResult) {
	ci, local := h.chunkIndex(), h.localIndex()
	a.growTo(ci)
	c := a.chunks[ci]

	if c.used.Test(local) {
		c.dataVersion[local]++ // signal to the accessor that the cell was rewritten
		if c.generation[local] == h.Generation {
			return &c.cells[local], arExist
		}
		c.cells[local].reset()
		c.generation[local] = h.Generation
		return &c.cells[local], arReplaced
	}

	c.used.MustSet(local)
	c.usedCount++
	c.generation[local] = h.Generation
	c.dataVersion[local]++
	c.cells[local].reset()
	a.active++
	return &c.cells[local], arNewOne
}

// deallocate requires a generation match; it clears the cell and
// zeroes both version counters. Generations are bumped on the next
// allocate of this slot, not here.
func (a *allocator) deallocate(h Handle) bool {
	ci, local := h.chunkIndex(), h.localIndex()
	if ci < 0 || ci >= len(a.chunks) {
		return false
	}
	c := a.chunks[ci]
	if !c.used.Test(local) || c.generation[local] != h.Generation {
		return false
	}

	c.cells[local].reset()
	c.used.MustClear(local)
	c.usedCount--
	c.dataVersion[local] = 0
	c.subtreeVersion[local] = 0
	a.active--
	return true
}

// get returns the cell only if the slot is used and the generation
// matches.
func (a *allocator) get(h Handle) (*Cell, bool) {
	ci, local := h.chunkIndex(), h.localIndex()
	if ci < 0 || ci >= len(a.chunks) {
		return nil, false
	}
	c := a.chunks[ci]
	if !c.used.Test(local) || c.generation[local] != h.Generation {
		return nil, false
	}
	return &c.cells[local], true
}

// dataVersionPtr and subtreeVersionPtr return pointers to the slot's
// version counters, same matching rule as get. Callers that cannot
// hold interior pointers (e.g. across a struct-version epoch where the
// slab may have moved) should re-derive them via these, not cache the
// pointer itself beyond one resolution cycle (spec §9 design note).
func (a *allocator) dataVersionPtr(h Handle) (*uint32, bool) {
	ci, local := h.chunkIndex(), h.localIndex()
	if ci < 0 || ci >= len(a.chunks) {
		return nil, false
	}
	c := a.chunks[ci]
	if !c.used.Test(local) || c.generation[local] != h.Generation {
		return nil, false
	}
	return &c.dataVersion[local], true
}

func (a *allocator) subtreeVersionPtr(h Handle) (*uint32, bool) {
	ci, local := h.chunkIndex(), h.localIndex()
	if ci < 0 || ci >= len(a.chunks) {
		return nil, false
	}
	c := a.chunks[ci]
	if !c.used.Test(local) || c.generation[local] != h.Generation {
		return nil, false
	}
	return &c.subtreeVersion[local], true
}

// iterateAll visits every allocated (handle, cell) pair in
// chunk-then-slot order.
func (a *allocator) iterateAll(yield func(Handle, *Cell) bool) {
	var buf [chunkSize]uint
	for ci, c := range a.chunks {
		for _, local := range c.used.AsSlice(buf[:0]) {
			h := handleFrom(ci, local, c.generation[local])
			if !yield(h, &c.cells[local]) {
				return
			}
		}
	}
}

// chunkCount reports how many chunks currently exist. The delta
// protocol's chunk scan reads len(chunks) directly and does not call it.
func (a *allocator) chunkCount() int {
	return len(a.chunks)
}
