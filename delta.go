// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import (
	"io"

	"github.com/ySion/nbtsystem/internal/bitset"
	"github.com/ySion/nbtsystem/internal/wire"
)

// deltaOp tags one operation in a delta stream (spec §4.E).
type deltaOp uint8

const (
	opRemove deltaOp = iota
	opAdd
	opUpdate
	opEndOfDeltas
)

// chunkSnapshot is a byte-for-byte copy of one slabChunk's metadata —
// used mask, generations, per-slot data version — deliberately without
// any cell payload, which is re-fetched from the live slab when a
// delta actually needs to emit it (spec §4.E "Baseline state").
type chunkSnapshot struct {
	used        bitset.Chunk64
	generation  [chunkSize]uint16
	dataVersion [chunkSize]uint32
}

func snapshotChunk(c *slabChunk) chunkSnapshot {
	return chunkSnapshot{
		used:        c.used,
		generation:  c.generation,
		dataVersion: c.dataVersion,
	}
}

// Baseline is a per-peer snapshot a sender keeps between delta emits
// (spec §4.E). A nil *Baseline represents "no baseline yet" and sends
// EmitDelta down the full-sync path; a non-nil zero-value Baseline is
// treated as a snapshot with data version 0 and no chunks.
type Baseline struct {
	containerDataVersion uint64
	chunks               []chunkSnapshot
}

// Equal reports whether two baselines represent "nothing changed"
// (spec §4.E: "equal iff their container_data_version fields match").
func (b *Baseline) Equal(other *Baseline) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.containerDataVersion == other.containerDataVersion
}

// SnapshotBaseline captures the container's current chunk metadata and
// data version into a new Baseline, for the sender to keep per peer.
func (c *Container) SnapshotBaseline() *Baseline {
	b := &Baseline{containerDataVersion: c.containerDataVersion}
	b.chunks = make([]chunkSnapshot, len(c.alloc.chunks))
	for i, chunk := range c.alloc.chunks {
		b.chunks[i] = snapshotChunk(chunk)
	}
	return b
}

// EmitDelta writes the next delta frame for this container relative to
// baseline into w, following spec §4.E's emit path exactly, and
// returns the Baseline to keep for the next call. wrote is false only
// when S.container_data_version == baseline.container_data_version
// ("nothing to send"); no bytes are written in that case.
func (c *Container) EmitDelta(w io.Writer, baseline *Baseline) (next *Baseline, wrote bool, err error) {
	if baseline == nil {
		if err := c.SerializeFull(w); err != nil {
			return nil, false, err
		}
		return c.SnapshotBaseline(), true, nil
	}

	if c.containerDataVersion == baseline.containerDataVersion {
		return baseline, false, nil
	}

	if err := writeFixedBytes(w, []byte{0}); err != nil {
		return nil, false, err
	}
	if err := wire.WriteUvarint(w, c.containerDataVersion); err != nil {
		return nil, false, err
	}
	if err := wire.WriteUvarint(w, c.containerStructVersion); err != nil {
		return nil, false, err
	}

	chunkCount := len(c.alloc.chunks)
	if len(baseline.chunks) > chunkCount {
		chunkCount = len(baseline.chunks)
	}

	var removes, adds, updates []Handle
	for ci := 0; ci < chunkCount; ci++ {
		var cur *slabChunk
		if ci < len(c.alloc.chunks) {
			cur = c.alloc.chunks[ci]
		}
		var old *chunkSnapshot
		if ci < len(baseline.chunks) {
			old = &baseline.chunks[ci]
		}
		scanChunkDiff(ci, cur, old, &removes, &adds, &updates)
	}

	// The chunk scan collects removes, adds and updates separately; they
	// are written in that order, so every Remove precedes every Add and
	// every Add lands on the wire before any Update that might
	// reference it.
	for _, h := range removes {
		if err := writeOpHeader(w, opRemove, h); err != nil {
			return nil, false, err
		}
	}
	for _, h := range adds {
		cell, ok := c.alloc.get(h)
		if !ok {
			continue
		}
		if err := writeOpHeader(w, opAdd, h); err != nil {
			return nil, false, err
		}
		if err := c.encodeCellPayload(w, cell); err != nil {
			return nil, false, err
		}
	}
	for _, h := range updates {
		cell, ok := c.alloc.get(h)
		if !ok {
			continue
		}
		if err := writeOpHeader(w, opUpdate, h); err != nil {
			return nil, false, err
		}
		if err := c.encodeCellPayload(w, cell); err != nil {
			return nil, false, err
		}
	}
	if err := writeFixedBytes(w, []byte{byte(opEndOfDeltas)}); err != nil {
		return nil, false, err
	}

	return c.SnapshotBaseline(), true, nil
}

func writeOpHeader(w io.Writer, op deltaOp, h Handle) error {
	if err := writeFixedBytes(w, []byte{byte(op)}); err != nil {
		return err
	}
	return wire.WriteHandle(w, h.Index, h.Generation)
}

// scanChunkDiff walks S.used | B.used for one chunk index and appends
// the resulting ops into removes/adds/updates (spec §4.E step 3). cur
// and/or old may be nil when only one side has grown a chunk that far.
func scanChunkDiff(ci int, cur *slabChunk, old *chunkSnapshot, removes, adds, updates *[]Handle) {
	if cur == nil && old == nil {
		return
	}
	if cur != nil && old != nil && cur.used == old.used && cur.generation == old.generation && cur.dataVersion == old.dataVersion {
		return
	}

	var curUsed, oldUsed bitset.Chunk64
	if cur != nil {
		curUsed = cur.used
	}
	if old != nil {
		oldUsed = old.used
	}
	union := curUsed | oldUsed

	var buf [chunkSize]uint
	for _, local := range union.AsSlice(buf[:0]) {
		inCur := curUsed.Test(local)
		inOld := oldUsed.Test(local)
		switch {
		case inCur && !inOld:
			*adds = append(*adds, handleFrom(ci, local, cur.generation[local]))
		case !inCur && inOld:
			*removes = append(*removes, handleFrom(ci, local, old.generation[local]))
		case inCur && inOld:
			if cur.generation[local] != old.generation[local] || cur.dataVersion[local] != old.dataVersion[local] {
				*updates = append(*updates, handleFrom(ci, local, cur.generation[local]))
			}
		}
	}
}

// parentMap is the receiver-only child->parent index the apply path
// rebuilds after every struct-version change (spec §4.E "Parent map");
// the sender never needs one since it reconstructs paths from live
// accessor state.
type parentMap map[Handle]Handle

// rebuildParentMap walks the current tree from root and records every
// child's parent.
func rebuildParentMap(c *Container) parentMap {
	pm := make(parentMap)
	var walk func(h Handle)
	walk = func(h Handle) {
		cell, ok := c.alloc.get(h)
		if !ok {
			return
		}
		switch cell.Kind() {
		case KindMap:
			for _, e := range cell.payload.(*mapData).order {
				pm[e.Child] = h
				walk(e.Child)
			}
		case KindList:
			for _, ch := range cell.payload.(*listData).children {
				pm[ch] = h
				walk(ch)
			}
		}
	}
	walk(c.root)
	return pm
}

// bubbleSubtreeDedup increments subtree_version along h's ancestor
// chain (root included), skipping any ancestor already present in
// seen, so a frame with many changed descendants only bumps each
// ancestor once (spec §4.E step 4). If pm has no entry for the next
// ancestor yet — possible for a handle whose parent edge arrives via a
// later Update in this same frame — the walk simply stops there; the
// next frame's chunk-scan diff still reaches it normally.
func bubbleSubtreeDedup(c *Container, pm parentMap, h Handle, seen map[Handle]bool) {
	cur := h
	for {
		if seen[cur] {
			return
		}
		seen[cur] = true
		if sv, ok := c.alloc.subtreeVersionPtr(cur); ok {
			*sv++
		}
		parent, ok := pm[cur]
		if !ok {
			return
		}
		cur = parent
	}
}

// ApplyDelta reads one frame written by EmitDelta and applies it to c,
// following spec §4.E's apply path. pm is the receiver's parent map;
// pass a freshly rebuilt one after the first call, the returned value
// replaces it whenever the struct version changes inside this frame.
func (c *Container) ApplyDelta(r io.ByteReader, pm parentMap) (parentMap, error) {
	bit, err := r.ReadByte()
	if err != nil {
		return pm, err
	}
	if bit != 0 {
		fullData, err := wire.ReadUvarint(r)
		if err != nil {
			return pm, err
		}
		fullStruct, err := wire.ReadUvarint(r)
		if err != nil {
			return pm, err
		}
		prevGate := c.shouldOperatorEffectVersion
		c.shouldOperatorEffectVersion = false
		if err := c.loadAll(r); err != nil {
			c.shouldOperatorEffectVersion = prevGate
			return pm, err
		}
		c.shouldOperatorEffectVersion = prevGate
		c.containerDataVersion = fullData
		c.containerStructVersion = fullStruct
		return rebuildParentMap(c), nil
	}

	newData, err := wire.ReadUvarint(r)
	if err != nil {
		return pm, err
	}
	newStruct, err := wire.ReadUvarint(r)
	if err != nil {
		return pm, err
	}
	structChanged := newStruct != c.containerStructVersion
	if structChanged {
		pm = rebuildParentMap(c)
	}
	c.containerDataVersion = newData
	c.containerStructVersion = newStruct

	seen := make(map[Handle]bool)
	rebuiltForAdd := !structChanged // only the first Add after a struct change needs a fresh rebuild

	for {
		opb, err := r.ReadByte()
		if err != nil {
			return pm, err
		}
		op := deltaOp(opb)
		if op == opEndOfDeltas {
			return pm, nil
		}

		idx, gen, err := wire.ReadHandle(r)
		if err != nil {
			return pm, err
		}
		h := Handle{Index: idx, Generation: gen}

		switch op {
		case opRemove:
			bubbleSubtreeDedup(c, pm, h, seen)
			c.alloc.deallocate(h)
			delete(pm, h)
		case opAdd:
			if !rebuiltForAdd {
				pm = rebuildParentMap(c)
				rebuiltForAdd = true
			}
			cell, _ := c.alloc.allocateAt(h)
			if err := c.decodeCellPayload(r, cell); err != nil {
				return pm, err
			}
			bubbleSubtreeDedup(c, pm, h, seen)
		case opUpdate:
			cell, _ := c.alloc.allocateAt(h)
			if err := c.decodeCellPayload(r, cell); err != nil {
				return pm, err
			}
			bubbleSubtreeDedup(c, pm, h, seen)
		}
	}
}
