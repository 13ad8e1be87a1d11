// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import (
	"io"

	"github.com/ySion/nbtsystem/internal/wire"
)

// SerializeFull writes the full-sync payload (spec §4.F "Container
// dump"): a replication bit (always set here), both container-wide
// counters, the root handle, the active node count, then every active
// (handle, payload) pair in allocator.iterateAll order.
func (c *Container) SerializeFull(w io.Writer) error {
	return c.dumpAll(w, true)
}

// SerializeDisk writes the persisted (non-network) format: the same
// body as SerializeFull but without the leading replication bit or the
// two version counters (spec §6 "Persisted format").
func (c *Container) SerializeDisk(w io.Writer) error {
	return c.dumpAll(w, false)
}

func (c *Container) dumpAll(w io.Writer, withHeader bool) error {
	if withHeader {
		if err := writeFixedBytes(w, []byte{1}); err != nil {
			return err
		}
		if err := wire.WriteUvarint(w, c.containerDataVersion); err != nil {
			return err
		}
		if err := wire.WriteUvarint(w, c.containerStructVersion); err != nil {
			return err
		}
	}
	if err := wire.WriteHandle(w, c.root.Index, c.root.Generation); err != nil {
		return err
	}
	if err := wire.WriteUvarint(w, uint64(c.alloc.active)); err != nil {
		return err
	}

	var walkErr error
	c.alloc.iterateAll(func(h Handle, cell *Cell) bool {
		if err := wire.WriteHandle(w, h.Index, h.Generation); err != nil {
			walkErr = err
			return false
		}
		if err := c.encodeCellPayload(w, cell); err != nil {
			walkErr = err
			return false
		}
		return true
	})
	return walkErr
}

// DeserializeFull reads a full-sync payload produced by SerializeFull,
// replacing this container's entire tree. Per spec §4.E apply-path
// step 1, shouldOperatorEffectVersion is suppressed for the duration so
// loading a peer's snapshot does not itself mark the container dirty;
// the two counters are instead set directly from the wire values.
func (c *Container) DeserializeFull(r io.ByteReader) error {
	bit, err := r.ReadByte()
	if err != nil {
		return err
	}
	dataVersion, err := wire.ReadUvarint(r)
	if err != nil {
		return err
	}
	structVersion, err := wire.ReadUvarint(r)
	if err != nil {
		return err
	}
	if bit == 0 {
		return errCorruptStream
	}

	prevGate := c.shouldOperatorEffectVersion
	c.shouldOperatorEffectVersion = false
	defer func() { c.shouldOperatorEffectVersion = prevGate }()

	if err := c.loadAll(r); err != nil {
		return err
	}
	c.containerDataVersion = dataVersion
	c.containerStructVersion = structVersion
	return nil
}

// DeserializeDisk reads the persisted-format payload written by
// SerializeDisk, then bumps both counters once so the load lands in a
// fresh epoch (spec §6 "Persisted format").
func (c *Container) DeserializeDisk(r io.ByteReader) error {
	prevGate := c.shouldOperatorEffectVersion
	c.shouldOperatorEffectVersion = false
	defer func() { c.shouldOperatorEffectVersion = prevGate }()

	if err := c.loadAll(r); err != nil {
		return err
	}
	c.containerDataVersion++
	c.containerStructVersion++
	return nil
}

func (c *Container) loadAll(r io.ByteReader) error {
	rootIdx, rootGen, err := wire.ReadHandle(r)
	if err != nil {
		return err
	}
	count, err := wire.ReadUvarint(r)
	if err != nil {
		return err
	}

	c.alloc.reset()
	for i := uint64(0); i < count; i++ {
		idx, gen, err := wire.ReadHandle(r)
		if err != nil {
			return err
		}
		cell, _ := c.alloc.allocateAt(Handle{Index: idx, Generation: gen})
		if err := c.decodeCellPayload(r, cell); err != nil {
			return err
		}
	}
	c.root = Handle{Index: rootIdx, Generation: rootGen}
	return nil
}
