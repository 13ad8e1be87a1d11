// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import "go.uber.org/zap"

// livenessToken is a process-local shared marker co-owned by the
// Container; Accessors hold only a weak reference to it (spec §3,
// §9). Go has no reference-counted weak pointer in the teacher's
// toolchain generation, so this is modeled the way the design note
// suggests: "maps directly to any reference-counted or epoch-token
// primitive" — a shared *bool the Container flips off in Close, which
// every Accessor observes without owning the Container itself.
type livenessToken struct {
	alive *bool
}

func newLivenessToken() livenessToken {
	alive := true
	return livenessToken{alive: &alive}
}

func (t livenessToken) isAlive() bool {
	return t.alive != nil && *t.alive
}

// Container owns one allocator, one root handle, and the container-wide
// version counters (spec §4.C). The zero Container is not ready to use;
// call NewContainer.
type Container struct {
	alloc allocator
	root  Handle

	containerDataVersion   uint64
	containerStructVersion uint64

	dirty bool

	token livenessToken
	opts  options

	// shouldOperatorEffectVersion gates all version bumps; the delta
	// apply path sets this false so applying a received delta does not
	// itself mark the container dirty (spec §4.C).
	shouldOperatorEffectVersion bool
}

// NewContainer allocates the root Map and returns a ready Container.
func NewContainer(opts ...Option) *Container {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{
		token:                       newLivenessToken(),
		opts:                        o,
		shouldOperatorEffectVersion: true,
	}
	c.alloc = *newAllocator()
	c.initRoot()
	return c
}

func (c *Container) initRoot() {
	root, ok := c.alloc.allocate()
	if !ok {
		// Can never happen against an empty allocator; surfaced as a
		// logged invariant violation rather than a panic (spec §7).
		c.opts.logger.Error("nbt: failed to allocate root on a fresh container")
		return
	}
	cell, _ := c.alloc.get(root)
	cell.resetToMap()
	c.root = root
}

// Root returns the container's root Handle.
func (c *Container) Root() Handle { return c.root }

// ContainerDataVersion returns the container-wide data version counter.
func (c *Container) ContainerDataVersion() uint64 { return c.containerDataVersion }

// ContainerStructVersion returns the container-wide structure version
// counter.
func (c *Container) ContainerStructVersion() uint64 { return c.containerStructVersion }

// NodeCount returns the number of currently active slots, including
// the root.
func (c *Container) NodeCount() int { return c.alloc.active }

// Close flips the liveness token; every Accessor that still references
// this Container will subsequently fail all operations with
// InvalidContainer (spec §3, §7).
func (c *Container) Close() {
	if c.token.alive != nil {
		*c.token.alive = false
	}
}

// Logger returns the configured logger (never nil).
func (c *Container) Logger() *zap.Logger { return c.opts.logger }

// Reset clears the allocator and reinstalls an empty root Map,
// bumping both container-wide counters (spec §4.C).
func (c *Container) Reset() {
	c.alloc.reset()
	c.initRoot()
	c.containerDataVersion++
	c.containerStructVersion++
	c.markDirtyThisFrame()
}

// bumpData bumps the container-wide data version, subject to the
// writer-authority gate.
func (c *Container) bumpData() {
	if !c.shouldOperatorEffectVersion {
		return
	}
	c.containerDataVersion++
	c.markDirtyThisFrame()
}

// bumpStruct bumps both container-wide counters per invariant 4
// ("a bump of container_struct_version implies a bump of
// container_data_version in the same operation").
func (c *Container) bumpStruct() {
	if !c.shouldOperatorEffectVersion {
		return
	}
	c.containerStructVersion++
	c.containerDataVersion++
	c.markDirtyThisFrame()
}

// markDirtyThisFrame asks the host to schedule the next tick, at most
// once per frame (spec §4.C).
func (c *Container) markDirtyThisFrame() {
	if c.dirty {
		return
	}
	c.dirty = true
	if c.opts.host != nil {
		c.opts.host.RequestTickNextFrame()
	}
}

// ClearDirtyThisFrame is called by the host after emitting a delta.
func (c *Container) ClearDirtyThisFrame() {
	c.dirty = false
}

// IsDirtyThisFrame reports whether a tick has been requested and not
// yet cleared.
func (c *Container) IsDirtyThisFrame() bool { return c.dirty }

// DeepEqualValues recursively compares the subgraphs at h1 (in c1) and
// h2 (in c2), which may be the same container or two different ones.
// Equality is deep and order-sensitive for lists but key-set-sensitive
// for maps (spec §4.A/§4.D), ignoring Handle identity entirely — this
// is what lets scenario 6 assert that a copied subtree equals its
// source even though their handles differ.
func DeepEqualValues(c1 *Container, h1 Handle, c2 *Container, h2 Handle) bool {
	cell1, ok1 := c1.alloc.get(h1)
	cell2, ok2 := c2.alloc.get(h2)
	if !ok1 || !ok2 {
		return false
	}
	if cell1.Kind() != cell2.Kind() {
		return false
	}
	switch cell1.Kind() {
	case KindMap:
		m1, m2 := cell1.payload.(*mapData), cell2.payload.(*mapData)
		if m1.len() != m2.len() {
			return false
		}
		for _, e := range m1.order {
			ch2, ok := m2.get(e.Key)
			if !ok || !DeepEqualValues(c1, e.Child, c2, ch2) {
				return false
			}
		}
		return true
	case KindList:
		l1, l2 := cell1.payload.(*listData), cell2.payload.(*listData)
		if l1.len() != l2.len() {
			return false
		}
		for i := range l1.children {
			if !DeepEqualValues(c1, l1.children[i], c2, l2.children[i]) {
				return false
			}
		}
		return true
	default:
		return cellValueEquals(cell1.payload, cell2.payload)
	}
}

// requiredNodeCount returns the number of nodes that a deep copy of
// the subgraph rooted at h in src would need to allocate.
func requiredNodeCount(src *Container, h Handle) int {
	cell, ok := src.alloc.get(h)
	if !ok {
		return 0
	}
	count := 1
	switch cell.Kind() {
	case KindMap:
		md := cell.payload.(*mapData)
		for _, e := range md.order {
			count += requiredNodeCount(src, e.Child)
		}
	case KindList:
		ld := cell.payload.(*listData)
		for _, ch := range ld.children {
			count += requiredNodeCount(src, ch)
		}
	}
	return count
}

// canCopy reports whether dst has enough free slots to deep-copy the
// subgraph at h in src (spec §4.C: "allocation-based copy
// feasibility", checked up front so a failed copy never leaves a
// partial subgraph behind).
func canCopy(dst *Container, src *Container, h Handle) bool {
	return dst.alloc.freeRemaining() >= requiredNodeCount(src, h)
}

// deepCopyInto recursively allocates src's subgraph at h into dst,
// returning the new Handle. Kind is set first (compounds start empty),
// then children are copied, then inserted — matching spec §4.C's
// copy order so a reader walking dst mid-copy never sees a half-wired
// compound.
func deepCopyInto(dst *Container, src *Container, h Handle) (Handle, bool) {
	srcCell, ok := src.alloc.get(h)
	if !ok {
		return InvalidHandle, false
	}

	newH, ok := dst.alloc.allocate()
	if !ok {
		return InvalidHandle, false
	}
	newCell, _ := dst.alloc.get(newH)

	switch srcCell.Kind() {
	case KindMap:
		newCell.resetToMap()
		md := srcCell.payload.(*mapData)
		for _, e := range md.order {
			childH, ok := deepCopyInto(dst, src, e.Child)
			if !ok {
				return InvalidHandle, false
			}
			newCell.payload.(*mapData).set(e.Key, childH)
		}
	case KindList:
		newCell.resetToList()
		ld := srcCell.payload.(*listData)
		for _, ch := range ld.children {
			childH, ok := deepCopyInto(dst, src, ch)
			if !ok {
				return InvalidHandle, false
			}
			newCell.payload.(*listData).add(childH)
		}
	default:
		newCell.payload = cloneLeafPayload(srcCell.payload)
	}

	return newH, true
}

// CopyFrom resets this container and deep-copies other's reachable
// subgraph into a fresh layout, bumping both counters. Copy-assignment
// between two freshly-constructed empty containers is a no-op, to
// avoid spurious version bumps during default construction/replication
// (spec §4.C).
func (c *Container) CopyFrom(other *Container) Result {
	if c.isTriviallyEmpty() && other.isTriviallyEmpty() {
		return SameAndNotChange
	}

	if !canCopy(c, other, other.root) {
		c.opts.logger.Warn("nbt: CopyFrom would exceed the allocator cap")
		return AllocateFailed
	}

	c.alloc.reset()
	newRoot, ok := deepCopyInto(c, other, other.root)
	if !ok {
		c.initRoot()
		return AllocateFailed
	}
	c.root = newRoot
	c.containerDataVersion++
	c.containerStructVersion++
	c.markDirtyThisFrame()
	return Success
}

func (c *Container) isTriviallyEmpty() bool {
	cell, ok := c.alloc.get(c.root)
	return ok && cell.Kind() == KindMap && cell.payload.(*mapData).len() == 0 &&
		c.containerDataVersion == 0 && c.containerStructVersion == 0
}

// Clone is a convenience equal to NewContainer().CopyFrom(c) (grounded
// on the teacher's Table.Clone/*Persist family).
func (c *Container) Clone(opts ...Option) *Container {
	dst := NewContainer(opts...)
	dst.CopyFrom(c)
	return dst
}

// releaseRecursive drops handle and everything reachable below it,
// returning the number of slots actually freed.
func (c *Container) releaseRecursive(h Handle) int {
	cell, ok := c.alloc.get(h)
	if !ok {
		return 0
	}
	freed := 0
	switch cell.Kind() {
	case KindMap:
		md := cell.payload.(*mapData)
		for _, e := range md.order {
			freed += c.releaseRecursive(e.Child)
		}
	case KindList:
		ld := cell.payload.(*listData)
		for _, ch := range ld.children {
			freed += c.releaseRecursive(ch)
		}
	}
	if c.alloc.deallocate(h) {
		freed++
	}
	return freed
}

// ReleaseRecursive is the public entry point for releaseRecursive; it
// bumps the struct/data version counters for the caller, since removing
// nodes always re-kinds the parent's child slot (callers needing the
// parent-link update should go through an Accessor instead — this
// method only frees memory).
func (c *Container) ReleaseRecursive(h Handle) int {
	n := c.releaseRecursive(h)
	if n > 0 {
		c.bumpStruct()
	}
	return n
}

// ReleaseNode drops a single leaf (no recursion); returns 1 if freed.
func (c *Container) ReleaseNode(h Handle) int {
	cell, ok := c.alloc.get(h)
	if !ok || cell.Kind().IsCompound() {
		return 0
	}
	if c.alloc.deallocate(h) {
		c.bumpStruct()
		return 1
	}
	return 0
}

// releaseChildrenRaw drops a compound's children recursively and empties
// the compound, without bumping any version counter — used both by the
// public ReleaseChildren and by the accessor's ForceOverride conversion,
// which bumps struct version itself exactly once for the whole
// convert-and-clear operation.
func (c *Container) releaseChildrenRaw(h Handle, cell *Cell) int {
	freed := 0
	switch cell.Kind() {
	case KindMap:
		md := cell.payload.(*mapData)
		for _, ch := range md.clear() {
			freed += c.releaseRecursive(ch)
		}
	case KindList:
		ld := cell.payload.(*listData)
		for _, ch := range ld.clear() {
			freed += c.releaseRecursive(ch)
		}
	}
	return freed
}

// ReleaseChildren drops a compound's children recursively and empties
// the compound, returning the number of slots freed.
func (c *Container) ReleaseChildren(h Handle) int {
	cell, ok := c.alloc.get(h)
	if !ok {
		return 0
	}
	if !cell.Kind().IsCompound() {
		return 0
	}
	freed := c.releaseChildrenRaw(h, cell)
	if freed > 0 {
		c.bumpStruct()
	}
	return freed
}
