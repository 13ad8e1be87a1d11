// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import (
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ySion/nbtsystem/internal/wire"
)

// ResolveMode controls how Accessor.resolve reacts to a missing map
// key, a missing list index, or a kind mismatch while walking path
// segments (spec §4.D).
type ResolveMode uint8

const (
	// ReadOnly never mutates; missing nodes are NotFoundNode, a kind
	// mismatch is NodeTypeMismatch.
	ReadOnly ResolveMode = iota
	// EnsureCreate creates missing map keys (never list indices) and
	// converts an Empty node to the required compound kind; any other
	// mismatch is PermissionDenied.
	EnsureCreate
	// ForceOverride creates missing map keys, never list indices
	// (PermissionDenied), and converts any mismatched node by first
	// releasing its children.
	ForceOverride
)

// maxPathSegments bounds the path length NetDeserialize accepts (spec
// §4.D: "rejecting paths longer than 2048 segments"); NetSerialize
// writes a path of any length.
const maxPathSegments = 2048

// HostObjectRef is optionally implemented by a HostComponent so the
// accessor's network serialization can write a wire-stable reference to
// the owning host (spec §4.D: "a reference to the owning host component
// via the host's object-reference protocol"). A host that does not
// implement it serializes as reference 0.
type HostObjectRef interface {
	ObjectRef() uint64
}

// Accessor is a value-typed cursor into one Container: a back
// reference, a weak liveness token, a path, and a lazily-populated
// resolve cache (spec §4.D). The zero Accessor is not usable; obtain
// one from NewAccessor or by deriving from an existing one.
type Accessor struct {
	c     *Container
	token livenessToken
	segs  []PathSegment

	cacheValid  bool
	cacheStruct uint64
	cacheHandle Handle

	marked        bool
	markHandle    Handle
	markData      uint32
	markContainer uint64

	subtreeMarked    bool
	subtreeHandle    Handle
	subtreeMarkValue uint32
}

// NewAccessor returns an Accessor addressing c's root.
func NewAccessor(c *Container) Accessor {
	return Accessor{c: c, token: c.token}
}

// sameContainer reports whether a and other address the same Container.
func (a Accessor) sameContainer(other Accessor) bool {
	return a.c != nil && a.c == other.c
}

// Path returns a copy of the accessor's segment list (spec §4.D
// "added": debugging/logging convenience).
func (a Accessor) Path() []PathSegment {
	out := make([]PathSegment, len(a.segs))
	copy(out, a.segs)
	return out
}

func (a Accessor) String() string {
	return pathString(a.segs)
}

// derive returns a new Accessor one segment deeper, with its own
// (initially invalid) resolve cache — Accessors are cheap to copy and
// do not share cache state (spec §5).
func (a Accessor) derive(seg PathSegment) Accessor {
	segs := make([]PathSegment, len(a.segs)+1)
	copy(segs, a.segs)
	segs[len(a.segs)] = seg
	return Accessor{c: a.c, token: a.token, segs: segs}
}

// ChildByKey and ChildByIndex are the derived navigators that extend
// the path by one segment without resolving it (spec §4.D).
func (a Accessor) ChildByKey(key string) Accessor { return a.derive(Key(key)) }
func (a Accessor) ChildByIndex(i int32) Accessor  { return a.derive(Index(i)) }

// Parent drops the last segment and clears any inherited cache, so the
// next operation re-resolves from root (spec §4.D: "parent
// (re-resolves)").
func (a Accessor) Parent() Accessor {
	if len(a.segs) == 0 {
		return a
	}
	return Accessor{c: a.c, token: a.token, segs: append([]PathSegment{}, a.segs[:len(a.segs)-1]...)}
}

// ParentPreview is path-only: like Parent, but documents that the
// caller wants the address itself (e.g. for Path()/logging) rather than
// intending to resolve it — resolution in this package is always lazy,
// so the two are behaviorally identical here (spec §4.D).
func (a Accessor) ParentPreview() Accessor {
	return a.Parent()
}

// IsAncestorOf reports whether a's path is a strict prefix of other's,
// independent of container (spec §4.D: "a pure path comparison").
func (a Accessor) IsAncestorOf(other Accessor) bool {
	return isAncestorSegments(a.segs, other.segs)
}

// IsParentOf composes IsAncestorOf with a same-container, exactly-one-
// segment-deeper check.
func (a Accessor) IsParentOf(other Accessor) bool {
	return a.sameContainer(other) && len(other.segs) == len(a.segs)+1 && isAncestorSegments(a.segs, other.segs)
}

// IsChildOf is the converse of IsParentOf.
func (a Accessor) IsChildOf(other Accessor) bool {
	return other.IsParentOf(a)
}

// Exists reports whether the path currently resolves (spec §4.D
// "added").
func (a *Accessor) Exists() bool {
	_, _, res := a.resolve(ReadOnly)
	return res == Success
}

// KindOf returns the resolved node's Kind without a typed getter (spec
// §4.D "added").
func (a *Accessor) KindOf() (Kind, Result) {
	_, cell, res := a.resolve(ReadOnly)
	if res != Success {
		return KindEmpty, res
	}
	return cell.Kind(), Success
}

// resolveSegments walks segs from c's root under mode, independent of
// any Accessor's cache; used for parent-path lookups during
// redirect and for the subtree bubble walk.
func resolveSegments(c *Container, segs []PathSegment, mode ResolveMode) (Handle, *Cell, Result) {
	h := c.root
	cell, ok := c.alloc.get(h)
	if !ok {
		return InvalidHandle, nil, InvalidContainer
	}
	for _, seg := range segs {
		nh, ncell, res := stepInto(c, h, cell, seg, mode)
		if res != Success {
			return InvalidHandle, nil, res
		}
		h, cell = nh, ncell
	}
	return h, cell, Success
}

// resolve walks path_segments from the root under mode, validating and
// refreshing the resolve cache against container_struct_version (spec
// §4.D).
func (a *Accessor) resolve(mode ResolveMode) (Handle, *Cell, Result) {
	if a.c == nil || !a.token.isAlive() {
		return InvalidHandle, nil, InvalidContainer
	}
	if len(a.segs) > a.c.opts.depthLimit {
		return InvalidHandle, nil, InvalidContainer
	}

	if a.cacheValid && a.cacheStruct == a.c.containerStructVersion {
		if cell, ok := a.c.alloc.get(a.cacheHandle); ok {
			return a.cacheHandle, cell, Success
		}
		a.cacheValid = false
	}

	h, cell, res := resolveSegments(a.c, a.segs, mode)
	if res != Success {
		return InvalidHandle, nil, res
	}

	a.cacheValid = true
	a.cacheStruct = a.c.containerStructVersion
	a.cacheHandle = h
	return h, cell, Success
}

// ensureCompoundKind guarantees the cell at h has kind `want`,
// implementing the "wrong kind encountered" column of the resolution
// table: ReadOnly never converts; EnsureCreate converts only from
// Empty; ForceOverride releases any existing children before
// converting.
func ensureCompoundKind(c *Container, h Handle, cell *Cell, want Kind, mode ResolveMode) Result {
	if cell.Kind() == want {
		return Success
	}
	switch mode {
	case ReadOnly:
		return NodeTypeMismatch
	case EnsureCreate:
		if cell.Kind() != KindEmpty {
			return PermissionDenied
		}
	case ForceOverride:
		if cell.Kind() != KindEmpty {
			c.releaseChildrenRaw(h, cell)
		}
	}
	if want == KindMap {
		cell.resetToMap()
	} else {
		cell.resetToList()
	}
	c.bumpStruct()
	return Success
}

func stepIntoKey(c *Container, h Handle, cell *Cell, key string, mode ResolveMode) (Handle, *Cell, Result) {
	if cell.Kind() != KindMap {
		if res := ensureCompoundKind(c, h, cell, KindMap, mode); res != Success {
			return InvalidHandle, nil, res
		}
	}
	md := cell.payload.(*mapData)
	if ch, ok := md.get(key); ok {
		ccell, ok2 := c.alloc.get(ch)
		if !ok2 {
			return InvalidHandle, nil, InvalidContainer
		}
		return ch, ccell, Success
	}
	if mode == ReadOnly {
		return InvalidHandle, nil, NotFoundNode
	}
	nh, ok := c.alloc.allocate()
	if !ok {
		return InvalidHandle, nil, AllocateFailed
	}
	md.set(key, nh)
	// The parent map's own value gained an entry, so its data_version
	// moves; this is what makes the delta protocol resend the parent.
	if dv, ok := c.alloc.dataVersionPtr(h); ok {
		*dv++
	}
	// No bumpStruct here: the new node is still Empty and carries no
	// observable kind change of its own. Whatever write follows (a
	// value-set, a compound conversion, a redirect) bumps struct once
	// for the node's first real concretization, so a bare key
	// creation never double-counts against it.
	ncell, _ := c.alloc.get(nh)
	return nh, ncell, Success
}

func stepIntoIndex(c *Container, h Handle, cell *Cell, idx int32, mode ResolveMode) (Handle, *Cell, Result) {
	if cell.Kind() != KindList {
		if res := ensureCompoundKind(c, h, cell, KindList, mode); res != Success {
			return InvalidHandle, nil, res
		}
	}
	ld := cell.payload.(*listData)
	ch, ok := ld.get(int(idx))
	if !ok {
		if mode == ReadOnly {
			return InvalidHandle, nil, NotFoundNode
		}
		return InvalidHandle, nil, PermissionDenied
	}
	ccell, ok2 := c.alloc.get(ch)
	if !ok2 {
		return InvalidHandle, nil, InvalidContainer
	}
	return ch, ccell, Success
}

func stepInto(c *Container, h Handle, cell *Cell, seg PathSegment, mode ResolveMode) (Handle, *Cell, Result) {
	if seg.IsKey() {
		return stepIntoKey(c, h, cell, seg.KeyString(), mode)
	}
	return stepIntoIndex(c, h, cell, seg.IndexValue(), mode)
}

// --- change detection -------------------------------------------------

// IsDataChanged compares the cached (handle, data_version,
// container_data_version) against the last Mark; an accessor that has
// never been marked always reports changed (spec §4.D, §8 idempotence
// laws).
func (a *Accessor) IsDataChanged() bool {
	h, _, res := a.resolve(ReadOnly)
	if res != Success {
		return true
	}
	dv, ok := a.c.alloc.dataVersionPtr(h)
	if !ok {
		return true
	}
	if !a.marked {
		return true
	}
	return !(a.markHandle == h && *dv == a.markData && a.c.containerDataVersion == a.markContainer)
}

// Mark records the current (handle, data_version, container_data_version)
// as the observation baseline.
func (a *Accessor) Mark() Result {
	h, _, res := a.resolve(ReadOnly)
	if res != Success {
		return res
	}
	dv, ok := a.c.alloc.dataVersionPtr(h)
	if !ok {
		return InvalidContainer
	}
	a.marked = true
	a.markHandle = h
	a.markData = *dv
	a.markContainer = a.c.containerDataVersion
	return Success
}

// IsDataChangedAndMark combines IsDataChanged and Mark in one call.
func (a *Accessor) IsDataChangedAndMark() bool {
	changed := a.IsDataChanged()
	a.Mark()
	return changed
}

// IsSubtreeChanged is IsDataChanged's subtree_version twin.
func (a *Accessor) IsSubtreeChanged() bool {
	h, _, res := a.resolve(ReadOnly)
	if res != Success {
		return true
	}
	sv, ok := a.c.alloc.subtreeVersionPtr(h)
	if !ok {
		return true
	}
	if !a.subtreeMarked {
		return true
	}
	return !(a.subtreeHandle == h && *sv == a.subtreeMarkValue)
}

// MarkSubtree records the current subtree_version as the observation
// baseline.
func (a *Accessor) MarkSubtree() Result {
	h, _, res := a.resolve(ReadOnly)
	if res != Success {
		return res
	}
	sv, ok := a.c.alloc.subtreeVersionPtr(h)
	if !ok {
		return InvalidContainer
	}
	a.subtreeMarked = true
	a.subtreeHandle = h
	a.subtreeMarkValue = *sv
	return Success
}

// IsSubtreeChangedAndMark combines IsSubtreeChanged and MarkSubtree.
func (a *Accessor) IsSubtreeChangedAndMark() bool {
	changed := a.IsSubtreeChanged()
	a.MarkSubtree()
	return changed
}

// --- write primitives ---------------------------------------------------

// postMutation implements the three-step post-mutation protocol (spec
// §4.D): it bumps the slot's data_version, then the container-wide
// counters (struct and data when reKinded, data alone otherwise), then
// bubbles subtree_version along the accessor's path.
func (a *Accessor) postMutation(h Handle, reKinded bool) {
	if dv, ok := a.c.alloc.dataVersionPtr(h); ok {
		*dv++
	}
	if reKinded {
		a.c.bumpStruct()
	} else {
		a.c.bumpData()
	}
	a.bubbleSubtree()
}

// bubbleSubtree re-walks from root along the accessor's own path,
// incrementing subtree_version on root and every visited node — the
// writer-authoritative equivalent of the receiver's bubble in the delta
// apply path (spec §4.D/§4.E).
func (a *Accessor) bubbleSubtree() {
	h := a.c.root
	if sv, ok := a.c.alloc.subtreeVersionPtr(h); ok {
		*sv++
	}
	cell, ok := a.c.alloc.get(h)
	if !ok {
		return
	}
	for _, seg := range a.segs {
		nh, ncell, res := stepInto(a.c, h, cell, seg, ReadOnly)
		if res != Success {
			return
		}
		h, cell = nh, ncell
		if sv, ok := a.c.alloc.subtreeVersionPtr(h); ok {
			*sv++
		}
	}
}

// TrySet requires the resolved node to already hold kind T (spec §4.D:
// "try_set_T ... ReadOnly mode").
func TrySet[T any](a *Accessor, v T) Result {
	h, cell, res := a.resolve(ReadOnly)
	if res != Success {
		return res
	}
	r := TrySetValue(cell, v)
	if r == Success {
		a.postMutation(h, false)
	}
	return r
}

// EnsureAndSet creates the node (and any missing map-key ancestors) if
// absent, converting an Empty leaf in place, then sets the value (spec
// §4.D: "ensure_and_set_T ... EnsureCreate mode").
func EnsureAndSet[T any](a *Accessor, v T) Result {
	h, cell, res := a.resolve(EnsureCreate)
	if res != Success {
		return res
	}
	before := cell.Kind()
	var r Result
	if cell.IsEmpty() {
		cell.payload = v
		r = Success
	} else {
		r = TrySetValue(cell, v)
	}
	if r == Success {
		a.postMutation(h, cell.Kind() != before)
	}
	return r
}

// OverrideTo unconditionally replaces the node's kind and value,
// releasing any prior children first (spec §4.D: "override_to_T ...
// ForceOverride mode").
func OverrideTo[T any](a *Accessor, v T) Result {
	h, cell, res := a.resolve(ForceOverride)
	if res != Success {
		return res
	}
	before := cell.Kind()
	if before.IsCompound() {
		a.c.releaseChildrenRaw(h, cell)
	}
	r := OverrideToValue(cell, v)
	if r == Success {
		a.postMutation(h, cell.Kind() != before)
	}
	return r
}

// --- copy / swap ---------------------------------------------------------

// redirectTo rewrites the child slot that currently points at oldH (the
// parent of dst's own path, or the container root) to point at newH
// instead (spec §4.D: "redirect_node(old, new)").
func (dst *Accessor) redirectTo(newH Handle) bool {
	if len(dst.segs) == 0 {
		dst.c.root = newH
		return true
	}
	parentSegs := dst.segs[:len(dst.segs)-1]
	_, pcell, res := resolveSegments(dst.c, parentSegs, ReadOnly)
	if res != Success {
		return false
	}
	last := dst.segs[len(dst.segs)-1]
	if last.IsKey() {
		md, ok := pcell.payload.(*mapData)
		if !ok {
			return false
		}
		md.set(last.KeyString(), newH)
		return true
	}
	ld, ok := pcell.payload.(*listData)
	if !ok {
		return false
	}
	return ld.set(int(last.IndexValue()), newH)
}

func copyFromImpl(dst *Accessor, src *Accessor, mode ResolveMode) Result {
	if dst.c == nil || !dst.token.isAlive() || src.c == nil || !src.token.isAlive() {
		return InvalidContainer
	}
	srcH, srcCell, res := src.resolve(ReadOnly)
	if res != Success {
		return res
	}
	dstH, dstCell, res := dst.resolve(mode)
	if res != Success {
		return res
	}
	if dst.c == src.c && dstH == srcH {
		return SameAndNotChange
	}

	if dstCell.Kind().IsLeaf() && srcCell.Kind().IsLeaf() {
		before := dstCell.Kind()
		if before == srcCell.Kind() && cellValueEquals(dstCell.payload, srcCell.payload) {
			return SameAndNotChange
		}
		dstCell.payload = cloneLeafPayload(srcCell.payload)
		dst.postMutation(dstH, dstCell.Kind() != before)
		return Success
	}

	if !canCopy(dst.c, src.c, srcH) {
		dst.c.opts.logger.Warn("nbt: accessor copy would exceed the allocator cap")
		return AllocateFailed
	}
	newH, ok := deepCopyInto(dst.c, src.c, srcH)
	if !ok {
		return AllocateFailed
	}
	if !dst.redirectTo(newH) {
		dst.c.releaseRecursive(newH)
		return InvalidContainer
	}
	dst.c.releaseRecursive(dstH)
	dst.c.bumpStruct()
	dst.cacheValid = false
	dst.bubbleSubtree()
	return Success
}

// TryCopyFrom requires dst to already resolve (spec §4.D:
// "try_copy_from(src): both paths must resolve").
func TryCopyFrom(dst *Accessor, src *Accessor) Result {
	return copyFromImpl(dst, src, ReadOnly)
}

// EnsureAndCopyFrom is TryCopyFrom with EnsureCreate resolution for dst.
func EnsureAndCopyFrom(dst *Accessor, src *Accessor) Result {
	return copyFromImpl(dst, src, EnsureCreate)
}

// TrySwap exchanges the subgraphs at a and b, rejecting ancestor/
// descendant pairs and checking both sides' allocation feasibility up
// front so a failed swap never leaves a partial exchange behind (spec
// §4.D).
func TrySwap(a, b *Accessor) Result {
	if a.c == nil || !a.token.isAlive() || b.c == nil || !b.token.isAlive() {
		return InvalidContainer
	}
	if a.sameContainer(*b) && (isAncestorSegments(a.segs, b.segs) || isAncestorSegments(b.segs, a.segs)) {
		return PermissionDenied
	}

	ah, acell, res := a.resolve(ReadOnly)
	if res != Success {
		return res
	}
	bh, bcell, res := b.resolve(ReadOnly)
	if res != Success {
		return res
	}
	if a.c == b.c && ah == bh {
		return SameAndNotChange
	}

	if acell.Kind().IsLeaf() && bcell.Kind().IsLeaf() {
		if acell.Kind() == bcell.Kind() && cellValueEquals(acell.payload, bcell.payload) {
			return SameAndNotChange
		}
		reKinded := acell.Kind() != bcell.Kind()
		acell.payload, bcell.payload = bcell.payload, acell.payload
		a.postMutation(ah, reKinded)
		b.postMutation(bh, reKinded)
		return Success
	}

	needA := requiredNodeCount(b.c, bh)
	needB := requiredNodeCount(a.c, ah)
	if a.c == b.c {
		if a.c.alloc.freeRemaining() < needA+needB {
			return AllocateFailed
		}
	} else if a.c.alloc.freeRemaining() < needA || b.c.alloc.freeRemaining() < needB {
		return AllocateFailed
	}

	newA, ok := deepCopyInto(a.c, b.c, bh)
	if !ok {
		return AllocateFailed
	}
	newB, ok := deepCopyInto(b.c, a.c, ah)
	if !ok {
		a.c.releaseRecursive(newA)
		return AllocateFailed
	}
	if !a.redirectTo(newA) {
		a.c.releaseRecursive(newA)
		b.c.releaseRecursive(newB)
		return InvalidContainer
	}
	if !b.redirectTo(newB) {
		// a's side is already redirected; the source says this is an
		// assert-only path (programmer error, not caller input), so it
		// surfaces as InvalidContainer rather than aborting (spec §9
		// open questions) instead of attempting to unwind a's redirect.
		b.c.releaseRecursive(newB)
		return InvalidContainer
	}
	a.c.releaseRecursive(ah)
	b.c.releaseRecursive(bh)
	a.c.bumpStruct()
	if a.c != b.c {
		b.c.bumpStruct()
	}
	a.cacheValid, b.cacheValid = false, false
	a.bubbleSubtree()
	b.bubbleSubtree()
	return Success
}

// --- list / map operations ------------------------------------------------

// ListAdd appends a fresh Empty child, ensuring this node is a List
// first.
func (a *Accessor) ListAdd() Result {
	h, cell, res := a.resolve(EnsureCreate)
	if res != Success {
		return res
	}
	if res := ensureCompoundKind(a.c, h, cell, KindList, EnsureCreate); res != Success {
		return res
	}
	ld := cell.payload.(*listData)
	nh, ok := a.c.alloc.allocate()
	if !ok {
		return AllocateFailed
	}
	ld.add(nh)
	a.postMutation(h, true)
	return Success
}

// ListInsert places a fresh Empty child at index i; i == length
// appends, anything else out of [0, length] is PermissionDenied (spec
// §8 boundary behaviors).
func (a *Accessor) ListInsert(i int32) Result {
	h, cell, res := a.resolve(EnsureCreate)
	if res != Success {
		return res
	}
	if res := ensureCompoundKind(a.c, h, cell, KindList, EnsureCreate); res != Success {
		return res
	}
	ld := cell.payload.(*listData)
	if i < 0 || int(i) > ld.len() {
		return PermissionDenied
	}
	nh, ok := a.c.alloc.allocate()
	if !ok {
		return AllocateFailed
	}
	ld.insert(int(i), nh)
	a.postMutation(h, true)
	return Success
}

// ListRemove drops the element at i, optionally via swap-remove-last
// (spec §8: swap-removing the last element leaves length n-1, no move).
func (a *Accessor) ListRemove(i int32, swap bool) Result {
	h, cell, res := a.resolve(ReadOnly)
	if res != Success {
		return res
	}
	if cell.Kind() != KindList {
		return NodeTypeMismatch
	}
	ld := cell.payload.(*listData)
	ch, ok := ld.removeAt(int(i), swap)
	if !ok {
		return PermissionDenied
	}
	a.c.releaseRecursive(ch)
	a.postMutation(h, true)
	return Success
}

// ListClear removes every element.
func (a *Accessor) ListClear() Result {
	h, cell, res := a.resolve(ReadOnly)
	if res != Success {
		return res
	}
	if cell.Kind() != KindList {
		return NodeTypeMismatch
	}
	ld := cell.payload.(*listData)
	children := ld.clear()
	if len(children) == 0 {
		return SameAndNotChange
	}
	for _, ch := range children {
		a.c.releaseRecursive(ch)
	}
	a.postMutation(h, true)
	return Success
}

// MapHasKey reports whether key exists, false for any non-Map node.
func (a *Accessor) MapHasKey(key string) bool {
	_, cell, res := a.resolve(ReadOnly)
	if res != Success || cell.Kind() != KindMap {
		return false
	}
	_, ok := cell.payload.(*mapData).get(key)
	return ok
}

// MapGetKeys returns the map's keys in insertion order.
func (a *Accessor) MapGetKeys() ([]string, Result) {
	_, cell, res := a.resolve(ReadOnly)
	if res != Success {
		return nil, res
	}
	if cell.Kind() != KindMap {
		return nil, NodeTypeMismatch
	}
	return cell.payload.(*mapData).keys(), Success
}

// MapGetSize returns the map's entry count.
func (a *Accessor) MapGetSize() (int, Result) {
	_, cell, res := a.resolve(ReadOnly)
	if res != Success {
		return 0, res
	}
	if cell.Kind() != KindMap {
		return 0, NodeTypeMismatch
	}
	return cell.payload.(*mapData).len(), Success
}

// MapRemove deletes key and releases its subtree.
func (a *Accessor) MapRemove(key string) Result {
	h, cell, res := a.resolve(ReadOnly)
	if res != Success {
		return res
	}
	if cell.Kind() != KindMap {
		return NodeTypeMismatch
	}
	md := cell.payload.(*mapData)
	ch, ok := md.remove(key)
	if !ok {
		return NotFoundSubNode
	}
	a.c.releaseRecursive(ch)
	a.postMutation(h, true)
	return Success
}

// MapClear removes every entry.
func (a *Accessor) MapClear() Result {
	h, cell, res := a.resolve(ReadOnly)
	if res != Success {
		return res
	}
	if cell.Kind() != KindMap {
		return NodeTypeMismatch
	}
	md := cell.payload.(*mapData)
	children := md.clear()
	if len(children) == 0 {
		return SameAndNotChange
	}
	for _, ch := range children {
		a.c.releaseRecursive(ch)
	}
	a.postMutation(h, true)
	return Success
}

// MakeAccessorsFromMap returns one child Accessor per map entry, in
// insertion order.
func (a *Accessor) MakeAccessorsFromMap() ([]Accessor, Result) {
	_, cell, res := a.resolve(ReadOnly)
	if res != Success {
		return nil, res
	}
	if cell.Kind() != KindMap {
		return nil, NodeTypeMismatch
	}
	md := cell.payload.(*mapData)
	out := make([]Accessor, 0, md.len())
	for _, e := range md.order {
		out = append(out, a.derive(Key(e.Key)))
	}
	return out, Success
}

// MakeAccessorsFromList returns one child Accessor per list element.
func (a *Accessor) MakeAccessorsFromList() ([]Accessor, Result) {
	_, cell, res := a.resolve(ReadOnly)
	if res != Success {
		return nil, res
	}
	if cell.Kind() != KindList {
		return nil, NodeTypeMismatch
	}
	ld := cell.payload.(*listData)
	out := make([]Accessor, len(ld.children))
	for i := range ld.children {
		out[i] = a.derive(Index(int32(i)))
	}
	return out, Success
}

// ChildCondition selects MakeAccessorsFrom*ByCondition's filter (spec
// §4.D: "IfEmpty/IfEmptyMap/IfEmptyList").
type ChildCondition uint8

const (
	IfEmpty ChildCondition = iota
	IfEmptyMap
	IfEmptyList
)

func filterByCondition(children []Accessor, cond ChildCondition) []Accessor {
	out := children[:0:0]
	for i := range children {
		ch := &children[i]
		k, res := ch.KindOf()
		if res != Success {
			continue
		}
		switch cond {
		case IfEmpty:
			if k == KindEmpty {
				out = append(out, *ch)
			}
		case IfEmptyMap:
			if _, cell, r := ch.resolve(ReadOnly); k == KindMap && r == Success && cell.payload.(*mapData).len() == 0 {
				out = append(out, *ch)
			}
		case IfEmptyList:
			if _, cell, r := ch.resolve(ReadOnly); k == KindList && r == Success && cell.payload.(*listData).len() == 0 {
				out = append(out, *ch)
			}
		}
	}
	return out
}

// MakeAccessorsFromMapByCondition filters a map's children by cond.
func (a *Accessor) MakeAccessorsFromMapByCondition(cond ChildCondition) ([]Accessor, Result) {
	children, res := a.MakeAccessorsFromMap()
	if res != Success {
		return nil, res
	}
	return filterByCondition(children, cond), Success
}

// MakeAccessorsFromListByCondition filters a list's children by cond.
func (a *Accessor) MakeAccessorsFromListByCondition(cond ChildCondition) ([]Accessor, Result) {
	children, res := a.MakeAccessorsFromList()
	if res != Success {
		return nil, res
	}
	return filterByCondition(children, cond), Success
}

// CompareOp is the search-parameter comparison operator (spec §4.D).
type CompareOp uint8

const (
	OpEq CompareOp = iota
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpContains
	OpStartsWith
	OpEndsWith
)

// ValueKind tells SearchParameter how to parse ValueString before
// iterating (spec §4.D: "parsed once ... according to value_kind").
type ValueKind uint8

const (
	ValueKindString ValueKind = iota
	ValueKindNumber
	ValueKindBool
)

// SearchParameter drives MakeAccessorsFrom*ByParameter (spec §4.D).
type SearchParameter struct {
	Op            CompareOp
	ValueKindHint ValueKind
	ValueString   string
	IgnoreCase    bool
	EnableGeneric bool
	Key           string
	SubKey        string
}

type parsedSearchValue struct {
	str      string
	strLower string
	num      float64
	hasNum   bool
	boolean  bool
	hasBool  bool
}

func parseSearchParameter(p SearchParameter) parsedSearchValue {
	v := parsedSearchValue{str: p.ValueString, strLower: strings.ToLower(p.ValueString)}
	switch p.ValueKindHint {
	case ValueKindNumber:
		if f, err := strconv.ParseFloat(p.ValueString, 64); err == nil {
			v.num, v.hasNum = f, true
		}
	case ValueKindBool:
		if b, err := strconv.ParseBool(p.ValueString); err == nil {
			v.boolean, v.hasBool = b, true
		}
	}
	if p.EnableGeneric {
		if !v.hasNum {
			if f, err := strconv.ParseFloat(p.ValueString, 64); err == nil {
				v.num, v.hasNum = f, true
			}
		}
		if !v.hasBool {
			if b, err := strconv.ParseBool(p.ValueString); err == nil {
				v.boolean, v.hasBool = b, true
			}
		}
	}
	return v
}

func matchNumeric(v float64, op CompareOp, p parsedSearchValue) bool {
	if !p.hasNum {
		return false
	}
	switch op {
	case OpEq:
		return math.Abs(v-p.num) <= FloatEpsilon
	case OpNe:
		return math.Abs(v-p.num) > FloatEpsilon
	case OpGt:
		return v > p.num
	case OpGe:
		return v >= p.num
	case OpLt:
		return v < p.num
	case OpLe:
		return v <= p.num
	default:
		return false
	}
}

func matchBool(v bool, op CompareOp, p parsedSearchValue) bool {
	if !p.hasBool {
		return false
	}
	switch op {
	case OpEq:
		return v == p.boolean
	case OpNe:
		return v != p.boolean
	default:
		return false
	}
}

func matchString(v string, op CompareOp, ignoreCase bool, p parsedSearchValue) bool {
	a, b := v, p.str
	if ignoreCase {
		a, b = strings.ToLower(a), p.strLower
	}
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpContains:
		return strings.Contains(a, b)
	case OpStartsWith:
		return strings.HasPrefix(a, b)
	case OpEndsWith:
		return strings.HasSuffix(a, b)
	default:
		return false
	}
}

func stringOfCell(cell *Cell) (string, bool) {
	switch v := cell.payload.(type) {
	case string:
		return v, true
	case shortString:
		return string(v), true
	case ClassPath:
		return string(v), true
	case ObjectPath:
		return string(v), true
	default:
		return "", false
	}
}

// matchCell compares cell's stored value against p/parsed, trying
// numeric, boolean, then string kinds (spec §4.D search parameter
// rules).
func matchCell(cell *Cell, p SearchParameter, parsed parsedSearchValue) bool {
	if n, ok := cell.GetGenericFloat(); ok {
		return matchNumeric(n, p.Op, parsed)
	}
	if n, ok := cell.GetGenericInt(); ok {
		if _, isBool := cell.payload.(bool); isBool {
			return matchBool(n != 0, p.Op, parsed)
		}
		return matchNumeric(float64(n), p.Op, parsed)
	}
	if s, ok := stringOfCell(cell); ok {
		return matchString(s, p.Op, p.IgnoreCase, parsed)
	}
	return false
}

func filterByParameter(children []Accessor, p SearchParameter) []Accessor {
	parsed := parseSearchParameter(p)
	out := children[:0:0]
	for i := range children {
		ch := &children[i]
		target := ch
		if p.SubKey != "" {
			sub := ch.derive(Key(p.SubKey))
			target = &sub
		}
		_, cell, res := target.resolve(ReadOnly)
		if res != Success {
			continue
		}
		if matchCell(cell, p, parsed) {
			out = append(out, *ch)
		}
	}
	return out
}

// MakeAccessorsFromMapByParameter filters the map's children by p; when
// p.Key is set it restricts the search to that single key instead of
// scanning every entry.
func (a *Accessor) MakeAccessorsFromMapByParameter(p SearchParameter) ([]Accessor, Result) {
	var children []Accessor
	if p.Key != "" {
		ch := a.derive(Key(p.Key))
		if !ch.Exists() {
			return nil, Success
		}
		children = []Accessor{ch}
	} else {
		var res Result
		children, res = a.MakeAccessorsFromMap()
		if res != Success {
			return nil, res
		}
	}
	return filterByParameter(children, p), Success
}

// MakeAccessorsFromListByParameter filters the list's children by p.
func (a *Accessor) MakeAccessorsFromListByParameter(p SearchParameter) ([]Accessor, Result) {
	children, res := a.MakeAccessorsFromList()
	if res != Success {
		return nil, res
	}
	return filterByParameter(children, p), Success
}

func filterIfEqual(children []Accessor, other *Accessor) []Accessor {
	oh, _, ores := other.resolve(ReadOnly)
	if ores != Success {
		return nil
	}
	out := children[:0:0]
	for i := range children {
		ch := &children[i]
		h, _, res := ch.resolve(ReadOnly)
		if res != Success {
			continue
		}
		if DeepEqualValues(ch.c, h, other.c, oh) {
			out = append(out, *ch)
		}
	}
	return out
}

// MakeAccessorsFromMapIfEqual filters the map's children to those deep-
// equal to other (spec §4.D: "..._if_equal(other) uses deep value
// equality").
func (a *Accessor) MakeAccessorsFromMapIfEqual(other *Accessor) ([]Accessor, Result) {
	children, res := a.MakeAccessorsFromMap()
	if res != Success {
		return nil, res
	}
	return filterIfEqual(children, other), Success
}

// MakeAccessorsFromListIfEqual filters the list's children to those
// deep-equal to other.
func (a *Accessor) MakeAccessorsFromListIfEqual(other *Accessor) ([]Accessor, Result) {
	children, res := a.MakeAccessorsFromList()
	if res != Success {
		return nil, res
	}
	return filterIfEqual(children, other), Success
}

// --- visit ---------------------------------------------------------------

// Visitor is invoked once per node during Visit, entering a compound
// before its children (spec §4.D).
type Visitor func(depth int, kind Kind, key string, index int32, isListChild bool, child *Accessor)

// Visit performs a depth-first walk of the resolved node and everything
// beneath it.
func (a *Accessor) Visit(visitor Visitor) Result {
	h, cell, res := a.resolve(ReadOnly)
	if res != Success {
		return res
	}
	visitRecursive(*a, h, cell, 0, "", -1, false, visitor)
	return Success
}

func visitRecursive(a Accessor, h Handle, cell *Cell, depth int, key string, index int32, isListChild bool, visitor Visitor) {
	visitor(depth, cell.Kind(), key, index, isListChild, &a)
	switch cell.Kind() {
	case KindMap:
		md := cell.payload.(*mapData)
		for _, e := range md.order {
			childCell, ok := a.c.alloc.get(e.Child)
			if !ok {
				continue
			}
			visitRecursive(a.derive(Key(e.Key)), e.Child, childCell, depth+1, e.Key, -1, false, visitor)
		}
	case KindList:
		ld := cell.payload.(*listData)
		for i, ch := range ld.children {
			childCell, ok := a.c.alloc.get(ch)
			if !ok {
				continue
			}
			visitRecursive(a.derive(Index(int32(i))), ch, childCell, depth+1, "", int32(i), true, visitor)
		}
	}
}

// --- net serialize ---------------------------------------------------------

func writeSegment(w io.Writer, seg PathSegment) error {
	if seg.IsKey() {
		if err := wire.WriteUvarint(w, 0); err != nil {
			return err
		}
		if err := wire.WriteUvarint(w, uint64(len(seg.KeyString()))); err != nil {
			return err
		}
		_, err := io.WriteString(w, seg.KeyString())
		return err
	}
	if err := wire.WriteUvarint(w, 1); err != nil {
		return err
	}
	return wire.WriteVarint(w, int64(seg.IndexValue()))
}

func readSegment(r io.ByteReader) (PathSegment, error) {
	tag, err := wire.ReadUvarint(r)
	if err != nil {
		return PathSegment{}, err
	}
	if tag == 0 {
		n, err := wire.ReadUvarint(r)
		if err != nil {
			return PathSegment{}, err
		}
		buf := make([]byte, n)
		for i := range buf {
			b, err := r.ReadByte()
			if err != nil {
				return PathSegment{}, err
			}
			buf[i] = b
		}
		return Key(string(buf)), nil
	}
	idx, err := wire.ReadVarint(r)
	if err != nil {
		return PathSegment{}, err
	}
	return Index(int32(idx)), nil
}

// NetSerialize writes a presence bit, a host object reference, and the
// packed path (spec §4.D: "Net serialize").
func (a *Accessor) NetSerialize(w io.Writer) error {
	if a.c == nil || !a.token.isAlive() {
		return wire.WriteUvarint(w, 0)
	}
	if err := wire.WriteUvarint(w, 1); err != nil {
		return err
	}
	var ref uint64
	if hr, ok := a.c.opts.host.(HostObjectRef); ok {
		ref = hr.ObjectRef()
	}
	if err := wire.WriteUvarint(w, ref); err != nil {
		return err
	}
	if err := wire.WriteUvarint(w, uint64(len(a.segs))); err != nil {
		return err
	}
	for _, seg := range a.segs {
		if err := writeSegment(w, seg); err != nil {
			return err
		}
	}
	return nil
}

// NetDeserialize clears and repopulates the accessor from r, rejecting
// paths longer than maxPathSegments (spec §4.D). The Container must
// already be set on the target accessor; only the path and presence are
// replaced.
func (a *Accessor) NetDeserialize(r io.ByteReader) error {
	present, err := wire.ReadUvarint(r)
	if err != nil {
		return err
	}
	if present == 0 {
		a.segs = nil
		return nil
	}
	if _, err := wire.ReadUvarint(r); err != nil { // host object reference, unused on receive
		return err
	}
	n, err := wire.ReadUvarint(r)
	if err != nil {
		return err
	}
	if n > maxPathSegments {
		return ErrInvalidContainer
	}
	segs := make([]PathSegment, 0, n)
	for i := uint64(0); i < n; i++ {
		seg, err := readSegment(r)
		if err != nil {
			return err
		}
		segs = append(segs, seg)
	}
	a.segs = segs
	a.cacheValid = false
	return nil
}
