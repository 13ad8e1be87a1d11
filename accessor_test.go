// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func cellOf(a *Accessor) *Cell {
	_, cell, _ := a.resolve(ReadOnly)
	return cell
}

func listLen(a *Accessor) int {
	cell := cellOf(a)
	if cell == nil || cell.Kind() != KindList {
		return -1
	}
	return cell.payload.(*listData).len()
}

func TestAccessorEmptyInit(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	qt.Assert(t, qt.Equals(c.NodeCount(), 1))
	root := NewAccessor(c)
	k, res := root.KindOf()
	qt.Assert(t, qt.Equals(res, Success))
	qt.Assert(t, qt.Equals(k, KindMap))
	qt.Assert(t, qt.Equals(c.ContainerDataVersion(), uint64(0)))
	qt.Assert(t, qt.Equals(c.ContainerStructVersion(), uint64(0)))
}

func TestAccessorSimpleWrite(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	hp := NewAccessor(c).ChildByKey("hp")
	res := EnsureAndSet(&hp, int32(100))
	qt.Assert(t, qt.Equals(res, Success))
	qt.Assert(t, qt.Equals(c.NodeCount(), 2))
	qt.Assert(t, qt.Equals(c.ContainerStructVersion(), uint64(1)))
	qt.Assert(t, qt.Equals(c.ContainerDataVersion(), uint64(1)))

	sv, ok := c.alloc.subtreeVersionPtr(c.root)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.IsTrue(*sv > 0))

	v, ok := GetValue[int32](cellOf(&hp))
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(v, int32(100)))
}

func TestAccessorIdempotentWrite(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	hp := NewAccessor(c).ChildByKey("hp")
	qt.Assert(t, qt.Equals(EnsureAndSet(&hp, int32(100)), Success))
	dv, sv := c.ContainerDataVersion(), c.ContainerStructVersion()

	res := EnsureAndSet(&hp, int32(100))
	qt.Assert(t, qt.Equals(res, SameAndNotChange))
	qt.Assert(t, qt.Equals(c.ContainerDataVersion(), dv))
	qt.Assert(t, qt.Equals(c.ContainerStructVersion(), sv))
}

func TestAccessorListGrowth(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	items := NewAccessor(c).ChildByKey("items")
	qt.Assert(t, qt.Equals(items.ListAdd(), Success))
	qt.Assert(t, qt.Equals(items.ListAdd(), Success))
	qt.Assert(t, qt.Equals(items.ListAdd(), Success))

	children, res := items.MakeAccessorsFromList()
	qt.Assert(t, qt.Equals(res, Success))
	qt.Assert(t, qt.Equals(len(children), 3))

	for i, s := range []string{"a", "b", "c"} {
		qt.Assert(t, qt.Equals(EnsureAndSet(&children[i], s), Success))
	}
	qt.Assert(t, qt.Equals(listLen(&items), 3))

	nonSwap := NewAccessor(c).ChildByKey("items")
	qt.Assert(t, qt.Equals(nonSwap.ListRemove(1, false), Success))
	children, _ = nonSwap.MakeAccessorsFromList()
	qt.Assert(t, qt.Equals(len(children), 2))
	a0, _ := GetValue[string](cellOf(&children[0]))
	a1, _ := GetValue[string](cellOf(&children[1]))
	qt.Assert(t, qt.Equals(a0, "a"))
	qt.Assert(t, qt.Equals(a1, "c"))
}

func TestAccessorListSwapRemoveLast(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	items := NewAccessor(c).ChildByKey("items")
	for range 3 {
		qt.Assert(t, qt.Equals(items.ListAdd(), Success))
	}
	children, _ := items.MakeAccessorsFromList()
	for i, s := range []string{"a", "b", "c"} {
		qt.Assert(t, qt.Equals(EnsureAndSet(&children[i], s), Success))
	}

	qt.Assert(t, qt.Equals(items.ListRemove(2, true), Success))
	qt.Assert(t, qt.Equals(listLen(&items), 2))
}

func TestAccessorDeepCopyWithRedirect(t *testing.T) {
	a := NewContainer()
	b := NewContainer()
	defer a.Close()
	defer b.Close()

	ax := NewAccessor(a).ChildByKey("x")
	axy := ax.ChildByKey("y")
	qt.Assert(t, qt.Equals(axy.ListAdd(), Success))
	qt.Assert(t, qt.Equals(axy.ListAdd(), Success))
	children, _ := axy.MakeAccessorsFromList()
	qt.Assert(t, qt.Equals(EnsureAndSet(&children[0], int32(1)), Success))
	qt.Assert(t, qt.Equals(EnsureAndSet(&children[1], int32(2)), Success))

	bz := NewAccessor(b).ChildByKey("z")
	res := EnsureAndCopyFrom(&bz, &ax)
	qt.Assert(t, qt.Equals(res, Success))

	bzh, _, r := bz.resolve(ReadOnly)
	qt.Assert(t, qt.Equals(r, Success))
	axh, _, r := ax.resolve(ReadOnly)
	qt.Assert(t, qt.Equals(r, Success))
	qt.Assert(t, qt.IsTrue(DeepEqualValues(b, bzh, a, axh)))
	qt.Assert(t, qt.IsFalse(bzh == axh))

	bzy0 := bz.ChildByKey("y").ChildByIndex(0)
	qt.Assert(t, qt.Equals(OverrideTo(&bzy0, int32(99)), Success))

	axy0 := ax.ChildByKey("y").ChildByIndex(0)
	v, ok := GetValue[int32](cellOf(&axy0))
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(v, int32(1)))
}

func TestAccessorSwapRejectsAncestor(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	parent := NewAccessor(c).ChildByKey("p")
	child := parent.ChildByKey("c")
	qt.Assert(t, qt.Equals(EnsureAndSet(&child, int32(1)), Success))

	res := TrySwap(&parent, &child)
	qt.Assert(t, qt.Equals(res, PermissionDenied))
}

func TestAccessorMarkAndChangeDetection(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	hp := NewAccessor(c).ChildByKey("hp")
	qt.Assert(t, qt.Equals(EnsureAndSet(&hp, int32(5)), Success))
	qt.Assert(t, qt.Equals(hp.Mark(), Success))
	qt.Assert(t, qt.IsFalse(hp.IsDataChanged()))

	qt.Assert(t, qt.Equals(EnsureAndSet(&hp, int32(6)), Success))
	qt.Assert(t, qt.IsTrue(hp.IsDataChanged()))
}

func TestAccessorListInsertBoundary(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	items := NewAccessor(c).ChildByKey("items")
	qt.Assert(t, qt.Equals(items.ListInsert(0), Success))
	qt.Assert(t, qt.Equals(items.ListInsert(5), PermissionDenied))
	qt.Assert(t, qt.Equals(items.ListInsert(-1), PermissionDenied))
}

func TestAccessorSearchParameter(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	root := NewAccessor(c)
	hp := root.ChildByKey("hp")
	mp := root.ChildByKey("mp")
	qt.Assert(t, qt.Equals(EnsureAndSet(&hp, int32(100)), Success))
	qt.Assert(t, qt.Equals(EnsureAndSet(&mp, int32(30)), Success))

	matches, res := root.MakeAccessorsFromMapByParameter(SearchParameter{
		Op:            OpGe,
		ValueKindHint: ValueKindNumber,
		ValueString:   "50",
	})
	qt.Assert(t, qt.Equals(res, Success))
	qt.Assert(t, qt.Equals(len(matches), 1))
	v, _ := GetValue[int32](cellOf(&matches[0]))
	qt.Assert(t, qt.Equals(v, int32(100)))
}

func TestAccessorVisit(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	root := NewAccessor(c)
	hp := root.ChildByKey("hp")
	qt.Assert(t, qt.Equals(EnsureAndSet(&hp, int32(1)), Success))
	items := root.ChildByKey("items")
	qt.Assert(t, qt.Equals(items.ListAdd(), Success))

	var visited []string
	res := root.Visit(func(depth int, kind Kind, key string, index int32, isListChild bool, child *Accessor) {
		visited = append(visited, pathString(child.segs))
	})
	qt.Assert(t, qt.Equals(res, Success))
	qt.Assert(t, qt.IsTrue(len(visited) >= 4))
}
