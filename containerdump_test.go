// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/google/go-cmp/cmp"
)

type treeEntry struct {
	Path    string
	Kind    Kind
	Payload any
}

func snapshotTree(t *testing.T, root *Accessor) []treeEntry {
	t.Helper()
	var entries []treeEntry
	res := root.Visit(func(depth int, kind Kind, key string, index int32, isListChild bool, child *Accessor) {
		cell := cellOf(child)
		entries = append(entries, treeEntry{Path: pathString(child.segs), Kind: kind, Payload: cell.payload})
	})
	qt.Assert(t, qt.Equals(res, Success))
	return entries
}

func TestContainerDumpRoundTrip(t *testing.T) {
	src := NewContainer()
	defer src.Close()

	hp := NewAccessor(src).ChildByKey("hp")
	qt.Assert(t, qt.Equals(EnsureAndSet(&hp, int32(100)), Success))
	pos := NewAccessor(src).ChildByKey("pos")
	qt.Assert(t, qt.Equals(EnsureAndSet(&pos, Vec3[float64]{X: 1, Y: 2, Z: 3}), Success))
	items := NewAccessor(src).ChildByKey("items")
	qt.Assert(t, qt.Equals(items.ListAdd(), Success))
	qt.Assert(t, qt.Equals(items.ListAdd(), Success))
	children, _ := items.MakeAccessorsFromList()
	qt.Assert(t, qt.Equals(EnsureAndSet(&children[0], "alpha"), Success))
	qt.Assert(t, qt.Equals(EnsureAndSet(&children[1], int64(7)), Success))

	var buf bytes.Buffer
	qt.Assert(t, qt.IsNil(src.SerializeFull(&buf)))

	dst := NewContainer()
	defer dst.Close()
	qt.Assert(t, qt.IsNil(dst.DeserializeFull(bufio.NewReader(&buf))))

	qt.Assert(t, qt.Equals(dst.ContainerDataVersion(), src.ContainerDataVersion()))
	qt.Assert(t, qt.Equals(dst.ContainerStructVersion(), src.ContainerStructVersion()))
	qt.Assert(t, qt.Equals(dst.NodeCount(), src.NodeCount()))

	srcRoot, dstRoot := NewAccessor(src), NewAccessor(dst)
	srcEntries, dstEntries := snapshotTree(t, &srcRoot), snapshotTree(t, &dstRoot)
	if diff := cmp.Diff(srcEntries, dstEntries, cmp.AllowUnexported(mapData{}, listData{})); diff != "" {
		t.Fatalf("round-tripped tree differs (-src +dst):\n%s", diff)
	}
}

func TestContainerDumpDiskFormatBumpsVersionsOnce(t *testing.T) {
	src := NewContainer()
	defer src.Close()

	hp := NewAccessor(src).ChildByKey("hp")
	qt.Assert(t, qt.Equals(EnsureAndSet(&hp, int32(1)), Success))

	var buf bytes.Buffer
	qt.Assert(t, qt.IsNil(src.SerializeDisk(&buf)))

	dst := NewContainer()
	defer dst.Close()
	qt.Assert(t, qt.IsNil(dst.DeserializeDisk(bufio.NewReader(&buf))))

	qt.Assert(t, qt.Equals(dst.ContainerDataVersion(), uint64(1)))
	qt.Assert(t, qt.Equals(dst.ContainerStructVersion(), uint64(1)))
}
