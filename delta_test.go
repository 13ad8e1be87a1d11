// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/go-quicktest/qt"
)

func TestDeltaFullSyncThenNoChangeProducesNothing(t *testing.T) {
	sender := NewContainer()
	defer sender.Close()

	hp := NewAccessor(sender).ChildByKey("hp")
	qt.Assert(t, qt.Equals(EnsureAndSet(&hp, int32(10)), Success))

	var buf bytes.Buffer
	baseline, wrote, err := sender.EmitDelta(&buf, nil)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(wrote))

	var buf2 bytes.Buffer
	_, wrote2, err := sender.EmitDelta(&buf2, baseline)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsFalse(wrote2))
	qt.Assert(t, qt.Equals(buf2.Len(), 0))
}

func TestDeltaRoundTrip(t *testing.T) {
	sender := NewContainer()
	defer sender.Close()
	receiver := NewContainer()
	defer receiver.Close()

	hp := NewAccessor(sender).ChildByKey("hp")
	qt.Assert(t, qt.Equals(EnsureAndSet(&hp, int32(10)), Success))

	var full bytes.Buffer
	baseline, wrote, err := sender.EmitDelta(&full, nil)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(wrote))

	pm, err := receiver.ApplyDelta(bufio.NewReader(&full), nil)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(receiver.ContainerDataVersion(), sender.ContainerDataVersion()))

	mp := NewAccessor(sender).ChildByKey("mp")
	qt.Assert(t, qt.Equals(EnsureAndSet(&mp, int32(30)), Success))
	items := NewAccessor(sender).ChildByKey("items")
	qt.Assert(t, qt.Equals(items.ListAdd(), Success))

	var delta bytes.Buffer
	baseline, wrote, err = sender.EmitDelta(&delta, baseline)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(wrote))

	pm, err = receiver.ApplyDelta(bufio.NewReader(&delta), pm)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(receiver.ContainerDataVersion(), sender.ContainerDataVersion()))
	qt.Assert(t, qt.Equals(receiver.ContainerStructVersion(), sender.ContainerStructVersion()))

	qt.Assert(t, qt.IsTrue(DeepEqualValues(receiver, receiver.Root(), sender, sender.Root())))
	_ = baseline
}

func TestDeltaRemoveRebubbles(t *testing.T) {
	sender := NewContainer()
	defer sender.Close()
	receiver := NewContainer()
	defer receiver.Close()

	hp := NewAccessor(sender).ChildByKey("hp")
	qt.Assert(t, qt.Equals(EnsureAndSet(&hp, int32(1)), Success))

	var full bytes.Buffer
	baseline, _, err := sender.EmitDelta(&full, nil)
	qt.Assert(t, qt.IsNil(err))
	pm, err := receiver.ApplyDelta(bufio.NewReader(&full), nil)
	qt.Assert(t, qt.IsNil(err))

	root := NewAccessor(sender)
	qt.Assert(t, qt.Equals(root.MapRemove("hp"), Success))

	var delta bytes.Buffer
	_, wrote, err := sender.EmitDelta(&delta, baseline)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsTrue(wrote))

	sv, ok := receiver.alloc.subtreeVersionPtr(receiver.Root())
	qt.Assert(t, qt.IsTrue(ok))
	svBefore := *sv

	_, err = receiver.ApplyDelta(bufio.NewReader(&delta), pm)
	qt.Assert(t, qt.IsNil(err))

	sv, ok = receiver.alloc.subtreeVersionPtr(receiver.Root())
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.IsTrue(*sv > svBefore))

	recRoot := NewAccessor(receiver)
	recHP := recRoot.ChildByKey("hp")
	qt.Assert(t, qt.IsFalse(recHP.Exists()))
}
