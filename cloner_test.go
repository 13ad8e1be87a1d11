// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import "testing"

type clonedGUID struct {
	id    string
	calls *int
}

func (c clonedGUID) Clone() any {
	*c.calls++
	return clonedGUID{id: c.id, calls: c.calls}
}

func TestCloneLeafPayload_WithCloner(t *testing.T) {
	calls := 0
	v := clonedGUID{id: "a", calls: &calls}
	out := cloneLeafPayload(v)
	if calls != 1 {
		t.Fatalf("expected Clone to be invoked once, got %d", calls)
	}
	if out.(clonedGUID).id != "a" {
		t.Fatalf("expected cloned value to carry over id")
	}
}

func TestCloneLeafPayload_WithoutCloner(t *testing.T) {
	if got := cloneLeafPayload(int32(42)); got != int32(42) {
		t.Fatalf("expected passthrough for non-Cloner, got %v", got)
	}
}

func TestDeepCopyUsesCloner(t *testing.T) {
	src := NewContainer()
	dst := NewContainer()
	defer src.Close()
	defer dst.Close()

	srcAcc := NewAccessor(src)
	calls := 0
	leaf := srcAcc.ChildByKey("tag")
	if r := EnsureAndSet(&leaf, clonedGUID{id: "x", calls: &calls}); !r.OK() {
		t.Fatalf("set failed: %v", r)
	}

	dstAcc := NewAccessor(dst)
	dstLeaf := dstAcc.ChildByKey("tag")
	if r := EnsureAndCopyFrom(&dstLeaf, &leaf); !r.OK() {
		t.Fatalf("copy failed: %v", r)
	}
	if calls == 0 {
		t.Fatalf("expected Clone to run during cross-container copy")
	}
}
