// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import "slices"

// Cloner lets a value stored in a leaf Cell escape the package's
// default shallow payload copy during deep-copy operations (Accessor
// copy/swap, Container.CopyFrom/Clone), for host payload types that
// reach through a heap-like escape hatch (e.g. an interned string
// table entry) and need an explicit deep copy rather than a value
// assignment. Grounded on the teacher's generic `Cloner[V any]`
// (cloner.go), narrowed to a non-generic `any` return since a Cell
// payload has no static type parameter.
type Cloner interface {
	Clone() any
}

// cloneLeafPayload returns v unchanged unless it implements Cloner, in
// which case its Clone method supplies the copy. Packed-array kinds get
// a slices.Clone unconditionally, so a deep copy never shares backing
// storage with its source even though no current write path mutates
// one of these slices in place.
func cloneLeafPayload(v any) any {
	if cl, ok := v.(Cloner); ok {
		return cl.Clone()
	}
	switch a := v.(type) {
	case []int8:
		return slices.Clone(a)
	case []int16:
		return slices.Clone(a)
	case []int32:
		return slices.Clone(a)
	case []int64:
		return slices.Clone(a)
	case []float32:
		return slices.Clone(a)
	case []float64:
		return slices.Clone(a)
	}
	return v
}
