// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import (
	"math"
	"slices"
	"time"
)

// FloatEpsilon is the absolute tolerance used for float equality when
// deciding whether a write actually changed a value (spec §9: "chosen
// by the source; expose as a tunable if downstream tests require a
// different tolerance").
const FloatEpsilon = 1e-4

// Cell is a tagged union of exactly one value at a time (spec §3,
// §4.A, §9). It stores only its own data: compound kinds (Map/List)
// hold child Handles, never child cells.
//
// The zero Cell is Empty, matching a freshly-allocated slot.
type Cell struct {
	payload any
}

// Kind reports which variant is currently stored. It is derived from
// the payload's dynamic type rather than cached in a separate field,
// so Kind and payload can never drift out of sync.
func (c *Cell) Kind() Kind {
	switch c.payload.(type) {
	case nil:
		return KindEmpty
	case bool:
		return KindBool
	case int8:
		return KindInt8
	case int16:
		return KindInt16
	case int32:
		return KindInt32
	case int64:
		return KindInt64
	case float32:
		return KindFloat32
	case float64:
		return KindFloat64
	case shortString:
		return KindShortString
	case string:
		return KindString
	case Color:
		return KindColor
	case GUID:
		return KindGUID
	case ClassPath:
		return KindClassPath
	case ObjectPath:
		return KindObjectPath
	case time.Time:
		return KindTime
	case Rotator:
		return KindRotator
	case Vec2[float32]:
		return KindVec2F32
	case Vec2[float64]:
		return KindVec2F64
	case Vec2[int32]:
		return KindVec2I32
	case Vec2[int64]:
		return KindVec2I64
	case Vec3[float32]:
		return KindVec3F32
	case Vec3[float64]:
		return KindVec3F64
	case Vec3[int32]:
		return KindVec3I32
	case Vec3[int64]:
		return KindVec3I64
	case []int8:
		return KindArrayI8
	case []int16:
		return KindArrayI16
	case []int32:
		return KindArrayI32
	case []int64:
		return KindArrayI64
	case []float32:
		return KindArrayF32
	case []float64:
		return KindArrayF64
	case *mapData:
		return KindMap
	case *listData:
		return KindList
	default:
		return KindEmpty
	}
}

// shortString marks a string that should be (a) compared/stored like
// any other string but (b) wire-encoded through the Interner (§4.F)
// instead of raw bytes. It is a distinct dynamic type purely so Kind()
// can tell it apart from a heap String.
type shortString string

// IsEmpty reports whether the cell is in its freshly-allocated state.
func (c *Cell) IsEmpty() bool {
	return c.payload == nil
}

// reset returns the cell to Empty, dropping any compound payload.
func (c *Cell) reset() {
	c.payload = nil
}

// resetToMap overwrites the cell with a fresh empty Map.
func (c *Cell) resetToMap() {
	c.payload = newMapData()
}

// resetToList overwrites the cell with a fresh empty List.
func (c *Cell) resetToList() {
	c.payload = &listData{}
}

// GetValue returns the stored value only when the cell's dynamic kind
// matches T exactly (spec §4.A: "get<T> returns a present value only
// when the cell's kind matches T exactly").
func GetValue[T any](c *Cell) (T, bool) {
	v, ok := c.payload.(T)
	return v, ok
}

// TrySetValue requires a matching kind; see Result for the three
// possible outcomes.
func TrySetValue[T any](c *Cell, v T) Result {
	cur, ok := c.payload.(T)
	if !ok {
		return NodeTypeMismatch
	}
	if valuesEqual(cur, v) {
		return SameAndNotChange
	}
	c.payload = v
	return Success
}

// OverrideToValue unconditionally replaces the kind and value,
// returning SameAndNotChange when the resulting stored value matches
// the previous one (same kind, same value).
func OverrideToValue[T any](c *Cell, v T) Result {
	if cur, ok := c.payload.(T); ok && valuesEqual(cur, v) {
		return SameAndNotChange
	}
	c.payload = v
	return Success
}

// valuesEqual compares two values of the same concrete type T, using
// FloatEpsilon for float32/float64 and their packed-array forms
// (elementwise, same epsilon), and a plain == otherwise.
func valuesEqual[T any](a, b T) bool {
	return cellValueEquals(a, b)
}

// cellValueEquals is the dynamic-type twin of valuesEqual, used
// wherever two payloads are only known as `any` (cross-cell/
// cross-container comparisons in the accessor's copy/swap and deep
// value equality paths).
func cellValueEquals(a, b any) bool {
	switch av := a.(type) {
	case float32:
		bv, ok := b.(float32)
		return ok && math.Abs(float64(av-bv)) <= FloatEpsilon
	case float64:
		bv, ok := b.(float64)
		return ok && math.Abs(av-bv) <= FloatEpsilon
	case []float32:
		bv, ok := b.([]float32)
		return ok && floatSliceEqual32(av, bv)
	case []float64:
		bv, ok := b.([]float64)
		return ok && floatSliceEqual64(av, bv)
	case []int8:
		bv, ok := b.([]int8)
		return ok && intSliceEqual(av, bv)
	case []int16:
		bv, ok := b.([]int16)
		return ok && intSliceEqual(av, bv)
	case []int32:
		bv, ok := b.([]int32)
		return ok && intSliceEqual(av, bv)
	case []int64:
		bv, ok := b.([]int64)
		return ok && intSliceEqual(av, bv)
	default:
		// Every remaining kind this package stores (bool, integers,
		// strings, Color/GUID/ClassPath/ObjectPath/Time/Rotator/Vec2/
		// Vec3, and the *mapData/*listData compound pointers) is a
		// comparable type, so == never panics here.
		return a == b
	}
}

func floatSliceEqual32(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > FloatEpsilon {
			return false
		}
	}
	return true
}

func floatSliceEqual64(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > FloatEpsilon {
			return false
		}
	}
	return true
}

func intSliceEqual[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EqualsValues compares kind first (false on mismatch), then value
// (spec §4.A). For compound kinds this only compares immediate
// structure — same child Handles at the same keys/indices — since a
// Cell alone cannot resolve a child Handle into another cell. True
// deep, cross-container value equality is DeepEqualValues in
// container.go.
func (c *Cell) EqualsValues(other *Cell) bool {
	if c.Kind() != other.Kind() {
		return false
	}
	switch c.Kind() {
	case KindMap:
		a, b := c.payload.(*mapData), other.payload.(*mapData)
		if a.len() != b.len() {
			return false
		}
		for _, e := range a.order {
			bh, ok := b.get(e.Key)
			if !ok || bh != e.Child {
				return false
			}
		}
		return true
	case KindList:
		a, b := c.payload.(*listData), other.payload.(*listData)
		return slices.Equal(a.children, b.children)
	default:
		return cellValueEquals(c.payload, other.payload)
	}
}

// GetGenericInt widens booleans and any signed integer kind to int64
// (spec §4.A).
func (c *Cell) GetGenericInt() (int64, bool) {
	switch v := c.payload.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// GetGenericFloat widens f32/f64 to float64 (spec §4.A).
func (c *Cell) GetGenericFloat() (float64, bool) {
	switch v := c.payload.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// TrySetGenericInt clamps v to the destination integer's representable
// range and preserves the current kind (spec §4.A). NodeTypeMismatch
// if the current kind isn't boolean or a signed integer kind.
func (c *Cell) TrySetGenericInt(v int64) Result {
	switch cur := c.payload.(type) {
	case bool:
		nv := v != 0
		if nv == cur {
			return SameAndNotChange
		}
		c.payload = nv
		return Success
	case int8:
		nv := clampToInt8(v)
		if nv == cur {
			return SameAndNotChange
		}
		c.payload = nv
		return Success
	case int16:
		nv := clampToInt16(v)
		if nv == cur {
			return SameAndNotChange
		}
		c.payload = nv
		return Success
	case int32:
		nv := clampToInt32(v)
		if nv == cur {
			return SameAndNotChange
		}
		c.payload = nv
		return Success
	case int64:
		if v == cur {
			return SameAndNotChange
		}
		c.payload = v
		return Success
	default:
		return NodeTypeMismatch
	}
}

func clampToInt8(v int64) int8 {
	switch {
	case v < math.MinInt8:
		return math.MinInt8
	case v > math.MaxInt8:
		return math.MaxInt8
	default:
		return int8(v)
	}
}

func clampToInt16(v int64) int16 {
	switch {
	case v < math.MinInt16:
		return math.MinInt16
	case v > math.MaxInt16:
		return math.MaxInt16
	default:
		return int16(v)
	}
}

func clampToInt32(v int64) int32 {
	switch {
	case v < math.MinInt32:
		return math.MinInt32
	case v > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(v)
	}
}
