// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

// Kind tags the single value a Cell currently holds, mirroring the C++
// source's TVariant index (see SPEC_FULL.md §3.1). Go has no native sum
// type; Cell (cell.go) stores only the payload and derives its Kind
// from the payload's dynamic type, so no separate tag is kept.
type Kind uint8

const (
	KindEmpty Kind = iota

	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindShortString
	KindString
	KindColor
	KindGUID
	KindClassPath
	KindObjectPath
	KindTime
	KindRotator
	KindVec2F32
	KindVec2F64
	KindVec2I32
	KindVec2I64
	KindVec3F32
	KindVec3F64
	KindVec3I32
	KindVec3I64

	KindArrayI8
	KindArrayI16
	KindArrayI32
	KindArrayI64
	KindArrayF32
	KindArrayF64

	KindMap
	KindList
)

var kindNames = [...]string{
	KindEmpty:       "Empty",
	KindBool:        "Bool",
	KindInt8:        "Int8",
	KindInt16:       "Int16",
	KindInt32:       "Int32",
	KindInt64:       "Int64",
	KindFloat32:     "Float32",
	KindFloat64:     "Float64",
	KindShortString: "ShortString",
	KindString:      "String",
	KindColor:       "Color",
	KindGUID:        "GUID",
	KindClassPath:   "ClassPath",
	KindObjectPath:  "ObjectPath",
	KindTime:        "Time",
	KindRotator:     "Rotator",
	KindVec2F32:     "Vec2F32",
	KindVec2F64:     "Vec2F64",
	KindVec2I32:     "Vec2I32",
	KindVec2I64:     "Vec2I64",
	KindVec3F32:     "Vec3F32",
	KindVec3F64:     "Vec3F64",
	KindVec3I32:     "Vec3I32",
	KindVec3I64:     "Vec3I64",
	KindArrayI8:     "ArrayI8",
	KindArrayI16:    "ArrayI16",
	KindArrayI32:    "ArrayI32",
	KindArrayI64:    "ArrayI64",
	KindArrayF32:    "ArrayF32",
	KindArrayF64:    "ArrayF64",
	KindMap:         "Map",
	KindList:        "List",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// IsCompound reports whether k is Map or List.
func (k Kind) IsCompound() bool {
	return k == KindMap || k == KindList
}

// IsLeaf reports whether k is anything but Map/List.
func (k Kind) IsLeaf() bool {
	return !k.IsCompound()
}

// IsArray reports whether k is one of the packed scalar array kinds.
func (k Kind) IsArray() bool {
	return k >= KindArrayI8 && k <= KindArrayF64
}
