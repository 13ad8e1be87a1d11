// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import "github.com/google/uuid"

// Color is an RGBA color scalar value. It stands in for the host
// engine's color type (out of scope per spec §1); only storage and
// equality are implemented here.
type Color struct {
	R, G, B, A uint8
}

// GUID is a 128-bit globally unique identifier, backed by
// github.com/google/uuid.
type GUID struct {
	uuid.UUID
}

// NewGUID returns a random GUID.
func NewGUID() GUID {
	return GUID{uuid.New()}
}

// ClassPath stands in for the host's reflective class-path value type
// (out of scope per spec §1); it is stored and compared as a plain string.
type ClassPath string

// ObjectPath stands in for the host's reflective object-path value type
// (out of scope per spec §1); it is stored and compared as a plain string.
type ObjectPath string

// Rotator is a 3-axis rotation, stored in degrees like the host engine's
// rotation type.
type Rotator struct {
	Pitch, Yaw, Roll float64
}

// Number is the set of scalar element types a Vec2/Vec3 may hold.
type Number interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// Vec2 is a 2-component vector over one of the four numeric variants
// the spec names (f32/f64/i32/i64).
type Vec2[T Number] struct {
	X, Y T
}

// Vec3 is a 3-component vector over one of the four numeric variants
// the spec names (f32/f64/i32/i64).
type Vec3[T Number] struct {
	X, Y, Z T
}
