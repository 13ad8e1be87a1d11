// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import (
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ySion/nbtsystem/internal/wire"
)

// encodeCellPayload writes a cell's kind byte followed by its
// kind-specific payload (spec §4.F). Scalars are ZigZag/varint-packed;
// floats keep their host bit pattern; short strings go through the
// container's Interner rather than raw bytes.
func (c *Container) encodeCellPayload(w io.Writer, cell *Cell) error {
	k := cell.Kind()
	if err := writeFixedBytes(w, []byte{byte(k)}); err != nil {
		return err
	}

	switch v := cell.payload.(type) {
	case nil:
		return nil
	case bool:
		b := byte(0)
		if v {
			b = 1
		}
		return writeFixedBytes(w, []byte{b})
	case int8:
		return wire.WriteVarint(w, int64(v))
	case int16:
		return wire.WriteVarint(w, int64(v))
	case int32:
		return wire.WriteVarint(w, int64(v))
	case int64:
		return wire.WriteVarint(w, v)
	case float32:
		return writeFloat32(w, v)
	case float64:
		return writeFloat64(w, v)
	case shortString:
		return c.writeInternedString(w, string(v))
	case string:
		return writeByteString(w, v)
	case Color:
		return writeFixedBytes(w, []byte{v.R, v.G, v.B, v.A})
	case GUID:
		b := v.UUID
		return writeFixedBytes(w, b[:])
	case ClassPath:
		return writeByteString(w, string(v))
	case ObjectPath:
		return writeByteString(w, string(v))
	case time.Time:
		return wire.WriteVarint(w, v.UnixNano())
	case Rotator:
		if err := writeFloat64(w, v.Pitch); err != nil {
			return err
		}
		if err := writeFloat64(w, v.Yaw); err != nil {
			return err
		}
		return writeFloat64(w, v.Roll)
	case Vec2[float32]:
		return writeFloat32s(w, v.X, v.Y)
	case Vec2[float64]:
		return writeFloat64s(w, v.X, v.Y)
	case Vec2[int32]:
		return writeVarints(w, int64(v.X), int64(v.Y))
	case Vec2[int64]:
		return writeVarints(w, v.X, v.Y)
	case Vec3[float32]:
		return writeFloat32s(w, v.X, v.Y, v.Z)
	case Vec3[float64]:
		return writeFloat64s(w, v.X, v.Y, v.Z)
	case Vec3[int32]:
		return writeVarints(w, int64(v.X), int64(v.Y), int64(v.Z))
	case Vec3[int64]:
		return writeVarints(w, v.X, v.Y, v.Z)
	case []int8:
		return writeIntArray(w, v, func(x int8) int64 { return int64(x) })
	case []int16:
		return writeIntArray(w, v, func(x int16) int64 { return int64(x) })
	case []int32:
		return writeIntArray(w, v, func(x int32) int64 { return int64(x) })
	case []int64:
		return writeIntArray(w, v, func(x int64) int64 { return x })
	case []float32:
		if err := wire.WriteUvarint(w, uint64(len(v))); err != nil {
			return err
		}
		for _, f := range v {
			if err := writeFloat32(w, f); err != nil {
				return err
			}
		}
		return nil
	case []float64:
		if err := wire.WriteUvarint(w, uint64(len(v))); err != nil {
			return err
		}
		for _, f := range v {
			if err := writeFloat64(w, f); err != nil {
				return err
			}
		}
		return nil
	case *mapData:
		if err := wire.WriteUvarint(w, uint64(v.len())); err != nil {
			return err
		}
		for _, e := range v.order {
			if err := c.writeInternedString(w, e.Key); err != nil {
				return err
			}
			if err := wire.WriteHandle(w, e.Child.Index, e.Child.Generation); err != nil {
				return err
			}
		}
		return nil
	case *listData:
		if err := wire.WriteUvarint(w, uint64(v.len())); err != nil {
			return err
		}
		for _, ch := range v.children {
			if err := wire.WriteHandle(w, ch.Index, ch.Generation); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

// decodeCellPayload reads a kind byte and its payload, installing the
// result into cell. Compound kinds reconstruct child Handles verbatim;
// the caller is responsible for making sure every such Handle is
// subsequently installed via allocator.allocateAt (the full-container
// and delta apply paths both do this by construction, since every
// reachable handle is itself a dumped slot).
func (c *Container) decodeCellPayload(r io.ByteReader, cell *Cell) error {
	kb, err := r.ReadByte()
	if err != nil {
		return err
	}
	k := Kind(kb)

	switch k {
	case KindEmpty:
		cell.payload = nil
	case KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		cell.payload = b != 0
	case KindInt8:
		v, err := wire.ReadVarint(r)
		if err != nil {
			return err
		}
		cell.payload = int8(v)
	case KindInt16:
		v, err := wire.ReadVarint(r)
		if err != nil {
			return err
		}
		cell.payload = int16(v)
	case KindInt32:
		v, err := wire.ReadVarint(r)
		if err != nil {
			return err
		}
		cell.payload = int32(v)
	case KindInt64:
		v, err := wire.ReadVarint(r)
		if err != nil {
			return err
		}
		cell.payload = v
	case KindFloat32:
		v, err := readFloat32(r)
		if err != nil {
			return err
		}
		cell.payload = v
	case KindFloat64:
		v, err := readFloat64(r)
		if err != nil {
			return err
		}
		cell.payload = v
	case KindShortString:
		s, err := c.readInternedString(r)
		if err != nil {
			return err
		}
		cell.payload = shortString(s)
	case KindString:
		s, err := readByteString(r)
		if err != nil {
			return err
		}
		cell.payload = s
	case KindColor:
		buf, err := readFixedBytes(r, 4)
		if err != nil {
			return err
		}
		cell.payload = Color{R: buf[0], G: buf[1], B: buf[2], A: buf[3]}
	case KindGUID:
		buf, err := readFixedBytes(r, 16)
		if err != nil {
			return err
		}
		var id uuid.UUID
		copy(id[:], buf)
		cell.payload = GUID{id}
	case KindClassPath:
		s, err := readByteString(r)
		if err != nil {
			return err
		}
		cell.payload = ClassPath(s)
	case KindObjectPath:
		s, err := readByteString(r)
		if err != nil {
			return err
		}
		cell.payload = ObjectPath(s)
	case KindTime:
		ns, err := wire.ReadVarint(r)
		if err != nil {
			return err
		}
		cell.payload = time.Unix(0, ns).UTC()
	case KindRotator:
		vals, err := readFloat64s(r, 3)
		if err != nil {
			return err
		}
		cell.payload = Rotator{Pitch: vals[0], Yaw: vals[1], Roll: vals[2]}
	case KindVec2F32:
		vals, err := readFloat32s(r, 2)
		if err != nil {
			return err
		}
		cell.payload = Vec2[float32]{X: vals[0], Y: vals[1]}
	case KindVec2F64:
		vals, err := readFloat64s(r, 2)
		if err != nil {
			return err
		}
		cell.payload = Vec2[float64]{X: vals[0], Y: vals[1]}
	case KindVec2I32:
		vals, err := readVarints(r, 2)
		if err != nil {
			return err
		}
		cell.payload = Vec2[int32]{X: int32(vals[0]), Y: int32(vals[1])}
	case KindVec2I64:
		vals, err := readVarints(r, 2)
		if err != nil {
			return err
		}
		cell.payload = Vec2[int64]{X: vals[0], Y: vals[1]}
	case KindVec3F32:
		vals, err := readFloat32s(r, 3)
		if err != nil {
			return err
		}
		cell.payload = Vec3[float32]{X: vals[0], Y: vals[1], Z: vals[2]}
	case KindVec3F64:
		vals, err := readFloat64s(r, 3)
		if err != nil {
			return err
		}
		cell.payload = Vec3[float64]{X: vals[0], Y: vals[1], Z: vals[2]}
	case KindVec3I32:
		vals, err := readVarints(r, 3)
		if err != nil {
			return err
		}
		cell.payload = Vec3[int32]{X: int32(vals[0]), Y: int32(vals[1]), Z: int32(vals[2])}
	case KindVec3I64:
		vals, err := readVarints(r, 3)
		if err != nil {
			return err
		}
		cell.payload = Vec3[int64]{X: vals[0], Y: vals[1], Z: vals[2]}
	case KindArrayI8:
		vals, err := readIntArray(r, func(x int64) int8 { return int8(x) })
		if err != nil {
			return err
		}
		cell.payload = vals
	case KindArrayI16:
		vals, err := readIntArray(r, func(x int64) int16 { return int16(x) })
		if err != nil {
			return err
		}
		cell.payload = vals
	case KindArrayI32:
		vals, err := readIntArray(r, func(x int64) int32 { return int32(x) })
		if err != nil {
			return err
		}
		cell.payload = vals
	case KindArrayI64:
		vals, err := readIntArray(r, func(x int64) int64 { return x })
		if err != nil {
			return err
		}
		cell.payload = vals
	case KindArrayF32:
		n, err := wire.ReadUvarint(r)
		if err != nil {
			return err
		}
		out := make([]float32, n)
		for i := range out {
			if out[i], err = readFloat32(r); err != nil {
				return err
			}
		}
		cell.payload = out
	case KindArrayF64:
		n, err := wire.ReadUvarint(r)
		if err != nil {
			return err
		}
		out := make([]float64, n)
		for i := range out {
			if out[i], err = readFloat64(r); err != nil {
				return err
			}
		}
		cell.payload = out
	case KindMap:
		n, err := wire.ReadUvarint(r)
		if err != nil {
			return err
		}
		md := newMapData()
		for i := uint64(0); i < n; i++ {
			key, err := c.readInternedString(r)
			if err != nil {
				return err
			}
			idx, gen, err := wire.ReadHandle(r)
			if err != nil {
				return err
			}
			md.set(key, Handle{Index: idx, Generation: gen})
		}
		cell.payload = md
	case KindList:
		n, err := wire.ReadUvarint(r)
		if err != nil {
			return err
		}
		ld := &listData{children: make([]Handle, n)}
		for i := range ld.children {
			idx, gen, err := wire.ReadHandle(r)
			if err != nil {
				return err
			}
			ld.children[i] = Handle{Index: idx, Generation: gen}
		}
		cell.payload = ld
	default:
		cell.payload = nil
	}
	return nil
}

// writeInternedString always goes through the container's Interner:
// every configured Container carries a default *MapInterner even when
// the host supplies none (spec §4.F: "a handle into the host
// interning table (if available) or raw bytes" — this package always
// has one available).
func (c *Container) writeInternedString(w io.Writer, s string) error {
	id := c.opts.interner.Intern(s)
	return wire.WriteUvarint(w, uint64(id))
}

func (c *Container) readInternedString(r io.ByteReader) (string, error) {
	id, err := wire.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	s, ok := c.opts.interner.Lookup(uint32(id))
	if !ok {
		return "", errCorruptInternID
	}
	return s, nil
}

func writeByteString(w io.Writer, s string) error {
	if err := wire.WriteUvarint(w, uint64(len(s))); err != nil {
		return err
	}
	return writeFixedBytes(w, []byte(s))
}

func readByteString(r io.ByteReader) (string, error) {
	n, err := wire.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	buf, err := readFixedBytes(r, int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeFixedBytes(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

// readFixedBytes pulls n bytes off an io.ByteReader one at a time;
// the decode path only has ByteReader, not a bulk Reader, to stay
// consistent with internal/wire's varint primitives.
func readFixedBytes(r io.ByteReader, n int) ([]byte, error) {
	buf := make([]byte, n)
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf[i] = b
	}
	return buf, nil
}

func writeFloat32(w io.Writer, f float32) error {
	bits := math.Float32bits(f)
	return writeFixedBytes(w, []byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)})
}

func readFloat32(r io.ByteReader) (float32, error) {
	buf, err := readFixedBytes(r, 4)
	if err != nil {
		return 0, err
	}
	bits := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	return math.Float32frombits(bits), nil
}

func writeFloat64(w io.Writer, f float64) error {
	bits := math.Float64bits(f)
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(bits >> (8 * i))
	}
	return writeFixedBytes(w, buf)
}

func readFloat64(r io.ByteReader) (float64, error) {
	buf, err := readFixedBytes(r, 8)
	if err != nil {
		return 0, err
	}
	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(buf[i]) << (8 * i)
	}
	return math.Float64frombits(bits), nil
}

func writeFloat32s(w io.Writer, vs ...float32) error {
	for _, v := range vs {
		if err := writeFloat32(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readFloat32s(r io.ByteReader, n int) ([]float32, error) {
	out := make([]float32, n)
	for i := range out {
		v, err := readFloat32(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func writeFloat64s(w io.Writer, vs ...float64) error {
	for _, v := range vs {
		if err := writeFloat64(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readFloat64s(r io.ByteReader, n int) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		v, err := readFloat64(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func writeVarints(w io.Writer, vs ...int64) error {
	for _, v := range vs {
		if err := wire.WriteVarint(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readVarints(r io.ByteReader, n int) ([]int64, error) {
	out := make([]int64, n)
	for i := range out {
		v, err := wire.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func writeIntArray[T int8 | int16 | int32 | int64](w io.Writer, vs []T, widen func(T) int64) error {
	if err := wire.WriteUvarint(w, uint64(len(vs))); err != nil {
		return err
	}
	for _, v := range vs {
		if err := wire.WriteVarint(w, widen(v)); err != nil {
			return err
		}
	}
	return nil
}

func readIntArray[T int8 | int16 | int32 | int64](r io.ByteReader, narrow func(int64) T) ([]T, error) {
	n, err := wire.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	out := make([]T, n)
	for i := range out {
		v, err := wire.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		out[i] = narrow(v)
	}
	return out, nil
}
