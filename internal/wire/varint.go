// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package wire implements the variable-length integer codec shared by
// the accessor's network serialization and the delta/full-sync
// payloads (spec §4.F). Unsigned values use encoding/binary's
// Uvarint/PutUvarint base-128 format (7 data bits per byte, the high
// bit set on every byte but the last); values carry no byte-length
// prefix. Signed values are ZigZag-encoded first.
package wire

import (
	"encoding/binary"
	"io"
)

// MaxVarintLen64 bounds a single encoded value, mirroring
// binary.MaxVarintLen64.
const MaxVarintLen64 = binary.MaxVarintLen64

// ZigZagEncode maps a signed integer to an unsigned one so small
// magnitudes (positive or negative) both pack into few bytes (spec
// §4.F: "zz(x) = (x << 1) ^ (x >> (bits-1))").
func ZigZagEncode(x int64) uint64 {
	return uint64((x << 1) ^ (x >> 63))
}

// ZigZagDecode reverses ZigZagEncode.
func ZigZagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// WriteUvarint writes an unsigned varint to w.
func WriteUvarint(w io.Writer, v uint64) error {
	var buf [MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	_, err := w.Write(buf[:n])
	return err
}

// WriteVarint ZigZag-encodes and writes a signed integer.
func WriteVarint(w io.Writer, v int64) error {
	return WriteUvarint(w, ZigZagEncode(v))
}

// ReadUvarint reads an unsigned varint from r. Callers that only have a
// plain io.Reader should wrap it once, outside any per-field loop, e.g.
// bufio.NewReader(r) — wrapping per call would silently discard
// look-ahead bytes buffered between fields.
func ReadUvarint(r io.ByteReader) (uint64, error) {
	return binary.ReadUvarint(r)
}

// ReadVarint reads a ZigZag-encoded signed integer from r.
func ReadVarint(r io.ByteReader) (int64, error) {
	u, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	return ZigZagDecode(u), nil
}

// WriteHandle packs a Handle as two ZigZag varints (index, generation),
// per spec §4.E ("Handles are ZigZag-packed").
func WriteHandle(w io.Writer, index, generation uint16) error {
	if err := WriteVarint(w, int64(index)); err != nil {
		return err
	}
	return WriteVarint(w, int64(generation))
}

// ReadHandle reverses WriteHandle.
func ReadHandle(r io.ByteReader) (index, generation uint16, err error) {
	idx, err := ReadVarint(r)
	if err != nil {
		return 0, 0, err
	}
	gen, err := ReadVarint(r)
	if err != nil {
		return 0, 0, err
	}
	return uint16(idx), uint16(gen), nil
}
