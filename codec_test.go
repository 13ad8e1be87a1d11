// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/go-quicktest/qt"
)

func roundTripCell(t *testing.T, c *Container, in *Cell) *Cell {
	t.Helper()
	var buf bytes.Buffer
	qt.Assert(t, qt.IsNil(c.encodeCellPayload(&buf, in)))

	out := &Cell{}
	qt.Assert(t, qt.IsNil(c.decodeCellPayload(bufio.NewReader(&buf), out)))
	return out
}

func TestCodecScalarRoundTrip(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	cases := []any{
		int32(-7), int64(1 << 40), float32(3.5), float64(-2.25), true,
		Color{R: 1, G: 2, B: 3, A: 4},
		Rotator{Pitch: 1.5, Yaw: -2.5, Roll: 0.25},
		Vec2[int32]{X: 1, Y: -2},
		Vec3[float64]{X: 1.1, Y: 2.2, Z: 3.3},
		[]int32{1, -2, 3},
		[]float64{1.1, 2.2},
	}
	for _, v := range cases {
		in := &Cell{payload: v}
		out := roundTripCell(t, c, in)
		qt.Assert(t, qt.Equals(out.Kind(), in.Kind()))
		qt.Assert(t, qt.IsTrue(cellValueEquals(out.payload, in.payload)))
	}
}

func TestCodecShortStringUsesInterner(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	in := &Cell{payload: shortString("hello")}
	out := roundTripCell(t, c, in)
	qt.Assert(t, qt.Equals(out.payload.(shortString), shortString("hello")))
}

func TestCodecStringRaw(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	in := &Cell{payload: "a longer heap string"}
	out := roundTripCell(t, c, in)
	qt.Assert(t, qt.Equals(out.payload.(string), "a longer heap string"))
}

func TestCodecTimeRoundTrip(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	now := time.Unix(1_700_000_000, 123456789).UTC()
	in := &Cell{payload: now}
	out := roundTripCell(t, c, in)
	qt.Assert(t, qt.IsTrue(out.payload.(time.Time).Equal(now)))
}

func TestCodecMapAndListRoundTrip(t *testing.T) {
	c := NewContainer()
	defer c.Close()

	md := newMapData()
	md.set("a", Handle{Index: 1, Generation: 1})
	md.set("b", Handle{Index: 2, Generation: 3})
	in := &Cell{payload: md}
	out := roundTripCell(t, c, in)
	gotMD := out.payload.(*mapData)
	qt.Assert(t, qt.Equals(gotMD.len(), 2))
	h, ok := gotMD.get("b")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(h, Handle{Index: 2, Generation: 3}))

	ld := &listData{children: []Handle{{Index: 5, Generation: 1}, {Index: 9, Generation: 2}}}
	in2 := &Cell{payload: ld}
	out2 := roundTripCell(t, c, in2)
	gotLD := out2.payload.(*listData)
	qt.Assert(t, qt.Equals(gotLD.len(), 2))
	qt.Assert(t, qt.Equals(gotLD.children[1], Handle{Index: 9, Generation: 2}))
}
