// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package wire

import (
	"bufio"
	"bytes"
	"testing"
)

func TestZigZagRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 2, -2, 1<<31 - 1, -(1 << 31), 1 << 40, -(1 << 40)} {
		u := ZigZagEncode(v)
		if got := ZigZagDecode(u); got != v {
			t.Fatalf("ZigZagDecode(ZigZagEncode(%d)) = %d", v, got)
		}
	}
}

func TestVarintRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	values := []int64{0, 1, -1, 127, 128, -128, 1 << 20, -(1 << 20)}
	for _, v := range values {
		if err := WriteVarint(&buf, v); err != nil {
			t.Fatalf("WriteVarint: %v", err)
		}
	}
	r := bufio.NewReader(&buf)
	for _, want := range values {
		got, err := ReadVarint(r)
		if err != nil {
			t.Fatalf("ReadVarint: %v", err)
		}
		if got != want {
			t.Fatalf("ReadVarint = %d, want %d", got, want)
		}
	}
}

func TestHandleRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHandle(&buf, 4200, 7); err != nil {
		t.Fatalf("WriteHandle: %v", err)
	}
	r := bufio.NewReader(&buf)
	idx, gen, err := ReadHandle(r)
	if err != nil {
		t.Fatalf("ReadHandle: %v", err)
	}
	if idx != 4200 || gen != 7 {
		t.Fatalf("ReadHandle = (%d, %d), want (4200, 7)", idx, gen)
	}
}
