// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import "strconv"

// segmentKind distinguishes a map-key hop from a list-index hop.
type segmentKind uint8

const (
	segKey segmentKind = iota
	segIndex
)

// PathSegment is one hop of an Accessor's address: either a map key or
// a list index (spec §3 GLOSSARY "Path", §4.D).
type PathSegment struct {
	kind  segmentKind
	key   string
	index int32
}

// Key builds a map-key segment.
func Key(k string) PathSegment {
	return PathSegment{kind: segKey, key: k}
}

// Index builds a list-index segment.
func Index(i int32) PathSegment {
	return PathSegment{kind: segIndex, index: i}
}

// IsKey and IsIndex report the segment's kind.
func (s PathSegment) IsKey() bool   { return s.kind == segKey }
func (s PathSegment) IsIndex() bool { return s.kind == segIndex }

// KeyString returns the stored key, or "" for an index segment.
func (s PathSegment) KeyString() string { return s.key }

// IndexValue returns the stored index, or 0 for a key segment.
func (s PathSegment) IndexValue() int32 { return s.index }

func (s PathSegment) equals(other PathSegment) bool {
	if s.kind != other.kind {
		return false
	}
	if s.kind == segKey {
		return s.key == other.key
	}
	return s.index == other.index
}

func (s PathSegment) String() string {
	if s.kind == segKey {
		return s.key
	}
	return "[" + strconv.FormatInt(int64(s.index), 10) + "]"
}

// pathString renders a dotted debug form, e.g. "items[1].name".
func pathString(segs []PathSegment) string {
	out := ""
	for i, s := range segs {
		if s.kind == segKey {
			if i > 0 {
				out += "."
			}
			out += s.key
		} else {
			out += s.String()
		}
	}
	if out == "" {
		return "<root>"
	}
	return out
}

// isAncestorSegments reports whether a is a strict prefix of b (spec
// §4.D: "is_ancestor(p,c) is a pure path comparison").
func isAncestorSegments(a, b []PathSegment) bool {
	if len(a) >= len(b) {
		return false
	}
	for i := range a {
		if !a[i].equals(b[i]) {
			return false
		}
	}
	return true
}
