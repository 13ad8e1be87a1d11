// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import "sync"

// Interner maps short strings to small integer handles, so the wire
// codec can write a handle into the host interning table instead of
// raw bytes for the ShortString kind (spec §4.F). The host is expected
// to supply its own; MapInterner below is the default used when none
// is configured (spec §4.F: "a handle into the host interning table
// (if available) or raw bytes").
type Interner interface {
	Intern(string) uint32
	Lookup(uint32) (string, bool)
}

// MapInterner is a process-local Interner backed by a map, good enough
// to make the core testable without a host component attached.
type MapInterner struct {
	mu      sync.RWMutex
	byID    []string
	byValue map[string]uint32
}

// NewMapInterner returns a ready-to-use MapInterner.
func NewMapInterner() *MapInterner {
	return &MapInterner{byValue: make(map[string]uint32)}
}

func (m *MapInterner) Intern(s string) uint32 {
	m.mu.RLock()
	if id, ok := m.byValue[s]; ok {
		m.mu.RUnlock()
		return id
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byValue[s]; ok {
		return id
	}
	id := uint32(len(m.byID))
	m.byID = append(m.byID, s)
	m.byValue[s] = id
	return id
}

func (m *MapInterner) Lookup(id uint32) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(id) >= len(m.byID) {
		return "", false
	}
	return m.byID[id], true
}
