// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package nbt

import "go.uber.org/zap"

// defaultDepthLimit is the path-depth soft cap (spec §3: "a depth
// limit (>= 64) is enforced to bound recursion").
const defaultDepthLimit = 64

// HostComponent is the single out-of-scope collaborator the container
// talks to: the host game-engine component that owns one Container and
// schedules replication ticks (spec §6). RequestTickNextFrame must be
// idempotent within a frame.
type HostComponent interface {
	RequestTickNextFrame()
}

// options holds Container construction parameters, set via
// functional options (grounded on the retrieval pack's service repos,
// e.g. edirooss-zmux-server, rather than the teacher's zero-value
// Table[V]{}; a bare NewContainer() with no options still matches the
// teacher's "zero value is ready to use" philosophy for the common
// case).
type options struct {
	logger     *zap.Logger
	interner   Interner
	depthLimit int
	host       HostComponent
}

// defaultInterner is the Interner of every Container built without
// WithInterner. It is shared process-wide, so a payload encoded by one
// such Container decodes in any other Container of the same process.
var defaultInterner = NewMapInterner()

func defaultOptions() options {
	return options{
		logger:     zap.NewNop(),
		interner:   defaultInterner,
		depthLimit: defaultDepthLimit,
	}
}

// Option configures a Container at construction time.
type Option func(*options)

// WithLogger injects a structured logger. Container logs at Warn when a
// copy (CopyFrom or an accessor copy) would exceed the allocator cap,
// and at Error if a fresh container cannot allocate its root. Other
// allocation failures, depth-cap rejections and stream decode errors
// are returned to the caller and not logged; nothing is logged on the
// ordinary read/write hot path.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithInterner overrides the default MapInterner, e.g. with a host's
// existing short-string table.
func WithInterner(i Interner) Option {
	return func(o *options) { o.interner = i }
}

// WithDepthLimit overrides defaultDepthLimit; it may only be raised,
// never set below spec's floor of 64.
func WithDepthLimit(n int) Option {
	return func(o *options) {
		if n >= defaultDepthLimit {
			o.depthLimit = n
		}
	}
}

// WithHostComponent attaches the collaborator notified via
// RequestTickNextFrame whenever the container becomes dirty.
func WithHostComponent(h HostComponent) Option {
	return func(o *options) { o.host = h }
}
