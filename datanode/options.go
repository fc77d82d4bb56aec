// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package datanode

import (
	"time"

	"github.com/cockroachdb/chunkwire/chunkstore"
	"github.com/cockroachdb/chunkwire/internal/base"
)

// Options configures a storage node.
type Options struct {
	// Store receives finished chunks. Defaults to a new in-memory store.
	Store chunkstore.Store

	// WriteBandwidth limits the rate, in bytes per second, at which the node
	// accepts block data from PutBlocks and SendBlocks. Zero means unlimited.
	WriteBandwidth int64

	// MaxSessions bounds the number of concurrently open upload sessions.
	// Zero means unlimited.
	MaxSessions int

	// SessionTimeout is how long a session may stay idle before
	// ExpireSessions discards it. Zero disables expiration.
	SessionTimeout time.Duration

	Logger base.Logger

	// now is overridden in tests.
	now func() time.Time
}

// EnsureDefaults fills in unset options with defaults. It returns the
// receiver, or a new Options if the receiver is nil.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.Store == nil {
		o.Store = chunkstore.NewMemStore()
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}
