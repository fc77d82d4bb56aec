// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package replication

import (
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/redact"
)

// NodeFailedInfo describes a target node that was marked dead.
type NodeFailedInfo struct {
	ChunkID base.ChunkID
	Index   int
	Node    base.NodeDescriptor
	// Alive is the number of nodes still alive.
	Alive int
	Err   error
}

func (i NodeFailedInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i NodeFailedInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("[chunk %s] node %d (%s) failed, %d alive: %v",
		i.ChunkID, redact.Safe(i.Index), i.Node, redact.Safe(i.Alive), i.Err)
}

// SessionFailedInfo describes a failed session.
type SessionFailedInfo struct {
	ChunkID base.ChunkID
	Err     error
}

func (i SessionFailedInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i SessionFailedInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("[chunk %s] session failed: %v", i.ChunkID, i.Err)
}

// ChunkClosedInfo describes a successfully closed session.
type ChunkClosedInfo struct {
	ChunkID  base.ChunkID
	Replicas []int
	Info     base.ChunkInfo
}

func (i ChunkClosedInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i ChunkClosedInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("[chunk %s] closed on replicas %v: %s", i.ChunkID, redact.Safe(i.Replicas), i.Info)
}

// EventListener contains callbacks invoked from the writer's actor goroutine.
// Callbacks must not block.
type EventListener struct {
	NodeFailed    func(NodeFailedInfo)
	SessionFailed func(SessionFailedInfo)
	ChunkClosed   func(ChunkClosedInfo)
}

// EnsureDefaults sets every unset callback to one that logs to logger.
func (l *EventListener) EnsureDefaults(logger base.Logger) {
	if logger == nil {
		logger = base.DefaultLogger
	}
	if l.NodeFailed == nil {
		l.NodeFailed = func(info NodeFailedInfo) { logger.Errorf("%s", info) }
	}
	if l.SessionFailed == nil {
		l.SessionFailed = func(info SessionFailedInfo) { logger.Errorf("%s", info) }
	}
	if l.ChunkClosed == nil {
		l.ChunkClosed = func(info ChunkClosedInfo) { logger.Infof("%s", info) }
	}
}

// MakeLoggingEventListener returns an EventListener that logs every event.
func MakeLoggingEventListener(logger base.Logger) EventListener {
	var l EventListener
	l.EnsureDefaults(logger)
	return l
}

// TeeEventListener returns an EventListener that invokes both a and b.
func TeeEventListener(a, b EventListener) EventListener {
	a.EnsureDefaults(nil)
	b.EnsureDefaults(nil)
	return EventListener{
		NodeFailed: func(info NodeFailedInfo) {
			a.NodeFailed(info)
			b.NodeFailed(info)
		},
		SessionFailed: func(info SessionFailedInfo) {
			a.SessionFailed(info)
			b.SessionFailed(info)
		},
		ChunkClosed: func(info ChunkClosedInfo) {
			a.ChunkClosed(info)
			b.ChunkClosed(info)
		},
	}
}
