// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package replication

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/chunkwire/internal/base"
)

// node is a target of the session. Its fields are owned by the actor
// goroutine; client and desc are immutable once the session is open.
type node struct {
	index    int
	desc     base.NodeDescriptor
	client   NodeClient
	alive    bool
	err      error
	stopPing func()
}

// group is a contiguous run of blocks that moves through the window as a
// unit.
type group struct {
	startIndex int
	blocks     [][]byte
	size       int64
	// sentTo holds the indexes of the nodes that received the group.
	sentTo *bitset.BitSet
	// inFlight is set while a PutBlocks or a SendBlocks fanout is outstanding.
	inFlight bool
	// flushing is set once a FlushBlock covering the group has been sent.
	flushing bool
	// evicted is set once the group has left the window.
	evicted bool
}

func newGroup(startIndex, nodeCount int) *group {
	return &group{
		startIndex: startIndex,
		sentTo:     bitset.New(uint(nodeCount)),
	}
}

func (g *group) add(block []byte) {
	g.blocks = append(g.blocks, block)
	g.size += int64(len(block))
}

// endIndex returns the index of the last block of the group.
func (g *group) endIndex() int {
	return g.startIndex + len(g.blocks) - 1
}

// isWritten returns true if every alive node holds the group.
func (g *group) isWritten(nodes []*node) bool {
	for _, n := range nodes {
		if n.alive && !g.sentTo.Test(uint(n.index)) {
			return false
		}
	}
	return true
}

// holder returns an alive node that holds the group, or nil.
func (g *group) holder(nodes []*node) *node {
	for _, n := range nodes {
		if n.alive && g.sentTo.Test(uint(n.index)) {
			return n
		}
	}
	return nil
}

// lacking returns the alive nodes that do not hold the group.
func (g *group) lacking(nodes []*node) []*node {
	var res []*node
	for _, n := range nodes {
		if n.alive && !g.sentTo.Test(uint(n.index)) {
			res = append(res, n)
		}
	}
	return res
}
