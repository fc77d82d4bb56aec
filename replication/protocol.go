// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package replication

import (
	"context"

	"github.com/cockroachdb/chunkwire/internal/base"
)

// NodeClient is the storage node RPC surface used by the writer. A client is
// used concurrently by several goroutines. Every call must return promptly
// once ctx is done.
type NodeClient interface {
	// StartChunk opens an upload session for the chunk.
	StartChunk(ctx context.Context, chunkID base.ChunkID) error
	// PutBlocks stores blocks [firstBlockIndex, firstBlockIndex+len(blocks)).
	PutBlocks(ctx context.Context, chunkID base.ChunkID, firstBlockIndex int, blocks [][]byte) error
	// SendBlocks asks the node to forward blocks [firstBlockIndex,
	// firstBlockIndex+count) to target. An error caused by target must be
	// marked with ErrPipelineFailed.
	SendBlocks(ctx context.Context, chunkID base.ChunkID, firstBlockIndex, count int, target base.NodeDescriptor) error
	// FlushBlock makes every block up to and including blockIndex durable.
	FlushBlock(ctx context.Context, chunkID base.ChunkID, blockIndex int) error
	// FinishChunk seals the chunk. The returned info describes the data the
	// node holds.
	FinishChunk(ctx context.Context, chunkID base.ChunkID, meta base.ChunkMeta, blockCount int, sync bool) (base.ChunkInfo, error)
	// PingSession keeps the session alive.
	PingSession(ctx context.Context, chunkID base.ChunkID) error
	// CancelChunk abandons the session and discards its blocks.
	CancelChunk(ctx context.Context, chunkID base.ChunkID) error
}

// ClientFactory creates clients for target nodes.
type ClientFactory interface {
	Dial(node base.NodeDescriptor) (NodeClient, error)
}
