// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package replication

import "github.com/cockroachdb/errors"

var (
	// ErrAllTargetNodesFailed is returned once fewer target nodes remain alive
	// than the minimum upload replication factor. The per-node errors are
	// attached.
	ErrAllTargetNodesFailed = errors.New("replication: not enough target nodes alive")
	// ErrWriterCanceled is returned by every pending and future operation of a
	// canceled writer.
	ErrWriterCanceled = errors.New("replication: writer canceled")
	// ErrChunkInfoMismatch is returned when target nodes disagree about the
	// size or checksum of the finished chunk.
	ErrChunkInfoMismatch = errors.New("replication: chunk info mismatch between replicas")
	// ErrPipelineFailed marks a SendBlocks error caused by the destination
	// node rather than the source.
	ErrPipelineFailed = errors.New("replication: pipeline failed")
	// ErrBlockTooLarge is returned for a block that does not fit in the send
	// window.
	ErrBlockTooLarge = errors.New("replication: block exceeds the send window")
	// ErrWriterClosed is returned when writing after Close.
	ErrWriterClosed = errors.New("replication: writer closed")
	// ErrWriterNotOpen is returned when writing or closing before Open
	// succeeds.
	ErrWriterNotOpen = errors.New("replication: writer not open")
)

// MarkPipelineFailed marks err as caused by the destination of a SendBlocks
// call.
func MarkPipelineFailed(err error) error {
	return errors.Mark(err, ErrPipelineFailed)
}
