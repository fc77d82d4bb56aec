// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package chunkwire

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/chunkwire/replication"
	"github.com/cockroachdb/errors"
)

// ChunkWriter uploads the blocks of a single chunk.
type ChunkWriter interface {
	ChunkID() base.ChunkID
	Open(ctx context.Context) error
	WriteBlock(ctx context.Context, block []byte) error
	// Close seals the chunk, attaching meta to it.
	Close(ctx context.Context, meta base.ChunkMeta) error
	// Confirmation returns the placement of a closed chunk.
	Confirmation() (base.Confirmation, error)
	// Cancel abandons the chunk and waits for the writer's goroutines. After a
	// successful Close it only waits.
	Cancel()
}

var _ ChunkWriter = (*replication.Writer)(nil)

// ChunkWriterFactory creates a writer for every new chunk.
type ChunkWriterFactory interface {
	NewChunkWriter(ctx context.Context) (ChunkWriter, error)
}

// ReplicationFactory creates replication writers over a fixed set of nodes.
// When ReplicationFactor is below the number of nodes, consecutive chunks are
// placed on rotating windows of that many nodes.
type ReplicationFactory struct {
	Nodes             []base.NodeDescriptor
	ReplicationFactor int
	Clients           replication.ClientFactory
	Options           *replication.Options

	mu struct {
		sync.Mutex
		next int
	}
}

var _ ChunkWriterFactory = (*ReplicationFactory)(nil)

// NewReplicationFactory returns a factory writing every chunk to all nodes
// with the replication options of opts.
func NewReplicationFactory(
	nodes []base.NodeDescriptor, clients replication.ClientFactory, opts *Options,
) *ReplicationFactory {
	return &ReplicationFactory{
		Nodes:   slices.Clone(nodes),
		Clients: clients,
		Options: &opts.EnsureDefaults().Replication,
	}
}

// targets returns the nodes of the next chunk.
func (f *ReplicationFactory) targets() []base.NodeDescriptor {
	n := f.ReplicationFactor
	if n <= 0 || n >= len(f.Nodes) {
		return slices.Clone(f.Nodes)
	}
	f.mu.Lock()
	start := f.mu.next
	f.mu.next = (f.mu.next + 1) % len(f.Nodes)
	f.mu.Unlock()

	res := make([]base.NodeDescriptor, n)
	for i := range res {
		res[i] = f.Nodes[(start+i)%len(f.Nodes)]
	}
	return res
}

// NewChunkWriter implements ChunkWriterFactory.
func (f *ReplicationFactory) NewChunkWriter(ctx context.Context) (ChunkWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.Nodes) == 0 {
		return nil, errors.New("chunkwire: no storage nodes")
	}
	return replication.NewWriter(base.NewChunkID(), f.targets(), f.Clients, f.Options)
}
