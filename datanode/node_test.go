// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package datanode

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/chunkwire/chunkstore"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func blocksOf(strs ...string) [][]byte {
	res := make([][]byte, len(strs))
	for i, s := range strs {
		res[i] = []byte(s)
	}
	return res
}

func newTestNode(t *testing.T, opts Options) *Node {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = base.NoopLogger{}
	}
	return NewNode(base.NodeDescriptor{Address: "n0"}, nil, &opts)
}

func TestNodeSession(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	store := chunkstore.NewMemStore()
	n := newTestNode(t, Options{Store: store})
	id := base.NewChunkID()

	require.True(t, errors.Is(n.PutBlocks(ctx, id, 0, blocksOf("a")), ErrNoSuchSession))
	require.NoError(t, n.StartChunk(ctx, id))
	require.True(t, errors.Is(n.StartChunk(ctx, id), ErrSessionExists))
	require.Equal(t, 1, n.SessionCount())

	// Group 1 arrives before group 0.
	require.NoError(t, n.PutBlocks(ctx, id, 2, blocksOf("c", "d")))
	err := n.FlushBlock(ctx, id, 1)
	require.ErrorContains(t, err, "block 0 is missing")
	require.NoError(t, n.PutBlocks(ctx, id, 0, blocksOf("a", "b")))
	require.NoError(t, n.FlushBlock(ctx, id, 1))
	require.NoError(t, n.FlushBlock(ctx, id, 3))
	require.ErrorContains(t, n.FlushBlock(ctx, id, 4), "block 4 is missing")

	// Identical re-puts are accepted, different contents are not.
	require.NoError(t, n.PutBlocks(ctx, id, 1, blocksOf("b")))
	require.ErrorContains(t, n.PutBlocks(ctx, id, 1, blocksOf("x")), "differs")

	require.NoError(t, n.PingSession(ctx, id))
	_, err = n.FinishChunk(ctx, id, base.ChunkMeta{}, 5, true)
	require.ErrorContains(t, err, "finished with 5 blocks but 4 of 4 were received")

	meta := base.ChunkMeta{RowCount: 7, BlockCount: 4, Codec: "snappy"}
	info, err := n.FinishChunk(ctx, id, meta, 4, true)
	require.NoError(t, err)
	require.Equal(t, 4, info.BlockCount)
	require.Equal(t, int64(4), info.Size)
	require.Equal(t, 0, n.SessionCount())
	require.True(t, errors.Is(n.PingSession(ctx, id), ErrNoSuchSession))

	c, err := n.ReadChunk(ctx, id)
	require.NoError(t, err)
	require.Equal(t, blocksOf("a", "b", "c", "d"), c.Blocks)
	require.Equal(t, int64(7), c.Meta.RowCount)
	require.Equal(t, info, c.Info())
	require.NoError(t, n.Close())
}

func TestNodeFinishWithHole(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, Options{})
	id := base.NewChunkID()
	require.NoError(t, n.StartChunk(ctx, id))
	require.NoError(t, n.PutBlocks(ctx, id, 1, blocksOf("b")))
	_, err := n.FinishChunk(ctx, id, base.ChunkMeta{}, 2, true)
	require.ErrorContains(t, err, "1 of 2 were received")
	require.Equal(t, 1, n.SessionCount())
}

func TestNodeAsyncFinish(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	n := newTestNode(t, Options{})
	ids := make([]base.ChunkID, 5)
	for i := range ids {
		ids[i] = base.NewChunkID()
		require.NoError(t, n.StartChunk(ctx, ids[i]))
		require.NoError(t, n.PutBlocks(ctx, ids[i], 0, blocksOf(fmt.Sprint(i))))
		_, err := n.FinishChunk(ctx, ids[i], base.ChunkMeta{}, 1, false)
		require.NoError(t, err)
	}
	require.NoError(t, n.Close())
	names, err := n.Store().List(ctx, chunkstore.ChunkPrefix)
	require.NoError(t, err)
	require.Len(t, names, 5)
	for _, id := range ids {
		_, err := n.ReadChunk(ctx, id)
		require.NoError(t, err)
	}
}

type failingStore struct {
	chunkstore.Store
}

func (failingStore) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestNodePersistFailure(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	logger := &base.InMemLogger{}
	n := newTestNode(t, Options{Store: failingStore{chunkstore.NewMemStore()}, Logger: logger})

	id := base.NewChunkID()
	require.NoError(t, n.StartChunk(ctx, id))
	_, err := n.FinishChunk(ctx, id, base.ChunkMeta{}, 0, true)
	require.ErrorContains(t, err, "disk full")

	id = base.NewChunkID()
	require.NoError(t, n.StartChunk(ctx, id))
	_, err = n.FinishChunk(ctx, id, base.ChunkMeta{}, 0, false)
	require.NoError(t, err)
	require.ErrorContains(t, n.Close(), "disk full")
	require.Contains(t, logger.String(), "disk full")
}

func TestNodeCancelAndClose(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, Options{MaxSessions: 2})
	a, b := base.NewChunkID(), base.NewChunkID()
	require.NoError(t, n.StartChunk(ctx, a))
	require.NoError(t, n.StartChunk(ctx, b))
	require.True(t, errors.Is(n.StartChunk(ctx, base.NewChunkID()), ErrTooManySessions))

	require.NoError(t, n.CancelChunk(ctx, a))
	require.NoError(t, n.CancelChunk(ctx, a))
	require.Equal(t, 1, n.SessionCount())

	require.NoError(t, n.Close())
	require.Equal(t, 0, n.SessionCount())
	require.True(t, errors.Is(n.StartChunk(ctx, a), ErrNodeClosed))
	require.True(t, errors.Is(n.PingSession(ctx, b), ErrNodeClosed))
}

func TestNodeExpireSessions(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	n := newTestNode(t, Options{SessionTimeout: time.Minute})
	n.opts.now = func() time.Time { return now }

	idle, active := base.NewChunkID(), base.NewChunkID()
	require.NoError(t, n.StartChunk(ctx, idle))
	require.NoError(t, n.StartChunk(ctx, active))
	now = now.Add(45 * time.Second)
	require.NoError(t, n.PingSession(ctx, active))
	require.Empty(t, n.ExpireSessions())

	now = now.Add(30 * time.Second)
	require.Equal(t, []base.ChunkID{idle}, n.ExpireSessions())
	require.Equal(t, 1, n.SessionCount())
	require.True(t, errors.Is(n.PingSession(ctx, idle), ErrNoSuchSession))
}

func TestNodeWriteBandwidth(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t, Options{WriteBandwidth: 1 << 20})
	id := base.NewChunkID()
	require.NoError(t, n.StartChunk(ctx, id))
	// Larger than the burst: waits in burst-sized steps.
	require.NoError(t, n.PutBlocks(ctx, id, 0, [][]byte{make([]byte, 1<<20+100)}))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.Error(t, n.PutBlocks(canceled, id, 1, blocksOf("x")))
}
