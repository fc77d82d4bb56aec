// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package datanode

import (
	"context"
	"fmt"
	"testing"

	"github.com/cockroachdb/chunkwire/chunkstore"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/chunkwire/replication"
	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func newTestCluster(n int) *Cluster {
	return NewCluster(n, 2, Options{Logger: base.NoopLogger{}})
}

func replicationOptions() *replication.Options {
	return &replication.Options{
		SendWindowSize: 1 << 10,
		GroupSize:      64,
		Logger:         base.NoopLogger{},
	}
}

func writeChunk(
	t *testing.T, c *Cluster, opts *replication.Options, blocks int,
) (base.Confirmation, error) {
	t.Helper()
	ctx := context.Background()
	w, err := replication.NewWriter(base.NewChunkID(), c.Descriptors(), c, opts)
	require.NoError(t, err)
	defer w.Cancel()
	if err := w.Open(ctx); err != nil {
		return base.Confirmation{}, err
	}
	for i := 0; i < blocks; i++ {
		if err := w.WriteBlock(ctx, []byte(fmt.Sprintf("block-%03d-%s", i, "0123456789abcdef"))); err != nil {
			return base.Confirmation{}, err
		}
	}
	if err := w.Close(ctx, base.ChunkMeta{BlockCount: blocks}); err != nil {
		return base.Confirmation{}, err
	}
	return w.Confirmation()
}

func TestClusterReplicatesChunk(t *testing.T) {
	defer leaktest.AfterTest(t)()
	c := newTestCluster(3)
	require.Equal(t, "node-1@dc1", c.Descriptors()[1].String())

	conf, err := writeChunk(t, c, replicationOptions(), 50)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, conf.Replicas)
	require.Equal(t, 50, conf.Info.BlockCount)

	locs, err := c.Locate(context.Background(), conf.ChunkID)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, locs)
	for i := 0; i < c.Len(); i++ {
		chunk, err := c.Node(i).ReadChunk(context.Background(), conf.ChunkID)
		require.NoError(t, err)
		require.Equal(t, conf.Info, chunk.Info())
		require.Equal(t, 0, c.Node(i).SessionCount())
	}
	require.NoError(t, c.Close())
}

func TestClusterDeadNode(t *testing.T) {
	defer leaktest.AfterTest(t)()
	c := newTestCluster(3)
	c.Kill(2)

	conf, err := writeChunk(t, c, replicationOptions(), 20)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, conf.Replicas)
	require.Equal(t, []base.NodeDescriptor{c.Descriptors()[0], c.Descriptors()[1]}, conf.Nodes)

	locs, err := c.Locate(context.Background(), conf.ChunkID)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, locs)
	require.NoError(t, c.Close())
}

func TestClusterPipelineFailureBlamesTarget(t *testing.T) {
	defer leaktest.AfterTest(t)()
	ctx := context.Background()
	c := newTestCluster(2)
	id := base.NewChunkID()
	for i := 0; i < 2; i++ {
		require.NoError(t, c.Node(i).StartChunk(ctx, id))
	}
	require.NoError(t, c.Node(0).PutBlocks(ctx, id, 0, blocksOf("a", "b")))
	require.NoError(t, c.Node(0).SendBlocks(ctx, id, 0, 2, c.Descriptors()[1]))

	c.InjectFault(1, OpPutBlocks, errors.New("disk on fire"))
	err := c.Node(0).SendBlocks(ctx, id, 0, 2, c.Descriptors()[1])
	require.True(t, errors.Is(err, replication.ErrPipelineFailed))
	require.ErrorContains(t, err, "disk on fire")

	// The source not holding the blocks is the source's fault.
	err = c.Node(0).SendBlocks(ctx, id, 2, 1, c.Descriptors()[1])
	require.Error(t, err)
	require.False(t, errors.Is(err, replication.ErrPipelineFailed))

	c.InjectFault(1, OpPutBlocks, nil)
	require.NoError(t, c.Node(0).SendBlocks(ctx, id, 0, 2, c.Descriptors()[1]))
	require.NoError(t, c.Close())
}

func TestClusterWriterSurvivesPipelineFailure(t *testing.T) {
	defer leaktest.AfterTest(t)()
	c := newTestCluster(3)
	// Node 2 rejects every block it is sent, directly or forwarded.
	c.InjectFault(2, OpPutBlocks, errors.New("rejected"))

	conf, err := writeChunk(t, c, replicationOptions(), 30)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, conf.Replicas)
	require.NoError(t, c.Close())
}

func TestClusterAllNodesFail(t *testing.T) {
	defer leaktest.AfterTest(t)()
	c := newTestCluster(2)
	c.InjectFault(0, OpFlushBlock, errors.New("flush failed"))
	c.InjectFault(1, OpFlushBlock, errors.New("flush failed"))

	_, err := writeChunk(t, c, replicationOptions(), 10)
	require.True(t, errors.Is(err, replication.ErrAllTargetNodesFailed), "%v", err)
	require.ErrorContains(t, err, "flush failed")

	c.ClearFaults()
	_, err = writeChunk(t, c, replicationOptions(), 10)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestClusterSharedStore(t *testing.T) {
	defer leaktest.AfterTest(t)()
	store := chunkstore.NewMemStore()
	c := NewCluster(2, 1, Options{Store: store, Logger: base.NoopLogger{}})
	conf, err := writeChunk(t, c, replicationOptions(), 3)
	require.NoError(t, err)

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{
		"node-0/" + chunkstore.ChunkObjectName(conf.ChunkID),
		"node-1/" + chunkstore.ChunkObjectName(conf.ChunkID),
	}, names)
	names, err = c.Node(1).Store().List(context.Background(), chunkstore.ChunkPrefix)
	require.NoError(t, err)
	require.Equal(t, []string{chunkstore.ChunkObjectName(conf.ChunkID)}, names)
	require.NoError(t, c.Close())
}

func TestClusterFaultFunc(t *testing.T) {
	ctx := context.Background()
	c := newTestCluster(2)
	var seen []string
	c.SetFaultFunc(func(_ context.Context, node int, op Op) error {
		seen = append(seen, fmt.Sprintf("%d:%s", node, op))
		if op == OpPingSession {
			return errors.New("unreachable")
		}
		return nil
	})
	cl, err := c.Dial(c.Descriptors()[1])
	require.NoError(t, err)
	id := base.NewChunkID()
	require.NoError(t, cl.StartChunk(ctx, id))
	require.ErrorContains(t, cl.PingSession(ctx, id), "unreachable")
	require.NoError(t, cl.CancelChunk(ctx, id))
	require.Equal(t, []string{"1:dial", "1:start_chunk", "1:ping_session", "1:cancel_chunk"}, seen)

	_, err = c.Dial(base.NodeDescriptor{Address: "elsewhere"})
	require.ErrorContains(t, err, "unknown node")
	require.NoError(t, c.Close())
}
