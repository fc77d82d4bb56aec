// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package datanode

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/chunkwire/chunkstore"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/chunkwire/replication"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// Op names a node RPC for fault injection.
type Op string

// The node RPCs.
const (
	OpDial        Op = "dial"
	OpStartChunk  Op = "start_chunk"
	OpPutBlocks   Op = "put_blocks"
	OpSendBlocks  Op = "send_blocks"
	OpFlushBlock  Op = "flush_block"
	OpFinishChunk Op = "finish_chunk"
	OpPingSession Op = "ping_session"
	OpCancelChunk Op = "cancel_chunk"
)

// ErrNodeDown is returned by every RPC to a node stopped with Kill.
var ErrNodeDown = errors.New("datanode: node is down")

// FaultFunc decides whether an RPC to a node fails. It runs before the node
// handles the call and may block until ctx is done.
type FaultFunc func(ctx context.Context, node int, op Op) error

type faultKey struct {
	node int
	op   Op
}

// Cluster is a set of in-process nodes. It implements
// replication.ClientFactory; clients it hands out (including the ones nodes
// use to forward blocks to each other) pass through its fault injection.
type Cluster struct {
	nodes []*Node
	mu    struct {
		sync.Mutex
		faults map[faultKey]error
		down   map[int]bool
		hook   FaultFunc
	}
}

var _ replication.ClientFactory = (*Cluster)(nil)

// NewCluster starts n nodes named "node-<i>" in data center "dc<i%dcs>". Each
// node gets its own in-memory store unless opts.Store is set, in which case
// nodes share it under per-node prefixes.
func NewCluster(n, dcs int, opts Options) *Cluster {
	if dcs <= 0 {
		dcs = 1
	}
	c := &Cluster{}
	c.mu.faults = map[faultKey]error{}
	c.mu.down = map[int]bool{}
	for i := 0; i < n; i++ {
		o := opts
		if opts.Store != nil {
			o.Store = &prefixStore{Store: opts.Store, prefix: fmt.Sprintf("node-%d/", i)}
		} else {
			o.Store = chunkstore.NewMemStore()
		}
		desc := base.NodeDescriptor{
			Address:    fmt.Sprintf("node-%d", i),
			DataCenter: fmt.Sprintf("dc%d", i%dcs),
		}
		c.nodes = append(c.nodes, NewNode(desc, c.Dial, &o))
	}
	return c
}

// Descriptors returns the descriptors of all nodes.
func (c *Cluster) Descriptors() []base.NodeDescriptor {
	res := make([]base.NodeDescriptor, len(c.nodes))
	for i, n := range c.nodes {
		res[i] = n.Descriptor()
	}
	return res
}

// Node returns the i-th node.
func (c *Cluster) Node(i int) *Node {
	return c.nodes[i]
}

// Len returns the number of nodes.
func (c *Cluster) Len() int {
	return len(c.nodes)
}

func (c *Cluster) indexOf(desc base.NodeDescriptor) int {
	for i, n := range c.nodes {
		if n.desc == desc {
			return i
		}
	}
	return -1
}

// InjectFault makes every subsequent op on the node fail with err until
// ClearFaults. A nil err removes the fault.
func (c *Cluster) InjectFault(node int, op Op, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.mu.faults, faultKey{node, op})
		return
	}
	c.mu.faults[faultKey{node, op}] = err
}

// SetFaultFunc installs a hook consulted before every RPC.
func (c *Cluster) SetFaultFunc(fn FaultFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.hook = fn
}

// Kill makes every RPC to the node fail with ErrNodeDown. The node keeps its
// state and store.
func (c *Cluster) Kill(node int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.down[node] = true
}

// ClearFaults removes every injected fault, hook and killed node.
func (c *Cluster) ClearFaults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mu.faults = map[faultKey]error{}
	c.mu.down = map[int]bool{}
	c.mu.hook = nil
}

func (c *Cluster) fault(ctx context.Context, node int, op Op) error {
	c.mu.Lock()
	down := c.mu.down[node]
	err := c.mu.faults[faultKey{node, op}]
	hook := c.mu.hook
	c.mu.Unlock()
	if down {
		return errors.Wrapf(ErrNodeDown, "%s", c.nodes[node].desc)
	}
	if err != nil {
		return err
	}
	if hook != nil {
		return hook(ctx, node, op)
	}
	return nil
}

// Dial implements replication.ClientFactory.
func (c *Cluster) Dial(desc base.NodeDescriptor) (replication.NodeClient, error) {
	i := c.indexOf(desc)
	if i < 0 {
		return nil, errors.Newf("datanode: unknown node %s", desc)
	}
	if err := c.fault(context.Background(), i, OpDial); err != nil {
		return nil, err
	}
	return &clusterClient{c: c, index: i}, nil
}

// Locate returns the indexes of the nodes whose store holds the chunk,
// querying the nodes in parallel.
func (c *Cluster) Locate(ctx context.Context, chunkID base.ChunkID) ([]int, error) {
	found := make([]bool, len(c.nodes))
	g, ctx := errgroup.WithContext(ctx)
	for i, n := range c.nodes {
		g.Go(func() error {
			_, err := n.Store().Get(ctx, chunkstore.ChunkObjectName(chunkID))
			switch {
			case err == nil:
				found[i] = true
			case !chunkstore.IsNotFound(err):
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var res []int
	for i, ok := range found {
		if ok {
			res = append(res, i)
		}
	}
	return res, nil
}

// Close closes every node in parallel, returning the first error.
func (c *Cluster) Close() error {
	var g errgroup.Group
	for _, n := range c.nodes {
		g.Go(n.Close)
	}
	return g.Wait()
}

// clusterClient routes calls to one node through the cluster's faults.
type clusterClient struct {
	c     *Cluster
	index int
}

var _ replication.NodeClient = (*clusterClient)(nil)

func (cl *clusterClient) node(ctx context.Context, op Op) (*Node, error) {
	if err := cl.c.fault(ctx, cl.index, op); err != nil {
		return nil, err
	}
	return cl.c.nodes[cl.index], nil
}

func (cl *clusterClient) StartChunk(ctx context.Context, chunkID base.ChunkID) error {
	n, err := cl.node(ctx, OpStartChunk)
	if err != nil {
		return err
	}
	return n.StartChunk(ctx, chunkID)
}

func (cl *clusterClient) PutBlocks(
	ctx context.Context, chunkID base.ChunkID, firstBlockIndex int, blocks [][]byte,
) error {
	n, err := cl.node(ctx, OpPutBlocks)
	if err != nil {
		return err
	}
	return n.PutBlocks(ctx, chunkID, firstBlockIndex, blocks)
}

func (cl *clusterClient) SendBlocks(
	ctx context.Context, chunkID base.ChunkID, firstBlockIndex, count int, target base.NodeDescriptor,
) error {
	n, err := cl.node(ctx, OpSendBlocks)
	if err != nil {
		return err
	}
	return n.SendBlocks(ctx, chunkID, firstBlockIndex, count, target)
}

func (cl *clusterClient) FlushBlock(ctx context.Context, chunkID base.ChunkID, blockIndex int) error {
	n, err := cl.node(ctx, OpFlushBlock)
	if err != nil {
		return err
	}
	return n.FlushBlock(ctx, chunkID, blockIndex)
}

func (cl *clusterClient) FinishChunk(
	ctx context.Context, chunkID base.ChunkID, meta base.ChunkMeta, blockCount int, sync bool,
) (base.ChunkInfo, error) {
	n, err := cl.node(ctx, OpFinishChunk)
	if err != nil {
		return base.ChunkInfo{}, err
	}
	return n.FinishChunk(ctx, chunkID, meta, blockCount, sync)
}

func (cl *clusterClient) PingSession(ctx context.Context, chunkID base.ChunkID) error {
	n, err := cl.node(ctx, OpPingSession)
	if err != nil {
		return err
	}
	return n.PingSession(ctx, chunkID)
}

func (cl *clusterClient) CancelChunk(ctx context.Context, chunkID base.ChunkID) error {
	n, err := cl.node(ctx, OpCancelChunk)
	if err != nil {
		return err
	}
	return n.CancelChunk(ctx, chunkID)
}

// prefixStore places a node's objects under a prefix of a shared store.
type prefixStore struct {
	chunkstore.Store
	prefix string
}

func (s *prefixStore) Put(ctx context.Context, name string, data []byte) error {
	return s.Store.Put(ctx, s.prefix+name, data)
}

func (s *prefixStore) Get(ctx context.Context, name string) ([]byte, error) {
	return s.Store.Get(ctx, s.prefix+name)
}

func (s *prefixStore) Delete(ctx context.Context, name string) error {
	return s.Store.Delete(ctx, s.prefix+name)
}

func (s *prefixStore) List(ctx context.Context, prefix string) ([]string, error) {
	names, err := s.Store.List(ctx, s.prefix+prefix)
	for i := range names {
		names[i] = names[i][len(s.prefix):]
	}
	return names, err
}
