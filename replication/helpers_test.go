// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package replication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
)

// call describes one RPC received by a fake node.
type call struct {
	node   int
	op     rpcOp
	first  int
	count  int
	target int
}

func (c call) String() string {
	switch c.op {
	case rpcPutBlocks:
		return fmt.Sprintf("n%d %s %d+%d", c.node, c.op, c.first, c.count)
	case rpcSendBlocks:
		return fmt.Sprintf("n%d %s %d+%d -> n%d", c.node, c.op, c.first, c.count, c.target)
	case rpcFlushBlock, rpcFinishChunk:
		return fmt.Sprintf("n%d %s %d", c.node, c.op, c.first)
	default:
		return fmt.Sprintf("n%d %s", c.node, c.op)
	}
}

// fakeCluster is an in-memory set of nodes implementing ClientFactory. hook,
// when set, runs before every RPC and may fail it or block.
type fakeCluster struct {
	descs   []base.NodeDescriptor
	hook    func(ctx context.Context, c call) error
	dialErr map[int]error
	mu      struct {
		sync.Mutex
		log    []call
		blocks []map[int][]byte
		// badChecksum makes FinishChunk report a different checksum.
		badChecksum map[int]bool
	}
}

func newFakeCluster(n int) *fakeCluster {
	c := &fakeCluster{dialErr: map[int]error{}}
	c.mu.badChecksum = map[int]bool{}
	for i := 0; i < n; i++ {
		c.descs = append(c.descs, base.NodeDescriptor{Address: fmt.Sprintf("n%d", i), DataCenter: "dc1"})
		c.mu.blocks = append(c.mu.blocks, map[int][]byte{})
	}
	return c
}

func (c *fakeCluster) indexOf(d base.NodeDescriptor) int {
	for i := range c.descs {
		if c.descs[i] == d {
			return i
		}
	}
	return -1
}

func (c *fakeCluster) Dial(d base.NodeDescriptor) (NodeClient, error) {
	i := c.indexOf(d)
	if i < 0 {
		return nil, errors.Newf("unknown node %s", d)
	}
	if err := c.dialErr[i]; err != nil {
		return nil, err
	}
	return &fakeClient{c: c, index: i}, nil
}

func (c *fakeCluster) invoke(ctx context.Context, cl call) error {
	c.mu.Lock()
	c.mu.log = append(c.mu.log, cl)
	c.mu.Unlock()
	if c.hook != nil {
		return c.hook(ctx, cl)
	}
	return nil
}

// calls returns the RPCs received so far, omitting pings and, unless
// withStarts, StartChunk calls whose order is not deterministic.
func (c *fakeCluster) calls(withStarts bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res []string
	for _, cl := range c.mu.log {
		if cl.op == rpcPingSession || (cl.op == rpcStartChunk && !withStarts) {
			continue
		}
		res = append(res, cl.String())
	}
	return res
}

func (c *fakeCluster) count(op rpcOp) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cl := range c.mu.log {
		if cl.op == op {
			n++
		}
	}
	return n
}

func (c *fakeCluster) blockCount(node int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mu.blocks[node])
}

type fakeClient struct {
	c     *fakeCluster
	index int
}

var _ NodeClient = (*fakeClient)(nil)

func (f *fakeClient) StartChunk(ctx context.Context, _ base.ChunkID) error {
	return f.c.invoke(ctx, call{node: f.index, op: rpcStartChunk})
}

func (f *fakeClient) PutBlocks(ctx context.Context, _ base.ChunkID, first int, blocks [][]byte) error {
	if err := f.c.invoke(ctx, call{node: f.index, op: rpcPutBlocks, first: first, count: len(blocks)}); err != nil {
		return err
	}
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	for i, b := range blocks {
		f.c.mu.blocks[f.index][first+i] = b
	}
	return nil
}

func (f *fakeClient) SendBlocks(
	ctx context.Context, _ base.ChunkID, first, count int, target base.NodeDescriptor,
) error {
	t := f.c.indexOf(target)
	if err := f.c.invoke(ctx, call{node: f.index, op: rpcSendBlocks, first: first, count: count, target: t}); err != nil {
		return err
	}
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	for i := first; i < first+count; i++ {
		b, ok := f.c.mu.blocks[f.index][i]
		if !ok {
			return errors.Newf("n%d does not hold block %d", f.index, i)
		}
		f.c.mu.blocks[t][i] = b
	}
	return nil
}

func (f *fakeClient) FlushBlock(ctx context.Context, _ base.ChunkID, blockIndex int) error {
	return f.c.invoke(ctx, call{node: f.index, op: rpcFlushBlock, first: blockIndex})
}

func (f *fakeClient) FinishChunk(
	ctx context.Context, _ base.ChunkID, _ base.ChunkMeta, blockCount int, _ bool,
) (base.ChunkInfo, error) {
	if err := f.c.invoke(ctx, call{node: f.index, op: rpcFinishChunk, first: blockCount}); err != nil {
		return base.ChunkInfo{}, err
	}
	f.c.mu.Lock()
	defer f.c.mu.Unlock()
	h := xxhash.New()
	info := base.ChunkInfo{BlockCount: blockCount}
	for i := 0; i < blockCount; i++ {
		b, ok := f.c.mu.blocks[f.index][i]
		if !ok {
			return base.ChunkInfo{}, errors.Newf("n%d is missing block %d", f.index, i)
		}
		info.Size += int64(len(b))
		_, _ = h.Write(b)
	}
	info.Checksum = h.Sum64()
	if f.c.mu.badChecksum[f.index] {
		info.Checksum++
	}
	return info, nil
}

func (f *fakeClient) PingSession(ctx context.Context, _ base.ChunkID) error {
	return f.c.invoke(ctx, call{node: f.index, op: rpcPingSession})
}

func (f *fakeClient) CancelChunk(ctx context.Context, _ base.ChunkID) error {
	return f.c.invoke(ctx, call{node: f.index, op: rpcCancelChunk})
}

// manualTime is a timeSource whose tickers fire only on tick.
type manualTime struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

type manualTicker struct {
	c chan time.Time
}

func (t *manualTicker) stop()                {}
func (t *manualTicker) ch() <-chan time.Time { return t.c }

func (m *manualTime) now() time.Time {
	return time.Unix(0, 0)
}

func (m *manualTime) newTicker(time.Duration) ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{c: make(chan time.Time, 1)}
	m.tickers = append(m.tickers, t)
	return t
}

func (m *manualTime) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickers {
		select {
		case t.c <- time.Unix(0, 0):
		default:
		}
	}
}

// testOptions returns options with small groups, no logging and a manual
// clock.
func testOptions(ts *manualTime) *Options {
	return &Options{
		SendWindowSize: 1 << 20,
		GroupSize:      1,
		Logger:         base.NoopLogger{},
		timeSource:     ts,
	}
}

// blockUntil returns a hook body that waits for release or ctx.
func blockUntil(ctx context.Context, release <-chan struct{}) error {
	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
