// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package datanode implements an in-process storage node speaking the chunk
// upload protocol of the replication package, and a cluster of such nodes
// that serves as the writer's client factory.
package datanode

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/chunkwire/chunkstore"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/chunkwire/replication"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
	"golang.org/x/time/rate"
)

var (
	// ErrNoSuchSession is returned for operations on a chunk without an open
	// upload session.
	ErrNoSuchSession = errors.New("datanode: no such session")
	// ErrSessionExists is returned when starting a chunk twice.
	ErrSessionExists = errors.New("datanode: session already exists")
	// ErrTooManySessions is returned when MaxSessions sessions are open.
	ErrTooManySessions = errors.New("datanode: too many sessions")
	// ErrNodeClosed is returned once the node is closed.
	ErrNodeClosed = errors.New("datanode: node closed")
)

// PeerDialer resolves the node a SendBlocks call forwards blocks to.
type PeerDialer func(base.NodeDescriptor) (replication.NodeClient, error)

// session is the state of one chunk upload. Blocks may arrive out of order
// (groups are put to different nodes and forwarded later), so blocks holds nil
// for indexes not received yet.
type session struct {
	id         base.ChunkID
	blocks     [][]byte
	received   int
	flushed    int
	lastActive time.Time
}

// missing returns the first index below n that has not been received, or -1.
func (s *session) missing(n int) int {
	if n > len(s.blocks) {
		n = len(s.blocks) + 1
	}
	for i := s.flushed; i < n; i++ {
		if i >= len(s.blocks) || s.blocks[i] == nil {
			return i
		}
	}
	return -1
}

// Node is a storage node. It keeps the blocks of unfinished chunks in memory
// and persists each chunk into its store when the chunk is finished.
type Node struct {
	desc    base.NodeDescriptor
	opts    *Options
	dial    PeerDialer
	limiter *rate.Limiter

	mu struct {
		sync.Mutex
		closed   bool
		sessions swiss.Map[base.ChunkID, *session]
	}

	// persist tracks asynchronous (sync=false) chunk writes.
	persist struct {
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	}
}

var _ replication.NodeClient = (*Node)(nil)

// NewNode returns a node. dial is used to reach the destination of SendBlocks
// calls and may be nil if the node never forwards blocks.
func NewNode(desc base.NodeDescriptor, dial PeerDialer, opts *Options) *Node {
	opts = opts.EnsureDefaults()
	n := &Node{desc: desc, opts: opts, dial: dial}
	if opts.WriteBandwidth > 0 {
		n.limiter = rate.NewLimiter(rate.Limit(opts.WriteBandwidth), int(opts.WriteBandwidth))
	}
	n.mu.sessions.Init(8)
	return n
}

// Descriptor returns the node's descriptor.
func (n *Node) Descriptor() base.NodeDescriptor {
	return n.desc
}

// Store returns the store holding the node's finished chunks.
func (n *Node) Store() chunkstore.Store {
	return n.opts.Store
}

// SessionCount returns the number of open upload sessions.
func (n *Node) SessionCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mu.sessions.Len()
}

// withSession runs fn on the chunk's session with n.mu held.
func (n *Node) withSession(chunkID base.ChunkID, fn func(s *session) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.mu.closed {
		return ErrNodeClosed
	}
	s, ok := n.mu.sessions.Get(chunkID)
	if !ok {
		return errors.Wrapf(ErrNoSuchSession, "%s: chunk %s", n.desc, chunkID)
	}
	s.lastActive = n.opts.now()
	return fn(s)
}

// StartChunk implements replication.NodeClient.
func (n *Node) StartChunk(ctx context.Context, chunkID base.ChunkID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.mu.closed {
		return ErrNodeClosed
	}
	if _, ok := n.mu.sessions.Get(chunkID); ok {
		return errors.Wrapf(ErrSessionExists, "%s: chunk %s", n.desc, chunkID)
	}
	if limit := n.opts.MaxSessions; limit > 0 && n.mu.sessions.Len() >= limit {
		return errors.Wrapf(ErrTooManySessions, "%s: %d sessions open", n.desc, errors.Safe(limit))
	}
	n.mu.sessions.Put(chunkID, &session{id: chunkID, lastActive: n.opts.now()})
	return nil
}

// PutBlocks implements replication.NodeClient. Re-putting a block that is
// already held is accepted if the contents are identical.
func (n *Node) PutBlocks(
	ctx context.Context, chunkID base.ChunkID, firstBlockIndex int, blocks [][]byte,
) error {
	if firstBlockIndex < 0 {
		return errors.AssertionFailedf("negative block index %d", errors.Safe(firstBlockIndex))
	}
	size := 0
	for _, b := range blocks {
		size += len(b)
	}
	if err := n.throttle(ctx, size); err != nil {
		return err
	}
	return n.withSession(chunkID, func(s *session) error {
		end := firstBlockIndex + len(blocks)
		for len(s.blocks) < end {
			s.blocks = append(s.blocks, nil)
		}
		for i, b := range blocks {
			idx := firstBlockIndex + i
			if prev := s.blocks[idx]; prev != nil {
				if !bytes.Equal(prev, b) {
					return errors.Newf("%s: chunk %s block %d differs from the copy already held",
						n.desc, chunkID, errors.Safe(idx))
				}
				continue
			}
			// A zero-length block must still count as received.
			s.blocks[idx] = append(make([]byte, 0, len(b)), b...)
			s.received++
		}
		return nil
	})
}

// SendBlocks implements replication.NodeClient. Failures to reach or write to
// target are marked with replication.ErrPipelineFailed.
func (n *Node) SendBlocks(
	ctx context.Context, chunkID base.ChunkID, firstBlockIndex, count int, target base.NodeDescriptor,
) error {
	var blocks [][]byte
	if err := n.withSession(chunkID, func(s *session) error {
		for i := firstBlockIndex; i < firstBlockIndex+count; i++ {
			if i >= len(s.blocks) || s.blocks[i] == nil {
				return errors.Newf("%s: chunk %s does not hold block %d", n.desc, chunkID, errors.Safe(i))
			}
		}
		blocks = s.blocks[firstBlockIndex : firstBlockIndex+count]
		return nil
	}); err != nil {
		return err
	}
	if n.dial == nil {
		return replication.MarkPipelineFailed(errors.Newf("%s: no route to %s", n.desc, target))
	}
	peer, err := n.dial(target)
	if err != nil {
		return replication.MarkPipelineFailed(errors.Wrapf(err, "%s: dialing %s", n.desc, target))
	}
	if err := peer.PutBlocks(ctx, chunkID, firstBlockIndex, blocks); err != nil {
		return replication.MarkPipelineFailed(errors.Wrapf(err, "%s: forwarding to %s", n.desc, target))
	}
	return nil
}

// FlushBlock implements replication.NodeClient. Every block up to and
// including blockIndex must have been received.
func (n *Node) FlushBlock(ctx context.Context, chunkID base.ChunkID, blockIndex int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.withSession(chunkID, func(s *session) error {
		if i := s.missing(blockIndex + 1); i >= 0 {
			return errors.Newf("%s: cannot flush chunk %s through block %d: block %d is missing",
				n.desc, chunkID, errors.Safe(blockIndex), errors.Safe(i))
		}
		if blockIndex+1 > s.flushed {
			s.flushed = blockIndex + 1
		}
		return nil
	})
}

// FinishChunk implements replication.NodeClient. The chunk object is written
// to the store before returning when sync is set, and in the background
// otherwise; Close waits for background writes.
func (n *Node) FinishChunk(
	ctx context.Context, chunkID base.ChunkID, meta base.ChunkMeta, blockCount int, sync bool,
) (base.ChunkInfo, error) {
	var blocks [][]byte
	if err := n.withSession(chunkID, func(s *session) error {
		if len(s.blocks) != blockCount || s.received != blockCount {
			return errors.Newf("%s: chunk %s finished with %d blocks but %d of %d were received",
				n.desc, chunkID, errors.Safe(blockCount), errors.Safe(s.received), errors.Safe(len(s.blocks)))
		}
		blocks = s.blocks
		n.mu.sessions.Delete(chunkID)
		return nil
	}); err != nil {
		return base.ChunkInfo{}, err
	}

	info := blocksInfo(blocks)
	obj := EncodeChunk(blocks, meta)
	name := chunkstore.ChunkObjectName(chunkID)
	if sync {
		if err := n.opts.Store.Put(ctx, name, obj); err != nil {
			return base.ChunkInfo{}, errors.Wrapf(err, "%s: persisting chunk %s", n.desc, chunkID)
		}
	} else {
		n.persist.wg.Add(1)
		go func() {
			defer n.persist.wg.Done()
			if err := n.opts.Store.Put(context.Background(), name, obj); err != nil {
				n.opts.Logger.Errorf("[%s] persisting chunk %s: %v", n.desc, chunkID, err)
				n.persist.mu.Lock()
				n.persist.errs = errors.CombineErrors(n.persist.errs, err)
				n.persist.mu.Unlock()
			}
		}()
	}
	n.opts.Logger.Infof("[%s] chunk %s finished: %s", n.desc, chunkID, info)
	return info, nil
}

// PingSession implements replication.NodeClient.
func (n *Node) PingSession(ctx context.Context, chunkID base.ChunkID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.withSession(chunkID, func(*session) error { return nil })
}

// CancelChunk implements replication.NodeClient. Canceling an unknown chunk
// is not an error.
func (n *Node) CancelChunk(ctx context.Context, chunkID base.ChunkID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.mu.sessions.Get(chunkID); ok {
		n.mu.sessions.Delete(chunkID)
		n.opts.Logger.Infof("[%s] chunk %s canceled", n.desc, chunkID)
	}
	return nil
}

// ExpireSessions discards sessions idle for longer than SessionTimeout and
// returns their chunk IDs.
func (n *Node) ExpireSessions() []base.ChunkID {
	if n.opts.SessionTimeout <= 0 {
		return nil
	}
	deadline := n.opts.now().Add(-n.opts.SessionTimeout)
	n.mu.Lock()
	defer n.mu.Unlock()
	var expired []base.ChunkID
	n.mu.sessions.All(func(id base.ChunkID, s *session) bool {
		if s.lastActive.Before(deadline) {
			expired = append(expired, id)
		}
		return true
	})
	for _, id := range expired {
		n.mu.sessions.Delete(id)
		n.opts.Logger.Infof("[%s] chunk %s session expired", n.desc, id)
	}
	return expired
}

// ReadChunk returns a finished chunk from the node's store.
func (n *Node) ReadChunk(ctx context.Context, chunkID base.ChunkID) (Chunk, error) {
	data, err := n.opts.Store.Get(ctx, chunkstore.ChunkObjectName(chunkID))
	if err != nil {
		return Chunk{}, err
	}
	return DecodeChunk(data)
}

// Close discards open sessions and waits for background chunk writes,
// returning their errors.
func (n *Node) Close() error {
	n.mu.Lock()
	n.mu.closed = true
	var open []base.ChunkID
	n.mu.sessions.All(func(id base.ChunkID, _ *session) bool {
		open = append(open, id)
		return true
	})
	for _, id := range open {
		n.mu.sessions.Delete(id)
	}
	n.mu.Unlock()
	n.persist.wg.Wait()
	n.persist.mu.Lock()
	defer n.persist.mu.Unlock()
	return n.persist.errs
}

// throttle waits until the write bandwidth allows size more bytes.
func (n *Node) throttle(ctx context.Context, size int) error {
	if n.limiter == nil {
		return ctx.Err()
	}
	for size > 0 {
		step := min(size, n.limiter.Burst())
		if err := n.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		size -= step
	}
	return nil
}
