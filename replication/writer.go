// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package replication implements the chunk replication writer: it streams an
// ordered sequence of opaque blocks to a set of storage nodes through a
// byte-bounded sliding window and reports which nodes ended up holding the
// finished chunk.
//
// Blocks are batched into groups. A sealed group is put to one alive node and
// then forwarded node to node until every alive node holds it, after which a
// flush covering it is sent to every alive node. A group leaves the window,
// returning its bytes to the window budget, once every alive node has
// acknowledged that flush. A node whose RPC fails is marked dead and excluded
// for the rest of the session; the session fails only once fewer nodes than
// Options.MinUploadReplicationFactor remain alive.
//
// All session state is owned by a single actor goroutine. Public methods and
// RPC completions communicate with it through a mailbox, so none of the
// session state is guarded by locks.
package replication

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/chunkwire/internal/invariants"
	"github.com/cockroachdb/chunkwire/internal/rate"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"golang.org/x/sync/semaphore"
)

// State is the lifecycle state of a Writer.
type State int32

const (
	StateCreated State = iota
	StateOpening
	StateReady
	StateWriting
	StateFlushing
	StateClosing
	StateClosed
	StateFailed
)

var stateNames = [...]string{
	StateCreated:  "created",
	StateOpening:  "opening",
	StateReady:    "ready",
	StateWriting:  "writing",
	StateFlushing: "flushing",
	StateClosing:  "closing",
	StateClosed:   "closed",
	StateFailed:   "failed",
}

func (s State) String() string {
	return redact.StringWithoutMarkers(s)
}

// SafeFormat implements redact.SafeFormatter.
func (s State) SafeFormat(w redact.SafePrinter, _ rune) {
	if s >= 0 && int(s) < len(stateNames) {
		w.SafeString(redact.SafeString(stateNames[s]))
		return
	}
	w.Printf("state(%d)", redact.Safe(int32(s)))
}

// Terminal returns true for Closed and Failed.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Writer replicates the blocks of one chunk to a set of target nodes.
//
// A Writer must be terminated with Close or Cancel. WriteBlock and
// TryWriteBlock must be called from a single goroutine and never concurrently
// with Close; the block order is the order of the calls. Blocks are retained
// until flushed and must not be modified by the caller.
type Writer struct {
	chunkID  base.ChunkID
	targets  []base.NodeDescriptor
	factory  ClientFactory
	opts     *Options
	minAlive int

	stopper   *stopper
	mailbox   mailbox
	windowSem *semaphore.Weighted
	// putLimiter throttles PutBlocks; nil when unthrottled.
	putLimiter *rate.Limiter

	state   atomic.Int32
	closing atomic.Bool
	// opened is closed once every StartChunk completed and the session is
	// ready.
	opened chan struct{}
	// done is closed once the session is Closed or Failed. The fields of s
	// that describe the outcome may be read after done is closed.
	done  chan struct{}
	stats stats

	// s is owned by the actor goroutine.
	s session
}

type session struct {
	nodes       []*node
	aliveCount  int
	ready       bool
	openPending int

	window         []*group
	current        *group
	nextBlockIndex int
	windowBytes    int64
	putCursor      int

	closeRequested bool
	finishing      bool
	meta           base.ChunkMeta

	err      error
	info     base.ChunkInfo
	replicas []int
}

// NewWriter returns a writer for the chunk and starts its actor goroutine.
// Open must be called before writing.
func NewWriter(
	chunkID base.ChunkID, targets []base.NodeDescriptor, factory ClientFactory, opts *Options,
) (*Writer, error) {
	if len(targets) == 0 {
		return nil, errors.New("replication: no target nodes")
	}
	opts = opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	w := &Writer{
		chunkID:   chunkID,
		targets:   slices.Clone(targets),
		factory:   factory,
		opts:      opts,
		minAlive:  opts.effectiveMinAlive(len(targets)),
		stopper:   newStopper(),
		windowSem: semaphore.NewWeighted(opts.SendWindowSize),
		opened:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if opts.PutBandwidth > 0 {
		w.putLimiter = rate.NewLimiter(opts.PutBandwidth)
	}
	w.mailbox.init()
	w.stopper.runAsync(w.run)
	return w, nil
}

// ChunkID returns the id of the chunk being written.
func (w *Writer) ChunkID() base.ChunkID {
	return w.chunkID
}

// State returns the current state.
func (w *Writer) State() State {
	return State(w.state.Load())
}

// Stats returns a snapshot of the writer's counters.
func (w *Writer) Stats() Stats {
	s := w.stats.snapshot()
	if w.putLimiter != nil {
		s.PutThrottle = w.putLimiter.Waited()
	}
	return s
}

// Err returns the error that failed the session, or nil if the session has
// not failed (yet).
func (w *Writer) Err() error {
	select {
	case <-w.done:
		return w.s.err
	default:
		return nil
	}
}

// Open starts an upload session on every target node and waits until every
// StartChunk call completed. It fails if fewer nodes than the minimum upload
// replication factor started the session.
func (w *Writer) Open(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateCreated), int32(StateOpening)) {
		if s := w.State(); !s.Terminal() {
			return errors.Newf("replication: Open called in state %s", s)
		}
		return w.terminalErr()
	}
	if !w.mailbox.post(w.open) {
		return w.terminalErr()
	}
	select {
	case <-w.opened:
		return nil
	case <-w.done:
		return w.terminalErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) checkWritable(size int64) error {
	if size > w.opts.SendWindowSize {
		return errors.Wrapf(ErrBlockTooLarge, "block of %d bytes, window of %d bytes",
			errors.Safe(size), errors.Safe(w.opts.SendWindowSize))
	}
	switch s := w.State(); {
	case s == StateCreated || s == StateOpening:
		return ErrWriterNotOpen
	case s.Terminal():
		return w.terminalErr()
	}
	if w.closing.Load() {
		return ErrWriterClosed
	}
	return nil
}

// WriteBlock submits a block, waiting while the send window is full. Errors
// of the replication itself are reported by later calls and by Close.
func (w *Writer) WriteBlock(ctx context.Context, block []byte) error {
	size := int64(len(block))
	if err := w.checkWritable(size); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.stopper.ctx, cancel)
	defer stop()
	if w.windowSem.TryAcquire(size) {
		return w.submit(block, size)
	}
	w.sealPending()
	if err := w.windowSem.Acquire(ctx, size); err != nil {
		if w.stopper.ctx.Err() != nil {
			return w.terminalErr()
		}
		return err
	}
	return w.submit(block, size)
}

// TryWriteBlock submits a block if the send window has room for it. It
// returns false, without error, when the window is full.
func (w *Writer) TryWriteBlock(block []byte) (bool, error) {
	size := int64(len(block))
	if err := w.checkWritable(size); err != nil {
		return false, err
	}
	if !w.windowSem.TryAcquire(size) {
		w.sealPending()
		return false, nil
	}
	return true, w.submit(block, size)
}

// sealPending asks the actor to seal the current group. The bytes of an
// unsealed group return to the window only after it is flushed, so a writer
// waiting for room must not leave them behind.
func (w *Writer) sealPending() {
	w.mailbox.post(func() {
		if w.terminal() || w.s.current == nil {
			return
		}
		w.sealCurrent()
		w.pump()
	})
}

func (w *Writer) submit(block []byte, size int64) error {
	if !w.mailbox.post(func() { w.addBlock(block, size) }) {
		w.windowSem.Release(size)
		return w.terminalErr()
	}
	return nil
}

// Close flushes the pending blocks, waits until every group has been flushed
// by every alive node and finishes the chunk on them. The chunk meta is
// handed to every node. On success, Confirmation describes the placement.
func (w *Writer) Close(ctx context.Context, meta base.ChunkMeta) error {
	if s := w.State(); s == StateCreated || s == StateOpening {
		return ErrWriterNotOpen
	}
	if w.closing.CompareAndSwap(false, true) {
		w.mailbox.post(func() { w.requestClose(meta) })
	}
	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.stopper.wait()
	return w.s.err
}

// Cancel fails the session with ErrWriterCanceled, asks the alive nodes to
// discard the chunk and waits for every goroutine of the writer to exit.
// Canceling a terminated writer is a no-op.
func (w *Writer) Cancel() {
	w.mailbox.post(func() { w.fail(ErrWriterCanceled) })
	<-w.done
	w.stopper.wait()
}

// Confirmation returns the placement of a successfully closed chunk.
func (w *Writer) Confirmation() (base.Confirmation, error) {
	select {
	case <-w.done:
	default:
		return base.Confirmation{}, errors.Newf("replication: writer is %s", w.State())
	}
	if w.s.err != nil {
		return base.Confirmation{}, w.s.err
	}
	c := base.Confirmation{
		ChunkID:  w.chunkID,
		Replicas: slices.Clone(w.s.replicas),
		Info:     w.s.info,
		Meta:     w.s.meta,
	}
	for _, i := range w.s.replicas {
		c.Nodes = append(c.Nodes, w.targets[i])
	}
	return c, nil
}

// terminalErr waits for the session to terminate and returns the error that
// rejects further operations.
func (w *Writer) terminalErr() error {
	<-w.done
	if w.s.err != nil {
		return w.s.err
	}
	return ErrWriterClosed
}

func (w *Writer) run() {
	for range w.mailbox.notify {
		for _, fn := range w.mailbox.take() {
			fn()
			if w.terminal() {
				return
			}
		}
	}
}

func (w *Writer) terminal() bool {
	return w.State().Terminal()
}

func (w *Writer) setState(s State) {
	w.state.Store(int32(s))
}

func (w *Writer) open() {
	if w.terminal() {
		return
	}
	w.s.nodes = make([]*node, len(w.targets))
	for i, desc := range w.targets {
		w.s.nodes[i] = &node{index: i, desc: desc, alive: true}
	}
	w.s.aliveCount = len(w.s.nodes)
	for _, n := range w.s.nodes {
		c, err := w.factory.Dial(n.desc)
		if err != nil {
			w.markDead(n, errors.Wrapf(err, "dialing %s", n.desc))
			if w.terminal() {
				return
			}
			continue
		}
		n.client = c
	}
	for _, n := range w.aliveNodes() {
		w.s.openPending++
		w.rpc(rpcStartChunk, 0, func(ctx context.Context) error {
			return n.client.StartChunk(ctx, w.chunkID)
		}, func(err error) {
			w.s.openPending--
			if err != nil {
				w.markDead(n, errors.Wrapf(err, "starting chunk on %s", n.desc))
			}
			if !w.terminal() && w.s.openPending == 0 {
				w.onOpened()
			}
		})
	}
}

func (w *Writer) onOpened() {
	w.s.ready = true
	w.setState(StateReady)
	for _, n := range w.aliveNodes() {
		w.startPing(n)
	}
	w.opts.Logger.Infof("[chunk %s] session opened on %d of %d nodes",
		w.chunkID, w.s.aliveCount, len(w.s.nodes))
	close(w.opened)
	w.pump()
}

func (w *Writer) addBlock(block []byte, size int64) {
	if w.terminal() {
		return
	}
	if w.s.closeRequested {
		w.windowSem.Release(size)
		w.fail(errors.AssertionFailedf("block %d submitted after Close", errors.Safe(w.s.nextBlockIndex)))
		return
	}
	if w.s.current == nil {
		w.s.current = newGroup(w.s.nextBlockIndex, len(w.s.nodes))
	}
	w.s.current.add(block)
	w.s.nextBlockIndex++
	w.s.windowBytes += size
	w.stats.blocks.Add(1)
	w.stats.bytes.Add(size)
	if w.s.current.size >= w.opts.GroupSize {
		w.sealCurrent()
	}
	w.pump()
}

func (w *Writer) sealCurrent() {
	w.s.window = append(w.s.window, w.s.current)
	w.s.current = nil
	w.stats.groupsSealed.Add(1)
}

func (w *Writer) requestClose(meta base.ChunkMeta) {
	if w.terminal() {
		return
	}
	w.s.closeRequested = true
	w.s.meta = meta
	if w.s.current != nil {
		w.sealCurrent()
	}
	w.pump()
}

// pump drives every group as far as it can currently go. It is invoked after
// every state change.
func (w *Writer) pump() {
	if w.terminal() || !w.s.ready {
		return
	}
	w.shiftWindow()
	for _, g := range w.s.window {
		w.processGroup(g)
	}
	w.maybeFinish()
	if !w.terminal() {
		w.updateState()
	}
}

func (w *Writer) updateState() {
	flushing := false
	for _, g := range w.s.window {
		flushing = flushing || g.flushing
	}
	switch {
	case w.s.closeRequested:
		w.setState(StateClosing)
	case flushing:
		w.setState(StateFlushing)
	case len(w.s.window) > 0 || w.s.current != nil:
		w.setState(StateWriting)
	default:
		w.setState(StateReady)
	}
}

func (w *Writer) processGroup(g *group) {
	if g.inFlight || g.flushing || g.evicted || g.isWritten(w.s.nodes) {
		return
	}
	if src := g.holder(w.s.nodes); src != nil {
		w.sendGroup(g, src)
		return
	}
	if dst := w.nextPutTarget(); dst != nil {
		w.putGroup(g, dst)
	}
}

// nextPutTarget picks the alive node that receives the next group, rotating
// through the nodes.
func (w *Writer) nextPutTarget() *node {
	for i := range w.s.nodes {
		n := w.s.nodes[(w.s.putCursor+i)%len(w.s.nodes)]
		if n.alive {
			w.s.putCursor = (n.index + 1) % len(w.s.nodes)
			return n
		}
	}
	return nil
}

func (w *Writer) putGroup(g *group, n *node) {
	g.inFlight = true
	start, blocks := g.startIndex, g.blocks
	w.rpc(rpcPutBlocks, g.size, func(ctx context.Context) error {
		return n.client.PutBlocks(ctx, w.chunkID, start, blocks)
	}, func(err error) {
		g.inFlight = false
		if err != nil {
			w.markDead(n, errors.Wrapf(err, "putting blocks %d-%d to %s",
				errors.Safe(start), errors.Safe(g.endIndex()), n.desc))
		} else {
			g.sentTo.Set(uint(n.index))
			w.stats.puts.Add(1)
		}
		w.pump()
	})
}

func (w *Writer) sendGroup(g *group, src *node) {
	targets := g.lacking(w.s.nodes)
	g.inFlight = true
	pending := len(targets)
	start, count := g.startIndex, len(g.blocks)
	for _, dst := range targets {
		w.rpc(rpcSendBlocks, 0, func(ctx context.Context) error {
			return src.client.SendBlocks(ctx, w.chunkID, start, count, dst.desc)
		}, func(err error) {
			pending--
			if pending == 0 {
				g.inFlight = false
			}
			if err != nil {
				err = errors.Wrapf(err, "sending blocks %d-%d from %s to %s",
					errors.Safe(start), errors.Safe(g.endIndex()), src.desc, dst.desc)
				if errors.Is(err, ErrPipelineFailed) {
					w.markDead(dst, err)
				} else {
					w.markDead(src, err)
				}
			} else {
				g.sentTo.Set(uint(dst.index))
				w.stats.sends.Add(1)
			}
			if pending == 0 {
				w.pump()
			}
		})
	}
}

// shiftWindow sends a flush covering every written group that is not
// flushing yet, up to the first group that is not written.
func (w *Writer) shiftWindow() {
	last := -1
	for _, g := range w.s.window {
		if g.flushing {
			continue
		}
		if !g.isWritten(w.s.nodes) {
			break
		}
		g.flushing = true
		last = g.endIndex()
	}
	if last < 0 {
		return
	}
	alive := w.aliveNodes()
	pending := len(alive)
	for _, n := range alive {
		w.rpc(rpcFlushBlock, 0, func(ctx context.Context) error {
			return n.client.FlushBlock(ctx, w.chunkID, last)
		}, func(err error) {
			pending--
			if err != nil {
				w.markDead(n, errors.Wrapf(err, "flushing block %d on %s", errors.Safe(last), n.desc))
			} else {
				w.stats.flushes.Add(1)
			}
			if pending == 0 && !w.terminal() {
				w.onWindowShifted(last)
			}
		})
	}
}

// onWindowShifted evicts every group ending at or before lastFlushed.
func (w *Writer) onWindowShifted(lastFlushed int) {
	if len(w.s.window) == 0 {
		// A flush covering a later block completed first.
		return
	}
	for len(w.s.window) > 0 {
		g := w.s.window[0]
		if g.endIndex() > lastFlushed {
			break
		}
		w.s.window[0] = nil
		w.s.window = w.s.window[1:]
		g.evicted = true
		w.s.windowBytes = invariants.SafeSub(w.s.windowBytes, g.size)
		w.windowSem.Release(g.size)
		w.stats.groupsFlushed.Add(1)
	}
	w.pump()
}

type finishResult struct {
	node *node
	info base.ChunkInfo
}

func (w *Writer) maybeFinish() {
	if !w.s.closeRequested || w.s.finishing || w.s.current != nil || len(w.s.window) > 0 {
		return
	}
	w.s.finishing = true
	meta, blockCount, sync := w.s.meta, w.s.nextBlockIndex, !w.opts.NoSyncOnClose
	alive := w.aliveNodes()
	pending := len(alive)
	var results []finishResult
	for _, n := range alive {
		var info base.ChunkInfo
		w.rpc(rpcFinishChunk, 0, func(ctx context.Context) (err error) {
			info, err = n.client.FinishChunk(ctx, w.chunkID, meta, blockCount, sync)
			return err
		}, func(err error) {
			pending--
			if err != nil {
				w.markDead(n, errors.Wrapf(err, "finishing chunk on %s", n.desc))
			} else {
				results = append(results, finishResult{node: n, info: info})
			}
			if pending == 0 && !w.terminal() {
				w.onFinished(results)
			}
		})
	}
}

func (w *Writer) onFinished(results []finishResult) {
	slices.SortFunc(results, func(a, b finishResult) int { return a.node.index - b.node.index })
	var replicas []int
	for _, r := range results {
		if r.info != results[0].info {
			w.fail(errors.Mark(errors.Newf(
				"replication: chunk %s: node %s reported %s, node %s reported %s",
				w.chunkID, results[0].node.desc, results[0].info, r.node.desc, r.info), ErrChunkInfoMismatch))
			return
		}
		if r.node.alive {
			replicas = append(replicas, r.node.index)
		}
	}
	if len(replicas) < w.minAlive {
		w.fail(w.notEnoughNodesError())
		return
	}
	w.s.info = results[0].info
	w.s.replicas = replicas
	w.setState(StateClosed)
	w.opts.EventListener.ChunkClosed(ChunkClosedInfo{
		ChunkID:  w.chunkID,
		Replicas: slices.Clone(replicas),
		Info:     w.s.info,
	})
	w.finish()
}

func (w *Writer) aliveNodes() []*node {
	res := make([]*node, 0, w.s.aliveCount)
	for _, n := range w.s.nodes {
		if n.alive {
			res = append(res, n)
		}
	}
	return res
}

// markDead excludes a node from the rest of the session, failing the session
// when too few nodes remain.
func (w *Writer) markDead(n *node, err error) {
	if !n.alive || w.terminal() {
		return
	}
	n.alive = false
	n.err = err
	w.s.aliveCount--
	if n.stopPing != nil {
		n.stopPing()
	}
	w.stats.failedNodes.Add(1)
	w.opts.EventListener.NodeFailed(NodeFailedInfo{
		ChunkID: w.chunkID,
		Index:   n.index,
		Node:    n.desc,
		Alive:   w.s.aliveCount,
		Err:     err,
	})
	if w.s.aliveCount < w.minAlive {
		w.fail(w.notEnoughNodesError())
		return
	}
	w.pump()
}

func (w *Writer) notEnoughNodesError() error {
	var err error
	for _, n := range w.s.nodes {
		if !n.alive {
			err = errors.CombineErrors(err, errors.Wrapf(n.err, "node %d", errors.Safe(n.index)))
		}
	}
	if err == nil {
		err = errors.New("no replica finished the chunk")
	}
	err = errors.Wrapf(err, "chunk %s: %d of %d target nodes alive, need %d", w.chunkID,
		errors.Safe(w.s.aliveCount), errors.Safe(len(w.s.nodes)), errors.Safe(w.minAlive))
	return errors.Mark(err, ErrAllTargetNodesFailed)
}

// fail terminates the session with err.
func (w *Writer) fail(err error) {
	if w.terminal() {
		return
	}
	w.s.err = err
	w.setState(StateFailed)
	w.opts.EventListener.SessionFailed(SessionFailedInfo{ChunkID: w.chunkID, Err: err})
	for _, n := range w.s.nodes {
		if n.alive && n.client != nil {
			w.cancelChunk(n)
		}
	}
	w.finish()
}

// finish releases the session's goroutines once it reached a terminal state.
func (w *Writer) finish() {
	w.mailbox.close()
	w.stopper.quiesce()
	close(w.done)
}

// rpc runs call on a goroutine bound to the session and posts its outcome
// to done on the actor. When throttle is positive, the call first waits for
// that many bytes of PutBandwidth.
func (w *Writer) rpc(op rpcOp, throttle int64, call func(context.Context) error, done func(error)) {
	w.stopper.runAsync(func() {
		if throttle > 0 && w.putLimiter != nil {
			if err := w.putLimiter.WaitN(w.stopper.ctx, throttle); err != nil {
				return
			}
		}
		timeout := w.opts.NodeRPCTimeout
		if op == rpcSendBlocks {
			timeout *= 2
		}
		ctx, cancel := context.WithTimeout(w.stopper.ctx, timeout)
		start := w.opts.timeSource.now()
		err := call(ctx)
		cancel()
		w.observe(op, w.opts.timeSource.now().Sub(start))
		w.mailbox.post(func() { done(err) })
	})
}

// cancelChunk asks a node to discard the chunk. It outlives the session
// context and is bounded by the RPC timeout.
func (w *Writer) cancelChunk(n *node) {
	client := n.client
	w.stopper.runAsync(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.opts.NodeRPCTimeout)
		defer cancel()
		start := w.opts.timeSource.now()
		err := client.CancelChunk(ctx, w.chunkID)
		w.observe(rpcCancelChunk, w.opts.timeSource.now().Sub(start))
		if err != nil {
			w.opts.Logger.Infof("[chunk %s] canceling on %s: %v", w.chunkID, n.desc, err)
		}
	})
}

func (w *Writer) startPing(n *node) {
	ctx, cancel := context.WithCancel(w.stopper.ctx)
	n.stopPing = cancel
	client, desc := n.client, n.desc
	w.stopper.runAsync(func() {
		t := w.opts.timeSource.newTicker(w.opts.NodePingInterval)
		defer t.stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.ch():
			}
			rctx, rcancel := context.WithTimeout(ctx, w.opts.NodeRPCTimeout)
			start := w.opts.timeSource.now()
			err := client.PingSession(rctx, w.chunkID)
			rcancel()
			w.observe(rpcPingSession, w.opts.timeSource.now().Sub(start))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				err = errors.Wrapf(err, "pinging %s", desc)
				w.mailbox.post(func() { w.markDead(n, err) })
				return
			}
			w.stats.pings.Add(1)
		}
	})
}
