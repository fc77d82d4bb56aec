// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package replication

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/redact"
)

// Stats is a snapshot of a writer's counters.
type Stats struct {
	// BlocksWritten and BytesWritten count the blocks accepted by the writer.
	BlocksWritten int64
	BytesWritten  int64
	// GroupsSealed counts groups queued into the window; GroupsFlushed counts
	// groups evicted from it.
	GroupsSealed  int64
	GroupsFlushed int64
	// Puts, Sends and Flushes count successful RPCs. A SendBlocks fanout to k
	// nodes counts k sends.
	Puts    int64
	Sends   int64
	Flushes int64
	Pings   int64
	// FailedNodes counts the nodes marked dead.
	FailedNodes int64
	// PutThrottle is the time PutBlocks calls spent waiting for PutBandwidth.
	PutThrottle time.Duration
}

func (s Stats) String() string {
	return redact.StringWithoutMarkers(s)
}

// SafeFormat implements redact.SafeFormatter.
func (s Stats) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("blocks: %s (%s)  groups: %d sealed, %d flushed\n",
		crhumanize.Count(s.BlocksWritten, crhumanize.Compact),
		crhumanize.Bytes(s.BytesWritten, crhumanize.Compact, crhumanize.OmitI),
		redact.Safe(s.GroupsSealed), redact.Safe(s.GroupsFlushed))
	w.Printf("rpcs: %d put, %d send, %d flush, %d ping  failed nodes: %d",
		redact.Safe(s.Puts), redact.Safe(s.Sends), redact.Safe(s.Flushes),
		redact.Safe(s.Pings), redact.Safe(s.FailedNodes))
	if s.PutThrottle > 0 {
		w.Printf("  put throttle: %s", redact.Safe(s.PutThrottle))
	}
}

type stats struct {
	blocks        atomic.Int64
	bytes         atomic.Int64
	groupsSealed  atomic.Int64
	groupsFlushed atomic.Int64
	puts          atomic.Int64
	sends         atomic.Int64
	flushes       atomic.Int64
	pings         atomic.Int64
	failedNodes   atomic.Int64
}

func (s *stats) snapshot() Stats {
	return Stats{
		BlocksWritten: s.blocks.Load(),
		BytesWritten:  s.bytes.Load(),
		GroupsSealed:  s.groupsSealed.Load(),
		GroupsFlushed: s.groupsFlushed.Load(),
		Puts:          s.puts.Load(),
		Sends:         s.sends.Load(),
		Flushes:       s.flushes.Load(),
		Pings:         s.pings.Load(),
		FailedNodes:   s.failedNodes.Load(),
	}
}

type rpcOp string

const (
	rpcStartChunk  rpcOp = "start_chunk"
	rpcPutBlocks   rpcOp = "put_blocks"
	rpcSendBlocks  rpcOp = "send_blocks"
	rpcFlushBlock  rpcOp = "flush_block"
	rpcFinishChunk rpcOp = "finish_chunk"
	rpcPingSession rpcOp = "ping_session"
	rpcCancelChunk rpcOp = "cancel_chunk"
)

func (w *Writer) observe(op rpcOp, d time.Duration) {
	if w.opts.RPCLatency != nil {
		w.opts.RPCLatency.WithLabelValues(string(op)).Observe(d.Seconds())
	}
}
