// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package replication

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Default option values.
const (
	DefaultSendWindowSize             = 32 << 20
	DefaultGroupSize                  = 10 << 20
	DefaultNodeRPCTimeout             = 120 * time.Second
	DefaultNodePingInterval           = 10 * time.Second
	DefaultMinUploadReplicationFactor = 1
)

// Options configures a Writer.
type Options struct {
	// SendWindowSize bounds the bytes of blocks that have been submitted but
	// not yet flushed by every alive node. WriteBlock blocks while the window
	// is full.
	SendWindowSize int64
	// GroupSize is the size at which the current group of blocks is sealed and
	// sent.
	GroupSize int64
	// NodeRPCTimeout bounds every node RPC. SendBlocks gets twice as long since
	// it spans two nodes.
	NodeRPCTimeout time.Duration
	// NodePingInterval is the period of the keep-alive pings sent to every
	// alive node once the session is open.
	NodePingInterval time.Duration
	// MinUploadReplicationFactor is the number of nodes that must stay alive
	// for the session to proceed. It is capped at the number of target nodes.
	MinUploadReplicationFactor int
	// NoSyncOnClose lets nodes acknowledge FinishChunk before the chunk is
	// durable.
	NoSyncOnClose bool
	// PutBandwidth throttles PutBlocks, in bytes per second. Zero disables
	// throttling.
	PutBandwidth int64

	// Logger for logging. Defaults to base.DefaultLogger.
	Logger base.Logger
	// EventListener receives session events. Unset callbacks log through
	// Logger.
	EventListener *EventListener
	// RPCLatency, when set, records node RPC latencies labeled by the RPC name.
	// The vector must have exactly one label.
	RPCLatency *prometheus.HistogramVec

	// timeSource is replaced in tests to drive pings.
	timeSource timeSource
}

// EnsureDefaults fills in unset options with their defaults and returns o.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.SendWindowSize <= 0 {
		o.SendWindowSize = DefaultSendWindowSize
	}
	if o.GroupSize <= 0 {
		o.GroupSize = DefaultGroupSize
	}
	if o.NodeRPCTimeout <= 0 {
		o.NodeRPCTimeout = DefaultNodeRPCTimeout
	}
	if o.NodePingInterval <= 0 {
		o.NodePingInterval = DefaultNodePingInterval
	}
	if o.MinUploadReplicationFactor <= 0 {
		o.MinUploadReplicationFactor = DefaultMinUploadReplicationFactor
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	if o.EventListener == nil {
		o.EventListener = &EventListener{}
	}
	o.EventListener.EnsureDefaults(o.Logger)
	if o.timeSource == nil {
		o.timeSource = defaultTime{}
	}
	return o
}

// Validate checks the options for consistency, reporting every problem.
func (o *Options) Validate() error {
	var buf strings.Builder
	if o.SendWindowSize < 0 {
		fmt.Fprintf(&buf, "SendWindowSize (%d) must not be negative\n", o.SendWindowSize)
	}
	if o.GroupSize < 0 {
		fmt.Fprintf(&buf, "GroupSize (%d) must not be negative\n", o.GroupSize)
	}
	if o.SendWindowSize > 0 && o.GroupSize > o.SendWindowSize {
		fmt.Fprintf(&buf, "GroupSize (%d) must not exceed SendWindowSize (%d)\n",
			o.GroupSize, o.SendWindowSize)
	}
	if o.NodeRPCTimeout < 0 {
		fmt.Fprintf(&buf, "NodeRPCTimeout (%s) must not be negative\n", o.NodeRPCTimeout)
	}
	if o.NodePingInterval < 0 {
		fmt.Fprintf(&buf, "NodePingInterval (%s) must not be negative\n", o.NodePingInterval)
	}
	if o.MinUploadReplicationFactor < 0 {
		fmt.Fprintf(&buf, "MinUploadReplicationFactor (%d) must not be negative\n",
			o.MinUploadReplicationFactor)
	}
	if o.PutBandwidth < 0 {
		fmt.Fprintf(&buf, "PutBandwidth (%d) must not be negative\n", o.PutBandwidth)
	}
	if buf.Len() == 0 {
		return nil
	}
	return errors.New(buf.String())
}

// String renders the options as the [Replication] section of an INI
// document.
func (o *Options) String() string {
	var buf strings.Builder
	buf.WriteString("[Replication]\n")
	fmt.Fprintf(&buf, "  send_window_size=%d\n", o.SendWindowSize)
	fmt.Fprintf(&buf, "  group_size=%d\n", o.GroupSize)
	fmt.Fprintf(&buf, "  node_rpc_timeout=%s\n", o.NodeRPCTimeout)
	fmt.Fprintf(&buf, "  node_ping_interval=%s\n", o.NodePingInterval)
	fmt.Fprintf(&buf, "  min_upload_replication_factor=%d\n", o.MinUploadReplicationFactor)
	fmt.Fprintf(&buf, "  no_sync_on_close=%t\n", o.NoSyncOnClose)
	fmt.Fprintf(&buf, "  put_bandwidth=%d\n", o.PutBandwidth)
	return buf.String()
}

// effectiveMinAlive returns the number of nodes that must stay alive for a
// session with the given number of targets.
func (o *Options) effectiveMinAlive(targets int) int {
	return max(1, min(o.MinUploadReplicationFactor, targets))
}
