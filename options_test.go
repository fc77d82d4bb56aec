// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package chunkwire

import (
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/chunkwire/row"
	"github.com/stretchr/testify/require"
)

func testSchema() row.Schema {
	return row.Schema{Columns: []row.ColumnSchema{
		{Name: "k", Type: row.TypeInt64, SortOrder: row.Ascending},
		{Name: "v", Type: row.TypeString},
	}}
}

func TestOptionsString(t *testing.T) {
	const expected = `[Options]
  block_size=262144
  checksum=crc32c
  compression=snappy
  desired_chunk_size=1073741824
  key_column_count=0
  max_meta_size=31457280

[Replication]
  send_window_size=33554432
  group_size=10485760
  node_rpc_timeout=2m0s
  node_ping_interval=10s
  min_upload_replication_factor=1
  no_sync_on_close=false
  put_bandwidth=0
`
	var opts *Options
	opts = opts.EnsureDefaults()
	require.Equal(t, expected, opts.String())
	require.NoError(t, opts.Validate())
}

func TestOptionsParse(t *testing.T) {
	opts := &Options{
		BlockSize:        4096,
		DesiredChunkSize: 1 << 20,
		MaxMetaSize:      1 << 10,
		Schema:           testSchema(),
	}
	opts.SetCompression(NoCompression)
	opts.SetChecksumType(ChecksumTypeXXHash64)
	opts.Replication.NodeRPCTimeout = 3 * time.Second
	opts.Replication.NoSyncOnClose = true
	opts.Replication.PutBandwidth = 1 << 20
	opts.EnsureDefaults()
	require.Equal(t, 1, opts.KeyColumnCount)
	require.NoError(t, opts.Validate())

	s := opts.String()
	require.Contains(t, s, "column=k,int64,ascending")

	var parsed Options
	require.NoError(t, parsed.Parse(s))
	parsed.EnsureDefaults()
	require.Equal(t, s, parsed.String())
	require.Equal(t, NoCompression, parsed.Compression)
	require.Equal(t, opts.Schema, parsed.Schema)
	require.Equal(t, 3*time.Second, parsed.Replication.NodeRPCTimeout)
}

func TestOptionsParseErrors(t *testing.T) {
	for _, tc := range []struct {
		input string
		err   string
	}{
		{"[Options]\n  block_size", "invalid key=value syntax"},
		{"[Options]\n  block_size=big", "invalid value for Options.block_size"},
		{"[Options]\n  bogus=1", "unknown option: Options.bogus"},
		{"[Replication]\n  node_rpc_timeout=soon", "invalid value for Replication.node_rpc_timeout"},
		{"[Options]\n  compression=gzip", "unknown compression algorithm"},
		{"[Options]\n  checksum=md5", "unknown checksum type"},
		{"[Schema]\n  column=k", "is not name,type[,sort_order]"},
		{"[Schema]\n  column=k,int9", "unknown value type"},
		{"[Schema]\n  column=k,int64,descending", "unknown sort order"},
	} {
		t.Run(tc.input, func(t *testing.T) {
			var opts Options
			require.ErrorContains(t, opts.Parse(tc.input), tc.err)
		})
	}

	// Comments and blank lines are skipped.
	var opts Options
	require.NoError(t, opts.Parse("# comment\n; another\n\n[Options]\n  block_size=10\n"))
	require.Equal(t, 10, opts.BlockSize)
}

func TestOptionsValidate(t *testing.T) {
	opts := &Options{
		BlockSize:        64 << 20,
		DesiredChunkSize: 1 << 20,
		KeyColumnCount:   2,
		Schema:           testSchema(),
	}
	opts.Replication.SendWindowSize = 32 << 20
	opts.EnsureDefaults()
	err := opts.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"BlockSize (67108864) must be below Replication.SendWindowSize",
		"DesiredChunkSize (1048576) must be >= BlockSize",
		"KeyColumnCount (2) must match the 1 key columns of Schema",
	} {
		require.True(t, strings.Contains(msg, want), "missing %q in:\n%s", want, msg)
	}

	opts = &Options{Compression: Compression(42)}
	opts.EnsureDefaults()
	require.ErrorContains(t, opts.Validate(), "Compression (unknown(42)) is unknown")
}
