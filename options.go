// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package chunkwire

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/chunkwire/internal/compression"
	"github.com/cockroachdb/chunkwire/replication"
	"github.com/cockroachdb/chunkwire/row"
	"github.com/cockroachdb/chunkwire/wire"
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
)

// Compression is the per-block compression algorithm.
type Compression = compression.Algorithm

// Exported Compression constants.
const (
	NoCompression     = compression.NoCompression
	SnappyCompression = compression.Snappy
	ZstdCompression   = compression.Zstd
	MinLZCompression  = compression.MinLZ
	LZ4Compression    = compression.LZ4
)

// ChecksumType is the checksum stored in every block trailer.
type ChecksumType = wire.ChecksumType

// Exported ChecksumType constants.
const (
	ChecksumTypeNone     = wire.ChecksumTypeNone
	ChecksumTypeCRC32c   = wire.ChecksumTypeCRC32c
	ChecksumTypeXXHash64 = wire.ChecksumTypeXXHash64
)

// Default option values.
const (
	DefaultBlockSize        = 256 << 10
	DefaultDesiredChunkSize = 1 << 30
	DefaultMaxMetaSize      = 30 << 20
)

// Options configures a TableWriter.
type Options struct {
	// BlockSize is the target uncompressed size of a rowset block.
	BlockSize int

	// DesiredChunkSize is the compressed size at which the current chunk is
	// closed and a new one started.
	DesiredChunkSize int64

	// MaxMetaSize bounds the size of a chunk's block index. The index grows
	// with every block, so a table with large keys switches chunks before
	// reaching DesiredChunkSize.
	MaxMetaSize int64

	// Compression is applied to every block. Defaults to snappy.
	Compression Compression
	// compressionSet records an explicit NoCompression.
	compressionSet bool

	// ChecksumType is stored in every block trailer. Defaults to crc32c.
	ChecksumType ChecksumType
	checksumSet  bool

	// KeyColumnCount is the number of leading key columns of every row. It
	// defaults to the number of sorted columns of Schema. Rows must arrive in
	// non-decreasing key order.
	KeyColumnCount int

	// Schema, when it has columns, is used to validate every row.
	Schema row.Schema

	// Replication configures the chunk replication writers.
	Replication replication.Options

	Logger base.Logger
}

// SetCompression sets the compression, including an explicit NoCompression.
func (o *Options) SetCompression(c Compression) {
	o.Compression, o.compressionSet = c, true
}

// SetChecksumType sets the checksum type, including an explicit
// ChecksumTypeNone.
func (o *Options) SetChecksumType(t ChecksumType) {
	o.ChecksumType, o.checksumSet = t, true
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.DesiredChunkSize <= 0 {
		o.DesiredChunkSize = DefaultDesiredChunkSize
	}
	if o.MaxMetaSize <= 0 {
		o.MaxMetaSize = DefaultMaxMetaSize
	}
	if o.Compression == NoCompression && !o.compressionSet {
		o.Compression = SnappyCompression
	}
	if o.ChecksumType == ChecksumTypeNone && !o.checksumSet {
		o.ChecksumType = ChecksumTypeCRC32c
	}
	if o.KeyColumnCount == 0 && len(o.Schema.Columns) > 0 {
		o.KeyColumnCount = o.Schema.KeyColumnCount()
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	if o.Replication.Logger == nil {
		o.Replication.Logger = o.Logger
	}
	o.Replication.EnsureDefaults()
	return o
}

// Validate verifies that the options are mutually consistent, reporting every
// problem.
func (o *Options) Validate() error {
	// EnsureDefaults has been called, so there is no need to check for zero
	// values.
	var buf strings.Builder
	if o.BlockSize > row.MaxRowWeightLimit {
		fmt.Fprintf(&buf, "BlockSize (%s) must not exceed %s\n",
			crhumanize.Bytes(int64(o.BlockSize), crhumanize.Compact, crhumanize.OmitI),
			crhumanize.Bytes(int64(row.MaxRowWeightLimit), crhumanize.Compact, crhumanize.OmitI))
	}
	if int64(o.BlockSize) >= o.Replication.SendWindowSize {
		fmt.Fprintf(&buf, "BlockSize (%d) must be below Replication.SendWindowSize (%d)\n",
			o.BlockSize, o.Replication.SendWindowSize)
	}
	if o.DesiredChunkSize < int64(o.BlockSize) {
		fmt.Fprintf(&buf, "DesiredChunkSize (%d) must be >= BlockSize (%d)\n",
			o.DesiredChunkSize, o.BlockSize)
	}
	if !o.Compression.IsValid() {
		fmt.Fprintf(&buf, "Compression (%s) is unknown\n", o.Compression)
	}
	if _, err := wire.ParseChecksumType(o.ChecksumType.String()); err != nil {
		fmt.Fprintf(&buf, "ChecksumType (%s) is unknown\n", o.ChecksumType)
	}
	// Zero key columns describes an unsorted table.
	if o.KeyColumnCount != 0 {
		if err := row.ValidateKeyColumnCount(o.KeyColumnCount); err != nil {
			fmt.Fprintf(&buf, "KeyColumnCount: %v\n", err)
		}
	}
	if len(o.Schema.Columns) > 0 {
		if err := o.Schema.Validate(); err != nil {
			fmt.Fprintf(&buf, "Schema: %v\n", err)
		} else if k := o.Schema.KeyColumnCount(); o.KeyColumnCount != k {
			fmt.Fprintf(&buf, "KeyColumnCount (%d) must match the %d key columns of Schema\n",
				o.KeyColumnCount, k)
		}
	}
	if err := o.Replication.Validate(); err != nil {
		buf.WriteString(err.Error())
	}
	if buf.Len() == 0 {
		return nil
	}
	return errors.New(buf.String())
}

// String returns a string representation of the options in INI format,
// readable by Parse.
func (o *Options) String() string {
	var buf strings.Builder
	buf.WriteString("[Options]\n")
	fmt.Fprintf(&buf, "  block_size=%d\n", o.BlockSize)
	fmt.Fprintf(&buf, "  checksum=%s\n", o.ChecksumType)
	fmt.Fprintf(&buf, "  compression=%s\n", o.Compression)
	fmt.Fprintf(&buf, "  desired_chunk_size=%d\n", o.DesiredChunkSize)
	fmt.Fprintf(&buf, "  key_column_count=%d\n", o.KeyColumnCount)
	fmt.Fprintf(&buf, "  max_meta_size=%d\n", o.MaxMetaSize)

	if len(o.Schema.Columns) > 0 {
		buf.WriteString("\n[Schema]\n")
		for _, c := range o.Schema.Columns {
			fmt.Fprintf(&buf, "  column=%s,%s,%s\n", c.Name, c.Type, c.SortOrder)
		}
	}

	buf.WriteString("\n")
	buf.WriteString(o.Replication.String())
	return buf.String()
}

// visitOptions splits an INI document into sections and key=value pairs,
// calling visit for each pair. Blank lines and lines starting with ';' or '#'
// are skipped.
func visitOptions(s string, visit func(section, key, value string) error) error {
	var section string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if len(line) == 0 || line[0] == ';' || line[0] == '#' {
			continue
		}
		n := len(line)
		if line[0] == '[' && line[n-1] == ']' {
			section = line[1 : n-1]
			continue
		}
		pos := strings.Index(line, "=")
		if pos < 0 {
			const maxLen = 50
			if len(line) > maxLen {
				line = line[:maxLen-3] + "..."
			}
			return base.CorruptionErrorf("invalid key=value syntax: %q", errors.Safe(line))
		}
		key := strings.TrimSpace(line[:pos])
		value := strings.TrimSpace(line[pos+1:])
		if err := visit(section, key, value); err != nil {
			return err
		}
	}
	return nil
}

// Parse parses options in the format produced by String. Unknown sections and
// keys are rejected. Parsed columns are appended to Schema.
func (o *Options) Parse(s string) error {
	return visitOptions(s, func(section, key, value string) error {
		var err error
		switch section + "." + key {
		case "Options.block_size":
			o.BlockSize, err = strconv.Atoi(value)
		case "Options.checksum":
			var t ChecksumType
			if t, err = wire.ParseChecksumType(value); err == nil {
				o.SetChecksumType(t)
			}
		case "Options.compression":
			var c Compression
			if c, err = compression.ParseAlgorithm(value); err == nil {
				o.SetCompression(c)
			}
		case "Options.desired_chunk_size":
			o.DesiredChunkSize, err = strconv.ParseInt(value, 10, 64)
		case "Options.key_column_count":
			o.KeyColumnCount, err = strconv.Atoi(value)
		case "Options.max_meta_size":
			o.MaxMetaSize, err = strconv.ParseInt(value, 10, 64)
		case "Schema.column":
			var c row.ColumnSchema
			if c, err = parseColumn(value); err == nil {
				o.Schema.Columns = append(o.Schema.Columns, c)
			}
		case "Replication.send_window_size":
			o.Replication.SendWindowSize, err = strconv.ParseInt(value, 10, 64)
		case "Replication.group_size":
			o.Replication.GroupSize, err = strconv.ParseInt(value, 10, 64)
		case "Replication.node_rpc_timeout":
			o.Replication.NodeRPCTimeout, err = time.ParseDuration(value)
		case "Replication.node_ping_interval":
			o.Replication.NodePingInterval, err = time.ParseDuration(value)
		case "Replication.min_upload_replication_factor":
			o.Replication.MinUploadReplicationFactor, err = strconv.Atoi(value)
		case "Replication.no_sync_on_close":
			o.Replication.NoSyncOnClose, err = strconv.ParseBool(value)
		case "Replication.put_bandwidth":
			o.Replication.PutBandwidth, err = strconv.ParseInt(value, 10, 64)
		default:
			return errors.Errorf("chunkwire: unknown option: %s.%s",
				errors.Safe(section), errors.Safe(key))
		}
		if err != nil {
			return errors.Wrapf(err, "chunkwire: invalid value for %s.%s",
				errors.Safe(section), errors.Safe(key))
		}
		return nil
	})
}

// parseColumn parses "name,type[,sort_order]".
func parseColumn(s string) (row.ColumnSchema, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return row.ColumnSchema{}, errors.Newf("column %q is not name,type[,sort_order]", s)
	}
	c := row.ColumnSchema{Name: strings.TrimSpace(parts[0])}
	var err error
	if c.Type, err = row.ParseValueType(strings.TrimSpace(parts[1])); err != nil {
		return row.ColumnSchema{}, err
	}
	if len(parts) == 3 {
		if c.SortOrder, err = row.ParseSortOrder(strings.TrimSpace(parts[2])); err != nil {
			return row.ColumnSchema{}, err
		}
	}
	return c, nil
}
