// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package wire

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/chunkwire/internal/compression"
	"github.com/cockroachdb/chunkwire/row"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func randomRow(rng *rand.Rand) row.Row {
	if rng.Intn(20) == 0 {
		return row.NullRow
	}
	n := rng.Intn(6)
	values := make([]row.Value, 0, n)
	for i := 0; i < n; i++ {
		id := uint16(i)
		switch rng.Intn(6) {
		case 0:
			values = append(values, row.NullValue(id))
		case 1:
			values = append(values, row.Int64Value(int64(rng.Uint64()), id))
		case 2:
			values = append(values, row.Uint64Value(rng.Uint64(), id))
		case 3:
			values = append(values, row.DoubleValue(rng.Float64(), id))
		case 4:
			values = append(values, row.BooleanValue(rng.Intn(2) == 1, id))
		default:
			b := make([]byte, rng.Intn(40))
			for j := range b {
				b[j] = 'a' + byte(rng.Intn(4))
			}
			values = append(values, row.StringValue(b, id))
		}
	}
	return row.MakeRow(values...)
}

func TestRowsetBlockRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(uint64(42)))
	rows := make([]row.Row, 300)
	for i := range rows {
		rows[i] = randomRow(rng)
	}
	for _, algo := range compression.Algorithms() {
		for _, checksum := range []ChecksumType{ChecksumTypeNone, ChecksumTypeCRC32c, ChecksumTypeXXHash64} {
			t.Run(fmt.Sprintf("%s/%s", algo, checksum), func(t *testing.T) {
				w := NewRowsetWriter(RowsetWriterOptions{
					BlockSize:   1 << 20,
					Compression: algo,
					Checksum:    checksum,
				})
				defer w.Close()
				for _, r := range rows {
					w.WriteRow(r)
				}
				require.Equal(t, len(rows), w.Rows())
				require.False(t, w.ShouldFlush())
				block, stats := w.FinishBlock()
				require.Equal(t, len(rows), stats.Rows)
				require.Equal(t, int64(len(block)), stats.CompressedSize)
				require.Zero(t, w.Rows())

				for _, buf := range []*row.Buffer{nil, row.NewBuffer(0)} {
					got, err := NewRowsetReader(checksum, buf, nil).Read(block)
					require.NoError(t, err)
					require.Len(t, got, len(rows))
					for i := range rows {
						require.True(t, rows[i].Equal(got[i]), "row %d: %s != %s", i, rows[i], got[i])
					}
				}
			})
		}
	}
}

func TestRowsetEmptyBlock(t *testing.T) {
	w := NewRowsetWriter(RowsetWriterOptions{BlockSize: 1, Compression: compression.Snappy, Checksum: ChecksumTypeCRC32c})
	defer w.Close()
	require.False(t, w.ShouldFlush())
	block, stats := w.FinishBlock()
	require.Zero(t, stats.Rows)
	got, err := NewRowsetReader(ChecksumTypeCRC32c, nil, nil).Read(block)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestRowsetShouldFlush(t *testing.T) {
	w := NewRowsetWriter(RowsetWriterOptions{BlockSize: 64, Compression: compression.NoCompression})
	defer w.Close()
	for !w.ShouldFlush() {
		w.WriteRow(row.MakeRow(row.StringValue([]byte("0123456789"), 0)))
	}
	require.GreaterOrEqual(t, w.EstimatedSize(), 64)
	_, stats := w.FinishBlock()
	require.Equal(t, 4, stats.Rows)
	require.False(t, w.ShouldFlush())
}

func TestRowsetIncompressibleFallsBack(t *testing.T) {
	rng := rand.New(rand.NewSource(uint64(7)))
	b := make([]byte, 4096)
	for i := range b {
		b[i] = byte(rng.Uint32())
	}
	w := NewRowsetWriter(RowsetWriterOptions{BlockSize: 1 << 20, Compression: compression.Snappy, Checksum: ChecksumTypeXXHash64})
	defer w.Close()
	w.WriteRow(row.MakeRow(row.StringValue(b, 0)))
	block, _ := w.FinishBlock()
	require.Equal(t, byte(compression.NoCompression), block[len(block)-TrailerLen])
	got, err := NewRowsetReader(ChecksumTypeXXHash64, nil, nil).Read(block)
	require.NoError(t, err)
	require.Equal(t, b, got[0].At(0).Bytes())
}

func TestRowsetChecksumMismatch(t *testing.T) {
	for _, checksum := range []ChecksumType{ChecksumTypeCRC32c, ChecksumTypeXXHash64} {
		w := NewRowsetWriter(RowsetWriterOptions{BlockSize: 1 << 20, Compression: compression.NoCompression, Checksum: checksum})
		w.WriteRow(row.MakeRow(row.Int64Value(12345, 0), row.StringValue([]byte("checksummed"), 1)))
		block, _ := w.FinishBlock()
		w.Close()

		block[3] ^= 0x10
		_, err := NewRowsetReader(checksum, nil, nil).Read(block)
		require.Error(t, err)
		require.True(t, base.IsCorruptionError(err), "%v", err)
	}

	_, err := NewRowsetReader(ChecksumTypeCRC32c, nil, nil).Read([]byte{1, 2})
	require.True(t, base.IsCorruptionError(err))
}

func TestParseChecksumType(t *testing.T) {
	for _, c := range []ChecksumType{ChecksumTypeNone, ChecksumTypeCRC32c, ChecksumTypeXXHash64} {
		got, err := ParseChecksumType(c.String())
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
	_, err := ParseChecksumType("md5")
	require.Error(t, err)
	require.Equal(t, "unknown(2)", ChecksumType(2).String())
}
