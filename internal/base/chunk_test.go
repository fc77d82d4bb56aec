// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestChunkID(t *testing.T) {
	id := NewChunkID()
	require.False(t, id.IsZero())
	parsed, err := ParseChunkID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = ParseChunkID("not-a-chunk")
	require.Error(t, err)
	require.True(t, ChunkID{}.IsZero())
}

func TestChunkMetaEncoding(t *testing.T) {
	m := ChunkMeta{
		RowCount:         1000,
		BlockCount:       3,
		UncompressedSize: 1 << 20,
		CompressedSize:   300 << 10,
		Codec:            "snappy",
		Checksum:         "xxhash64",
		MinKey:           []byte{0, 1, 0, 3, 2},
		MaxKey:           []byte{0, 1, 0, 3, 200, 1},
		BlockRowCounts:   []int64{400, 400, 200},
		BlockLastKeys:    [][]byte{{0, 1, 0, 3, 90}, nil, {0, 1, 0, 3, 200, 1}},
	}
	enc := m.Encode(nil)
	require.Equal(t, len(enc), m.EncodedSize())
	dec, err := DecodeChunkMeta(enc)
	require.NoError(t, err)
	require.Equal(t, m, dec)
	require.Contains(t, m.String(), "blocks=3")
	require.Contains(t, m.String(), "codec=snappy")

	for i := 0; i < len(enc); i++ {
		_, err := DecodeChunkMeta(enc[:i])
		require.Error(t, err)
		require.True(t, IsCorruptionError(err), "prefix %d: %v", i, err)
	}
	_, err = DecodeChunkMeta(append(enc, 0))
	require.True(t, IsCorruptionError(err))
}

func TestErrorMarkers(t *testing.T) {
	err := CorruptionErrorf("bad block %d", 7)
	require.True(t, IsCorruptionError(err))
	require.True(t, IsCorruptionError(errors.Wrap(err, "reading chunk")))
	require.Equal(t, err, MarkCorruptionError(err))

	require.True(t, errors.Is(LimitExceededf("too many values"), ErrLimitExceeded))
	require.True(t, errors.Is(InvalidValuef("NaN"), ErrInvalidValue))
	require.False(t, errors.Is(InvalidValuef("NaN"), ErrLimitExceeded))
}

func TestInMemLogger(t *testing.T) {
	var l InMemLogger
	l.Infof("node %d failed", 2)
	l.Errorf("session failed\n")
	require.Equal(t, "node 2 failed\nsession failed\n", l.String())
	l.Reset()
	require.Equal(t, "", l.String())
}
