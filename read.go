// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package chunkwire

import (
	"context"

	"github.com/cockroachdb/chunkwire/chunkstore"
	"github.com/cockroachdb/chunkwire/datanode"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/chunkwire/row"
	"github.com/cockroachdb/chunkwire/wire"
	"github.com/cockroachdb/errors"
)

// ReadChunk reads a chunk written by a TableWriter from store and decodes its
// rows. Every block is verified against its checksum and the chunk's block
// index.
func ReadChunk(
	ctx context.Context, store chunkstore.Store, chunkID base.ChunkID,
) ([]row.OwningRow, base.ChunkMeta, error) {
	data, err := store.Get(ctx, chunkstore.ChunkObjectName(chunkID))
	if err != nil {
		return nil, base.ChunkMeta{}, err
	}
	chunk, err := datanode.DecodeChunk(data)
	if err != nil {
		return nil, base.ChunkMeta{}, errors.Wrapf(err, "chunk %s", chunkID)
	}
	rows, err := decodeChunkRows(chunk)
	if err != nil {
		return nil, base.ChunkMeta{}, errors.Wrapf(err, "chunk %s", chunkID)
	}
	return rows, chunk.Meta, nil
}

func decodeChunkRows(chunk datanode.Chunk) ([]row.OwningRow, error) {
	meta := chunk.Meta
	checksum, err := wire.ParseChecksumType(meta.Checksum)
	if err != nil {
		return nil, err
	}
	if len(chunk.Blocks) != meta.BlockCount {
		return nil, base.CorruptionErrorf("chunk holds %d blocks but its meta lists %d",
			errors.Safe(len(chunk.Blocks)), errors.Safe(meta.BlockCount))
	}
	if len(meta.BlockRowCounts) != 0 && len(meta.BlockRowCounts) != meta.BlockCount {
		return nil, base.CorruptionErrorf("block index lists %d blocks but the chunk has %d",
			errors.Safe(len(meta.BlockRowCounts)), errors.Safe(meta.BlockCount))
	}
	rd := wire.NewRowsetReader(checksum, nil, nil)
	res := make([]row.OwningRow, 0, meta.RowCount)
	for i, block := range chunk.Blocks {
		rows, err := rd.Read(block)
		if err != nil {
			return nil, errors.Wrapf(err, "block %d", errors.Safe(i))
		}
		if len(meta.BlockRowCounts) != 0 && int64(len(rows)) != meta.BlockRowCounts[i] {
			return nil, base.CorruptionErrorf("block %d holds %d rows but the index lists %d",
				errors.Safe(i), errors.Safe(len(rows)), errors.Safe(meta.BlockRowCounts[i]))
		}
		for _, r := range rows {
			res = append(res, row.MakeOwningRow(r))
		}
	}
	if int64(len(res)) != meta.RowCount {
		return nil, base.CorruptionErrorf("chunk holds %d rows but its meta lists %d",
			errors.Safe(len(res)), errors.Safe(meta.RowCount))
	}
	return res, nil
}
