// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package datanode

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
)

// Chunk object layout:
//
//	magic      [4]byte "CWCK"
//	blockCount uvarint
//	blocks     blockCount * (uvarint length, bytes)
//	metaLen    uvarint
//	meta       ChunkMeta encoding
//	checksum   uint64 little-endian xxhash64 of everything above
const (
	chunkMagic      = "CWCK"
	chunkTrailerLen = 8
)

// Chunk is a decoded chunk object.
type Chunk struct {
	Blocks [][]byte
	Meta   base.ChunkMeta
}

// Info returns the summary a node reports for the chunk's blocks.
func (c *Chunk) Info() base.ChunkInfo {
	return blocksInfo(c.Blocks)
}

func blocksInfo(blocks [][]byte) base.ChunkInfo {
	h := xxhash.New()
	info := base.ChunkInfo{BlockCount: len(blocks)}
	for _, b := range blocks {
		info.Size += int64(len(b))
		_, _ = h.Write(b)
	}
	info.Checksum = h.Sum64()
	return info
}

// EncodeChunk returns the object a node persists for a finished chunk.
func EncodeChunk(blocks [][]byte, meta base.ChunkMeta) []byte {
	n := len(chunkMagic) + binary.MaxVarintLen64 + chunkTrailerLen
	for _, b := range blocks {
		n += binary.MaxVarintLen64 + len(b)
	}
	buf := make([]byte, 0, n)
	buf = append(buf, chunkMagic...)
	buf = binary.AppendUvarint(buf, uint64(len(blocks)))
	for _, b := range blocks {
		buf = binary.AppendUvarint(buf, uint64(len(b)))
		buf = append(buf, b...)
	}
	encMeta := meta.Encode(nil)
	buf = binary.AppendUvarint(buf, uint64(len(encMeta)))
	buf = append(buf, encMeta...)
	return binary.LittleEndian.AppendUint64(buf, xxhash.Sum64(buf))
}

// DecodeChunk decodes an object produced by EncodeChunk. The returned blocks
// alias data.
func DecodeChunk(data []byte) (Chunk, error) {
	if len(data) < len(chunkMagic)+chunkTrailerLen || string(data[:len(chunkMagic)]) != chunkMagic {
		return Chunk{}, base.CorruptionErrorf("datanode: not a chunk object")
	}
	body := data[:len(data)-chunkTrailerLen]
	want := binary.LittleEndian.Uint64(data[len(body):])
	if got := xxhash.Sum64(body); got != want {
		return Chunk{}, base.CorruptionErrorf("datanode: chunk checksum mismatch: expected %016x, computed %016x",
			errors.Safe(want), errors.Safe(got))
	}
	d := body[len(chunkMagic):]
	next := func() ([]byte, error) {
		l, n := binary.Uvarint(d)
		if n <= 0 || l > uint64(len(d)-n) {
			return nil, base.CorruptionErrorf("datanode: truncated chunk object")
		}
		b := d[n : n+int(l) : n+int(l)]
		d = d[n+int(l):]
		return b, nil
	}
	count, n := binary.Uvarint(d)
	if n <= 0 || count > uint64(len(d)) {
		return Chunk{}, base.CorruptionErrorf("datanode: invalid block count")
	}
	d = d[n:]
	c := Chunk{Blocks: make([][]byte, 0, count)}
	for i := uint64(0); i < count; i++ {
		b, err := next()
		if err != nil {
			return Chunk{}, err
		}
		c.Blocks = append(c.Blocks, b)
	}
	encMeta, err := next()
	if err != nil {
		return Chunk{}, err
	}
	if len(d) != 0 {
		return Chunk{}, base.CorruptionErrorf("datanode: %d trailing bytes in chunk object", errors.Safe(len(d)))
	}
	if c.Meta, err = base.DecodeChunkMeta(encMeta); err != nil {
		return Chunk{}, err
	}
	return c, nil
}
