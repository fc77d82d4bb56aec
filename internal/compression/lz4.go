// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"slices"
	"sync"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4/v4"
)

// LZ4 blocks are laid out as uvarint(decompressed length), a mode byte and
// the payload. Incompressible input is stored raw since lz4 block encoding
// reports it by returning zero bytes.
const (
	lz4ModeRaw byte = iota
	lz4ModeBlock
)

type lz4Compressor struct {
	c lz4.Compressor
}

var _ Compressor = (*lz4Compressor)(nil)

var lz4CompressorPool = sync.Pool{
	New: func() any { return &lz4Compressor{} },
}

func getLZ4Compressor() *lz4Compressor {
	return lz4CompressorPool.Get().(*lz4Compressor)
}

func (c *lz4Compressor) Algorithm() Algorithm { return LZ4 }

func (c *lz4Compressor) Compress(dst, src []byte) []byte {
	dst = appendLenPrefix(dst[:0], len(src))
	hdr := len(dst) + 1
	bound := lz4.CompressBlockBound(len(src))
	dst = slices.Grow(dst, 1+bound)
	n, err := c.c.CompressBlock(src, dst[hdr:hdr+bound])
	if err != nil {
		panic(errors.Wrap(err, "lz4 compression"))
	}
	if n == 0 || n >= len(src) {
		dst = append(dst, lz4ModeRaw)
		return append(dst, src...)
	}
	dst = dst[:hdr+n]
	dst[hdr-1] = lz4ModeBlock
	return dst
}

func (c *lz4Compressor) Close() {
	lz4CompressorPool.Put(c)
}

type lz4Decompressor struct{}

var _ Decompressor = lz4Decompressor{}

func (lz4Decompressor) DecompressInto(dst, src []byte) error {
	_, rest, err := splitLenPrefix(src)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return base.CorruptionErrorf("chunkwire: lz4 block is missing its mode byte")
	}
	switch mode, payload := rest[0], rest[1:]; mode {
	case lz4ModeRaw:
		if len(payload) != len(dst) {
			return base.CorruptionErrorf("chunkwire: lz4 raw block has length %d, expected %d",
				errors.Safe(len(payload)), errors.Safe(len(dst)))
		}
		copy(dst, payload)
		return nil
	case lz4ModeBlock:
		n, err := lz4.UncompressBlock(payload, dst)
		if err != nil {
			return base.MarkCorruptionError(err)
		}
		return checkDecoded(LZ4, dst, dst[:n])
	default:
		return base.CorruptionErrorf("chunkwire: unknown lz4 block mode %d", errors.Safe(mode))
	}
}

func (lz4Decompressor) DecompressedLen(b []byte) (int, error) {
	n, _, err := splitLenPrefix(b)
	return n, err
}

func (lz4Decompressor) Close() {}
