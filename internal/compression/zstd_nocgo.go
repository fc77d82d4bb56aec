// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build !cgo

package compression

import (
	"sync"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
)

// Without cgo, zstd blocks use the pure Go port. Its output differs from the
// C library's but either decodes the other.

type zstdCompressor struct {
	enc *zstd.Encoder
}

var _ Compressor = (*zstdCompressor)(nil)

var zstdEncoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(DefaultZstdLevel)),
			zstd.WithEncoderConcurrency(1))
		if err != nil {
			panic(err)
		}
		return &zstdCompressor{enc: enc}
	},
}

func getZstdCompressor() *zstdCompressor {
	return zstdEncoderPool.Get().(*zstdCompressor)
}

func (z *zstdCompressor) Algorithm() Algorithm { return Zstd }

func (z *zstdCompressor) Compress(dst, src []byte) []byte {
	return z.enc.EncodeAll(src, appendLenPrefix(dst[:0], len(src)))
}

func (z *zstdCompressor) Close() {
	zstdEncoderPool.Put(z)
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(err)
		}
		return dec
	},
}

type zstdDecompressor struct{}

var _ Decompressor = zstdDecompressor{}

func getZstdDecompressor() zstdDecompressor { return zstdDecompressor{} }

func (zstdDecompressor) DecompressInto(dst, src []byte) error {
	n, payload, err := splitLenPrefix(src)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return base.CorruptionErrorf("chunkwire: zstd block holds %d bytes, buffer has %d",
			errors.Safe(n), errors.Safe(len(dst)))
	}
	dec := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(dec)
	got, err := dec.DecodeAll(payload, dst[:0])
	if err != nil {
		return base.MarkCorruptionError(err)
	}
	return checkDecoded(Zstd, dst, got)
}

func (zstdDecompressor) DecompressedLen(b []byte) (int, error) {
	n, _, err := splitLenPrefix(b)
	return n, err
}

func (zstdDecompressor) Close() {}
