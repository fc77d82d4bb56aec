// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build cgo

package compression

import (
	"slices"
	"sync"

	"github.com/DataDog/zstd"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
)

// With cgo, zstd blocks go through the reference C library. Contexts are
// pooled; each holds native state that is expensive to set up.

type zstdCodec struct {
	ctx zstd.Ctx
}

var zstdPool = sync.Pool{
	New: func() any { return &zstdCodec{ctx: zstd.NewCtx()} },
}

var (
	_ Compressor   = (*zstdCodec)(nil)
	_ Decompressor = (*zstdCodec)(nil)
)

func getZstdCompressor() *zstdCodec   { return zstdPool.Get().(*zstdCodec) }
func getZstdDecompressor() *zstdCodec { return zstdPool.Get().(*zstdCodec) }

func (z *zstdCodec) Algorithm() Algorithm { return Zstd }

func (z *zstdCodec) Compress(dst, src []byte) []byte {
	dst = appendLenPrefix(dst[:0], len(src))
	hdr := len(dst)
	bound := zstd.CompressBound(len(src))
	dst = slices.Grow(dst, bound)
	out, err := z.ctx.CompressLevel(dst[hdr:hdr+bound], src, DefaultZstdLevel)
	if err != nil {
		panic(errors.Wrap(err, "zstd compression"))
	}
	return append(dst[:hdr], out...)
}

func (z *zstdCodec) DecompressInto(dst, src []byte) error {
	n, payload, err := splitLenPrefix(src)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return base.CorruptionErrorf("chunkwire: zstd block holds %d bytes, buffer has %d",
			errors.Safe(n), errors.Safe(len(dst)))
	}
	if n == 0 {
		return nil
	}
	got, err := z.ctx.DecompressInto(dst, payload)
	if err != nil {
		return base.MarkCorruptionError(err)
	}
	return checkDecoded(Zstd, dst, dst[:got])
}

func (z *zstdCodec) DecompressedLen(b []byte) (int, error) {
	n, _, err := splitLenPrefix(b)
	return n, err
}

func (z *zstdCodec) Close() {
	zstdPool.Put(z)
}
