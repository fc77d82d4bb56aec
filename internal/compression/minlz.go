// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/minio/minlz"
)

type minlzCompressor struct{}

var _ Compressor = minlzCompressor{}

func (minlzCompressor) Algorithm() Algorithm { return MinLZ }

// Compress encodes src at the fastest level. Blocks beyond minlz's maximum
// block size are snappy encoded, which minlz decodes as well.
func (minlzCompressor) Compress(dst, src []byte) []byte {
	if len(src) > minlz.MaxBlockSize {
		return snappyCompressor{}.Compress(dst, src)
	}
	out, err := minlz.Encode(dst, src, minlz.LevelFastest)
	if err != nil {
		panic(errors.Wrap(err, "minlz compression"))
	}
	return out
}

func (minlzCompressor) Close() {}

type minlzDecompressor struct{}

var _ Decompressor = minlzDecompressor{}

func (minlzDecompressor) DecompressInto(dst, src []byte) error {
	got, err := minlz.Decode(dst, src)
	if err != nil {
		return base.MarkCorruptionError(err)
	}
	return checkDecoded(MinLZ, dst, got)
}

func (minlzDecompressor) DecompressedLen(b []byte) (int, error) {
	n, err := minlz.DecodedLen(b)
	if err != nil {
		return 0, base.MarkCorruptionError(err)
	}
	return n, nil
}

func (minlzDecompressor) Close() {}
