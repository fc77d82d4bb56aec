// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package compression implements the block codecs used for rowset blocks.
package compression

import (
	"encoding/binary"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Algorithm identifies a block compression algorithm. The numeric values are
// persisted in block trailers and must not change.
type Algorithm uint8

const (
	NoCompression Algorithm = iota
	Snappy
	Zstd
	MinLZ
	LZ4
	nAlgorithms
)

var algorithmNames = [nAlgorithms]string{
	NoCompression: "none",
	Snappy:        "snappy",
	Zstd:          "zstd",
	MinLZ:         "minlz",
	LZ4:           "lz4",
}

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	if a < nAlgorithms {
		return algorithmNames[a]
	}
	return redact.StringWithoutMarkers(a)
}

// SafeFormat implements redact.SafeFormatter.
func (a Algorithm) SafeFormat(w redact.SafePrinter, _ rune) {
	if a < nAlgorithms {
		w.Print(redact.SafeString(algorithmNames[a]))
		return
	}
	w.Printf("unknown(%d)", redact.Safe(uint8(a)))
}

// IsValid returns true if the algorithm is known.
func (a Algorithm) IsValid() bool {
	return a < nAlgorithms
}

// ParseAlgorithm parses the name returned by Algorithm.String.
func ParseAlgorithm(s string) (Algorithm, error) {
	for a, name := range algorithmNames {
		if name == s {
			return Algorithm(a), nil
		}
	}
	return 0, errors.Newf("unknown compression algorithm %q", s)
}

// Algorithms returns every supported algorithm.
func Algorithms() []Algorithm {
	res := make([]Algorithm, 0, nAlgorithms)
	for a := Algorithm(0); a < nAlgorithms; a++ {
		res = append(res, a)
	}
	return res
}

// Compressor compresses blocks. Compressors returned by GetCompressor must be
// closed after use.
type Compressor interface {
	Algorithm() Algorithm
	// Compress a block, appending the compressed data to dst[:0].
	Compress(dst, src []byte) []byte
	// Close must be called when the Compressor is no longer needed.
	// After Close is called, the Compressor must not be used again.
	Close()
}

// Decompressor decompresses blocks produced by the Compressor of the same
// algorithm.
type Decompressor interface {
	// DecompressInto decompresses compressed into buf. The buf slice must have the
	// exact size as the decompressed value. Callers may use DecompressedLen to
	// determine the correct size.
	DecompressInto(buf, compressed []byte) error

	// DecompressedLen returns the length of the provided block once decompressed,
	// allowing the caller to allocate a buffer exactly sized to the decompressed
	// payload.
	DecompressedLen(b []byte) (decompressedLen int, err error)

	// Close must be called when the Decompressor is no longer needed.
	// After Close is called, the Decompressor must not be used again.
	Close()
}

// DefaultZstdLevel is the zstd level used for rowset blocks.
const DefaultZstdLevel = 3

// GetCompressor returns a Compressor for the algorithm.
func GetCompressor(a Algorithm) Compressor {
	switch a {
	case NoCompression:
		return noopCompressor{}
	case Snappy:
		return snappyCompressor{}
	case Zstd:
		return getZstdCompressor()
	case MinLZ:
		return minlzCompressor{}
	case LZ4:
		return getLZ4Compressor()
	default:
		panic(errors.AssertionFailedf("invalid compression algorithm %d", errors.Safe(uint8(a))))
	}
}

// GetDecompressor returns a Decompressor for the algorithm.
func GetDecompressor(a Algorithm) Decompressor {
	switch a {
	case NoCompression:
		return noopDecompressor{}
	case Snappy:
		return snappyDecompressor{}
	case Zstd:
		return getZstdDecompressor()
	case MinLZ:
		return minlzDecompressor{}
	case LZ4:
		return lz4Decompressor{}
	default:
		panic(errors.AssertionFailedf("invalid compression algorithm %d", errors.Safe(uint8(a))))
	}
}

// Decompress decompresses src into a newly allocated buffer.
func Decompress(a Algorithm, src []byte) ([]byte, error) {
	if !a.IsValid() {
		return nil, errors.Newf("invalid compression algorithm %d", errors.Safe(uint8(a)))
	}
	d := GetDecompressor(a)
	defer d.Close()
	n, err := d.DecompressedLen(src)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := d.DecompressInto(buf, src); err != nil {
		return nil, err
	}
	return buf, nil
}

// Zstd and LZ4 blocks start with the uvarint length of the decompressed data;
// snappy and minlz carry it in their own block headers.

func appendLenPrefix(dst []byte, n int) []byte {
	return binary.AppendUvarint(dst, uint64(n))
}

func splitLenPrefix(src []byte) (n int, payload []byte, err error) {
	l, w := binary.Uvarint(src)
	if w <= 0 || l > uint64(maxDecompressedLen) {
		return 0, nil, base.CorruptionErrorf("chunkwire: compressed block has invalid length prefix")
	}
	return int(l), src[w:], nil
}

// maxDecompressedLen bounds the decompressed size a block header may claim.
const maxDecompressedLen = 1 << 31

// checkDecoded verifies a codec decoded exactly into dst.
func checkDecoded(a Algorithm, dst, result []byte) error {
	if len(result) != len(dst) || (len(result) > 0 && &result[0] != &dst[0]) {
		return base.CorruptionErrorf("chunkwire: %s block decoded to %d bytes, expected %d",
			a, errors.Safe(len(result)), errors.Safe(len(dst)))
	}
	return nil
}
