// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package wire

import (
	"encoding/binary"
	"hash/crc32"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/chunkwire/internal/bitflip"
	"github.com/cockroachdb/chunkwire/internal/compression"
	"github.com/cockroachdb/chunkwire/internal/invariants"
	"github.com/cockroachdb/chunkwire/row"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// TrailerLen is the length of the trailer at the end of a rowset block: one
// byte for the compression algorithm and four for the checksum.
const TrailerLen = 5

// ChecksumType specifies the checksum used for rowset blocks.
type ChecksumType byte

// The available checksum types. These values are part of the durable format.
const (
	ChecksumTypeNone     ChecksumType = 0
	ChecksumTypeCRC32c   ChecksumType = 1
	ChecksumTypeXXHash64 ChecksumType = 3
)

// String implements fmt.Stringer.
func (t ChecksumType) String() string {
	return redact.StringWithoutMarkers(t)
}

// SafeFormat implements redact.SafeFormatter.
func (t ChecksumType) SafeFormat(w redact.SafePrinter, _ rune) {
	switch t {
	case ChecksumTypeNone:
		w.SafeString("none")
	case ChecksumTypeCRC32c:
		w.SafeString("crc32c")
	case ChecksumTypeXXHash64:
		w.SafeString("xxhash64")
	default:
		w.Printf("unknown(%d)", redact.SafeUint(t))
	}
}

// ParseChecksumType parses the String form of a checksum type.
func ParseChecksumType(s string) (ChecksumType, error) {
	for _, t := range []ChecksumType{ChecksumTypeNone, ChecksumTypeCRC32c, ChecksumTypeXXHash64} {
		if strings.EqualFold(s, t.String()) {
			return t, nil
		}
	}
	return 0, errors.Newf("unknown checksum type %q", s)
}

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// A Checksummer computes block checksums. The zero value computes no
// checksum.
type Checksummer struct {
	Type     ChecksumType
	xxHasher *xxhash.Digest
	codecBuf [1]byte
}

// Checksum computes the checksum of the block followed by its codec byte.
func (c *Checksummer) Checksum(block []byte, codec byte) uint32 {
	c.codecBuf[0] = codec
	switch c.Type {
	case ChecksumTypeNone:
		return 0
	case ChecksumTypeCRC32c:
		return crc32.Update(crc32.Checksum(block, crc32cTable), crc32cTable, c.codecBuf[:])
	case ChecksumTypeXXHash64:
		if c.xxHasher == nil {
			c.xxHasher = xxhash.New()
		} else {
			c.xxHasher.Reset()
		}
		_, _ = c.xxHasher.Write(block)
		_, _ = c.xxHasher.Write(c.codecBuf[:])
		return uint32(c.xxHasher.Sum64())
	default:
		panic(errors.AssertionFailedf("unsupported checksum type %d", errors.Safe(c.Type)))
	}
}

func checksumFunc(t ChecksumType) func([]byte) uint32 {
	switch t {
	case ChecksumTypeCRC32c:
		return func(b []byte) uint32 { return crc32.Checksum(b, crc32cTable) }
	case ChecksumTypeXXHash64:
		return func(b []byte) uint32 { return uint32(xxhash.Sum64(b)) }
	}
	return nil
}

// ValidateChecksum verifies the trailer of an encoded block.
func ValidateChecksum(t ChecksumType, block []byte) error {
	if len(block) < TrailerLen {
		return base.CorruptionErrorf("wire: block of %d bytes is shorter than its trailer", errors.Safe(len(block)))
	}
	if t == ChecksumTypeNone {
		return nil
	}
	fn := checksumFunc(t)
	if fn == nil {
		return errors.Newf("unsupported checksum type %d", errors.Safe(t))
	}
	n := len(block) - TrailerLen
	want := binary.LittleEndian.Uint32(block[n+1:])
	got := fn(block[:n+1])
	if want == got {
		return nil
	}
	err := base.CorruptionErrorf("wire: %s checksum mismatch %x != %x", t, want, got)
	data := slices.Clone(block[:n+1])
	if found, index, bit := bitflip.Find(data, fn, want); found {
		err = errors.WithSafeDetails(err, "bit flip found: byte index %d, bit %d",
			errors.Safe(index), errors.Safe(bit))
	}
	return err
}

// RowsetWriterOptions configures a RowsetWriter.
type RowsetWriterOptions struct {
	// BlockSize is the target uncompressed size of a block.
	BlockSize int
	// Compression is the codec applied to every block.
	Compression compression.Algorithm
	// Checksum is the checksum stored in every block trailer.
	Checksum ChecksumType
}

// BlockStats describes a finished block.
type BlockStats struct {
	Rows             int
	UncompressedSize int64
	CompressedSize   int64
}

// RowsetWriter packs rows into self-describing blocks. A block is
//
//	compress(varint(rowCount) row*) codec:byte checksum:uint32
//
// where every row is length-prefixed as in Writer.WriteUnversionedRow. A block
// whose compressed form saves less than an eighth of its size is stored
// uncompressed and its codec byte says so.
type RowsetWriter struct {
	opts        RowsetWriterOptions
	compressor  compression.Compressor
	checksummer Checksummer
	rows        int
	body        []byte
	scratch     []byte
	payload     []byte
	compressed  []byte
	closeCheck  invariants.CloseChecker
}

// NewRowsetWriter returns a writer. Close must be called to release the
// compressor.
func NewRowsetWriter(opts RowsetWriterOptions) *RowsetWriter {
	return &RowsetWriter{
		opts:        opts,
		compressor:  compression.GetCompressor(opts.Compression),
		checksummer: Checksummer{Type: opts.Checksum},
	}
}

// WriteRow appends a row to the pending block.
func (w *RowsetWriter) WriteRow(r row.Row) {
	w.closeCheck.AssertNotClosed()
	w.scratch = AppendRow(w.scratch[:0], r)
	w.body = binary.AppendUvarint(w.body, uint64(len(w.scratch)))
	w.body = append(w.body, w.scratch...)
	w.rows++
}

// Rows returns the number of rows in the pending block.
func (w *RowsetWriter) Rows() int {
	return w.rows
}

// EstimatedSize returns the uncompressed size of the pending block.
func (w *RowsetWriter) EstimatedSize() int {
	return len(w.body)
}

// ShouldFlush returns true once the pending block has reached its target size
// or the per-rowset row limit.
func (w *RowsetWriter) ShouldFlush() bool {
	return w.rows > 0 && (len(w.body) >= w.opts.BlockSize || w.rows >= row.MaxRowsPerRowset)
}

// FinishBlock encodes the pending rows and resets the writer. The returned
// block is owned by the caller.
func (w *RowsetWriter) FinishBlock() ([]byte, BlockStats) {
	w.closeCheck.AssertNotClosed()
	w.payload = binary.AppendUvarint(w.payload[:0], uint64(w.rows))
	w.payload = append(w.payload, w.body...)

	codec := w.opts.Compression
	data := w.payload
	if codec != compression.NoCompression {
		w.compressed = w.compressor.Compress(w.compressed[:0], w.payload)
		if len(w.compressed) < len(w.payload)-len(w.payload)/8 {
			data = w.compressed
		} else {
			codec = compression.NoCompression
		}
	}

	block := make([]byte, len(data)+TrailerLen)
	copy(block, data)
	block[len(data)] = byte(codec)
	checksum := w.checksummer.Checksum(data, byte(codec))
	binary.LittleEndian.PutUint32(block[len(data)+1:], checksum)

	stats := BlockStats{
		Rows:             w.rows,
		UncompressedSize: int64(len(w.payload)),
		CompressedSize:   int64(len(block)),
	}
	w.rows = 0
	w.body = w.body[:0]
	return block, stats
}

// Close releases the compressor.
func (w *RowsetWriter) Close() {
	w.closeCheck.Close()
	w.compressor.Close()
}

// RowsetReader decodes blocks produced by RowsetWriter.
type RowsetReader struct {
	checksum  ChecksumType
	buf       *row.Buffer
	idMapping row.IDMapping
}

// NewRowsetReader returns a reader. When buf is nil, decoded rows alias the
// decompressed block. When idMapping is non-nil, column ids are translated
// through it.
func NewRowsetReader(checksum ChecksumType, buf *row.Buffer, idMapping row.IDMapping) *RowsetReader {
	return &RowsetReader{checksum: checksum, buf: buf, idMapping: idMapping}
}

// Read verifies, decompresses and decodes a block.
func (r *RowsetReader) Read(block []byte) ([]row.Row, error) {
	if err := ValidateChecksum(r.checksum, block); err != nil {
		return nil, err
	}
	n := len(block) - TrailerLen
	codec := compression.Algorithm(block[n])
	if !codec.IsValid() {
		return nil, base.CorruptionErrorf("wire: unknown block codec %d", errors.Safe(block[n]))
	}
	payload, err := compression.Decompress(codec, block[:n])
	if err != nil {
		return nil, base.MarkCorruptionError(errors.Wrapf(err, "decompressing %s block", codec))
	}
	rd := NewReader(payload, r.buf)
	rows, err := rd.ReadUnversionedRowset(r.idMapping)
	if err != nil {
		return nil, err
	}
	if !rd.IsFinished() {
		return nil, base.CorruptionErrorf("wire: %d trailing bytes in block",
			errors.Safe(len(payload)-rd.Offset()))
	}
	return rows, nil
}
