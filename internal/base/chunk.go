// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/google/uuid"
)

// ChunkID identifies a chunk across the storage nodes and the master.
type ChunkID uuid.UUID

// NewChunkID returns a new random chunk ID.
func NewChunkID() ChunkID {
	return ChunkID(uuid.New())
}

// ParseChunkID parses the canonical textual form of a chunk ID.
func ParseChunkID(s string) (ChunkID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ChunkID{}, errors.Wrapf(err, "invalid chunk id %q", s)
	}
	return ChunkID(u), nil
}

// IsZero returns true for the zero chunk ID.
func (id ChunkID) IsZero() bool {
	return id == ChunkID{}
}

// String implements fmt.Stringer.
func (id ChunkID) String() string {
	return uuid.UUID(id).String()
}

// SafeFormat implements redact.SafeFormatter.
func (id ChunkID) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(id.String()))
}

// NodeDescriptor describes a storage node that can hold chunk replicas.
type NodeDescriptor struct {
	Address    string
	DataCenter string
}

// String implements fmt.Stringer.
func (d NodeDescriptor) String() string {
	return redact.StringWithoutMarkers(d)
}

// SafeFormat implements redact.SafeFormatter.
func (d NodeDescriptor) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(d.Address))
	if d.DataCenter != "" {
		w.Printf("@%s", redact.SafeString(d.DataCenter))
	}
}

// ChunkInfo is the physical summary a storage node reports when a chunk is
// finished. Replicas of the same chunk must report identical infos.
type ChunkInfo struct {
	Size       int64
	Checksum   uint64
	BlockCount int
}

// String implements fmt.Stringer.
func (i ChunkInfo) String() string {
	return redact.StringWithoutMarkers(i)
}

// SafeFormat implements redact.SafeFormatter.
func (i ChunkInfo) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("size=%s blocks=%d checksum=%s",
		crhumanize.Bytes(i.Size, crhumanize.Compact, crhumanize.OmitI),
		redact.Safe(i.BlockCount), redact.SafeString(fmt.Sprintf("%016x", i.Checksum)))
}

// ChunkMeta is the logical metadata the writer attaches to a chunk when it is
// closed. MinKey and MaxKey hold wire-encoded key rows.
type ChunkMeta struct {
	RowCount         int64
	BlockCount       int
	UncompressedSize int64
	CompressedSize   int64
	Codec            string
	Checksum         string
	MinKey           []byte
	MaxKey           []byte
	// BlockRowCounts and BlockLastKeys index the chunk's blocks. Last keys are
	// wire-encoded and empty for tables without key columns.
	BlockRowCounts []int64
	BlockLastKeys  [][]byte
}

// SafeFormat implements redact.SafeFormatter.
func (m ChunkMeta) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("rows=%s blocks=%d data=%s compressed=%s codec=%s checksum=%s",
		crhumanize.Count(m.RowCount, crhumanize.Compact), redact.Safe(m.BlockCount),
		crhumanize.Bytes(m.UncompressedSize, crhumanize.Compact, crhumanize.OmitI),
		crhumanize.Bytes(m.CompressedSize, crhumanize.Compact, crhumanize.OmitI),
		redact.SafeString(m.Codec), redact.SafeString(m.Checksum))
}

// String implements fmt.Stringer.
func (m ChunkMeta) String() string {
	return redact.StringWithoutMarkers(m)
}

// Encode appends the binary encoding of the meta to dst.
func (m *ChunkMeta) Encode(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(m.RowCount))
	dst = binary.AppendUvarint(dst, uint64(m.BlockCount))
	dst = binary.AppendUvarint(dst, uint64(m.UncompressedSize))
	dst = binary.AppendUvarint(dst, uint64(m.CompressedSize))
	for _, b := range [][]byte{[]byte(m.Codec), []byte(m.Checksum), m.MinKey, m.MaxKey} {
		dst = binary.AppendUvarint(dst, uint64(len(b)))
		dst = append(dst, b...)
	}
	dst = binary.AppendUvarint(dst, uint64(len(m.BlockRowCounts)))
	for i, n := range m.BlockRowCounts {
		dst = binary.AppendUvarint(dst, uint64(n))
		var key []byte
		if i < len(m.BlockLastKeys) {
			key = m.BlockLastKeys[i]
		}
		dst = binary.AppendUvarint(dst, uint64(len(key)))
		dst = append(dst, key...)
	}
	return dst
}

// EncodedSize returns the length of the meta's binary encoding.
func (m *ChunkMeta) EncodedSize() int {
	return len(m.Encode(nil))
}

// DecodeChunkMeta decodes a meta produced by ChunkMeta.Encode.
func DecodeChunkMeta(b []byte) (ChunkMeta, error) {
	var m ChunkMeta
	var ints [4]uint64
	for i := range ints {
		v, n := binary.Uvarint(b)
		if n <= 0 {
			return ChunkMeta{}, CorruptionErrorf("chunkwire: invalid chunk meta")
		}
		ints[i] = v
		b = b[n:]
	}
	m.RowCount = int64(ints[0])
	m.BlockCount = int(ints[1])
	m.UncompressedSize = int64(ints[2])
	m.CompressedSize = int64(ints[3])
	var strs [4][]byte
	for i := range strs {
		l, n := binary.Uvarint(b)
		if n <= 0 || l > uint64(len(b)-n) {
			return ChunkMeta{}, CorruptionErrorf("chunkwire: invalid chunk meta")
		}
		strs[i] = append([]byte(nil), b[n:n+int(l)]...)
		b = b[n+int(l):]
	}
	blocks, n := binary.Uvarint(b)
	if n <= 0 || blocks > uint64(len(b)) {
		return ChunkMeta{}, CorruptionErrorf("chunkwire: invalid chunk meta block index")
	}
	b = b[n:]
	for i := uint64(0); i < blocks; i++ {
		rows, n := binary.Uvarint(b)
		if n <= 0 {
			return ChunkMeta{}, CorruptionErrorf("chunkwire: invalid chunk meta block index")
		}
		b = b[n:]
		l, n := binary.Uvarint(b)
		if n <= 0 || l > uint64(len(b)-n) {
			return ChunkMeta{}, CorruptionErrorf("chunkwire: invalid chunk meta block index")
		}
		m.BlockRowCounts = append(m.BlockRowCounts, int64(rows))
		var key []byte
		if l > 0 {
			key = append([]byte(nil), b[n:n+int(l)]...)
		}
		m.BlockLastKeys = append(m.BlockLastKeys, key)
		b = b[n+int(l):]
	}
	if len(b) != 0 {
		return ChunkMeta{}, CorruptionErrorf("chunkwire: %d trailing bytes in chunk meta", errors.Safe(len(b)))
	}
	m.Codec, m.Checksum = string(strs[0]), string(strs[1])
	m.MinKey, m.MaxKey = strs[2], strs[3]
	return m, nil
}

// Confirmation is what the master records for a closed chunk: which target
// nodes hold a replica and what they reported.
type Confirmation struct {
	ChunkID  ChunkID
	Replicas []int
	Nodes    []NodeDescriptor
	Info     ChunkInfo
	Meta     ChunkMeta
}

// SafeFormat implements redact.SafeFormatter.
func (c Confirmation) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("chunk %s replicas=%v %s", c.ChunkID, redact.Safe(c.Replicas), c.Info)
}

// String implements fmt.Stringer.
func (c Confirmation) String() string {
	return redact.StringWithoutMarkers(c)
}
