// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package wire implements the binary encoding of rows and rowsets.
//
// A value is encoded as
//
//	varint(id) varint(type) payload
//
// where the payload is a zigzag varint for Int64, a varint for Uint64, 8
// little-endian bytes for Double, one byte (0 or 1) for Boolean, a varint
// length followed by the bytes for String and Any, and nothing for null and
// the sentinels. A row is encoded as
//
//	varint(0) varint(count) value*
//
// The null row is encoded as the empty byte sequence, which is not a valid
// prefix of any present row. Within a stream (Writer/Reader) every row is
// length-prefixed so that the null row remains representable. A rowset is a
// varint row count followed by that many length-prefixed rows.
//
// The aggregate flag of a value is not part of the encoding.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/chunkwire/row"
)

const rowFormatVersion = 0

// AppendValue appends the encoding of v to dst.
func AppendValue(dst []byte, v row.Value) []byte {
	dst = binary.AppendUvarint(dst, uint64(v.ID))
	dst = binary.AppendUvarint(dst, uint64(v.Type))
	switch v.Type {
	case row.TypeInt64:
		dst = binary.AppendVarint(dst, v.Int64())
	case row.TypeUint64:
		dst = binary.AppendUvarint(dst, v.Uint64())
	case row.TypeDouble:
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v.Double()))
	case row.TypeBoolean:
		b := byte(0)
		if v.Boolean() {
			b = 1
		}
		dst = append(dst, b)
	case row.TypeString, row.TypeAny:
		dst = binary.AppendUvarint(dst, uint64(len(v.Bytes())))
		dst = append(dst, v.Bytes()...)
	}
	return dst
}

// AppendRow appends the encoding of r to dst. Nothing is appended for the
// null row.
func AppendRow(dst []byte, r row.Row) []byte {
	if r.IsNull() {
		return dst
	}
	dst = binary.AppendUvarint(dst, rowFormatVersion)
	dst = binary.AppendUvarint(dst, uint64(r.Len()))
	for _, v := range r.Values() {
		dst = AppendValue(dst, v)
	}
	return dst
}

// EncodeRow returns the encoding of r.
func EncodeRow(r row.Row) []byte {
	if r.IsNull() {
		return []byte{}
	}
	return AppendRow(make([]byte, 0, r.ByteSize()), r)
}

// Writer accumulates a stream of commands, scalars, messages, rows and
// rowsets into a single buffer.
type Writer struct {
	buf []byte
	// scratch holds the standalone encoding of the row being written.
	scratch []byte
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteCommand writes a command tag.
func (w *Writer) WriteCommand(c Command) {
	w.buf = binary.AppendUvarint(w.buf, uint64(c))
}

// WriteInt64 writes a zigzag-encoded integer.
func (w *Writer) WriteInt64(v int64) {
	w.buf = binary.AppendVarint(w.buf, v)
}

// WriteUint64 writes a varint.
func (w *Writer) WriteUint64(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

// WriteMessage writes a length-prefixed byte string.
func (w *Writer) WriteMessage(b []byte) {
	w.buf = binary.AppendUvarint(w.buf, uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteUnversionedRow writes a length-prefixed row. The null row is written as
// a zero length.
func (w *Writer) WriteUnversionedRow(r row.Row) {
	w.scratch = AppendRow(w.scratch[:0], r)
	w.WriteMessage(w.scratch)
}

// WriteUnversionedRowset writes the row count followed by each row.
func (w *Writer) WriteUnversionedRowset(rows []row.Row) {
	w.WriteUint64(uint64(len(rows)))
	for _, r := range rows {
		w.WriteUnversionedRow(r)
	}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the written bytes. The slice aliases the writer's buffer until
// the next write or Reset.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Finish returns the written bytes and detaches them from the writer.
func (w *Writer) Finish() []byte {
	b := w.buf
	w.buf = nil
	return b
}

// Reset discards the written bytes, retaining the buffer for reuse.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}
