// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package wire

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/chunkwire/row"
	"github.com/cockroachdb/errors"
)

// ErrTruncated is returned when the input ends in the middle of an item.
var ErrTruncated = base.MarkCorruptionError(errors.New("wire: truncated input"))

// decoder is a cursor over an encoded buffer.
type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) remaining() int {
	return len(d.data) - d.pos
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.data[d.pos:])
	if n <= 0 {
		if n == 0 {
			return 0, ErrTruncated
		}
		return 0, base.CorruptionErrorf("wire: varint overflow at offset %d", errors.Safe(d.pos))
	}
	d.pos += n
	return v, nil
}

func (d *decoder) varint() (int64, error) {
	v, n := binary.Varint(d.data[d.pos:])
	if n <= 0 {
		if n == 0 {
			return 0, ErrTruncated
		}
		return 0, base.CorruptionErrorf("wire: varint overflow at offset %d", errors.Safe(d.pos))
	}
	d.pos += n
	return v, nil
}

func (d *decoder) bytes(n uint64) ([]byte, error) {
	if n > uint64(d.remaining()) {
		return nil, base.CorruptionErrorf("wire: length %d at offset %d exceeds the %d remaining bytes",
			errors.Safe(n), errors.Safe(d.pos), errors.Safe(d.remaining()))
	}
	b := d.data[d.pos : d.pos+int(n) : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}

func (d *decoder) message() ([]byte, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	return d.bytes(n)
}

func (d *decoder) value() (row.Value, error) {
	start := d.pos
	id, err := d.uvarint()
	if err != nil {
		return row.Value{}, err
	}
	if id > math.MaxUint16 {
		return row.Value{}, base.CorruptionErrorf("wire: column id %d at offset %d is out of range",
			errors.Safe(id), errors.Safe(start))
	}
	typ, err := d.uvarint()
	if err != nil {
		return row.Value{}, err
	}
	t := row.ValueType(typ)
	if typ > math.MaxUint8 || !t.IsValid() {
		return row.Value{}, base.CorruptionErrorf("wire: invalid value type %d at offset %d",
			errors.Safe(typ), errors.Safe(start))
	}
	switch t {
	case row.TypeInt64:
		v, err := d.varint()
		return row.Int64Value(v, uint16(id)), err
	case row.TypeUint64:
		v, err := d.uvarint()
		return row.Uint64Value(v, uint16(id)), err
	case row.TypeDouble:
		b, err := d.bytes(8)
		if err != nil {
			return row.Value{}, err
		}
		return row.DoubleValue(math.Float64frombits(binary.LittleEndian.Uint64(b)), uint16(id)), nil
	case row.TypeBoolean:
		b, err := d.bytes(1)
		if err != nil {
			return row.Value{}, err
		}
		if b[0] > 1 {
			return row.Value{}, base.CorruptionErrorf("wire: invalid boolean %d at offset %d",
				errors.Safe(b[0]), errors.Safe(start))
		}
		return row.BooleanValue(b[0] == 1, uint16(id)), nil
	case row.TypeString, row.TypeAny:
		b, err := d.message()
		if err != nil {
			return row.Value{}, err
		}
		if t == row.TypeString {
			return row.StringValue(b, uint16(id)), nil
		}
		return row.AnyValue(b, uint16(id)), nil
	}
	return row.SentinelValue(t, uint16(id)), nil
}

// row decodes a standalone row occupying the rest of the decoder's input. See
// Reader.ReadUnversionedRow for the meaning of buf and idMapping.
func (d *decoder) row(buf *row.Buffer, idMapping row.IDMapping) (row.Row, error) {
	if d.remaining() == 0 {
		return row.NullRow, nil
	}
	version, err := d.uvarint()
	if err != nil {
		return row.Row{}, err
	}
	if version != rowFormatVersion {
		return row.Row{}, base.CorruptionErrorf("wire: unsupported row format version %d", errors.Safe(version))
	}
	count, err := d.uvarint()
	if err != nil {
		return row.Row{}, err
	}
	if err := row.ValidateRowValueCount(int(min(count, math.MaxInt32))); err != nil {
		return row.Row{}, base.MarkCorruptionError(err)
	}
	// Every value takes at least two bytes.
	if count*2 > uint64(d.remaining()) {
		return row.Row{}, base.CorruptionErrorf("wire: %d values cannot fit in %d bytes",
			errors.Safe(count), errors.Safe(d.remaining()))
	}
	var r row.Row
	if buf != nil {
		r = buf.AllocateRow(int(count))
	} else {
		r = row.MakeRow(make([]row.Value, 0, count)...)
	}
	for i := uint64(0); i < count; i++ {
		v, err := d.value()
		if err != nil {
			return row.Row{}, err
		}
		if idMapping != nil {
			id := idMapping.Map(v.ID)
			if id < 0 {
				continue
			}
			v = v.WithID(uint16(id))
		}
		if buf != nil {
			v = buf.Capture(v)
		}
		r.Push(v)
	}
	if d.remaining() != 0 {
		return row.Row{}, base.CorruptionErrorf("wire: %d trailing bytes after row", errors.Safe(d.remaining()))
	}
	return r, nil
}

// DecodeRow decodes a row produced by EncodeRow. String and Any payloads of
// the result alias b.
func DecodeRow(b []byte) (row.Row, error) {
	d := decoder{data: b}
	return d.row(nil, nil)
}

// DecodeRowInto decodes a row produced by EncodeRow into buf, translating
// column ids through idMapping when it is non-nil. Values whose id maps to a
// negative id are dropped.
func DecodeRowInto(b []byte, buf *row.Buffer, idMapping row.IDMapping) (row.Row, error) {
	d := decoder{data: b}
	return d.row(buf, idMapping)
}

// DecodeValue decodes a single value produced by AppendValue.
func DecodeValue(b []byte) (row.Value, error) {
	d := decoder{data: b}
	v, err := d.value()
	if err != nil {
		return row.Value{}, err
	}
	if d.remaining() != 0 {
		return row.Value{}, base.CorruptionErrorf("wire: %d trailing bytes after value", errors.Safe(d.remaining()))
	}
	return v, nil
}

// Reader reads a stream produced by Writer. Reader is a single-pass cursor;
// every decode failure is a corruption error and leaves the reader in an
// unspecified position.
type Reader struct {
	d   decoder
	buf *row.Buffer
}

// NewReader returns a reader over data. When buf is non-nil, decoded rows and
// payloads are captured into it; otherwise they alias data.
func NewReader(data []byte, buf *row.Buffer) *Reader {
	return &Reader{d: decoder{data: data}, buf: buf}
}

// IsFinished returns true once all input has been consumed.
func (r *Reader) IsFinished() bool {
	return r.d.remaining() == 0
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.d.pos
}

// ReadCommand reads a command tag.
func (r *Reader) ReadCommand() (Command, error) {
	v, err := r.d.uvarint()
	if err != nil {
		return 0, err
	}
	c := Command(v)
	if !c.IsValid() {
		return 0, base.CorruptionErrorf("wire: unknown command %d", errors.Safe(v))
	}
	return c, nil
}

// ReadInt64 reads a zigzag-encoded integer.
func (r *Reader) ReadInt64() (int64, error) {
	return r.d.varint()
}

// ReadUint64 reads a varint.
func (r *Reader) ReadUint64() (uint64, error) {
	return r.d.uvarint()
}

// ReadMessage reads a length-prefixed byte string. The result aliases the
// input.
func (r *Reader) ReadMessage() ([]byte, error) {
	return r.d.message()
}

// ReadUnversionedRow reads a length-prefixed row. When idMapping is non-nil,
// every value's id is translated through it and values mapping to a negative
// id are skipped.
func (r *Reader) ReadUnversionedRow(idMapping row.IDMapping) (row.Row, error) {
	b, err := r.d.message()
	if err != nil {
		return row.Row{}, err
	}
	d := decoder{data: b}
	return d.row(r.buf, idMapping)
}

// ReadUnversionedRowset reads a row count followed by that many rows.
func (r *Reader) ReadUnversionedRowset(idMapping row.IDMapping) ([]row.Row, error) {
	count, err := r.d.uvarint()
	if err != nil {
		return nil, err
	}
	if err := row.ValidateRowCount(int(min(count, math.MaxInt32))); err != nil {
		return nil, base.MarkCorruptionError(err)
	}
	// Every row takes at least its length prefix.
	if count > uint64(r.d.remaining()) {
		return nil, base.CorruptionErrorf("wire: %d rows cannot fit in %d bytes",
			errors.Safe(count), errors.Safe(r.d.remaining()))
	}
	rows := make([]row.Row, 0, count)
	for i := uint64(0); i < count; i++ {
		rw, err := r.ReadUnversionedRow(idMapping)
		if err != nil {
			return nil, errors.Wrapf(err, "reading row %d of %d", errors.Safe(i), errors.Safe(count))
		}
		rows = append(rows, rw)
	}
	return rows, nil
}
