// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

// OwningRow is a self-contained row. Its values live in a private slice and
// the payloads of its String and Any values live in a private byte buffer that
// the values reference. The zero OwningRow is the null row.
type OwningRow struct {
	values  []Value
	payload []byte
}

// Row returns a borrowed view of the owning row, valid as long as the owning
// row is reachable.
func (r OwningRow) Row() Row {
	return Row{values: r.values}
}

// IsNull returns true for the null row.
func (r OwningRow) IsNull() bool {
	return r.values == nil
}

// Len returns the number of values in the row.
func (r OwningRow) Len() int {
	return len(r.values)
}

// At returns the i'th value.
func (r OwningRow) At(i int) Value {
	return r.values[i]
}

// String implements fmt.Stringer.
func (r OwningRow) String() string {
	return r.Row().String()
}

// MakeOwningRow deep-copies a row into a new owning row.
func MakeOwningRow(r Row) OwningRow {
	if r.IsNull() {
		return OwningRow{}
	}
	size := 0
	for _, v := range r.values {
		if v.Type.IsStringLike() {
			size += len(v.data)
		}
	}
	b := OwningRowBuilder{
		values:  make([]Value, 0, len(r.values)),
		offsets: make([]int, 0, len(r.values)),
		payload: make([]byte, 0, size),
	}
	for _, v := range r.values {
		b.AddValue(v)
	}
	return b.Finish()
}

// OwningRowBuilder accumulates values into a new OwningRow, copying string
// payloads into a buffer that grows as needed.
type OwningRowBuilder struct {
	values []Value
	// offsets[i] is the payload offset of values[i] if it is string-like, and
	// -1 otherwise.
	offsets []int
	payload []byte
}

// NewOwningRowBuilder returns a builder sized for the given number of values.
func NewOwningRowBuilder(initialValueCapacity int) *OwningRowBuilder {
	return &OwningRowBuilder{
		values:  make([]Value, 0, initialValueCapacity),
		offsets: make([]int, 0, initialValueCapacity),
	}
}

// AddValue appends a copy of v. The payload of string-like values is copied
// into the builder's buffer.
func (b *OwningRowBuilder) AddValue(v Value) {
	if b.values == nil {
		b.values = []Value{}
	}
	if !v.Type.IsStringLike() {
		v.data = nil
		b.values = append(b.values, v)
		b.offsets = append(b.offsets, -1)
		return
	}
	off := len(b.payload)
	if need := off + len(v.data); need > cap(b.payload) {
		b.growPayload(need)
	}
	b.payload = append(b.payload, v.data...)
	v.data = b.payload[off:len(b.payload):len(b.payload)]
	b.values = append(b.values, v)
	b.offsets = append(b.offsets, off)
}

// growPayload reallocates the payload buffer and re-points every existing
// string-like value into the new buffer.
func (b *OwningRowBuilder) growPayload(need int) {
	newCap := max(2*cap(b.payload), need, 64)
	grown := make([]byte, len(b.payload), newCap)
	copy(grown, b.payload)
	b.payload = grown
	for i := range b.values {
		if off := b.offsets[i]; off >= 0 {
			end := off + len(b.values[i].data)
			b.values[i].data = b.payload[off:end:end]
		}
	}
}

// Len returns the number of values added so far.
func (b *OwningRowBuilder) Len() int {
	return len(b.values)
}

// Finish returns the built row and resets the builder. A builder to which no
// value was added produces an empty, non-null row.
func (b *OwningRowBuilder) Finish() OwningRow {
	values := b.values
	if values == nil {
		values = []Value{}
	}
	r := OwningRow{values: values, payload: b.payload}
	*b = OwningRowBuilder{}
	return r
}
