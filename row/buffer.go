// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

import (
	"unsafe"

	"github.com/cockroachdb/chunkwire/internal/arena"
)

const valueSize = int(unsafe.Sizeof(Value{}))

// Buffer owns the memory of a batch of rows: the value arrays of the rows it
// allocates and the payloads it captures. Everything obtained from a Buffer
// stays valid until Clear or Purge.
type Buffer struct {
	values   *arena.Pool[Value]
	payloads *arena.Pool[byte]
}

// NewBuffer returns a buffer whose pools grow in chunks of the given number of
// payload bytes; zero selects the default.
func NewBuffer(chunkSize int) *Buffer {
	if chunkSize <= 0 {
		chunkSize = arena.DefaultChunkSize
	}
	return &Buffer{
		values:   arena.New[Value](max(chunkSize/32, 64)),
		payloads: arena.New[byte](chunkSize),
	}
}

// AllocateRow returns an empty present row with room for capacity values.
func (b *Buffer) AllocateRow(capacity int) Row {
	return Row{values: b.values.Alloc(capacity)[:0]}
}

// Capture returns a copy of v whose payload, if any, lives in the buffer.
func (b *Buffer) Capture(v Value) Value {
	if !v.Type.IsStringLike() {
		return v
	}
	data := b.payloads.Alloc(len(v.data))
	copy(data, v.data)
	v.data = data
	return v
}

// CaptureRow deep-copies a row into the buffer.
func (b *Buffer) CaptureRow(r Row) Row {
	if r.IsNull() {
		return NullRow
	}
	res := b.AllocateRow(r.Len())
	for _, v := range r.values {
		res.values = append(res.values, b.Capture(v))
	}
	return res
}

// Size returns the number of bytes handed out since the last Clear.
func (b *Buffer) Size() int {
	return b.payloads.Size() + b.values.Size()*valueSize
}

// Capacity returns the number of bytes held by the buffer.
func (b *Buffer) Capacity() int {
	return b.payloads.Capacity() + b.values.Capacity()*valueSize
}

// Clear releases every row and payload for reuse while retaining the regular
// chunks.
func (b *Buffer) Clear() {
	b.values.Reset()
	b.payloads.Reset()
}

// Purge releases all memory.
func (b *Buffer) Purge() {
	b.values.Purge()
	b.payloads.Purge()
}
