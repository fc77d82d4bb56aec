// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package row implements the unversioned row model: typed values, borrowed
// rows backed by a Buffer, self-contained owning rows, and the ordering,
// hashing and validation contracts defined over them.
//
// A Row is a handle. Copying a Row does not copy its values, and a Row
// allocated from a Buffer must not be used after the Buffer is cleared. None of
// the types in this package are safe for concurrent mutation.
package row

import (
	"github.com/cockroachdb/chunkwire/internal/invariants"
	"github.com/cockroachdb/errors"
)

// Row is a borrowed, ordered sequence of values. The zero Row is the null row,
// which is distinct from a present row holding no values.
type Row struct {
	values []Value
}

// NullRow is the logically absent row.
var NullRow = Row{}

// MakeRow returns a present row referencing values. The slice is not copied.
func MakeRow(values ...Value) Row {
	if values == nil {
		values = []Value{}
	}
	return Row{values: values}
}

// IsNull returns true for the null row.
func (r Row) IsNull() bool {
	return r.values == nil
}

// Len returns the number of values in the row. The null row has no values.
func (r Row) Len() int {
	return len(r.values)
}

// Capacity returns the number of values the row can hold without
// reallocation.
func (r Row) Capacity() int {
	return cap(r.values)
}

// At returns the i'th value.
func (r Row) At(i int) Value {
	invariants.CheckBounds(i, len(r.values))
	return r.values[i]
}

// Set overwrites the i'th value in place.
func (r Row) Set(i int, v Value) {
	r.values[i] = v
}

// Values returns the row's values. The returned slice aliases the row.
func (r Row) Values() []Value {
	return r.values
}

// Push appends a value to a row that has spare capacity. Rows obtained from a
// Buffer have a fixed capacity; exceeding it is a programming error.
func (r *Row) Push(v Value) {
	if r.values == nil || len(r.values) == cap(r.values) {
		panic(errors.AssertionFailedf("row capacity %d exceeded", errors.Safe(cap(r.values))))
	}
	r.values = append(r.values, v)
}

// Truncate shrinks the row to its first n values.
func (r *Row) Truncate(n int) {
	if n < 0 || n > len(r.values) {
		panic(errors.AssertionFailedf("cannot truncate row of %d values to %d",
			errors.Safe(len(r.values)), errors.Safe(n)))
	}
	r.values = r.values[:n]
}

// Prefix returns a view of the first min(n, Len()) values.
func (r Row) Prefix(n int) Row {
	if r.IsNull() {
		return r
	}
	return Row{values: r.values[:min(n, len(r.values))]}
}

// Equal returns true if both rows are null, or both are present and hold equal
// values.
func (r Row) Equal(o Row) bool {
	if r.IsNull() || o.IsNull() {
		return r.IsNull() == o.IsNull()
	}
	if len(r.values) != len(o.values) {
		return false
	}
	for i := range r.values {
		if !r.values[i].Equal(o.values[i]) {
			return false
		}
	}
	return true
}

// DataWeight returns the row's data weight: one plus the weight of every
// value. The null row weighs nothing.
func (r Row) DataWeight() int64 {
	if r.IsNull() {
		return 0
	}
	w := int64(1)
	for _, v := range r.values {
		w += GetDataWeight(v)
	}
	return w
}

// ByteSize returns an upper bound on the row's encoded size.
func (r Row) ByteSize() int {
	if r.IsNull() {
		return 0
	}
	n := 2 * maxVarUint32Size
	for _, v := range r.values {
		n += GetByteSize(v)
	}
	return n
}
