// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/redact"
)

// ValueType is the type tag of a Value. The numeric values are part of the
// wire format and of the cross-type ordering: values of differing types
// compare by their type tag.
type ValueType uint8

const (
	TypeMin       ValueType = 0x00
	TypeTheBottom ValueType = 0x01
	TypeNull      ValueType = 0x02
	TypeInt64     ValueType = 0x03
	TypeUint64    ValueType = 0x04
	TypeDouble    ValueType = 0x05
	TypeBoolean   ValueType = 0x06
	TypeString    ValueType = 0x10
	TypeAny       ValueType = 0x11
	TypeMax       ValueType = 0xef
)

var typeNames = map[ValueType]string{
	TypeMin:       "min",
	TypeTheBottom: "bottom",
	TypeNull:      "null",
	TypeInt64:     "int64",
	TypeUint64:    "uint64",
	TypeDouble:    "double",
	TypeBoolean:   "boolean",
	TypeString:    "string",
	TypeAny:       "any",
	TypeMax:       "max",
}

// String implements fmt.Stringer.
func (t ValueType) String() string {
	return redact.StringWithoutMarkers(t)
}

// SafeFormat implements redact.SafeFormatter.
func (t ValueType) SafeFormat(w redact.SafePrinter, _ rune) {
	if name, ok := typeNames[t]; ok {
		w.Print(redact.SafeString(name))
		return
	}
	w.Printf("type(%#x)", redact.Safe(uint8(t)))
}

// IsValid returns true for the known type tags.
func (t ValueType) IsValid() bool {
	_, ok := typeNames[t]
	return ok
}

// IsSentinel returns true for the types that carry no payload and only have
// ordering meaning.
func (t ValueType) IsSentinel() bool {
	switch t {
	case TypeMin, TypeTheBottom, TypeNull, TypeMax:
		return true
	}
	return false
}

// IsStringLike returns true for the types whose payload is a byte string.
func (t ValueType) IsStringLike() bool {
	return t == TypeString || t == TypeAny
}

// IsKeyType returns true for the types allowed in key columns.
func (t ValueType) IsKeyType() bool {
	switch t {
	case TypeNull, TypeInt64, TypeUint64, TypeDouble, TypeBoolean, TypeString:
		return true
	}
	return false
}

// IsDataType returns true for the types a stored cell may have.
func (t ValueType) IsDataType() bool {
	return t == TypeAny || t.IsKeyType()
}

// Value is a single typed cell. Scalars are held inline; String and Any values
// reference a byte slice owned by whoever built the value (a Buffer, an
// OwningRow or a decode input).
type Value struct {
	ID        uint16
	Type      ValueType
	Aggregate bool
	scalar    uint64
	data      []byte
}

// NullValue returns a null value for the column.
func NullValue(id uint16) Value {
	return Value{ID: id, Type: TypeNull}
}

// SentinelValue returns a payload-free value of the given sentinel type.
func SentinelValue(t ValueType, id uint16) Value {
	return Value{ID: id, Type: t}
}

// Int64Value returns an Int64 value.
func Int64Value(v int64, id uint16) Value {
	return Value{ID: id, Type: TypeInt64, scalar: uint64(v)}
}

// Uint64Value returns an Uint64 value.
func Uint64Value(v uint64, id uint16) Value {
	return Value{ID: id, Type: TypeUint64, scalar: v}
}

// DoubleValue returns a Double value.
func DoubleValue(v float64, id uint16) Value {
	return Value{ID: id, Type: TypeDouble, scalar: math.Float64bits(v)}
}

// BooleanValue returns a Boolean value.
func BooleanValue(v bool, id uint16) Value {
	var s uint64
	if v {
		s = 1
	}
	return Value{ID: id, Type: TypeBoolean, scalar: s}
}

// StringValue returns a String value referencing b. The bytes are not copied.
func StringValue(b []byte, id uint16) Value {
	return Value{ID: id, Type: TypeString, data: b}
}

// AnyValue returns an Any value referencing the encoded composite b. The bytes
// are not copied.
func AnyValue(b []byte, id uint16) Value {
	return Value{ID: id, Type: TypeAny, data: b}
}

// Int64 returns the payload of an Int64 value.
func (v Value) Int64() int64 { return int64(v.scalar) }

// Uint64 returns the payload of an Uint64 value.
func (v Value) Uint64() uint64 { return v.scalar }

// Double returns the payload of a Double value.
func (v Value) Double() float64 { return math.Float64frombits(v.scalar) }

// Boolean returns the payload of a Boolean value.
func (v Value) Boolean() bool { return v.scalar != 0 }

// Bytes returns the payload of a String or Any value.
func (v Value) Bytes() []byte { return v.data }

// Len returns the payload length of a String or Any value, and 0 otherwise.
func (v Value) Len() int {
	if v.Type.IsStringLike() {
		return len(v.data)
	}
	return 0
}

// WithID returns a copy of the value with a different column id.
func (v Value) WithID(id uint16) Value {
	v.ID = id
	return v
}

// Equal returns true if the values have the same id, type, aggregate flag and
// payload.
func (v Value) Equal(o Value) bool {
	if v.ID != o.ID || v.Aggregate != o.Aggregate {
		return false
	}
	return v.SamePayload(o)
}

// SamePayload returns true if the values have the same type and payload,
// ignoring id and flags.
func (v Value) SamePayload(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch {
	case v.Type.IsStringLike():
		return string(v.data) == string(o.data)
	case v.Type.IsSentinel():
		return true
	default:
		return v.scalar == o.scalar
	}
}

// appendPayload appends the canonical little-endian payload of the value,
// as used by hashing. Sentinels contribute no bytes.
func appendPayload(dst []byte, v Value) []byte {
	switch v.Type {
	case TypeInt64, TypeUint64, TypeDouble:
		return binary.LittleEndian.AppendUint64(dst, v.scalar)
	case TypeBoolean:
		return append(dst, byte(v.scalar))
	case TypeString, TypeAny:
		return append(dst, v.data...)
	}
	return dst
}
