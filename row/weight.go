// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

import "encoding/binary"

const (
	maxVarUint32Size = 5
	maxVarUint64Size = binary.MaxVarintLen64
)

// GetDataWeight returns the logical size of a value used for quota and
// backpressure accounting: 0 for sentinels, 8 for numbers, 1 for booleans and
// the payload length for strings and composites.
func GetDataWeight(v Value) int64 {
	switch v.Type {
	case TypeInt64, TypeUint64, TypeDouble:
		return 8
	case TypeBoolean:
		return 1
	case TypeString, TypeAny:
		return int64(len(v.data))
	}
	return 0
}

// GetByteSize returns an upper bound on the encoded size of the value.
func GetByteSize(v Value) int {
	n := 2 * maxVarUint32Size
	switch v.Type {
	case TypeInt64, TypeUint64:
		n += maxVarUint64Size
	case TypeDouble:
		n += 8
	case TypeBoolean:
		n++
	case TypeString, TypeAny:
		n += maxVarUint32Size + len(v.data)
	}
	return n
}
