// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

import (
	"bytes"
	"cmp"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
)

// CompareValues returns -1, 0 or +1 ordering a before, equal to or after b.
//
// Values of differing types compare by type tag, which places Min and the
// bottom sentinel before every value and Max after every value. Sentinels of
// the same type are equal. Composite (Any) values cannot be ordered against
// anything but sentinels; doing so returns an error marked with
// base.ErrIncomparableType.
func CompareValues(a, b Value) (int, error) {
	if a.Type == TypeAny || b.Type == TypeAny {
		if !a.Type.IsSentinel() && !b.Type.IsSentinel() {
			return 0, errors.Mark(
				errors.Newf("cannot compare values of types %s and %s; only scalar types are allowed for key columns",
					a.Type, b.Type),
				base.ErrIncomparableType)
		}
	}
	if a.Type != b.Type {
		return cmp.Compare(a.Type, b.Type), nil
	}
	switch a.Type {
	case TypeInt64:
		return cmp.Compare(a.Int64(), b.Int64()), nil
	case TypeUint64:
		return cmp.Compare(a.Uint64(), b.Uint64()), nil
	case TypeDouble:
		x, y := a.Double(), b.Double()
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return +1, nil
		}
		return 0, nil
	case TypeBoolean:
		return cmp.Compare(a.scalar, b.scalar), nil
	case TypeString:
		return bytes.Compare(a.data, b.data), nil
	}
	// Sentinels of the same type.
	return 0, nil
}

// CompareRows compares the first prefixLength values of two rows
// lexicographically. When one row is a prefix of the other (within
// prefixLength) the shorter row orders first. The null row orders before every
// present row and is equal only to itself.
func CompareRows(lhs, rhs Row, prefixLength int) (int, error) {
	switch {
	case lhs.IsNull() && rhs.IsNull():
		return 0, nil
	case rhs.IsNull():
		return +1, nil
	case lhs.IsNull():
		return -1, nil
	}
	lhsLen := min(lhs.Len(), prefixLength)
	rhsLen := min(rhs.Len(), prefixLength)
	for i := 0; i < min(lhsLen, rhsLen); i++ {
		c, err := CompareValues(lhs.values[i], rhs.values[i])
		if err != nil || c != 0 {
			return c, err
		}
	}
	return cmp.Compare(lhsLen, rhsLen), nil
}

// CompareKeys compares two keys over all of their values. Keys never hold
// composite values, so a comparison failure is an assertion failure.
func CompareKeys(a, b Row) int {
	c, err := CompareRows(a, b, max(a.Len(), b.Len()))
	if err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "comparing keys"))
	}
	return c
}
