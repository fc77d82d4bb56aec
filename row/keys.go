// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

import "github.com/cockroachdb/errors"

// MinKey returns the key that orders before every other key.
func MinKey() OwningRow {
	return MakeOwningRow(MakeRow(SentinelValue(TypeMin, 0)))
}

// MaxKey returns the key that orders after every other key.
func MaxKey() OwningRow {
	return MakeOwningRow(MakeRow(SentinelValue(TypeMax, 0)))
}

// EmptyKey returns the key with no components. It orders before every
// non-empty key.
func EmptyKey() OwningRow {
	return MakeOwningRow(MakeRow())
}

func keySuccessor(key Row, prefixLength int, sentinel ValueType) OwningRow {
	n := min(prefixLength, key.Len())
	b := NewOwningRowBuilder(n + 1)
	for i := 0; i < n; i++ {
		b.AddValue(key.At(i))
	}
	b.AddValue(SentinelValue(sentinel, uint16(n)))
	return b.Finish()
}

// KeySuccessor returns the smallest key that orders strictly after key: the
// key followed by a Min sentinel.
func KeySuccessor(key Row) OwningRow {
	return keySuccessor(key, key.Len(), TypeMin)
}

// KeyPrefixSuccessor returns the smallest key that orders after every key
// sharing the first prefixLength components of key: the prefix followed by a
// Max sentinel.
func KeyPrefixSuccessor(key Row, prefixLength int) OwningRow {
	return keySuccessor(key, prefixLength, TypeMax)
}

// WidenKey pads key with nulls up to keyColumnCount components.
func WidenKey(key Row, keyColumnCount int) (OwningRow, error) {
	if key.Len() > keyColumnCount {
		return OwningRow{}, errors.Newf("cannot widen key with %d components to %d",
			errors.Safe(key.Len()), errors.Safe(keyColumnCount))
	}
	b := NewOwningRowBuilder(keyColumnCount)
	for _, v := range key.values {
		b.AddValue(v)
	}
	for i := key.Len(); i < keyColumnCount; i++ {
		b.AddValue(NullValue(uint16(i)))
	}
	return b.Finish(), nil
}

// ChooseMinKey returns the smaller of two keys. A null key loses to any
// present key.
func ChooseMinKey(a, b OwningRow) OwningRow {
	switch {
	case a.IsNull():
		return b
	case b.IsNull():
		return a
	case CompareKeys(a.Row(), b.Row()) <= 0:
		return a
	}
	return b
}

// ChooseMaxKey returns the larger of two keys. A null key loses to any
// present key.
func ChooseMaxKey(a, b OwningRow) OwningRow {
	switch {
	case a.IsNull():
		return b
	case b.IsNull():
		return a
	case CompareKeys(a.Row(), b.Row()) >= 0:
		return a
	}
	return b
}
