// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	farm "github.com/dgryski/go-farm"
)

// Hash returns a fast in-process hash of the first keyColumnCount values of
// the row. It depends only on value types and payloads, never on column ids,
// flags or where the payload bytes live. Hash values may change between
// releases and must not be persisted; use Fingerprint for that.
func Hash(r Row, keyColumnCount int) uint64 {
	var d xxhash.Digest
	d.Reset()
	var scratch [9]byte
	for _, v := range r.Prefix(keyColumnCount).values {
		scratch[0] = byte(v.Type)
		switch v.Type {
		case TypeInt64, TypeUint64, TypeDouble:
			binary.LittleEndian.PutUint64(scratch[1:], v.scalar)
			_, _ = d.Write(scratch[:9])
		case TypeBoolean:
			scratch[1] = byte(v.scalar)
			_, _ = d.Write(scratch[:2])
		case TypeString, TypeAny:
			binary.LittleEndian.PutUint32(scratch[1:], uint32(len(v.data)))
			_, _ = d.Write(scratch[:5])
			_, _ = d.Write(v.data)
		default:
			_, _ = d.Write(scratch[:1])
		}
	}
	return d.Sum64()
}

// HashValue returns Hash of a single-value row.
func HashValue(v Value) uint64 {
	return Hash(MakeRow(v), 1)
}

const fingerprintSeed = 0xdeadc0de

// FingerprintValue returns the stable fingerprint of a value: 0 for sentinels,
// and otherwise FarmHash Fingerprint64 of the little-endian payload (8 bytes
// for numbers, 1 byte for booleans, the raw bytes for strings and composites).
// The function is fixed forever.
func FingerprintValue(v Value) uint64 {
	if v.Type.IsSentinel() {
		return 0
	}
	var scratch [8]byte
	return farm.Fingerprint64(appendPayload(scratch[:0], v))
}

// Fingerprint returns the stable fingerprint of the first keyColumnCount
// values of the row. Starting from 0xdeadc0de, each value fingerprint is
// folded in as Fingerprint64(le64(acc) ++ le64(value)), and the value count
// is finally XORed in. Unlike Hash, fingerprints may be persisted and shared
// across processes and versions.
func Fingerprint(r Row, keyColumnCount int) uint64 {
	values := r.Prefix(keyColumnCount).values
	acc := uint64(fingerprintSeed)
	var buf [16]byte
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[:8], acc)
		binary.LittleEndian.PutUint64(buf[8:], FingerprintValue(v))
		acc = farm.Fingerprint64(buf[:])
	}
	return acc ^ uint64(len(values))
}
