// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package bitflip diagnoses checksum mismatches caused by a single flipped
// bit.
package bitflip

// scanLimit bounds the number of bytes probed.
const scanLimit = 40 << 10

// Find flips every bit of data in turn, looking for one whose inversion makes
// checksum(data) equal to want. data is restored before returning.
func Find(data []byte, checksum func([]byte) uint32, want uint32) (found bool, index int, bit int) {
	for i := 0; i < min(len(data), scanLimit); i++ {
		for b := 0; b < 8; b++ {
			data[i] ^= 1 << b
			got := checksum(data)
			data[i] ^= 1 << b
			if got == want {
				return true, i, b
			}
		}
	}
	return false, 0, 0
}
