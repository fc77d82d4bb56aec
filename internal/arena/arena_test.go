// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolAllocationsDoNotMove(t *testing.T) {
	p := New[byte](64)
	var allocs [][]byte
	for i := 0; i < 100; i++ {
		b := p.Alloc(1 + i%15)
		for j := range b {
			b[j] = byte(i)
		}
		allocs = append(allocs, b)
	}
	for i, b := range allocs {
		require.Equal(t, cap(b), len(b))
		for _, c := range b {
			require.Equal(t, byte(i), c, "allocation %d was clobbered", i)
		}
	}
	require.Greater(t, p.Capacity(), 64)
}

func TestPoolLargeAllocation(t *testing.T) {
	p := New[int](64)
	small := p.Alloc(8)
	large := p.Alloc(1000)
	require.Len(t, large, 1000)
	require.Equal(t, 64+1000, p.Capacity())
	require.Equal(t, 1008, p.Size())

	// Appending to a pool allocation must not clobber its neighbour.
	small = append(small, 1)
	require.Len(t, small, 9)
}

func TestPoolReset(t *testing.T) {
	p := New[byte](32)
	for i := 0; i < 10; i++ {
		p.Alloc(7)
	}
	p.Alloc(100)
	capBefore := p.Capacity()
	p.Reset()
	require.Equal(t, 0, p.Size())
	require.Equal(t, capBefore-100, p.Capacity())

	b := p.Alloc(7)
	require.Equal(t, make([]byte, 7), b)
	require.Equal(t, capBefore-100, p.Capacity())

	p.Purge()
	require.Equal(t, 0, p.Capacity())
	require.Len(t, p.Alloc(0), 0)
}
