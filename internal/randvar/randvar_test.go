// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package randvar

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestParse(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	v, err := Parse("64", rng)
	require.NoError(t, err)
	require.Equal(t, uint64(64), v.Uint64())
	require.Equal(t, uint64(64), v.Max())

	v, err = Parse("uniform:10-20", rng)
	require.NoError(t, err)
	require.Equal(t, uint64(20), v.Max())
	seen := map[uint64]bool{}
	for i := 0; i < 1000; i++ {
		x := v.Uint64()
		require.GreaterOrEqual(t, x, uint64(10))
		require.LessOrEqual(t, x, uint64(20))
		seen[x] = true
	}
	require.Len(t, seen, 11)

	for _, spec := range []string{"", "big", "uniform:10", "uniform:a-2", "uniform:5-1", "zipf:1-2"} {
		_, err := Parse(spec, rng)
		require.Error(t, err, "%q", spec)
	}
}
