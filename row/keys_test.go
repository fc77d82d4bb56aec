// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParseRow(t testing.TB, s string) OwningRow {
	t.Helper()
	r, err := ParseRow(s)
	require.NoError(t, err)
	return r
}

func TestKeyHelpers(t *testing.T) {
	k := mustParseRow(t, `[int64:1 string:"b"]`)
	less := mustParseRow(t, `[int64:1 string:"a" int64:100]`)
	greater := mustParseRow(t, `[int64:1 string:"b" int64:-100]`)

	succ := KeySuccessor(k.Row())
	require.Equal(t, `[0#int64:1 1#string:"b" 2#min]`, succ.String())
	require.Equal(t, +1, CompareKeys(succ.Row(), k.Row()))
	// Every proper extension of k sorts after the successor.
	require.Equal(t, -1, CompareKeys(succ.Row(), greater.Row()))

	prefixSucc := KeyPrefixSuccessor(k.Row(), 1)
	require.Equal(t, `[0#int64:1 1#max]`, prefixSucc.String())
	for _, r := range []OwningRow{k, less, greater} {
		require.Equal(t, +1, CompareKeys(prefixSucc.Row(), r.Row()))
	}
	require.Equal(t, -1, CompareKeys(prefixSucc.Row(), mustParseRow(t, "[int64:2]").Row()))

	require.Equal(t, -1, CompareKeys(MinKey().Row(), less.Row()))
	require.Equal(t, +1, CompareKeys(MaxKey().Row(), greater.Row()))
	require.Equal(t, -1, CompareKeys(EmptyKey().Row(), MinKey().Row()))
	require.False(t, EmptyKey().IsNull())

	wide, err := WidenKey(k.Row(), 4)
	require.NoError(t, err)
	require.Equal(t, `[0#int64:1 1#string:"b" 2#null 3#null]`, wide.String())
	_, err = WidenKey(k.Row(), 1)
	require.Error(t, err)

	require.Equal(t, less.String(), ChooseMinKey(k, less).String())
	require.Equal(t, less.String(), ChooseMinKey(less, k).String())
	require.Equal(t, k.String(), ChooseMaxKey(less, k).String())
	require.Equal(t, k.String(), ChooseMinKey(OwningRow{}, k).String())
	require.Equal(t, k.String(), ChooseMaxKey(k, OwningRow{}).String())
}
