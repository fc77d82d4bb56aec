// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatRoundTrip(t *testing.T) {
	for _, s := range []string{
		`<null>`,
		`[]`,
		`[0#int64:-9223372036854775808 1#uint64:18446744073709551615 2#double:-1.5e-07]`,
		`[0#boolean:true 1#boolean:false 2#null 3#min 4#max 5#bottom]`,
		`[0#string:"with space" 1#any:"{a=\"b\"}" 2#string:""]`,
		`[7#int64:5! 3#string:"x"!]`,
	} {
		r, err := ParseRow(s)
		require.NoError(t, err, s)
		require.Equal(t, s, r.String())
	}
}

func TestParseDefaults(t *testing.T) {
	r, err := ParseRow(`int64:1 string:"a" 9#null double:2`)
	require.NoError(t, err)
	require.Equal(t, `[0#int64:1 1#string:"a" 9#null 3#double:2]`, r.String())

	v, err := ParseValue("4#uint64:12")
	require.NoError(t, err)
	require.Equal(t, Uint64Value(12, 4), v)

	for _, bad := range []string{
		"int32:1",
		"int64",
		"int64:x",
		`string:abc`,
		"70000#null",
		"null extra",
		"boolean:maybe",
	} {
		_, err := ParseValue(bad)
		require.Error(t, err, bad)
	}
	_, err = ParseRow("[int64:1")
	require.Error(t, err)
}
