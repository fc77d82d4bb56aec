// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/crlib/crstrings"
	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestCompareDataDriven(t *testing.T) {
	datadriven.RunTest(t, "testdata/compare", func(t *testing.T, td *datadriven.TestData) string {
		var rows []Row
		for l := range crstrings.LinesSeq(td.Input) {
			r, err := ParseRow(l)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			rows = append(rows, r.Row())
		}
		switch td.Cmd {
		case "compare-values":
			var out strings.Builder
			for i := 0; i+1 < len(rows); i += 2 {
				c, err := CompareValues(rows[i].At(0), rows[i+1].At(0))
				if err != nil {
					fmt.Fprintf(&out, "error: %v\n", err)
					continue
				}
				fmt.Fprintf(&out, "%d\n", c)
			}
			return out.String()

		case "compare-rows":
			prefix := math.MaxInt
			td.MaybeScanArgs(t, "prefix", &prefix)
			c, err := CompareRows(rows[0], rows[1], prefix)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return fmt.Sprint(c)

		default:
			return fmt.Sprintf("unrecognized command %q", td.Cmd)
		}
	})
}

func TestCompareAnyIsIncomparable(t *testing.T) {
	anyValue := AnyValue([]byte("{a=1}"), 0)
	for _, v := range []Value{
		AnyValue([]byte("{a=1}"), 0),
		Int64Value(1, 0),
		StringValue([]byte("x"), 0),
		BooleanValue(true, 0),
	} {
		_, err := CompareValues(anyValue, v)
		require.True(t, errors.Is(err, base.ErrIncomparableType), "%s", v)
		_, err = CompareValues(v, anyValue)
		require.True(t, errors.Is(err, base.ErrIncomparableType), "%s", v)
	}
	for _, s := range []ValueType{TypeMin, TypeTheBottom, TypeNull, TypeMax} {
		c, err := CompareValues(anyValue, SentinelValue(s, 0))
		require.NoError(t, err)
		require.Equal(t, compareTypes(TypeAny, s), c)
	}
}

func compareTypes(a, b ValueType) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return +1
	}
	return 0
}

func randomComparableValue(rng *rand.Rand) Value {
	switch rng.Intn(8) {
	case 0:
		return NullValue(0)
	case 1:
		return SentinelValue([]ValueType{TypeMin, TypeMax, TypeTheBottom}[rng.Intn(3)], 0)
	case 2:
		return Int64Value(int64(rng.Intn(5))-2, 0)
	case 3:
		return Uint64Value(uint64(rng.Intn(5)), 0)
	case 4:
		return DoubleValue(float64(rng.Intn(5))/2, 0)
	case 5:
		return BooleanValue(rng.Intn(2) == 0, 0)
	default:
		b := make([]byte, rng.Intn(3))
		for i := range b {
			b[i] = 'a' + byte(rng.Intn(2))
		}
		return StringValue(b, 0)
	}
}

// TestCompareTotalOrder checks antisymmetry and transitivity over random
// comparable values.
func TestCompareTotalOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(uint64(1)))
	values := make([]Value, 60)
	for i := range values {
		values[i] = randomComparableValue(rng)
	}
	cmp := func(a, b Value) int {
		c, err := CompareValues(a, b)
		require.NoError(t, err)
		return c
	}
	for _, a := range values {
		for _, b := range values {
			ab, ba := cmp(a, b), cmp(b, a)
			require.Equal(t, ab, -ba, "%s vs %s", a, b)
			for _, c := range values {
				if ab <= 0 && cmp(b, c) <= 0 {
					require.LessOrEqual(t, cmp(a, c), 0, "%s <= %s <= %s", a, b, c)
				}
			}
		}
	}
}

func TestCompareRowsPrefixLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(uint64(2)))
	randomRow := func() Row {
		vals := make([]Value, rng.Intn(4))
		for i := range vals {
			vals[i] = randomComparableValue(rng).WithID(uint16(i))
		}
		return MakeRow(vals...)
	}
	for i := 0; i < 500; i++ {
		a, b := randomRow(), randomRow()
		c, err := CompareRows(a, b, 0)
		require.NoError(t, err)
		require.Zero(t, c)
		for k := 0; k <= 4; k++ {
			full, err := CompareRows(a, b, k)
			require.NoError(t, err)
			truncated, err := CompareRows(a.Prefix(k), b.Prefix(k), math.MaxInt)
			require.NoError(t, err)
			require.Equal(t, full, truncated, "%s vs %s prefix %d", a, b, k)
		}
	}
}

func TestCompareNullRows(t *testing.T) {
	present := MakeRow()
	c, err := CompareRows(NullRow, NullRow, 10)
	require.NoError(t, err)
	require.Zero(t, c)
	c, _ = CompareRows(NullRow, present, 10)
	require.Equal(t, -1, c)
	c, _ = CompareRows(present, NullRow, 10)
	require.Equal(t, +1, c)
	require.Panics(t, func() {
		CompareKeys(MakeRow(AnyValue(nil, 0)), MakeRow(Int64Value(1, 0)))
	})
}
