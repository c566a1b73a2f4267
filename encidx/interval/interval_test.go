package interval

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/column"
	"github.com/ibisdb/bitidx/encidx"
	"github.com/ibisdb/bitidx/format"
)

func memSource(t *testing.T, values []float64) column.ValueSource[float64] {
	t.Helper()
	src, err := column.NewMemorySource(column.Info{Type: format.ValueFloat64, N: len(values)}, values)
	require.NoError(t, err)

	return src
}

func TestIntervalAgainstScan(t *testing.T) {
	require := require.New(t)

	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3}
	idx, err := Build(memSource(t, values), 2)
	require.NoError(err)

	for _, p := range []encidx.Predicate{
		{Kind: encidx.PredRange, X: 2, Y: 5},
		{Kind: encidx.PredCompare, Op: encidx.OpEQ, X: 5},
		{Kind: encidx.PredSet, Values: []float64{1, 9}},
	} {
		bv, err := idx.Evaluate(bitidx.Background(), p)
		require.NoError(err)

		var want []uint64
		for i, v := range values {
			if encidx.Match(p, v) {
				want = append(want, uint64(i))
			}
		}
		require.Equal(want, bv.ToSlice())
	}
}

func TestIntervalSerializeRoundTrip(t *testing.T) {
	require := require.New(t)

	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3}
	idx, err := Build(memSource(t, values), 3)
	require.NoError(err)

	var buf bytes.Buffer
	require.NoError(idx.Serialize(&buf))

	h, err := encidx.ReadHeader(&buf)
	require.NoError(err)
	require.Equal(format.TagInterval, h.Tag)

	back, err := Deserialize(&buf, h.Width)
	require.NoError(err)

	p := encidx.Predicate{Kind: encidx.PredRange, X: 2, Y: 5}
	want, err := idx.Evaluate(bitidx.Background(), p)
	require.NoError(err)
	got, err := back.Evaluate(bitidx.Background(), p)
	require.NoError(err)
	require.Equal(want.ToSlice(), got.ToSlice())
}
