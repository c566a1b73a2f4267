package reduced

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

func TestRoundMasksLowMantissaBits(t *testing.T) {
	require := require.New(t)

	// At 4 kept mantissa bits, values within 1/16 of 1.0's fraction
	// collapse to the same rounded key; 1.5 (fraction 0.5) does not.
	require.Equal(Round(1.0, 4), Round(1.001, 4))
	require.NotEqual(Round(1.0, 4), Round(1.5, 4))
	require.Equal(1.0, Round(1.0, 52))
}

// At 4 kept mantissa bits, {1.0, 1.001} round-collapse into one bin,
// {1.5, 1.52} into another, and {3.0, 3.01} into a third (see
// TestRoundMasksLowMantissaBits for why), so Estimate must fall back
// to a residual scan to tell 1.0 apart from 1.001 inside their shared
// bin.
func TestReducedEvaluateAgainstScan(t *testing.T) {
	require := require.New(t)

	values := []float64{1.0, 1.001, 1.5, 1.52, 3.0, 3.01}
	src := memSource(t, values)
	idx, err := Build(src, 4)
	require.NoError(err)
	AttachSource(idx, src)

	for _, p := range []encidx.Predicate{
		{Kind: encidx.PredCompare, Op: encidx.OpEQ, X: 1.0},
		{Kind: encidx.PredRange, X: 1, Y: 2},
		{Kind: encidx.PredCompare, Op: encidx.OpGT, X: 2},
	} {
		bv, err := idx.Evaluate(bitidx.Background(), p)
		require.NoError(err)

		var want []uint64
		for i, v := range values {
			if encidx.Match(p, v) {
				want = append(want, uint64(i))
			}
		}
		require.Equal(want, bv.ToSlice(), "predicate %+v", p)
	}
}

func TestReducedEstimateIsConservativeEnvelope(t *testing.T) {
	require := require.New(t)

	values := []float64{1.0, 1.001, 3.0}
	src := memSource(t, values)
	idx, err := Build(src, 4)
	require.NoError(err)
	AttachSource(idx, src)

	p := encidx.Predicate{Kind: encidx.PredCompare, Op: encidx.OpEQ, X: 1.0}
	est, err := idx.Estimate(p)
	require.NoError(err)
	require.True(est.Lower.IsEmpty())
	require.GreaterOrEqual(est.Upper.Cnt(), uint64(1))
}

func TestReducedSerializeRoundTrip(t *testing.T) {
	require := require.New(t)

	values := []float64{1.0, 1.001, 1.5, 1.52, 3.0, 3.01}
	idx, err := Build(memSource(t, values), 4)
	require.NoError(err)

	var buf bytes.Buffer
	require.NoError(idx.Serialize(&buf))

	h, err := encidx.ReadHeader(&buf)
	require.NoError(err)
	require.Equal(format.TagBak, h.Tag)

	back, err := Deserialize(&buf, h.Width)
	require.NoError(err)
	require.Equal(idx.precision, back.precision)
	require.Equal(idx.keys, back.keys)
}
