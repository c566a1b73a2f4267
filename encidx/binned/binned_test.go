package binned

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/column"
	"github.com/ibisdb/bitidx/encidx"
	"github.com/ibisdb/bitidx/errs"
	"github.com/ibisdb/bitidx/format"
)

func memSource(t *testing.T, values []float64) column.ValueSource[float64] {
	t.Helper()
	src, err := column.NewMemorySource(column.Info{Type: format.ValueFloat64, N: len(values)}, values)
	require.NoError(t, err)

	return src
}

// 1000 values uniform in [0,1), 10 bins, query
// 0.25 <= v < 0.75 (approximated here with an inclusive upper bound,
// matching this module's Predicate.Range semantics). lower must cover
// only fully-contained bins, upper the boundary bins too, and the
// residual-scanned Evaluate must equal a reference scan regardless.
func TestBinnedRangeEnvelopeAndResidualScan(t *testing.T) {
	require := require.New(t)

	const n = 1000
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i) / float64(n)
	}
	idx, err := Build(memSource(t, values), 10)
	require.NoError(err)

	p := encidx.Predicate{Kind: encidx.PredRange, X: 0.25, Y: 0.749}
	est, err := idx.Estimate(p)
	require.NoError(err)
	require.False(est.Lower.IsEmpty())
	require.True(est.Upper.Cnt() >= est.Lower.Cnt())

	got, err := idx.Evaluate(bitidx.Background(), p)
	require.NoError(err)

	var want []uint64
	for i, v := range values {
		if encidx.Match(p, v) {
			want = append(want, uint64(i))
		}
	}
	require.Equal(want, got.ToSlice())
}

func TestBinnedAgainstScanSmallCardinality(t *testing.T) {
	require := require.New(t)

	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 8, 7, 0, 6, 2}
	idx, err := Build(memSource(t, values), 4)
	require.NoError(err)

	for _, p := range []encidx.Predicate{
		{Kind: encidx.PredRange, X: 2, Y: 6},
		{Kind: encidx.PredCompare, Op: encidx.OpLE, X: 4},
		{Kind: encidx.PredCompare, Op: encidx.OpGT, X: 5},
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
		require.Equal(want, bv.ToSlice(), "predicate %+v", p)
	}
}

// A cancelled Context stops Evaluate's residual
// scan and surfaces errs.ErrCancelled rather than an exact answer.
func TestBinnedEvaluateRespectsCancellation(t *testing.T) {
	require := require.New(t)

	const n = 1000
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i) / float64(n)
	}
	idx, err := Build(memSource(t, values), 10)
	require.NoError(err)

	ctx := bitidx.NewContext(nil)
	ctx.Cancel()

	p := encidx.Predicate{Kind: encidx.PredRange, X: 0.25, Y: 0.749}
	_, err = idx.Evaluate(ctx, p)
	require.ErrorIs(err, errs.ErrCancelled)
}

func TestBinnedSerializeRoundTrip(t *testing.T) {
	require := require.New(t)

	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 8, 7, 0, 6, 2}
	idx, err := Build(memSource(t, values), 4)
	require.NoError(err)

	var buf bytes.Buffer
	require.NoError(idx.Serialize(&buf))

	h, err := encidx.ReadHeader(&buf)
	require.NoError(err)
	require.Equal(format.TagEqualityBinning, h.Tag)

	back, err := Deserialize(&buf, h.Width)
	require.NoError(err)
	src := memSource(t, values)
	AttachSource(back, src)

	p := encidx.Predicate{Kind: encidx.PredRange, X: 2, Y: 6}
	want, err := idx.Evaluate(bitidx.Background(), p)
	require.NoError(err)
	got, err := back.Evaluate(bitidx.Background(), p)
	require.NoError(err)
	require.Equal(want.ToSlice(), got.ToSlice())
}
