package combine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ibisdb/bitidx/bitvector"
)

func buildBitvectors(n uint64, positions [][]uint64) []*bitvector.Bitvector {
	out := make([]*bitvector.Bitvector, len(positions))
	for i, ps := range positions {
		bv := bitvector.New(n)
		for _, p := range ps {
			bv.SetBit(p)
		}
		out[i] = bv
	}

	return out
}

func TestOrStrategiesAgree(t *testing.T) {
	require := require.New(t)

	const n = 2048
	positions := [][]uint64{
		{1, 2, 3}, {4, 5}, {1, 100}, {2000}, {7, 8, 9, 10}, {0},
	}

	naive, err := orNaive(n, buildBitvectors(n, positions))
	require.NoError(err)

	merged, err := orHeapMerge(n, buildBitvectors(n, positions))
	require.NoError(err)

	accum, err := orAccumulator(n, buildBitvectors(n, positions))
	require.NoError(err)

	require.Equal(naive.ToSlice(), merged.ToSlice())
	require.Equal(naive.ToSlice(), accum.ToSlice())
}

func TestOrSelectorAgreesWithEachStrategy(t *testing.T) {
	require := require.New(t)

	const n = 4096
	positions := make([][]uint64, 50)
	for i := range positions {
		positions[i] = []uint64{uint64(i * 7 % n)}
	}

	want, err := orNaive(n, buildBitvectors(n, positions))
	require.NoError(err)

	got, err := Or(n, buildBitvectors(n, positions))
	require.NoError(err)

	require.Equal(want.ToSlice(), got.ToSlice())
}

func TestOrEmptyAndSingle(t *testing.T) {
	require := require.New(t)

	empty, err := Or(10, nil)
	require.NoError(err)
	require.True(empty.IsEmpty())

	one := bitvector.New(10)
	one.SetBit(3)
	got, err := Or(10, []*bitvector.Bitvector{one})
	require.NoError(err)
	require.Equal([]uint64{3}, got.ToSlice())
}

func TestShouldComplement(t *testing.T) {
	require := require.New(t)

	require.True(ShouldComplement(0, 60, 100))
	require.False(ShouldComplement(0, 40, 100))
}

func TestComplementMatchesDirectOr(t *testing.T) {
	require := require.New(t)

	// n == m: the ten single-row bins cover every row exactly once.
	const n = 10
	const m = 10
	all := buildBitvectors(n, [][]uint64{
		{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}, {9},
	})
	require.Len(all, m)

	// Range [2,9) directly.
	direct, err := Or(n, all[2:9])
	require.NoError(err)

	// Complement is [0,2) U [9,10).
	complementRange := append(append([]*bitvector.Bitvector{}, all[0:2]...), all[9:10]...)
	viaComplement, err := Complement(n, complementRange)
	require.NoError(err)

	require.Equal(direct.ToSlice(), viaComplement.ToSlice())
}

func TestSumBinsIncrementalMatchesFull(t *testing.T) {
	require := require.New(t)

	const n = 64
	bvs := buildBitvectors(n, [][]uint64{
		{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}, {9},
	})
	fetch := func(i int) (*bitvector.Bitvector, error) { return bvs[i], nil }

	prevBV, err := sumBinsFull(n, fetch, 2, 6)
	require.NoError(err)
	prev := &Prev{Ib0: 2, Ie0: 6, BV: prevBV}

	got, err := SumBins(n, fetch, 2, 8, prev)
	require.NoError(err)

	want, err := sumBinsFull(n, fetch, 2, 8)
	require.NoError(err)

	require.Equal(want.ToSlice(), got.ToSlice())
}

func TestSparseAddMatchesDenseOr(t *testing.T) {
	require := require.New(t)

	const n = 64
	acc := bitvector.New(n)
	acc.SetBit(1)
	sparse := buildBitvectors(n, [][]uint64{{5}, {6}, {7}})

	require.NoError(SparseAdd(acc, sparse, true))
	require.Equal([]uint64{1, 5, 6, 7}, acc.ToSlice())

	acc2 := bitvector.New(n)
	acc2.SetBit(1)
	require.NoError(SparseAdd(acc2, sparse, false))
	require.Equal([]uint64{1, 5, 6, 7}, acc2.ToSlice())
}
