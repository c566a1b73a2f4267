package binbuild

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sumRange(histogram []uint64, lo, hi int) uint64 {
	var s uint64
	for _, c := range histogram[lo:hi] {
		s += c
	}

	return s
}

func TestDivideCountsCoversWholeHistogram(t *testing.T) {
	require := require.New(t)

	histogram := []uint64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 100, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	bounds, err := DivideCounts(histogram, 4)
	require.NoError(err)
	require.Equal(0, bounds[0])
	require.Equal(len(histogram), bounds[len(bounds)-1])

	for i := 1; i < len(bounds); i++ {
		require.GreaterOrEqual(bounds[i], bounds[i-1])
	}
}

func TestDivideCountsHeavySingletonGetsOwnGroup(t *testing.T) {
	require := require.New(t)

	histogram := []uint64{1, 1, 1, 1, 1, 100, 1, 1, 1, 1, 1}
	bounds, err := DivideCounts(histogram, 3)
	require.NoError(err)

	found := false
	for i := 0; i+1 < len(bounds); i++ {
		if bounds[i] == 5 && bounds[i+1] == 6 {
			found = true
		}
	}
	require.True(found, "heavy singleton at index 5 should be its own group, bounds=%v", bounds)
}

func TestDivideCountsFewerDistinctThanK(t *testing.T) {
	require := require.New(t)

	histogram := []uint64{3, 7}
	bounds, err := DivideCounts(histogram, 5)
	require.NoError(err)
	require.Equal(Bounds{0, 1, 2}, bounds)
}

func TestDivideCountsRejectsNonPositiveK(t *testing.T) {
	require := require.New(t)

	_, err := DivideCounts([]uint64{1, 2, 3}, 0)
	require.Error(err)
}

func TestDivideCountsEmptyHistogram(t *testing.T) {
	require := require.New(t)

	bounds, err := DivideCounts(nil, 4)
	require.NoError(err)
	require.Equal(Bounds{0}, bounds)
}

func TestDivideCountsApproximatelyBalanced(t *testing.T) {
	require := require.New(t)

	histogram := make([]uint64, 100)
	for i := range histogram {
		histogram[i] = 10
	}
	k := 5
	bounds, err := DivideCounts(histogram, k)
	require.NoError(err)
	require.Equal(k, bounds.Groups())

	mean := float64(sumRange(histogram, 0, len(histogram))) / float64(k)
	for g := 0; g < bounds.Groups(); g++ {
		w := float64(sumRange(histogram, bounds[g], bounds[g+1]))
		require.InDelta(mean, w, mean, "group %d weight %v far from mean %v", g, w, mean)
	}
}
