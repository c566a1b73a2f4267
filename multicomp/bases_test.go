package multicomp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChooseBasesProductCoversCardinality(t *testing.T) {
	require := require.New(t)

	for _, tc := range []struct {
		c uint64
		k int
	}{
		{1000, 3}, {256, 2}, {100, 4}, {7, 3}, {2, 2},
	} {
		bases, err := ChooseBases(tc.c, tc.k)
		require.NoError(err)
		require.GreaterOrEqual(product(bases), tc.c, "c=%d k=%d bases=%v", tc.c, tc.k, bases)
		for _, b := range bases {
			require.GreaterOrEqual(b, uint64(2))
		}
	}
}

func TestChooseBasesKnownCardinalities(t *testing.T) {
	require := require.New(t)

	bases, err := ChooseBases(1000, 3)
	require.NoError(err)
	require.Equal([]uint64{10, 10, 10}, bases)

	bases, err = ChooseBases(1001, 3)
	require.NoError(err)
	require.Equal([]uint64{11, 10, 10}, bases)

	bases, err = ChooseBases(7, 3)
	require.NoError(err)
	require.Equal([]uint64{7}, bases, "cardinality 7 over 3 components should collapse to a single component")
}

func TestChooseBasesDegenerateSingleComponent(t *testing.T) {
	require := require.New(t)

	bases, err := ChooseBases(42, 1)
	require.NoError(err)
	require.Equal([]uint64{42}, bases)
}

func TestChooseBasesRejectsInvalidInput(t *testing.T) {
	require := require.New(t)

	_, err := ChooseBases(10, 0)
	require.Error(err)

	_, err = ChooseBases(0, 2)
	require.Error(err)
}

func TestChooseBasesFrontLoadsLargerBase(t *testing.T) {
	require := require.New(t)

	bases, err := ChooseBases(1000, 3)
	require.NoError(err)
	for i := 1; i < len(bases); i++ {
		require.LessOrEqual(bases[i], bases[i-1])
	}
}
