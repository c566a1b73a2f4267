package column

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ibisdb/bitidx/bitvector"
	"github.com/ibisdb/bitidx/format"
)

func TestInfoValidWithAndWithoutNullMask(t *testing.T) {
	require := require.New(t)

	noMask := Info{Name: "a", Type: format.ValueInt64, N: 5}
	require.True(noMask.Valid(0))
	require.True(noMask.Valid(4))

	mask := bitvector.New(5)
	mask.SetBit(1)
	mask.SetBit(3)
	withMask := Info{Name: "b", Type: format.ValueInt64, N: 5, NullMask: mask}
	require.False(withMask.Valid(0))
	require.True(withMask.Valid(1))
	require.False(withMask.Valid(2))
	require.True(withMask.Valid(3))
}

func TestNewMemorySourceRejectsSizeMismatch(t *testing.T) {
	require := require.New(t)

	info := Info{Name: "v", Type: format.ValueInt64, N: 3}
	_, err := NewMemorySource(info, []int64{1, 2})
	require.Error(err)
}

func TestMemorySourceValuesAndAt(t *testing.T) {
	require := require.New(t)

	info := Info{Name: "v", Type: format.ValueInt64, N: 3}
	src, err := NewMemorySource(info, []int64{10, 20, 30})
	require.NoError(err)

	require.Equal(info, src.Info())
	require.Equal([]int64{10, 20, 30}, src.Values())
	require.Equal(int64(20), src.At(1))
}

func TestMemoryStringSourceRejectsSizeMismatch(t *testing.T) {
	require := require.New(t)

	info := Info{Name: "s", Type: format.ValueText, N: 2}
	_, err := NewMemoryStringSource(info, [][]byte{[]byte("a")})
	require.Error(err)
}

func TestMemoryStringSourceGetString(t *testing.T) {
	require := require.New(t)

	info := Info{Name: "s", Type: format.ValueText, N: 2}
	src, err := NewMemoryStringSource(info, [][]byte{[]byte("foo"), []byte("bar")})
	require.NoError(err)

	require.Equal([]byte("foo"), src.GetString(0))
	require.Equal([]byte("bar"), src.GetString(1))
}
