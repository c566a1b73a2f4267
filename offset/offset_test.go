package offset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ibisdb/bitidx/endian"
)

func TestChooseWidth(t *testing.T) {
	require.Equal(t, Width32, ChooseWidth(10, 1000))
	require.Equal(t, Width64, ChooseWidth(1<<20, 1<<20))
}

func TestTableSetRangeRoundTrip(t *testing.T) {
	require := require.New(t)

	tbl := New(4, Width32)
	tbl.Set(0, 10)
	tbl.Set(1, 10)
	tbl.Set(2, 25)
	tbl.Set(3, 25)

	require.Equal(4, tbl.Count())

	start, end, err := tbl.Range(0)
	require.NoError(err)
	require.Equal(uint64(0), start)
	require.Equal(uint64(10), end)

	require.True(tbl.Empty(1))
	require.False(tbl.Empty(2))

	_, _, err = tbl.Range(4)
	require.Error(err)
}

func TestTableBytesLoadRoundTrip(t *testing.T) {
	require := require.New(t)

	for _, width := range []Width{Width32, Width64} {
		tbl := New(3, width)
		tbl.Set(0, 5)
		tbl.Set(1, 5)
		tbl.Set(2, 17)

		engine := endian.GetLittleEndianEngine()
		data := tbl.Bytes(engine)
		require.Equal(tbl.ByteSize(), len(data))

		got, err := Load(data, 3, width, engine)
		require.NoError(err)
		require.Equal(tbl.Count(), got.Count())

		for i := 0; i < tbl.Count(); i++ {
			wantStart, wantEnd, err := tbl.Range(i)
			require.NoError(err)
			gotStart, gotEnd, err := got.Range(i)
			require.NoError(err)
			require.Equal(wantStart, gotStart)
			require.Equal(wantEnd, gotEnd)
		}
	}
}

func TestLoadRejectsTruncatedAndUnsorted(t *testing.T) {
	require := require.New(t)

	engine := endian.GetLittleEndianEngine()

	_, err := Load([]byte{1, 2, 3}, 3, Width32, engine)
	require.Error(err)

	tbl := New(2, Width32)
	tbl.Set(0, 10)
	tbl.Set(1, 5) // offsets must be non-decreasing
	data := tbl.Bytes(engine)

	_, err = Load(data, 2, Width32, engine)
	require.Error(err)
}
