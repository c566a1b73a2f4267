package store

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func tempFileOfSize(t *testing.T, n int) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "manager-*.bin")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write(make([]byte, n))
	require.NoError(t, err)

	return f.Name()
}

func TestFileManagerSharesHandleForSamePath(t *testing.T) {
	require := require.New(t)

	path := tempFileOfSize(t, 100)
	m := NewFileManager(0)

	f1, release1, err := m.TryGetFile(path, PreferRead)
	require.NoError(err)
	f2, release2, err := m.TryGetFile(path, PreferMMap)
	require.NoError(err)

	require.Same(f1, f2)

	used, _ := m.Budget()
	require.Equal(int64(100), used)

	release1()
	release2()
}

func TestFileManagerEvictsLeastRecentlyUsedUnderBudget(t *testing.T) {
	require := require.New(t)

	a := tempFileOfSize(t, 50)
	b := tempFileOfSize(t, 50)

	m := NewFileManager(60)

	_, releaseA, err := m.TryGetFile(a, PreferRead)
	require.NoError(err)
	releaseA() // drop to refs==0 so it becomes evictable

	_, releaseB, err := m.TryGetFile(b, PreferRead)
	require.NoError(err)
	defer releaseB()

	used, limit := m.Budget()
	require.Equal(int64(60), limit)
	require.LessOrEqual(used, limit)

	// a should have been evicted to make room for b.
	_, ok := m.byPath[a]
	require.False(ok)
	_, ok = m.byPath[b]
	require.True(ok)
}

func TestFileManagerDoesNotEvictHandlesStillReferenced(t *testing.T) {
	require := require.New(t)

	a := tempFileOfSize(t, 50)
	b := tempFileOfSize(t, 50)

	m := NewFileManager(60)

	_, releaseA, err := m.TryGetFile(a, PreferRead)
	require.NoError(err)
	defer releaseA()

	_, releaseB, err := m.TryGetFile(b, PreferRead)
	require.NoError(err)
	defer releaseB()

	// a is still referenced; both handles must survive even over budget.
	_, ok := m.byPath[a]
	require.True(ok)
	_, ok = m.byPath[b]
	require.True(ok)
}

func TestFileManagerRecommendDefaultThreshold(t *testing.T) {
	require := require.New(t)

	m := NewFileManager(0)

	require.Equal(PreferRead, m.Recommend(PreferRead, 1<<30))
	require.Equal(PreferMMap, m.Recommend(PreferMMap, 1))
	require.Equal(PreferRead, m.Recommend(PreferMMapLargeFiles, 1<<10))
	require.Equal(PreferMMap, m.Recommend(PreferMMapLargeFiles, 64<<20))
}

func TestFileManagerRecommendCustomThreshold(t *testing.T) {
	require := require.New(t)

	m := NewFileManager(0, WithMMapThreshold(1<<10))

	require.Equal(PreferRead, m.Recommend(PreferMMapLargeFiles, 1<<9))
	require.Equal(PreferMMap, m.Recommend(PreferMMapLargeFiles, 1<<10))
}

func TestOpenIndexFileReadsWholeContentsEitherBackend(t *testing.T) {
	require := require.New(t)

	want := []byte("the quick brown fox jumps over the lazy dog")
	path := writeTempFile(t, want)

	for _, pref := range []Preference{PreferRead, PreferMMap} {
		m := NewFileManager(0)
		data, release, err := m.OpenIndexFile(path, pref)
		require.NoError(err)
		require.Equal(want, data)
		require.NoError(release())
	}
}

func writeTempFile(t *testing.T, contents []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "openindex-*.bin")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write(contents)
	require.NoError(t, err)

	return f.Name()
}
