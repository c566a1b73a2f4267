package factory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/column"
	"github.com/ibisdb/bitidx/encidx"
	"github.com/ibisdb/bitidx/encidx/keyword"
	"github.com/ibisdb/bitidx/errs"
	"github.com/ibisdb/bitidx/format"
)

func memSource(t *testing.T, values []float64) column.ValueSource[float64] {
	t.Helper()
	src, err := column.NewMemorySource(column.Info{Type: format.ValueFloat64, N: len(values)}, values)
	require.NoError(t, err)

	return src
}

func stringSource(t *testing.T, texts []string) column.StringSource {
	t.Helper()
	raw := make([][]byte, len(texts))
	for i, s := range texts {
		raw[i] = []byte(s)
	}
	src, err := column.NewMemoryStringSource(column.Info{Type: format.ValueText, N: len(texts)}, raw)
	require.NoError(t, err)

	return src
}

func TestParseSpecTokens(t *testing.T) {
	require := require.New(t)

	d, err := ParseSpec(format.ValueFloat64, 0, "none")
	require.NoError(err)
	require.True(d.Refuse)

	d, err = ParseSpec(format.ValueFloat64, 0, "index=basic")
	require.NoError(err)
	require.Equal(format.TagBasicEquality, d.Tag)

	d, err = ParseSpec(format.ValueFloat64, 0, "bak2")
	require.NoError(err)
	require.Equal(format.TagBak, d.Tag)
	require.Equal(16, d.Precision)

	d, err = ParseSpec(format.ValueFloat64, 0, "ncomp=4 range")
	require.NoError(err)
	require.Equal(format.TagMulticomponentRange, d.Tag)
	require.Equal(4, d.Components)

	d, err = ParseSpec(format.ValueText, 0, "keywords delimiters=|")
	require.NoError(err)
	require.Equal(format.TagKeywords, d.Tag)
	require.Equal("|", d.Delimiters)

	d, err = ParseSpec(format.ValueFloat64, 0, "range/range")
	require.NoError(err)
	require.Equal(format.TagAmbit, d.Tag)

	_, err = ParseSpec(format.ValueFloat64, 0, "not-a-real-token")
	require.ErrorIs(err, errs.ErrUnrecognizedSpec)
}

func TestParseSpecDefaultByCardinality(t *testing.T) {
	require := require.New(t)

	d, err := ParseSpec(format.ValueInt32, 50, "")
	require.NoError(err)
	require.Equal(format.TagDirect, d.Tag)

	d, err = ParseSpec(format.ValueFloat64, 10000, "default")
	require.NoError(err)
	require.Equal(format.TagEqualityBinning, d.Tag)

	d, err = ParseSpec(format.ValueText, 0, "automatic")
	require.NoError(err)
	require.Equal(format.TagKeywords, d.Tag)
}

func TestCreateBuildsAndSerializesToFile(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "col.idx")

	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3}
	src := memSource(t, values)
	col := column.Info{Name: "col", Type: format.ValueFloat64, N: len(values)}

	enc, err := Create(bitidx.Background(), col, src, path, "index=basic", ReadAuto)
	require.NoError(err)

	_, statErr := os.Stat(path)
	require.NoError(statErr)

	bv, err := enc.Evaluate(bitidx.Background(), encidx.Predicate{Kind: encidx.PredCompare, Op: encidx.OpEQ, X: 5})
	require.NoError(err)
	require.Equal([]uint64{4, 8}, bv.ToSlice())
}

func TestCreateReopensExistingFile(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "col.idx")

	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3}
	src := memSource(t, values)
	col := column.Info{Name: "col", Type: format.ValueFloat64, N: len(values)}

	_, err := Create(bitidx.Background(), col, src, path, "index=basic", ReadAuto)
	require.NoError(err)

	before, err := os.ReadFile(path)
	require.NoError(err)

	enc, err := Create(bitidx.Background(), col, src, path, "bak", ReadAuto)
	require.NoError(err)

	after, err := os.ReadFile(path)
	require.NoError(err)
	require.Equal(before, after, "reopening an existing valid file must not rebuild it")

	bv, err := enc.Evaluate(bitidx.Background(), encidx.Predicate{Kind: encidx.PredCompare, Op: encidx.OpEQ, X: 5})
	require.NoError(err)
	require.Equal([]uint64{4, 8}, bv.ToSlice())
}

// A boundary-straddling range query run through a reopen from disk:
// a binned index deserialized by Create must have its residual-scan
// source reattached, not panic the first time Evaluate needs to
// resolve the iffy set between Lower and Upper.
func TestCreateReopenedBinnedIndexResidualScans(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "col.idx")

	const n = 1000
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i) / float64(n)
	}
	src := memSource(t, values)
	col := column.Info{Name: "col", Type: format.ValueFloat64, N: n}

	_, err := Create(bitidx.Background(), col, src, path, "equality/range bins=10", ReadAuto)
	require.NoError(err)

	reopened, err := Create(bitidx.Background(), col, src, path, "equality/range bins=10", ReadAuto)
	require.NoError(err)

	p := encidx.Predicate{Kind: encidx.PredRange, X: 0.25, Y: 0.749}

	var want []uint64
	for i, v := range values {
		if encidx.Match(p, v) {
			want = append(want, uint64(i))
		}
	}

	require.NotPanics(func() {
		got, err := reopened.Evaluate(bitidx.Background(), p)
		require.NoError(err)
		require.Equal(want, got.ToSlice())
	})
}

// TestCreateReopenedReducedIndexResidualScans covers the same nil-
// residual-scan-source bug for reduced (bak): reduced.Evaluate always
// residual-scans (Lower is conservatively empty by construction), so
// without reattaching the source every reopened query would panic.
func TestCreateReopenedReducedIndexResidualScans(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "col.idx")

	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3}
	src := memSource(t, values)
	col := column.Info{Name: "col", Type: format.ValueFloat64, N: len(values)}

	_, err := Create(bitidx.Background(), col, src, path, "bak", ReadAuto)
	require.NoError(err)

	reopened, err := Create(bitidx.Background(), col, src, path, "bak", ReadAuto)
	require.NoError(err)

	var want []uint64
	p := encidx.Predicate{Kind: encidx.PredCompare, Op: encidx.OpEQ, X: 5}
	for i, v := range values {
		if encidx.Match(p, v) {
			want = append(want, uint64(i))
		}
	}

	require.NotPanics(func() {
		got, err := reopened.Evaluate(bitidx.Background(), p)
		require.NoError(err)
		require.Equal(want, got.ToSlice())
	})
}

// TestCreateKeywordReopenRestoresContains covers the keyword reopen
// path: CreateKeyword deserializes the existing file, and Contains(token)
// on the reopened index finds the token by hash in the persisted id
// table.
func TestCreateKeywordReopenRestoresContains(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "col.idx")

	texts := []string{"the quick fox", "the lazy dog", "quick and lazy"}
	src := stringSource(t, texts)
	col := column.Info{Name: "col", Type: format.ValueText, N: len(texts)}

	_, err := CreateKeyword(bitidx.Background(), col, src, path, "keywords", ReadAuto)
	require.NoError(err)

	reopened, err := CreateKeyword(bitidx.Background(), col, src, path, "keywords", ReadAuto)
	require.NoError(err)

	kw, ok := reopened.(*keyword.Index)
	require.True(ok)

	bv, err := kw.Contains("quick")
	require.NoError(err)
	require.Equal([]uint64{0, 2}, bv.ToSlice())
}

func TestCreateRefusesWhenSpecSaysNone(t *testing.T) {
	require := require.New(t)

	values := []float64{1, 2, 3}
	src := memSource(t, values)
	col := column.Info{Name: "col", Type: format.ValueFloat64, N: len(values)}

	_, err := Create(bitidx.Background(), col, src, "", "none", ReadAuto)
	require.ErrorIs(err, errs.ErrIndexRefused)
}
