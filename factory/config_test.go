package factory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/column"
	"github.com/ibisdb/bitidx/encidx"
	"github.com/ibisdb/bitidx/format"
)

func TestConfigLookupLayering(t *testing.T) {
	require := require.New(t)

	c := &Config{
		Columns:    map[string]ColumnConfig{"temp": {IndexSpec: "index=basic"}},
		Partitions: map[string]string{"part0": "range"},
		Default:    "bak",
	}

	require.Equal("index=basic", c.Lookup("temp", "part0"), "per-column key wins")
	require.Equal("range", c.Lookup("pressure", "part0"), "partition default next")
	require.Equal("bak", c.Lookup("pressure", "part1"), "process default last")

	var nilConf *Config
	require.Equal("", nilConf.Lookup("temp", "part0"))
}

func TestConfigReadOptionForcing(t *testing.T) {
	require := require.New(t)

	c := &Config{Columns: map[string]ColumnConfig{
		"mapped": {PreferMMap: true},
		"copied": {PreferRead: true},
	}}

	require.Equal(ReadMetadataOnly, c.readOptionFor("mapped", ReadAuto))
	require.Equal(ReadFull, c.readOptionFor("copied", ReadMetadataOnly))
	require.Equal(ReadAuto, c.readOptionFor("other", ReadAuto))
}

func TestCreateConsultsConfigForEmptySpec(t *testing.T) {
	require := require.New(t)

	prev := Conf
	Conf = &Config{Columns: map[string]ColumnConfig{"col": {IndexSpec: "none"}}}
	t.Cleanup(func() { Conf = prev })

	src := memSource(t, []float64{1, 2, 3})
	col := column.Info{Name: "col", Type: format.ValueFloat64, N: 3}

	_, err := Create(bitidx.Background(), col, src, "", "", ReadAuto)
	require.Error(err, "column-level 'none' must refuse the build")

	// An explicit spec overrides the configured refusal.
	enc, err := Create(bitidx.Background(), col, src, "", "index=basic", ReadAuto)
	require.NoError(err)
	require.NotNil(enc)
}

func TestCreateUncompressAllKeepsAnswersIntact(t *testing.T) {
	require := require.New(t)

	prev := Conf
	Conf = &Config{UncompressAll: true}
	t.Cleanup(func() { Conf = prev })

	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3}
	src := memSource(t, values)
	col := column.Info{Name: "col", Type: format.ValueFloat64, N: len(values)}

	enc, err := Create(bitidx.Background(), col, src, "", "index=basic", ReadAuto)
	require.NoError(err)

	bv, err := enc.Evaluate(bitidx.Background(), encidx.Predicate{Kind: encidx.PredCompare, Op: encidx.OpEQ, X: 5})
	require.NoError(err)
	require.Equal([]uint64{4, 8}, bv.ToSlice())
}
