package factory

// ColumnConfig holds the per-column preferences consulted by Create
// when the caller passes no explicit spec.
type ColumnConfig struct {
	// IndexSpec is the default index spec for this column
	// (<column>.index).
	IndexSpec string
	// PreferMMap forces memory-map backing on reopen
	// (<column>.preferMMapIndex).
	PreferMMap bool
	// PreferRead forces whole-file read backing on reopen
	// (<column>.preferReadIndex).
	PreferRead bool
}

// Config is the layered index configuration: per-column keys override
// per-partition defaults, which override the process-wide default.
// The zero value is a valid configuration with no opinions.
type Config struct {
	Columns    map[string]ColumnConfig
	Partitions map[string]string // <partition>.indexSpec
	Default    string            // process-wide default spec

	// UncompressAll rewrites every bitvector into its decompressed
	// form after load (uncompressAll).
	UncompressAll bool
	// UncompressLargeBitvector rewrites bitvectors whose serialized
	// size exceeds N/24 bytes after load (uncompressLargeBitvector).
	UncompressLargeBitvector bool
}

// Conf is the process-wide configuration Create and CreateKeyword
// consult. Swap it wholesale at startup; it is not synchronized for
// concurrent mutation.
var Conf = &Config{}

// Lookup resolves the index spec for column within partition:
// per-column first, then per-partition, then the process default.
func (c *Config) Lookup(column, partition string) string {
	if c == nil {
		return ""
	}
	if cc, ok := c.Columns[column]; ok && cc.IndexSpec != "" {
		return cc.IndexSpec
	}
	if spec, ok := c.Partitions[partition]; ok && spec != "" {
		return spec
	}

	return c.Default
}

// readOptionFor applies the per-column backing preference, if any, on
// top of the caller's read option.
func (c *Config) readOptionFor(column string, fallback ReadOption) ReadOption {
	if c == nil {
		return fallback
	}
	cc, ok := c.Columns[column]
	if !ok {
		return fallback
	}
	switch {
	case cc.PreferRead:
		return ReadFull
	case cc.PreferMMap:
		return ReadMetadataOnly
	}

	return fallback
}

// uncompressThreshold is the serialized-size cutoff, in bytes, above
// which uncompressLargeBitvector rewrites a bitvector.
func uncompressThreshold(n uint64) uint64 {
	return n / 24
}
