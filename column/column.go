// Package column is the value-extraction façade an encoding uses to
// populate bitvectors from raw column data during build and during
// residual scans. It also carries the ColumnInfo value
// object the introduces to break the index↔column↔partition
// cycle: the index is handed an Info by reference and holds no
// back-pointer to the partition that owns the column.
//
// The generic parameter of ValueSource[T] ranges over the in-memory
// typed array a column decodes to; StringSource covers categorical and
// text columns separately.
package column

import (
	"fmt"

	"github.com/ibisdb/bitidx/bitvector"
	"github.com/ibisdb/bitidx/errs"
	"github.com/ibisdb/bitidx/format"
)

// Info is the value object passed by reference to an index so it never
// needs a back-pointer to its owning partition.
type Info struct {
	Name      string
	Partition string // name of the owning partition, for config lookup
	Type      format.ValueType
	N         int
	NullMask  *bitvector.Bitvector // nil means every row is valid
}

// Valid reports whether row i holds a value according to the
// null-mask.
func (ci Info) Valid(i int) bool {
	return ci.NullMask == nil || ci.NullMask.Contains(uint64(i))
}

// Numeric enumerates the fixed-width value types an encoding can build
// a binned or ranged index over.
type Numeric interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// ValueSource is the get_values_array(column) collaborator contract
// for a fixed-width numeric column: position i of Values() corresponds
// to row i of every bitvector the encoding builds.
type ValueSource[T Numeric] interface {
	Info() Info
	// Values returns the typed array of length N. The caller must not
	// modify the returned slice.
	Values() []T
	// At returns the value at row i without requiring the caller to
	// materialize the whole array, for use during residual scans.
	At(i int) T
}

// StringSource is the get_string(i) collaborator contract for
// categorical and free-text columns.
type StringSource interface {
	Info() Info
	GetString(i int) []byte
}

// MemorySource is an in-memory ValueSource[T], the reference
// implementation every test and the demo program builds indexes over.
type MemorySource[T Numeric] struct {
	info   Info
	values []T
}

var _ ValueSource[float64] = (*MemorySource[float64])(nil)

// NewMemorySource wraps values as a ValueSource. info.N must equal
// len(values).
func NewMemorySource[T Numeric](info Info, values []T) (*MemorySource[T], error) {
	if info.N != len(values) {
		return nil, fmt.Errorf("%w: info.N=%d, len(values)=%d", errs.ErrSizeMismatch, info.N, len(values))
	}

	return &MemorySource[T]{info: info, values: values}, nil
}

func (m *MemorySource[T]) Info() Info  { return m.info }
func (m *MemorySource[T]) Values() []T { return m.values }
func (m *MemorySource[T]) At(i int) T  { return m.values[i] }

// MemoryStringSource is an in-memory StringSource over a []byte slice
// per row.
type MemoryStringSource struct {
	info   Info
	values [][]byte
}

var _ StringSource = (*MemoryStringSource)(nil)

// NewMemoryStringSource wraps values as a StringSource. info.N must
// equal len(values).
func NewMemoryStringSource(info Info, values [][]byte) (*MemoryStringSource, error) {
	if info.N != len(values) {
		return nil, fmt.Errorf("%w: info.N=%d, len(values)=%d", errs.ErrSizeMismatch, info.N, len(values))
	}

	return &MemoryStringSource{info: info, values: values}, nil
}

func (m *MemoryStringSource) Info() Info            { return m.info }
func (m *MemoryStringSource) GetString(i int) []byte { return m.values[i] }
