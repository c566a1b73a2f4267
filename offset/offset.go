// Package offset implements the ordered byte-offset table that locates
// each bitvector within a serialized bitmap region: a single
// contiguous table of M+1 absolute offsets, stored at either 32- or
// 64-bit width.
package offset

import (
	"fmt"

	"github.com/ibisdb/bitidx/endian"
	"github.com/ibisdb/bitidx/errs"
)

// Width is the on-disk byte width of each offset table entry.
type Width uint8

const (
	Width32 Width = 4
	Width64 Width = 8
)

// ChooseWidth picks the offset width for m bitvectors whose largest
// serialized size is maxBitvectorBytes: 32-bit when
// m*maxBitvectorBytes < 2^31, else 64-bit.
func ChooseWidth(m int, maxBitvectorBytes uint64) Width {
	if uint64(m)*maxBitvectorBytes < (1 << 31) {
		return Width32
	}

	return Width64
}

// Table is the in-memory decoded offset table: M+1 monotonically
// non-decreasing byte offsets into the bitmap region. Bitvector i
// occupies [Table[i], Table[i+1]); an empty bitvector has
// Table[i+1] == Table[i].
type Table struct {
	offsets []uint64
	width   Width
}

// New builds a Table for m bitvectors, all initially empty (every
// offset 0), ready to be filled in during a build pass.
func New(m int, width Width) *Table {
	return &Table{offsets: make([]uint64, m+1), width: width}
}

// Width reports the on-disk entry width.
func (t *Table) Width() Width { return t.width }

// Count returns M, the number of bitvectors the table locates.
func (t *Table) Count() int {
	if len(t.offsets) == 0 {
		return 0
	}

	return len(t.offsets) - 1
}

// Set records the end offset of bitvector i (equivalently, the start
// offset of bitvector i+1). Callers fill the table left to right
// during a build pass.
func (t *Table) Set(i int, end uint64) {
	t.offsets[i+1] = end
}

// Range returns the half-open byte range [start, end) of bitvector i.
func (t *Table) Range(i int) (start, end uint64, err error) {
	if i < 0 || i >= t.Count() {
		return 0, 0, fmt.Errorf("%w: index %d, count %d", errs.ErrOffsetOutOfRange, i, t.Count())
	}

	return t.offsets[i], t.offsets[i+1], nil
}

// Empty reports whether bitvector i is the empty/zero bitvector
// (o[i+1] == o[i]).
func (t *Table) Empty(i int) bool {
	start, end, err := t.Range(i)

	return err == nil && start == end
}

// Bytes serializes the table at its configured width using the given
// byte-order engine.
func (t *Table) Bytes(engine endian.EndianEngine) []byte {
	entrySize := int(t.width)
	buf := make([]byte, len(t.offsets)*entrySize)
	for i, off := range t.offsets {
		pos := i * entrySize
		if t.width == Width32 {
			engine.PutUint32(buf[pos:pos+4], uint32(off)) //nolint: gosec
		} else {
			engine.PutUint64(buf[pos:pos+8], off)
		}
	}

	return buf
}

// Load parses an offset table for m bitvectors (m+1 entries) from data
// at the given width.
func Load(data []byte, m int, width Width, engine endian.EndianEngine) (*Table, error) {
	entrySize := int(width)
	need := (m + 1) * entrySize
	if len(data) < need {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", errs.ErrTruncatedFile, need, len(data))
	}

	offsets := make([]uint64, m+1)
	for i := range offsets {
		pos := i * entrySize
		if width == Width32 {
			offsets[i] = uint64(engine.Uint32(data[pos : pos+4]))
		} else {
			offsets[i] = engine.Uint64(data[pos : pos+8])
		}
		if i > 0 && offsets[i] < offsets[i-1] {
			return nil, errs.ErrOffsetNotSorted
		}
	}

	return &Table{offsets: offsets, width: width}, nil
}

// ByteSize returns the serialized size of the table in bytes.
func (t *Table) ByteSize() int {
	return len(t.offsets) * int(t.width)
}
