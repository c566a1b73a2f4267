// Package bitvector implements the compressed-bitset primitive every
// index encoding is built on. It wraps
// github.com/RoaringBitmap/roaring, the ecosystem's run-length/array/
// bitmap hybrid compressed bitmap, and pins the fixed reported length N
// that a run-length-compressed column bitvector must carry — a roaring
// bitmap on its own has no notion of a declared universe size.
package bitvector

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/RoaringBitmap/roaring"

	"github.com/ibisdb/bitidx/errs"
)

// Bitvector is a compressed bitset of fixed length N. Every Bitvector
// returned by an encoding reports the same N as the column it indexes.
type Bitvector struct {
	n  uint64
	bm *roaring.Bitmap
}

// New returns the all-zero bitvector of length n.
func New(n uint64) *Bitvector {
	return &Bitvector{n: n, bm: roaring.NewBitmap()}
}

// Set returns the constant bitvector of length n with every bit equal
// to v (0 or 1), as in set(v, N).
func Set(v int, n uint64) *Bitvector {
	bv := New(n)
	if v != 0 && n > 0 {
		bv.bm.AddRange(0, n)
	}

	return bv
}

// fromBitmap wraps an existing roaring bitmap, clamping it to length n.
// Used internally once an operation has produced a result bitmap.
func fromBitmap(bm *roaring.Bitmap, n uint64) *Bitvector {
	return &Bitvector{n: n, bm: bm}
}

// Size returns N, the fixed universe length.
func (bv *Bitvector) Size() uint64 { return bv.n }

// Cnt returns the population count.
func (bv *Bitvector) Cnt() uint64 { return bv.bm.GetCardinality() }

// Bytes returns the expected serialized size in bytes. Every strategy
// in the bit-combination core sizes its plan from this value, so it
// must track the bitmap's actual on-disk cost, not an in-memory
// estimate.
func (bv *Bitvector) Bytes() uint64 { return bv.bm.GetSerializedSizeInBytes() }

// IsEmpty reports whether the bitvector has no set bits.
func (bv *Bitvector) IsEmpty() bool { return bv.bm.IsEmpty() }

// SetBit sets position i. Panics if i >= Size(); an out-of-bounds
// position means the caller sized the column wrong.
func (bv *Bitvector) SetBit(i uint64) {
	if i >= bv.n {
		panic(fmt.Sprintf("bitvector: SetBit(%d) out of range for size %d", i, bv.n))
	}
	bv.bm.Add(uint32(i)) //nolint: gosec
}

// Contains reports whether bit i is set.
func (bv *Bitvector) Contains(i uint64) bool {
	return i < bv.n && bv.bm.Contains(uint32(i)) //nolint: gosec
}

// Clone returns an independent copy.
func (bv *Bitvector) Clone() *Bitvector {
	return fromBitmap(bv.bm.Clone(), bv.n)
}

// Grow extends the bitvector's declared universe length to newN
// in place, for the append path of the ("append is supported by
// the encoding only if the append path reconstructs the tail
// bitvectors"). The set bits below the old length are unchanged; no
// bit at or above the old length is set by Grow itself. Panics if
// newN is smaller than the current size, since truncating a bitvector
// would silently discard any bits already set in the dropped range.
func (bv *Bitvector) Grow(newN uint64) {
	if newN < bv.n {
		panic(fmt.Sprintf("bitvector: Grow(%d) would shrink size %d", newN, bv.n))
	}
	bv.n = newN
}

// checkSize returns errs.ErrSizeMismatch if the two bitvectors don't
// share a universe length. Callers log the error and proceed using
// the receiver's N rather than aborting.
func (bv *Bitvector) checkSize(other *Bitvector) error {
	if bv.n != other.n {
		return fmt.Errorf("%w: %d vs %d", errs.ErrSizeMismatch, bv.n, other.n)
	}

	return nil
}

// Or computes bv |= other in place, preserving Size().
func (bv *Bitvector) Or(other *Bitvector) error {
	if err := bv.checkSize(other); err != nil {
		return err
	}
	bv.bm.Or(other.bm)

	return nil
}

// And computes bv &= other in place, preserving Size().
func (bv *Bitvector) And(other *Bitvector) error {
	if err := bv.checkSize(other); err != nil {
		return err
	}
	bv.bm.And(other.bm)

	return nil
}

// AndNot computes bv -= other in place (ANDNOT), preserving Size().
// Defined when bv.Size() == other.Size().
func (bv *Bitvector) AndNot(other *Bitvector) error {
	if err := bv.checkSize(other); err != nil {
		return err
	}
	bv.bm.AndNot(other.bm)

	return nil
}

// Flip exchanges bv for its complement over [0, Size()).
func (bv *Bitvector) Flip() {
	if bv.n == 0 {
		return
	}
	bv.bm.Flip(0, bv.n)
}

// Decompress produces a form in which subsequent Or calls avoid
// reallocation. Roaring bitmaps pick their own container
// representation per range of values, so decompression is realized as
// converting every container the bitmap currently holds into a
// (mutable, non run-length) array/bitmap container by cloning before
// any run-length optimization has been applied. This is a semantic
// no-op in the sense the describes: the returned bitvector
// represents the identical set.
func (bv *Bitvector) Decompress() *Bitvector {
	return bv.Clone()
}

// Compress run-length-encodes eligible containers in place. Semantic
// no-op: the represented set is unchanged, only the storage form.
func (bv *Bitvector) Compress() {
	bv.bm.RunOptimize()
}

// RandomSetBit returns a uniformly chosen set bit position and true,
// or (0, false) if the bitvector is empty.
func (bv *Bitvector) RandomSetBit() (uint64, bool) {
	card := bv.bm.GetCardinality()
	if card == 0 {
		return 0, false
	}
	rank := uint32(rand.Int63n(int64(card))) //nolint: gosec
	v, err := bv.bm.Select(rank)
	if err != nil {
		return 0, false
	}

	return uint64(v), true
}

// ToSlice returns every set position in ascending order. Used by
// residual scans to enumerate the rows a binned encoding could not
// decide without reading raw column values.
func (bv *Bitvector) ToSlice() []uint64 {
	arr := bv.bm.ToArray()
	out := make([]uint64, len(arr))
	for i, v := range arr {
		out[i] = uint64(v)
	}

	return out
}

// Run is a single run yielded by Runs: either a literal single bit
// (Length == 1) or a fill of Length consecutive set bits starting at
// Start. This is the iteration contract the bit-combination core
// plans against.
type Run struct {
	Start  uint64
	Length uint64
}

// Runs returns the set positions of bv coalesced into maximal runs of
// consecutive integers, restartable from the beginning on every call.
func (bv *Bitvector) Runs(yield func(Run) bool) {
	it := bv.bm.Iterator()
	if !it.HasNext() {
		return
	}

	start := uint64(it.Next())
	prev := start
	for it.HasNext() {
		v := uint64(it.Next())
		if v == prev+1 {
			prev = v

			continue
		}
		if !yield(Run{Start: start, Length: prev - start + 1}) {
			return
		}
		start, prev = v, v
	}
	yield(Run{Start: start, Length: prev - start + 1})
}

// WriteRaw serializes bv's roaring-bitmap bytes only, with no length
// prefix. Used by the index body format, where N is
// already known from the file header and every bitvector's byte range
// is already known from the offset table.
func (bv *Bitvector) WriteRaw(w io.Writer) (int64, error) {
	return bv.bm.WriteTo(w)
}

// WriteTo serializes bv in roaring's portable format, preceded by an
// 8-byte little-endian N so Read can restore the declared length.
func (bv *Bitvector) WriteTo(w io.Writer) (int64, error) {
	var hdr [8]byte
	for i := range hdr {
		hdr[i] = byte(bv.n >> (8 * i)) //nolint: gosec
	}
	hn, err := w.Write(hdr[:])
	if err != nil {
		return int64(hn), err
	}
	bn, err := bv.bm.WriteTo(w)

	return int64(hn) + bn, err
}

// Read parses a Bitvector previously written by WriteTo.
func Read(r io.Reader) (*Bitvector, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTruncatedFile, err)
	}
	var n uint64
	for i := range hdr {
		n |= uint64(hdr[i]) << (8 * i)
	}
	bm := roaring.NewBitmap()
	if _, err := bm.ReadFrom(r); err != nil {
		return nil, err
	}

	return fromBitmap(bm, n), nil
}

// FromBuffer builds a Bitvector that aliases data without copying it,
// for use by the memory-mapped bitmap store: releasing the mapping
// invalidates every Bitvector built this way.
func FromBuffer(data []byte, n uint64) (*Bitvector, error) {
	bm := roaring.NewBitmap()
	if _, err := bm.FromBuffer(data); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTruncatedFile, err)
	}

	return fromBitmap(bm, n), nil
}

// Or computes the union of many bitvectors without mutating any of
// them. It is a thin convenience wrapper; the bit-combination core in
// package combine does size-aware strategy selection and calls into
// Bitvector's in-place Or for the actual work.
func Or(n uint64, bvs ...*Bitvector) (*Bitvector, error) {
	result := New(n)
	for _, b := range bvs {
		if err := result.Or(b); err != nil {
			return nil, err
		}
	}

	return result, nil
}
