// Package equality implements the basic-equality encoding: one
// bitvector per distinct value, answering a discrete-
// set query with one OR per value. It is the simplest encoding and the
// building block every other encoding's per-component sub-index
// (multicomponent) or per-bin sub-index (binned) ultimately bottoms
// out in.
package equality

import (
	"io"
	"sort"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/bitvector"
	"github.com/ibisdb/bitidx/column"
	"github.com/ibisdb/bitidx/combine"
	"github.com/ibisdb/bitidx/encidx"
	"github.com/ibisdb/bitidx/errs"
	"github.com/ibisdb/bitidx/format"
	"github.com/ibisdb/bitidx/offset"
)

// Index is a basic-equality encoding: bits[k] holds the positions
// where the column equals keys[k].
type Index struct {
	n    uint64
	keys []float64
	bits []*bitvector.Bitvector
}

var _ encidx.Encoding = (*Index)(nil)

// Build groups every valid row of src by its value and assigns one
// bitvector per distinct value, in ascending key order.
func Build[T column.Numeric](src column.ValueSource[T]) (*Index, error) {
	info := src.Info()
	values := src.Values()
	n := uint64(len(values))

	groups := make(map[float64][]uint64)
	for i, v := range values {
		if !info.Valid(i) {
			continue
		}
		f := float64(v)
		groups[f] = append(groups[f], uint64(i))
	}

	keys := make([]float64, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	bits := make([]*bitvector.Bitvector, len(keys))
	for i, k := range keys {
		bv := bitvector.New(n)
		for _, row := range groups[k] {
			bv.SetBit(row)
		}
		bits[i] = bv
	}

	return &Index{n: n, keys: keys, bits: bits}, nil
}

// Keys returns the distinct values this index was built over, in
// ascending order.
func (idx *Index) Keys() []float64 { return idx.keys }

// Append extends the index in place with the rows of tail, per
// the append note ("supported by the encoding only if the
// append path reconstructs the tail bitvectors"): every existing
// bitvector is grown to the new row count, new keys introduced by tail
// get a fresh bitvector sized to the new total, and every row of tail
// sets the bit for its own value at its offset row position. Existing
// rows and their bit positions are untouched.
func Append[T column.Numeric](idx *Index, tail column.ValueSource[T]) error {
	info := tail.Info()
	values := tail.Values()
	newN := idx.n + uint64(len(values))

	for _, bv := range idx.bits {
		bv.Grow(newN)
	}

	byKey := make(map[float64]*bitvector.Bitvector, len(idx.keys))
	for i, k := range idx.keys {
		byKey[k] = idx.bits[i]
	}

	base := idx.n
	for i, v := range values {
		if !info.Valid(i) {
			continue
		}
		f := float64(v)
		bv, ok := byKey[f]
		if !ok {
			bv = bitvector.New(newN)
			byKey[f] = bv
			idx.keys = append(idx.keys, f)
		}
		bv.SetBit(base + uint64(i))
	}

	sort.Float64s(idx.keys)
	idx.bits = make([]*bitvector.Bitvector, len(idx.keys))
	for i, k := range idx.keys {
		idx.bits[i] = byKey[k]
	}
	idx.n = newN

	return nil
}

// Distribution reports, for each distinct key in ascending order, the
// number of rows holding that value — the Go analogue of the source
// system's index::getDistribution (bin boundaries plus per-bin
// counts), specialized to equality's per-value "bins".
func (idx *Index) Distribution() (values []float64, counts []uint64) {
	values = make([]float64, len(idx.keys))
	counts = make([]uint64, len(idx.keys))
	copy(values, idx.keys)
	for i, bv := range idx.bits {
		counts[i] = bv.Cnt()
	}

	return values, counts
}

// BitForValue returns the bitvector for key v, or nil if v was never
// seen during Build.
func (idx *Index) BitForValue(v float64) *bitvector.Bitvector {
	i := sort.SearchFloat64s(idx.keys, v)
	if i >= len(idx.keys) || idx.keys[i] != v {
		return nil
	}

	return idx.bits[i]
}

// Estimate is always exact: equality partitions the column exactly,
// so Lower and Upper are the same bitvector.
func (idx *Index) Estimate(p encidx.Predicate) (encidx.Estimate, error) {
	var matching []*bitvector.Bitvector
	for _, k := range idx.keys {
		if encidx.Match(p, k) {
			if bv := idx.BitForValue(k); bv != nil {
				matching = append(matching, bv)
			}
		}
	}
	result, err := combine.Or(idx.n, matching)
	if err != nil {
		return encidx.Estimate{}, err
	}

	return encidx.Estimate{Lower: result, Upper: result}, nil
}

func (idx *Index) Evaluate(ctx *bitidx.Context, p encidx.Predicate) (*bitvector.Bitvector, error) {
	if ctx.Cancelled() {
		return nil, errs.ErrCancelled
	}
	est, err := idx.Estimate(p)
	if err != nil {
		return nil, err
	}

	return est.Lower, nil
}

func (idx *Index) Undecidable(ctx *bitidx.Context, p encidx.Predicate) (*bitvector.Bitvector, float64, error) {
	return bitvector.New(idx.n), 0, nil
}

func (idx *Index) SizeInBytes() uint64 {
	var total uint64
	for _, bv := range idx.bits {
		total += bv.Bytes()
	}

	return total + uint64(len(idx.keys))*8
}

// Serialize writes the header (tag 7) plus a body whose
// bounds table holds the distinct keys in ascending order, one per
// bitvector.
func (idx *Index) Serialize(w io.Writer) error {
	width := offset.ChooseWidth(len(idx.bits), maxBytes(idx.bits))
	if err := encidx.WriteHeader(w, encidx.Header{Tag: format.TagBasicEquality, Width: width}); err != nil {
		return err
	}

	return encidx.WriteBody(w, encidx.Body{N: idx.n, Bits: idx.bits, Bounds: idx.keys})
}

func maxBytes(bits []*bitvector.Bitvector) uint64 {
	var m uint64
	for _, bv := range bits {
		if b := bv.Bytes(); b > m {
			m = b
		}
	}

	return m
}

// Deserialize reconstructs an Index previously written by Serialize.
// The header must already have been consumed by the caller (typically
// the index factory), which passes the offset width it read.
func Deserialize(r io.Reader, width offset.Width) (*Index, error) {
	body, err := encidx.ReadBody(r, width)
	if err != nil {
		return nil, err
	}

	return &Index{n: body.N, keys: body.Bounds, bits: body.Bits}, nil
}

// Uncompress rewrites bitvectors larger than threshold bytes into
// their decompressed form; threshold 0 rewrites all of them.
func (idx *Index) Uncompress(threshold uint64) {
	encidx.UncompressBits(idx.bits, threshold)
}
