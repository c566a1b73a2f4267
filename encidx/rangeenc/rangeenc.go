// Package rangeenc implements the cumulative-equality ("range")
// encoding: bits[k] holds the positions where the
// column is <= keys[k]. A continuous range v < x <= w is answered with
// one OR plus one ANDNOT, the defining advantage of this encoding over
// basic equality for ordered predicates.
package rangeenc

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

// Index is a cumulative-equality (range) encoding: bits[k] = positions
// where column <= keys[k]. keys[len(keys)-1] always equals the column
// maximum, so bits[last] covers every valid row.
type Index struct {
	n    uint64
	keys []float64
	bits []*bitvector.Bitvector
}

var (
	_ encidx.Encoding = (*Index)(nil)
	_ Joinable        = (*Index)(nil)
)

// Build assigns each distinct value an index k and accumulates
// bits[k] = bits[k-1] | (rows equal to keys[k]), so each successive
// bitvector already holds the full <= keys[k] set.
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
	acc := bitvector.New(n)
	for i, k := range keys {
		for _, row := range groups[k] {
			acc.SetBit(row)
		}
		bits[i] = acc.Clone()
	}

	return &Index{n: n, keys: keys, bits: bits}, nil
}

// Keys returns the distinct values this index was built over.
func (idx *Index) Keys() []float64 { return idx.keys }

// CumulativeDistribution reports, for each distinct key in ascending
// order, the count of rows with value <= that key: a direct read of
// the cumulative bitvectors this encoding already maintains.
func (idx *Index) CumulativeDistribution() (bounds []float64, counts []uint64) {
	bounds = make([]float64, len(idx.keys))
	counts = make([]uint64, len(idx.keys))
	copy(bounds, idx.keys)
	for i, bv := range idx.bits {
		counts[i] = bv.Cnt()
	}

	return bounds, counts
}

// bucket returns the largest k with keys[k] <= v, or -1 if v is below
// every key.
func (idx *Index) bucket(v float64) int {
	i := sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] > v })

	return i - 1
}

// le returns the bitvector of rows with value <= v.
func (idx *Index) le(v float64) *bitvector.Bitvector {
	k := idx.bucket(v)
	if k < 0 {
		return bitvector.New(idx.n)
	}

	return idx.bits[k]
}

// gt returns the bitvector of rows with value > v, computed as the
// complement of le(v).
func (idx *Index) gt(v float64) (*bitvector.Bitvector, error) {
	result := idx.le(v).Clone()
	result.Flip()

	return result, nil
}

// Estimate is always exact: the cumulative structure answers every
// supported predicate with no uncertainty.
func (idx *Index) Estimate(p encidx.Predicate) (encidx.Estimate, error) {
	bv, err := idx.evalExact(p)
	if err != nil {
		return encidx.Estimate{}, err
	}

	return encidx.Estimate{Lower: bv, Upper: bv}, nil
}

func (idx *Index) evalExact(p encidx.Predicate) (*bitvector.Bitvector, error) {
	switch p.Kind {
	case encidx.PredCompare:
		switch p.Op {
		case encidx.OpLE:
			return idx.le(p.X).Clone(), nil
		case encidx.OpLT:
			return idx.leExclusive(p.X), nil
		case encidx.OpGT:
			return idx.gt(p.X)
		case encidx.OpGE:
			return idx.geq(p.X)
		case encidx.OpEQ:
			return idx.eq(p.X), nil
		}
	case encidx.PredRange:
		lo, err := idx.geq(p.X)
		if err != nil {
			return nil, err
		}
		hi := idx.le(p.Y)
		if err := lo.And(hi); err != nil {
			return nil, err
		}

		return lo, nil
	case encidx.PredSet:
		var matching []*bitvector.Bitvector
		for _, v := range p.Values {
			matching = append(matching, idx.eq(v))
		}

		return combine.Or(idx.n, matching)
	}

	return bitvector.New(idx.n), nil
}

func (idx *Index) leExclusive(v float64) *bitvector.Bitvector {
	k := idx.bucket(v)
	if k >= 0 && idx.keys[k] == v {
		k--
	}
	if k < 0 {
		return bitvector.New(idx.n)
	}

	return idx.bits[k].Clone()
}

func (idx *Index) geq(v float64) (*bitvector.Bitvector, error) {
	result := idx.leExclusive(v)
	result.Flip()

	return result, nil
}

func (idx *Index) eq(v float64) *bitvector.Bitvector {
	k := idx.bucket(v)
	if k < 0 || idx.keys[k] != v {
		return bitvector.New(idx.n)
	}
	lower := bitvector.New(idx.n)
	if k > 0 {
		lower = idx.bits[k-1].Clone()
	}
	result := idx.bits[k].Clone()
	_ = result.AndNot(lower)

	return result
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

// Joinable is the contract join-capable encodings satisfy.
// EstimateJoin answers |u-v| <= delta between
// this index's column (u) and other's column (v), aligned by row
// position (both columns belong to the same partition). Because the
// cumulative bit arrays only bound one column's value per row, the
// tightest estimate available without a residual scan is the trivial
// envelope (empty, everything), since no bounds table here indexes
// pairs of rows. No exact join answer is computed: Estimate and
// Evaluate return no rows for a PredJoin predicate, and nothing in
// this package scans the two columns' raw values.
type Joinable interface {
	EstimateJoin(other Joinable, delta float64) (encidx.Estimate, error)
	Size() uint64
}

func (idx *Index) Size() uint64 { return idx.n }

// EstimateJoin returns the trivial (empty, everything) envelope; see
// the Joinable doc comment for why a tighter bound isn't available
// from this encoding's bit arrays alone.
func (idx *Index) EstimateJoin(other Joinable, delta float64) (encidx.Estimate, error) {
	return encidx.Estimate{Lower: bitvector.New(idx.n), Upper: bitvector.Set(1, idx.n)}, nil
}

// Serialize writes the header (tag 1) plus a bounds table
// of the distinct keys.
func (idx *Index) Serialize(w io.Writer) error {
	width := offset.ChooseWidth(len(idx.bits), maxBytes(idx.bits))
	if err := encidx.WriteHeader(w, encidx.Header{Tag: format.TagRange, Width: width}); err != nil {
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
