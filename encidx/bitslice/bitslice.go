// Package bitslice implements the bit-slice (binary-coded) encoding:
// one bitvector per bit of the column's (reduced-
// precision) integer representation. Range queries walk the slices
// from the high bit to the low bit with short-circuit, the classic
// bit-sliced index (BSI) range-comparison algorithm.
package bitslice

import (
	"io"
	"math"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/bitvector"
	"github.com/ibisdb/bitidx/column"
	"github.com/ibisdb/bitidx/encidx"
	"github.com/ibisdb/bitidx/errs"
	"github.com/ibisdb/bitidx/format"
	"github.com/ibisdb/bitidx/offset"
)

// Index is a bit-slice encoding over the domain [min, max], stored as
// unsigned offsets from min. slices[b] holds the positions where bit b
// of (value - min) is set; slices[len(slices)-1] is the most
// significant bit actually needed to represent max-min.
type Index struct {
	n      uint64
	min    int64
	slices []*bitvector.Bitvector // low bit first
}

var _ encidx.Encoding = (*Index)(nil)

// Build rounds every valid value to the nearest integer, computes the
// minimum as the domain origin, and emits one bitvector per bit needed
// to represent max-min.
func Build[T column.Numeric](src column.ValueSource[T]) (*Index, error) {
	info := src.Info()
	values := src.Values()
	n := uint64(len(values))

	var min, max int64
	first := true
	rounded := make([]int64, len(values))
	valid := make([]bool, len(values))
	for i, v := range values {
		if !info.Valid(i) {
			continue
		}
		r := int64(math.Round(float64(v)))
		rounded[i] = r
		valid[i] = true
		if first {
			min, max = r, r
			first = false

			continue
		}
		if r < min {
			min = r
		}
		if r > max {
			max = r
		}
	}

	width := bitsNeeded(uint64(max - min))
	slices := make([]*bitvector.Bitvector, width)
	for b := range slices {
		slices[b] = bitvector.New(n)
	}
	for i := range values {
		if !valid[i] {
			continue
		}
		off := uint64(rounded[i] - min)
		for b := range slices {
			if off&(1<<uint(b)) != 0 {
				slices[b].SetBit(uint64(i))
			}
		}
	}

	return &Index{n: n, min: min, slices: slices}, nil
}

func bitsNeeded(span uint64) int {
	w := 0
	for span > 0 {
		w++
		span >>= 1
	}
	if w == 0 {
		w = 1
	}

	return w
}

// toDomain rounds and shifts a predicate value into the stored
// unsigned domain. A value below min yields a negative offset, which
// leq answers with no rows (and geq/gt, by inverting leq, with every
// row).
func (idx *Index) toDomain(v float64) int64 {
	return int64(math.Round(v)) - idx.min
}

// leq returns the positions where value <= x, using the standard BSI
// range-comparison walk: maintain eq (rows still tied with x at every
// bit seen so far) and result (rows already known <= x); at each bit,
// rows where the stored bit is 0 but x's bit is 1 become decided (<=),
// and the tie narrows to rows whose bit matches x's bit.
func (idx *Index) leq(x int64) *bitvector.Bitvector {
	if x < 0 {
		return bitvector.New(idx.n)
	}
	if maxOff := int64(1)<<uint(len(idx.slices)) - 1; x > maxOff {
		x = maxOff // every stored offset fits in the slice width
	}

	eq := bitvector.Set(1, idx.n)
	result := bitvector.New(idx.n)
	for b := len(idx.slices) - 1; b >= 0; b-- {
		bitVec := idx.slices[b]
		if x&(1<<uint(b)) != 0 {
			decided := eq.Clone()
			_ = decided.AndNot(bitVec)
			_ = result.Or(decided)
			_ = eq.And(bitVec)
		} else {
			notBit := bitVec.Clone()
			notBit.Flip()
			_ = eq.And(notBit)
		}
		if eq.IsEmpty() {
			break
		}
	}
	_ = result.Or(eq)

	return result
}

func (idx *Index) lt(x int64) *bitvector.Bitvector {
	return idx.leq(x - 1)
}

func (idx *Index) geq(x int64) *bitvector.Bitvector {
	result := idx.lt(x)
	result.Flip()

	return result
}

func (idx *Index) gt(x int64) *bitvector.Bitvector {
	result := idx.leq(x)
	result.Flip()

	return result
}

func (idx *Index) eq(x int64) *bitvector.Bitvector {
	result := idx.geq(x)
	_ = result.And(idx.leq(x))

	return result
}

// Estimate is always exact: bit-slice range evaluation never needs a
// residual scan.
func (idx *Index) Estimate(p encidx.Predicate) (encidx.Estimate, error) {
	var bv *bitvector.Bitvector
	switch p.Kind {
	case encidx.PredCompare:
		x := idx.toDomain(p.X)
		switch p.Op {
		case encidx.OpLE:
			bv = idx.leq(x)
		case encidx.OpLT:
			bv = idx.lt(x)
		case encidx.OpGE:
			bv = idx.geq(x)
		case encidx.OpGT:
			bv = idx.gt(x)
		case encidx.OpEQ:
			bv = idx.eq(x)
		}
	case encidx.PredRange:
		bv = idx.geq(idx.toDomain(p.X))
		_ = bv.And(idx.leq(idx.toDomain(p.Y)))
	case encidx.PredSet:
		bv = bitvector.New(idx.n)
		for _, v := range p.Values {
			_ = bv.Or(idx.eq(idx.toDomain(v)))
		}
	default:
		bv = bitvector.New(idx.n)
	}

	return encidx.Estimate{Lower: bv, Upper: bv}, nil
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
	for _, bv := range idx.slices {
		total += bv.Bytes()
	}

	return total + 8
}

// Serialize writes the header (tag 27). The domain
// minimum is stashed as the sole bounds-table entry since the body
// format has no other slot for a scalar origin.
func (idx *Index) Serialize(w io.Writer) error {
	width := offset.ChooseWidth(len(idx.slices), maxBytes(idx.slices))
	if err := encidx.WriteHeader(w, encidx.Header{Tag: format.TagBitSlice, Width: width}); err != nil {
		return err
	}

	return encidx.WriteBody(w, encidx.Body{N: idx.n, Bits: idx.slices, Bounds: []float64{float64(idx.min)}})
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
	var min int64
	if len(body.Bounds) > 0 {
		min = int64(body.Bounds[0])
	}

	return &Index{n: body.N, min: min, slices: body.Bits}, nil
}

// Uncompress rewrites slices larger than threshold bytes into their
// decompressed form; threshold 0 rewrites all of them.
func (idx *Index) Uncompress(threshold uint64) {
	encidx.UncompressBits(idx.slices, threshold)
}
