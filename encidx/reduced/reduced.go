// Package reduced implements the reduced-precision equality encoding
// (wire tags bak/bak2): floating-point values are
// rounded to a coarser mantissa precision before equality grouping, so
// Estimate is not exact — Evaluate falls back to a residual scan over
// the rows an estimate could not decide.
package reduced

import (
	"io"
	"math"
	"sort"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/bitvector"
	"github.com/ibisdb/bitidx/column"
	"github.com/ibisdb/bitidx/combine"
	"github.com/ibisdb/bitidx/encidx"
	"github.com/ibisdb/bitidx/format"
	"github.com/ibisdb/bitidx/offset"
)

// Index is a reduced-precision equality encoding: bits[k] holds the
// rows whose value, after Round, equals keys[k]. Round truncates the
// low mantissa bits of the IEEE-754 representation, the same family of
// technique bak/bak2 name at two different precisions.
type Index struct {
	n          uint64
	precision  int // mantissa bits kept, 0..52
	keys       []float64
	bits       []*bitvector.Bitvector
	get        func(row uint64) (float64, bool) // raw value + validity, for residual scans
}

var _ encidx.Encoding = (*Index)(nil)

// Round truncates v's mantissa to keepBits bits, rounding toward zero
// in representation space (not numeric value), matching the bitwise
// technique bak/bak2 use to collapse nearby floats into one bin.
func Round(v float64, keepBits int) float64 {
	if keepBits >= 52 {
		return v
	}
	bits := math.Float64bits(v)
	drop := 52 - keepBits
	if drop <= 0 {
		return v
	}
	if drop >= 52 {
		drop = 52
	}
	mask := ^uint64(0) << uint(drop) //nolint: gosec
	bits &= mask

	return math.Float64frombits(bits)
}

// Build groups src's valid rows by Round(value, precisionBits) and
// keeps a closure over src so Evaluate can residual-scan.
func Build[T column.Numeric](src column.ValueSource[T], precisionBits int) (*Index, error) {
	info := src.Info()
	values := src.Values()
	n := uint64(len(values))

	groups := make(map[float64][]uint64)
	for i, v := range values {
		if !info.Valid(i) {
			continue
		}
		r := Round(float64(v), precisionBits)
		groups[r] = append(groups[r], uint64(i))
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

	get := func(row uint64) (float64, bool) {
		i := int(row)
		if !info.Valid(i) {
			return 0, false
		}

		return float64(src.At(i)), true
	}

	return &Index{n: n, precision: precisionBits, keys: keys, bits: bits, get: get}, nil
}

func (idx *Index) bitsForRoundedMatch(matches func(k float64) bool) []*bitvector.Bitvector {
	var out []*bitvector.Bitvector
	for i, k := range idx.keys {
		if matches(k) {
			out = append(out, idx.bits[i])
		}
	}

	return out
}

// Estimate returns an upper bound built from every bin whose rounded
// key could plausibly satisfy the predicate (since rounding loses
// information, a rounded-equal key does not prove the original value
// matched); Lower is conservatively empty's
// (lower, upper) envelope for inexact encodings.
func (idx *Index) Estimate(p encidx.Predicate) (encidx.Estimate, error) {
	var matching []*bitvector.Bitvector
	switch p.Kind {
	case encidx.PredSet:
		want := make(map[float64]bool, len(p.Values))
		for _, v := range p.Values {
			want[Round(v, idx.precision)] = true
		}
		matching = idx.bitsForRoundedMatch(func(k float64) bool { return want[k] })
	default:
		// Round is non-decreasing, so a matching value's key satisfies the
		// predicate with its bounds rounded and strict comparisons relaxed.
		q := p
		q.X, q.Y = Round(p.X, idx.precision), Round(p.Y, idx.precision)
		if q.Kind == encidx.PredCompare && q.Op == encidx.OpLT {
			q.Op = encidx.OpLE
		} else if q.Kind == encidx.PredCompare && q.Op == encidx.OpGT {
			q.Op = encidx.OpGE
		}
		matching = idx.bitsForRoundedMatch(func(k float64) bool { return encidx.Match(q, k) })
	}

	upper, err := combine.Or(idx.n, matching)
	if err != nil {
		return encidx.Estimate{}, err
	}

	return encidx.Estimate{Lower: bitvector.New(idx.n), Upper: upper}, nil
}

func (idx *Index) Evaluate(ctx *bitidx.Context, p encidx.Predicate) (*bitvector.Bitvector, error) {
	iffy, _, err := idx.Undecidable(ctx, p)
	if err != nil {
		return nil, err
	}
	empty := bitvector.New(idx.n)

	return encidx.ResidualScan(ctx, empty, iffy, func(row uint64) bool {
		v, ok := idx.get(row)

		return ok && encidx.Match(p, v)
	})
}

func (idx *Index) Undecidable(ctx *bitidx.Context, p encidx.Predicate) (*bitvector.Bitvector, float64, error) {
	est, err := idx.Estimate(p)
	if err != nil {
		return nil, 0, err
	}
	iffy := est.Upper.Clone()
	_ = iffy.AndNot(est.Lower)
	frac := encidx.Fraction(ctx, iffy, 256, func(row uint64) bool {
		v, ok := idx.get(row)

		return ok && encidx.Match(p, v)
	})

	return iffy, frac, nil
}

func (idx *Index) SizeInBytes() uint64 {
	var total uint64
	for _, bv := range idx.bits {
		total += bv.Bytes()
	}

	return total + uint64(len(idx.keys))*8
}

// Serialize writes the header (tag bak by default; bak2 is the same
// encoding at a different precision, distinguished only by the
// precision value carried in Bases, not by tag — both decode through
// this same Deserialize).
func (idx *Index) Serialize(w io.Writer) error {
	return idx.serializeTag(w, format.TagBak)
}

func (idx *Index) serializeTag(w io.Writer, tag format.Tag) error {
	width := offset.ChooseWidth(len(idx.bits), maxBytes(idx.bits))
	if err := encidx.WriteHeader(w, encidx.Header{Tag: tag, Width: width}); err != nil {
		return err
	}
	bases := []uint32{uint32(idx.precision)} //nolint: gosec

	return encidx.WriteBody(w, encidx.Body{N: idx.n, Bits: idx.bits, Bounds: idx.keys, Bases: bases})
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
// The reconstructed Index has no residual-scan source until
// AttachSource is called with the reopened column; queries that never
// land in the iffy set still answer correctly without it.
func Deserialize(r io.Reader, width offset.Width) (*Index, error) {
	body, err := encidx.ReadBody(r, width)
	if err != nil {
		return nil, err
	}
	precision := 52
	if len(body.Bases) > 0 {
		precision = int(body.Bases[0])
	}

	return &Index{n: body.N, precision: precision, keys: body.Bounds, bits: body.Bits}, nil
}

// AttachSource rebinds a residual-scan source to an Index obtained
// from Deserialize, mirroring how a reopened index reattaches to the
// data file's value-extraction façade.
func AttachSource[T column.Numeric](idx *Index, src column.ValueSource[T]) {
	info := src.Info()
	idx.get = func(row uint64) (float64, bool) {
		i := int(row)
		if !info.Valid(i) {
			return 0, false
		}

		return float64(src.At(i)), true
	}
}

// Uncompress rewrites bitvectors larger than threshold bytes into
// their decompressed form; threshold 0 rewrites all of them.
func (idx *Index) Uncompress(threshold uint64) {
	encidx.UncompressBits(idx.bits, threshold)
}
