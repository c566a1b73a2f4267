// Package direct implements the direct encoding:
// when column values are small non-negative integers, the value itself
// is used as the bitvector index, with no key/mapping table at all.
package direct

import (
	"fmt"
	"io"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/bitvector"
	"github.com/ibisdb/bitidx/column"
	"github.com/ibisdb/bitidx/combine"
	"github.com/ibisdb/bitidx/encidx"
	"github.com/ibisdb/bitidx/errs"
	"github.com/ibisdb/bitidx/format"
	"github.com/ibisdb/bitidx/offset"
)

// Index is a direct encoding: bits[v] holds the positions where column
// == v, for v in [0, domain).
type Index struct {
	n      uint64
	domain uint64
	bits   []*bitvector.Bitvector
}

var _ encidx.Encoding = (*Index)(nil)

// Build requires every valid value to be a non-negative integer less
// than domain; values outside [0, domain) fail the build.
func Build[T column.Numeric](src column.ValueSource[T], domain uint64) (*Index, error) {
	info := src.Info()
	values := src.Values()
	n := uint64(len(values))

	bits := make([]*bitvector.Bitvector, domain)
	for v := range bits {
		bits[v] = bitvector.New(n)
	}
	for i, v := range values {
		if !info.Valid(i) {
			continue
		}
		if v < 0 || uint64(v) >= domain {
			return nil, fmt.Errorf("%w: value %v at row %d, domain [0,%d)", errs.ErrValueOutOfDomain, v, i, domain)
		}
		bits[uint64(v)].SetBit(uint64(i))
	}

	return &Index{n: n, domain: domain, bits: bits}, nil
}

// Append extends the index in place with the rows of tail, per
// the append note. Every bin's bitvector is grown to the new
// row count and each valid row of tail sets the bit for its own value
// at its offset position; values outside [0, domain) fail the append,
// matching Build's domain check.
func Append[T column.Numeric](idx *Index, tail column.ValueSource[T]) error {
	info := tail.Info()
	values := tail.Values()
	newN := idx.n + uint64(len(values))

	for _, bv := range idx.bits {
		bv.Grow(newN)
	}

	base := idx.n
	for i, v := range values {
		if !info.Valid(i) {
			continue
		}
		if v < 0 || uint64(v) >= idx.domain {
			return fmt.Errorf("%w: value %v at row %d, domain [0,%d)", errs.ErrValueOutOfDomain, v, i, idx.domain)
		}
		idx.bits[uint64(v)].SetBit(base + uint64(i))
	}
	idx.n = newN

	return nil
}

func (idx *Index) Estimate(p encidx.Predicate) (encidx.Estimate, error) {
	bv, err := idx.evalExact(p)
	if err != nil {
		return encidx.Estimate{}, err
	}

	return encidx.Estimate{Lower: bv, Upper: bv}, nil
}

func (idx *Index) evalExact(p encidx.Predicate) (*bitvector.Bitvector, error) {
	switch p.Kind {
	case encidx.PredSet:
		var matching []*bitvector.Bitvector
		for _, v := range p.Values {
			if bv := idx.at(v); bv != nil {
				matching = append(matching, bv)
			}
		}

		return combine.Or(idx.n, matching)
	case encidx.PredRange:
		lo, hi := int(p.X), int(p.Y)
		if lo < 0 {
			lo = 0
		}
		if hi >= int(idx.domain) {
			hi = int(idx.domain) - 1
		}
		if lo > hi {
			return bitvector.New(idx.n), nil
		}

		return combine.Or(idx.n, idx.bits[lo:hi+1])
	case encidx.PredCompare:
		var lo, hi int
		switch p.Op {
		case encidx.OpEQ:
			if bv := idx.at(p.X); bv != nil {
				return bv.Clone(), nil
			}

			return bitvector.New(idx.n), nil
		case encidx.OpLE:
			lo, hi = 0, int(p.X)
		case encidx.OpLT:
			lo, hi = 0, int(p.X)-1
		case encidx.OpGE:
			lo, hi = int(p.X), int(idx.domain)-1
		case encidx.OpGT:
			lo, hi = int(p.X)+1, int(idx.domain)-1
		}
		if lo < 0 {
			lo = 0
		}
		if hi >= int(idx.domain) {
			hi = int(idx.domain) - 1
		}
		if lo > hi {
			return bitvector.New(idx.n), nil
		}

		return combine.Or(idx.n, idx.bits[lo:hi+1])
	}

	return bitvector.New(idx.n), nil
}

func (idx *Index) at(v float64) *bitvector.Bitvector {
	if v < 0 || uint64(v) >= idx.domain {
		return nil
	}

	return idx.bits[uint64(v)]
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

	return total
}

// Serialize writes the header (tag 21). There is no
// bounds table: the domain is implicit in M, the bitvector count.
func (idx *Index) Serialize(w io.Writer) error {
	width := offset.ChooseWidth(len(idx.bits), maxBytes(idx.bits))
	if err := encidx.WriteHeader(w, encidx.Header{Tag: format.TagDirect, Width: width}); err != nil {
		return err
	}

	return encidx.WriteBody(w, encidx.Body{N: idx.n, Bits: idx.bits})
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

// AllBits returns the full bits[0..domain) slice, for callers (such as
// encidx/multicomp) that embed a direct sub-encoding inside a larger
// serialized body instead of writing their own header.
func (idx *Index) AllBits() []*bitvector.Bitvector { return idx.bits }

// FromBits reconstructs a direct.Index directly from an already
// materialized bits slice, for callers that parsed the body themselves
// (encidx/multicomp, whose components share one outer header).
func FromBits(n uint64, bits []*bitvector.Bitvector) *Index {
	return &Index{n: n, domain: uint64(len(bits)), bits: bits}
}

// Deserialize reconstructs an Index previously written by Serialize.
func Deserialize(r io.Reader, width offset.Width) (*Index, error) {
	body, err := encidx.ReadBody(r, width)
	if err != nil {
		return nil, err
	}

	return &Index{n: body.N, domain: uint64(len(body.Bits)), bits: body.Bits}, nil
}

// Uncompress rewrites bitvectors larger than threshold bytes into
// their decompressed form; threshold 0 rewrites all of them.
func (idx *Index) Uncompress(threshold uint64) {
	encidx.UncompressBits(idx.bits, threshold)
}
