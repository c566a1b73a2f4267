// Package multicomp implements the multicomponent encoding family:
// the column's distinct-value cardinality is factored into
// per-component bases chosen by the top-level multicomp package's
// ChooseBases, and each component is indexed by its own small-domain
// direct sub-encoding.
package multicomp

import (
	"io"
	"sort"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/bitvector"
	"github.com/ibisdb/bitidx/column"
	"github.com/ibisdb/bitidx/combine"
	"github.com/ibisdb/bitidx/encidx"
	"github.com/ibisdb/bitidx/encidx/direct"
	"github.com/ibisdb/bitidx/errs"
	"github.com/ibisdb/bitidx/format"
	"github.com/ibisdb/bitidx/multicomp"
	"github.com/ibisdb/bitidx/offset"
)

// Index is a multicomponent encoding: keys[rank] is the original
// column value with that rank, and components[i] is a direct
// sub-encoding over digit i of the mixed-radix decomposition of rank,
// component 0 being the most significant digit.
type Index struct {
	n          uint64
	keys       []float64
	bases      []uint64
	placeVal   []uint64
	components []*direct.Index
}

var _ encidx.Encoding = (*Index)(nil)

// Build groups src's valid rows by distinct value, assigns each
// distinct value a rank in ascending order, factors the cardinality
// into per-component bases (top-level multicomp.ChooseBases), and
// builds one direct sub-encoding per component over that component's
// digit value for every row.
func Build[T column.Numeric](src column.ValueSource[T], components int) (*Index, error) {
	info := src.Info()
	values := src.Values()
	n := uint64(len(values))

	seen := make(map[float64]bool)
	for i, v := range values {
		if info.Valid(i) {
			seen[float64(v)] = true
		}
	}
	keys := make([]float64, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	c := uint64(len(keys))
	if c == 0 {
		c = 1
	}
	bases, err := multicomp.ChooseBases(c, components)
	if err != nil {
		return nil, err
	}

	placeVal := make([]uint64, len(bases))
	placeVal[len(bases)-1] = 1
	for i := len(bases) - 2; i >= 0; i-- {
		placeVal[i] = placeVal[i+1] * bases[i+1]
	}

	ranks := make([]int, len(values))
	for i, v := range values {
		if !info.Valid(i) {
			ranks[i] = -1

			continue
		}
		ranks[i] = sort.SearchFloat64s(keys, float64(v))
	}

	comps := make([]*direct.Index, len(bases))
	for i, base := range bases {
		digits := make([]uint64, len(values))
		for row, rank := range ranks {
			if rank < 0 {
				continue
			}
			digits[row] = (uint64(rank) / placeVal[i]) % base
		}
		digitSrc, err := column.NewMemorySource(info, digits)
		if err != nil {
			return nil, err
		}
		comp, err := direct.Build[uint64](digitSrc, base)
		if err != nil {
			return nil, err
		}
		comps[i] = comp
	}

	return &Index{n: n, keys: keys, bases: bases, placeVal: placeVal, components: comps}, nil
}

func (idx *Index) digits(rank uint64) []uint64 {
	d := make([]uint64, len(idx.bases))
	for i, base := range idx.bases {
		d[i] = (rank / idx.placeVal[i]) % base
	}

	return d
}

// bitForRank is the one-AND-per-component recombination that recovers
// the exact bitvector for a single rank: the defining multicomponent
// decode.
func (idx *Index) bitForRank(rank uint64) (*bitvector.Bitvector, error) {
	digits := idx.digits(rank)
	acc := bitvector.Set(1, idx.n)
	for i, comp := range idx.components {
		est, err := comp.Estimate(encidx.Predicate{Kind: encidx.PredCompare, Op: encidx.OpEQ, X: float64(digits[i])})
		if err != nil {
			return nil, err
		}
		if err := acc.And(est.Lower); err != nil {
			return nil, err
		}
	}

	return acc, nil
}

func (idx *Index) rankOf(v float64) (uint64, bool) {
	i := sort.SearchFloat64s(idx.keys, v)
	if i >= len(idx.keys) || idx.keys[i] != v {
		return 0, false
	}

	return uint64(i), true
}

// floorRank returns the largest rank r with keys[r] <= v, or -1.
func (idx *Index) floorRank(v float64) int {
	i := sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] > v })

	return i - 1
}

// ceilRank returns the smallest rank r with keys[r] >= v, or len(keys).
func (idx *Index) ceilRank(v float64) int {
	return sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] >= v })
}

func (idx *Index) orRanks(lo, hi int) (*bitvector.Bitvector, error) {
	if lo < 0 {
		lo = 0
	}
	if hi >= len(idx.keys) {
		hi = len(idx.keys) - 1
	}
	if lo > hi {
		return bitvector.New(idx.n), nil
	}
	bvs := make([]*bitvector.Bitvector, 0, hi-lo+1)
	for r := lo; r <= hi; r++ {
		bv, err := idx.bitForRank(uint64(r))
		if err != nil {
			return nil, err
		}
		bvs = append(bvs, bv)
	}

	return combine.Or(idx.n, bvs)
}

// Estimate is always exact: every predicate reduces to an exact OR of
// per-rank bitvectors.
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
		case encidx.OpEQ:
			rank, ok := idx.rankOf(p.X)
			if !ok {
				return bitvector.New(idx.n), nil
			}

			return idx.bitForRank(rank)
		case encidx.OpLE:
			return idx.orRanks(0, idx.floorRank(p.X))
		case encidx.OpLT:
			return idx.orRanks(0, idx.ceilRank(p.X)-1)
		case encidx.OpGE:
			return idx.orRanks(idx.ceilRank(p.X), len(idx.keys)-1)
		case encidx.OpGT:
			return idx.orRanks(idx.floorRank(p.X)+1, len(idx.keys)-1)
		}
	case encidx.PredRange:
		return idx.orRanks(idx.ceilRank(p.X), idx.floorRank(p.Y))
	case encidx.PredSet:
		var bvs []*bitvector.Bitvector
		for _, v := range p.Values {
			if rank, ok := idx.rankOf(v); ok {
				bv, err := idx.bitForRank(rank)
				if err != nil {
					return nil, err
				}
				bvs = append(bvs, bv)
			}
		}

		return combine.Or(idx.n, bvs)
	}

	return bitvector.New(idx.n), nil
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
	for _, comp := range idx.components {
		total += comp.SizeInBytes()
	}

	return total + uint64(len(idx.keys))*8
}

// Serialize writes the header (tag 12, multicomponent-equality) plus
// every component's bitvectors concatenated, bases in
// the bases vector, and keys in the bounds table. Component boundaries
// on read are recovered from the bases vector itself.
func (idx *Index) Serialize(w io.Writer) error {
	var all []*bitvector.Bitvector
	for _, comp := range idx.components {
		all = append(all, comp.AllBits()...)
	}
	width := offset.ChooseWidth(len(all), maxBytes(all))
	if err := encidx.WriteHeader(w, encidx.Header{Tag: format.TagMulticomponentEquality, Width: width}); err != nil {
		return err
	}
	bases32 := make([]uint32, len(idx.bases))
	for i, b := range idx.bases {
		bases32[i] = uint32(b) //nolint: gosec
	}

	return encidx.WriteBody(w, encidx.Body{N: idx.n, Bits: all, Bounds: idx.keys, Bases: bases32})
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
	if len(body.Bases) == 0 {
		return nil, errs.ErrBasesMismatch
	}
	bases := make([]uint64, len(body.Bases))
	for i, b := range body.Bases {
		bases[i] = uint64(b)
	}
	placeVal := make([]uint64, len(bases))
	placeVal[len(bases)-1] = 1
	for i := len(bases) - 2; i >= 0; i-- {
		placeVal[i] = placeVal[i+1] * bases[i+1]
	}

	comps := make([]*direct.Index, len(bases))
	cursor := 0
	for i, base := range bases {
		comps[i] = direct.FromBits(body.N, body.Bits[cursor:cursor+int(base)])
		cursor += int(base)
	}

	return &Index{n: body.N, keys: body.Bounds, bases: bases, placeVal: placeVal, components: comps}, nil
}

// Uncompress forwards the rewrite to every component sub-encoding.
func (idx *Index) Uncompress(threshold uint64) {
	for _, c := range idx.components {
		c.Uncompress(threshold)
	}
}
