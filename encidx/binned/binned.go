// Package binned implements the two-level binned encoding family
// (wire tags ambit/pale/pack/zone and their unbinned twins): a coarse
// partition of the distinct-value histogram into K approximately
// equal-weight groups (binbuild.DivideCounts), one bitvector per
// group. A range query ORs the bins fully contained in the query
// range exactly, and residual-scans the two boundary bins.
package binned

import (
	"io"
	"sort"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/binbuild"
	"github.com/ibisdb/bitidx/bitvector"
	"github.com/ibisdb/bitidx/column"
	"github.com/ibisdb/bitidx/combine"
	"github.com/ibisdb/bitidx/encidx"
	"github.com/ibisdb/bitidx/format"
	"github.com/ibisdb/bitidx/offset"
)

// Index is a two-level binned encoding: bits[g] holds the rows whose
// value falls in group g's half-open key range [keys[bounds[g]],
// keys[bounds[g+1]]) (the last group's range is closed on the right).
type Index struct {
	n      uint64
	keys   []float64
	bounds binbuild.Bounds
	bits   []*bitvector.Bitvector
	get    func(row uint64) (float64, bool)
}

var _ encidx.Encoding = (*Index)(nil)

// Build divides src's value histogram into k bins (binbuild.DivideCounts)
// and unions the per-value equality bitvectors within each bin.
func Build[T column.Numeric](src column.ValueSource[T], k int) (*Index, error) {
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

	histogram := make([]uint64, len(keys))
	for i, k := range keys {
		histogram[i] = uint64(len(groups[k]))
	}

	bounds, err := binbuild.DivideCounts(histogram, k)
	if err != nil {
		return nil, err
	}

	bits := make([]*bitvector.Bitvector, bounds.Groups())
	for g := range bits {
		bv := bitvector.New(n)
		for i := bounds[g]; i < bounds[g+1]; i++ {
			for _, row := range groups[keys[i]] {
				bv.SetBit(row)
			}
		}
		bits[g] = bv
	}

	get := func(row uint64) (float64, bool) {
		i := int(row)
		if !info.Valid(i) {
			return 0, false
		}

		return float64(src.At(i)), true
	}

	return &Index{n: n, keys: keys, bounds: bounds, bits: bits, get: get}, nil
}

// floorRank returns the largest rank whose key is <= v (so v falls at or
// after that key), or -1 if v is below every key.
func (idx *Index) floorRank(v float64) int {
	i := sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] > v })

	return i - 1
}

func (idx *Index) ceilRank(v float64) int {
	return sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] >= v })
}

// groupOf returns the bin index containing rank, clamped to the
// nearest valid group if rank is out of [0, len(keys)).
func (idx *Index) groupOf(rank int) int {
	if rank < 0 {
		return 0
	}
	if rank >= len(idx.keys) {
		return len(idx.bits) - 1
	}

	return sort.Search(idx.bounds.Groups(), func(g int) bool { return idx.bounds[g+1] > rank })
}

// envelope returns (lower, upper) for the inclusive rank range
// [loRank, hiRank]: interior bins fully inside the range are exact and
// go into both lower and upper; the two boundary bins are added only
// to upper.
func (idx *Index) envelope(loRank, hiRank int) (*bitvector.Bitvector, *bitvector.Bitvector, error) {
	if loRank > hiRank || hiRank < 0 || loRank >= len(idx.keys) {
		return bitvector.New(idx.n), bitvector.New(idx.n), nil
	}
	if loRank < 0 {
		loRank = 0
	}
	if hiRank >= len(idx.keys) {
		hiRank = len(idx.keys) - 1
	}

	loGroup := idx.groupOf(loRank)
	hiGroup := idx.groupOf(hiRank)

	if loGroup == hiGroup {
		upper := idx.bits[loGroup].Clone()

		return bitvector.New(idx.n), upper, nil
	}

	interiorLo, interiorHi := loGroup+1, hiGroup-1
	var interior *bitvector.Bitvector
	var err error
	if interiorLo <= interiorHi {
		interior, err = combine.Or(idx.n, idx.bits[interiorLo:interiorHi+1])
		if err != nil {
			return nil, nil, err
		}
	} else {
		interior = bitvector.New(idx.n)
	}

	upper := interior.Clone()
	_ = upper.Or(idx.bits[loGroup])
	_ = upper.Or(idx.bits[hiGroup])

	return interior, upper, nil
}

// Estimate implements the binned range evaluation: lower is
// the OR of bins fully contained in the predicate's value range, upper
// additionally includes the two boundary bins.
func (idx *Index) Estimate(p encidx.Predicate) (encidx.Estimate, error) {
	var loRank, hiRank int
	switch p.Kind {
	case encidx.PredRange:
		loRank, hiRank = idx.floorRank(p.X), idx.floorRank(p.Y)
	case encidx.PredCompare:
		switch p.Op {
		case encidx.OpLE:
			loRank, hiRank = 0, idx.floorRank(p.X)
		case encidx.OpLT:
			loRank, hiRank = 0, idx.ceilRank(p.X)-1
		case encidx.OpGE:
			loRank, hiRank = idx.floorRank(p.X), len(idx.keys)-1
		case encidx.OpGT:
			loRank, hiRank = idx.floorRank(p.X), len(idx.keys)-1
		case encidx.OpEQ:
			loRank, hiRank = idx.floorRank(p.X), idx.floorRank(p.X)
		}
	case encidx.PredSet:
		var upper *bitvector.Bitvector
		for _, v := range p.Values {
			g := idx.groupOf(idx.floorRank(v))
			if upper == nil {
				upper = idx.bits[g].Clone()
			} else {
				_ = upper.Or(idx.bits[g])
			}
		}
		if upper == nil {
			upper = bitvector.New(idx.n)
		}

		return encidx.Estimate{Lower: bitvector.New(idx.n), Upper: upper}, nil
	default:
		return encidx.Estimate{Lower: bitvector.New(idx.n), Upper: bitvector.New(idx.n)}, nil
	}

	lower, upper, err := idx.envelope(loRank, hiRank)
	if err != nil {
		return encidx.Estimate{}, err
	}

	return encidx.Estimate{Lower: lower, Upper: upper}, nil
}

func (idx *Index) Evaluate(ctx *bitidx.Context, p encidx.Predicate) (*bitvector.Bitvector, error) {
	est, err := idx.Estimate(p)
	if err != nil {
		return nil, err
	}
	if est.Exact() {
		return est.Lower, nil
	}
	iffy := est.Upper.Clone()
	_ = iffy.AndNot(est.Lower)

	return encidx.ResidualScan(ctx, est.Lower, iffy, func(row uint64) bool {
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

// Serialize writes the header (tag 0, equality-binning).
// The bounds table holds one entry per bin: the key value at the
// bin's start (bounds[g]), so Deserialize can recover group membership
// for any rank without the original per-value histogram.
func (idx *Index) Serialize(w io.Writer) error {
	width := offset.ChooseWidth(len(idx.bits), maxBytes(idx.bits))
	if err := encidx.WriteHeader(w, encidx.Header{Tag: format.TagEqualityBinning, Width: width}); err != nil {
		return err
	}
	binKeys := make([]float64, len(idx.bits))
	for g := range idx.bits {
		binKeys[g] = idx.keys[idx.bounds[g]]
	}

	return encidx.WriteBody(w, encidx.Body{N: idx.n, Bits: idx.bits, Bounds: binKeys})
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
// keys/bounds collapse to one entry per bin (the finer per-value
// histogram isn't persisted), which is enough to answer Estimate but
// not to distinguish individual values within a bin without a residual
// scan — exactly the role Evaluate's fallback already plays.
func Deserialize(r io.Reader, width offset.Width) (*Index, error) {
	body, err := encidx.ReadBody(r, width)
	if err != nil {
		return nil, err
	}
	bounds := make(binbuild.Bounds, len(body.Bounds)+1)
	for i := range bounds {
		bounds[i] = i
	}

	return &Index{n: body.N, keys: body.Bounds, bounds: bounds, bits: body.Bits}, nil
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
