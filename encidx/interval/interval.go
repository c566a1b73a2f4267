// Package interval implements the interval encoding: each bitvector
// covers a window of consecutive equality bins,
// so a range query needs roughly one OR per window instead of one per
// distinct value.
package interval

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

// Index is an interval encoding: equalityBits[k] is the basic-equality
// bitvector for keys[k]; windowBits[k] = OR(equalityBits[k:k+window]),
// i.e. a precomputed window-of-window-consecutive-bins union.
type Index struct {
	n            uint64
	keys         []float64
	equalityBits []*bitvector.Bitvector
	windowBits   []*bitvector.Bitvector
	window       int
}

var _ encidx.Encoding = (*Index)(nil)

// Build groups src's valid rows by distinct value (as equality does),
// then precomputes a windowBits[k] = OR of window consecutive equality
// bins starting at k, for every k. window must be >= 1; half the
// total bin count is the usual choice.
func Build[T column.Numeric](src column.ValueSource[T], window int) (*Index, error) {
	if window < 1 {
		window = 1
	}
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

	eq := make([]*bitvector.Bitvector, len(keys))
	for i, k := range keys {
		bv := bitvector.New(n)
		for _, row := range groups[k] {
			bv.SetBit(row)
		}
		eq[i] = bv
	}

	win := make([]*bitvector.Bitvector, len(keys))
	for k := range eq {
		hi := k + window
		if hi > len(eq) {
			hi = len(eq)
		}
		bv, err := combine.Or(n, eq[k:hi])
		if err != nil {
			return nil, err
		}
		win[k] = bv
	}

	return &Index{n: n, keys: keys, equalityBits: eq, windowBits: win, window: window}, nil
}

func (idx *Index) bucket(v float64) int {
	i := sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] >= v })
	if i < len(idx.keys) && idx.keys[i] == v {
		return i
	}

	return i - 1
}

func (idx *Index) ceilBucket(v float64) int {
	return sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] >= v })
}

func (idx *Index) floorBucket(v float64) int {
	i := sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] > v })

	return i - 1
}

// orRange exactly ORs equality bins [lo, hi] (inclusive), preferring a
// precomputed window bitvector whenever a full window fits entirely
// inside [lo, hi].
func (idx *Index) orRange(lo, hi int) (*bitvector.Bitvector, error) {
	if lo > hi || hi < 0 || lo >= len(idx.keys) {
		return bitvector.New(idx.n), nil
	}
	if lo < 0 {
		lo = 0
	}
	if hi >= len(idx.keys) {
		hi = len(idx.keys) - 1
	}

	var parts []*bitvector.Bitvector
	k := lo
	for k <= hi {
		if k+idx.window-1 <= hi {
			parts = append(parts, idx.windowBits[k])
			k += idx.window

			continue
		}
		parts = append(parts, idx.equalityBits[k])
		k++
	}

	return combine.Or(idx.n, parts)
}

// Estimate is always exact: each window bitvector is the exact OR of
// the equality bins it spans, and orRange uses only windows that lie
// wholly inside the queried bins, so no residual scan is ever needed.
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
			k := idx.bucket(p.X)
			if k < 0 || k >= len(idx.keys) || idx.keys[k] != p.X {
				return bitvector.New(idx.n), nil
			}

			return idx.equalityBits[k].Clone(), nil
		case encidx.OpLE:
			return idx.orRange(0, idx.floorBucket(p.X))
		case encidx.OpLT:
			return idx.orRange(0, idx.ceilBucket(p.X)-1)
		case encidx.OpGE:
			return idx.orRange(idx.ceilBucket(p.X), len(idx.keys)-1)
		case encidx.OpGT:
			return idx.orRange(idx.floorBucket(p.X)+1, len(idx.keys)-1)
		}
	case encidx.PredRange:
		return idx.orRange(idx.ceilBucket(p.X), idx.floorBucket(p.Y))
	case encidx.PredSet:
		var matching []*bitvector.Bitvector
		for _, v := range p.Values {
			k := idx.bucket(v)
			if k >= 0 && k < len(idx.keys) && idx.keys[k] == v {
				matching = append(matching, idx.equalityBits[k])
			}
		}

		return combine.Or(idx.n, matching)
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
	for _, bv := range idx.windowBits {
		total += bv.Bytes()
	}
	for _, bv := range idx.equalityBits {
		total += bv.Bytes()
	}

	return total + uint64(len(idx.keys))*8
}

// Serialize writes the header (tag 2) plus a body holding both sets of
// bitvectors: the equality bins first, then the window bins. The bounds
// table holds one key per equality bin, which is how Deserialize splits
// the two sets.
func (idx *Index) Serialize(w io.Writer) error {
	all := make([]*bitvector.Bitvector, 0, len(idx.equalityBits)+len(idx.windowBits))
	all = append(all, idx.equalityBits...)
	all = append(all, idx.windowBits...)
	width := offset.ChooseWidth(len(all), maxBytes(all))
	if err := encidx.WriteHeader(w, encidx.Header{Tag: format.TagInterval, Width: width}); err != nil {
		return err
	}
	bases := []uint32{uint32(idx.window), uint32(len(idx.keys))} //nolint: gosec

	return encidx.WriteBody(w, encidx.Body{N: idx.n, Bits: all, Bounds: idx.keys, Bases: bases})
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
	window := 1
	if len(body.Bases) > 0 {
		window = int(body.Bases[0])
	}
	m := len(body.Bounds)

	return &Index{
		n:            body.N,
		keys:         body.Bounds,
		equalityBits: body.Bits[:m],
		windowBits:   body.Bits[m:],
		window:       window,
	}, nil
}

// Uncompress rewrites bitvectors larger than threshold bytes into
// their decompressed form; threshold 0 rewrites all of them. Both the
// equality bins and the precomputed windows are covered.
func (idx *Index) Uncompress(threshold uint64) {
	encidx.UncompressBits(idx.equalityBits, threshold)
	encidx.UncompressBits(idx.windowBits, threshold)
}
