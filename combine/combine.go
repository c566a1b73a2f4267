// Package combine implements the bit-combination core: ORing a
// contiguous range of bitvectors together under a size-aware strategy
// selector. The decompressed-accumulator strategy ORs everything into
// one mutable scratch bitvector; the priority-queue merge strategy
// uses container/heap to always merge the two largest inputs first.
package combine

import (
	"container/heap"

	"github.com/ibisdb/bitidx/bitvector"
)

// upperBound estimates U, the uncompressed size in bytes of a
// bitvector of length n, used by the strategy selector as the cost
// ceiling a combination plan is measured against.
func upperBound(n uint64) uint64 {
	return (n + 7) / 8
}

// Or computes the union of bvs[ib:ie), selecting among the three
// strategies the describes. All three strategies are
// required to produce bit-identical results for any input; Or itself
// never changes behavior based on which strategy ran, only performance.
func Or(n uint64, bvs []*bitvector.Bitvector) (*bitvector.Bitvector, error) {
	if len(bvs) == 0 {
		return bitvector.New(n), nil
	}
	if len(bvs) == 1 {
		return bvs[0].Clone(), nil
	}

	u := upperBound(n)
	span := uint64(len(bvs))

	switch {
	case bvs[0].Bytes()+bvs[1].Bytes() >= u:
		return orNaive(n, bvs)
	case totalBytes(bvs)*span*span <= uint64(float64(u)*ln2):
		return orHeapMerge(n, bvs)
	default:
		return orAccumulator(n, bvs)
	}
}

const ln2 = 0.6931471805599453

func totalBytes(bvs []*bitvector.Bitvector) uint64 {
	var t uint64
	for _, bv := range bvs {
		t += bv.Bytes()
	}

	return t
}

// orNaive is strategy 1: fold sequentially, left to right, into a
// single accumulator. Chosen when the first OR is already expected to
// decompress, so there is nothing further to gain from batching.
func orNaive(n uint64, bvs []*bitvector.Bitvector) (*bitvector.Bitvector, error) {
	acc := bvs[0].Clone()
	for _, bv := range bvs[1:] {
		if err := acc.Or(bv); err != nil {
			return nil, err
		}
	}

	return acc, nil
}

// bvHeap is a max-heap of bitvectors ordered by serialized size, used
// by orHeapMerge to always combine the two currently-largest operands.
type bvHeap []*bitvector.Bitvector

func (h bvHeap) Len() int            { return len(h) }
func (h bvHeap) Less(i, j int) bool  { return h[i].Bytes() > h[j].Bytes() }
func (h bvHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *bvHeap) Push(x any)         { *h = append(*h, x.(*bitvector.Bitvector)) } //nolint: errcheck
func (h *bvHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]

	return v
}

// orHeapMerge is strategy 2: repeatedly pop the two largest remaining
// bitvectors, OR them, and push the result back, until one remains.
// Chosen when total_bytes·(ie-ib)² ≤ U·ln2 — the regime where many
// small bitvectors dominate and pairing by size minimizes total work.
func orHeapMerge(n uint64, bvs []*bitvector.Bitvector) (*bitvector.Bitvector, error) {
	h := make(bvHeap, len(bvs))
	copy(h, bvs)
	for i := range h {
		h[i] = h[i].Clone()
	}
	heap.Init(&h)

	for h.Len() > 1 {
		a := heap.Pop(&h).(*bitvector.Bitvector) //nolint: errcheck
		b := heap.Pop(&h).(*bitvector.Bitvector) //nolint: errcheck
		if err := a.Or(b); err != nil {
			return nil, err
		}
		heap.Push(&h, a)
	}

	return h[0], nil
}

// orAccumulator is strategy 3: decompress the first operand into a
// scratch bitvector, then OR every remaining source into it in place. Chosen in the default, "neither
// extreme" regime.
func orAccumulator(n uint64, bvs []*bitvector.Bitvector) (*bitvector.Bitvector, error) {
	acc := bvs[0].Decompress()
	for _, bv := range bvs[1:] {
		if err := acc.Or(bv); err != nil {
			return nil, err
		}
	}

	return acc, nil
}

// Complement evaluates the complement range [0,ib) ∪ [ie,M) when
// (ie-ib) > M/2: combine the complement range with
// the same selector, then flip the result over [0,n) to recover the
// answer for [ib,ie). The flip recovers that answer only when the M
// bitvectors together cover every row in [0,n) exactly once, as the
// bins of an equality-style index do.
func Complement(n uint64, complementRange []*bitvector.Bitvector) (*bitvector.Bitvector, error) {
	acc, err := Or(n, complementRange)
	if err != nil {
		return nil, err
	}
	acc.Flip()

	return acc, nil
}

// ShouldComplement reports whether the range [ib,ie) out of m total
// bitvectors is large enough that evaluating its complement is cheaper
// > m/2).
func ShouldComplement(ib, ie, m int) bool {
	return ie-ib > m/2
}

// Prev is a previously computed sum_bins(ib0, ie0) result, cached so a
// neighboring range query can update it incrementally instead of
// recombining from scratch.
type Prev struct {
	Ib0, Ie0 int
	BV       *bitvector.Bitvector
}

// SumBins recomputes sum_bins(ib, ie) given the previous window
// [ib0,ie0) and its combined result, incrementally when that is
// cheaper than a full recombination: the edit distance between the two windows,
// |{ib..ib0}|+|{ie0..ie}|+|{ib0..ib}|+|{ie..ie0}|, must be smaller
// than the new window's width (ie-ib) for the incremental path to be
// worth taking.
func SumBins(n uint64, fetch func(i int) (*bitvector.Bitvector, error), ib, ie int, prev *Prev) (*bitvector.Bitvector, error) {
	if prev == nil {
		return sumBinsFull(n, fetch, ib, ie)
	}

	editDistance := rangeDelta(ib, prev.Ib0) + rangeDelta(prev.Ie0, ie) + rangeDelta(prev.Ib0, ib) + rangeDelta(ie, prev.Ie0)
	if editDistance >= ie-ib {
		return sumBinsFull(n, fetch, ib, ie)
	}

	acc := prev.BV.Decompress()
	for i := ib; i < prev.Ib0; i++ {
		bv, err := fetch(i)
		if err != nil {
			return nil, err
		}
		if err := acc.Or(bv); err != nil {
			return nil, err
		}
	}
	for i := prev.Ie0; i < ie; i++ {
		bv, err := fetch(i)
		if err != nil {
			return nil, err
		}
		if err := acc.Or(bv); err != nil {
			return nil, err
		}
	}
	// Rows that left the window (prev.Ib0..ib or ie..prev.Ie0) cannot
	// be subtracted out of an OR in general (another row in the
	// surviving window may set the same bits), so a window that
	// shrinks on either side always falls back to a full recompute.
	if ib > prev.Ib0 || ie < prev.Ie0 {
		return sumBinsFull(n, fetch, ib, ie)
	}

	return acc, nil
}

func rangeDelta(a, b int) int {
	if a > b {
		return a - b
	}

	return b - a
}

func sumBinsFull(n uint64, fetch func(i int) (*bitvector.Bitvector, error), ib, ie int) (*bitvector.Bitvector, error) {
	bvs := make([]*bitvector.Bitvector, 0, ie-ib)
	for i := ib; i < ie; i++ {
		bv, err := fetch(i)
		if err != nil {
			return nil, err
		}
		bvs = append(bvs, bv)
	}

	return Or(n, bvs)
}

// SparseAdd folds sparse into acc. When sparse is known to be sparse
// relative to acc, it iterates the list directly (cheap, since few
// bits change); when dense, it first combines sparse with the
// strategy selector, then ORs the combined result into acc, per
// the "sparse addition" rule.
func SparseAdd(acc *bitvector.Bitvector, sparse []*bitvector.Bitvector, isSparse bool) error {
	if len(sparse) == 0 {
		return nil
	}
	if isSparse {
		for _, bv := range sparse {
			if err := acc.Or(bv); err != nil {
				return err
			}
		}

		return nil
	}

	combined, err := Or(acc.Size(), sparse)
	if err != nil {
		return err
	}

	return acc.Or(combined)
}
