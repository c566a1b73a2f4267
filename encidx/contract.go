// Package encidx defines the common contract every index encoding
// implements and the predicate types the planner
// builds against it. Concrete encodings live in subpackages
// (encidx/equality, encidx/rangeenc, encidx/interval, encidx/bitslice,
// encidx/multicomp, encidx/binned, encidx/direct, encidx/reduced,
// encidx/keyword).
package encidx

import (
	"io"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/bitvector"
	"github.com/ibisdb/bitidx/errs"
)

// PredicateKind discriminates the shapes of query the common contract
// must cover.
type PredicateKind uint8

const (
	// PredCompare is a continuous range v rel x (Op, X).
	PredCompare PredicateKind = iota
	// PredRange is a continuous range v in [X, Y].
	PredRange
	// PredSet is a discrete set v in {Values...}.
	PredSet
	// PredJoin is a 2-column range-join |u-v| <= Delta. Only rangeenc
	// offers a join estimate (rangeenc.Joinable).
	PredJoin
)

// CompareOp is the relational operator for PredCompare.
type CompareOp uint8

const (
	OpLT CompareOp = iota
	OpLE
	OpGT
	OpGE
	OpEQ
)

// Predicate is the query shape every Encoding.Estimate/Evaluate
// accepts. Only the fields relevant to Kind are meaningful.
type Predicate struct {
	Kind   PredicateKind
	Op     CompareOp
	X, Y   float64
	Values []float64
	Delta  float64
}

// Estimate is the (lower, upper) envelope of an estimate: lower is a
// subset of the actual hits, upper a superset; for encodings that
// always answer exactly, Upper == Lower.
type Estimate struct {
	Lower *bitvector.Bitvector
	Upper *bitvector.Bitvector
}

// Exact reports whether the estimate is already the exact answer.
func (e Estimate) Exact() bool {
	return e.Lower == e.Upper
}

// Encoding is the contract every concrete index encoding satisfies.
type Encoding interface {
	// Estimate returns the (lower, upper) envelope for predicate.
	Estimate(p Predicate) (Estimate, error)
	// Evaluate returns the exact hits for predicate, performing a
	// residual scan over Upper\Lower when the estimate isn't already
	// exact. ctx is polled for cancellation at the start of the
	// residual scan loop; a nil ctx never cancels.
	Evaluate(ctx *bitidx.Context, p Predicate) (*bitvector.Bitvector, error)
	// Undecidable returns the rows the estimate could not resolve
	// (Upper \ Lower) and the estimated hit fraction among them, for
	// the planner to weigh the cost of a residual scan.
	Undecidable(ctx *bitidx.Context, p Predicate) (iffy *bitvector.Bitvector, fraction float64, err error)
	// SizeInBytes returns the expected on-disk/in-memory footprint.
	SizeInBytes() uint64
	// Serialize writes the index's header and body to w per the wire
	// format. Each subpackage also exposes a matching package-level
	// Deserialize(r io.Reader, width offset.Width) constructor; it cannot be
	// part of this interface because reconstructing a concrete type
	// from bytes is not a method any existing value can receive.
	Serialize(w io.Writer) error
}

// ResidualScan evaluates predicate exactly over the rows marked in
// iffy by consulting the raw column value at each such row, merging
// the result with the already-known lower bound. It is the shared
// "estimate plus residual scan" implementation of Evaluate that every
// subpackage's encoding delegates to. ctx.Cancelled() is polled at the
// start of each run in the scan; a
// nil ctx never cancels.
func ResidualScan(ctx *bitidx.Context, lower *bitvector.Bitvector, iffy *bitvector.Bitvector, matches func(row uint64) bool) (*bitvector.Bitvector, error) {
	exact := lower.Clone()
	for _, run := range iffyRuns(iffy) {
		if ctx.Cancelled() {
			return nil, errs.ErrCancelled
		}
		for row := run.Start; row < run.Start+run.Length; row++ {
			if matches(row) {
				exact.SetBit(row)
			}
		}
	}
	ctx.Counters().ResidualScans.Add(1)

	return exact, nil
}

func iffyRuns(bv *bitvector.Bitvector) []bitvector.Run {
	var runs []bitvector.Run
	bv.Runs(func(r bitvector.Run) bool {
		runs = append(runs, r)

		return true
	})

	return runs
}

// Match reports whether value v satisfies predicate p. It is the
// reference predicate semantics every encoding's residual scan and
// every exact-by-construction encoding (equality, direct, keyword)
// checks against.
func Match(p Predicate, v float64) bool {
	switch p.Kind {
	case PredCompare:
		switch p.Op {
		case OpLT:
			return v < p.X
		case OpLE:
			return v <= p.X
		case OpGT:
			return v > p.X
		case OpGE:
			return v >= p.X
		case OpEQ:
			return v == p.X
		default:
			return false
		}
	case PredRange:
		return v >= p.X && v <= p.Y
	case PredSet:
		for _, want := range p.Values {
			if v == want {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// Fraction estimates the hit fraction among iffy by sampling: when
// iffy is small enough this is exact, otherwise it samples up to
// sampleCap random set bits and checks them with matches. ctx is
// polled once per sampled row, same as ResidualScan.
func Fraction(ctx *bitidx.Context, iffy *bitvector.Bitvector, sampleCap int, matches func(row uint64) bool) float64 {
	cnt := iffy.Cnt()
	if cnt == 0 {
		return 0
	}

	hits, checked := 0, 0
	if int(cnt) <= sampleCap {
		for _, row := range iffy.ToSlice() {
			if ctx.Cancelled() {
				break
			}
			checked++
			if matches(row) {
				hits++
			}
		}

		if checked == 0 {
			return 0
		}

		return float64(hits) / float64(checked)
	}

	for i := 0; i < sampleCap; i++ {
		if ctx.Cancelled() {
			break
		}
		row, ok := iffy.RandomSetBit()
		if !ok {
			break
		}
		checked++
		if matches(row) {
			hits++
		}
	}
	if checked == 0 {
		return 0
	}

	return float64(hits) / float64(checked)
}

// Uncompressor is implemented by encodings whose bitvectors can be
// rewritten into their decompressed form up front, trading memory for
// cheaper in-place combination later.
type Uncompressor interface {
	// Uncompress decompresses every held bitvector whose serialized
	// size exceeds threshold bytes; threshold 0 decompresses all.
	Uncompress(threshold uint64)
}

// UncompressBits rewrites, in place, every bitvector in bits whose
// serialized size exceeds threshold bytes into its decompressed form.
func UncompressBits(bits []*bitvector.Bitvector, threshold uint64) {
	for i, bv := range bits {
		if bv == nil {
			continue
		}
		if threshold == 0 || bv.Bytes() > threshold {
			bits[i] = bv.Decompress()
		}
	}
}
