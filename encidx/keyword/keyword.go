// Package keyword implements the term-document encoding: one
// bitvector per distinct token extracted from a text column under a
// configurable delimiter set. Token identifiers are xxHash64 values
// (internal/hash), used as the keyword dictionary's key so the common
// numeric Predicate contract (PredSet over float64 values) can carry
// token queries without a second, text-only predicate shape.
package keyword

import (
	"io"
	"math"
	"sort"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/bitvector"
	"github.com/ibisdb/bitidx/column"
	"github.com/ibisdb/bitidx/combine"
	"github.com/ibisdb/bitidx/encidx"
	"github.com/ibisdb/bitidx/errs"
	"github.com/ibisdb/bitidx/format"
	"github.com/ibisdb/bitidx/internal/hash"
	"github.com/ibisdb/bitidx/offset"
)

// DefaultDelimiters is the delimiter set used when the index spec
// gives none: common whitespace and punctuation.
const DefaultDelimiters = " \t\n\r,.;:!?()[]{}\"'"

// Index is a term-document encoding: bits[k] holds the rows whose text
// contains the token whose xxHash64 is ids[k].
type Index struct {
	n    uint64
	ids  []uint64 // ascending, dictionary key per bitvector
	toks []string // token text, parallel to ids, for lookup/debugging
	bits []*bitvector.Bitvector
}

var _ encidx.Encoding = (*Index)(nil)

// Tokenize splits text on any byte in delimiters, dropping empty runs.
func Tokenize(text []byte, delimiters string) []string {
	isDelim := func(b byte) bool {
		for i := 0; i < len(delimiters); i++ {
			if delimiters[i] == b {
				return true
			}
		}

		return false
	}

	var tokens []string
	start := -1
	for i := 0; i < len(text); i++ {
		if isDelim(text[i]) {
			if start >= 0 {
				tokens = append(tokens, string(text[start:i]))
				start = -1
			}

			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, string(text[start:]))
	}

	return tokens
}

// Build tokenizes every row of src under delimiters and assigns one
// bitvector per distinct token, keyed by xxHash64.
func Build(src column.StringSource, delimiters string) (*Index, error) {
	if delimiters == "" {
		delimiters = DefaultDelimiters
	}
	info := src.Info()
	n := uint64(info.N)

	groups := make(map[uint64][]uint64)
	tokenText := make(map[uint64]string)
	for i := 0; i < info.N; i++ {
		if !info.Valid(i) {
			continue
		}
		for _, tok := range Tokenize(src.GetString(i), delimiters) {
			id := hash.ID(tok)
			groups[id] = append(groups[id], uint64(i))
			tokenText[id] = tok
		}
	}

	ids := make([]uint64, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	bits := make([]*bitvector.Bitvector, len(ids))
	toks := make([]string, len(ids))
	for i, id := range ids {
		bv := bitvector.New(n)
		for _, row := range groups[id] {
			bv.SetBit(row)
		}
		bits[i] = bv
		toks[i] = tokenText[id]
	}

	return &Index{n: n, ids: ids, toks: toks, bits: bits}, nil
}

func (idx *Index) idIndex(id uint64) int {
	i := sort.Search(len(idx.ids), func(i int) bool { return idx.ids[i] >= id })
	if i < len(idx.ids) && idx.ids[i] == id {
		return i
	}

	return -1
}

// Contains returns the bitvector of rows whose text contained every
// token in toks (an AND of per-token postings lists), the ergonomic
// entry point most keyword-search callers want.
func (idx *Index) Contains(toks ...string) (*bitvector.Bitvector, error) {
	result := bitvector.Set(1, idx.n)
	for _, tok := range toks {
		i := idx.idIndex(hash.ID(tok))
		if i < 0 {
			return bitvector.New(idx.n), nil
		}
		if err := result.And(idx.bits[i]); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// Estimate supports PredSet only, over token-hash values (the caller
// builds p.Values as []float64{float64(hash.ID(token)), ...}); it
// answers which rows contain ANY of the given tokens (a multi-token OR
// postings union). An id matches a value when float64(id) equals it, so
// distinct ids that round to the same float64 match together; apart
// from such collisions the encoding is exact.
func (idx *Index) Estimate(p encidx.Predicate) (encidx.Estimate, error) {
	var matching []*bitvector.Bitvector
	if p.Kind == encidx.PredSet {
		for _, v := range p.Values {
			// float64(id) is non-decreasing in id, so matching ids are contiguous.
			i := sort.Search(len(idx.ids), func(i int) bool { return float64(idx.ids[i]) >= v })
			for ; i < len(idx.ids) && float64(idx.ids[i]) == v; i++ {
				matching = append(matching, idx.bits[i])
			}
		}
	}
	bv, err := combine.Or(idx.n, matching)
	if err != nil {
		return encidx.Estimate{}, err
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
	for _, bv := range idx.bits {
		total += bv.Bytes()
	}

	return total + uint64(len(idx.ids))*8
}

// Serialize writes the header (tag 18). Token hashes ride
// in the bounds table (reinterpreted as float64 bit patterns of the
// uint64 ids); token text itself is not persisted. A deserialized index
// answers Estimate, Evaluate and Contains(token) by hash alone;
// AttachDictionary restores the token text, mirroring the source
// column's own reattachment step.
func (idx *Index) Serialize(w io.Writer) error {
	width := offset.ChooseWidth(len(idx.bits), maxBytes(idx.bits))
	if err := encidx.WriteHeader(w, encidx.Header{Tag: format.TagKeywords, Width: width}); err != nil {
		return err
	}
	bounds := make([]float64, len(idx.ids))
	for i, id := range idx.ids {
		bounds[i] = math.Float64frombits(id)
	}

	return encidx.WriteBody(w, encidx.Body{N: idx.n, Bits: idx.bits, Bounds: bounds})
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

// Deserialize reconstructs an Index previously written by Serialize,
// without token text (see Serialize's doc comment).
func Deserialize(r io.Reader, width offset.Width) (*Index, error) {
	body, err := encidx.ReadBody(r, width)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(body.Bounds))
	for i, b := range body.Bounds {
		ids[i] = math.Float64bits(b)
	}

	return &Index{n: body.N, ids: ids, bits: body.Bits}, nil
}

// AttachDictionary restores the token text after Deserialize by
// recomputing each candidate token's hash and matching it against the
// persisted id table; rebuilding the dictionary requires rescanning
// the reopened text column.
func (idx *Index) AttachDictionary(src column.StringSource, delimiters string) {
	if delimiters == "" {
		delimiters = DefaultDelimiters
	}
	info := src.Info()
	toks := make([]string, len(idx.ids))
	for i := 0; i < info.N; i++ {
		if !info.Valid(i) {
			continue
		}
		for _, tok := range Tokenize(src.GetString(i), delimiters) {
			if k := idx.idIndex(hash.ID(tok)); k >= 0 {
				toks[k] = tok
			}
		}
	}
	idx.toks = toks
}

// Uncompress rewrites bitvectors larger than threshold bytes into
// their decompressed form; threshold 0 rewrites all of them.
func (idx *Index) Uncompress(threshold uint64) {
	encidx.UncompressBits(idx.bits, threshold)
}
