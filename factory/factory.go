// Package factory builds or reconstructs index encodings: given a
// column, an optional existing index file, and a spec string, it
// either reconstructs an encoding from that file's header or builds a
// fresh one by parsing the spec grammar (or, when the spec is empty,
// by a cardinality/type-driven default selection). It is the one
// funnel that turns "a column plus a preference string" into a
// concrete, ready-to-query encoding.
package factory

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ibisdb/bitidx"
	"github.com/ibisdb/bitidx/column"
	"github.com/ibisdb/bitidx/compress"
	"github.com/ibisdb/bitidx/encidx"
	"github.com/ibisdb/bitidx/encidx/binned"
	"github.com/ibisdb/bitidx/encidx/bitslice"
	"github.com/ibisdb/bitidx/encidx/direct"
	"github.com/ibisdb/bitidx/encidx/equality"
	"github.com/ibisdb/bitidx/encidx/interval"
	"github.com/ibisdb/bitidx/encidx/keyword"
	"github.com/ibisdb/bitidx/encidx/multicomp"
	"github.com/ibisdb/bitidx/encidx/rangeenc"
	"github.com/ibisdb/bitidx/encidx/reduced"
	"github.com/ibisdb/bitidx/errs"
	"github.com/ibisdb/bitidx/format"
	"github.com/ibisdb/bitidx/internal/pool"
	"github.com/ibisdb/bitidx/store"
)

// FileCodec is the whole-file compression applied around every
// serialized index (see package compress); S2 gives the write-once
// path near-zero overhead while still shrinking cold, rarely-touched
// bitmap regions.
var FileCodec = compress.CodecS2

// Files is the process-wide handle manager backing every Create/
// CreateKeyword reopen. It has no
// byte budget by default (0 means unbounded); callers that want
// eviction under memory pressure can swap this with a limited
// store.NewFileManager before opening any index.
var Files = store.NewFileManager(0)

// ReadOption controls how a reconstructed-from-file index acquires its
// backing bytes
type ReadOption int

const (
	// ReadFull copies the whole file into owned memory immediately.
	ReadFull ReadOption = 1
	// ReadAuto memory-maps large files, otherwise copies fully. Default.
	ReadAuto ReadOption = 0
	// ReadMetadataOnly always memory-maps, deferring the cost of
	// touching bitmap pages until a query actually residual-scans them.
	ReadMetadataOnly ReadOption = -1
)

// preference maps a ReadOption to the store.Preference OpenIndexFile
// resolves against the file's actual size.
func (r ReadOption) preference() store.Preference {
	switch r {
	case ReadFull:
		return store.PreferRead
	case ReadMetadataOnly:
		return store.PreferMMap
	default:
		return store.PreferMMapLargeFiles
	}
}

// Tag re-exports format.Tag so callers need only import factory for
// the header-level vocabulary, matching the tag table.
type Tag = format.Tag

// Header re-exports the shared wire header.
type Header = encidx.Header

// IndexFileName returns the on-disk name for a single-column index,
// ("<data-dir>/<column>.idx").
func IndexFileName(dataDir, column string) string {
	return dataDir + "/" + column + ".idx"
}

// JoinIndexFileName returns the on-disk name for a composite index
// over two columns ("<column1>-<column2>.idx").
func JoinIndexFileName(dataDir, column1, column2 string) string {
	return dataDir + "/" + column1 + "-" + column2 + ".idx"
}

// Decision is the outcome of reading the token grammar (or
// its cardinality/type default) against a column: which tag to build
// and the tag-specific parameters that drive Build.
type Decision struct {
	Refuse     bool
	Tag        format.Tag
	Components int
	Precision  int
	Domain     uint64
	BinCount   int
	Delimiters string
}

const defaultBinCount = 100

// ParseSpec implements the step 2/3: recognize the spec
// token grammar, case-insensitively, or fall back to the cardinality
// and type driven default when spec is empty or "default"/"automatic".
// cardinality is the column's distinct-value count, used only by the
// default branch; callers building from an in-memory source typically
// compute it with CountDistinct.
func ParseSpec(colType format.ValueType, cardinality uint64, spec string) (Decision, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	if spec == "" || spec == "default" || spec == "automatic" {
		return defaultDecision(colType, cardinality), nil
	}

	fields := strings.FieldsFunc(spec, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '\t'
	})

	d := Decision{Tag: format.TagBasicEquality, BinCount: defaultBinCount}
	sawTag := false

	for _, tok := range fields {
		switch {
		case tok == "none" || tok == "noindex" || tok == "null":
			return Decision{Refuse: true}, nil
		case tok == "index=basic" || tok == "relic":
			d.Tag = format.TagBasicEquality
			sawTag = true
		case tok == "bak":
			d.Tag, d.Precision, sawTag = format.TagBak, 32, true
		case tok == "bak2":
			d.Tag, d.Precision, sawTag = format.TagBak, 16, true
		case strings.HasPrefix(tok, "bak="):
			n, err := atoi(tok[len("bak="):])
			if err != nil {
				return Decision{}, err
			}
			d.Tag, d.Precision, sawTag = format.TagBak, n, true
		case tok == "direkte":
			d.Tag, sawTag = format.TagDirect, true
		case strings.HasPrefix(tok, "domain="):
			n, err := atoi(tok[len("domain="):])
			if err != nil {
				return Decision{}, err
			}
			d.Domain = uint64(n)
		case tok == "keywords":
			d.Tag, sawTag = format.TagKeywords, true
		case strings.HasPrefix(tok, "delimiters="):
			d.Delimiters = tok[len("delimiters="):]
		case tok == "slice" || tok == "binary":
			d.Tag, sawTag = format.TagBitSlice, true
		case strings.HasPrefix(tok, "ncomp="):
			n, err := atoi(tok[len("ncomp="):])
			if err != nil {
				return Decision{}, err
			}
			d.Components = n
			if !sawTag {
				d.Tag = format.TagMulticomponentEquality
			}
			sawTag = true
		case tok == "equal" || tok == "equality":
			if d.Components > 0 {
				d.Tag = format.TagMulticomponentEquality
			} else if !sawTag {
				d.Tag = format.TagBasicEquality
			}
			sawTag = true
		case tok == "range":
			if d.Components > 0 {
				d.Tag = format.TagMulticomponentRange
			} else if !sawTag {
				d.Tag = format.TagRange
			}
			sawTag = true
		case tok == "interval":
			if d.Components > 0 {
				d.Tag = format.TagMulticomponentInterval
			} else if !sawTag {
				d.Tag = format.TagInterval
			}
			sawTag = true
		case strings.Contains(tok, "/"):
			t, err := twoLevelTag(tok)
			if err != nil {
				return Decision{}, err
			}
			d.Tag, sawTag = t, true
		case strings.HasPrefix(tok, "bins="):
			n, err := atoi(tok[len("bins="):])
			if err != nil {
				return Decision{}, err
			}
			d.BinCount = n
		default:
			return Decision{}, fmt.Errorf("%w: %q", errs.ErrUnrecognizedSpec, tok)
		}
	}

	return d, nil
}

// delimitersOf extracts a bare "delimiters=" token from spec without
// running the full ParseSpec grammar, so CreateKeyword can learn the
// split characters before it knows whether openExisting will short
// circuit the rest of the decision.
func delimitersOf(spec string) string {
	spec = strings.ToLower(strings.TrimSpace(spec))
	fields := strings.FieldsFunc(spec, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == '\t'
	})
	for _, tok := range fields {
		if strings.HasPrefix(tok, "delimiters=") {
			return tok[len("delimiters="):]
		}
	}

	return ""
}

// attachSource wires a reopened encoding's residual-scan closure back
// to the live column's lower/upper estimate split:
// binned and reduced are inherently inexact, so Evaluate/Undecidable
// on a deserialized index needs a source to resolve rows that fall in
// the iffy set between Lower and Upper. Exact encodings (equality,
// direct, rangeenc, interval, bitslice, multicomp) never consult src
// and are left untouched.
func attachSource[T column.Numeric](enc encidx.Encoding, src column.ValueSource[T]) {
	switch idx := enc.(type) {
	case *binned.Index:
		binned.AttachSource(idx, src)
	case *reduced.Index:
		reduced.AttachSource(idx, src)
	}
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errs.ErrUnrecognizedSpec, s)
	}

	return n, nil
}

// applyUncompress rewrites an index's bitvectors per the process
// configuration: everything when UncompressAll is set, only those over
// the size cutoff when UncompressLargeBitvector is set.
func applyUncompress(enc encidx.Encoding, n uint64) {
	u, ok := enc.(encidx.Uncompressor)
	if !ok {
		return
	}
	switch {
	case Conf.UncompressAll:
		u.Uncompress(0)
	case Conf.UncompressLargeBitvector:
		u.Uncompress(uncompressThreshold(n))
	}
}

// twoLevelTag maps a two-level combination token ("range/range",
// "equality/range", "range/equality", "interval/equality") to the
// binned wire tag reserved for that pairing. Only these four pairings
// are recognized; there is no tag for an arbitrary combination.
func twoLevelTag(tok string) (format.Tag, error) {
	switch tok {
	case "range/range":
		return format.TagAmbit, nil
	case "equality/range", "equal/range":
		return format.TagPale, nil
	case "range/equality", "range/equal":
		return format.TagPack, nil
	case "interval/equality", "interval/equal":
		return format.TagZone, nil
	default:
		return 0, fmt.Errorf("%w: %q", errs.ErrUnrecognizedSpec, tok)
	}
}

// defaultDecision implements the step 3's cardinality/type
// driven selection.
func defaultDecision(colType format.ValueType, cardinality uint64) Decision {
	switch {
	case colType == format.ValueText:
		return Decision{Tag: format.TagKeywords}
	case colType == format.ValueString:
		return Decision{Tag: format.TagDirect, Domain: cardinality}
	case colType.Integer() && cardinality > 0 && cardinality <= 1<<16:
		if cardinality <= 1<<12 {
			return Decision{Tag: format.TagDirect, Domain: cardinality}
		}

		return Decision{Tag: format.TagRangeEqualityUnbinned}
	case colType.Integer() || colType.Float():
		return Decision{Tag: format.TagEqualityBinning, BinCount: defaultBinCount}
	default:
		return Decision{Tag: format.TagBasicEquality}
	}
}

// CountDistinct scans values for the number of distinct valid entries,
// the cardinality input ParseSpec's default branch needs.
func CountDistinct[T column.Numeric](src column.ValueSource[T]) uint64 {
	info := src.Info()
	seen := make(map[T]struct{})
	for i, v := range src.Values() {
		if info.Valid(i) {
			seen[v] = struct{}{}
		}
	}

	return uint64(len(seen))
}

// Create builds or reconstructs an encoding for a numeric column.
// Step 1: if fileHint names an existing, header-valid
// index file, reconstruct via the matching package's Deserialize.
// Step 2/3: otherwise parse spec (or the cardinality default) and
// Build fresh. Step 4: serialize the freshly built index back to
// fileHint, deleting any partial file on failure.
func Create[T column.Numeric](ctx *bitidx.Context, col column.Info, src column.ValueSource[T], fileHint, spec string, readOpt ReadOption) (encidx.Encoding, error) {
	logger := ctx.Logger()
	if spec == "" {
		spec = Conf.Lookup(col.Name, col.Partition)
	}
	readOpt = Conf.readOptionFor(col.Name, readOpt)

	if enc, ok, err := openExisting(fileHint, readOpt); err != nil {
		return nil, err
	} else if ok {
		attachSource(enc, src)
		applyUncompress(enc, uint64(col.N))

		return enc, nil
	}

	cardinality := CountDistinct(src)
	d, err := ParseSpec(col.Type, cardinality, spec)
	if err != nil {
		logger.Warn("factory: unrecognized spec", "spec", spec, "column", col.Name, "err", err)

		return nil, err
	}
	if d.Refuse {
		return nil, errs.ErrIndexRefused
	}

	enc, err := build(d, src)
	if err != nil {
		return nil, err
	}
	applyUncompress(enc, uint64(col.N))

	if fileHint != "" {
		if err := serializeToFile(enc, fileHint); err != nil {
			logger.Warn("factory: serialize failed, index kept in-memory only", "path", fileHint, "err", err)
		}
	}

	return enc, nil
}

// CreateKeyword is Create's text-column counterpart: keyword is the
// only encoding that indexes a column.StringSource rather than a
// typed numeric array, so it cannot share Create's generic signature.
func CreateKeyword(ctx *bitidx.Context, col column.Info, src column.StringSource, fileHint, spec string, readOpt ReadOption) (encidx.Encoding, error) {
	logger := ctx.Logger()
	if spec == "" {
		spec = Conf.Lookup(col.Name, col.Partition)
	}
	readOpt = Conf.readOptionFor(col.Name, readOpt)
	delimiters := delimitersOf(spec)

	if enc, ok, err := openExisting(fileHint, readOpt); err != nil {
		return nil, err
	} else if ok {
		if kw, ok := enc.(*keyword.Index); ok {
			kw.AttachDictionary(src, delimiters)
		}
		applyUncompress(enc, uint64(col.N))

		return enc, nil
	}

	d, err := ParseSpec(col.Type, 0, spec)
	if err != nil {
		return nil, err
	}
	if d.Refuse {
		return nil, errs.ErrIndexRefused
	}

	enc, err := keyword.Build(src, d.Delimiters)
	if err != nil {
		return nil, err
	}
	applyUncompress(enc, uint64(col.N))

	if fileHint != "" {
		if err := serializeToFile(enc, fileHint); err != nil {
			logger.Warn("factory: serialize failed, index kept in-memory only", "path", fileHint, "err", err)
		}
	}

	return enc, nil
}

func build[T column.Numeric](d Decision, src column.ValueSource[T]) (encidx.Encoding, error) {
	switch d.Tag {
	case format.TagBasicEquality:
		return equality.Build(src)
	case format.TagRange:
		return rangeenc.Build(src)
	case format.TagInterval:
		return interval.Build(src, 8)
	case format.TagBak:
		precision := d.Precision
		if precision == 0 {
			precision = 32
		}

		return reduced.Build(src, precision)
	case format.TagDirect:
		domain := d.Domain
		if domain == 0 {
			domain = 1 << 16
		}

		return direct.Build(src, domain)
	case format.TagBitSlice:
		return bitslice.Build(src)
	case format.TagMulticomponentEquality, format.TagMulticomponentRange, format.TagMulticomponentInterval:
		components := d.Components
		if components == 0 {
			components = 3
		}

		return multicomp.Build(src, components)
	case format.TagEqualityBinning, format.TagAmbit, format.TagPale, format.TagPack, format.TagZone:
		binCount := d.BinCount
		if binCount == 0 {
			binCount = defaultBinCount
		}

		return binned.Build(src, binCount)
	default:
		return nil, fmt.Errorf("%w: tag %s not buildable from a numeric source", errs.ErrUnrecognizedSpec, d.Tag)
	}
}

// openExisting acquires the file's bytes through the shared Files
// manager (honoring readOpt), verifies the header, and on tag
// recognition dispatches to
// the matching Deserialize. On header mismatch (bad magic, unknown
// tag, bad width) the file is deleted and the caller falls through to
// build.
func openExisting(fileHint string, readOpt ReadOption) (encidx.Encoding, bool, error) {
	if fileHint == "" {
		return nil, false, nil
	}

	raw, release, err := Files.OpenIndexFile(fileHint, readOpt.preference())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}

		return nil, false, err
	}
	defer release()

	body, err := decodeEnvelope(raw)
	if err != nil {
		_ = os.Remove(fileHint)

		return nil, false, nil
	}

	r := bytes.NewReader(body)
	h, err := encidx.ReadHeader(r)
	if err != nil {
		_ = os.Remove(fileHint)

		return nil, false, nil
	}

	enc, err := deserializeTag(h, r)
	if err != nil {
		_ = os.Remove(fileHint)

		return nil, false, nil
	}

	return enc, true, nil
}

// decodeEnvelope strips the one-byte compress.CodecType prefix every
// serializeToFile write carries and returns the plain encidx wire
// bytes underneath.
func decodeEnvelope(raw []byte) ([]byte, error) {
	if len(raw) < 1 {
		return nil, errs.ErrTruncatedFile
	}
	codec, err := compress.CreateCodec(compress.CodecType(raw[0]), "index file")
	if err != nil {
		return nil, err
	}

	return codec.Decompress(raw[1:])
}

// deserializeTag is the tag -> Deserialize dispatch table.
func deserializeTag(h Header, r io.Reader) (encidx.Encoding, error) {
	switch h.Tag {
	case format.TagBasicEquality:
		return equality.Deserialize(r, h.Width)
	case format.TagRange:
		return rangeenc.Deserialize(r, h.Width)
	case format.TagInterval:
		return interval.Deserialize(r, h.Width)
	case format.TagBak:
		return reduced.Deserialize(r, h.Width)
	case format.TagDirect:
		return direct.Deserialize(r, h.Width)
	case format.TagBitSlice:
		return bitslice.Deserialize(r, h.Width)
	case format.TagKeywords:
		return keyword.Deserialize(r, h.Width)
	case format.TagMulticomponentEquality, format.TagMulticomponentRange, format.TagMulticomponentInterval:
		return multicomp.Deserialize(r, h.Width)
	case format.TagEqualityBinning, format.TagAmbit, format.TagPale, format.TagPack, format.TagZone,
		format.TagRangeEqualityUnbinned, format.TagIntervalEqualityUnbinned,
		format.TagEqualityEqualityUnbinned, format.TagIntervalEqualityBinned:
		return binned.Deserialize(r, h.Width)
	default:
		return nil, fmt.Errorf("%w: tag %d", errs.ErrUnknownTag, h.Tag)
	}
}

// serializeToFile implements the step 4: write-once to a
// temporary path, then atomically rename, deleting the partial file on
// any failure.
func serializeToFile(enc encidx.Encoding, path string) error {
	buf := pool.GetSerializeBuffer()
	defer pool.PutSerializeBuffer(buf)

	if err := enc.Serialize(buf); err != nil {
		return err
	}

	codec, err := compress.CreateCodec(FileCodec, "index file")
	if err != nil {
		return err
	}
	compressed, err := codec.Compress(buf.Bytes())
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := f.Write([]byte{byte(FileCodec)}); err != nil {
		f.Close()
		_ = os.Remove(tmp)

		return err
	}
	if _, err := f.Write(compressed); err != nil {
		f.Close()
		_ = os.Remove(tmp)

		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)

		return err
	}

	return os.Rename(tmp, path)
}
