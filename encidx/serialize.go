package encidx

import (
	"fmt"
	"io"
	"math"

	"github.com/ibisdb/bitidx/bitvector"
	"github.com/ibisdb/bitidx/endian"
	"github.com/ibisdb/bitidx/errs"
	"github.com/ibisdb/bitidx/format"
	"github.com/ibisdb/bitidx/offset"
)

// Magic is the 5-byte ASCII signature every index file header begins
// with.
const Magic = "#IBIS"

var engine = endian.GetLittleEndianEngine()

// Header is the 8-byte index file header.
type Header struct {
	Tag   format.Tag
	Width offset.Width
}

// WriteHeader writes the 8-byte header: magic, tag, offset width,
// reserved zero byte.
func WriteHeader(w io.Writer, h Header) error {
	var buf [8]byte
	copy(buf[0:5], Magic)
	buf[5] = byte(h.Tag)
	buf[6] = byte(h.Width)
	buf[7] = 0
	_, err := w.Write(buf[:])

	return err
}

// ReadHeader reads and validates the 8-byte header. An unrecognized
// magic, tag, or offset width is an integrity error: the
// caller deletes the file and rebuilds rather than trying to interpret
// it.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("%w: %v", errs.ErrTruncatedFile, err)
	}
	if string(buf[0:5]) != Magic {
		return Header{}, errs.ErrBadMagic
	}
	tag := format.Tag(buf[5])
	if !tag.Known() {
		return Header{}, errs.ErrUnknownTag
	}
	width := offset.Width(buf[6])
	if width != offset.Width32 && width != offset.Width64 {
		return Header{}, errs.ErrBadOffsetWidth
	}

	return Header{Tag: tag, Width: width}, nil
}

// Body is the common post-header layout: N, M, the
// offset table, an optional bounds table (encoding-specific float64
// metadata, most often the sorted distinct keys) and/or bases vector
// (multicomponent radices, or another small integer parameter), then the
// bitmap region itself. Every encoding's Serialize builds one of these
// and every Deserialize reads one back. Offsets in the written table
// include each bitvector's 4-byte padding, so a later o[i+1]-o[i]
// always spans whole bytes FromBuffer can be handed directly.
type Body struct {
	N      uint64
	Bits   []*bitvector.Bitvector
	Bounds []float64 // encoding-specific; its length need not match len(Bits)
	Bases  []uint32  // len 0, component count, or one parameter
}

// pad4 returns the number of zero bytes needed to bring n up to the
// next 4-byte boundary.
func pad4(n uint64) uint64 {
	if rem := n % 4; rem != 0 {
		return 4 - rem
	}

	return 0
}

func paddedSize(n uint64) uint64 { return n + pad4(n) }

// WriteBody serializes body to w, which must immediately follow a
// header written by WriteHeader.
func WriteBody(w io.Writer, body Body) error {
	var nm [8]byte
	engine.PutUint32(nm[0:4], uint32(body.N))           //nolint: gosec
	engine.PutUint32(nm[4:8], uint32(len(body.Bits)))   //nolint: gosec
	if _, err := w.Write(nm[:]); err != nil {
		return err
	}

	m := len(body.Bits)
	width := offset.ChooseWidth(m, maxBytes(body.Bits))
	table := offset.New(m, width)
	var end uint64
	for i, bv := range body.Bits {
		if !bv.IsEmpty() { // an empty bitvector is written as o[i+1] == o[i]
			end += paddedSize(bv.Bytes())
		}
		table.Set(i, end)
	}
	if _, err := w.Write(table.Bytes(engine)); err != nil {
		return err
	}

	if err := writeFloat64Vector(w, body.Bounds); err != nil {
		return err
	}
	if err := writeUint32Vector(w, body.Bases); err != nil {
		return err
	}

	for _, bv := range body.Bits {
		if bv.IsEmpty() {
			continue
		}
		raw := bv.Bytes()
		if _, err := bv.WriteRaw(w); err != nil {
			return err
		}
		if p := pad4(raw); p > 0 {
			if _, err := w.Write(make([]byte, p)); err != nil {
				return err
			}
		}
	}

	return nil
}

func writeFloat64Vector(w io.Writer, vals []float64) error {
	var lenBuf [4]byte
	engine.PutUint32(lenBuf[:], uint32(len(vals))) //nolint: gosec
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(vals) == 0 {
		return nil
	}
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		engine.PutUint64(buf[i*8:i*8+8], math.Float64bits(v))
	}
	_, err := w.Write(buf)

	return err
}

func writeUint32Vector(w io.Writer, vals []uint32) error {
	var lenBuf [4]byte
	engine.PutUint32(lenBuf[:], uint32(len(vals))) //nolint: gosec
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(vals) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		engine.PutUint32(buf[i*4:i*4+4], v)
	}
	_, err := w.Write(buf)

	return err
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

// ReadBody parses a Body previously written by WriteBody, given the
// offset width recorded in the header.
func ReadBody(r io.Reader, width offset.Width) (Body, error) {
	var nm [8]byte
	if _, err := io.ReadFull(r, nm[:]); err != nil {
		return Body{}, fmt.Errorf("%w: %v", errs.ErrTruncatedFile, err)
	}
	n := uint64(engine.Uint32(nm[0:4]))
	m := int(engine.Uint32(nm[4:8]))

	tableBytes := make([]byte, (m+1)*int(width))
	if _, err := io.ReadFull(r, tableBytes); err != nil {
		return Body{}, fmt.Errorf("%w: %v", errs.ErrTruncatedFile, err)
	}
	table, err := offset.Load(tableBytes, m, width, engine)
	if err != nil {
		return Body{}, err
	}

	bounds, err := readFloat64Vector(r)
	if err != nil {
		return Body{}, err
	}
	bases, err := readUint32Vector(r)
	if err != nil {
		return Body{}, err
	}

	bits := make([]*bitvector.Bitvector, m)
	for i := range bits {
		start, end, rerr := table.Range(i)
		if rerr != nil {
			return Body{}, rerr
		}
		if start == end {
			bits[i] = bitvector.New(n)

			continue
		}
		buf := make([]byte, end-start)
		if _, rerr := io.ReadFull(r, buf); rerr != nil {
			return Body{}, fmt.Errorf("%w: %v", errs.ErrTruncatedFile, rerr)
		}
		bv, rerr := bitvector.FromBuffer(buf, n)
		if rerr != nil {
			return Body{}, rerr
		}
		bits[i] = bv
	}

	return Body{N: n, Bits: bits, Bounds: bounds, Bases: bases}, nil
}

func readFloat64Vector(r io.Reader) ([]float64, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTruncatedFile, err)
	}
	count := int(engine.Uint32(lenBuf[:]))
	if count == 0 {
		return nil, nil
	}
	buf := make([]byte, 8*count)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTruncatedFile, err)
	}
	out := make([]float64, count)
	for i := range out {
		out[i] = math.Float64frombits(engine.Uint64(buf[i*8 : i*8+8]))
	}

	return out, nil
}

func readUint32Vector(r io.Reader) ([]uint32, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTruncatedFile, err)
	}
	count := int(engine.Uint32(lenBuf[:]))
	if count == 0 {
		return nil, nil
	}
	buf := make([]byte, 4*count)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTruncatedFile, err)
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = engine.Uint32(buf[i*4 : i*4+4])
	}

	return out, nil
}
