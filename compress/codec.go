// Package compress provides optional whole-file compression for
// serialized index files. Unlike the wire format's bitmap region, which
// must stay byte-addressable for the offset table to work, the fully
// assembled file is an opaque blob by the time it reaches disk, so it
// can be compressed and decompressed as one unit with no change to
// encidx's header/body layout.
package compress

import "fmt"

// CodecType identifies the compression algorithm that wraps a
// serialized index file on disk.
type CodecType uint8

const (
	CodecNone CodecType = iota
	CodecZstd
	CodecS2
	CodecLZ4
)

func (c CodecType) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecS2:
		return "s2"
	case CodecLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("CodecType(%d)", uint8(c))
	}
}

// Compressor compresses a byte slice, returning a newly allocated
// result; the input is never modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses a Compressor of the same algorithm.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions of one compression algorithm.
type Codec interface {
	Compressor
	Decompressor
}

// CreateCodec returns the Codec for typ. target names the caller for
// error messages.
func CreateCodec(typ CodecType, target string) (Codec, error) {
	switch typ {
	case CodecNone:
		return NoOpCodec{}, nil
	case CodecZstd:
		return ZstdCodec{}, nil
	case CodecS2:
		return S2Codec{}, nil
	case CodecLZ4:
		return LZ4Codec{}, nil
	default:
		return nil, fmt.Errorf("invalid %s compression: %s", target, typ)
	}
}
