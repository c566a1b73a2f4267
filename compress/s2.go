package compress

import "github.com/klauspost/compress/s2"

// S2Codec is klauspost's S2 (a Snappy extension tuned for throughput),
// the default for index files: fast enough that compression never
// dominates the write-once-then-rename path.
type S2Codec struct{}

var _ Codec = S2Codec{}

func (S2Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Encode(nil, data), nil
}

func (S2Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.Decode(nil, data)
}
