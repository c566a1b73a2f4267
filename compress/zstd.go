package compress

// ZstdCodec gives the best compression ratio of the available codecs,
// at the cost of slower compression; suited to indexes that are built
// once and reopened many times (equality/binned bins, bounds tables).
// Compress/Decompress are implemented in zstd_pure.go (default,
// cgo-free, klauspost/compress/zstd) and zstd_cgo.go (valyala/gozstd,
// gated behind the nobuild tag so ordinary builds stay cgo-free).
type ZstdCodec struct{}

var _ Codec = ZstdCodec{}
