// Package pool provides reusable scratch buffers for index
// serialization. An index file is assembled in memory before the
// compression envelope and the atomic rename, so every build pays for
// one large contiguous buffer; pooling it keeps repeated builds from
// re-growing the same allocation.
package pool

import (
	"io"
	"sync"
)

const (
	// SerializeBufferDefaultSize is the initial capacity of a pooled
	// serialize buffer, sized for a typical single-column index.
	SerializeBufferDefaultSize = 1024 * 1024 // 1MiB
	// SerializeBufferMaxThreshold is the capacity above which a
	// returned buffer is discarded instead of pooled.
	SerializeBufferMaxThreshold = 1024 * 1024 * 8 // 8MiB
)

// ByteBuffer is a growable byte buffer that exposes its backing slice
// directly. It implements io.Writer so an encoding's Serialize can
// target it without an intermediate copy.
type ByteBuffer struct {
	// B is the underlying byte slice.
	B []byte
}

// NewByteBuffer creates a ByteBuffer with the given initial capacity.
func NewByteBuffer(defaultSize int) *ByteBuffer {
	return &ByteBuffer{
		B: make([]byte, 0, defaultSize),
	}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Reset empties the buffer, retaining the allocated memory for reuse.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// Len returns the number of bytes written.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Cap returns the capacity of the buffer.
func (bb *ByteBuffer) Cap() int {
	return cap(bb.B)
}

// Write appends data to the buffer, growing it as needed. The error
// is always nil.
func (bb *ByteBuffer) Write(data []byte) (int, error) {
	bb.B = append(bb.B, data...)
	return len(data), nil
}

// WriteTo writes the buffer's contents to w.
func (bb *ByteBuffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(bb.B)
	return int64(n), err
}

// ByteBufferPool is a sync.Pool of ByteBuffers with a maximum retained
// capacity, so one oversized index build does not pin its buffer for
// the life of the process.
type ByteBufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewByteBufferPool creates a pool whose buffers start at defaultSize
// capacity. Buffers that have grown past maxThreshold are dropped on
// Put; a threshold of 0 retains everything.
func NewByteBufferPool(defaultSize int, maxThreshold int) *ByteBufferPool {
	return &ByteBufferPool{
		pool: sync.Pool{
			New: func() any {
				return NewByteBuffer(defaultSize)
			},
		},
		maxThreshold: maxThreshold,
	}
}

// Get retrieves a ByteBuffer from the pool.
func (bbp *ByteBufferPool) Get() *ByteBuffer {
	bb, _ := bbp.pool.Get().(*ByteBuffer)
	return bb
}

// Put returns a ByteBuffer to the pool for reuse. Buffers over the
// pool's retention threshold are discarded.
func (bbp *ByteBufferPool) Put(bb *ByteBuffer) {
	if bb == nil {
		return
	}

	if bbp.maxThreshold > 0 && cap(bb.B) > bbp.maxThreshold {
		return
	}

	bb.Reset()
	bbp.pool.Put(bb)
}

var serializePool = NewByteBufferPool(SerializeBufferDefaultSize, SerializeBufferMaxThreshold)

// GetSerializeBuffer retrieves a ByteBuffer from the shared
// serialization pool.
func GetSerializeBuffer() *ByteBuffer {
	return serializePool.Get()
}

// PutSerializeBuffer returns a ByteBuffer to the shared serialization
// pool.
func PutSerializeBuffer(bb *ByteBuffer) {
	serializePool.Put(bb)
}
