package pool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteBufferWriteAndBytes(t *testing.T) {
	bb := NewByteBuffer(8)

	n, err := bb.Write([]byte("header"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	n, err = bb.Write([]byte("body"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, []byte("headerbody"), bb.Bytes())
	assert.Equal(t, 10, bb.Len())
}

func TestByteBufferGrowsPastInitialCapacity(t *testing.T) {
	bb := NewByteBuffer(4)

	data := bytes.Repeat([]byte{0xAB}, 1024)
	_, err := bb.Write(data)
	require.NoError(t, err)

	assert.Equal(t, 1024, bb.Len())
	assert.GreaterOrEqual(t, bb.Cap(), 1024)
	assert.Equal(t, data, bb.Bytes())
}

func TestByteBufferResetRetainsCapacity(t *testing.T) {
	bb := NewByteBuffer(16)
	_, err := bb.Write(bytes.Repeat([]byte{1}, 64))
	require.NoError(t, err)

	capBefore := bb.Cap()
	bb.Reset()

	assert.Equal(t, 0, bb.Len())
	assert.Equal(t, capBefore, bb.Cap())
}

func TestByteBufferWriteTo(t *testing.T) {
	bb := NewByteBuffer(8)
	_, err := bb.Write([]byte("payload"))
	require.NoError(t, err)

	var sink bytes.Buffer
	n, err := bb.WriteTo(&sink)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", sink.String())
}

func TestPoolRoundTrip(t *testing.T) {
	p := NewByteBufferPool(32, 0)

	bb := p.Get()
	require.NotNil(t, bb)
	_, err := bb.Write([]byte("scratch"))
	require.NoError(t, err)
	p.Put(bb)

	// A buffer handed back out must come back empty.
	bb2 := p.Get()
	assert.Equal(t, 0, bb2.Len(), "buffer should be empty after retrieval from pool")
}

func TestPoolDropsOversizedBuffers(t *testing.T) {
	p := NewByteBufferPool(8, 16)

	bb := p.Get()
	_, err := bb.Write(bytes.Repeat([]byte{2}, 128))
	require.NoError(t, err)

	// Put must not panic; the oversized buffer is silently discarded.
	p.Put(bb)
	p.Put(nil)
}

func TestSerializeBufferHelpers(t *testing.T) {
	bb := GetSerializeBuffer()
	require.NotNil(t, bb)
	assert.Equal(t, 0, bb.Len())

	_, err := bb.Write([]byte{0x23, 0x49, 0x42, 0x49, 0x53})
	require.NoError(t, err)
	PutSerializeBuffer(bb)
}
