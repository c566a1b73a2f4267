// Package store abstracts over the three backends that can materialize
// a contiguous range of bitvectors: a whole-file read, a memory-mapped
// file, and a caller-supplied reader callback. The file manager owns
// the storage; indexes hold handles and pin bitvectors for the
// duration of a read.
package store

import (
	"fmt"
	"os"
	"sync"

	mmap "github.com/dolthub/mmap-go"

	"github.com/ibisdb/bitidx/bitvector"
	"github.com/ibisdb/bitidx/errs"
	"github.com/ibisdb/bitidx/offset"
)

// Store materializes bitvectors from a bitmap region given an offset
// table. GetBitmap(i).Size() == n for every i, except that empty
// entries (o[i+1]==o[i]) return the zero bitvector of length n.
type Store interface {
	// GetBitmap materializes the single bitvector at index i.
	GetBitmap(i int) (*bitvector.Bitvector, error)
	// GetBitmapRange materializes bitvectors [i, j) in one I/O when
	// the backend supports it.
	GetBitmapRange(i, j int) ([]*bitvector.Bitvector, error)
	// Activate materializes every non-empty bitvector referenced by
	// the offset table.
	Activate() ([]*bitvector.Bitvector, error)
	// Close releases any OS resources (mapping, file handle).
	Close() error
}

// base holds the fields every backend shares.
type base struct {
	table  *offset.Table
	n      uint64
	region int64 // byte offset of the bitmap region's start within the file
}

func (b *base) bitvectorAt(data []byte, i int, mapped bool) (*bitvector.Bitvector, error) {
	start, end, err := b.table.Range(i)
	if err != nil {
		return nil, err
	}
	if start == end {
		return bitvector.New(b.n), nil
	}
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: bitvector %d ends at %d, region is %d bytes", errs.ErrOffsetOutOfRange, i, end, len(data))
	}

	if mapped {
		return bitvector.FromBuffer(data[start:end], b.n)
	}

	owned := make([]byte, end-start)
	copy(owned, data[start:end])

	return bitvector.FromBuffer(owned, b.n)
}

// FileStore reads the entire bitmap region into memory once, then
// serves every subsequent materialization from that buffer. Each
// materialized bitvector is cached in a per-entry slot, so repeated
// GetBitmap calls for the same index return the same live value until
// Close releases them.
type FileStore struct {
	base
	data  []byte
	slots []bitvector.Slot
}

// NewFileStore reads [region, region+regionLen) of f into memory.
func NewFileStore(f *os.File, table *offset.Table, n uint64, region int64, regionLen int64) (*FileStore, error) {
	buf := make([]byte, regionLen)
	if _, err := f.ReadAt(buf, region); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrShortRead, err)
	}

	return &FileStore{
		base:  base{table: table, n: n, region: region},
		data:  buf,
		slots: make([]bitvector.Slot, table.Count()),
	}, nil
}

func (s *FileStore) GetBitmap(i int) (*bitvector.Bitvector, error) {
	if i >= 0 && i < len(s.slots) && s.slots[i].State != bitvector.StateEmpty {
		return s.slots[i].BV, nil
	}
	bv, err := s.bitvectorAt(s.data, i, false)
	if err != nil {
		return nil, err
	}
	if i >= 0 && i < len(s.slots) {
		s.slots[i].Materialize(bv, false)
	}

	return bv, nil
}

func (s *FileStore) GetBitmapRange(i, j int) ([]*bitvector.Bitvector, error) {
	out := make([]*bitvector.Bitvector, 0, j-i)
	for k := i; k < j; k++ {
		bv, err := s.GetBitmap(k)
		if err != nil {
			return nil, err
		}
		out = append(out, bv)
	}

	return out, nil
}

func (s *FileStore) Activate() ([]*bitvector.Bitvector, error) {
	return s.GetBitmapRange(0, s.table.Count())
}

func (s *FileStore) Close() error {
	for i := range s.slots {
		s.slots[i].Release()
	}
	s.data = nil

	return nil
}

// MMapStore memory-maps the backing file and materializes bitvectors
// as zero-copy views over the mapped region. Releasing the mapping
// (Close) invalidates every Bitvector this store has produced;
// consumers must not hold pointers across Close.
type MMapStore struct {
	base
	mu     sync.Mutex
	file   *os.File
	mapped mmap.MMap
	slots  []bitvector.Slot
	closed bool
}

// NewMMapStore memory-maps f and scopes the bitmap region to
// [region, region+regionLen).
func NewMMapStore(f *os.File, table *offset.Table, n uint64, region int64, regionLen int64) (*MMapStore, error) {
	m, err := mmap.MapRegion(f, int(region+regionLen), mmap.RDONLY, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrShortRead, err)
	}

	return &MMapStore{
		base:   base{table: table, n: n, region: region},
		file:   f,
		mapped: m,
		slots:  make([]bitvector.Slot, table.Count()),
	}, nil
}

// getBitmapLocked serves a cached slot when one is live, otherwise
// materializes a zero-copy view and records it as live_mapped.
func (s *MMapStore) getBitmapLocked(i int) (*bitvector.Bitvector, error) {
	if s.closed {
		return nil, errs.ErrStoreClosed
	}
	if i >= 0 && i < len(s.slots) && s.slots[i].State != bitvector.StateEmpty {
		return s.slots[i].BV, nil
	}
	bv, err := s.bitvectorAt(s.mapped[s.region:], i, true)
	if err != nil {
		return nil, err
	}
	if i >= 0 && i < len(s.slots) {
		s.slots[i].Materialize(bv, true)
	}

	return bv, nil
}

func (s *MMapStore) GetBitmap(i int) (*bitvector.Bitvector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getBitmapLocked(i)
}

func (s *MMapStore) GetBitmapRange(i, j int) ([]*bitvector.Bitvector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*bitvector.Bitvector, 0, j-i)
	for k := i; k < j; k++ {
		bv, err := s.getBitmapLocked(k)
		if err != nil {
			return nil, err
		}
		out = append(out, bv)
	}

	return out, nil
}

func (s *MMapStore) Activate() ([]*bitvector.Bitvector, error) {
	return s.GetBitmapRange(0, s.table.Count())
}

// Close releases every live_mapped slot and unmaps the region. Any
// bitvector previously handed out aliases the mapping and must not be
// used after Close returns.
func (s *MMapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for i := range s.slots {
		s.slots[i].Release()
	}

	return s.mapped.Unmap()
}

// ReaderFunc reads n bytes starting at byte offset off within the
// bitmap region. It is the caller-supplied reader callback backend,
// for embedding bitidx in a host that already
// owns its own I/O layer (network-backed columns, a custom cache,
// etc).
type ReaderFunc func(off, n int64) ([]byte, error)

// ReaderStore materializes bitvectors by invoking a caller-supplied
// ReaderFunc for each requested range. Unlike FileStore and MMapStore
// it does not buffer the whole region up front; every GetBitmap(Range)
// call is a new invocation of the callback.
type ReaderStore struct {
	base
	read ReaderFunc
}

// NewReaderStore wraps read as a Store.
func NewReaderStore(read ReaderFunc, table *offset.Table, n uint64) *ReaderStore {
	return &ReaderStore{base: base{table: table, n: n}, read: read}
}

func (s *ReaderStore) GetBitmap(i int) (*bitvector.Bitvector, error) {
	start, end, err := s.table.Range(i)
	if err != nil {
		return nil, err
	}
	if start == end {
		return bitvector.New(s.n), nil
	}
	data, err := s.read(int64(start), int64(end-start))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrShortRead, err)
	}

	return bitvector.FromBuffer(data, s.n)
}

func (s *ReaderStore) GetBitmapRange(i, j int) ([]*bitvector.Bitvector, error) {
	if i >= j {
		return nil, nil
	}
	start, _, err := s.table.Range(i)
	if err != nil {
		return nil, err
	}
	_, end, err := s.table.Range(j - 1)
	if err != nil {
		return nil, err
	}
	data, err := s.read(int64(start), int64(end-start))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrShortRead, err)
	}

	out := make([]*bitvector.Bitvector, 0, j-i)
	for k := i; k < j; k++ {
		kStart, kEnd, err := s.table.Range(k)
		if err != nil {
			return nil, err
		}
		if kStart == kEnd {
			out = append(out, bitvector.New(s.n))

			continue
		}
		lo, hi := kStart-start, kEnd-start
		bv, err := bitvector.FromBuffer(data[lo:hi], s.n)
		if err != nil {
			return nil, err
		}
		out = append(out, bv)
	}

	return out, nil
}

func (s *ReaderStore) Activate() ([]*bitvector.Bitvector, error) {
	return s.GetBitmapRange(0, s.table.Count())
}

func (s *ReaderStore) Close() error { return nil }

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MMapStore)(nil)
	_ Store = (*ReaderStore)(nil)
)
