package store

import (
	"container/list"
	"fmt"
	"os"
	"sync"

	mmap "github.com/dolthub/mmap-go"

	"github.com/ibisdb/bitidx/errs"
	"github.com/ibisdb/bitidx/internal/options"
)

// Preference selects which backend TryGetFile should hand back.
type Preference uint8

const (
	PreferRead Preference = iota
	PreferMMap
	PreferMMapLargeFiles
)

// handle is a refcounted, LRU-tracked open file wrapper. Multiple
// indexes opening the same path share one handle.
type handle struct {
	path    string
	file    *os.File
	size    int64
	refs    int
	lruElem *list.Element
}

// FileManager arbitrates file descriptors and a global byte budget
// across every index instance in the process. The manager owns the
// storage; indexes hold opaque handles. When the budget is exceeded
// it evicts the
// least-recently-used handle with zero outstanding references.
type FileManager struct {
	mu            sync.Mutex
	byPath        map[string]*handle
	lru           *list.List // front = most recently used
	byteUsed      int64
	byteLimit     int64
	mmapThreshold int64
}

// defaultMMapThreshold is the file size above which Recommend upgrades
// a PreferMMapLargeFiles caller to mmap, absent WithMMapThreshold.
const defaultMMapThreshold = 64 << 20 // 64 MiB

// ManagerOption configures a FileManager at construction time.
type ManagerOption = options.Option[*FileManager]

// WithMMapThreshold overrides the byte size above which Recommend
// resolves PreferMMapLargeFiles to PreferMMap instead of PreferRead.
func WithMMapThreshold(bytes int64) ManagerOption {
	return options.NoError(func(m *FileManager) {
		m.mmapThreshold = bytes
	})
}

// NewFileManager creates a manager with the given byte budget. A
// budget of 0 means unbounded. opts configure advisory knobs such as
// WithMMapThreshold; unrecognized zero values fall back to defaults.
func NewFileManager(byteLimit int64, opts ...ManagerOption) *FileManager {
	m := &FileManager{
		byPath:        make(map[string]*handle),
		lru:           list.New(),
		byteLimit:     byteLimit,
		mmapThreshold: defaultMMapThreshold,
	}

	// Apply can only fail for options built with options.New, and none
	// of this package's options use it, so the error is always nil.
	_ = options.Apply[*FileManager](m, opts...)

	return m
}

// Recommend resolves pref into a concrete backend choice for a file of
// the given size's prefer_mmap_large_files knob:
// PreferRead and PreferMMap pass through unchanged, and
// PreferMMapLargeFiles resolves to PreferMMap once size crosses the
// manager's configured threshold.
func (m *FileManager) Recommend(pref Preference, size int64) Preference {
	if pref != PreferMMapLargeFiles {
		return pref
	}
	if size >= m.mmapThreshold {
		return PreferMMap
	}

	return PreferRead
}

// TryGetFile opens (or reuses) path under a process-wide mutex, per
// the "a process-wide mutex serialises new-file-open". The
// preference is advisory: it only affects which Store constructor the
// caller should build atop the returned *os.File, not what this method
// does internally.
func (m *FileManager) TryGetFile(path string, _ Preference) (*os.File, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.byPath[path]; ok {
		h.refs++
		m.lru.MoveToFront(h.lruElem)

		return h.file, m.releaseFunc(h), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, nil, err
	}

	m.evictUntilFits(info.Size())

	h := &handle{path: path, file: f, size: info.Size(), refs: 1}
	h.lruElem = m.lru.PushFront(h)
	m.byPath[path] = h
	m.byteUsed += info.Size()

	return f, m.releaseFunc(h), nil
}

func (m *FileManager) releaseFunc(h *handle) func() {
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		h.refs--
	}
}

// evictUntilFits drops least-recently-used, zero-refcount handles
// until adding incoming bytes would fit the budget (or nothing more
// can be evicted). Must be called with m.mu held.
func (m *FileManager) evictUntilFits(incoming int64) {
	if m.byteLimit <= 0 {
		return
	}
	for m.byteUsed+incoming > m.byteLimit {
		victim := m.lruVictim()
		if victim == nil {
			return
		}
		m.evict(victim)
	}
}

func (m *FileManager) lruVictim() *handle {
	for e := m.lru.Back(); e != nil; e = e.Prev() {
		h := e.Value.(*handle) //nolint: errcheck
		if h.refs == 0 {
			return h
		}
	}

	return nil
}

func (m *FileManager) evict(h *handle) {
	m.lru.Remove(h.lruElem)
	delete(m.byPath, h.path)
	m.byteUsed -= h.size
	h.file.Close()
}

// Budget reports bytes currently tracked against the manager's limit.
func (m *FileManager) Budget() (used, limit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.byteUsed, m.byteLimit
}

// OpenIndexFile acquires the whole contents of the index file at path
// through m, honoring pref via Recommend: a resolved PreferMMap maps
// the file and hands back a zero-copy view over it, while PreferRead
// copies the file into owned memory. The returned release func must
// be called exactly once when the caller is done with data; for a
// mapped view that invalidates data (it must not be retained past
// release, the same ownership rule MMapStore enforces).
//
// This only arbitrates the initial acquisition of the file's bytes
// (the compressed envelope); it does not defer materialization of
// individual bitvectors the way GetBitmap/
// GetBitmapRange do; the whole-file compression wrapper
// (package compress) makes the bitmap region's offsets meaningless
// until the envelope is decompressed, so per-bitvector lazy
// materialization through Store is only reachable once a caller opts
// out of compression (compress.CodecNone) for a given index file.
func (m *FileManager) OpenIndexFile(path string, pref Preference) (data []byte, release func() error, err error) {
	f, releaseHandle, err := m.TryGetFile(path, pref)
	if err != nil {
		return nil, nil, err
	}

	info, err := f.Stat()
	if err != nil {
		releaseHandle()

		return nil, nil, err
	}

	if m.Recommend(pref, info.Size()) == PreferMMap && info.Size() > 0 {
		mapped, err := mmap.MapRegion(f, int(info.Size()), mmap.RDONLY, 0, 0)
		if err != nil {
			releaseHandle()

			return nil, nil, fmt.Errorf("%w: %v", errs.ErrShortRead, err)
		}

		return []byte(mapped), func() error {
			err := mapped.Unmap()
			releaseHandle()

			return err
		}, nil
	}

	buf := make([]byte, info.Size())
	if _, err := f.ReadAt(buf, 0); err != nil {
		releaseHandle()

		return nil, nil, fmt.Errorf("%w: %v", errs.ErrShortRead, err)
	}

	return buf, func() error { releaseHandle(); return nil }, nil
}
