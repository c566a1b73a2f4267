// Package errs defines the sentinel errors returned across the bitidx
// module. Callers should use errors.Is against these values; wrapped
// context is added with fmt.Errorf("%w: ...") at the call site.
package errs

import "errors"

var (
	// Input errors: the caller asked for something that cannot be
	// honored without falling back to a full scan.
	ErrUnrecognizedSpec  = errors.New("bitidx: unrecognized index spec token")
	ErrUnsupportedColumn = errors.New("bitidx: column type not supported by requested encoding")
	ErrIndexRefused      = errors.New("bitidx: index spec explicitly refuses build")

	// Integrity errors: the on-disk file does not match what the
	// header or offset table promises.
	ErrBadMagic          = errors.New("bitidx: bad magic number in index header")
	ErrUnknownTag        = errors.New("bitidx: unknown encoding tag in index header")
	ErrBadOffsetWidth    = errors.New("bitidx: offset width must be 4 or 8 bytes")
	ErrTruncatedFile     = errors.New("bitidx: index file truncated")
	ErrOffsetOutOfRange  = errors.New("bitidx: offset table entry out of range")
	ErrOffsetNotSorted   = errors.New("bitidx: offset table is not non-decreasing")
	ErrBoundsMismatch    = errors.New("bitidx: bounds table length does not match bitvector count")
	ErrBasesMismatch     = errors.New("bitidx: bases vector does not factor the declared cardinality")

	// I/O errors: propagate as recoverable, caller may retry.
	ErrStoreClosed   = errors.New("bitidx: backing store released")
	ErrShortRead     = errors.New("bitidx: short read materializing bitvector")
	ErrFileBudget    = errors.New("bitidx: file manager byte budget exceeded")

	// Resource errors.
	ErrOutOfMemory = errors.New("bitidx: out of memory while building index")

	// Cancellation.
	ErrCancelled = errors.New("bitidx: query cancelled")

	// Programmer errors: logged and tolerated, never abort the caller.
	ErrSizeMismatch = errors.New("bitidx: bitvector length mismatch")

	// Predicate / build errors.
	ErrEmptyColumn      = errors.New("bitidx: column has zero rows")
	ErrInvalidBinCount  = errors.New("bitidx: bin count K must be >= 1")
	ErrInvalidComponent = errors.New("bitidx: component count K must be >= 1")
	ErrValueOutOfDomain = errors.New("bitidx: value outside the direct encoding's domain")
)
