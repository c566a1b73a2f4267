package bitidx

import (
	"sync/atomic"

	"github.com/ibisdb/bitidx/internal/log"
)

// Context carries the logger, cancellation flag, and query counters
// explicitly through Create, Evaluate, and Select; there is no global
// register. A zero-value Context is valid: it logs nothing and is
// never cancelled.
type Context struct {
	logger    log.Logger
	cancelled *atomic.Bool
	counters  *Counters
}

// Counters holds the relaxed-atomicity query counters shared across
// threads.
type Counters struct {
	BitmapsMaterialized atomic.Int64
	BytesDecompressed   atomic.Int64
	ResidualScans       atomic.Int64
}

// NewContext builds a Context with the given logger and a fresh
// cancellation flag and counter set.
func NewContext(logger log.Logger) *Context {
	if logger == nil {
		logger = log.Discard()
	}

	return &Context{
		logger:    logger,
		cancelled: &atomic.Bool{},
		counters:  &Counters{},
	}
}

// Background returns the zero-value Context: no logging, never
// cancelled, scratch counters. Safe to use whenever the caller has no
// Context of their own.
func Background() *Context {
	return NewContext(nil)
}

// Logger returns the configured logger, or a discarding logger if ctx
// is nil or was default-constructed.
func (ctx *Context) Logger() log.Logger {
	if ctx == nil || ctx.logger == nil {
		return log.Discard()
	}

	return ctx.logger
}

// Counters returns the counter set, allocating one on first use so a
// nil *Context never panics.
func (ctx *Context) Counters() *Counters {
	if ctx == nil {
		return &Counters{}
	}
	if ctx.counters == nil {
		ctx.counters = &Counters{}
	}

	return ctx.counters
}

// Cancel marks ctx as cancelled. Safe to call from another goroutine
// than the one driving the query; this is how callers implement
// timeouts.
func (ctx *Context) Cancel() {
	if ctx == nil || ctx.cancelled == nil {
		return
	}
	ctx.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called. Evaluated at the
// start of every encoding's Evaluate and at the top of every residual
// scan loop.
func (ctx *Context) Cancelled() bool {
	return ctx != nil && ctx.cancelled != nil && ctx.cancelled.Load()
}
