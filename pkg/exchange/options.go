package exchange

import (
	"slices"
	"time"
)

type Option func(*Options)

// Options narrows order and trade queries. Zero values mean "venue default".
type Options struct {
	Since   time.Time
	Symbols []string
	Limit   int
}

func WithSince(since time.Time) Option {
	return func(o *Options) {
		o.Since = since
	}
}

func WithSymbols(symbols ...string) Option {
	return func(o *Options) {
		o.Symbols = append(o.Symbols, symbols...)
	}
}

func WithLimit(limit int) Option {
	return func(o *Options) {
		o.Limit = limit
	}
}

func ApplyOptions(opts ...Option) *Options {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SinceMillis returns Since in epoch milliseconds, or 0 when unset.
func (o *Options) SinceMillis() int64 {
	if o.Since.IsZero() {
		return 0
	}
	return o.Since.UnixMilli()
}

// Includes reports whether symbol passes the Symbols filter. An empty
// filter includes everything.
func (o *Options) Includes(symbol string) bool {
	return len(o.Symbols) == 0 || slices.Contains(o.Symbols, symbol)
}

// After reports whether a timestamp in epoch milliseconds is at or after Since.
func (o *Options) After(ts int64) bool {
	return o.Since.IsZero() || ts >= o.Since.UnixMilli()
}

// Truncate keeps at most Limit items when a limit is set.
func Truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
