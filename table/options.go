package table

import "github.com/wippyai/bufmap"

// DefaultCapacity is the capacity used by the draw pipeline.
const DefaultCapacity = 50

type options struct {
	buckets   int
	hasher    Hasher
	alloc     bufmap.Allocator
	provider  bufmap.Provider
	observers []Observer
}

// Option configures a Table.
type Option func(*options)

// WithBuckets sets the number of buckets. It defaults to the capacity and
// may not be smaller than it.
func WithBuckets(n int) Option {
	return func(o *options) {
		o.buckets = n
	}
}

// WithHasher replaces the default XXHash.
func WithHasher(h Hasher) Option {
	return func(o *options) {
		o.hasher = h
	}
}

// WithAllocator sets the allocator that owns key allocations. Without one,
// removed keys are dropped without being freed.
func WithAllocator(a bufmap.Allocator) Option {
	return func(o *options) {
		o.alloc = a
	}
}

// WithProvider sets the provider that releases handles. Without one,
// removed handles are dropped without being released.
func WithProvider(p bufmap.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithObserver subscribes o before the table is returned.
func WithObserver(o Observer) Option {
	return func(opts *options) {
		opts.observers = append(opts.observers, o)
	}
}
