package bufmap

// Key identifies a draw buffer by the address of its backing allocation.
// Keys are compared for identity only and never dereferenced by the table.
// Key 0 is the null address and is always invalid.
type Key uint32

// Handle is an opaque reference to an external GPU buffer.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Memory represents a linear memory region addressed from 0.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	Size() uint32
}

// Allocator hands out blocks of linear memory. A block's address doubles as
// the identity of whatever is stored in it.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	AllocZeroed(size, align uint32) (uint32, error)
	Free(ptr uint32) error
}

// Provider owns the lifetime of external resource handles.
// Release is called exactly once per handle stored in a table.
type Provider interface {
	Release(h Handle) error
}
