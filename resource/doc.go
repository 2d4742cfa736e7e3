// Package resource provides the GPU buffer provider.
//
// A Pool stands in for the 2D accelerator's buffer allocator. Each buffer is
// identified by an opaque bufmap.Handle and backed by a block from a
// bufmap.Allocator, the same way the accelerator driver carves buffers out of
// contiguous memory.
//
// # Handle Lifecycle
//
//	pool := resource.NewPool(alloc)
//
//	// Allocate a buffer, get a handle
//	h, err := pool.Alloc(4096)
//
//	// Inspect it
//	buf, ok := pool.Buffer(h)
//
//	// Release exactly once
//	err = pool.Release(h)
//
// Handles carry a generation counter, so a handle that was released stays
// invalid even after its slot is reused. Releasing it again returns a
// KindDoubleFree error instead of freeing somebody else's buffer.
//
// # Ownership
//
// Pool implements bufmap.Provider. Once a handle is inserted into a table the
// table owns it and is the only party that may call Release.
//
// Call pool.Close() at shutdown to release whatever is still outstanding.
package resource
