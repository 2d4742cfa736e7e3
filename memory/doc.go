// Package memory provides linear memory backends and a free-list allocator.
//
// Draw buffer keys are addresses handed out by an Allocator. This package
// supplies one that works over any bufmap.Memory, plus two memories to put
// under it.
//
// # Backends
//
// Heap is a plain Go byte slice:
//
//	mem := memory.NewHeap(1 << 20)
//
// Wasm instantiates a module exporting a single linear memory in wazero, so
// addresses are real guest pointers:
//
//	mem, err := memory.NewWasm(ctx, 16) // 16 pages, 1 MiB
//	defer mem.Close(ctx)
//
// # Allocator
//
//	alloc := memory.NewFreeList(mem)
//	ptr, err := alloc.Alloc(256, 16)
//	defer alloc.Free(ptr)
//
// Address 0 is never handed out, so it can serve as the null key. Zero-byte
// requests get a 1-byte block so that every live allocation has a distinct
// address. Freeing an address that is not live returns a KindDoubleFree error.
package memory
