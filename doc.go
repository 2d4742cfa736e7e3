// Package bufmap maps draw buffer addresses to the GPU buffers backing them.
//
// A renderer that hands CPU-side draw buffers to a 2D accelerator needs to find
// the accelerator's buffer again when the same draw buffer comes back. bufmap
// keeps that association in a fixed-capacity chained hash table and owns both
// sides of it: when an entry leaves the table the draw buffer allocation is
// freed and the GPU buffer is released, exactly once.
//
// # Architecture Overview
//
//	bufmap/          Root package with Key, Handle, Memory, Allocator and Provider
//	├── table/       Fixed-capacity hash table with chained overflow
//	├── memory/      Free-list allocator over Go heap or wazero linear memory
//	├── resource/    GPU buffer provider handing out owned handles
//	├── config/      YAML configuration and logger construction
//	├── errors/      Structured error types
//	└── cmd/bufmap/  CLI: scripted demo, script runner, interactive TUI
//
// # Quick Start
//
//	mem := memory.NewFreeList(memory.NewHeap(1 << 20))
//	pool := resource.NewPool(mem)
//
//	t, err := table.New(table.DefaultCapacity,
//	    table.WithAllocator(mem),
//	    table.WithProvider(pool),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Close()
//
//	ptr, _ := mem.Alloc(4096, 0)
//	h, _ := pool.Alloc(4096)
//	if err := t.Insert(bufmap.Key(ptr), h); err != nil {
//	    log.Fatal(err) // table full; ptr and h were already released
//	}
//
//	h, ok := t.Find(bufmap.Key(ptr))
//
// # Ownership
//
// Insert transfers ownership of the key's allocation and the handle to the
// table, even when it fails. Find lends the handle; callers must not release
// it. Remove and Close release what the table owns.
//
// # Thread Safety
//
// Nothing in this module locks. A Table, FreeList or Pool shared between
// goroutines must be guarded by the caller.
package bufmap
