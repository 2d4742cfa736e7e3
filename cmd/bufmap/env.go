package main

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/bufmap"
	"github.com/wippyai/bufmap/config"
	"github.com/wippyai/bufmap/memory"
	"github.com/wippyai/bufmap/resource"
	"github.com/wippyai/bufmap/table"
)

// drawBufAlign matches the stride alignment of draw buffers.
const drawBufAlign = 64

// env is the full stack behind a table: linear memory, the allocator that
// hands out draw buffer keys, the GPU buffer pool and the table itself.
type env struct {
	mem   bufmap.Memory
	wasm  *memory.Wasm // nil for the heap backend
	alloc *memory.FreeList
	pool  *resource.Pool
	table *table.Table

	closed bool
}

func newEnv(ctx context.Context, cfg config.Config) (*env, error) {
	e := &env{}
	switch cfg.Memory.Backend {
	case config.BackendWasm:
		w, err := memory.NewWasm(ctx, memory.PagesFor(cfg.Memory.Size))
		if err != nil {
			return nil, err
		}
		e.wasm = w
		e.mem = w
	default:
		e.mem = memory.NewHeap(cfg.Memory.Size)
	}

	e.alloc = memory.NewFreeList(e.mem)
	e.pool = resource.NewPool(e.alloc)

	opts := append(cfg.Table.Options(),
		table.WithAllocator(e.alloc),
		table.WithProvider(e.pool),
	)
	tbl, err := table.New(cfg.Table.Capacity, opts...)
	if err != nil {
		e.closeMemory(ctx)
		return nil, err
	}
	e.table = tbl

	zap.L().Named("env").Debug("environment ready",
		zap.String("backend", cfg.Memory.Backend),
		zap.Uint32("memory", e.mem.Size()),
		zap.Int("capacity", tbl.Cap()),
		zap.Int("buckets", tbl.Buckets()),
	)
	return e, nil
}

// newDrawBuf allocates a draw buffer and returns its address as a key.
func (e *env) newDrawBuf(size uint32) (bufmap.Key, error) {
	ptr, err := e.alloc.Alloc(size, drawBufAlign)
	if err != nil {
		return 0, err
	}
	return bufmap.Key(ptr), nil
}

// Close tears the stack down top to bottom. Later calls do nothing.
func (e *env) Close(ctx context.Context) error {
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if err := e.table.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.pool.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.closeMemory(ctx); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

func (e *env) closeMemory(ctx context.Context) error {
	if e.wasm == nil {
		return nil
	}
	return e.wasm.Close(ctx)
}
