package resource

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/bufmap"
	"github.com/wippyai/bufmap/errors"
)

// Pool hands out GPU buffers backed by allocator memory.
// Implements bufmap.Provider.
type Pool struct {
	alloc    bufmap.Allocator
	entries  []entry
	freeList []int
	stats    Stats
	closed   bool
}

type entry struct {
	addr  uint32
	size  uint32
	gen   uint32
	valid bool
}

var _ bufmap.Provider = (*Pool)(nil)

// NewPool creates a pool that backs buffers with blocks from alloc.
func NewPool(alloc bufmap.Allocator) *Pool {
	return &Pool{
		alloc:    alloc,
		entries:  make([]entry, 0, 64),
		freeList: make([]int, 0, 16),
	}
}

// Alloc creates a zeroed buffer of size bytes and returns its handle.
func (p *Pool) Alloc(size uint32) (bufmap.Handle, error) {
	if p.closed {
		return 0, errors.Closed(errors.PhaseAlloc, "buffer pool")
	}

	slot := -1
	if n := len(p.freeList); n > 0 {
		slot = p.freeList[n-1]
	} else if len(p.entries) >= MaxBuffers {
		return 0, errors.New(errors.PhaseAlloc, errors.KindAllocation).
			Value(len(p.entries)).
			Detail("buffer pool exhausted (%d buffers)", MaxBuffers).
			Build()
	}

	addr, err := p.alloc.AllocZeroed(size, BufferAlign)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseAlloc, errors.KindAllocation, err, fmt.Sprintf("back %d-byte buffer", size))
	}

	if slot >= 0 {
		p.freeList = p.freeList[:len(p.freeList)-1]
		e := &p.entries[slot]
		e.addr, e.size, e.valid = addr, size, true
		e.gen = (e.gen + 1) & genMask
	} else {
		slot = len(p.entries)
		p.entries = append(p.entries, entry{addr: addr, size: size, valid: true})
	}

	p.stats.Allocated++
	p.stats.Live++
	p.stats.Bytes += uint64(size)

	h := makeHandle(slot, p.entries[slot].gen)
	Logger().Debug("buffer allocated",
		zap.Uint32("handle", uint32(h)),
		zap.Uint32("addr", addr),
		zap.Uint32("size", size),
	)
	return h, nil
}

// Buffer returns the buffer behind a live handle.
func (p *Pool) Buffer(h bufmap.Handle) (Buffer, bool) {
	e, ok := p.lookup(h)
	if !ok {
		return Buffer{}, false
	}
	return Buffer{Handle: h, Addr: e.addr, Size: e.size}, true
}

// Release frees the buffer and invalidates the handle.
func (p *Pool) Release(h bufmap.Handle) error {
	e, ok := p.lookup(h)
	if !ok {
		Logger().Warn("release of dead handle", zap.Uint32("handle", uint32(h)))
		return errors.DoubleFree(errors.PhaseRelease, "handle", uint32(h))
	}
	return p.release(h, e)
}

func (p *Pool) release(h bufmap.Handle, e *entry) error {
	slot, _ := splitHandle(h)
	err := p.alloc.Free(e.addr)

	p.stats.Released++
	p.stats.Live--
	p.stats.Bytes -= uint64(e.size)

	e.valid = false
	e.addr = 0
	e.size = 0
	p.freeList = append(p.freeList, slot)

	Logger().Debug("buffer released", zap.Uint32("handle", uint32(h)))
	if err != nil {
		return errors.Wrap(errors.PhaseRelease, errors.KindDoubleFree, err, "free buffer memory")
	}
	return nil
}

func (p *Pool) lookup(h bufmap.Handle) (*entry, bool) {
	if h == 0 {
		return nil, false
	}
	slot, gen := splitHandle(h)
	if slot < 0 || slot >= len(p.entries) {
		return nil, false
	}
	e := &p.entries[slot]
	if !e.valid || e.gen != gen {
		return nil, false
	}
	return e, true
}

// Live returns the number of outstanding buffers.
func (p *Pool) Live() int {
	return p.stats.Live
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return p.stats
}

// Each iterates over live buffers in slot order.
func (p *Pool) Each(fn func(Buffer) bool) {
	for i := range p.entries {
		e := &p.entries[i]
		if !e.valid {
			continue
		}
		if !fn(Buffer{Handle: makeHandle(i, e.gen), Addr: e.addr, Size: e.size}) {
			return
		}
	}
}

// Close releases every outstanding buffer. Further Alloc calls fail.
func (p *Pool) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	leaked := 0
	for i := range p.entries {
		e := &p.entries[i]
		if !e.valid {
			continue
		}
		leaked++
		if err := p.release(makeHandle(i, e.gen), e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if leaked > 0 {
		Logger().Info("released outstanding buffers on close", zap.Int("count", leaked))
	}

	p.entries = nil
	p.freeList = nil
	return firstErr
}
