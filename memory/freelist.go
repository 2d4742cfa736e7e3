package memory

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/wippyai/bufmap"
	"github.com/wippyai/bufmap/errors"
)

const (
	// DefaultAlign is used when Alloc is called with align 0.
	DefaultAlign = 8

	// reserved keeps the low addresses out of circulation so that 0 stays null.
	reserved = 8

	// granule is the rounding unit for block ends, which keeps free spans aligned.
	granule = 8
)

type span struct {
	off  uint32
	size uint32
}

func (s span) end() uint64 { return uint64(s.off) + uint64(s.size) }

type block struct {
	start uint32 // first byte owned, including alignment padding
	end   uint32
	size  uint32 // requested size
}

// FreeList is a first-fit allocator over a bufmap.Memory.
//
// Free spans are kept sorted by offset and coalesced on Free, so the list
// never holds two adjacent spans. Block bookkeeping lives on the Go side;
// the managed memory holds only user data.
type FreeList struct {
	mem   bufmap.Memory
	free  []span
	live  map[uint32]block
	inUse uint64
}

var _ bufmap.Allocator = (*FreeList)(nil)

// NewFreeList creates an allocator managing all of mem above the reserved null page.
func NewFreeList(mem bufmap.Memory) *FreeList {
	f := &FreeList{
		mem:  mem,
		live: make(map[uint32]block),
	}
	if size := mem.Size(); size > reserved {
		f.free = append(f.free, span{off: reserved, size: size - reserved})
	}
	return f
}

// Alloc returns the address of a new block of at least size bytes.
func (f *FreeList) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = DefaultAlign
	}
	if align&(align-1) != 0 {
		return 0, errors.New(errors.PhaseAlloc, errors.KindInvalidInput).
			Value(align).
			Detail("alignment %d is not a power of two", align).
			Build()
	}
	if size == 0 {
		size = 1
	}

	for i, s := range f.free {
		ptr := alignUp(uint64(s.off), uint64(align))
		end := ptr + uint64(size)
		if end > s.end() {
			continue
		}
		blockEnd := min(alignUp(end, granule), s.end())

		f.carve(i, uint32(blockEnd))
		f.live[uint32(ptr)] = block{start: s.off, end: uint32(blockEnd), size: size}
		f.inUse += blockEnd - uint64(s.off)
		return uint32(ptr), nil
	}

	Logger().Warn("allocation failed",
		zap.Uint32("size", size),
		zap.Uint32("align", align),
		zap.Uint64("in_use", f.inUse),
		zap.Int("free_spans", len(f.free)),
	)
	return 0, errors.AllocationFailed(size, align)
}

// AllocZeroed is Alloc followed by clearing the block.
func (f *FreeList) AllocZeroed(size, align uint32) (uint32, error) {
	ptr, err := f.Alloc(size, align)
	if err != nil {
		return 0, err
	}
	b := f.live[ptr]
	if err := f.mem.Write(ptr, make([]byte, b.size)); err != nil {
		_ = f.Free(ptr)
		return 0, errors.Wrap(errors.PhaseAlloc, errors.KindAllocation, err, "zero block")
	}
	return ptr, nil
}

// Free returns the block at ptr to the free list.
func (f *FreeList) Free(ptr uint32) error {
	b, ok := f.live[ptr]
	if !ok {
		return errors.DoubleFree(errors.PhaseRelease, "block", ptr)
	}
	delete(f.live, ptr)
	f.inUse -= uint64(b.end - b.start)
	f.insert(span{off: b.start, size: b.end - b.start})
	return nil
}

// Size reports the requested size of the live block at ptr.
func (f *FreeList) Size(ptr uint32) (uint32, bool) {
	b, ok := f.live[ptr]
	return b.size, ok
}

// Live returns the number of outstanding blocks.
func (f *FreeList) Live() int {
	return len(f.live)
}

// InUse returns the number of bytes held by live blocks, padding included.
func (f *FreeList) InUse() uint64 {
	return f.inUse
}

// Available returns the total number of free bytes, fragmented or not.
func (f *FreeList) Available() uint64 {
	var n uint64
	for _, s := range f.free {
		n += uint64(s.size)
	}
	return n
}

func (f *FreeList) String() string {
	return fmt.Sprintf("freelist{live=%d in_use=%d spans=%d}", len(f.live), f.inUse, len(f.free))
}

// carve removes the head of free span i up to end, keeping any tail.
func (f *FreeList) carve(i int, end uint32) {
	s := f.free[i]
	if uint64(end) < s.end() {
		f.free[i] = span{off: end, size: uint32(s.end() - uint64(end))}
		return
	}
	f.free = slices.Delete(f.free, i, i+1)
}

// insert adds s to the sorted free list and merges it with its neighbours.
func (f *FreeList) insert(s span) {
	i, _ := slices.BinarySearchFunc(f.free, s.off, func(e span, off uint32) int {
		switch {
		case e.off < off:
			return -1
		case e.off > off:
			return 1
		}
		return 0
	})
	f.free = slices.Insert(f.free, i, s)

	if i+1 < len(f.free) && f.free[i].end() == uint64(f.free[i+1].off) {
		f.free[i].size += f.free[i+1].size
		f.free = slices.Delete(f.free, i+1, i+2)
	}
	if i > 0 && f.free[i-1].end() == uint64(f.free[i].off) {
		f.free[i-1].size += f.free[i].size
		f.free = slices.Delete(f.free, i, i+1)
	}
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
