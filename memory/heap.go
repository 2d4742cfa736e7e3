package memory

import (
	"github.com/wippyai/bufmap/errors"
)

// Heap is a fixed-size linear memory backed by a Go byte slice.
type Heap struct {
	buf []byte
}

// NewHeap creates a zeroed heap memory of size bytes.
func NewHeap(size uint32) *Heap {
	return &Heap{buf: make([]byte, size)}
}

// Read returns a view of length bytes at offset. The slice aliases the heap.
func (h *Heap) Read(offset uint32, length uint32) ([]byte, error) {
	end := uint64(offset) + uint64(length)
	if end > uint64(len(h.buf)) {
		return nil, errors.OutOfBounds(errors.PhaseMemory, offset, length, h.Size())
	}
	return h.buf[offset:end:end], nil
}

// Write copies data into the heap at offset.
func (h *Heap) Write(offset uint32, data []byte) error {
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(h.buf)) {
		return errors.OutOfBounds(errors.PhaseMemory, offset, uint32(len(data)), h.Size())
	}
	copy(h.buf[offset:end], data)
	return nil
}

// Size returns the heap size in bytes.
func (h *Heap) Size() uint32 {
	return uint32(len(h.buf))
}
