package resource

import "github.com/wippyai/bufmap"

// BufferAlign is the alignment of every buffer's backing block.
const BufferAlign = 64

const (
	slotBits = 20
	slotMask = 1<<slotBits - 1
	genMask  = 1<<(32-slotBits) - 1

	// MaxBuffers is the number of buffers that can be live at once.
	MaxBuffers = slotMask - 1
)

// Buffer describes a live GPU buffer.
type Buffer struct {
	Handle bufmap.Handle
	Addr   uint32 // backing block in allocator memory
	Size   uint32
}

// Stats reports pool counters.
type Stats struct {
	Allocated uint64
	Released  uint64
	Live      int
	Bytes     uint64 // bytes held by live buffers
}

// makeHandle packs a slot index and generation. Index 0 maps to handle low
// bits 1 so that the zero handle is never produced.
func makeHandle(slot int, gen uint32) bufmap.Handle {
	return bufmap.Handle(gen&genMask)<<slotBits | bufmap.Handle(slot+1)
}

func splitHandle(h bufmap.Handle) (slot int, gen uint32) {
	return int(h&slotMask) - 1, uint32(h>>slotBits) & genMask
}
