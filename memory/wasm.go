package memory

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/bufmap"
	"github.com/wippyai/bufmap/errors"
)

// PageSize is the WebAssembly linear memory page size.
const PageSize = 65536

// MaxPages is the largest memory whose size still fits in a uint32.
const MaxPages = 65535

// WrapMemory wraps a wazero api.Memory to implement bufmap.Memory.
func WrapMemory(mem api.Memory) bufmap.Memory {
	if mem == nil {
		return nil
	}
	return &Wrapper{Mem: mem}
}

// Wrapper adapts wazero api.Memory to the bufmap.Memory interface.
type Wrapper struct {
	Mem api.Memory
}

// Read reads bytes from memory. The slice is a view of guest memory.
func (m *Wrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMemory, offset, length, m.Mem.Size())
	}
	return data, nil
}

// Write writes bytes to memory.
func (m *Wrapper) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseMemory, offset, uint32(len(data)), m.Mem.Size())
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *Wrapper) Size() uint32 {
	return m.Mem.Size()
}

// Wasm is a linear memory owned by a private wazero runtime.
type Wasm struct {
	Wrapper
	rt  wazero.Runtime
	mod api.Module
}

// NewWasm instantiates a module that exports one memory of the given page count.
func NewWasm(ctx context.Context, pages uint32) (*Wasm, error) {
	if pages == 0 || pages > MaxPages {
		return nil, errors.InvalidInput(errors.PhaseMemory, fmt.Sprintf("page count %d out of range [1, %d]", pages, MaxPages))
	}

	rt := wazero.NewRuntime(ctx)
	mod, err := rt.Instantiate(ctx, memoryModule(pages))
	if err != nil {
		rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseMemory, errors.KindInvalidData, err, "instantiate memory module")
	}

	mem := mod.ExportedMemory("memory")
	if mem == nil {
		rt.Close(ctx)
		return nil, errors.NotFound(errors.PhaseMemory, "export", "memory")
	}

	Logger().Debug("wasm memory ready", zap.Uint32("pages", pages), zap.Uint32("bytes", mem.Size()))

	return &Wasm{
		Wrapper: Wrapper{Mem: mem},
		rt:      rt,
		mod:     mod,
	}, nil
}

// Close tears down the runtime. The memory must not be used afterwards.
func (w *Wasm) Close(ctx context.Context) error {
	return w.rt.Close(ctx)
}

// PagesFor returns the number of pages needed to hold size bytes.
func PagesFor(size uint32) uint32 {
	pages := (uint64(size) + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	return uint32(pages)
}

// memoryModule encodes a module whose only content is an exported memory
// with a minimum of pages and no maximum.
func memoryModule(pages uint32) []byte {
	var limits bytes.Buffer
	limits.WriteByte(0x01) // one memory
	limits.WriteByte(0x00) // min only
	writeLEB128u(&limits, pages)

	var exports bytes.Buffer
	exports.WriteByte(0x01) // one export
	writeLEB128u(&exports, uint32(len("memory")))
	exports.WriteString("memory")
	exports.WriteByte(0x02) // kind: memory
	exports.WriteByte(0x00) // index

	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d}) // magic
	b.Write([]byte{0x01, 0x00, 0x00, 0x00}) // version
	writeSection(&b, 0x05, limits.Bytes())
	writeSection(&b, 0x07, exports.Bytes())
	return b.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, body []byte) {
	w.WriteByte(id)
	writeLEB128u(w, uint32(len(body)))
	w.Write(body)
}

func writeLEB128u(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			return
		}
	}
}
