package table

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/wippyai/bufmap"
)

// Hasher maps a key to a 64-bit hash. It must be pure: the table re-derives
// bucket indices on every lookup and removal instead of storing them.
type Hasher func(bufmap.Key) uint64

// hashSeed is mixed into every XXHash input.
const hashSeed uint64 = 0x9e3779b97f4a7c15

// XXHash hashes the key's little-endian bit pattern with xxhash64 under a fixed seed.
func XXHash(k bufmap.Key) uint64 {
	var b [12]byte
	binary.LittleEndian.PutUint64(b[:8], hashSeed)
	binary.LittleEndian.PutUint32(b[8:], uint32(k))
	return xxhash.Sum64(b[:])
}

// AddrText sums the characters of the key's fixed-width hex address text.
// Keys that differ only in their low bits cluster badly; it exists to
// reproduce bucket layouts of the older driver.
func AddrText(k bufmap.Key) uint64 {
	var buf [10]byte
	text := fmt.Appendf(buf[:0], "0x%08x", uint32(k))
	var sum uint64
	for _, c := range text {
		sum += uint64(c)
	}
	return sum
}

// HasherByName resolves a configured hash name.
func HasherByName(name string) (Hasher, bool) {
	switch name {
	case "", "xxhash":
		return XXHash, true
	case "addrtext":
		return AddrText, true
	}
	return nil, false
}
