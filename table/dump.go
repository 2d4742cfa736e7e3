package table

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/bufmap"
)

// Slot is one occupied position in a Dump.
type Slot struct {
	Index  int
	Depth  int // 0 = primary slot
	Key    bufmap.Key
	Handle bufmap.Handle
}

// Dump lists every entry with its bucket index and chain depth, in bucket order.
func (t *Table) Dump() []Slot {
	out := make([]Slot, 0, t.length)
	for i := range t.slots {
		if t.slots[i].empty() {
			continue
		}
		out = append(out, Slot{Index: i, Key: t.slots[i].key, Handle: t.slots[i].handle})
		depth := 1
		for r := t.chains[i]; r != 0; r = t.nodes.at(r).next {
			e := t.nodes.at(r).ent
			out = append(out, Slot{Index: i, Depth: depth, Key: e.key, Handle: e.handle})
			depth++
		}
	}
	return out
}

// LogDump writes the Dump to the package logger at info level.
func (t *Table) LogDump() {
	l := Logger()
	l.Info("hash table",
		zap.Int("count", t.count),
		zap.Int("len", t.length),
		zap.Int("capacity", t.capacity),
		zap.Int("buckets", len(t.slots)),
	)
	for _, s := range t.Dump() {
		l.Info("slot",
			zap.Int("index", s.Index),
			zap.Int("depth", s.Depth),
			zap.String("key", hexAddr(uint32(s.Key))),
			zap.String("handle", hexAddr(uint32(s.Handle))),
		)
	}
}

func hexAddr(v uint32) string {
	return fmt.Sprintf("0x%08x", v)
}
