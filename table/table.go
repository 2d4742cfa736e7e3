package table

import (
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/bufmap"
	"github.com/wippyai/bufmap/errors"
)

// Table is a fixed-capacity hash table from draw buffer keys to GPU buffer
// handles. Collisions overflow into per-bucket chains.
//
// count tracks primary-slot occupancy only and is what the capacity check
// compares against; chained entries are counted separately in length.
//
// Table is not safe for concurrent use.
type Table struct {
	slots     []entry
	chains    []ref
	nodes     arena
	hash      Hasher
	alloc     bufmap.Allocator
	provider  bufmap.Provider
	observers []Observer
	capacity  int
	count     int
	length    int
	stats     Stats
	closed    bool
}

// Stats reports table counters.
type Stats struct {
	Inserts      uint64
	Updates      uint64
	Removes      uint64
	Rejects      uint64
	Releases     uint64
	Chained      int
	LongestChain int
}

// New creates a table that holds at most capacity primary entries.
func New(capacity int, opts ...Option) (*Table, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if capacity <= 0 {
		return nil, errors.New(errors.PhaseCreate, errors.KindInvalidInput).
			Value(capacity).
			Detail("capacity must be positive, got %d", capacity).
			Build()
	}
	if o.buckets == 0 {
		o.buckets = capacity
	}
	if o.buckets < capacity {
		return nil, errors.New(errors.PhaseCreate, errors.KindInvalidInput).
			Value(o.buckets).
			Detail("buckets (%d) must not be less than capacity (%d)", o.buckets, capacity).
			Build()
	}
	if o.hasher == nil {
		o.hasher = XXHash
	}

	return &Table{
		slots:     make([]entry, o.buckets),
		chains:    make([]ref, o.buckets),
		hash:      o.hasher,
		alloc:     o.alloc,
		provider:  o.provider,
		observers: o.observers,
		capacity:  capacity,
	}, nil
}

func (t *Table) index(key bufmap.Key) int {
	return int(t.hash(key) % uint64(len(t.slots)))
}

// Insert stores handle under key, taking ownership of both.
//
// If key is already present its handle is replaced and the previous handle
// is released. If key lands in an empty bucket while the table already holds
// capacity primary entries, the key allocation and handle are released and a
// KindTableFull error is returned. Ownership is consumed on every error path.
// A failure to release a replaced handle is returned as well, but the new
// handle is stored regardless.
func (t *Table) Insert(key bufmap.Key, handle bufmap.Handle) error {
	if t.closed {
		t.discard(key, handle)
		return errors.Closed(errors.PhaseInsert, "table")
	}
	if key == 0 || handle == 0 {
		t.discard(key, handle)
		return errors.New(errors.PhaseInsert, errors.KindInvalidInput).
			Detail("key %#x, handle %#x: neither may be zero", uint32(key), uint32(handle)).
			Build()
	}

	idx := t.index(key)
	slot := &t.slots[idx]

	switch {
	case slot.empty():
		if t.count == t.capacity {
			t.stats.Rejects++
			Logger().Warn("insert rejected: table full",
				zap.Uint32("key", uint32(key)),
				zap.Int("index", idx),
				zap.Int("capacity", t.capacity),
			)
			t.notify(Event{Type: EventRejected, Key: key, Handle: handle, Index: idx})
			t.discard(key, handle)
			return errors.TableFull(t.capacity)
		}
		*slot = entry{key: key, handle: handle}
		t.count++
		t.length++
		t.stats.Inserts++
		t.notify(Event{Type: EventInserted, Key: key, Handle: handle, Index: idx})
		return nil

	case slot.key == key:
		return t.update(slot, handle, idx, 0)
	}

	if _, cur := t.chainSearch(idx, key); cur != 0 {
		return t.update(&t.nodes.at(cur).ent, handle, idx, t.depthOf(idx, cur))
	}

	depth := t.chainAppend(idx, entry{key: key, handle: handle})
	t.length++
	t.stats.Inserts++
	Logger().Debug("insert chained",
		zap.Uint32("key", uint32(key)),
		zap.Int("index", idx),
		zap.Int("depth", depth),
	)
	t.notify(Event{Type: EventInserted, Key: key, Handle: handle, Index: idx, Depth: depth})
	return nil
}

// update swaps the handle of an existing entry and releases the old one.
func (t *Table) update(e *entry, handle bufmap.Handle, idx, depth int) error {
	old := e.handle
	e.handle = handle
	t.stats.Updates++
	t.notify(Event{Type: EventUpdated, Key: e.key, Handle: handle, Index: idx, Depth: depth})

	if old == handle {
		return nil
	}
	t.stats.Releases++
	t.notify(Event{Type: EventReleased, Handle: old, Index: -1})
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Release(old); err != nil {
		Logger().Error("release replaced handle",
			zap.Uint32("key", uint32(e.key)),
			zap.Uint32("handle", uint32(old)),
			zap.Error(err),
		)
		return errors.Wrap(errors.PhaseInsert, releaseKind(err), err, fmt.Sprintf("release replaced handle %#x", uint32(old)))
	}
	return nil
}

func (t *Table) depthOf(idx int, target ref) int {
	depth := 1
	for r := t.chains[idx]; r != 0 && r != target; r = t.nodes.at(r).next {
		depth++
	}
	return depth
}

// Find returns the handle stored under key. The handle stays owned by the table.
func (t *Table) Find(key bufmap.Key) (bufmap.Handle, bool) {
	if t.closed || key == 0 {
		return 0, false
	}

	idx := t.index(key)
	slot := t.slots[idx]
	if slot.empty() {
		return 0, false
	}
	if slot.key == key {
		return slot.handle, true
	}
	if _, cur := t.chainSearch(idx, key); cur != 0 {
		return t.nodes.at(cur).ent.handle, true
	}
	return 0, false
}

// Remove deletes key and releases its allocation and handle. It reports
// whether key was present; removing an absent key is a no-op.
//
// When the primary entry of a bucket is removed, the head of the bucket's
// chain is moved into the primary slot.
func (t *Table) Remove(key bufmap.Key) bool {
	if t.closed || key == 0 {
		return false
	}

	idx := t.index(key)
	slot := &t.slots[idx]
	if slot.empty() {
		return false
	}

	var victim entry
	depth := 0
	if slot.key == key {
		victim = *slot
		if t.chains[idx] != 0 {
			*slot = t.chainPopHead(idx)
		} else {
			*slot = entry{}
			t.count--
		}
	} else {
		prev, cur := t.chainSearch(idx, key)
		if cur == 0 {
			return false
		}
		depth = t.depthOf(idx, cur)
		victim = t.chainUnlink(idx, prev, cur)
	}

	t.length--
	t.stats.Removes++
	t.notify(Event{Type: EventRemoved, Key: victim.key, Handle: victim.handle, Index: idx, Depth: depth})
	if err := t.release(victim); err != nil {
		Logger().Error("release removed entry",
			zap.Uint32("key", uint32(victim.key)),
			zap.Uint32("handle", uint32(victim.handle)),
			zap.Error(err),
		)
	}
	return true
}

// Close releases every entry and drops the bucket arrays. It is safe to call
// more than once; only the first call does anything. Release failures do not
// stop the teardown and are returned joined together.
func (t *Table) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	var errs []error
	released := 0
	for i := range t.slots {
		if t.slots[i].empty() {
			continue
		}
		if err := t.release(t.slots[i]); err != nil {
			errs = append(errs, err)
		}
		released++
		for r := t.chains[i]; r != 0; r = t.nodes.at(r).next {
			if err := t.release(t.nodes.at(r).ent); err != nil {
				errs = append(errs, err)
			}
			released++
		}
	}

	Logger().Info("table closed",
		zap.Int("released", released),
		zap.Int("errors", len(errs)),
	)

	t.slots = nil
	t.chains = nil
	t.nodes = arena{}
	t.count = 0
	t.length = 0

	if len(errs) > 0 {
		joined := stderrors.Join(errs...)
		return errors.Wrap(errors.PhaseClose, releaseKind(joined), joined, "release entries")
	}
	return nil
}

// release frees the key allocation and releases the handle of an entry
// that has already been detached from the table.
func (t *Table) release(e entry) error {
	var errs []error
	if t.alloc != nil {
		if err := t.alloc.Free(uint32(e.key)); err != nil {
			errs = append(errs, err)
		}
	}
	if t.provider != nil {
		if err := t.provider.Release(e.handle); err != nil {
			errs = append(errs, err)
		}
	}
	t.stats.Releases++
	t.notify(Event{Type: EventReleased, Key: e.key, Handle: e.handle, Index: -1})
	return stderrors.Join(errs...)
}

// releaseKind keeps the kind of a structured release failure; anything
// else is reported as KindRelease.
func releaseKind(err error) errors.Kind {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return errors.KindRelease
}

// discard releases ownership offered to a failed Insert.
func (t *Table) discard(key bufmap.Key, handle bufmap.Handle) {
	if key != 0 && t.alloc != nil {
		if err := t.alloc.Free(uint32(key)); err != nil {
			Logger().Warn("free rejected key", zap.Uint32("key", uint32(key)), zap.Error(err))
		}
	}
	if handle != 0 && t.provider != nil {
		if err := t.provider.Release(handle); err != nil {
			Logger().Warn("release rejected handle", zap.Uint32("handle", uint32(handle)), zap.Error(err))
		}
	}
}

// Count returns the number of occupied primary slots.
func (t *Table) Count() int {
	return t.count
}

// Len returns the total number of entries, chained ones included.
func (t *Table) Len() int {
	return t.length
}

// Cap returns the primary-slot capacity.
func (t *Table) Cap() int {
	return t.capacity
}

// Buckets returns the number of buckets.
func (t *Table) Buckets() int {
	return len(t.slots)
}

// Index returns the bucket key hashes to.
func (t *Table) Index(key bufmap.Key) int {
	if t.closed {
		return -1
	}
	return t.index(key)
}

// Each calls fn for every entry, bucket by bucket, primary slot first.
// Iteration stops when fn returns false. fn must not modify the table.
func (t *Table) Each(fn func(bufmap.Key, bufmap.Handle) bool) {
	for i := range t.slots {
		if t.slots[i].empty() {
			continue
		}
		if !fn(t.slots[i].key, t.slots[i].handle) {
			return
		}
		for r := t.chains[i]; r != 0; r = t.nodes.at(r).next {
			e := t.nodes.at(r).ent
			if !fn(e.key, e.handle) {
				return
			}
		}
	}
}

// Stats returns a snapshot of the table counters.
func (t *Table) Stats() Stats {
	s := t.stats
	s.Chained = t.nodes.live()
	for i := range t.chains {
		if t.chains[i] == 0 {
			continue
		}
		if n := t.chainLen(i); n > s.LongestChain {
			s.LongestChain = n
		}
	}
	return s
}
