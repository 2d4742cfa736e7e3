package table

import (
	"errors"
	"testing"

	"github.com/wippyai/bufmap"
	bferrors "github.com/wippyai/bufmap/errors"
	"github.com/wippyai/bufmap/memory"
	"github.com/wippyai/bufmap/resource"
)

// recorder counts frees and releases so tests can check exactly-once ownership.
type recorder struct {
	freed    map[uint32]int
	released map[bufmap.Handle]int
}

func newRecorder() *recorder {
	return &recorder{
		freed:    make(map[uint32]int),
		released: make(map[bufmap.Handle]int),
	}
}

func (r *recorder) Alloc(size, align uint32) (uint32, error)       { return 0, nil }
func (r *recorder) AllocZeroed(size, align uint32) (uint32, error) { return 0, nil }

func (r *recorder) Free(ptr uint32) error {
	r.freed[ptr]++
	return nil
}

func (r *recorder) Release(h bufmap.Handle) error {
	r.released[h]++
	return nil
}

func (r *recorder) totalReleased() int {
	n := 0
	for _, c := range r.released {
		n += c
	}
	return n
}

// modHash puts key k into bucket k % buckets.
func modHash(k bufmap.Key) uint64 {
	return uint64(k)
}

func newModTable(t *testing.T, capacity, buckets int) (*Table, *recorder) {
	t.Helper()
	rec := newRecorder()
	tbl, err := New(capacity,
		WithBuckets(buckets),
		WithHasher(modHash),
		WithAllocator(rec),
		WithProvider(rec),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tbl, rec
}

func isKind(err error, phase bferrors.Phase, kind bferrors.Kind) bool {
	return errors.Is(err, &bferrors.Error{Phase: phase, Kind: kind})
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		opts     []Option
		wantErr  bool
	}{
		{name: "default", capacity: DefaultCapacity},
		{name: "zero capacity", capacity: 0, wantErr: true},
		{name: "negative capacity", capacity: -1, wantErr: true},
		{name: "more buckets", capacity: 4, opts: []Option{WithBuckets(16)}},
		{name: "fewer buckets", capacity: 4, opts: []Option{WithBuckets(2)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := New(tt.capacity, tt.opts...)
			if tt.wantErr {
				if !isKind(err, bferrors.PhaseCreate, bferrors.KindInvalidInput) {
					t.Fatalf("expected invalid input, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if tbl.Cap() != tt.capacity || tbl.Count() != 0 || tbl.Len() != 0 {
				t.Fatalf("fresh table: cap=%d count=%d len=%d", tbl.Cap(), tbl.Count(), tbl.Len())
			}
		})
	}
}

func TestTable_RoundTrip(t *testing.T) {
	tbl, _ := newModTable(t, 8, 8)

	if err := tbl.Insert(3, 100); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	h, ok := tbl.Find(3)
	if !ok || h != 100 {
		t.Fatalf("Find(3) = %d, %v; want 100, true", h, ok)
	}
	if _, ok := tbl.Find(4); ok {
		t.Fatal("Find of absent key succeeded")
	}
	if _, ok := tbl.Find(0); ok {
		t.Fatal("Find of null key succeeded")
	}
}

func TestTable_Scenario(t *testing.T) {
	tbl, rec := newModTable(t, 4, 4)

	// A=4, B=1, C=2, D=3 land in buckets 0..3.
	keys := []bufmap.Key{4, 1, 2, 3}
	handles := []bufmap.Handle{0xa, 0xb, 0xc, 0xd}
	for i, k := range keys {
		if err := tbl.Insert(k, handles[i]); err != nil {
			t.Fatalf("Insert(%d) failed: %v", k, err)
		}
	}
	for i, k := range keys {
		if h, ok := tbl.Find(k); !ok || h != handles[i] {
			t.Fatalf("Find(%d) = %d, %v; want %d", k, h, ok, handles[i])
		}
	}
	if tbl.Count() != 4 {
		t.Fatalf("Count() = %d, want 4", tbl.Count())
	}

	// E=8 collides with A in bucket 0.
	if err := tbl.Insert(8, 0xe); err != nil {
		t.Fatalf("chained Insert failed: %v", err)
	}
	if h, ok := tbl.Find(8); !ok || h != 0xe {
		t.Fatalf("Find(E) = %d, %v", h, ok)
	}
	if h, ok := tbl.Find(4); !ok || h != 0xa {
		t.Fatalf("Find(A) = %d, %v", h, ok)
	}
	if tbl.Count() != 4 {
		t.Fatalf("Count() = %d after chained insert, want 4", tbl.Count())
	}
	if tbl.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", tbl.Len())
	}

	// Removing A promotes E into slot 0.
	if !tbl.Remove(4) {
		t.Fatal("Remove(A) reported absent")
	}
	if _, ok := tbl.Find(4); ok {
		t.Fatal("A still findable after Remove")
	}
	if h, ok := tbl.Find(8); !ok || h != 0xe {
		t.Fatalf("Find(E) after promotion = %d, %v", h, ok)
	}
	if tbl.slots[0].key != 8 || tbl.chains[0] != 0 {
		t.Fatalf("E not promoted: slot=%+v chain=%d", tbl.slots[0], tbl.chains[0])
	}
	if tbl.Count() != 4 || tbl.Len() != 4 {
		t.Fatalf("Count()=%d Len()=%d, want 4, 4", tbl.Count(), tbl.Len())
	}
	if rec.freed[4] != 1 || rec.released[0xa] != 1 {
		t.Fatalf("A not released exactly once: freed=%d released=%d", rec.freed[4], rec.released[0xa])
	}
	if rec.freed[8] != 0 || rec.released[0xe] != 0 {
		t.Fatal("promoted entry was released")
	}
}

func TestTable_Collisions(t *testing.T) {
	tbl, rec := newModTable(t, 8, 8)

	// 5, 13, 21 all hash to bucket 5.
	keys := []bufmap.Key{5, 13, 21}
	for i, k := range keys {
		if err := tbl.Insert(k, bufmap.Handle(100+i)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", k, err)
		}
	}
	for i, k := range keys {
		if h, ok := tbl.Find(k); !ok || h != bufmap.Handle(100+i) {
			t.Fatalf("Find(%d) = %d, %v", k, h, ok)
		}
	}
	if tbl.Count() != 1 || tbl.Len() != 3 {
		t.Fatalf("Count()=%d Len()=%d, want 1, 3", tbl.Count(), tbl.Len())
	}

	// Middle entry: first chained node.
	if !tbl.Remove(13) {
		t.Fatal("Remove(13) reported absent")
	}
	if _, ok := tbl.Find(13); ok {
		t.Fatal("13 still findable")
	}
	for _, k := range []bufmap.Key{5, 21} {
		if _, ok := tbl.Find(k); !ok {
			t.Fatalf("Find(%d) failed after removing 13", k)
		}
	}
	if rec.freed[13] != 1 || rec.released[101] != 1 {
		t.Fatal("13 not released exactly once")
	}
	if rec.totalReleased() != 1 {
		t.Fatalf("removing one chained entry released %d handles", rec.totalReleased())
	}
}

func TestTable_ChainSplice(t *testing.T) {
	tbl, rec := newModTable(t, 4, 4)

	// Bucket 1: [1] -> 5 -> 9 -> 13
	for _, k := range []bufmap.Key{1, 5, 9, 13} {
		if err := tbl.Insert(k, bufmap.Handle(k)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", k, err)
		}
	}

	tests := []struct {
		name   string
		remove bufmap.Key
		want   []bufmap.Key
	}{
		{name: "mid chain", remove: 9, want: []bufmap.Key{1, 5, 13}},
		{name: "chain head", remove: 5, want: []bufmap.Key{1, 13}},
		{name: "chain tail", remove: 13, want: []bufmap.Key{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tbl.Remove(tt.remove) {
				t.Fatalf("Remove(%d) reported absent", tt.remove)
			}
			var got []bufmap.Key
			tbl.Each(func(k bufmap.Key, _ bufmap.Handle) bool {
				got = append(got, k)
				return true
			})
			if len(got) != len(tt.want) {
				t.Fatalf("entries = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("entries = %v, want %v", got, tt.want)
				}
			}
			if rec.released[bufmap.Handle(tt.remove)] != 1 {
				t.Fatalf("handle %d released %d times", tt.remove, rec.released[bufmap.Handle(tt.remove)])
			}
		})
	}

	if tbl.Stats().Chained != 0 {
		t.Fatalf("arena still holds %d nodes", tbl.Stats().Chained)
	}
}

func TestTable_CapacityBoundary(t *testing.T) {
	tbl, rec := newModTable(t, 3, 8)

	for _, k := range []bufmap.Key{1, 2, 3} {
		if err := tbl.Insert(k, bufmap.Handle(k)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", k, err)
		}
	}

	err := tbl.Insert(4, 4)
	if !isKind(err, bferrors.PhaseInsert, bferrors.KindTableFull) {
		t.Fatalf("expected table full, got %v", err)
	}
	if rec.freed[4] != 1 || rec.released[4] != 1 {
		t.Fatal("rejected entry's ownership was not consumed")
	}
	if _, ok := tbl.Find(4); ok {
		t.Fatal("rejected key is findable")
	}
	for _, k := range []bufmap.Key{1, 2, 3} {
		if h, ok := tbl.Find(k); !ok || h != bufmap.Handle(k) {
			t.Fatalf("existing entry %d corrupted: %d, %v", k, h, ok)
		}
	}
	if tbl.Count() != 3 || tbl.Len() != 3 {
		t.Fatalf("Count()=%d Len()=%d after reject", tbl.Count(), tbl.Len())
	}

	// A colliding key still chains into an occupied bucket.
	if err := tbl.Insert(9, 9); err != nil {
		t.Fatalf("chained insert into full table failed: %v", err)
	}

	// Updating an existing primary entry is not an insert.
	if err := tbl.Insert(2, 20); err != nil {
		t.Fatalf("update in full table failed: %v", err)
	}

	if tbl.Stats().Rejects != 1 {
		t.Fatalf("Rejects = %d, want 1", tbl.Stats().Rejects)
	}
}

func TestTable_Update(t *testing.T) {
	tbl, rec := newModTable(t, 4, 4)

	_ = tbl.Insert(1, 10)
	_ = tbl.Insert(5, 50) // chained behind 1

	t.Run("primary", func(t *testing.T) {
		if err := tbl.Insert(1, 11); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if h, _ := tbl.Find(1); h != 11 {
			t.Fatalf("Find(1) = %d, want 11", h)
		}
		if rec.released[10] != 1 {
			t.Fatal("replaced handle not released")
		}
		if rec.freed[1] != 0 {
			t.Fatal("key freed on update")
		}
	})

	t.Run("chained", func(t *testing.T) {
		if err := tbl.Insert(5, 51); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if h, _ := tbl.Find(5); h != 51 {
			t.Fatalf("Find(5) = %d, want 51", h)
		}
		if rec.released[50] != 1 {
			t.Fatal("replaced chained handle not released")
		}
	})

	t.Run("same handle", func(t *testing.T) {
		if err := tbl.Insert(1, 11); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if rec.released[11] != 0 {
			t.Fatal("re-inserting the stored handle released it")
		}
	})

	t.Run("release fails", func(t *testing.T) {
		tests := []struct {
			name     string
			provider bufmap.Provider
			kind     bferrors.Kind
		}{
			{"plain cause", failingProvider{}, bferrors.KindRelease},
			{"structured cause", staleProvider{}, bferrors.KindDoubleFree},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				ft, err := New(4, WithHasher(modHash), WithProvider(tt.provider))
				if err != nil {
					t.Fatalf("New failed: %v", err)
				}
				_ = ft.Insert(1, 10)

				err = ft.Insert(1, 11)
				if !isKind(err, bferrors.PhaseInsert, tt.kind) {
					t.Fatalf("expected insert/%v error, got %v", tt.kind, err)
				}
				if h, ok := ft.Find(1); !ok || h != 11 {
					t.Fatalf("Find(1) = %d, %v; want 11, true", h, ok)
				}
				if ft.Len() != 1 {
					t.Fatalf("Len() = %d, want 1", ft.Len())
				}
			})
		}
	})

	if tbl.Len() != 2 || tbl.Count() != 1 {
		t.Fatalf("Len()=%d Count()=%d, want 2, 1", tbl.Len(), tbl.Count())
	}
	if s := tbl.Stats(); s.Updates != 3 || s.Inserts != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestTable_IdempotentRemove(t *testing.T) {
	tbl, rec := newModTable(t, 4, 4)
	_ = tbl.Insert(2, 20)

	if !tbl.Remove(2) {
		t.Fatal("first Remove reported absent")
	}
	if tbl.Remove(2) {
		t.Fatal("second Remove reported present")
	}
	if rec.freed[2] != 1 || rec.released[20] != 1 {
		t.Fatal("entry not released exactly once")
	}
	if tbl.Count() != 0 || tbl.Len() != 0 {
		t.Fatalf("Count()=%d Len()=%d, want 0", tbl.Count(), tbl.Len())
	}

	// Absent key in an occupied bucket.
	_ = tbl.Insert(3, 30)
	if tbl.Remove(7) {
		t.Fatal("Remove of absent colliding key reported present")
	}
	if tbl.Remove(0) {
		t.Fatal("Remove of null key reported present")
	}
}

func TestTable_InvalidInput(t *testing.T) {
	tbl, rec := newModTable(t, 4, 4)

	err := tbl.Insert(0, 7)
	if !isKind(err, bferrors.PhaseInsert, bferrors.KindInvalidInput) {
		t.Fatalf("expected invalid input for null key, got %v", err)
	}
	if rec.released[7] != 1 || rec.freed[0] != 0 {
		t.Fatal("null key insert: handle not consumed or null freed")
	}

	err = tbl.Insert(6, 0)
	if !isKind(err, bferrors.PhaseInsert, bferrors.KindInvalidInput) {
		t.Fatalf("expected invalid input for zero handle, got %v", err)
	}
	if rec.freed[6] != 1 || rec.released[0] != 0 {
		t.Fatal("zero handle insert: key not consumed or zero handle released")
	}
	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d after rejected inserts", tbl.Len())
	}
}

func TestTable_Close(t *testing.T) {
	tbl, rec := newModTable(t, 4, 4)

	// Two primaries, two chained.
	for _, k := range []bufmap.Key{1, 2, 5, 9} {
		_ = tbl.Insert(k, bufmap.Handle(k))
	}
	tbl.Remove(5)

	if err := tbl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	for _, k := range []bufmap.Key{1, 2, 5, 9} {
		if rec.freed[uint32(k)] != 1 || rec.released[bufmap.Handle(k)] != 1 {
			t.Fatalf("key %d: freed=%d released=%d, want 1, 1", k, rec.freed[uint32(k)], rec.released[bufmap.Handle(k)])
		}
	}

	if _, ok := tbl.Find(1); ok {
		t.Fatal("Find succeeded after Close")
	}
	if tbl.Remove(1) {
		t.Fatal("Remove succeeded after Close")
	}

	err := tbl.Insert(3, 3)
	if !isKind(err, bferrors.PhaseInsert, bferrors.KindClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if rec.freed[3] != 1 || rec.released[3] != 1 {
		t.Fatal("insert after Close did not consume ownership")
	}

	if err := tbl.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if rec.totalReleased() != 5 {
		t.Fatalf("total releases = %d, want 5", rec.totalReleased())
	}
}

type failingProvider struct{}

func (failingProvider) Release(bufmap.Handle) error {
	return errors.New("device lost")
}

// staleProvider reports every handle as already released.
type staleProvider struct{}

func (staleProvider) Release(h bufmap.Handle) error {
	return bferrors.DoubleFree(bferrors.PhaseRelease, "handle", uint32(h))
}

func TestTable_CloseReportsReleaseErrors(t *testing.T) {
	tbl, err := New(4, WithHasher(modHash), WithProvider(failingProvider{}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_ = tbl.Insert(1, 1)
	_ = tbl.Insert(5, 5)

	err = tbl.Close()
	if !isKind(err, bferrors.PhaseClose, bferrors.KindRelease) {
		t.Fatalf("expected close/release error, got %v", err)
	}
	if tbl.Stats().Releases != 2 {
		t.Fatalf("teardown stopped early: %d releases", tbl.Stats().Releases)
	}

	stale, err := New(4, WithHasher(modHash), WithProvider(staleProvider{}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_ = stale.Insert(2, 2)
	if err := stale.Close(); !isKind(err, bferrors.PhaseClose, bferrors.KindDoubleFree) {
		t.Fatalf("expected close/double_free error, got %v", err)
	}
}

// TestTable_NoLeak runs the table against the real allocator and buffer pool
// and checks that every key block and buffer is returned by the end.
func TestTable_NoLeak(t *testing.T) {
	alloc := memory.NewFreeList(memory.NewHeap(1 << 20))
	pool := resource.NewPool(alloc)

	tbl, err := New(DefaultCapacity, WithAllocator(alloc), WithProvider(pool))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var keys []bufmap.Key
	rejected := 0
	for i := 0; i < 80; i++ {
		ptr, err := alloc.Alloc(64, 0)
		if err != nil {
			t.Fatalf("Alloc failed: %v", err)
		}
		h, err := pool.Alloc(128)
		if err != nil {
			t.Fatalf("pool Alloc failed: %v", err)
		}
		key := bufmap.Key(ptr)
		if err := tbl.Insert(key, h); err != nil {
			if !isKind(err, bferrors.PhaseInsert, bferrors.KindTableFull) {
				t.Fatalf("Insert failed: %v", err)
			}
			rejected++
			continue
		}
		keys = append(keys, key)
	}

	for i := 0; i < len(keys); i += 3 {
		if !tbl.Remove(keys[i]) {
			t.Fatalf("Remove(%#x) reported absent", keys[i])
		}
	}
	for i, k := range keys {
		_, ok := tbl.Find(k)
		if want := i%3 != 0; ok != want {
			t.Fatalf("Find(%#x) = %v, want %v", k, ok, want)
		}
	}

	if err := tbl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if alloc.Live() != 0 {
		t.Fatalf("%d blocks leaked", alloc.Live())
	}
	s := pool.Stats()
	if s.Live != 0 || s.Released != s.Allocated || s.Allocated != 80 {
		t.Fatalf("pool stats %+v", s)
	}
	if int(tbl.Stats().Rejects) != rejected {
		t.Fatalf("Rejects = %d, want %d", tbl.Stats().Rejects, rejected)
	}
}
