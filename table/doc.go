// Package table implements the fixed-capacity buffer map.
//
// A Table has a fixed array of buckets. Each bucket has one primary slot and
// an overflow chain for keys that collide with it:
//
//	bucket 0: [A] -> E -> F
//	bucket 1: [B]
//	bucket 2: [ ]
//	bucket 3: [C] -> G
//
// Chains are linked by index through a per-table node arena, so removing a
// node never invalidates the others and freed nodes are reused.
//
// # Operations
//
//	t, _ := table.New(4)
//	t.Insert(key, handle) // insert or replace, takes ownership
//	t.Find(key)           // lookup, full chain traversal
//	t.Remove(key)         // release, promote chain head into the slot
//	t.Close()             // release everything
//
// # Capacity
//
// Count is the number of occupied primary slots, and it is the only thing
// the capacity check looks at: an insert into an empty bucket fails with
// KindTableFull once Count equals Cap. Chained inserts are never rejected.
// With the default bucket count (equal to the capacity) no bucket is empty
// by the time Count reaches Cap, so the check never fires; WithBuckets
// spreads keys over more buckets than the capacity admits.
//
// # Hashing
//
// XXHash is the default. AddrText reproduces the address-text checksum of
// the older driver; addresses whose hex digits have equal sums share a bucket.
package table
