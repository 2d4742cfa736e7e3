package table

import "github.com/wippyai/bufmap"

type entry struct {
	key    bufmap.Key
	handle bufmap.Handle
}

func (e entry) empty() bool { return e.key == 0 }

// ref is a 1-based index into the node arena; 0 terminates a chain.
type ref int32

type node struct {
	ent  entry
	next ref
}

// arena stores overflow nodes for every bucket of a table. Chains link
// nodes by index, so unlinking never leaves a dangling pointer and freed
// nodes are recycled instead of reallocated.
type arena struct {
	nodes []node
	free  []ref
}

func (a *arena) at(r ref) *node {
	return &a.nodes[r-1]
}

func (a *arena) alloc(e entry) ref {
	if n := len(a.free); n > 0 {
		r := a.free[n-1]
		a.free = a.free[:n-1]
		*a.at(r) = node{ent: e}
		return r
	}
	a.nodes = append(a.nodes, node{ent: e})
	return ref(len(a.nodes))
}

func (a *arena) recycle(r ref) {
	*a.at(r) = node{}
	a.free = append(a.free, r)
}

func (a *arena) live() int {
	return len(a.nodes) - len(a.free)
}

// chainAppend adds e at the tail of bucket idx's chain and returns its depth.
func (t *Table) chainAppend(idx int, e entry) int {
	r := t.nodes.alloc(e)
	head := t.chains[idx]
	if head == 0 {
		t.chains[idx] = r
		return 1
	}
	depth := 2
	tail := head
	for t.nodes.at(tail).next != 0 {
		tail = t.nodes.at(tail).next
		depth++
	}
	t.nodes.at(tail).next = r
	return depth
}

// chainSearch walks the whole chain of bucket idx and returns the node
// holding key along with its predecessor (0 for the head).
func (t *Table) chainSearch(idx int, key bufmap.Key) (prev, cur ref) {
	for cur = t.chains[idx]; cur != 0; prev, cur = cur, t.nodes.at(cur).next {
		if t.nodes.at(cur).ent.key == key {
			return prev, cur
		}
	}
	return 0, 0
}

// chainUnlink splices cur out of bucket idx's chain, recycles the node and
// returns the entry it held. Ownership of the entry passes to the caller.
func (t *Table) chainUnlink(idx int, prev, cur ref) entry {
	n := t.nodes.at(cur)
	e, next := n.ent, n.next
	if prev == 0 {
		t.chains[idx] = next
	} else {
		t.nodes.at(prev).next = next
	}
	t.nodes.recycle(cur)
	return e
}

// chainPopHead detaches the head of bucket idx's chain.
func (t *Table) chainPopHead(idx int) entry {
	return t.chainUnlink(idx, 0, t.chains[idx])
}

// chainLen counts the nodes in bucket idx's chain.
func (t *Table) chainLen(idx int) int {
	n := 0
	for r := t.chains[idx]; r != 0; r = t.nodes.at(r).next {
		n++
	}
	return n
}
