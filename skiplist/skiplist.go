// Package skiplist is a lock-free ordered set, adapted from a
// reference skiplist that tracked node lifetime with its own
// ad-hoc barrier-session scheme. Here a hazptr.Domain plays that
// role: a deleted node's cleanup runs only once no in-flight
// traversal still holds a hazptr.Holder guard on it.
package skiplist

import (
	"math/rand"
	"sync/atomic"
	"unsafe"

	"github.com/go-hazptr/hazptr"
)

// MaxLevel bounds how tall the skiplist's tower can grow.
const MaxLevel = 32

const p = 0.25

// Item is an ordered element a Skiplist can store.
type Item interface {
	Compare(Item) int
}

// Node is one element of the skiplist. Its reclamation (running
// item's Close, if it implements one) is deferred to a domain scan,
// not to Go's collector — the collector already keeps the memory
// itself alive as long as any traversal still references it.
type Node struct {
	item    Item
	level   uint16
	next    []*hazptr.BareAtomic
	retired int32 // atomic, CAS-guarded so Delete only ever retires once
}

// edge is the boxed (successor, logically-deleted) pair each next[]
// cell holds, the same indirection a reference skiplist uses so a
// single CAS can flip both fields together.
type edge struct {
	node    *Node
	deleted bool
}

func newNode(item Item, level int) *Node {
	n := &Node{item: item, level: uint16(level), next: make([]*hazptr.BareAtomic, level+1)}
	for i := range n.next {
		n.next[i] = hazptr.NewBareAtomic(nil)
	}
	return n
}

func (n *Node) setNext(level int, next *Node, deleted bool) {
	n.next[level].Swap(unsafe.Pointer(&edge{node: next, deleted: deleted}), hazptr.OrderSeqCst)
}

func (n *Node) getNext(level int) (*Node, bool) {
	p := n.next[level].Load()
	if p == nil {
		return nil, false
	}
	e := (*edge)(p)
	return e.node, e.deleted
}

func (n *Node) dcasNext(level int, prevNode, newNode *Node, prevDeleted, newDeleted bool) bool {
	cell := n.next[level]
	cur := cell.Load()
	if cur == nil {
		return false
	}
	e := (*edge)(cur)
	if e.node != prevNode || e.deleted != prevDeleted {
		return false
	}
	return cell.CompareAndSwap(cur, unsafe.Pointer(&edge{node: newNode, deleted: newDeleted}))
}

type nilItem struct{ cmp int }

func (n *nilItem) Compare(Item) int { return n.cmp }

// Skiplist is a lock-free set of Item ordered by Compare.
type Skiplist struct {
	head  *Node
	tail  *Node
	level int32
	smr   *hazptr.Domain
}

// New returns an empty Skiplist with its own reclamation domain.
func New() *Skiplist {
	head := newNode(&nilItem{cmp: -1}, MaxLevel)
	tail := newNode(&nilItem{cmp: 1}, MaxLevel)

	for i := 0; i <= MaxLevel; i++ {
		head.setNext(i, tail, false)
	}

	return &Skiplist{head: head, tail: tail, smr: hazptr.New(nil)}
}

func (s *Skiplist) randomLevel(randFn func() float32) int {
	var nextLevel int
	for ; randFn() < p; nextLevel++ {
	}
	if nextLevel > MaxLevel {
		nextLevel = MaxLevel
	}

	level := int(atomic.LoadInt32(&s.level))
	if nextLevel > level {
		atomic.CompareAndSwapInt32(&s.level, int32(level), int32(level+1))
		nextLevel = level + 1
	}
	return nextLevel
}

func (s *Skiplist) helpDelete(level int, prev, curr, next *Node) bool {
	return prev.dcasNext(level, curr, next, false, false)
}

// findPath locates itm's predecessors and successors at every level.
// It walks hand-over-hand: hPrev always guards prev and hCurr always
// guards curr, and a node is guarded the instant it's read off its
// predecessor's edge, before any field of it (item, next) is touched.
// Reusing a single holder across both roles would silently drop the
// guard on whichever node it isn't currently pointed at — a Holder
// protects exactly one address at a time — so callers must hand in
// two distinct holders.
func (s *Skiplist) findPath(hPrev, hCurr *hazptr.Holder, itm Item) (preds, succs []*Node, found bool) {
	var cmpVal = 1

	preds = make([]*Node, MaxLevel+1)
	succs = make([]*Node, MaxLevel+1)

retry:
	prev := s.head
	hPrev.Guard(unsafe.Pointer(prev))
	level := int(atomic.LoadInt32(&s.level))
	for i := level; i >= 0; i-- {
		curr, _ := prev.getNext(i)
		hCurr.Guard(unsafe.Pointer(curr))
	levelSearch:
		for {
			next, deleted := curr.getNext(i)
			for deleted {
				if !s.helpDelete(i, prev, curr, next) {
					goto retry
				}
				if i == 0 {
					// Level 0 is the level findPath treats as ground
					// truth for membership; once a node is unlinked
					// there it is no longer reachable by any future
					// traversal, so it's safe to hand to the domain.
					s.retireNode(curr)
				}
				curr, _ = prev.getNext(i)
				hCurr.Guard(unsafe.Pointer(curr))
				next, deleted = curr.getNext(i)
			}

			cmpVal = curr.item.Compare(itm)
			if cmpVal < 0 {
				prev = curr
				hPrev, hCurr = hCurr, hPrev // curr, already guarded, becomes the new prev
				curr, _ = prev.getNext(i)
				hCurr.Guard(unsafe.Pointer(curr))
			} else {
				break levelSearch
			}
		}

		preds[i] = prev
		succs[i] = curr
	}

	found = cmpVal == 0
	return
}

// Insert adds itm to the set. Insert does not reject duplicates; a
// caller that needs set semantics should check Contains first.
func (s *Skiplist) Insert(itm Item) {
	s.Insert2(itm, rand.Float32)
}

// Insert2 is Insert with an injectable level generator, for tests that
// need deterministic tower heights.
func (s *Skiplist) Insert2(itm Item, randFn func() float32) {
	hPrev := hazptr.ForDomain(s.smr)
	hCurr := hazptr.ForDomain(s.smr)
	defer hPrev.Close()
	defer hCurr.Close()

	itemLevel := s.randomLevel(randFn)
	x := newNode(itm, itemLevel)
retry:
	preds, succs, _ := s.findPath(hPrev, hCurr, itm)

	x.setNext(0, succs[0], false)
	if !preds[0].dcasNext(0, succs[0], x, false, false) {
		goto retry
	}

	for i := 1; i <= itemLevel; i++ {
	fixThisLevel:
		for {
			x.setNext(i, succs[i], false)
			if preds[i].dcasNext(i, succs[i], x, false, false) {
				break fixThisLevel
			}
			preds, succs, _ = s.findPath(hPrev, hCurr, itm)
		}
	}
}

// Delete removes itm from the set, reporting whether it was present.
func (s *Skiplist) Delete(itm Item) bool {
	hPrev := hazptr.ForDomain(s.smr)
	hCurr := hazptr.ForDomain(s.smr)
	defer hPrev.Close()
	defer hCurr.Close()

	var deleteMarked bool
	_, succs, found := s.findPath(hPrev, hCurr, itm)
	if !found {
		return false
	}

	delNode := succs[0]
	for i := int(delNode.level); i >= 0; i-- {
		next, deleted := delNode.getNext(i)
		for !deleted {
			deleteMarked = delNode.dcasNext(i, next, next, false, true)
			next, deleted = delNode.getNext(i)
		}
	}

	if deleteMarked {
		s.findPath(hPrev, hCurr, itm)
	}
	return true
}

// Contains reports whether itm is present in the set.
func (s *Skiplist) Contains(itm Item) bool {
	hPrev := hazptr.ForDomain(s.smr)
	hCurr := hazptr.ForDomain(s.smr)
	defer hPrev.Close()
	defer hCurr.Close()

	_, succs, found := s.findPath(hPrev, hCurr, itm)
	return found && !isDeletedMarker(succs[0])
}

func isDeletedMarker(n *Node) bool {
	_, deleted := n.getNext(0)
	return deleted
}

// retireNode hands a physically unlinked node to the domain, exactly
// once. The node's own Close (if its item implements hazptr.Closer)
// only runs once no traversal's Holder still guards its address.
func (s *Skiplist) retireNode(n *Node) {
	if n == s.head || n == s.tail {
		return
	}
	if !atomic.CompareAndSwapInt32(&n.retired, 0, 1) {
		return
	}
	s.smr.Retire(unsafe.Pointer(n), func(obj unsafe.Pointer) {
		node := (*Node)(obj)
		if c, ok := node.item.(hazptr.Closer); ok {
			_ = c.Close()
		}
	})
}
