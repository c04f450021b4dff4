package hazptr

import (
	"sync/atomic"
	"unsafe"
)

// Debug gates the domain-identity assertions in Protect/TryProtect and
// OwnedRef's cross-domain checks: a plain package variable checked
// with an if, not a build tag. Tests that exercise the "release
// build" behavior set this to false and restore it afterward.
var Debug = true

// minScanThreshold is the floor of the threshold policy: a scan runs
// once pending retires reach max(minScanThreshold, 2*slotCount).
const minScanThreshold = 1000

// DomainID identifies a Domain. Two DomainIDs compare equal only if
// they come from the same Domain; the global domain's ID is the zero
// value, and every Domain created with New is guaranteed distinct
// from it and from each other.
type DomainID struct {
	seq uint64
}

var domainSeq uint64

// Domain is the coordinator (C4): it owns the slot list readers rent
// from and the retire list writers feed, and periodically scans one
// against the other to reclaim objects no reader can still see.
type Domain struct {
	id        DomainID
	slots     *slotList
	retired   retireList
	threshold int64
}

var global = newDomain(DomainID{})

// Global returns the process-wide domain. It is never torn down
// during the process's life, which sidesteps the teardown race for
// its users entirely.
func Global() *Domain {
	return global
}

// New constructs a domain whose identity is distinct from every prior
// domain (including Global). family is never read: identity comes
// from a process-wide counter, so domains are told apart at runtime
// only, and every domain has the same static type *Domain whatever
// family is passed. A plain New(nil) is just as valid.
func New(family any) *Domain {
	seq := atomic.AddUint64(&domainSeq, 1)
	return newDomain(DomainID{seq: seq})
}

func newDomain(id DomainID) *Domain {
	return &Domain{
		id:        id,
		slots:     newSlotList(),
		threshold: minScanThreshold,
	}
}

// ID returns the domain's identity.
func (d *Domain) ID() DomainID {
	return d.id
}

// acquireSlot hands out a slot marked active, reusing a free one when
// possible and otherwise growing the slot list.
func (d *Domain) acquireSlot() *HazardSlot {
	return d.slots.acquire()
}

// releaseSlot returns a slot to the free pool. The caller must have
// already cleared its protected field (Holder.Reset does this).
func (d *Domain) releaseSlot(slot *HazardSlot) {
	d.slots.release(slot)
}

// Retire appends a retire record for obj, to be freed by deleter once
// no hazard slot protects it. If the pending count crosses the
// threshold, a scan runs inline on the calling goroutine.
func (d *Domain) Retire(obj unsafe.Pointer, deleter Deleter) {
	pending := d.retired.push(obj, deleter)

	want := int64(minScanThreshold)
	if slots := 2 * d.slots.count(); slots > want {
		want = slots
	}

	if pending >= want {
		d.scan()
	}
}

// EagerReclaim runs a scan immediately and returns the number of
// objects freed. Intended for tests and shutdown paths that want a
// deterministic reclamation point rather than waiting on the
// threshold policy.
func (d *Domain) EagerReclaim() int {
	return d.scan()
}

// scan is the reclamation algorithm:
//  1. detach the pending retire list,
//  2. issue the heavy asymmetric fence so every reader's hazard store
//     that happened-before this call is visible,
//  3. collect the set of addresses any slot still protects,
//  4. free everything not in that set, and requeue the rest.
func (d *Domain) scan() int {
	head, count := d.retired.detach()
	if count == 0 {
		return 0
	}

	heavyFence()

	hazards := d.slots.hazards()

	var freed int
	var kept *retireNode
	var keptCount int64

	for n := head; n != nil; {
		next := (*retireNode)(atomic.LoadPointer(&n.next))
		if _, live := hazards[n.obj]; live {
			atomic.StorePointer(&n.next, unsafe.Pointer(kept))
			kept = n
			keptCount++
		} else {
			n.deleter(n.obj)
			freed++
		}
		n = next
	}

	for n := kept; n != nil; {
		next := (*retireNode)(atomic.LoadPointer(&n.next))
		d.retired.pushNode(n)
		n = next
	}
	if keptCount > 0 {
		atomic.AddInt64(&d.retired.pending, keptCount)
	}

	return freed
}

// Close tears the domain down: every remaining retire record is
// deleted unconditionally, since no holder can legitimately still be
// borrowing from a domain whose owner is dropping it. If Debug is set
// and a slot is still active, that is a programming error and Close
// panics instead of silently leaking or double-freeing.
func (d *Domain) Close() {
	if Debug && d.slots.anyActive() {
		panic("hazptr: domain closed while a holder still holds a slot")
	}

	head, _ := d.retired.detach()
	for n := head; n != nil; {
		next := (*retireNode)(atomic.LoadPointer(&n.next))
		n.deleter(n.obj)
		n = next
	}
}
