package hazptr

import (
	"sync/atomic"
	"unsafe"
)

// Holder is the reader-side scoped handle: it rents exactly one slot
// from a domain for its lifetime and exposes the protection protocol
// that turns a candidate pointer into a safe borrow. A zero Holder is
// not usable; construct one with GlobalHolder or ForDomain.
type Holder struct {
	slot   *HazardSlot
	domain *Domain
}

// GlobalHolder rents a slot from the global domain.
func GlobalHolder() *Holder {
	return ForDomain(Global())
}

// ForDomain rents a slot from domain.
func ForDomain(domain *Domain) *Holder {
	return &Holder{slot: domain.acquireSlot(), domain: domain}
}

// Reset stores null into the holder's slot, invalidating every
// outstanding borrow obtained through it.
func (h *Holder) Reset() {
	atomic.StorePointer(&h.slot.protected, nil)
}

// Close resets then releases the holder's slot back to its domain's
// free pool. A Holder must not be used again after Close.
func (h *Holder) Close() {
	h.Reset()
	h.domain.releaseSlot(h.slot)
}

// Guard registers p as hazardous directly, without running the
// protect/reload validation loop. It exists for callers whose own
// lock-free structure already establishes p is (or was) reachable
// through some other means, and only needs a hazard slot to keep a
// domain's scanner from treating p as reclaimable while it's in use —
// the same escape hatch a hand-rolled hazard pointer scheme offers
// when an address doesn't come from an ObjectRef-shaped cell. The
// caller remains responsible for only ever reclaiming p through
// Domain.Retire on this holder's domain, and for clearing the guard
// with Reset or Close when done.
func (h *Holder) Guard(p unsafe.Pointer) {
	atomic.StorePointer(&h.slot.protected, p)
	lightFence()
}

// Protect runs the protection protocol against ref until it succeeds,
// returning a pointer valid until the holder is Reset or Closed, or
// nil if the cell held null. It panics (when Debug is set) if ref
// reports a domain identity different from the holder's.
func Protect[T any](h *Holder, ref ObjectRef) *T {
	p := ref.loadRelaxed()
	for {
		obj, fresh, ok := tryProtectOnce[T](h, p, ref)
		if ok {
			return obj
		}
		p = fresh
	}
}

// TryProtect attempts the protection protocol once against the
// candidate pointer the caller already read from ref. On success it
// returns (borrow, nil, true); on a stale candidate it returns (nil,
// the fresh pointer it observed instead, false) and does not retry,
// leaving that decision to the caller.
func TryProtect[T any](h *Holder, candidate *T, ref ObjectRef) (*T, *T, bool) {
	obj, fresh, ok := tryProtectOnce[T](h, unsafe.Pointer(candidate), ref)
	if ok {
		return obj, nil, true
	}
	return nil, (*T)(fresh), false
}

// tryProtectOnce is the protocol body shared by Protect and
// TryProtect:
//
//  1. assert domain identity when the cell carries one,
//  2. store the candidate into the hazard slot,
//  3. issue the light fence,
//  4. reload the cell with acquire ordering,
//  5. on a match, return a borrow (validating the target's
//     self-reported domain when the cell carried none);
//     on a mismatch, clear the slot and hand back the fresh pointer.
func tryProtectOnce[T any](h *Holder, p unsafe.Pointer, ref ObjectRef) (obj *T, fresh unsafe.Pointer, ok bool) {
	knownDomain, hasDomain := ref.domainID()
	if hasDomain && Debug && knownDomain != h.domain.id {
		panic("hazptr: object guarded by different domain than holder used to access it")
	}

	atomic.StorePointer(&h.slot.protected, p)
	lightFence()

	p2 := ref.loadAcquire()
	if p != p2 {
		atomic.StorePointer(&h.slot.protected, nil)
		return nil, p2, false
	}

	if p == nil {
		return nil, nil, true
	}

	target := (*T)(p)
	if !hasDomain && Debug {
		if do, implementsDomain := any(target).(DomainObject); implementsDomain {
			if do.Domain().id != h.domain.id {
				panic("hazptr: object guarded by different domain than holder used to access it")
			}
		}
	}

	return target, nil, true
}
