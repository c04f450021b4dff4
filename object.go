package hazptr

import (
	"sync/atomic"
	"unsafe"
)

// Ordering names the memory ordering each operation on an ObjectRef
// conceptually needs (relaxed load in protect, acquire reload, release
// store in reset, and so on). Go's sync/atomic provides no
// weaker-than-sequentially-consistent atomic operations, so every
// Ordering maps to the same instruction here; the type exists so call
// sites document which ordering the operation needs, matching an
// explicit-ordering API, rather than to select between distinct
// machine behaviors.
type Ordering int

const (
	OrderRelaxed Ordering = iota
	OrderAcquire
	OrderRelease
	OrderAcqRel
	OrderSeqCst
)

// ObjectRef is the atomic pointer cell a reader protects and a writer
// swaps (C6). OwnedRef knows its domain identity; BareAtomic does
// not, and the caller must supply a deleter directly when retiring
// through it.
type ObjectRef interface {
	loadRelaxed() unsafe.Pointer
	loadAcquire() unsafe.Pointer
	domainID() (DomainID, bool)
}

// OwnedRef is an ObjectRef that knows its domain identity: it is the
// sole writer of its cell via Swap/Replace, and retires through the
// domain its wrapped object reports.
type OwnedRef struct {
	ptr    unsafe.Pointer // atomic
	domain DomainID
}

// NewOwnedRef moves obj's address into a fresh OwnedRef, recording the
// domain it reports. PT must be a pointer type (almost always *T) that
// implements DomainObject; obj is typically the result of
// WithGlobalDomain or WithDomain.
func NewOwnedRef[T any, PT interface {
	*T
	DomainObject
}](obj PT) *OwnedRef {
	return &OwnedRef{
		ptr:    unsafe.Pointer(obj),
		domain: obj.Domain().ID(),
	}
}

func (r *OwnedRef) loadRelaxed() unsafe.Pointer { return atomic.LoadPointer(&r.ptr) }
func (r *OwnedRef) loadAcquire() unsafe.Pointer { return atomic.LoadPointer(&r.ptr) }
func (r *OwnedRef) domainID() (DomainID, bool)  { return r.domain, true }

// Swap exchanges r's and other's inner pointers. Both refs must share
// a domain identity; a mismatch is a programming error.
func (r *OwnedRef) Swap(other *OwnedRef, order Ordering) {
	if Debug && r.domain != other.domain {
		panic("hazptr: tried to swap objects with differing domains")
	}

	otherPtr := atomic.LoadPointer(&other.ptr)
	old := atomic.SwapPointer(&r.ptr, otherPtr)
	atomic.StorePointer(&other.ptr, old)
}

// Replace is short for create-then-swap: it wraps obj in a fresh
// OwnedRef, swaps it into r, and returns the ref r displaced.
func Replace[T any, PT interface {
	*T
	DomainObject
}](r *OwnedRef, obj PT, order Ordering) *OwnedRef {
	other := NewOwnedRef[T, PT](obj)
	r.Swap(other, order)
	return other
}

// Retire moves r's inner pointer into its domain's retire list with
// deleter, leaving r holding null. A consuming retire that takes r by
// value isn't actually safe against a racing writer still holding a
// reference to the same cell; taking r by pointer and nulling
// the field instead avoids that hazard. Callers must still guarantee r
// is otherwise unreachable to readers when this runs (no outstanding
// protect can start using it afterward).
func Retire[T any, PT interface {
	*T
	DomainObject
}](r *OwnedRef, deleter Deleter) {
	raw := atomic.SwapPointer(&r.ptr, nil)
	if raw == nil {
		return
	}
	obj := PT(raw)
	obj.Domain().Retire(raw, deleter)
}

// BareAtomic is an ObjectRef with no recorded domain identity, used
// when the allocation scheme backing the cell changes over its
// lifetime (e.g. box-allocated now, externally reference-counted
// later). Because it carries no domain, a Holder protecting it falls
// back to a best-effort debug check against the target's own reported
// domain, and the caller supplies both the domain and deleter
// explicitly when retiring.
type BareAtomic struct {
	ptr unsafe.Pointer // atomic
}

// NewBareAtomic wraps an already-allocated object pointer.
func NewBareAtomic(p unsafe.Pointer) *BareAtomic {
	return &BareAtomic{ptr: p}
}

func (r *BareAtomic) loadRelaxed() unsafe.Pointer { return atomic.LoadPointer(&r.ptr) }
func (r *BareAtomic) loadAcquire() unsafe.Pointer { return atomic.LoadPointer(&r.ptr) }
func (r *BareAtomic) domainID() (DomainID, bool)  { return DomainID{}, false }

// Load reads the cell's current value.
func (r *BareAtomic) Load() unsafe.Pointer {
	return atomic.LoadPointer(&r.ptr)
}

// Swap stores p into the cell and returns the value it displaced.
func (r *BareAtomic) Swap(p unsafe.Pointer, order Ordering) unsafe.Pointer {
	return atomic.SwapPointer(&r.ptr, p)
}

// CompareAndSwap stores newP into the cell iff it currently holds
// oldP, reporting whether the swap happened. It lets BareAtomic back
// a caller's own lock-free structure (its own CAS loop) instead of
// only the single-shot Swap every OwnedRef uses internally.
func (r *BareAtomic) CompareAndSwap(oldP, newP unsafe.Pointer) bool {
	return atomic.CompareAndSwapPointer(&r.ptr, oldP, newP)
}

// RetireBareAtomic removes r's current pointer and retires it to
// domain with deleter. Unlike OwnedRef's Retire, the domain is
// supplied by the caller rather than discovered from the object,
// since BareAtomic's whole point is that the cell does not know it.
func RetireBareAtomic(r *BareAtomic, domain *Domain, deleter Deleter) {
	raw := atomic.SwapPointer(&r.ptr, nil)
	if raw == nil {
		return
	}
	domain.Retire(raw, deleter)
}
