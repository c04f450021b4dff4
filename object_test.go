package hazptr

import (
	"sync/atomic"
	"testing"
	"unsafe"
)

type refCounter struct {
	n *int64
}

func (c refCounter) Release() {
	atomic.AddInt64(c.n, 1)
}

type boxPayload struct {
	val int
	dropCounter
}

type sharedPayload struct {
	val int
	refCounter
}

// TestMixedAllocationSchemesViaBareAtomic checks that a BareAtomic
// cell can hold one allocation scheme, then another, with each
// retired using the deleter matching its own scheme.
func TestMixedAllocationSchemesViaBareAtomic(t *testing.T) {
	domain := New(nil)

	hx := ForDomain(domain)
	hy := ForDomain(domain)

	var drops int64

	x := WithDomain(domain, boxPayload{val: 0, dropCounter: dropCounter{n: &drops}})
	ref := NewBareAtomic(unsafe.Pointer(x))

	rx := Protect[Wrapper[boxPayload]](hx, ref)
	if rx.Value.val != 0 {
		t.Fatalf("got %d, want 0", rx.Value.val)
	}

	y := WithDomain(domain, sharedPayload{val: 1, refCounter: refCounter{n: &drops}})
	oldRaw := ref.Swap(unsafe.Pointer(y), OrderSeqCst)
	if oldRaw != unsafe.Pointer(x) {
		t.Fatal("swap did not return the displaced pointer")
	}

	ry := Protect[Wrapper[sharedPayload]](hy, ref)
	if rx.Value.val != 0 {
		t.Fatalf("rx corrupted: got %d, want 0", rx.Value.val)
	}
	if ry.Value.val != 1 {
		t.Fatalf("got %d, want 1", ry.Value.val)
	}

	if atomic.LoadInt64(&drops) != 0 {
		t.Fatal("deleter ran before retire")
	}

	domain.Retire(oldRaw, DropBox[Wrapper[boxPayload]]())
	if atomic.LoadInt64(&drops) != 0 {
		t.Fatal("deleter ran before holder released")
	}

	hx.Close()
	if n := domain.EagerReclaim(); n != 1 {
		t.Fatalf("got %d freed, want 1", n)
	}
	if atomic.LoadInt64(&drops) != 1 {
		t.Fatalf("drops = %d, want 1", atomic.LoadInt64(&drops))
	}

	RetireBareAtomic(ref, domain, DropShared[Wrapper[sharedPayload], *Wrapper[sharedPayload]]())
	if atomic.LoadInt64(&drops) != 1 {
		t.Fatal("shared deleter ran before holder released")
	}

	hy.Close()
	if n := domain.EagerReclaim(); n != 1 {
		t.Fatalf("got %d freed, want 1", n)
	}
	if atomic.LoadInt64(&drops) != 2 {
		t.Fatalf("total drops = %d, want 2", atomic.LoadInt64(&drops))
	}
}

func TestOwnedRefSwapAcrossDomainsPanics(t *testing.T) {
	a := New(nil)
	b := New(nil)

	var drops int64
	x := newOwned(a, 1, &drops)
	y := newOwned(b, 2, &drops)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic swapping across domains")
		}
	}()

	x.Swap(y, OrderSeqCst)
}
