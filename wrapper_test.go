package hazptr

import "testing"

type closeOnly struct {
	closed bool
}

func (c *closeOnly) Close() error {
	c.closed = true
	return nil
}

func TestWrapperWithGlobalDomainReportsGlobal(t *testing.T) {
	w := WithGlobalDomain(closeOnly{})
	if w.Domain() != Global() {
		t.Fatal("WithGlobalDomain did not tag the wrapper with the global domain")
	}
}

func TestWrapperClosePropagatesToValue(t *testing.T) {
	w := WithDomain(New(nil), closeOnly{})
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Value.closed {
		t.Fatal("Wrapper.Close did not forward to the wrapped value's Close")
	}
}

func TestWrapperCloseIsNoopWithoutCloser(t *testing.T) {
	w := WithDomain(New(nil), 42)
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error closing a value with no Close method: %v", err)
	}
}

func TestWrapperReleasePropagatesToValue(t *testing.T) {
	var n int64
	w := WithDomain(New(nil), refCounter{n: &n})
	w.Release()
	if n != 1 {
		t.Fatalf("Wrapper.Release did not forward: n = %d, want 1", n)
	}
}
