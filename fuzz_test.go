package hazptr

import (
	"sync"
	"sync/atomic"
	"testing"
)

// FuzzRetireAndProtect is a native go test -fuzz target: fuzz bytes
// drive a sequence of swap/protect/retire operations against one
// domain, with a reader racing the writer the whole time. It never
// checks for a specific output; it exists to catch panics, data races
// (run with -race), and double-drops that a byte-sequence corpus can
// shake loose over time.
func FuzzRetireAndProtect(f *testing.F) {
	f.Add([]byte{0, 1, 2, 3})
	f.Add([]byte{})
	f.Add([]byte{255, 255, 255, 255, 255, 255, 255, 255})

	f.Fuzz(func(t *testing.T, ops []byte) {
		domain := New(nil)
		defer func() {
			// One last scan after the checks below; the reader has
			// already stopped and closed its holder by then, and the
			// domain itself is left open.
			domain.EagerReclaim()
		}()

		var drops int64
		x := newOwned(domain, 0, &drops)

		var wg sync.WaitGroup
		wg.Add(1)
		stop := make(chan struct{})
		go func() {
			defer wg.Done()
			h := ForDomain(domain)
			defer h.Close()
			for {
				select {
				case <-stop:
					return
				default:
				}
				Protect[Wrapper[intPayload]](h, x)
				h.Reset()
			}
		}()

		for i, b := range ops {
			old := Replace[Wrapper[intPayload], *Wrapper[intPayload]](x,
				WithDomain(domain, intPayload{val: int(b), dropCounter: dropCounter{n: &drops}}),
				OrderSeqCst)
			Retire[Wrapper[intPayload], *Wrapper[intPayload]](old, intDeleter())
			if i%4 == 0 {
				domain.EagerReclaim()
			}
		}

		close(stop)
		wg.Wait()

		final := Replace[Wrapper[intPayload], *Wrapper[intPayload]](x,
			WithDomain(domain, intPayload{val: -1, dropCounter: dropCounter{n: new(int64)}}),
			OrderSeqCst)
		Retire[Wrapper[intPayload], *Wrapper[intPayload]](final, intDeleter())

		if n := domain.EagerReclaim(); n < 0 {
			t.Fatalf("impossible negative reclaim count %d", n)
		}
		if got := atomic.LoadInt64(&drops); got > int64(len(ops))+1 {
			t.Fatalf("dropped %d objects, more than the %d retired", got, len(ops)+1)
		}
	})
}
