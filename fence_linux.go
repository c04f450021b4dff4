//go:build linux

package hazptr

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// membarrier(2) command values from linux/membarrier.h. x/sys/unix
// does not name these (they are a uapi enum, not a syscall number),
// so they are reproduced here; only the raw syscall number
// (unix.SYS_MEMBARRIER) comes from the package itself.
const (
	membarrierCmdRegisterPrivateExpedited = 1 << 4
	membarrierCmdPrivateExpedited         = 1 << 3
)

var (
	membarrierOnce      sync.Once
	membarrierAvailable int32
)

// heavyFence is the scanner's rare-path barrier. On Linux it uses
// membarrier(2) with MEMBARRIER_CMD_PRIVATE_EXPEDITED, which acts as
// a broadcast full fence on every thread of this process without
// requiring them to cooperate, the IPI-style heavy fence an asymmetric
// reclamation scheme wants on its scan path. Kernels without
// membarrier support (ENOSYS) fall back to the sequentially-consistent
// substitute.
func heavyFence() {
	membarrierOnce.Do(func() {
		_, _, errno := unix.Syscall(unix.SYS_MEMBARRIER, membarrierCmdRegisterPrivateExpedited, 0, 0)
		if errno == 0 {
			atomic.StoreInt32(&membarrierAvailable, 1)
		}
	})

	if atomic.LoadInt32(&membarrierAvailable) == 1 {
		if _, _, errno := unix.Syscall(unix.SYS_MEMBARRIER, membarrierCmdPrivateExpedited, 0, 0); errno == 0 {
			return
		}
	}

	lightFence()
}
