//go:build linux

package thread

import (
	"sync"

	"golang.org/x/sys/unix"
)

var (
	lockMemoryOnce sync.Once
	lockMemoryErr  error
)

func lockMemory() error {
	lockMemoryOnce.Do(func() {
		lockMemoryErr = unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
	})
	return lockMemoryErr
}

// setScheduler applies the policy to the calling OS thread.
func setScheduler(policy Policy, priority int) error {
	attr := &unix.SchedAttr{
		Priority: uint32(priority),
	}
	switch policy {
	case PolicyRoundRobin:
		attr.Policy = unix.SCHED_RR
	default:
		attr.Policy = unix.SCHED_FIFO
	}
	// pid 0 is the calling thread
	return unix.SchedSetAttr(0, attr, 0)
}
