//go:build !windows

package terminate

import (
	"errors"
	"syscall"
)

type sysSignaler struct{}

// SystemSignaler returns a Signaler that delivers real OS signals.
func SystemSignaler() Signaler {
	return sysSignaler{}
}

func (sysSignaler) Graceful(pid int32) error {
	return syscall.Kill(int(pid), syscall.SIGTERM)
}

func (sysSignaler) Force(pid int32) error {
	return syscall.Kill(int(pid), syscall.SIGKILL)
}

// Alive probes with signal 0. EPERM means the process exists but belongs to
// someone else, which still counts as alive.
func (sysSignaler) Alive(pid int32) bool {
	err := syscall.Kill(int(pid), 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
