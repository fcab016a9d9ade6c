//go:build windows

package terminate

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

type sysSignaler struct{}

// SystemSignaler returns a Signaler backed by the Windows process API.
// Windows has no graceful POSIX signal, so both paths terminate the process;
// the staged protocol above still applies.
func SystemSignaler() Signaler {
	return sysSignaler{}
}

func (sysSignaler) Graceful(pid int32) error {
	return kill(pid)
}

func (sysSignaler) Force(pid int32) error {
	return kill(pid)
}

func (sysSignaler) Alive(pid int32) bool {
	ok, err := process.PidExists(pid)
	return err == nil && ok
}

func kill(pid int32) error {
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return err
	}
	return proc.Kill()
}
