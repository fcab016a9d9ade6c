//go:build !windows

package rollback

import (
	"os/exec"
	"syscall"
)

// configureDetached puts the child in a new session so it is not torn down
// with this process's group or controlling terminal.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
