//go:build windows

package supervisor

import (
	"os"
	"syscall"
)

// procAttr detaches the child from the console's Ctrl-Break group
func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

func terminate(pid int) {
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Kill()
	}
}

func kill(pid int) {
	terminate(pid)
}
