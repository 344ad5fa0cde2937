//go:build !windows

package supervisor

import "syscall"

// procAttr puts the child in its own process group so closing the
// controlling terminal does not propagate SIGHUP
func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// terminate asks the child's whole process group to exit
func terminate(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
}

// kill force-kills the child's process group
func kill(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
