package process

import "syscall"

// Workers get SIGTERM if the master dies, so they finish their task and exit
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}
