package controller

import (
	"os"
	"syscall"
)

// System is the set of OS primitives the controller relies on.
type System interface {
	Getpid() int
	Getsid() (int, error)
	Setsid() error
	Kill(pid int, sig syscall.Signal) error
	// WaitNoHang polls pid without blocking. exited is true once the child
	// terminated; status is its exit code, and 0 when a signal killed it.
	WaitNoHang(pid int) (exited bool, status int, err error)
	Notify(c chan<- os.Signal, sigs ...os.Signal) error
	Exit(code int)
}

// Forker creates a new process. It returns 0 in the new process, the new pid
// in the calling one, or an error when no process was created.
type Forker interface {
	Fork(t Ticket) (int, error)
}

// Personal.AI order the ending
