//go:build !windows

package controller

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

type unixSystem struct{}

func (unixSystem) Getpid() int { return unix.Getpid() }

func (unixSystem) Getsid() (int, error) { return unix.Getsid(0) }

func (unixSystem) Setsid() error {
	_, err := unix.Setsid()
	return err
}

func (unixSystem) Kill(pid int, sig syscall.Signal) error { return unix.Kill(pid, sig) }

// WaitNoHang reaps pid if it has terminated. Only a normal exit carries a
// status; a child killed by a signal is reported as exited with status 0.
func (unixSystem) WaitNoHang(pid int) (bool, int, error) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
	if err != nil {
		return false, 0, err
	}
	if wpid == 0 {
		return false, 0, nil
	}
	switch {
	case ws.Exited():
		return true, ws.ExitStatus(), nil
	case ws.Signaled():
		return true, 0, nil
	default:
		return false, 0, nil
	}
}

func (unixSystem) Notify(c chan<- os.Signal, sigs ...os.Signal) error {
	signal.Notify(c, sigs...)
	return nil
}

func (unixSystem) Exit(code int) { os.Exit(code) }

// Personal.AI order the ending
