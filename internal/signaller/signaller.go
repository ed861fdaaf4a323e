package signaller

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/turtacn/Arbor/pkg/errors"
	"github.com/turtacn/Arbor/pkg/logger"
	"golang.org/x/sys/unix"
)

var errStillRunning = fmt.Errorf("process still running")

// Signaller delivers signals to a supervisor from outside its process tree.
type Signaller struct {
	// Kill sends a signal; defaults to kill(2).
	Kill func(pid int, sig syscall.Signal) error
	// Alive reports whether pid still runs; defaults to kill(pid, 0).
	Alive func(pid int) bool
	// InitialInterval is the first liveness poll delay.
	InitialInterval time.Duration
}

func New() *Signaller {
	return &Signaller{
		Kill:            unix.Kill,
		Alive:           signalZero,
		InitialInterval: 50 * time.Millisecond,
	}
}

func signalZero(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// Send delivers sig to pid.
func (s *Signaller) Send(pid int, sig syscall.Signal) error {
	if err := s.Kill(pid, sig); err != nil {
		return errors.NewSignalDelivery(pid, sig, err)
	}
	logger.Log.Info("Signaller: Sent signal", "pid", pid, "signal", sig.String())
	return nil
}

// Stop sends SIGTERM and polls pid with exponential backoff. If the process
// outlives timeout it gets SIGKILL. escalated reports whether that happened.
func (s *Signaller) Stop(ctx context.Context, pid int, timeout time.Duration) (escalated bool, err error) {
	if err := s.Send(pid, syscall.SIGTERM); err != nil {
		return false, err
	}
	if err := s.waitGone(ctx, pid, timeout); err == nil {
		return false, nil
	} else if ctx.Err() != nil {
		return false, ctx.Err()
	}

	logger.Log.Warn("Signaller: Process outlived stop timeout, sending SIGKILL", "pid", pid, "timeout", timeout)
	if err := s.Send(pid, syscall.SIGKILL); err != nil {
		return true, err
	}
	if err := s.waitGone(ctx, pid, timeout); err != nil {
		return true, errors.New(errors.ErrCodeStopTimeout, "Stop", fmt.Sprintf("pid %d survived SIGKILL", pid), err)
	}
	return true, nil
}

func (s *Signaller) waitGone(ctx context.Context, pid int, timeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.InitialInterval
	b.MaxInterval = time.Second
	b.MaxElapsedTime = timeout

	return backoff.RetryNotify(func() error {
		if s.Alive(pid) {
			return errStillRunning
		}
		return nil
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		logger.Log.Debug("Signaller: Waiting for process to exit", "pid", pid, "retry_in", d.String())
	})
}

// Personal.AI order the ending
