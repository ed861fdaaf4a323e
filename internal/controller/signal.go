package controller

import (
	"os"
	"syscall"
	"time"

	"github.com/turtacn/Arbor/internal/monitor"
	"github.com/turtacn/Arbor/pkg/consts"
)

const (
	sigterm = syscall.SIGTERM
	sigkill = syscall.SIGKILL
)

type signalClass int

const (
	classOther signalClass = iota
	classUser
	classResume
	classTerminate
	classReload
)

func classify(sig syscall.Signal) signalClass {
	switch sig {
	case syscall.SIGUSR1, syscall.SIGUSR2:
		return classUser
	case syscall.SIGCONT:
		return classResume
	case syscall.SIGINT, syscall.SIGTERM:
		return classTerminate
	case syscall.SIGHUP:
		return classReload
	default:
		return classOther
	}
}

// signalTable maps the parent flag and the signal class to a handler.
// A child reacts to every signal the same way.
func (c *Controller) signalTable() map[bool]map[signalClass]func() {
	childStop := func() { c.SetStopProcess(true) }
	return map[bool]map[signalClass]func(){
		false: {
			classOther:     childStop,
			classUser:      childStop,
			classResume:    childStop,
			classTerminate: childStop,
			classReload:    childStop,
		},
		true: {
			classOther:     func() {},
			classUser:      func() {}, // reserved for callers
			classResume:    func() { c.SetWaitForSignals(false) },
			classTerminate: c.onTerminate,
			classReload:    c.onReload,
		},
	}
}

// Signal handles one delivered signal. It is called from Dispatch and Pump,
// never from a signal context.
func (c *Controller) Signal(sig os.Signal) {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return
	}
	monitor.SignalsTotal.WithLabelValues(s.String()).Inc()
	c.log.Debug("Controller: Signal received", "signal", s.String(), "role", c.Role())

	c.mu.Lock()
	c.resetTermCountLocked()
	c.mu.Unlock()

	c.dispatch[c.IsParent()][classify(s)]()

	if s == syscall.SIGTERM {
		c.fire(EventKill)
	}
}

// resetTermCountLocked clears the termination counter. With a quiet period
// configured only a counter older than the period is cleared.
func (c *Controller) resetTermCountLocked() {
	if c.quietPeriod <= 0 || c.now().Sub(c.lastTerm) > c.quietPeriod {
		c.termCount = 0
	}
}

func (c *Controller) onTerminate() {
	c.mu.Lock()
	now := c.now()
	c.stopRequested = true
	if c.stopTime.IsZero() {
		c.stopTime = now
	}
	c.termCount++
	c.lastTerm = now
	n := c.termCount
	c.mu.Unlock()

	sig := sigterm
	if n >= consts.EscalateAfter {
		sig = sigkill
		c.log.Warn("Controller: Escalating to SIGKILL", "terminations", n)
	}
	if err := c.StopChildren(sig); err != nil {
		c.log.Error("Controller: Could not stop children", "signal", sig.String(), "err", err)
	}
}

func (c *Controller) onReload() {
	c.mu.Lock()
	c.reloads++
	c.mu.Unlock()
	c.log.Info("Controller: Reload requested, terminating children")
	if err := c.StopChildren(sigterm); err != nil {
		c.log.Error("Controller: Could not stop children", "signal", "SIGTERM", "err", err)
	}
}

// Dispatch handles every pending signal without blocking and returns how
// many were handled.
func (c *Controller) Dispatch() int {
	n := 0
	for {
		select {
		case sig := <-c.sigs:
			c.Signal(sig)
			n++
		default:
			return n
		}
	}
}

// Pump waits up to d for a signal, then dispatches everything pending.
func (c *Controller) Pump(d time.Duration) int {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case sig := <-c.sigs:
		c.Signal(sig)
		return 1 + c.Dispatch()
	case <-timer.C:
		return c.Dispatch()
	}
}

// Deliver queues sig as if the runtime had received it.
func (c *Controller) Deliver(sig os.Signal) {
	c.sigs <- sig
}

// Personal.AI order the ending
