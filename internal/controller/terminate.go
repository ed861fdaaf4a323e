package controller

import (
	"syscall"

	"github.com/turtacn/Arbor/internal/monitor"
	"github.com/turtacn/Arbor/pkg/errors"
	"go.uber.org/multierr"
)

// StopChildren sends sig to every tracked child in fork order.
//
// With throw-on-error set, the first failed delivery is returned and the
// remaining children are not signaled. Otherwise failures are logged and
// every child is attempted.
func (c *Controller) StopChildren(sig syscall.Signal) error {
	c.fire(EventStopChildren)

	throw := c.ThrowOnError()
	var failed error
	for _, pid := range c.ChildPids() {
		if err := c.sys.Kill(pid, sig); err != nil {
			monitor.ChildSignalsTotal.WithLabelValues(sig.String(), "failed").Inc()
			derr := errors.NewSignalDelivery(pid, sig, err)
			if throw {
				return derr
			}
			failed = multierr.Append(failed, derr)
			continue
		}
		monitor.ChildSignalsTotal.WithLabelValues(sig.String(), "ok").Inc()
		c.fire(EventKilledChild)
	}

	if failed != nil {
		c.log.Warn("Controller: Some children could not be signaled",
			"signal", sig.String(), "failures", len(multierr.Errors(failed)), "err", failed)
	}
	return nil
}

// OnExit registers fn to run inside Stop, before the process exits. Hooks run
// in reverse registration order.
func (c *Controller) OnExit(fn func(code int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exitHooks = append(c.exitHooks, fn)
}

// Stop runs the exit hooks and terminates the current process with code.
func (c *Controller) Stop(code int) {
	c.log.Info("Controller: Exiting", "pid", c.Pid(), "code", code)

	c.mu.Lock()
	hooks := c.exitHooks
	c.exitHooks = nil
	c.mu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i](code)
	}
	c.sys.Exit(code)
}

// Personal.AI order the ending
