package controller

import (
	"github.com/turtacn/Arbor/internal/monitor"
	"github.com/turtacn/Arbor/pkg/consts"
	"github.com/turtacn/Arbor/pkg/errors"
	"go.uber.org/multierr"
)

// Fork creates a child process and applies the matching transition to this
// controller. It returns 0 in the child, the child pid in the parent and
// consts.ForkFailed when no process was created. An error is only returned
// for a failed fork with throw-on-error set; the Fork event and cb still run
// in that case.
func (c *Controller) Fork(cb Callback) (int, error) {
	return c.fork(cb, false)
}

func (c *Controller) fork(cb Callback, detach bool) (int, error) {
	c.SetWaitForSignals(true)

	t := Ticket{
		ParentPid: c.Pid(),
		Depth:     c.Depth(),
		Detach:    detach,
		RunID:     c.RunID(),
	}
	pid, forkErr := c.forker.Fork(t)
	if forkErr == nil && pid < 0 {
		forkErr = errors.New(errors.ErrCodeProcessCreation, "Fork", "forker returned no process", nil)
	}

	var err error
	switch {
	case forkErr != nil:
		pid = consts.ForkFailed
		err = c.onForkError(forkErr)
	case pid == 0:
		monitor.ForksTotal.WithLabelValues("child").Inc()
		if rerr := c.becomeChild(t.ParentPid, t.Depth); rerr != nil {
			c.log.Error("Controller: Child lost its identity", "err", rerr)
		}
		c.log.Debug("Controller: Forked into child", "parent", t.ParentPid, "depth", t.Depth+1)
		c.fire(EventForkChild)
	default:
		monitor.ForksTotal.WithLabelValues("parent").Inc()
		c.addChild(pid)
		c.log.Debug("Controller: Forked child", "child", pid)
		c.fire(EventForkParent)
		if c.IsRoot() {
			c.fire(EventForkRoot)
		}
	}

	c.fire(EventFork)
	if cb != nil {
		invoke(c.log, "fork callback", cb, c.Pid())
	}
	return pid, err
}

func (c *Controller) onForkError(cause error) error {
	monitor.ForksTotal.WithLabelValues("error").Inc()
	c.log.Error("Controller: Could not fork, stopping children", "err", cause)

	c.SetStopProcess(true)
	stopErr := c.StopChildren(sigterm)
	c.fire(EventForkError)

	if !c.ThrowOnError() {
		return nil
	}
	return errors.New(errors.ErrCodeProcessCreation, "Fork", "could not fork", multierr.Append(cause, stopErr))
}

// Personal.AI order the ending
