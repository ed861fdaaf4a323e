package controller

import (
	"os"
	"syscall"
)

var rootSignals = []os.Signal{
	syscall.SIGTERM,
	syscall.SIGINT,
	syscall.SIGUSR1,
	syscall.SIGUSR2,
	syscall.SIGCONT,
	syscall.SIGHUP,
}

// Init resolves the process identity, completes a fork this process was
// started for, and subscribes to signals. A root subscribes to every
// supervised signal; any other process only to SIGTERM and exits if that
// fails. Identity errors are returned regardless of throw-on-error and the
// caller must not continue.
func (c *Controller) Init(root bool) error {
	c.mu.Lock()
	err := c.resolvePidLocked()
	if err == nil {
		err = c.resolveSidLocked()
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if t, ok := c.ticket(); ok {
		if err := c.resume(t); err != nil {
			return err
		}
	}

	if root {
		return c.sys.Notify(c.sigs, rootSignals...)
	}
	if err := c.sys.Notify(c.sigs, syscall.SIGTERM); err != nil {
		c.log.Error("Controller: Cannot install SIGTERM handler", "err", err)
		c.Stop(1)
		return err
	}
	return nil
}

// resume completes the child side of the fork described by t.
func (c *Controller) resume(t Ticket) error {
	if t.RunID != "" {
		c.mu.Lock()
		c.runID = t.RunID
		c.mu.Unlock()
	}
	c.SetWaitForSignals(true)
	if err := c.becomeChild(t.ParentPid, t.Depth); err != nil {
		return err
	}
	c.log.Debug("Controller: Resumed forked child", "parent", t.ParentPid, "depth", t.Depth+1, "detach", t.Detach)
	c.fire(EventForkChild)
	c.fire(EventFork)
	if t.Detach {
		return c.daemonized()
	}
	return nil
}

// Personal.AI order the ending
