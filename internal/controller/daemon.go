package controller

import (
	"github.com/turtacn/Arbor/pkg/errors"
)

// Daemonize forks and lets the child carry on as a session leader while the
// original process exits with status 0. If the fork fails the caller keeps
// running undaemonized; the error is only non-nil with throw-on-error set.
//
// With the re-exec forker the child side happens in the new process's Init,
// so in the original process Daemonize only ever sees the parent or error
// outcome.
func (c *Controller) Daemonize() error {
	pid, err := c.fork(nil, true)
	switch {
	case pid == 0:
		return c.daemonized()
	case pid > 0:
		c.Stop(0)
		return nil
	default:
		c.log.Warn("Controller: Daemonize failed, continuing in foreground", "err", err)
		return err
	}
}

func (c *Controller) daemonized() error {
	if err := c.Detach(); err != nil {
		return err
	}
	c.fire(EventDaemonize)
	return nil
}

// Detach makes the process a session leader and refreshes the cached session id.
func (c *Controller) Detach() error {
	if err := c.sys.Setsid(); err != nil {
		// EPERM when already a group leader; the session query below still
		// reflects where the process actually lives.
		c.log.Warn("Controller: setsid failed", "err", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.sid
	if err := c.resolveSidLocked(); err != nil {
		return errors.New(errors.ErrCodeIdentityResolution, "Detach", "cannot resolve new session", err)
	}
	c.log.Debug("Controller: Detached", "old_session", old, "session", c.sid)
	return nil
}

// Personal.AI order the ending
