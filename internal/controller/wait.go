package controller

import "time"

// WaitForChild polls pid until a CONT signal clears the wait flag or a
// termination signal requests a stop. If the child exits with a non-zero
// status this process exits with status 1. It returns immediately when the
// process is not a parent.
func (c *Controller) WaitForChild(pid int) {
	if !c.IsParent() || pid <= 0 {
		return
	}
	for c.WaitingForSignals() && !c.StopRequested() {
		c.Pump(c.pollInterval)
		exited, status, err := c.sys.WaitNoHang(pid)
		if err != nil {
			continue
		}
		if exited && status != 0 {
			c.log.Error("Controller: Child failed", "child", pid, "status", status)
			c.Stop(1)
			return
		}
	}
}

// WaitForFork forks and waits for the new child. In the child it returns at
// once.
func (c *Controller) WaitForFork() error {
	pid, err := c.Fork(nil)
	if err != nil {
		return err
	}
	c.WaitForChild(pid)
	return nil
}

// WaitOutcome says why WaitForChildren returned.
type WaitOutcome int

const (
	WaitResumed   WaitOutcome = iota // CONT cleared the wait flag
	WaitStopped                      // a stop was requested
	WaitAllExited                    // every child exited with status 0
	WaitFailed                       // a child failed and Stop(1) was called
)

func (o WaitOutcome) String() string {
	switch o {
	case WaitResumed:
		return "resumed"
	case WaitStopped:
		return "stopped"
	case WaitAllExited:
		return "all-exited"
	default:
		return "failed"
	}
}

// WaitForChildren is WaitForChild over every tracked child, with the same
// exit policy. Children that exit cleanly are dropped from the child list,
// and the wait ends once none are left.
func (c *Controller) WaitForChildren() WaitOutcome {
	if !c.IsParent() {
		return WaitAllExited
	}
	for c.WaitingForSignals() && !c.StopRequested() {
		c.Pump(c.pollInterval)
		pids := c.ChildPids()
		for _, pid := range pids {
			exited, status, err := c.sys.WaitNoHang(pid)
			if err != nil || !exited {
				continue
			}
			if status != 0 {
				c.log.Error("Controller: Child failed", "child", pid, "status", status)
				c.Stop(1)
				return WaitFailed
			}
			c.log.Info("Controller: Child exited", "child", pid)
			c.removeChild(pid)
		}
		if c.ChildCount() == 0 {
			return WaitAllExited
		}
	}
	if c.StopRequested() {
		return WaitStopped
	}
	return WaitResumed
}

// Reap collects exited children until none are left or timeout elapses, and
// returns the pids still running. Exit statuses are ignored. A child that can
// no longer be waited for is considered gone.
func (c *Controller) Reap(timeout time.Duration) []int {
	deadline := c.now().Add(timeout)
	for {
		for _, pid := range c.ChildPids() {
			exited, _, err := c.sys.WaitNoHang(pid)
			if err != nil || exited {
				c.removeChild(pid)
			}
		}
		left := c.ChildPids()
		if len(left) == 0 || !c.now().Before(deadline) {
			return left
		}
		c.Pump(c.pollInterval)
	}
}

// Personal.AI order the ending
