package controller

import (
	"os"
	"sync"
	"time"

	"github.com/turtacn/Arbor/internal/monitor"
	"github.com/turtacn/Arbor/pkg/consts"
	"github.com/turtacn/Arbor/pkg/errors"
	"github.com/turtacn/Arbor/pkg/fsm"
	"github.com/turtacn/Arbor/pkg/logger"
)

const (
	roleRoot   = fsm.State(consts.RoleRoot)
	roleChild  = fsm.State(consts.RoleChild)
	roleBranch = fsm.State(consts.RoleBranch)

	becameChild  = fsm.Event("fork-child")
	becameParent = fsm.Event("fork-parent")
)

// Controller holds the process-tree state of the running process.
type Controller struct {
	mu sync.Mutex

	sys    System
	forker Forker
	hub    *EventHub
	log    logger.Logger
	role   *fsm.StateMachine
	now    func() time.Time
	ticket func() (Ticket, bool)

	pid       int
	sid       int
	parentPid int
	depth     int
	children  []int
	runID     string

	termCount         int
	lastTerm          time.Time
	quietPeriod       time.Duration
	stopRequested     bool
	stopTime          time.Time
	waitingForSignals bool
	throwOnError      bool
	reloads           int

	sigs         chan os.Signal
	pollInterval time.Duration
	dispatch     map[bool]map[signalClass]func()
	exitHooks    []func(code int)
}

// Option configures a Controller.
type Option func(*Controller)

func WithSystem(s System) Option { return func(c *Controller) { c.sys = s } }

func WithForker(f Forker) Option { return func(c *Controller) { c.forker = f } }

func WithLogger(l logger.Logger) Option { return func(c *Controller) { c.log = l } }

func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithTicketSource replaces the environment as the source of fork tickets.
func WithTicketSource(src func() (Ticket, bool)) Option {
	return func(c *Controller) { c.ticket = src }
}

// WithQuietPeriod keeps counting termination signals that arrive within d of
// each other, so a burst of them escalates to SIGKILL.
func WithQuietPeriod(d time.Duration) Option { return func(c *Controller) { c.quietPeriod = d } }

func WithPollInterval(d time.Duration) Option { return func(c *Controller) { c.pollInterval = d } }

func WithRunID(id string) Option { return func(c *Controller) { c.runID = id } }

func WithThrowOnError(v bool) Option { return func(c *Controller) { c.throwOnError = v } }

// New returns a root controller. Identity is resolved lazily or by Init.
func New(opts ...Option) *Controller {
	c := &Controller{
		sys:          unixSystem{},
		forker:       &ReexecForker{},
		log:          logger.Log,
		now:          time.Now,
		ticket:       consumeEnvTicket,
		sigs:         make(chan os.Signal, 16),
		pollInterval: consts.WaitForChildInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "controller")
	c.hub = NewEventHub(c.log)

	c.role = fsm.New(roleRoot)
	for _, s := range []fsm.State{roleRoot, roleChild, roleBranch} {
		c.role.AddTransition(s, roleChild, becameChild, nil)
	}
	c.role.AddTransition(roleRoot, roleRoot, becameParent, nil)
	c.role.AddTransition(roleChild, roleBranch, becameParent, nil)
	c.role.AddTransition(roleBranch, roleBranch, becameParent, nil)

	c.dispatch = c.signalTable()
	return c
}

// Pid returns the cached pid, resolving it on first use. It returns 0 when
// the pid cannot be resolved.
func (c *Controller) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.resolvePidLocked(); err != nil {
		c.log.Error("Controller: Cannot resolve pid", "err", err)
		return 0
	}
	return c.pid
}

func (c *Controller) resolvePidLocked() error {
	if c.pid > 0 {
		return nil
	}
	pid := c.sys.Getpid()
	if pid <= 0 {
		return errors.New(errors.ErrCodeIdentityResolution, "ResolvePid", "could not receive current process ID", nil)
	}
	c.pid = pid
	return nil
}

// SessionID returns the cached session id, resolving it on first use.
func (c *Controller) SessionID() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sid > 0 {
		return c.sid, nil
	}
	if err := c.resolveSidLocked(); err != nil {
		return 0, err
	}
	return c.sid, nil
}

func (c *Controller) resolveSidLocked() error {
	sid, err := c.sys.Getsid()
	if err != nil {
		return errors.New(errors.ErrCodeIdentityResolution, "ResolveSession", "getsid failed", err)
	}
	c.sid = sid
	return nil
}

func (c *Controller) ParentPid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parentPid
}

func (c *Controller) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth
}

func (c *Controller) Role() consts.Role { return consts.Role(c.role.Current()) }

func (c *Controller) IsParent() bool { return c.role.Is(roleRoot, roleBranch) }

func (c *Controller) IsChild() bool { return c.role.Is(roleChild, roleBranch) }

// IsRoot reports a parent that was never forked by another controller.
func (c *Controller) IsRoot() bool { return c.role.Is(roleRoot) }

// ChildPids returns a copy of the pids this process forked, in fork order.
func (c *Controller) ChildPids() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.children))
	copy(out, c.children)
	return out
}

func (c *Controller) ChildCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.children)
}

func (c *Controller) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

func (c *Controller) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopRequested
}

// StopTime is the time the first termination signal was handled.
func (c *Controller) StopTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopTime
}

func (c *Controller) WaitingForSignals() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitingForSignals
}

func (c *Controller) ThrowOnError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.throwOnError
}

// Reloads counts the SIGHUP cascades handled so far.
func (c *Controller) Reloads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloads
}

func (c *Controller) SetStopProcess(v bool) {
	c.mu.Lock()
	c.stopRequested = v
	c.mu.Unlock()
}

func (c *Controller) SetWaitForSignals(v bool) {
	c.mu.Lock()
	c.waitingForSignals = v
	c.mu.Unlock()
}

func (c *Controller) SetThrowOnError(v bool) {
	c.mu.Lock()
	c.throwOnError = v
	c.mu.Unlock()
}

// RegisterCallback binds cb to ev; a nil cb clears the binding.
func (c *Controller) RegisterCallback(ev Event, cb Callback) {
	c.hub.Register(ev, cb)
}

func (c *Controller) fire(ev Event) {
	c.hub.Fire(ev, c.Pid())
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	Pid               int         `json:"pid"`
	SessionID         int         `json:"session_id"`
	ParentPid         int         `json:"parent_pid,omitempty"`
	Depth             int         `json:"depth"`
	Role              consts.Role `json:"role"`
	Children          []int       `json:"children"`
	StopRequested     bool        `json:"stop_requested"`
	StopTime          *time.Time  `json:"stop_time,omitempty"`
	WaitingForSignals bool        `json:"waiting_for_signals"`
	TermCount         int         `json:"term_count"`
	RunID             string      `json:"run_id,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	role := c.Role()
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Pid:               c.pid,
		SessionID:         c.sid,
		ParentPid:         c.parentPid,
		Depth:             c.depth,
		Role:              role,
		Children:          append([]int{}, c.children...),
		StopRequested:     c.stopRequested,
		WaitingForSignals: c.waitingForSignals,
		TermCount:         c.termCount,
		RunID:             c.runID,
	}
	if !c.stopTime.IsZero() {
		t := c.stopTime
		s.StopTime = &t
	}
	return s
}

// becomeChild applies the child side of a fork that happened at parentDepth
// in process parentPid.
func (c *Controller) becomeChild(parentPid, parentDepth int) error {
	c.role.Fire(becameChild)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.parentPid = parentPid
	c.pid = 0
	c.depth = parentDepth + 1
	c.children = nil
	monitor.Children.Set(0)
	return c.resolvePidLocked()
}

func (c *Controller) removeChild(pid int) {
	c.mu.Lock()
	for i, p := range c.children {
		if p == pid {
			c.children = append(c.children[:i], c.children[i+1:]...)
			break
		}
	}
	n := len(c.children)
	c.mu.Unlock()
	monitor.Children.Set(float64(n))
}

func (c *Controller) addChild(pid int) {
	c.role.Fire(becameParent)

	c.mu.Lock()
	c.children = append(c.children, pid)
	n := len(c.children)
	c.mu.Unlock()
	monitor.Children.Set(float64(n))
}

// Personal.AI order the ending
