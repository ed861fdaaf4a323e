package controller

import (
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/turtacn/Arbor/pkg/logger"
)

type killCall struct {
	pid int
	sig syscall.Signal
}

type waitResult struct {
	exited bool
	status int
	err    error
}

type fakeSystem struct {
	mu        sync.Mutex
	pid       int
	sid       int
	sidErr    error
	setsids   int
	killed    []killCall
	killErr   map[int]error
	waits     map[int][]waitResult
	onWait    func(pid int)
	polls     int
	exits     []int
	notified  []os.Signal
	notifyErr error
}

func newFakeSystem(pid int) *fakeSystem {
	return &fakeSystem{
		pid:     pid,
		sid:     pid,
		killErr: make(map[int]error),
		waits:   make(map[int][]waitResult),
	}
}

func (f *fakeSystem) Getpid() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pid
}

func (f *fakeSystem) Getsid() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sid, f.sidErr
}

func (f *fakeSystem) Setsid() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setsids++
	f.sid = f.pid
	return nil
}

func (f *fakeSystem) Kill(pid int, sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.killErr[pid]; err != nil {
		return err
	}
	f.killed = append(f.killed, killCall{pid, sig})
	return nil
}

func (f *fakeSystem) WaitNoHang(pid int) (bool, int, error) {
	f.mu.Lock()
	f.polls++
	hook := f.onWait
	var r waitResult
	if q := f.waits[pid]; len(q) > 0 {
		r = q[0]
		f.waits[pid] = q[1:]
	}
	f.mu.Unlock()
	if hook != nil {
		hook(pid)
	}
	return r.exited, r.status, r.err
}

func (f *fakeSystem) Notify(c chan<- os.Signal, sigs ...os.Signal) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notified = append(f.notified, sigs...)
	return nil
}

func (f *fakeSystem) Exit(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exits = append(f.exits, code)
}

func (f *fakeSystem) signaled() []killCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]killCall{}, f.killed...)
}

// stubForker replays canned fork results. A zero result switches the fake
// system to childPid first, the way a real fork hands the child a new pid.
type stubForker struct {
	sys      *fakeSystem
	results  []int
	errs     []error
	childPid int
	tickets  []Ticket
}

func (s *stubForker) Fork(t Ticket) (int, error) {
	s.tickets = append(s.tickets, t)
	res, err := s.results[0], s.errs[0]
	s.results, s.errs = s.results[1:], s.errs[1:]
	if err == nil && res == 0 {
		s.sys.mu.Lock()
		s.sys.pid = s.childPid
		s.sys.mu.Unlock()
	}
	return res, err
}

func (s *stubForker) push(res int, err error) *stubForker {
	s.results = append(s.results, res)
	s.errs = append(s.errs, err)
	return s
}

func newTestController(pid int, opts ...Option) (*Controller, *fakeSystem, *stubForker) {
	sys := newFakeSystem(pid)
	fk := &stubForker{sys: sys, childPid: pid + 1000}
	base := []Option{
		WithSystem(sys),
		WithForker(fk),
		WithLogger(logger.New(io.Discard, "error", "text")),
		WithTicketSource(func() (Ticket, bool) { return Ticket{}, false }),
		WithPollInterval(0),
	}
	return New(append(base, opts...)...), sys, fk
}

// recorder collects fired events in order.
type recorder struct {
	mu     sync.Mutex
	events []Event
	pids   []int
}

func (r *recorder) on(c *Controller, evs ...Event) {
	for _, ev := range evs {
		ev := ev
		c.RegisterCallback(ev, func(pid int) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, ev)
			r.pids = append(r.pids, pid)
			return nil
		})
	}
}

func (r *recorder) count(ev Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == ev {
			n++
		}
	}
	return n
}

var allEvents = []Event{
	EventFork, EventForkChild, EventForkParent, EventForkError, EventForkRoot,
	EventDaemonize, EventStopChildren, EventKill, EventKilledChild,
}
