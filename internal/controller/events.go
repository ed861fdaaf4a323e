package controller

import (
	"fmt"
	"sync"

	"github.com/turtacn/Arbor/pkg/logger"
)

// Event names a lifecycle notification.
type Event string

const (
	EventFork         Event = "fork"
	EventForkChild    Event = "fork_child"
	EventForkParent   Event = "fork_parent"
	EventForkError    Event = "fork_error"
	EventForkRoot     Event = "fork_root"
	EventDaemonize    Event = "daemonize"
	EventStopChildren Event = "stop_children"
	EventKill         Event = "kill"
	EventKilledChild  Event = "killed_child"
)

// Callback receives the pid of the process firing the event.
type Callback func(pid int) error

// EventHub binds at most one callback to each event.
type EventHub struct {
	mu        sync.RWMutex
	callbacks map[Event]Callback
	log       logger.Logger
}

func NewEventHub(log logger.Logger) *EventHub {
	return &EventHub{
		callbacks: make(map[Event]Callback),
		log:       log,
	}
}

// Register binds cb to ev, replacing any previous binding. A nil cb clears it.
func (h *EventHub) Register(ev Event, cb Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cb == nil {
		delete(h.callbacks, ev)
		return
	}
	h.callbacks[ev] = cb
}

// Bound reports whether a callback is registered for ev.
func (h *EventHub) Bound(ev Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.callbacks[ev]
	return ok
}

// Fire invokes the callback bound to ev, if any. Errors and panics raised by
// the callback are logged and discarded.
func (h *EventHub) Fire(ev Event, pid int) bool {
	h.mu.RLock()
	cb, ok := h.callbacks[ev]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	invoke(h.log, string(ev), cb, pid)
	return true
}

func invoke(log logger.Logger, name string, cb Callback, pid int) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("Controller: Callback panicked", "event", name, "panic", fmt.Sprint(r))
		}
	}()
	if err := cb(pid); err != nil {
		log.Debug("Controller: Callback failed", "event", name, "err", err)
	}
}

// Personal.AI order the ending
