// Package controller supervises a tree of forked processes from inside one of
// its members.
//
// Each process owns a Controller that knows its own pid, session, depth and
// the pids it forked directly. Signals are not handled preemptively: they are
// queued by the runtime and dispatched when the host calls Dispatch or Pump,
// or while WaitForChild sleeps between polls.
//
// The Go runtime cannot survive fork(2), so the default Forker re-executes the
// running binary and passes a fork ticket through the environment. The new
// process completes the child side of the fork in Init. Code paths before the
// first Init must therefore be the same in parent and child.
//
// The package targets Unix systems only.
package controller

// Personal.AI order the ending
