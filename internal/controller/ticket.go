package controller

import (
	"os"
	"strconv"
	"strings"

	"github.com/turtacn/Arbor/pkg/consts"
)

// Ticket describes a pending fork to the process that completes it.
type Ticket struct {
	ParentPid int
	Depth     int // Depth of the forking process
	Detach    bool
	RunID     string
}

// Lineage tells a freshly started process how it came to exist.
type Lineage int

const (
	LineageNone   Lineage = iota // Started by something other than a controller
	LineageFork                  // Forked worker
	LineageDaemon                // Daemonized copy of a root process
)

// Environ encodes the ticket as environment entries.
func (t Ticket) Environ() []string {
	env := []string{
		consts.EnvForkParent + "=" + strconv.Itoa(t.ParentPid),
		consts.EnvForkDepth + "=" + strconv.Itoa(t.Depth),
	}
	if t.Detach {
		env = append(env, consts.EnvForkDetach+"=1")
	}
	if t.RunID != "" {
		env = append(env, consts.EnvRunID+"="+t.RunID)
	}
	return env
}

// ParseTicket decodes a ticket using lookup. ok is false when no well-formed
// ticket is present.
func ParseTicket(lookup func(string) (string, bool)) (t Ticket, ok bool) {
	parent, found := lookup(consts.EnvForkParent)
	if !found {
		return Ticket{}, false
	}
	var err error
	if t.ParentPid, err = strconv.Atoi(parent); err != nil || t.ParentPid <= 0 {
		return Ticket{}, false
	}
	depth, _ := lookup(consts.EnvForkDepth)
	if t.Depth, err = strconv.Atoi(depth); err != nil || t.Depth < 0 {
		return Ticket{}, false
	}
	detach, _ := lookup(consts.EnvForkDetach)
	t.Detach = detach == "1"
	t.RunID, _ = lookup(consts.EnvRunID)
	return t, true
}

// Inherited reports the lineage of the current process without consuming its
// ticket.
func Inherited() Lineage {
	t, ok := ParseTicket(os.LookupEnv)
	switch {
	case !ok:
		return LineageNone
	case t.Detach:
		return LineageDaemon
	default:
		return LineageFork
	}
}

// consumeEnvTicket reads the ticket from the environment and clears it so
// processes started later do not inherit a stale one.
func consumeEnvTicket() (Ticket, bool) {
	t, ok := ParseTicket(os.LookupEnv)
	if ok {
		os.Unsetenv(consts.EnvForkParent)
		os.Unsetenv(consts.EnvForkDepth)
		os.Unsetenv(consts.EnvForkDetach)
	}
	return t, ok
}

// scrubTicket drops ticket and inherited-fd entries from env.
func scrubTicket(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		switch {
		case strings.HasPrefix(kv, consts.EnvForkParent+"="),
			strings.HasPrefix(kv, consts.EnvForkDepth+"="),
			strings.HasPrefix(kv, consts.EnvForkDetach+"="),
			strings.HasPrefix(kv, consts.EnvRunID+"="),
			strings.HasPrefix(kv, consts.EnvInheritedFDs+"="):
			continue
		}
		out = append(out, kv)
	}
	return out
}

// Personal.AI order the ending
