package consts

import "time"

// Role is the position of the current process in its process tree.
type Role string

const (
	RoleRoot   Role = "root"   // Parent, never forked from another controller
	RoleChild  Role = "child"  // Fork child that has not forked yet
	RoleBranch Role = "branch" // Fork child that has forked children of its own
)

// EnginePhase defines the lifecycle state of the supervisor engine.
type EnginePhase string

const (
	PhasePending   EnginePhase = "PENDING"
	PhaseStarting  EnginePhase = "STARTING"  // Binding listeners & forking workers
	PhaseRunning   EnginePhase = "RUNNING"   // Waiting on workers
	PhaseReloading EnginePhase = "RELOADING" // SIGHUP cascade, workers re-forked
	PhaseDraining  EnginePhase = "DRAINING"  // Stop requested, children signaled
	PhaseStopped   EnginePhase = "STOPPED"
	PhaseWorker    EnginePhase = "WORKER" // Forked worker running the service command
)

// Fork ticket environment, read by a re-executed child.
const (
	EnvForkParent   = "ARBOR_FORK_PARENT"
	EnvForkDepth    = "ARBOR_FORK_DEPTH"
	EnvForkDetach   = "ARBOR_FORK_DETACH"
	EnvRunID        = "ARBOR_RUN_ID"
	EnvInheritedFDs = "ARBOR_INHERITED_FDS" // Count of listener FDs passed
)

const (
	// WaitForChildInterval is the sleep between two wait4 polls.
	WaitForChildInterval = 5000 * time.Microsecond
	// EscalateAfter is the termination count at which children get SIGKILL.
	EscalateAfter = 5
	// ForkFailed is the sentinel Fork returns when no process was created.
	ForkFailed = -1

	DefaultPidFile      = "/tmp/arbor.pid"
	DefaultStatusSocket = "/tmp/arbor.sock"
	DefaultStopTimeout  = 10 * time.Second
	DefaultRelayTimeout = 2 * time.Second
)

// Personal.AI order the ending
