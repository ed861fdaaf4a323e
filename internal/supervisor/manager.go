package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/turtacn/Arbor/pkg/consts"
	"github.com/turtacn/Arbor/pkg/logger"
)

// ProcessManager runs the service command inside a forked worker.
type ProcessManager struct {
	cmd *exec.Cmd
}

// New creates a new ProcessManager instance.
func New() *ProcessManager {
	return &ProcessManager{}
}

// Start launches the service command with the given environment and extra files.
// Inherited listeners are passed on from fd 3 and announced through
// ARBOR_INHERITED_FDS, the same way the worker received them.
func (pm *ProcessManager) Start(command []string, env []string, extraFiles []*os.File) error {
	if len(command) == 0 {
		return nil
	}

	pm.cmd = exec.Command(command[0], command[1:]...)
	pm.cmd.Env = append(os.Environ(), env...)
	pm.cmd.Stdout = os.Stdout
	pm.cmd.Stderr = os.Stderr

	if len(extraFiles) > 0 {
		pm.cmd.ExtraFiles = extraFiles
		pm.cmd.Env = append(pm.cmd.Env, fmt.Sprintf("%s=%d", consts.EnvInheritedFDs, len(extraFiles)))
	}

	logger.Log.Info("Worker: Starting service command", "cmd", command)
	return pm.cmd.Start()
}

// Pid returns the pid of the running command, or 0.
func (pm *ProcessManager) Pid() int {
	if pm.cmd != nil && pm.cmd.Process != nil {
		return pm.cmd.Process.Pid
	}
	return 0
}

// Stop sends a SIGTERM signal to the command to initiate a graceful shutdown.
func (pm *ProcessManager) Stop() error {
	if pm.cmd != nil && pm.cmd.Process != nil {
		logger.Log.Info("Worker: Sending SIGTERM", "pid", pm.cmd.Process.Pid)
		return pm.cmd.Process.Signal(syscall.SIGTERM)
	}
	return nil
}

// Kill immediately terminates the command using a SIGKILL signal.
// It is used when the command outlives its stop grace period.
func (pm *ProcessManager) Kill() error {
	if pm.cmd != nil && pm.cmd.Process != nil {
		logger.Log.Warn("Worker: Sending SIGKILL", "pid", pm.cmd.Process.Pid)
		return pm.cmd.Process.Kill()
	}
	return nil
}

// Wait waits for the command to exit and returns the resulting error, if any.
func (pm *ProcessManager) Wait() error {
	if pm.cmd != nil {
		return pm.cmd.Wait()
	}
	return nil
}

// Pumper is the part of the process controller a worker needs.
type Pumper interface {
	StopRequested() bool
	Pump(d time.Duration) int
}

// Worker ties a service command to the controller of a forked worker process.
type Worker struct {
	Controller Pumper
	Command    []string
	Env        []string
	Files      []*os.File
	// Grace is how long the command may take to exit after SIGTERM.
	Grace time.Duration
	Poll  time.Duration

	pm *ProcessManager
}

// Run supervises the command until it exits or the controller is asked to
// stop, and returns the exit code the worker process should use. A command
// that exits after being stopped counts as a clean exit.
func (w *Worker) Run() int {
	poll := w.Poll
	if poll <= 0 {
		poll = consts.WaitForChildInterval
	}

	if len(w.Command) == 0 {
		logger.Log.Info("Worker: No command configured, idling until stopped")
		for !w.Controller.StopRequested() {
			w.Controller.Pump(poll)
		}
		return 0
	}

	w.pm = New()
	if err := w.pm.Start(w.Command, w.Env, w.Files); err != nil {
		logger.Log.Error("Worker: Cannot start service command", "cmd", w.Command, "err", err)
		return 127
	}

	done := make(chan error, 1)
	go func() { done <- w.pm.Wait() }()

	var deadline time.Time
	killed := false
	for {
		select {
		case err := <-done:
			code := exitCode(err)
			if !deadline.IsZero() {
				logger.Log.Info("Worker: Service command stopped", "pid", w.pm.Pid(), "status", code)
				return 0
			}
			logger.Log.Info("Worker: Service command exited", "pid", w.pm.Pid(), "status", code)
			return code
		default:
		}

		if w.Controller.StopRequested() {
			switch {
			case deadline.IsZero():
				deadline = time.Now().Add(w.Grace)
				if err := w.pm.Stop(); err != nil {
					logger.Log.Warn("Worker: SIGTERM failed", "err", err)
				}
			case !killed && time.Now().After(deadline):
				killed = true
				_ = w.pm.Kill()
			}
		}
		w.Controller.Pump(poll)
	}
}

// exitCode maps a Wait error to a process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if code := ee.ExitCode(); code >= 0 {
			return code
		}
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
	}
	return 1
}

// Personal.AI order the ending
