package orchestrator

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/turtacn/Arbor/internal/controller"
	"github.com/turtacn/Arbor/internal/inspect"
	"github.com/turtacn/Arbor/internal/monitor"
	"github.com/turtacn/Arbor/internal/pidfile"
	"github.com/turtacn/Arbor/internal/resource"
	"github.com/turtacn/Arbor/internal/statusrelay"
	"github.com/turtacn/Arbor/internal/supervisor"
	"github.com/turtacn/Arbor/pkg/consts"
	"github.com/turtacn/Arbor/pkg/fsm"
	"github.com/turtacn/Arbor/pkg/logger"
	"github.com/turtacn/Arbor/pkg/protocol"
)

const (
	evStart  fsm.Event = "start"
	evReady  fsm.Event = "ready"
	evReload fsm.Event = "reload"
	evStop   fsm.Event = "stop"
	evDone   fsm.Event = "done"
	evWorker fsm.Event = "worker"
)

type Engine struct {
	cfg     *protocol.Config
	fsm     *fsm.StateMachine
	ctl     *controller.Controller
	socket  *resource.SocketManager
	pidfile *pidfile.PidFile
	procs   *inspect.Inspector
	lineage controller.Lineage
	log     logger.Logger

	stopTimeout  time.Duration
	relayEnabled bool
}

// Option adjusts an Engine, mostly to swap OS facing parts in tests.
type Option func(*engineOptions)

type engineOptions struct {
	fs      afero.Fs
	lineage *controller.Lineage
	ctlOpts []controller.Option
	noRelay bool
	procs   *inspect.Inspector
}

func WithFs(fs afero.Fs) Option { return func(o *engineOptions) { o.fs = fs } }

func WithLineage(l controller.Lineage) Option { return func(o *engineOptions) { o.lineage = &l } }

func WithControllerOptions(opts ...controller.Option) Option {
	return func(o *engineOptions) { o.ctlOpts = append(o.ctlOpts, opts...) }
}

func WithInspector(i *inspect.Inspector) Option { return func(o *engineOptions) { o.procs = i } }

// WithoutStatusRelay disables the unix-socket status server.
func WithoutStatusRelay() Option { return func(o *engineOptions) { o.noRelay = true } }

func NewEngine(cfg *protocol.Config, opts ...Option) *Engine {
	o := &engineOptions{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(o)
	}
	lineage := controller.Inherited()
	if o.lineage != nil {
		lineage = *o.lineage
	}

	quiet, _ := cfg.QuietPeriod()
	stopTimeout, _ := cfg.StopTimeout()
	socket := resource.NewSocketManager()

	ctlOpts := []controller.Option{
		controller.WithForker(&controller.ReexecForker{Files: socket.GetFiles}),
		controller.WithQuietPeriod(quiet),
		controller.WithThrowOnError(cfg.Supervisor.ThrowOnError),
		controller.WithRunID(uuid.NewString()),
	}

	e := &Engine{
		cfg:     cfg,
		fsm:     fsm.New(fsm.State(consts.PhasePending)),
		ctl:     controller.New(append(ctlOpts, o.ctlOpts...)...),
		socket:  socket,
		pidfile: pidfile.New(o.fs, cfg.Supervisor.PidFile),
		procs:   o.procs,
		lineage: lineage,
		log:     logger.Log,

		stopTimeout:  stopTimeout,
		relayEnabled: !o.noRelay,
	}
	if e.procs == nil {
		if i, err := inspect.New(""); err == nil {
			e.procs = i
		}
	}
	if e.procs != nil {
		e.pidfile.Alive = e.procs.Alive
	}
	e.setupFSM()
	return e
}

func (e *Engine) setupFSM() {
	pending := fsm.State(consts.PhasePending)
	starting := fsm.State(consts.PhaseStarting)
	running := fsm.State(consts.PhaseRunning)
	reloading := fsm.State(consts.PhaseReloading)
	draining := fsm.State(consts.PhaseDraining)
	stopped := fsm.State(consts.PhaseStopped)
	worker := fsm.State(consts.PhaseWorker)

	e.fsm.AddTransition(pending, starting, evStart, e.logPhase)
	e.fsm.AddTransition(pending, worker, evWorker, e.logPhase)
	e.fsm.AddTransition(starting, running, evReady, e.logPhase)
	e.fsm.AddTransition(starting, draining, evStop, e.logPhase)

	// SIGHUP: workers were terminated, fork a fresh set
	e.fsm.AddTransition(running, reloading, evReload, e.logPhase)
	e.fsm.AddTransition(reloading, running, evReady, e.logPhase)
	e.fsm.AddTransition(reloading, draining, evStop, e.logPhase)

	e.fsm.AddTransition(running, draining, evStop, e.logPhase)
	e.fsm.AddTransition(draining, stopped, evDone, e.logPhase)
}

func (e *Engine) logPhase(from, to fsm.State, ev fsm.Event) error {
	e.log.Info("Phase: "+string(to), "from", from, "event", ev)
	return nil
}

// Phase returns the current engine phase.
func (e *Engine) Phase() consts.EnginePhase { return consts.EnginePhase(e.fsm.Current()) }

// Controller exposes the process controller, mainly for callback registration.
func (e *Engine) Controller() *controller.Controller { return e.ctl }

// Run drives the process through its lifecycle and returns the exit code it
// should terminate with.
func (e *Engine) Run() int {
	if err := e.ctl.Init(e.lineage != controller.LineageFork); err != nil {
		e.log.Error("Engine: Cannot initialise controller", "err", err)
		return 1
	}
	e.log = logger.Log.With("run", e.ctl.RunID(), "pid", e.ctl.Pid(), "depth", e.ctl.Depth())

	if e.lineage == controller.LineageFork {
		return e.runWorker()
	}
	return e.runSupervisor()
}

func (e *Engine) runWorker() int {
	e.fsm.Fire(evWorker)
	monitor.Register()
	// Interrupts from the terminal are the supervisor's to handle
	signal.Ignore(syscall.SIGINT)

	if err := e.socket.EnsureAll(e.cfg.Supervisor.Listen); err != nil {
		e.log.Error("Engine: Worker cannot claim listeners", "err", err)
		return 1
	}
	defer e.socket.Close()
	return e.worker().Run()
}

func (e *Engine) runSupervisor() int {
	if e.cfg.Supervisor.Daemonize && e.lineage == controller.LineageNone {
		// The original process exits inside Daemonize unless the fork fails
		if err := e.ctl.Daemonize(); err != nil {
			return 1
		}
		if e.ctl.IsRoot() && e.ctl.ChildCount() > 0 {
			return 0
		}
	}

	monitor.InitMetrics(e.cfg.Observability.MetricsPort)

	pid := e.ctl.Pid()
	if err := e.pidfile.Write(pid); err != nil {
		e.log.Error("Engine: Cannot write pidfile", "err", err)
		return 1
	}

	var relay *statusrelay.Server
	if e.relayEnabled {
		relay = statusrelay.NewServer(e.cfg.Supervisor.StatusSocket, e.Report)
	}
	// Stop exits the process directly, so cleanup runs both as an exit hook
	// and on return.
	var once sync.Once
	release := func() {
		once.Do(func() {
			if relay != nil {
				relay.Shutdown()
			}
			e.socket.Close()
			if err := e.pidfile.Remove(pid); err != nil {
				e.log.Warn("Engine: Cannot remove pidfile", "err", err)
			}
		})
	}
	e.ctl.OnExit(func(int) { release() })
	defer release()

	if err := e.socket.EnsureAll(e.cfg.Supervisor.Listen); err != nil {
		e.log.Error("Engine: Cannot bind listeners", "err", err)
		return 1
	}

	if relay != nil {
		go func() {
			if err := relay.Serve(context.Background()); err != nil {
				e.log.Warn("Engine: Status relay stopped", "err", err)
			}
		}()
	}

	e.log.Info("Engine: Supervising", "service", e.cfg.Service.Name, "workers", e.cfg.Supervisor.Workers)
	e.fsm.Fire(evStart)
	if code, done := e.forkWorkers(); done {
		return code
	}
	if e.ctl.StopRequested() {
		return e.drain(1)
	}
	e.fsm.Fire(evReady)

	for {
		reloads := e.ctl.Reloads()
		switch e.ctl.WaitForChildren() {
		case controller.WaitFailed:
			// Only reached when Exit returns; the exit hook already cleaned up
			return 1
		case controller.WaitStopped:
			return e.drain(0)
		case controller.WaitResumed:
			e.log.Info("Engine: Wait resumed by SIGCONT")
			e.ctl.SetWaitForSignals(true)
		case controller.WaitAllExited:
			if e.ctl.Reloads() == reloads {
				e.log.Info("Engine: All workers finished")
				e.fsm.Fire(evStop)
				e.fsm.Fire(evDone)
				return 0
			}
			e.fsm.Fire(evReload)
			if code, done := e.forkWorkers(); done {
				return code
			}
			if e.ctl.StopRequested() {
				return e.drain(1)
			}
			e.fsm.Fire(evReady)
		}
	}
}

// forkWorkers forks the configured number of workers. done is true when this
// process must return code right away, either because it is now a worker or
// because forking failed with throw-on-error set.
func (e *Engine) forkWorkers() (code int, done bool) {
	for i := 0; i < e.cfg.Supervisor.Workers; i++ {
		pid, err := e.ctl.Fork(nil)
		switch {
		case err != nil:
			e.log.Error("Engine: Fork failed", "err", err)
			e.drain(1)
			return 1, true
		case pid == 0:
			e.fsm.Reset(fsm.State(consts.PhasePending))
			e.fsm.Fire(evWorker)
			return e.worker().Run(), true
		case pid < 0:
			return 0, false
		}
		e.log.Info("Engine: Forked worker", "worker", i, "child", pid)
	}
	return 0, false
}

func (e *Engine) worker() *supervisor.Worker {
	return &supervisor.Worker{
		Controller: e.ctl,
		Command:    e.cfg.Service.Command,
		Env:        e.cfg.Service.Env,
		Files:      e.socket.GetFiles(),
		Grace:      e.stopTimeout,
	}
}

// drain waits for terminated children, escalating to SIGKILL after the stop
// timeout.
func (e *Engine) drain(code int) int {
	e.fsm.Fire(evStop)
	if left := e.ctl.Reap(e.stopTimeout); len(left) > 0 {
		e.log.Warn("Engine: Workers outlived stop timeout, killing", "children", left)
		if err := e.ctl.StopChildren(syscall.SIGKILL); err != nil {
			e.log.Error("Engine: SIGKILL failed", "err", err)
		}
		if left = e.ctl.Reap(time.Second); len(left) > 0 {
			e.log.Error("Engine: Workers could not be reaped", "children", left)
		}
	}
	e.fsm.Fire(evDone)
	return code
}

// Report builds the status relay answer.
func (e *Engine) Report() statusrelay.Report {
	snap := e.ctl.Snapshot()
	r := statusrelay.Report{
		Service:   e.cfg.Service.Name,
		Phase:     string(e.Phase()),
		Process:   snap,
		Listeners: e.socket.Addrs(),
	}
	if e.procs != nil {
		r.Children = e.procs.DescribeAll(snap.Children)
	}
	return r
}

// Personal.AI order the ending
