package controller

import (
	"fmt"
	"os"

	"github.com/turtacn/Arbor/pkg/consts"
)

// ReexecForker forks by starting the running executable again with the same
// arguments and a fork ticket in its environment.
type ReexecForker struct {
	// Files, when set, returns descriptors passed to the child from fd 3 on.
	Files func() []*os.File
	// Path overrides the executable, mostly for tests.
	Path string
	Args []string
}

func (f *ReexecForker) Fork(t Ticket) (int, error) {
	path := f.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return consts.ForkFailed, fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}
	args := f.Args
	if args == nil {
		args = os.Args
	}

	env := append(scrubTicket(os.Environ()), t.Environ()...)
	files := []*os.File{os.Stdin, os.Stdout, os.Stderr}
	if f.Files != nil {
		extra := f.Files()
		if len(extra) > 0 {
			files = append(files, extra...)
			env = append(env, fmt.Sprintf("%s=%d", consts.EnvInheritedFDs, len(extra)))
		}
	}

	proc, err := os.StartProcess(path, args, &os.ProcAttr{Env: env, Files: files})
	if err != nil {
		return consts.ForkFailed, err
	}
	pid := proc.Pid
	// The controller reaps children itself through wait4.
	_ = proc.Release()
	return pid, nil
}

// Personal.AI order the ending
