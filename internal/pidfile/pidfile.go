package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/turtacn/Arbor/pkg/errors"
)

// PidFile records the pid of the supervising root process.
type PidFile struct {
	fs   afero.Fs
	path string
	// Alive reports whether a recorded pid still runs. When nil every
	// recorded pid is considered stale.
	Alive func(pid int) bool
}

func New(fs afero.Fs, path string) *PidFile {
	return &PidFile{fs: fs, path: path}
}

func (p *PidFile) Path() string { return p.path }

// Write records pid. It fails if the file names another live process.
func (p *PidFile) Write(pid int) error {
	if old, err := p.Read(); err == nil && old != pid && p.Alive != nil && p.Alive(old) {
		return errors.New(errors.ErrCodePidFile, "WritePidFile",
			fmt.Sprintf("%s is held by running process %d", p.path, old), nil)
	}
	if err := p.fs.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return errors.New(errors.ErrCodePidFile, "WritePidFile", "cannot create directory", err)
	}
	tmp := p.path + ".tmp"
	if err := afero.WriteFile(p.fs, tmp, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return errors.New(errors.ErrCodePidFile, "WritePidFile", "cannot write "+tmp, err)
	}
	if err := p.fs.Rename(tmp, p.path); err != nil {
		return errors.New(errors.ErrCodePidFile, "WritePidFile", "cannot rename "+tmp, err)
	}
	return nil
}

// Read returns the recorded pid.
func (p *PidFile) Read() (int, error) {
	data, err := afero.ReadFile(p.fs, p.path)
	if err != nil {
		return 0, errors.New(errors.ErrCodePidFile, "ReadPidFile", "cannot read "+p.path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, errors.New(errors.ErrCodePidFile, "ReadPidFile", fmt.Sprintf("bad pid in %s: %q", p.path, data), err)
	}
	return pid, nil
}

// Remove deletes the file if it still records pid.
func (p *PidFile) Remove(pid int) error {
	cur, err := p.Read()
	if err != nil || cur != pid {
		return nil
	}
	if err := p.fs.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return errors.New(errors.ErrCodePidFile, "RemovePidFile", "cannot remove "+p.path, err)
	}
	return nil
}

// Personal.AI order the ending
