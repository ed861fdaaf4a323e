package inspect

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// ProcInfo is what procfs knows about one process.
type ProcInfo struct {
	Pid     int    `json:"pid"`
	PPid    int    `json:"ppid"`
	Pgrp    int    `json:"pgrp"`
	Session int    `json:"session"`
	Comm    string `json:"comm"`
	State   string `json:"state"`
	Alive   bool   `json:"alive"`
	Err     string `json:"error,omitempty"`
}

// Inspector reads process information from a procfs mount.
type Inspector struct {
	fs procfs.FS
}

// New opens the procfs mounted at mountPoint ("/proc" when empty).
func New(mountPoint string) (*Inspector, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", mountPoint, err)
	}
	return &Inspector{fs: fs}, nil
}

// Describe returns the procfs view of pid. A process that cannot be read is
// reported as not alive.
func (i *Inspector) Describe(pid int) ProcInfo {
	info := ProcInfo{Pid: pid}
	proc, err := i.fs.Proc(pid)
	if err != nil {
		info.Err = err.Error()
		return info
	}
	stat, err := proc.Stat()
	if err != nil {
		info.Err = err.Error()
		return info
	}
	info.PPid = stat.PPID
	info.Pgrp = stat.PGRP
	info.Session = stat.Session
	info.Comm = stat.Comm
	info.State = stat.State
	// Zombies are dead, just not reaped yet
	info.Alive = stat.State != "Z" && stat.State != "X"
	return info
}

// DescribeAll returns info for each pid in order.
func (i *Inspector) DescribeAll(pids []int) []ProcInfo {
	out := make([]ProcInfo, 0, len(pids))
	for _, pid := range pids {
		out = append(out, i.Describe(pid))
	}
	return out
}

// Alive reports whether pid exists and is not a zombie.
func (i *Inspector) Alive(pid int) bool {
	return i.Describe(pid).Alive
}

// Personal.AI order the ending
