package resource

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/turtacn/Arbor/pkg/consts"
	"github.com/turtacn/Arbor/pkg/logger"
	"golang.org/x/sys/unix"
)

// SocketManager owns the listening sockets of a pre-fork tree. The root binds
// them once; every forked worker inherits them from fd 3 on and passes them
// to its service command.
type SocketManager struct {
	mu sync.Mutex

	// Active listeners keyed by canonical address
	listeners map[string]net.Listener
	files     map[string]*os.File
	aliases   map[string]string // requested -> canonical

	// Inherited but not yet claimed listeners
	inherited map[string]*inheritedSocket

	discovered bool
}

type inheritedSocket struct {
	listener net.Listener
	file     *os.File
}

func NewSocketManager() *SocketManager {
	return &SocketManager{
		listeners: make(map[string]net.Listener),
		files:     make(map[string]*os.File),
		aliases:   make(map[string]string),
		inherited: make(map[string]*inheritedSocket),
	}
}

func isSocket(fd uintptr) bool {
	var stat unix.Stat_t
	if err := unix.Fstat(int(fd), &stat); err != nil {
		return false
	}
	return stat.Mode&unix.S_IFMT == unix.S_IFSOCK
}

func setNonblock(l net.Listener) {
	tcpL, ok := l.(*net.TCPListener)
	if !ok {
		return
	}
	if rawConn, err := tcpL.SyscallConn(); err == nil {
		rawConn.Control(func(fd uintptr) {
			_ = unix.SetNonblock(int(fd), true)
		})
	}
}

func (sm *SocketManager) discoverInherited() {
	if sm.discovered {
		return
	}
	sm.discovered = true

	count, err := strconv.Atoi(os.Getenv(consts.EnvInheritedFDs))
	if err != nil || count <= 0 {
		return
	}
	// Clear it so processes started later only see what we pass explicitly
	os.Unsetenv(consts.EnvInheritedFDs)

	logger.Log.Info("Resource: Discovering inherited sockets", "count", count)
	for i := 0; i < count; i++ {
		fd := 3 + i
		if !isSocket(uintptr(fd)) {
			logger.Log.Warn("Resource: FD is not a socket, skipping", "fd", fd)
			continue
		}
		f := os.NewFile(uintptr(fd), "listener")
		if f == nil {
			continue
		}
		l, err := net.FileListener(f)
		if err != nil {
			// The fd may not be ours to close
			logger.Log.Error("Resource: Failed to create listener from FD", "fd", fd, "err", err)
			continue
		}
		setNonblock(l)

		addr := l.Addr().String()
		sm.inherited[addr] = &inheritedSocket{listener: l, file: f}
		logger.Log.Debug("Resource: Discovered inherited socket", "addr", addr, "fd", fd)
	}
}

// sameAddr reports whether a listener bound at canonical satisfies a request
// for requested, treating an empty or unspecified host as a wildcard.
func sameAddr(requested, canonical string) bool {
	if requested == canonical {
		return true
	}
	rh, rp, err := net.SplitHostPort(requested)
	if err != nil {
		return false
	}
	ch, cp, err := net.SplitHostPort(canonical)
	if err != nil || rp != cp || rp == "0" {
		return false
	}
	if rh == ch {
		return true
	}
	ip := net.ParseIP(ch)
	wildcard := rh == "" || rh == "0.0.0.0" || rh == "::"
	return wildcard && ip != nil && ip.IsUnspecified()
}

func (sm *SocketManager) lookupLocked(addr string) (string, bool) {
	if c, ok := sm.aliases[addr]; ok {
		return c, true
	}
	for c := range sm.listeners {
		if sameAddr(addr, c) {
			return c, true
		}
	}
	return "", false
}

// EnsureListener returns a listener for addr, either already active, inherited
// from the parent, or freshly bound.
func (sm *SocketManager) EnsureListener(addr string) (net.Listener, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if c, ok := sm.lookupLocked(addr); ok {
		return sm.listeners[c], nil
	}

	sm.discoverInherited()
	for c, is := range sm.inherited {
		if !sameAddr(addr, c) {
			continue
		}
		logger.Log.Info("Resource: Claiming inherited socket", "addr", c)
		sm.listeners[c] = is.listener
		sm.files[c] = is.file
		sm.aliases[addr] = c
		delete(sm.inherited, c)
		return is.listener, nil
	}

	logger.Log.Info("Resource: Binding new listener", "addr", addr)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	tcpL, ok := l.(*net.TCPListener)
	if !ok {
		l.Close()
		return nil, fmt.Errorf("listener is not a TCP listener")
	}
	f, err := tcpL.File()
	if err != nil {
		l.Close()
		return nil, err
	}
	// File() leaves the socket in blocking mode
	setNonblock(l)

	c := l.Addr().String()
	sm.listeners[c] = l
	sm.files[c] = f
	sm.aliases[addr] = c
	return l, nil
}

// EnsureAll binds or claims every address in addrs.
func (sm *SocketManager) EnsureAll(addrs []string) error {
	for _, a := range addrs {
		if _, err := sm.EnsureListener(a); err != nil {
			return fmt.Errorf("listen %s: %w", a, err)
		}
	}
	return nil
}

// GetFiles returns all managed file descriptors to pass to a child, sorted by
// address so every child sees the same fd layout.
func (sm *SocketManager) GetFiles() []*os.File {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	addrs := make([]string, 0, len(sm.files))
	for addr := range sm.files {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	files := make([]*os.File, 0, len(sm.files))
	for _, addr := range addrs {
		files = append(files, sm.files[addr])
	}
	return files
}

// Addrs returns the canonical addresses of the active listeners.
func (sm *SocketManager) Addrs() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]string, 0, len(sm.listeners))
	for a := range sm.listeners {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (sm *SocketManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for addr, l := range sm.listeners {
		l.Close()
		if f, ok := sm.files[addr]; ok {
			f.Close()
		}
	}
	sm.listeners = make(map[string]net.Listener)
	sm.files = make(map[string]*os.File)
	sm.aliases = make(map[string]string)

	for _, is := range sm.inherited {
		is.listener.Close()
		is.file.Close()
	}
	sm.inherited = make(map[string]*inheritedSocket)
}

// Personal.AI order the ending
