package statusrelay

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"sync"
	"time"

	"github.com/turtacn/Arbor/internal/controller"
	"github.com/turtacn/Arbor/internal/inspect"
	"github.com/turtacn/Arbor/pkg/errors"
	"github.com/turtacn/Arbor/pkg/logger"
)

// Report is what a status query returns.
type Report struct {
	Service   string              `json:"service,omitempty"`
	Phase     string              `json:"phase"`
	Process   controller.Snapshot `json:"process"`
	Children  []inspect.ProcInfo  `json:"children,omitempty"`
	Listeners []string            `json:"listeners,omitempty"`
}

// Source builds a fresh report for each query.
type Source func() Report

// Server answers status queries on a unix socket.
type Server struct {
	socketPath string
	source     Source

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	stop     chan struct{}
}

func NewServer(path string, source Source) *Server {
	return &Server{socketPath: path, source: source, stop: make(chan struct{})}
}

// PrepareSocket creates the unix socket, replacing a stale one.
func (s *Server) PrepareSocket() (net.Listener, error) {
	if _, err := os.Stat(s.socketPath); err == nil {
		os.Remove(s.socketPath)
	}
	l, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStatusRelay, "PrepareSocket", s.socketPath, err)
	}
	// Only the owner may query the tree
	os.Chmod(s.socketPath, 0700)
	return l, nil
}

// Serve accepts connections until ctx is done, writing one JSON report per
// connection.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	l, err := s.PrepareSocket()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.listener = l
	s.mu.Unlock()
	defer s.Shutdown()

	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.stop:
		}
	}()

	logger.Log.Info("Status: Listening", "socket", s.socketPath)
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return nil
			}
			return errors.New(errors.ErrCodeStatusRelay, "Serve", "accept failed", err)
		}
		go s.handle(conn)
	}
}

// Shutdown stops accepting queries and removes the socket. It is safe to call
// more than once, and before or without Serve.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.stop)
	if s.listener != nil {
		s.listener.Close()
		os.Remove(s.socketPath)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	if err := json.NewEncoder(conn).Encode(s.source()); err != nil {
		logger.Log.Debug("Status: Write failed", "err", err)
	}
}

// Query fetches one report from the server at path.
func Query(path string, timeout time.Duration) (*Report, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStatusRelay, "Query", "cannot connect to "+path, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(timeout))
	var r Report
	if err := json.NewDecoder(conn).Decode(&r); err != nil {
		return nil, errors.New(errors.ErrCodeStatusRelay, "Query", "bad report", err)
	}
	return &r, nil
}

// Personal.AI order the ending
