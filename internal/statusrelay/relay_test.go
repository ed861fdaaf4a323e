package statusrelay

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/Arbor/internal/controller"
	"github.com/turtacn/Arbor/internal/inspect"
	"github.com/turtacn/Arbor/pkg/consts"
	"github.com/turtacn/Arbor/pkg/errors"
)

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_PrepareSocketReplacesStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbor.sock")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	s := NewServer(path, nil)
	l, err := s.PrepareSocket()
	require.NoError(t, err)
	defer l.Close()

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.ModeSocket, fi.Mode()&os.ModeSocket)
}

func TestServer_ServeAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbor.sock")
	var queries atomic.Int32
	s := NewServer(path, func() Report {
		queries.Add(1)
		return Report{
			Service: "echo",
			Phase:   "RUNNING",
			Process: controller.Snapshot{Pid: 10, Role: consts.RoleRoot, Children: []int{11, 12}},
			Children: []inspect.ProcInfo{
				{Pid: 11, State: "S", Alive: true},
				{Pid: 12, State: "Z"},
			},
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	waitForSocket(t, path)

	r, err := Query(path, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "echo", r.Service)
	assert.Equal(t, []int{11, 12}, r.Process.Children)
	assert.Equal(t, consts.RoleRoot, r.Process.Role)
	require.Len(t, r.Children, 2)
	assert.False(t, r.Children[1].Alive)

	_, err = Query(path, time.Second)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.EqualValues(t, 2, queries.Load())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket removed on shutdown")
}

func TestQuery_NoServer(t *testing.T) {
	_, err := Query(filepath.Join(t.TempDir(), "missing.sock"), 100*time.Millisecond)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStatusRelay))
}

func TestServer_ShutdownRemovesSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbor.sock")
	s := NewServer(path, func() Report { return Report{Phase: "RUNNING"} })

	done := make(chan error, 1)
	go func() { done <- s.Serve(context.Background()) }()
	waitForSocket(t, path)

	s.Shutdown()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket removed before Shutdown returns")

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
	s.Shutdown()
}

func TestServer_ShutdownBeforeServe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arbor.sock")
	s := NewServer(path, nil)
	s.Shutdown()

	assert.NoError(t, s.Serve(context.Background()))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
