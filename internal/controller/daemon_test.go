package controller

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemonize_ParentExits(t *testing.T) {
	c, sys, fk := newTestController(100)
	fk.push(555, nil)
	rec := &recorder{}
	rec.on(c, allEvents...)

	require.NoError(t, c.Daemonize())

	assert.Equal(t, []int{0}, sys.exits)
	assert.Zero(t, sys.setsids)
	assert.Zero(t, rec.count(EventDaemonize))
	require.Len(t, fk.tickets, 1)
	assert.True(t, fk.tickets[0].Detach)
}

func TestDaemonize_ChildDetaches(t *testing.T) {
	c, sys, fk := newTestController(100)
	fk.push(0, nil)
	rec := &recorder{}
	rec.on(c, allEvents...)

	sid, err := c.SessionID()
	require.NoError(t, err)
	require.Equal(t, 100, sid)

	require.NoError(t, c.Daemonize())

	assert.Empty(t, sys.exits)
	assert.Equal(t, 1, sys.setsids)
	assert.Equal(t, 1, rec.count(EventDaemonize))
	sid, err = c.SessionID()
	require.NoError(t, err)
	assert.Equal(t, 1100, sid)
	assert.True(t, c.IsChild())
	assert.Equal(t, 1, c.Depth())
}

func TestDaemonize_ForkErrorContinuesInForeground(t *testing.T) {
	c, sys, fk := newTestController(100)
	fk.push(-1, syscall.EAGAIN)
	rec := &recorder{}
	rec.on(c, allEvents...)

	assert.NoError(t, c.Daemonize())
	assert.Empty(t, sys.exits)
	assert.Zero(t, sys.setsids)
	assert.Zero(t, rec.count(EventDaemonize))
	assert.Equal(t, 1, rec.count(EventForkError))
	assert.True(t, c.IsRoot())
}

func TestDetach_SessionLookupFailure(t *testing.T) {
	c, sys, _ := newTestController(100)
	sys.sidErr = syscall.ESRCH

	assert.Error(t, c.Detach())
}
