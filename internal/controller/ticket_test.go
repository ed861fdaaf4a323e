package controller

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/Arbor/pkg/consts"
)

func lookupFrom(env []string) func(string) (string, bool) {
	m := make(map[string]string)
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		m[k] = v
	}
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestTicket_EnvironRoundTrip(t *testing.T) {
	in := Ticket{ParentPid: 77, Depth: 3, Detach: true, RunID: "r"}
	out, ok := ParseTicket(lookupFrom(in.Environ()))
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestTicket_Malformed(t *testing.T) {
	cases := [][]string{
		nil,
		{consts.EnvForkParent + "=abc", consts.EnvForkDepth + "=0"},
		{consts.EnvForkParent + "=0", consts.EnvForkDepth + "=0"},
		{consts.EnvForkParent + "=5", consts.EnvForkDepth + "=-1"},
		{consts.EnvForkParent + "=5"},
	}
	for _, env := range cases {
		_, ok := ParseTicket(lookupFrom(env))
		assert.False(t, ok, "%v", env)
	}
}

func TestInherited(t *testing.T) {
	t.Setenv(consts.EnvForkParent, "")
	assert.Equal(t, LineageNone, Inherited())

	t.Setenv(consts.EnvForkParent, "12")
	t.Setenv(consts.EnvForkDepth, "0")
	t.Setenv(consts.EnvForkDetach, "")
	assert.Equal(t, LineageFork, Inherited())

	t.Setenv(consts.EnvForkDetach, "1")
	assert.Equal(t, LineageDaemon, Inherited())

	tk, ok := consumeEnvTicket()
	require.True(t, ok)
	assert.Equal(t, 12, tk.ParentPid)
	assert.Equal(t, LineageNone, Inherited())
}

func TestScrubTicket(t *testing.T) {
	env := []string{"PATH=/bin", consts.EnvForkParent + "=1", consts.EnvInheritedFDs + "=2", "HOME=/root"}
	assert.Equal(t, []string{"PATH=/bin", "HOME=/root"}, scrubTicket(env))
}

func TestReexecForker_StartsProcessWithTicket(t *testing.T) {
	f := &ReexecForker{
		Path: "/bin/sh",
		Args: []string{"sh", "-c", `test "$` + consts.EnvForkDepth + `" = 4 || exit 7; exit 3`},
	}
	pid, err := f.Fork(Ticket{ParentPid: 1, Depth: 4})
	require.NoError(t, err)
	require.Greater(t, pid, 0)

	sys := unixSystem{}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		exited, status, err := sys.WaitNoHang(pid)
		require.NoError(t, err)
		if exited {
			assert.Equal(t, 3, status)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("child did not exit")
}

func TestReexecForker_MissingBinary(t *testing.T) {
	f := &ReexecForker{Path: "/nonexistent/arbor", Args: []string{"arbor"}}
	pid, err := f.Fork(Ticket{ParentPid: 1})
	assert.Error(t, err)
	assert.Equal(t, consts.ForkFailed, pid)
}
