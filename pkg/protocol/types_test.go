package protocol

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/Arbor/pkg/consts"
	"github.com/turtacn/Arbor/pkg/errors"
)

const sample = `
version: "1"
service:
  name: echo
  command: ["sleep", "30"]
supervisor:
  workers: 3
  throw_on_error: true
  listen: ["127.0.0.1:8080"]
  term_quiet_period: 10s
observability:
  log_level: debug
`

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/arbor.yaml", []byte(sample), 0o644))

	cfg, err := Load(fs, "/etc/arbor.yaml")
	require.NoError(t, err)

	assert.Equal(t, "echo", cfg.Service.Name)
	assert.Equal(t, []string{"sleep", "30"}, cfg.Service.Command)
	assert.Equal(t, 3, cfg.Supervisor.Workers)
	assert.True(t, cfg.Supervisor.ThrowOnError)
	assert.Equal(t, consts.DefaultPidFile, cfg.Supervisor.PidFile)
	assert.Equal(t, "json", cfg.Observability.LogFormat)

	qp, err := cfg.QuietPeriod()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, qp)

	st, err := cfg.StopTimeout()
	require.NoError(t, err)
	assert.Equal(t, consts.DefaultStopTimeout, st)
}

func TestLoad_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Load(fs, "/missing.yaml")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))

	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("service: ["), 0o644))
	_, err = Load(fs, "/bad.yaml")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))

	require.NoError(t, afero.WriteFile(fs, "/neg.yaml", []byte("supervisor:\n  workers: -2\n"), 0o644))
	_, err = Load(fs, "/neg.yaml")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))

	require.NoError(t, afero.WriteFile(fs, "/dur.yaml", []byte("supervisor:\n  stop_timeout: soon\n"), 0o644))
	_, err = Load(fs, "/dur.yaml")
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}

func TestDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{Supervisor: SupervisorConfig{Workers: 4, PidFile: "/run/x.pid"}}
	cfg.Defaults()
	assert.Equal(t, 4, cfg.Supervisor.Workers)
	assert.Equal(t, "/run/x.pid", cfg.Supervisor.PidFile)
	assert.Equal(t, consts.DefaultStatusSocket, cfg.Supervisor.StatusSocket)
}

func TestLoad_Workers(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, afero.WriteFile(fs, "/omitted.yaml", []byte("service:\n  name: web\n"), 0o644))
	cfg, err := Load(fs, "/omitted.yaml")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Supervisor.Workers)

	require.NoError(t, afero.WriteFile(fs, "/zero.yaml", []byte("supervisor:\n  workers: 0\n"), 0o644))
	_, err = Load(fs, "/zero.yaml")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
	assert.Contains(t, err.Error(), "workers must be >= 1")
}

func TestValidate_RejectsZeroWorkers(t *testing.T) {
	cfg := &Config{}
	assert.True(t, errors.IsCode(cfg.Validate(), errors.ErrCodeConfigInvalid))

	cfg.Defaults()
	assert.NoError(t, cfg.Validate())
}
