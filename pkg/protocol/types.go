package protocol

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/turtacn/Arbor/pkg/consts"
	"github.com/turtacn/Arbor/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the root configuration of an Arbor process tree.
type Config struct {
	Version       string              `yaml:"version"`
	Service       ServiceConfig       `yaml:"service"`
	Supervisor    SupervisorConfig    `yaml:"supervisor"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServiceConfig struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"` // Run by every worker; empty means idle workers
	Env     []string `yaml:"env"`
}

type SupervisorConfig struct {
	Workers      int      `yaml:"workers"`
	Daemonize    bool     `yaml:"daemonize"`
	ThrowOnError bool     `yaml:"throw_on_error"`
	PidFile      string   `yaml:"pidfile"`
	StatusSocket string   `yaml:"status_socket"`
	Listen       []string `yaml:"listen"` // Bound once by the root, inherited by workers

	// TermQuietPeriod is how long after a termination signal the counter
	// keeps accumulating. Zero resets it on every signal (no KILL escalation).
	TermQuietPeriod string `yaml:"term_quiet_period"`
	StopTimeout     string `yaml:"stop_timeout"`

	workersSet bool
}

// UnmarshalYAML records whether workers was given, so an explicit 0 is
// rejected instead of replaced by the default.
func (s *SupervisorConfig) UnmarshalYAML(n *yaml.Node) error {
	type plain SupervisorConfig
	if err := n.Decode((*plain)(s)); err != nil {
		return err
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "workers" {
			s.workersSet = true
		}
	}
	return nil
}

type ObservabilityConfig struct {
	MetricsPort string `yaml:"metrics_port"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// Load reads and parses a YAML config from fs, then applies defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "LoadConfig", "cannot read "+path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "LoadConfig", "cannot parse "+path, err)
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Supervisor.Workers == 0 && !c.Supervisor.workersSet {
		c.Supervisor.Workers = 1
	}
	if c.Supervisor.PidFile == "" {
		c.Supervisor.PidFile = consts.DefaultPidFile
	}
	if c.Supervisor.StatusSocket == "" {
		c.Supervisor.StatusSocket = consts.DefaultStatusSocket
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	if c.Observability.LogFormat == "" {
		c.Observability.LogFormat = "json"
	}
}

// Validate rejects configurations the engine cannot run.
func (c *Config) Validate() error {
	if c.Supervisor.Workers < 1 {
		return errors.New(errors.ErrCodeConfigInvalid, "Validate", fmt.Sprintf("workers must be >= 1, got %d", c.Supervisor.Workers), nil)
	}
	if _, err := c.QuietPeriod(); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid, "Validate", "bad term_quiet_period", err)
	}
	if _, err := c.StopTimeout(); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid, "Validate", "bad stop_timeout", err)
	}
	return nil
}

func (c *Config) QuietPeriod() (time.Duration, error) {
	return parseDuration(c.Supervisor.TermQuietPeriod, 0)
}

func (c *Config) StopTimeout() (time.Duration, error) {
	return parseDuration(c.Supervisor.StopTimeout, consts.DefaultStopTimeout)
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// Personal.AI order the ending
