package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/turtacn/Arbor/internal/orchestrator"
	"github.com/turtacn/Arbor/internal/pidfile"
	"github.com/turtacn/Arbor/internal/signaller"
	"github.com/turtacn/Arbor/internal/statusrelay"
	"github.com/turtacn/Arbor/pkg/consts"
	"github.com/turtacn/Arbor/pkg/logger"
	"github.com/turtacn/Arbor/pkg/protocol"
)

var (
	cfgFile      string
	daemonize    bool
	pidPath      string
	socketPath   string
	stopTimeout  time.Duration
	relayTimeout time.Duration

	appFs        = afero.NewOsFs()
	exit         = os.Exit
	newSignaller = signaller.New
)

var rootCmd = &cobra.Command{
	Use:           "arbor",
	Short:         "Arbor: a forking process-tree supervisor",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the supervisor and fork its workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := protocol.Load(appFs, cfgFile)
		if err != nil {
			return err
		}
		if daemonize {
			cfg.Supervisor.Daemonize = true
		}

		logger.InitLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
		logger.Log.Info("Booting Arbor supervisor...", "service", cfg.Service.Name, "workers", cfg.Supervisor.Workers)

		if code := orchestrator.NewEngine(cfg).Run(); code != 0 {
			exit(code)
		}
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running supervisor (SIGTERM, then SIGKILL after --timeout)",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := runningPid(cmd)
		if err != nil {
			return err
		}
		escalated, err := newSignaller().Stop(cmd.Context(), pid, stopTimeout)
		if err != nil {
			return err
		}
		if escalated {
			fmt.Fprintf(cmd.OutOrStdout(), "Supervisor %d killed after %s\n", pid, stopTimeout)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Supervisor %d stopped\n", pid)
		}
		return nil
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Replace the workers of a running supervisor (SIGHUP)",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := runningPid(cmd)
		if err != nil {
			return err
		}
		if err := newSignaller().Send(pid, syscall.SIGHUP); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reload requested for supervisor %d\n", pid)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the process tree of a running supervisor as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := socketPath
		if !cmd.Flags().Changed("socket") {
			if cfg := optionalConfig(); cfg != nil {
				path = cfg.Supervisor.StatusSocket
			}
		}
		report, err := statusrelay.Query(path, relayTimeout)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

// runningPid reads the supervisor pid from --pidfile, or from the pidfile
// named by the config when the flag is not given.
func runningPid(cmd *cobra.Command) (int, error) {
	path := pidPath
	if !cmd.Flags().Changed("pidfile") {
		if cfg := optionalConfig(); cfg != nil {
			path = cfg.Supervisor.PidFile
		}
	}
	return pidfile.New(appFs, path).Read()
}

func optionalConfig() *protocol.Config {
	cfg, err := protocol.Load(appFs, cfgFile)
	if err != nil {
		logger.Log.Debug("CLI: No usable config, using flag defaults", "path", cfgFile, "err", err)
		return nil
	}
	return cfg
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "arbor.yaml", "config file path")

	startCmd.Flags().BoolVar(&daemonize, "daemon", false, "detach from the terminal after start")

	for _, c := range []*cobra.Command{stopCmd, reloadCmd} {
		c.Flags().StringVar(&pidPath, "pidfile", consts.DefaultPidFile, "supervisor pidfile")
	}
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", consts.DefaultStopTimeout, "grace period before SIGKILL")

	statusCmd.Flags().StringVar(&socketPath, "socket", consts.DefaultStatusSocket, "status socket path")
	statusCmd.Flags().DurationVar(&relayTimeout, "timeout", consts.DefaultRelayTimeout, "query timeout")

	rootCmd.AddCommand(startCmd, stopCmd, reloadCmd, statusCmd)
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exit(1)
	}
}

// Personal.AI order the ending
