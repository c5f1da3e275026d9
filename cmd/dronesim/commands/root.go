// Package commands implements the dronesim CLI surface: a single cobra
// root command taking one positional argument, the network configuration
// path, staged the way the teacher's cmd/skywire-visor root command
// chains startLogger().readConfig().runNode().waitOsSignals().stopNode().
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gaecan04/krusty-club/pkg/netconfig"
	"github.com/gaecan04/krusty-club/pkg/simlog"
	"github.com/gaecan04/krusty-club/pkg/simnet"
)

// Exit codes per spec.md §6.
const (
	exitOK             = 0
	exitConfigInvalid  = 2
	exitRuntimeFailure = 1
)

type runCfg struct {
	args       []string
	configPath string
	logLevel   string

	master *simlog.Master
	net    *netconfig.NetworkConfig
	sim    *simnet.Simulation
	cancel context.CancelFunc

	exitCode int
}

var cfg *runCfg

var rootCmd = &cobra.Command{
	Use:   "dronesim [config-path]",
	Short: "Run a drone-messaging-network simulation from a TOML network config",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		cfg.args = args

		cfg.startLogger().
			readConfig().
			buildSimulation().
			runSimulation().
			waitOsSignals().
			stopSimulation()
	},
}

func init() {
	cfg = &runCfg{}
	rootCmd.Flags().StringVarP(&cfg.logLevel, "log-level", "l", "info", "log level: debug, info, warn, error")
}

// Execute runs the root command and exits the process with the code the
// run accumulated (spec.md §6: 0 normal, 2 config invalid, 1 runtime
// failure).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitRuntimeFailure)
	}
	os.Exit(cfg.exitCode)
}

func (cfg *runCfg) startLogger() *runCfg {
	cfg.master = simlog.NewMaster()
	if err := cfg.master.SetLevelFromString(cfg.logLevel); err != nil {
		cfg.master.PackageLogger("cli").WithError(err).Warn("unrecognized log level, keeping default")
	}
	return cfg
}

func (cfg *runCfg) readConfig() *runCfg {
	if cfg.exitCode != exitOK {
		return cfg
	}
	cfg.configPath = cfg.args[0]

	net, err := netconfig.Load(cfg.configPath)
	if err != nil {
		cfg.master.PackageLogger("cli").WithError(err).Error("configuration invalid")
		cfg.exitCode = exitConfigInvalid
		return cfg
	}
	cfg.net = net
	return cfg
}

func (cfg *runCfg) buildSimulation() *runCfg {
	if cfg.exitCode != exitOK {
		return cfg
	}
	sim, err := simnet.Build(cfg.net, cfg.master)
	if err != nil {
		cfg.master.PackageLogger("cli").WithError(err).Error("failed to build simulation")
		cfg.exitCode = exitConfigInvalid
		return cfg
	}
	cfg.sim = sim
	return cfg
}

func (cfg *runCfg) runSimulation() *runCfg {
	if cfg.exitCode != exitOK {
		return cfg
	}
	ctx, cancel := context.WithCancel(context.Background())
	cfg.cancel = cancel
	go cfg.sim.Run(ctx)
	cfg.master.PackageLogger("cli").WithField("config", cfg.configPath).Info("simulation running")
	return cfg
}

func (cfg *runCfg) waitOsSignals() *runCfg {
	if cfg.exitCode != exitOK {
		return cfg
	}
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	return cfg
}

func (cfg *runCfg) stopSimulation() *runCfg {
	if cfg.cancel != nil {
		cfg.cancel()
	}
	if cfg.exitCode == exitOK {
		cfg.master.PackageLogger("cli").Info("simulation stopped")
	}
	return cfg
}
