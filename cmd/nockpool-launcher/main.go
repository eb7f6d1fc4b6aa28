package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	launcher "github.com/swpsco/nockpool-launcher"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// RunFlags holds the launcher's command line flags.
type RunFlags struct {
	ConfigPath        string
	NoUpdate          bool
	DisableUpdateLoop bool
	UpdateURL         string
	DataDir           string
	MetricsListen     string
	ServerListen      string
}

// buildRoot creates the root command. Arguments after "--" are passed
// through unmodified to the miner process.
func buildRoot() *cobra.Command {
	flags := &RunFlags{}

	root := &cobra.Command{
		Use:   "nockpool-launcher [flags] [-- miner args...]",
		Short: "Keeps the nockpool miner installed, current, and running",
		Long: `nockpool-launcher installs the latest miner release, keeps it up to
date, and supervises the miner process.

Examples:
  nockpool-launcher                          # install/update, then run miner
  nockpool-launcher --no-update              # run the installed version as-is
  nockpool-launcher --disable-update-loop    # check once at startup only
  nockpool-launcher -- --pool wss://pool     # pass flags to the miner`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, args)
		},
	}

	root.Flags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.Flags().BoolVar(&flags.NoUpdate, "no-update", false, "skip the startup update check; requires an installed version")
	root.Flags().BoolVar(&flags.DisableUpdateLoop, "disable-update-loop", false, "check for updates at startup only")
	root.Flags().StringVar(&flags.UpdateURL, "update-url", "", "release manifest endpoint (overrides config)")
	root.Flags().StringVar(&flags.DataDir, "data-dir", "", "install directory (overrides config)")
	root.Flags().StringVar(&flags.MetricsListen, "metrics-listen", "", "expose Prometheus metrics on this address, e.g. :9090")
	root.Flags().StringVar(&flags.ServerListen, "server-listen", "", "expose the status HTTP API on this address")

	return root
}

func run(cmd *cobra.Command, flags *RunFlags, minerArgs []string) error {
	cfg := launcher.DefaultConfig()
	if flags.ConfigPath != "" {
		c, err := launcher.LoadConfig(flags.ConfigPath)
		if err != nil {
			return err
		}
		cfg = c
	}
	if flags.UpdateURL != "" {
		cfg.UpdateURL = flags.UpdateURL
	}
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}
	if flags.MetricsListen != "" {
		cfg.MetricsListen = flags.MetricsListen
	}
	if flags.ServerListen != "" {
		cfg.ServerListen = flags.ServerListen
	}

	l, err := launcher.New(launcher.Options{
		Config:            cfg,
		MinerArgs:         minerArgs,
		NoUpdate:          flags.NoUpdate,
		DisableUpdateLoop: flags.DisableUpdateLoop,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return l.Run(ctx)
}
