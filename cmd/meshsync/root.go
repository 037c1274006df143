package main

import (
	"fmt"

	"github.com/metaworking/meshsync/internal/config"
	"github.com/metaworking/meshsync/pkg/client"
	"github.com/metaworking/meshsync/pkg/meshsync"
	"github.com/metaworking/meshsync/pkg/receiver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

type app struct {
	flags  *config.Flags
	cfg    *config.Config
	stopFn func()
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{flags: config.NewFlags()}

	cmd := &cobra.Command{
		Use:           "meshsync",
		Short:         "Stream a 3D scene to a live receiver",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	a.flags.AddGlobalFlags(cmd.PersistentFlags())

	cmd.AddCommand(newSyncCommand(a), newServeCommand(a), newVersionCommand())
	return cmd, a
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := meshsync.InitLogs(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logs: %w", err)
	}
	meshsync.InitMetrics()
	client.InitMetrics()
	receiver.InitMetrics()

	a.stopFn = startProfiling(cfg.Profile)
	meshsync.RootLogger().Debug("loaded config", zap.String("command", cmd.Name()))
	return nil
}

// shutdown writes the profile and flushes the logs.
func (a *app) shutdown() {
	if a.stopFn != nil {
		a.stopFn()
		a.stopFn = nil
	}
	meshsync.RootLogger().Sync()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Skip the config and logging setup of the root command.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "meshsync", version)
		},
	}
}
