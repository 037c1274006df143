package main

import (
	"context"
	"fmt"

	"github.com/metaworking/meshsync/internal/config"
	"github.com/metaworking/meshsync/pkg/client"
	"github.com/metaworking/meshsync/pkg/host/memhost"
	"github.com/metaworking/meshsync/pkg/meshsync"
	"github.com/metaworking/meshsync/pkg/meshsyncpb"
	"github.com/metaworking/meshsync/pkg/scene"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSyncCommand(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sync SCENE_FILE",
		Short: "Export a scene description and send it to the receiver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runSync(ctx, a.cfg, args[0], dryRun, cmd)
		},
	}
	a.flags.AddClientFlags(cmd.Flags())
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "export and encode the scene without connecting")
	return cmd
}

func runSync(ctx context.Context, cfg *config.Config, path string, dryRun bool, cmd *cobra.Command) error {
	logger := meshsync.RootLogger()

	hostScene, err := memhost.LoadFile(path)
	if err != nil {
		return err
	}

	var sender meshsync.Sender
	if !dryRun {
		cl, err := client.Dial(ctx, cfg.Sync.ClientSettings)
		if err != nil {
			return err
		}
		defer cl.Close()
		sender = cl
	}

	c := meshsync.NewContext(cfg.Sync, hostScene, sender)
	defer c.Close()

	report := c.SyncAll()
	logger.Info("exported scene",
		zap.String("file", path),
		zap.Int("transforms", report.Exported[scene.EntityTransform]),
		zap.Int("meshes", report.Exported[scene.EntityMesh]),
		zap.Int("cameras", report.Exported[scene.EntityCamera]),
		zap.Int("lights", report.Exported[scene.EntityLight]),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", report.Duration),
	)
	if report.Err != nil {
		logger.Warn("some objects were skipped", zap.Error(report.Err))
	}

	if !c.Prepare() {
		logger.Info("nothing to send")
		return nil
	}

	if dryRun {
		msg := &meshsyncpb.SetMessage{SetMessage: *c.Prepared()}
		body, err := msg.Marshal()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seq %d: %d entities, %d materials, %d clips, %d bytes\n",
			msg.Seq, len(msg.Scene.Objects), len(msg.Scene.Materials), len(msg.Scene.Animations), len(body))
		return nil
	}

	seq := c.Prepared().Seq
	if err := c.Send(); err != nil {
		return err
	}
	if err := c.Wait(ctx); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	logger.Info("sent scene", zap.Uint64("seq", seq))
	return nil
}
