package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/metaworking/meshsync/pkg/meshsync"
	"github.com/metaworking/meshsync/pkg/receiver"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept sync connections and mirror the received scenes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runServe(ctx, a.cfg.Receiver)
		},
	}
	a.flags.AddReceiverFlags(cmd.Flags())
	return cmd
}

func runServe(ctx context.Context, settings receiver.Settings) error {
	logger := meshsync.RootLogger()

	srv, err := receiver.Listen(settings)
	if err != nil {
		return err
	}
	srv.SceneReceived.Listen(func(data receiver.SceneReceivedEventData) {
		logger.Info("scene updated",
			zap.String("session", data.Session.Name()),
			zap.Uint64("seq", data.Message.Seq),
			zap.Int("entities", len(data.Session.Paths())),
		)
	})

	if settings.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: settings.MetricsAddress, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
		defer metricsServer.Close()
	}

	fields := []zap.Field{zap.String("address", srv.Addr().String())}
	if settings.ConvertTo != nil {
		fields = append(fields, zap.Stringer("convert_to", *settings.ConvertTo))
	}
	logger.Info("serving", fields...)
	return srv.Serve(ctx)
}
