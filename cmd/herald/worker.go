package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petrijr/herald/pkg/bridge"
)

func newWorkerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Execute queued jobs against a remote bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := a.cfg
			logger := cfg.Logger()
			b := newBackends()
			defer func() { _ = b.Close(context.Background()) }()

			w, err := newWorker(ctx, cfg, b, newBridgeClient(a, logger), logger)
			if err != nil {
				return err
			}
			logger.Info("worker_starting",
				slog.String("bridge", cfg.Bridge.URL),
				slog.String("store", cfg.Store.Driver),
				slog.String("queue", cfg.Queue.Driver),
				slog.Int("concurrency", cfg.Worker.Concurrency),
			)
			return w.Run(ctx, cfg.Worker.Concurrency)
		},
	}
	cmd.Flags().Int("concurrency", 4, "number of concurrent job executions")
	_ = a.v.BindPFlag("worker.concurrency", cmd.Flags().Lookup("concurrency"))
	return cmd
}

func newBridgeClient(a *app, logger *slog.Logger) *bridge.Client {
	cfg := a.cfg
	return bridge.NewClient(bridge.ClientConfig{
		URL:          cfg.Bridge.URL,
		SecretKey:    cfg.Bridge.SecretKey,
		RetryMax:     cfg.Retry.MaxAttempts - 1,
		RetryWaitMin: cfg.Retry.Backoff,
		RetryWaitMax: cfg.Retry.MaxBackoff,
		Timeout:      cfg.Bridge.Timeout,
		Logger:       logger,
	})
}
