package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/herald"
	"github.com/petrijr/herald/internal/config"
	"github.com/petrijr/herald/internal/orchestrator"
	"github.com/petrijr/herald/pkg/api"
	"github.com/petrijr/herald/pkg/bridge"
	"github.com/petrijr/herald/pkg/observability"
	"github.com/petrijr/herald/pkg/worker"
)

const triggerPath = "/v1/events/trigger"

func newServeCmd(a *app) *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo workflows over the bridge endpoint",
		Long: `serve starts an HTTP server exposing the bridge endpoint for the built-in
demo workflows, plus Prometheus metrics. With --worker it also runs a job
worker against the configured store and queue and accepts triggers on
` + triggerPath + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, withWorker)
		},
	}
	cmd.Flags().String("addr", ":4000", "listen address")
	cmd.Flags().BoolVar(&withWorker, "worker", false, "run an embedded job worker")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, withWorker bool) error {
	logger := cfg.Logger()

	if cfg.Tracing.Endpoint != "" {
		shutdown, err := observability.InitTracer(ctx, observability.TracerConfig{
			Endpoint:       cfg.Tracing.Endpoint,
			ServiceName:    "herald",
			ServiceVersion: version,
			Insecure:       cfg.Tracing.Insecure,
		})
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Warn("tracer_shutdown_failed", slog.Any("error", err))
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promObs, err := observability.NewPrometheusObserver(reg)
	if err != nil {
		return err
	}

	client := herald.NewClient(
		herald.WithObserver(herald.NewCompositeObserver(herald.NewLoggingObserver(logger), promObs)),
		herald.WithOutputValidation(api.ExecutionPolicy(cfg.Engine.OutputValidation)),
	)
	if err := registerDemoWorkflows(client); err != nil {
		return err
	}

	e := newServer(cfg, client, logger, reg)

	g, ctx := errgroup.WithContext(ctx)
	if withWorker {
		b := newBackends()
		defer func() { _ = b.Close(context.Background()) }()
		w, err := newWorker(ctx, cfg, b, bridge.NewLocalTransport(client), logger)
		if err != nil {
			return err
		}
		e.POST(triggerPath, triggerHandler(client, w, cfg))
		g.Go(func() error { return w.Run(ctx, cfg.Worker.Concurrency) })
	}

	g.Go(func() error {
		logger.Info("server_starting", slog.String("addr", cfg.Server.Addr), slog.String("bridge", cfg.Server.Path))
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("server_stopping")
		return e.Shutdown(sctx)
	})
	return g.Wait()
}

func newServer(cfg *config.Config, client api.Client, logger *slog.Logger, reg *prometheus.Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("herald"))

	bridge.NewHandler(client,
		bridge.WithSecretKey(cfg.Bridge.SecretKey),
		bridge.WithStrictAuthentication(cfg.Bridge.StrictAuthentication),
		bridge.WithLogger(logger),
	).Register(e, cfg.Server.Path)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}
	return e
}

// triggerRequest is the body accepted on the trigger endpoint.
type triggerRequest struct {
	Name          string                    `json:"name"`
	To            map[string]any            `json:"to"`
	Payload       map[string]any            `json:"payload"`
	Overrides     map[string]map[string]any `json:"overrides"`
	TransactionID string                    `json:"transactionId"`
}

type triggerResponse struct {
	TransactionID string   `json:"transactionId"`
	Jobs          []string `json:"jobs"`
}

func triggerHandler(client api.Client, w *worker.Worker, cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req triggerRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		var wf *api.DiscoverWorkflowOutput
		for _, d := range client.Discover().Workflows {
			if d.WorkflowID == req.Name {
				wf = &d
				break
			}
		}
		if wf == nil {
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found: "+req.Name)
		}
		run, err := w.Trigger(c.Request().Context(), wf, worker.TriggerInput{
			EnvironmentID: "default",
			TransactionID: req.TransactionID,
			Subscriber:    req.To,
			Payload:       req.Payload,
			Overrides:     req.Overrides,
			BridgeURL:     cfg.Bridge.URL,
		})
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		resp := triggerResponse{TransactionID: run.TransactionID}
		for _, j := range run.Jobs {
			resp.Jobs = append(resp.Jobs, j.ID)
		}
		return c.JSON(http.StatusCreated, resp)
	}
}

// newWorker wires the configured store and queue to an executor sending
// jobs through transport.
func newWorker(ctx context.Context, cfg *config.Config, b *backends, transport bridge.Transport, logger *slog.Logger) (*worker.Worker, error) {
	store, err := b.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	queue, err := b.openQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ex := orchestrator.NewBridgeJobExecutor(store, transport, orchestrator.WithLogger(logger))
	return worker.NewWithConfig(ex, store, queue, worker.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     cfg.Retry.Backoff,
		MaxBackoff:  cfg.Retry.MaxBackoff,
		PollTimeout: cfg.Worker.PollInterval,
		Logger:      logger,
	}), nil
}
