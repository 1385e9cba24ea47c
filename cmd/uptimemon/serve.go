package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemon/internal/config"
	"github.com/hamed0406/uptimemon/internal/httpapi"
	apimw "github.com/hamed0406/uptimemon/internal/httpapi/middleware"
	"github.com/hamed0406/uptimemon/internal/logging"
	"github.com/hamed0406/uptimemon/internal/metrics"
	"github.com/hamed0406/uptimemon/internal/probe"
	"github.com/hamed0406/uptimemon/internal/promquery"
	"github.com/hamed0406/uptimemon/internal/registry"
	"github.com/hamed0406/uptimemon/internal/repo"
	"github.com/hamed0406/uptimemon/internal/scheduler"
	"github.com/hamed0406/uptimemon/internal/state"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitoring daemon",
	Long: `Run the monitoring daemon until SIGINT or SIGTERM.

The API listens on ADDR (default :3000) and metrics on METRICS_ADDR
(default :3001). On shutdown no new checks start; running checks get
SHUTDOWN_GRACE_MS to finish and are then cancelled.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	path, _ := cmd.Flags().GetString("settings")
	settings, err := config.Load(path)
	if err != nil {
		logger.Error("settings_invalid", zap.String("path", path), zap.Error(err))
		return err
	}
	reg, err := registry.New(settings.Monitors)
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	logger.Info("settings_loaded", zap.String("path", path), zap.Int("monitors", reg.Len()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker := state.NewTracker()
	prom := metrics.NewPrometheus(appName, tracker)
	prom.Register(reg.Snapshot())

	history, err := repo.Open(ctx, cfg.DatabaseURL, cfg.HistoryLimit, logger)
	if err != nil {
		return err
	}
	defer history.Close()

	sched := scheduler.New(logger, reg, tracker,
		probe.NewHTTPProber(logger, appName+"/"+version),
		metrics.Fanout(prom, repo.NewSink(history, 0)),
		scheduler.Config{
			Tick:          cfg.Tick,
			ProbeTimeout:  cfg.ProbeTimeout,
			MaxConcurrent: cfg.MaxConcurrent,
			QueueSize:     cfg.QueueSize,
			ShutdownGrace: cfg.ShutdownGrace,
		})

	api := newAPI(cfg, logger, reg, tracker, history, sched)
	api.Metrics = prom.Handler()
	api.Reload = func(ctx context.Context) (int, error) {
		next, err := config.Load(path)
		if err != nil {
			return 0, err
		}
		if err := reg.Replace(next.Monitors); err != nil {
			return 0, err
		}
		prom.Register(next.Monitors)
		dropped := tracker.Retain(next.Monitors)
		logger.Info("registry_replaced", zap.Int("monitors", len(next.Monitors)), zap.Int("state_dropped", dropped))
		sched.Wake()
		return len(next.Monitors), nil
	}

	promURL := cfg.PrometheusURL
	if promURL == "" {
		promURL = settings.PrometheusURL
	}
	if promURL != "" {
		pq, err := promquery.New(promURL, logger)
		if err != nil {
			return err
		}
		api.Stats = pq
	}

	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	servers := []*http.Server{
		{
			Addr:              cfg.Addr,
			Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
			ReadHeaderTimeout: 10 * time.Second,
		},
		{
			Addr:              cfg.MetricsAddr,
			Handler:           api.MetricsRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(ctx) }()

	listenErr := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("api_listen", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				listenErr <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case runErr = <-listenErr:
		logger.Error("listener_failed", zap.Error(runErr))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+5*time.Second)
	defer cancel()
	for _, srv := range servers {
		runErr = multierr.Append(runErr, srv.Shutdown(shutdownCtx))
	}
	runErr = multierr.Append(runErr, <-schedDone)
	logger.Info("shutdown_complete", zap.Int("in_flight", sched.InFlight()))
	return runErr
}

// newAPI builds the HTTP server over the running components. The detail view
// lists as many outcomes as the history store retains.
func newAPI(cfg config.Config, logger *zap.Logger, reg *registry.Registry, tracker *state.Tracker, history repo.OutcomeStore, live httpapi.Liveness) *httpapi.Server {
	api := httpapi.NewServer(logger, reg, tracker, history, live)
	if cfg.HistoryLimit > 0 {
		api.HistoryLimit = cfg.HistoryLimit
	}
	return api
}
