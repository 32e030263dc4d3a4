package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sosinternet/internal/config"
	"sosinternet/internal/history"
	"sosinternet/internal/metrics"
	"sosinternet/internal/policy"
	"sosinternet/internal/server"
	"sosinternet/internal/watchdog"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd(env *cliEnv) *cobra.Command {
	var noServer bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor the connection and reboot the router when it stays down",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := env.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if noServer {
				cfg.Server.Enabled = false
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
	cmd.Flags().BoolVar(&noServer, "no-server", false, "do not start the HTTP status server")
	return cmd
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if err := cfg.RequireRouter(); err != nil {
		return err
	}

	checker, err := buildProbe(cfg.Connection, logger)
	if err != nil {
		return err
	}
	act, err := buildActuator(cfg.Router, logger)
	if err != nil {
		return err
	}
	pol, err := policy.New(cfg.Connection.Policy())
	if err != nil {
		return err
	}
	if err := preflight(ctx, act, logger); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := history.NewRecorder(history.CapacityFor(pol.Settings().CheckInterval, cfg.Log.RetentionDays), 0)
	hub := server.NewHub()
	sinks := watchdog.Sinks{
		watchdog.LogSink{Logger: logger.Named("watchdog")},
		recorder,
		metrics.NewCollector(reg),
		hub,
	}

	wd, err := watchdog.New(checker, act, pol,
		watchdog.WithSink(sinks),
		watchdog.WithLogger(logger.Named("watchdog")),
	)
	if err != nil {
		return err
	}

	logger.Info("watchdog configured",
		zap.Int("check_interval_seconds", cfg.Connection.CheckIntervalSeconds),
		zap.Int("retries_before_reboot", cfg.Connection.RetriesBeforeReboot),
		zap.Int("post_reboot_wait_seconds", cfg.Connection.PostRebootWaitSeconds),
		zap.String("probe_method", cfg.Connection.ProbeMethod),
		zap.Strings("probe_targets", cfg.Connection.ProbeTargets),
		zap.String("router_driver", cfg.Router.Driver),
	)

	wd.Start()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Addr, wd, recorder, hub,
			server.WithGatherer(reg),
			server.WithLogger(logger.Named("server")),
		)
		g.Go(srv.Run)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		wd.Stop()
		return nil
	})

	err = g.Wait()
	logger.Info("sosinternet stopped")
	return err
}
