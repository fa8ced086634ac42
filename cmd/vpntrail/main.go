package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vpntrail/vpntrail/internal/config"
	"github.com/vpntrail/vpntrail/internal/correlator"
	"github.com/vpntrail/vpntrail/internal/health"
	"github.com/vpntrail/vpntrail/internal/logging"
	"github.com/vpntrail/vpntrail/internal/metrics"
	"github.com/vpntrail/vpntrail/internal/position"
	"github.com/vpntrail/vpntrail/internal/runner"
	"github.com/vpntrail/vpntrail/internal/sampler"
	"github.com/vpntrail/vpntrail/internal/server"
	"github.com/vpntrail/vpntrail/internal/shutdown"
	"github.com/vpntrail/vpntrail/internal/sink"
	"github.com/vpntrail/vpntrail/internal/tailer"
	"github.com/vpntrail/vpntrail/internal/tracing"
)

var (
	configFile = flag.String("config", "config.yaml", "Path to configuration file")
	version    = "0.1.0"
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.SetGlobal(logger)

	logger.Info().
		Str("version", version).
		Str("server", cfg.Server.Name).
		Str("log_path", cfg.OpenVPN.LogPath).
		Msg("Starting vpntrail")

	ctx := context.Background()

	// Tracing
	tracingCfg := tracing.Config{}
	if cfg.Tracing != nil {
		tracingCfg = tracing.Config{
			Enabled:    cfg.Tracing.Enabled,
			Endpoint:   cfg.Tracing.Endpoint,
			SampleRate: cfg.Tracing.SampleRate,
		}
	}
	tracerProvider, err := tracing.NewProvider(ctx, tracingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Metrics
	collector := metrics.NewCollector()
	collector.Start()

	// Sink. An unreachable destination at startup is fatal: running
	// blind would silently discard every event.
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	dataSink, err := sink.New(startCtx, cfg.Sink, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to create %s sink: %w", cfg.Sink.Type, err)
	}
	logger.Info().Str("sink", dataSink.Name()).Msg("Sink connected")

	// Durable state
	store := position.Open(cfg.State.Path, cfg.State.MaxTrackedSessions, logger)

	// Tailer
	tl, err := tailer.New(logger)
	if err != nil {
		return fmt.Errorf("failed to create tailer: %w", err)
	}
	if err := tl.Watch(cfg.OpenVPN.LogPath); err != nil {
		logger.Warn().Err(err).Msg("Cannot watch log directory, falling back to interval polling")
	}

	// Correlator and sampler
	corr := correlator.New(correlator.Config{
		ServerName:     cfg.Server.Name,
		ServerLocation: cfg.Server.Location,
		IdleTimeout:    cfg.State.IdleSessionTimeout,
		Logger:         logger,
		Orphans:        collector.OrphanLines,
	})
	smp := sampler.New(sampler.Config{
		ServerName:     cfg.Server.Name,
		ServerLocation: cfg.Server.Location,
		Logger:         logger,
		Failures:       collector.SamplerFailures,
	})

	// Scheduler
	run := runner.New(runner.Config{
		LogPath:       cfg.OpenVPN.LogPath,
		StatusPath:    cfg.OpenVPN.StatusPath,
		LogInterval:   cfg.Schedule.LogInterval,
		StatsInterval: cfg.Schedule.StatsInterval,
		WriteTimeout:  cfg.Sink.WriteTimeout(),
		Store:         store,
		Tailer:        tl,
		Correlator:    corr,
		Sampler:       smp,
		Sink:          dataSink,
		Metrics:       collector,
		Tracer:        tracerProvider.Tracer(),
		Logger:        logger,
	})

	// Metrics and health endpoints
	var srv *server.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		checker := health.NewChecker(5 * time.Second)
		checker.Register("sink", health.SinkCheck(dataSink))
		checker.Register("scheduler", health.FreshnessCheck(run.LastTick, 3*cfg.Schedule.LogInterval))

		srv = server.New(server.Config{
			Address:         cfg.Metrics.Address,
			MetricsPath:     cfg.Metrics.Path,
			MetricsRegistry: collector.Registry(),
			HealthChecker:   checker,
			Logger:          logger,
		})
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// Shutdown order is the reverse of registration: scheduler first,
	// then the sink it writes to, then everything else.
	mgr := shutdown.New(shutdown.Config{
		Timeout: 30 * time.Second,
		Logger:  logger,
	})
	mgr.RegisterFunc("tracing", tracerProvider.Shutdown)
	if srv != nil {
		mgr.RegisterFunc("server", srv.Stop)
	}
	mgr.RegisterFunc("metrics", func(context.Context) error {
		collector.Stop()
		return nil
	})
	mgr.RegisterFunc("sink", dataSink.Close)
	mgr.RegisterFunc("tailer", func(context.Context) error {
		return tl.Close()
	})
	mgr.RegisterFunc("scheduler", run.Stop)

	run.Start(ctx)
	logger.Info().
		Dur("log_interval", cfg.Schedule.LogInterval).
		Dur("stats_interval", cfg.Schedule.StatsInterval).
		Msg("Scheduler running")

	mgr.WaitForSignal()
	return nil
}
