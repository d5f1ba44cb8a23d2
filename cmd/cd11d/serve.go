package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seisnet/cd11streams/config"
	"github.com/seisnet/cd11streams/errors"
	"github.com/seisnet/cd11streams/health"
	"github.com/seisnet/cd11streams/metric"
	"github.com/seisnet/cd11streams/natsclient"
	"github.com/seisnet/cd11streams/pkg/tlsutil"
	"github.com/seisnet/cd11streams/rsdf"
	"github.com/seisnet/cd11streams/station"
)

var (
	shutdownTimeout time.Duration
	watchConfig     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept station connections and run the state-of-health pipeline",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for draining NATS on exit")
	serveCmd.Flags().BoolVar(&watchConfig, "watch-config", true, "apply log level changes when the config file changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, level, closer, err := setupLogger(cfg.Logs, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "build_time", BuildTime, "config_path", configPath)
	return serve(ctx, cfg, logger, level)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, level *slog.LevelVar) error {
	registry := metric.NewMetricsRegistry()

	client, err := connectNATS(ctx, cfg.NATS, registry, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Warn("NATS close failed", "error", err)
		}
	}()

	factory, err := station.NewSessionFactory(station.SessionConfig{
		Name:             cfg.Station.Name,
		ConsumerAddr:     cfg.Station.ConsumerAddrPort(),
		RawSubject:       cfg.NATS.Subjects.Raw,
		AcknackInterval:  cfg.Station.AcknackInterval,
		MalformedLogRate: cfg.Station.MalformedLogRate,
	}, rsdf.PublisherFunc(client.PublishToStream))
	if err != nil {
		return err
	}
	stationTLS, err := tlsutil.LoadServerConfig(cfg.Station.TLS)
	if err != nil {
		return err
	}
	server, err := station.NewServer(station.ServerConfig{
		Address: cfg.Station.Listen,
		TLS:     stationTLS,
		Connection: station.ConnectionConfig{
			MaxFrameSize: cfg.Station.MaxFrameSize,
			VerifyCRC:    cfg.Station.VerifyCRC,
			IdleTimeout:  cfg.Station.IdleTimeout,
		},
	}, factory, station.ServerDeps{Logger: logger, MetricsRegistry: registry})
	if err != nil {
		return err
	}

	source, err := rsdf.NewNATSSource(ctx, client, rsdf.NATSSourceConfig{
		Stream:  cfg.NATS.Stream,
		Durable: cfg.NATS.Durable,
		Subject: cfg.NATS.Subjects.Raw,
	}, logger)
	if err != nil {
		return err
	}
	pipeline, err := rsdf.NewPipeline(rsdf.PipelineConfig{
		ExtractSubject: cfg.NATS.Subjects.Extract,
		IssueSubject:   cfg.NATS.Subjects.Issue,
		DedupSize:      cfg.SOH.DedupSize,
	}, rsdf.NewStatusParser(cfg.Station.VerifyCRC), client, rsdf.PipelineDeps{Logger: logger, MetricsRegistry: registry})
	if err != nil {
		return err
	}

	if err := server.Listen(); err != nil {
		return err
	}

	monitor := health.NewMonitor(appName)
	monitor.Register("nats", client.Healthy)
	monitor.Register("station", func() error {
		if server.Addr() == nil {
			return errors.ErrNotStarted
		}
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(gctx) })
	g.Go(func() error {
		monitor.Update("pipeline", health.Healthy, "running")
		err := pipeline.Run(gctx, source)
		if gctx.Err() != nil {
			return nil
		}
		monitor.Update("pipeline", health.Unhealthy, fmt.Sprint(err))
		return err
	})
	if cfg.Metrics.Enabled {
		metrics := metric.NewServer(cfg.Metrics.Address, cfg.Metrics.Path, registry, monitor.Err)
		g.Go(func() error { return metrics.Start(gctx) })
	}
	if watchConfig && configPath != "" {
		watcher := config.NewWatcher(configPath, 0, func(next *config.Config) {
			level.Set(effectiveLevel(next.Logs.Level))
			logger.Info("log level applied; other settings take effect on restart",
				"level", level.Level().String())
		}, logger)
		g.Go(func() error { return watcher.Run(gctx) })
	}

	err = g.Wait()
	if err != nil && errors.IsFatal(err) {
		logger.Error("stopped on fatal error", "error", err)
	} else {
		logger.Info("stopped")
	}
	return err
}

func connectNATS(ctx context.Context, cfg config.NATSConfig, registry *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(cfg.Name),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait),
		natsclient.WithPingInterval(cfg.PingInterval),
		natsclient.WithCircuitBreakerThreshold(cfg.CircuitThreshold),
		natsclient.WithDrainTimeout(shutdownTimeout),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry),
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if cfg.User != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.User, cfg.Password))
	}
	tlsConfig, err := tlsutil.LoadClientConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		opts = append(opts, natsclient.WithTLSConfig(tlsConfig))
	}
	client, err := natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("connecting to NATS", "url", cfg.URL)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(waitCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	return client, nil
}
