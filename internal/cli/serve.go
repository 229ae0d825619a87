package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aaas-network/aaas/internal/api"
	"github.com/aaas-network/aaas/internal/app/escrow"
	"github.com/aaas-network/aaas/internal/app/oracle"
	"github.com/aaas-network/aaas/internal/daemon"
	"github.com/aaas-network/aaas/internal/infra/observability"
	"github.com/aaas-network/aaas/internal/infra/sqlite"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, when enabled, the oracle",
	Long: `Run the escrow HTTP API. With [oracle] enabled the server also sweeps
automated challenges during their verification window and submits scores
from the configured source as the oracle operator.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := daemon.NewLogger(cfg.Log, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}()

	dir, err := cfg.Storage.DataDir()
	if err != nil {
		return err
	}
	db, err := sqlite.Open(dir, cfg.Token.Decimals)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := api.NewEventHub()
	engine := escrow.New(db,
		escrow.WithDecimals(cfg.Token.Decimals),
		escrow.WithLogger(logger),
		escrow.WithTracer(observability.Tracer("aaas/escrow")),
		escrow.WithEventSink(hub.Publish),
	)

	srv := api.NewServer(engine, logger)
	srv.SetLedger(db)
	srv.SetEventHub(hub)
	srv.SetTimeout(cfg.API.RequestTimeoutDuration())
	if cfg.API.Metrics {
		srv.EnableMetrics()
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Oracle.Enabled {
		o, err := newOracle(cfg.Oracle, engine, logger)
		if err != nil {
			return err
		}
		srv.SetOracle(o)
		g.Go(func() error { return o.Run(ctx) })
	}

	httpSrv := &http.Server{
		Addr:              cfg.API.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Info("api listening", "addr", httpSrv.Addr, "data_dir", dir)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func newOracle(cfg daemon.OracleConfig, engine *escrow.Engine, logger *slog.Logger) (*oracle.Oracle, error) {
	src, err := oracle.NewHTTPSource(cfg.SourceURL, cfg.Retries, logger)
	if err != nil {
		return nil, err
	}
	o := oracle.New(oracle.Config{
		Operator:      cfg.Operator,
		Interval:      cfg.IntervalDuration(),
		MaxConcurrent: cfg.MaxConcurrent,
		Timeout:       cfg.TimeoutDuration(),
	}, engine, logger)
	for _, metric := range cfg.Metrics {
		o.RegisterSource(metric, src)
	}
	return o, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return cfg.Write(cmd.OutOrStdout())
	},
}
