// Package cli provides the dopi command line: serve, reconcile and migrate.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/FCJuventus/DoPi-demo/config"
	"github.com/FCJuventus/DoPi-demo/handlers"
	"github.com/FCJuventus/DoPi-demo/internal/metrics"
	"github.com/FCJuventus/DoPi-demo/internal/server"
	"github.com/FCJuventus/DoPi-demo/middleware"
)

// Version is set at build time.
var Version = "dev"

const cleanupTimeout = 10 * time.Second

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "dopi",
		Short: "DoPi: freelance marketplace backend paid in Pi",
		Long: `DoPi serves the job marketplace API and reconciles Pi payments.

Configuration comes from an optional YAML file and environment variables;
environment variables win.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (YAML)")

	rootCmd.AddCommand(buildServeCommand(&configFile))
	rootCmd.AddCommand(buildReconcileCommand(&configFile))
	rootCmd.AddCommand(buildMigrateCommand(&configFile))
	return rootCmd
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup(configFile string) (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func buildServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Start the HTTP API, the optional gRPC health endpoint and the optional periodic reconciliation sweep.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(parent context.Context, cfg config.Config, logger *logrus.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	rt, err := newRuntime(ctx, cfg, logger, collector)
	if err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		rt.close(cleanupCtx)
	}()

	sessions := middleware.NewSessions(cfg.SessionSecret, cfg.Production)
	app := server.NewApp(server.Deps{
		Handler:        handlers.NewApplicationHandler(rt.jobs, rt.payments, rt.pi, sessions, logger),
		Sessions:       sessions,
		Metrics:        collector,
		Store:          rt.store,
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	errCh := make(chan error, 1)
	if cfg.GRPCHealthPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCHealthPort))
		if err != nil {
			return fmt.Errorf("listen gRPC health: %w", err)
		}
		hs := server.NewHealthServer(rt.store, server.DefaultHealthInterval, logger)
		go func() {
			if err := hs.Serve(ctx, lis); err != nil {
				errCh <- fmt.Errorf("grpc health server: %w", err)
			}
		}()
	}
	if cfg.Reconcile.Interval > 0 {
		go runSweeps(ctx, rt, cfg.Reconcile.Interval)
	}

	if cfg.Pi.APIKey == "" {
		logger.Warn("PI_API_KEY is not set; gateway calls will be rejected")
	}
	logger.WithFields(logrus.Fields{
		"driver":  cfg.Store.Driver,
		"origins": cfg.AllowedOrigins,
	}).Info("DoPi backend starting")

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case err := <-errCh:
			logger.WithError(err).Error("Server failure")
			cancel()
		case <-serveCtx.Done():
		}
	}()
	return server.Serve(serveCtx, app, cfg.Addr(), logger)
}

// runSweeps repeats the reconciliation sweep until ctx is cancelled.
func runSweeps(ctx context.Context, rt *runtime, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rt.payments.Sweep(ctx, rt.sweepOptions()); err != nil && !errors.Is(err, context.Canceled) {
				rt.logger.WithError(err).Error("Reconciliation sweep failed")
			}
		}
	}
}

func buildReconcileCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep and print its report",
		Long:  "Run one reconciliation sweep over every paid and completed order and print its report.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rt, err := newRuntime(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			opts := rt.sweepOptions()
			opts.FullScan = true
			report, err := rt.payments.Sweep(ctx, opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func buildMigrateCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the indexes the store needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configFile)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rt, err := newRuntime(ctx, cfg, logger, nil)
			if err != nil {
				return err
			}
			defer rt.close(context.Background())

			if err := rt.store.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "store %s migrated\n", cfg.Store.Driver)
			return nil
		},
	}
}
