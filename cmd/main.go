package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/fathom/internal/adapters/http/api"
	"github.com/okian/fathom/internal/adapters/repository"
	app "github.com/okian/fathom/internal/app"
	"github.com/okian/fathom/internal/config"
	"github.com/okian/fathom/internal/domain/patterns"
	"github.com/okian/fathom/pkg/logger"
	"github.com/spf13/cobra"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fathom",
		Short:        "Variant scoring and decision pattern analytics",
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newScoreCmd(),
		newCompareCmd(),
		newSignificanceCmd(),
		newPatternsCmd(),
		newTrendCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analytics service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := repository.Open(cfg.StoreDriver, cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	svc := app.New(serviceOptions(cfg, store, log)...)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}

	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	api.NewServer(svc).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down server...")
	case runErr = <-serveErr:
		log.Error(ctx, "HTTP server failed", logger.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service stop failed", logger.Error(err))
		runErr = errors.Join(runErr, err)
	}

	log.Info(ctx, "server stopped")
	return runErr
}

// serviceOptions maps configuration onto service options.
func serviceOptions(cfg *config.Config, store repository.Store, log logger.Logger) []app.Option {
	return []app.Option{
		app.WithLogger(log),
		app.WithStore(store),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithScoring(cfg.Weights, cfg.CompareMargin),
		app.WithApplyThreshold(cfg.ApplyThreshold),
		app.WithDefaultSampleSize(cfg.DefaultSampleSize),
		app.WithDetector(detectorOptions(cfg)...),
		app.WithPatternCacheTTL(cfg.PatternCacheTTL()),
	}
}

func detectorOptions(cfg *config.Config) []patterns.Option {
	return []patterns.Option{
		patterns.WithMinGroupSupport(cfg.MinGroupSupport),
		patterns.WithMinContextSupport(cfg.MinContextSupport),
		patterns.WithLimit(cfg.MaxPatterns),
	}
}

// startServiceMetricsUpdater refreshes the queue and store gauges until ctx
// is done. GetStats updates them as a side effect.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}
