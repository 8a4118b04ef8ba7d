package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/JonMunkholm/csvlint/internal/admin"
	"github.com/JonMunkholm/csvlint/internal/config"
	"github.com/JonMunkholm/csvlint/internal/core"
	"github.com/JonMunkholm/csvlint/internal/logging"
	"github.com/JonMunkholm/csvlint/internal/metrics"
	"github.com/JonMunkholm/csvlint/internal/store"
	"github.com/JonMunkholm/csvlint/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector(registry)

	limiter := core.NewLimiter(cfg.Validation.MaxConcurrent, cfg.Validation.MaxWaitTime)
	serviceOpts := []core.Option{
		core.WithLimiter(limiter),
		core.WithMetrics(m),
		core.WithParallelism(cfg.Validation.Parallelism),
		core.WithTimeout(cfg.Validation.Timeout),
	}
	serverOpts := []web.Option{web.WithMetrics(m)}

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if cfg.Database.Enabled() {
		pool, err := store.Open(jobCtx, cfg.Database)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		slog.Info("connected to database", "name", store.DatabaseName(cfg.Database.URL))

		st := store.New(pool)
		if err := st.Migrate(jobCtx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		serviceOpts = append(serviceOpts, core.WithStore(st))
		serverOpts = append(serverOpts, web.WithHistory(st))

		if cfg.History.Retention > 0 {
			pruner := &admin.ResetHistory{DB: st, Logger: slog.Default()}
			go pruner.StartPruneScheduler(jobCtx, cfg.History.Retention, cfg.History.PruneInterval)
		}
	} else {
		slog.Info("DATABASE_URL not set, run history disabled")
	}

	service := core.NewService(serviceOpts...)
	server := web.NewServer(service, cfg, serverOpts...)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for validation runs to complete", "active", status.Active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown did not complete in time", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
