package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"socialindex/config"
	"socialindex/ingest"
	"socialindex/observability/logging"
	"socialindex/projection"
	"socialindex/storage/kvstore"
	"socialindex/storage/sqlstore"
)

func main() {
	configFile := flag.String("config", "./socialindexd.yaml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Service, cfg.Environment, cfg.LogLevel)

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("open store", "error", err, "backend", cfg.Backend)
		os.Exit(1)
	}
	defer store.Close()

	source, err := ingest.NewFileSource(cfg.ReplayFile)
	if err != nil {
		logger.Error("open replay source", "error", err, "path", cfg.ReplayFile)
		os.Exit(1)
	}

	engine := projection.NewEngine(store, logger)
	watcher := ingest.NewWatcher(source, engine, store, logger)
	watcher.SetPollInterval(cfg.PollInterval)
	watcher.SetBatchSize(cfg.BatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.ListenAddress, Handler: router}
	go func() {
		logger.Info("admin server listening", "address", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server failed", "error", err)
		}
	}()

	logger.Info("projection pipeline starting",
		"backend", cfg.Backend, "replay_file", cfg.ReplayFile)
	if err := watcher.Run(ctx); err != nil {
		logger.Error("pipeline stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown", "error", err)
	}
	logger.Info("shutdown complete")
}

func openStore(cfg config.Config) (projection.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return kvstore.NewMemory(), nil
	case config.BackendLevelDB:
		return kvstore.Open(cfg.DSN)
	case config.BackendSQLite, config.BackendPostgres:
		return sqlstore.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
