// syncwatch keeps one realtime sync connection open, logs every update for
// the configured entities and optionally records them in the audit table.
// Usage: go run ./cmd/syncwatch --config configs/syncwatch.example.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/erp-sync/internal/config"
	"github.com/rickgao/erp-sync/internal/database"
	"github.com/rickgao/erp-sync/internal/model"
	"github.com/rickgao/erp-sync/internal/realtime"
	"github.com/rickgao/erp-sync/internal/registry"
	"github.com/rickgao/erp-sync/internal/version"
	"github.com/rickgao/erp-sync/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/syncwatch.example.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting syncwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"backend_url", cfg.Backend.BaseURL,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("syncwatch failed", "error", err)
		os.Exit(1)
	}

	logger.Info("syncwatch stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	provider := realtime.NewProvider(realtime.ManagerConfig(cfg), logger.With("instance_id", cfg.Instance.ID))
	client := provider.Client()

	// Audit sink
	var audit *writer.AuditWriter
	if cfg.Audit.Enabled {
		var pool *pgxpool.Pool
		var err error
		audit, pool, err = startAudit(ctx, cfg, client, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// Open the shared connection before any binding exists.
	client.EnsureConnected()

	for _, name := range cfg.Sync.Entities {
		key := model.ParseKey(name)
		entityLogger := logger.With("key", key.String())

		_, err := client.Sync(ctx, key,
			func(frame model.Frame) {
				entityLogger.Info("update received",
					"entity", frame.Entity,
					"id", frame.ID(),
				)
			},
			func() {
				entityLogger.Debug("refetch requested")
			},
		)
		if err != nil {
			return fmt.Errorf("bind %q: %w", name, err)
		}
	}

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           newHealthHandler(client, audit),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("shutting down...")
		client.Disconnect()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if audit != nil {
			audit.Stop(shutdownCtx)
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("syncwatch running",
		"client_id", client.ID(),
		"entities", strings.Join(cfg.Sync.Entities, ","),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	return g.Wait()
}

// startAudit connects to the audit database and feeds every update into an
// AuditWriter through a wildcard subscription.
func startAudit(ctx context.Context, cfg *config.Config, client *realtime.Client, logger *slog.Logger) (*writer.AuditWriter, *pgxpool.Pool, error) {
	logger.Info("connecting to audit database",
		"host", cfg.Audit.Database.Host,
		"port", cfg.Audit.Database.Port,
		"database", cfg.Audit.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Audit.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect audit database: %w", err)
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	initial := cfg.Audit.BufferSize / 4
	buf := registry.NewBuffer[model.Frame](initial, cfg.Audit.BufferSize)

	audit := writer.NewAuditWriter(writer.WriterConfig{
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
	}, client.ID(), buf, pool, logger)

	if _, err := client.SubscribeAll(func(frame model.Frame) {
		buf.Send(frame)
	}); err != nil {
		pool.Close()
		return nil, nil, err
	}

	if err := audit.Start(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return audit, pool, nil
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
