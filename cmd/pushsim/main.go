// pushsim is a local push server for exercising sync clients. It answers
// pings with pongs and broadcasts data_update frames for a rotating list of
// entities.
// Usage: go run ./cmd/pushsim --addr :9090 --entities project,invoice
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/erp-sync/internal/connection"
	"github.com/rickgao/erp-sync/internal/version"
)

func main() {
	addr := flag.String("addr", ":9090", "listen address")
	path := flag.String("path", connection.DefaultPushPath, "push endpoint path")
	entities := flag.String("entities", "project,invoice,customer", "comma-separated entities to publish")
	interval := flag.Duration("interval", 2*time.Second, "delay between published updates")
	token := flag.String("token", "", "required bearer token (empty accepts any client)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	names := splitEntities(*entities)
	if len(names) == 0 {
		logger.Error("no entities to publish")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	h := newHub(*token, logger)
	mux := http.NewServeMux()
	mux.Handle(*path, h)

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("pushsim listening",
			"version", version.Version,
			"addr", *addr,
			"path", *path,
			"entities", names,
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			server.Shutdown(shutdownCtx)
			logger.Info("pushsim stopped", "pings", h.pings.Load())
			return
		case <-ticker.C:
			entity := names[i%len(names)]
			if err := h.publish(entity); err != nil {
				logger.Error("publish failed", "error", err)
				continue
			}
			logger.Debug("published update", "entity", entity, "clients", h.count())
		}
	}
}

func splitEntities(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
