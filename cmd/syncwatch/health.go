package main

import (
	"encoding/json"
	"net/http"

	"github.com/rickgao/erp-sync/internal/connection"
	"github.com/rickgao/erp-sync/internal/realtime"
	"github.com/rickgao/erp-sync/internal/version"
	"github.com/rickgao/erp-sync/internal/writer"
)

// newHealthHandler creates the HTTP handler for health checks.
// audit may be nil when the audit sink is disabled.
func newHealthHandler(client *realtime.Client, audit *writer.AuditWriter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := client.Stats()

		health := struct {
			Status     string         `json:"status"`
			Version    string         `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.String(),
			Components: make(map[string]any),
		}

		switch stats.Connection.State {
		case connection.StateOpen:
		case connection.StateConnecting:
			health.Status = "degraded"
		default:
			health.Status = "unhealthy"
		}

		health.Components["connection"] = map[string]any{
			"state":                stats.Connection.State.String(),
			"client_id":            stats.ClientID,
			"attempts":             stats.Connection.Attempts,
			"connects":             stats.Connection.Connects,
			"reconnects_scheduled": stats.Connection.ReconnectsScheduled,
			"frames_received":      stats.Connection.FramesReceived,
			"updates_dispatched":   stats.Connection.UpdatesDispatched,
			"parse_errors":         stats.Connection.ParseErrors,
		}
		health.Components["registry"] = map[string]any{
			"subscriptions":  stats.Registry.Subscriptions,
			"delivered":      stats.Registry.Delivered,
			"handler_panics": stats.Registry.HandlerPanics,
		}
		if audit != nil {
			m := audit.Stats()
			health.Components["audit"] = map[string]any{
				"received": m.Received,
				"inserts":  m.Inserts,
				"errors":   m.Errors,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
