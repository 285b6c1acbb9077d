package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/logship/collector/internal/handlers"
	"github.com/telhawk-systems/logship/common/middleware"
)

// NewRouter constructs a ServeMux with the collector routes registered.
func NewRouter(h *handlers.IngestHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/logs", h.HandleLogs)
	// Path used by the first generation of agents.
	mux.HandleFunc("/logs", h.HandleLogs)

	mux.HandleFunc("GET /api/v1/devices", h.ActiveDevices)
	mux.HandleFunc("GET /api/v1/devices/{id}/stats", h.DeviceStats)
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
