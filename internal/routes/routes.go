package routes

import (
	"net/http"

	"floodwatch/internal/config"
	"floodwatch/internal/handlers"
	"floodwatch/internal/logger"
	"floodwatch/internal/metrics"
	"floodwatch/internal/middleware"
	"floodwatch/internal/services/websocket"
	"floodwatch/internal/store"
)

// SetupRoutes registers the query endpoints, the viewer websocket and the
// metrics exposition, and wraps the mux with the CORS middleware.
func SetupRoutes(store *store.Store, hub *websocket.HubService, metrics *metrics.Metrics, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/status", handlers.StatusHandler(store, logger))
	mux.HandleFunc("/api/snapshot", handlers.SnapshotHandler(store, cfg, metrics, logger))
	mux.HandleFunc("/api/health", handlers.HealthHandler(store))
	mux.HandleFunc("/api/view", handlers.ViewWebsocketHandler(hub, logger))

	// Observability
	mux.Handle("/metrics", metrics.Handler())

	return middleware.CORSMiddleware(mux)
}
