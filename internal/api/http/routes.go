package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new HTTP router with configured routes, middleware, and handlers.
// It sets up download, cache, overlay and tile routes, health check, and the
// Prometheus metrics endpoint.
func NewRouter(jobService JobServiceI, overlay OverlayI, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	jobHandler := NewJobHandler(jobService, logger)
	overlayHandler := NewOverlayHandler(overlay, logger)

	r.Route("/downloads", func(r chi.Router) {
		r.Post("/", jobHandler.StartDownload)
		r.Get("/", jobHandler.ListJobs)
		r.Get("/current", jobHandler.CurrentJob)
		r.Delete("/current", jobHandler.StopDownload)
		r.Get("/{jobID}", jobHandler.GetJob)
	})

	r.Route("/cache", func(r chi.Router) {
		r.Get("/", jobHandler.CacheStats)
		r.Delete("/", jobHandler.ClearCache)
	})

	r.Get("/overlay", overlayHandler.GetSource)
	r.Put("/overlay", overlayHandler.SetSource)
	r.Get("/tiles/{z}/{x}/{y}.png", overlayHandler.GetTile)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
