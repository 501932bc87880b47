// internal/server/router.go
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogchi "github.com/samber/slog-chi"
)

// NewRouter wires the host operations, health and metrics endpoints.
// A nil gatherer leaves /metrics unmounted.
func NewRouter(svc AvailabilityService, pinger Pinger, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(slogchi.NewWithConfig(logger, slogchi.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
	}))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/games/{appid}/availability", AvailabilityHandler(svc))

		r.Delete("/cache", ClearCacheHandler(svc))
		r.Get("/cache/stats", CacheStatsHandler(svc))

		r.Get("/database", DatabaseInfoHandler(svc))
		r.Post("/database/refresh", RefreshHandler(svc))

		r.Get("/settings", GetSettingsHandler(svc))
		r.Put("/settings", SaveSettingsHandler(svc))
	})

	r.Get("/health", HealthCheckHandler(pinger))
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
