package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ShawnEdgell/gfn-availability-go/internal/cache"
	"github.com/ShawnEdgell/gfn-availability-go/internal/database"
	"github.com/ShawnEdgell/gfn-availability-go/internal/scheduler"
	"github.com/ShawnEdgell/gfn-availability-go/internal/service"
	"github.com/ShawnEdgell/gfn-availability-go/internal/settings"
)

const maxSettingsBytes = 1 << 20

// AvailabilityService is the set of host operations the HTTP surface exposes.
type AvailabilityService interface {
	CheckAvailability(ctx context.Context, appID string) (cache.Result, error)
	ClearCache() service.ClearResult
	CacheStats() cache.Stats
	DatabaseInfo() database.Info
	RefreshDatabase(ctx context.Context) scheduler.RefreshResult
	GetSettings() map[string]any
	SaveSettings(blob map[string]any) settings.Result
}

// Pinger reports whether the Redis mirror is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
		}
	}
}

func AvailabilityHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID := chi.URLParam(r, "appid")
		result, err := svc.CheckAvailability(r.Context(), appID)
		if errors.Is(err, service.ErrInvalidAppID) {
			writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			slog.Error("Failed to check availability", "appid", appID, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			return
		}
		writeJSONResponse(w, http.StatusOK, result)
	}
}

func ClearCacheHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, svc.ClearCache())
	}
}

func CacheStatsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, svc.CacheStats())
	}
}

func DatabaseInfoHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, svc.DatabaseInfo())
	}
}

// RefreshHandler blocks until the refresh finishes. Failures are reported in
// the body with a 200 status, like every other refresh outcome.
func RefreshHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, svc.RefreshDatabase(r.Context()))
	}
}

func GetSettingsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, svc.GetSettings())
	}
}

func SaveSettingsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var blob map[string]any
		body := http.MaxBytesReader(w, r.Body, maxSettingsBytes)
		if err := json.NewDecoder(body).Decode(&blob); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, errorResponse{Error: "request body must be a JSON object"})
			return
		}
		writeJSONResponse(w, http.StatusOK, svc.SaveSettings(blob))
	}
}

// HealthCheckHandler pings Redis when the mirror is configured. A nil pinger means it is disabled.
func HealthCheckHandler(pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger == nil {
			writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok", "redis": "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := pinger.Ping(ctx); err != nil {
			slog.Error("Health check failed: Redis ping error", "error", err)
			status := map[string]string{"status": "unhealthy", "reason": "redis_connection_error"}
			writeJSONResponse(w, http.StatusServiceUnavailable, status)
			return
		}

		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok", "redis": "connected"})
	}
}
