// Package service is the context object behind the host operations. It owns
// the cache, the database, the refresh scheduler and the settings store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ShawnEdgell/gfn-availability-go/internal/cache"
	"github.com/ShawnEdgell/gfn-availability-go/internal/database"
	"github.com/ShawnEdgell/gfn-availability-go/internal/scheduler"
	"github.com/ShawnEdgell/gfn-availability-go/internal/settings"
	"github.com/ShawnEdgell/gfn-availability-go/internal/telemetry"
)

// ErrInvalidAppID is returned for app ids that are not positive decimal numbers.
var ErrInvalidAppID = errors.New("invalid steam app id")

// Seeder supplies a dataset when the local file yields nothing.
type Seeder interface {
	LoadSnapshot(ctx context.Context) (*database.Snapshot, error)
}

// Deps are the collaborators a Service is built from. Seeder and Metrics are optional.
type Deps struct {
	Store     *database.Store
	Cache     *cache.AvailabilityCache
	Scheduler *scheduler.Scheduler
	Settings  *settings.Store
	Seeder    Seeder
	Metrics   *telemetry.Metrics
}

// ClearResult is returned by ClearCache.
type ClearResult struct {
	Status  string `json:"status"`
	Cleared int    `json:"cleared"`
}

type Service struct {
	store     *database.Store
	cache     *cache.AvailabilityCache
	scheduler *scheduler.Scheduler
	settings  *settings.Store
	seeder    Seeder
	metrics   *telemetry.Metrics
}

func New(d Deps) *Service {
	return &Service{
		store:     d.Store,
		cache:     d.Cache,
		scheduler: d.Scheduler,
		settings:  d.Settings,
		seeder:    d.Seeder,
		metrics:   d.Metrics,
	}
}

// Start loads settings and the games database, then applies the staleness
// policy. It returns before any background refresh completes.
func (s *Service) Start(ctx context.Context) {
	slog.Info("Service: Starting GeForce NOW availability service.")

	s.settings.Load()
	s.store.Load(ctx)
	if s.store.Len() == 0 && s.seeder != nil {
		s.seedFromMirror(ctx)
	}
	s.metrics.SetDatabaseSize(s.store.Len())

	s.scheduler.Start()
}

func (s *Service) seedFromMirror(ctx context.Context) {
	snap, err := s.seeder.LoadSnapshot(ctx)
	if err != nil {
		slog.Warn("Service: Could not read mirrored games database.", "error", err)
		return
	}
	if snap == nil || len(snap.Games) == 0 {
		return
	}

	s.store.Seed(snap)
	slog.Info("Service: Seeded games database from Redis mirror.", "count", len(snap.Games),
		"last_updated", snap.LastUpdated)
	if err := s.store.Persist(ctx); err != nil {
		slog.Warn("Service: Seeded database could not be saved to file.", "error", err)
	}
}

// Close stops periodic refreshes and drops all cached verdicts.
func (s *Service) Close() {
	slog.Info("Service: Unloading.")
	s.scheduler.Stop()
	s.cache.Clear()
}

// CheckAvailability answers from the cache, falling back to the database.
// Only malformed ids produce an error; lookup failures are reported in the result.
func (s *Service) CheckAvailability(ctx context.Context, appID string) (cache.Result, error) {
	if n, err := strconv.ParseUint(appID, 10, 64); err != nil || n == 0 {
		return cache.Result{}, fmt.Errorf("%w: %q", ErrInvalidAppID, appID)
	}
	return s.cache.Lookup(ctx, appID), nil
}

func (s *Service) ClearCache() ClearResult {
	return ClearResult{Status: scheduler.StatusSuccess, Cleared: s.cache.Clear()}
}

func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

func (s *Service) DatabaseInfo() database.Info {
	return s.store.Info()
}

// RefreshDatabase runs a refresh to completion even if ctx is cancelled
// afterwards, so an abandoned request never leaves a half-done refresh behind.
func (s *Service) RefreshDatabase(ctx context.Context) scheduler.RefreshResult {
	return s.scheduler.Refresh(context.WithoutCancel(ctx), "manual")
}

func (s *Service) GetSettings() map[string]any {
	return s.settings.Get()
}

func (s *Service) SaveSettings(blob map[string]any) settings.Result {
	return s.settings.Save(blob)
}
