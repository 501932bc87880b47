package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/ShawnEdgell/gfn-availability-go/internal/curator"
	"github.com/ShawnEdgell/gfn-availability-go/internal/database"
	"github.com/ShawnEdgell/gfn-availability-go/internal/telemetry"
)

// DefaultMaxAge is how old the database may get before startup schedules a refresh.
const DefaultMaxAge = 7 * 24 * time.Hour

// ErrRefreshInProgress is reported when a refresh is requested while another one runs.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Fetcher retrieves every game of one curator. It fails soft and never returns an error.
type Fetcher interface {
	FetchAll(ctx context.Context, src curator.Source) map[string]curator.GameRecord
}

// Invalidator is the availability cache as seen by the scheduler.
type Invalidator interface {
	Clear() int
}

// Mirror receives a copy of every successfully swapped dataset.
type Mirror interface {
	SaveSnapshot(ctx context.Context, snap *database.Snapshot) error
}

type Scheduler struct {
	fetcher  Fetcher
	store    *database.Store
	cache    Invalidator
	mirror   Mirror
	sources  []curator.Source
	maxAge   time.Duration
	interval time.Duration
	metrics  *telemetry.Metrics
	now      func() time.Time

	updateMu   sync.Mutex
	baseCtx    context.Context
	cancelAll  context.CancelFunc
	stopChan   chan struct{}
	stopOnce   sync.Once
	tickerDone chan struct{}
}

type Option func(*Scheduler)

// WithSources sets the curators to fetch, in merge order. Later sources win on conflicts.
func WithSources(sources []curator.Source) Option {
	return func(s *Scheduler) {
		s.sources = append([]curator.Source(nil), sources...)
	}
}

func WithMirror(m Mirror) Option {
	return func(s *Scheduler) {
		s.mirror = m
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithMaxAge overrides DefaultMaxAge.
func WithMaxAge(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithInterval enables a periodic refresh. Zero disables it.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func NewScheduler(fetcher Fetcher, store *database.Store, cache Invalidator, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:  fetcher,
		store:    store,
		cache:    cache,
		sources:  curator.DefaultSources,
		maxAge:   DefaultMaxAge,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.cancelAll = context.WithCancel(context.Background())
	return s
}

// Refresh fetches every source, merges the results and swaps them into the
// database. The cache is cleared after the swap. Writing the dataset file and
// the Redis mirror are best-effort: their failures are reported as a warning
// and do not undo the swap. Nothing is swapped when the refresh fails before
// the merged dataset is complete.
func (s *Scheduler) Refresh(ctx context.Context, triggeredBy string) (result RefreshResult) {
	if !s.updateMu.TryLock() {
		slog.Info("Scheduler: Database refresh already in progress, skipping.", "triggered_by", triggeredBy)
		return errorResult(ErrRefreshInProgress)
	}
	defer s.updateMu.Unlock()

	started := time.Now()
	slog.Info("Scheduler: Starting database refresh from Steam curators.", "triggered_by", triggeredBy,
		"sources", len(s.sources))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scheduler: Database refresh panicked.", "triggered_by", triggeredBy, "panic", r)
			result = errorResult(fmt.Errorf("refresh failed: %v", r))
		}
		s.metrics.RefreshCompleted(result.Status, time.Since(started))
	}()

	merged, err := s.fetchAllSources(ctx)
	if err != nil {
		slog.Error("Scheduler: Error refreshing database.", "triggered_by", triggeredBy, "error", err)
		return errorResult(err)
	}
	slog.Info("Scheduler: Total unique games fetched.", "count", len(merged))

	oldCount := s.store.Len()
	s.store.Replace(merged, s.sources)
	newCount := s.store.Len()
	s.metrics.SetDatabaseSize(newCount)

	s.cache.Clear()

	var warnings []string
	if err := s.store.Persist(ctx); err != nil {
		slog.Error("Scheduler: Database updated in memory but could not be saved to file.", "error", err)
		warnings = append(warnings, err.Error())
	}
	if s.mirror != nil {
		if err := s.mirror.SaveSnapshot(ctx, s.store.Snapshot()); err != nil {
			slog.Error("Scheduler: Failed to mirror database to Redis.", "error", err)
			warnings = append(warnings, err.Error())
		}
	}

	slog.Info("Scheduler: Database refresh finished.", "triggered_by", triggeredBy,
		"old_count", oldCount, "new_count", newCount, "took", time.Since(started))

	return RefreshResult{
		Status:   StatusSuccess,
		OldCount: oldCount,
		NewCount: newCount,
		Added:    newCount - oldCount,
		Warning:  strings.Join(warnings, "; "),
	}
}

// fetchAllSources merges the sources in order so that later ones overwrite earlier ones.
func (s *Scheduler) fetchAllSources(ctx context.Context) (map[string]curator.GameRecord, error) {
	all := make(map[string]curator.GameRecord)
	for _, src := range s.sources {
		games := s.fetcher.FetchAll(ctx, src)
		maps.Copy(all, games)
		slog.Info("Scheduler: Fetched games from curator.", "curator_id", src.CuratorID, "count", len(games))

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("refresh cancelled: %w", err)
		}
	}
	return all, nil
}

// NeedsRefresh applies the startup staleness policy: refresh when the database
// is empty, older than maxAge, or carries an unparseable timestamp.
func NeedsRefresh(store *database.Store, maxAge time.Duration, now time.Time) (bool, string) {
	if store.Len() == 0 {
		return true, "database is empty"
	}
	lastUpdated, err := store.LastUpdated()
	if err != nil {
		return true, err.Error()
	}
	if age := now.Sub(lastUpdated); age > maxAge {
		return true, fmt.Sprintf("database is %s old", age.Round(time.Hour))
	}
	return false, ""
}

// Start applies the staleness policy and, when configured, starts the periodic
// refresh ticker. It never blocks: a needed refresh runs in the background and
// no handle to it is kept.
func (s *Scheduler) Start() {
	if needed, reason := NeedsRefresh(s.store, s.maxAge, s.now()); needed {
		slog.Info("Scheduler: Scheduling background database refresh.", "reason", reason)
		go s.Refresh(s.baseCtx, "startup_staleness")
	} else {
		slog.Info("Scheduler: Games database is fresh, no startup refresh needed.", "games", s.store.Len())
	}

	if s.interval <= 0 {
		return
	}

	slog.Info("Scheduler: Starting periodic database refresh.", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	s.tickerDone = make(chan struct{})
	go func() {
		defer close(s.tickerDone)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				slog.Info("Scheduler: Periodic refresh tick received.")
				s.Refresh(s.baseCtx, "scheduled_refresh")
			case <-s.stopChan:
				slog.Info("Scheduler: Stop signal received, exiting ticker goroutine.")
				return
			}
		}
	}()
}

// Stop ends the periodic ticker and cancels in-flight background refreshes.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		slog.Info("Scheduler: Stopping.")
		close(s.stopChan)
		s.cancelAll()
		if s.tickerDone != nil {
			<-s.tickerDone
		}
	})
}
