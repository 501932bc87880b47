package scheduler_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShawnEdgell/gfn-availability-go/internal/cache"
	"github.com/ShawnEdgell/gfn-availability-go/internal/curator"
	"github.com/ShawnEdgell/gfn-availability-go/internal/database"
	"github.com/ShawnEdgell/gfn-availability-go/internal/scheduler"
)

var (
	sourceA = curator.Source{CuratorID: 1, Name: "A"}
	sourceB = curator.Source{CuratorID: 2, Name: "B"}
)

// stubFetcher serves canned games per curator and counts calls.
type stubFetcher struct {
	mu        sync.Mutex
	games     map[int]map[string]curator.GameRecord
	calls     atomic.Int32
	FetchFunc func(ctx context.Context, src curator.Source) map[string]curator.GameRecord
}

func (f *stubFetcher) FetchAll(ctx context.Context, src curator.Source) map[string]curator.GameRecord {
	f.calls.Add(1)
	if f.FetchFunc != nil {
		return f.FetchFunc(ctx, src)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]curator.GameRecord)
	for id, rec := range f.games[src.CuratorID] {
		out[id] = rec
	}
	return out
}

func records(curatorID int, available bool, ids ...string) map[string]curator.GameRecord {
	out := make(map[string]curator.GameRecord, len(ids))
	for _, id := range ids {
		out[id] = curator.GameRecord{AppID: id, Available: available, CuratorID: curatorID}
	}
	return out
}

type stubMirror struct {
	err   error
	saved []*database.Snapshot
}

func (m *stubMirror) SaveSnapshot(_ context.Context, snap *database.Snapshot) error {
	m.saved = append(m.saved, snap)
	return m.err
}

func newFixture(t *testing.T, fetcher scheduler.Fetcher, opts ...scheduler.Option) (*scheduler.Scheduler, *database.Store, *cache.AvailabilityCache) {
	t.Helper()
	store := database.NewStore(t.TempDir())
	c := cache.New(store, cache.DefaultTTL)
	opts = append([]scheduler.Option{scheduler.WithSources([]curator.Source{sourceA, sourceB})}, opts...)
	s := scheduler.NewScheduler(fetcher, store, c, opts...)
	t.Cleanup(s.Stop)
	return s, store, c
}

func TestRefresh_LaterSourceWinsOnMerge(t *testing.T) {
	fetcher := &stubFetcher{games: map[int]map[string]curator.GameRecord{
		1: records(1, true, "100", "200"),
		2: records(2, false, "100", "300"),
	}}
	s, store, _ := newFixture(t, fetcher)

	res := s.Refresh(context.Background(), "test")

	require.Equal(t, scheduler.StatusSuccess, res.Status)
	assert.Equal(t, 0, res.OldCount)
	assert.Equal(t, 3, res.NewCount)
	assert.Equal(t, 3, res.Added)
	assert.Empty(t, res.Warning)

	rec := store.Snapshot().Games["100"]
	assert.Equal(t, 2, rec.CuratorID, "the later processed source's record wins")
	assert.False(t, store.Contains("100"))
	assert.True(t, store.Contains("200"))
	assert.Equal(t, int32(2), fetcher.calls.Load())
}

func TestRefresh_FailedSourceDoesNotStopOthers(t *testing.T) {
	// Curator 1 gave up after its retries and returned nothing.
	fetcher := &stubFetcher{games: map[int]map[string]curator.GameRecord{
		2: records(2, true, "730", "570"),
	}}
	s, store, _ := newFixture(t, fetcher)
	store.Replace(records(1, true, "old"), nil)

	res := s.Refresh(context.Background(), "test")

	require.Equal(t, scheduler.StatusSuccess, res.Status)
	assert.Equal(t, 1, res.OldCount)
	assert.Equal(t, 2, res.NewCount)
	assert.Equal(t, int32(2), fetcher.calls.Load(), "the second curator is still fetched")
	assert.True(t, store.Contains("730"))
	assert.True(t, store.Contains("570"))
	assert.False(t, store.Contains("old"))
	assert.Equal(t, 2, store.Snapshot().Games["730"].CuratorID)
}

func TestRefresh_ClearsCacheAndStampsDatabase(t *testing.T) {
	ctx := context.Background()
	fetcher := &stubFetcher{games: map[int]map[string]curator.GameRecord{
		1: records(1, true, "220"),
	}}
	s, store, c := newFixture(t, fetcher)

	c.Lookup(ctx, "220")
	c.Lookup(ctx, "570")
	require.Equal(t, 2, c.Stats().Total)
	assert.False(t, c.Lookup(ctx, "220").Available, "not in the database yet")

	res := s.Refresh(ctx, "test")
	require.Equal(t, scheduler.StatusSuccess, res.Status)

	assert.Equal(t, cache.Stats{}, c.Stats(), "cache is empty after a successful refresh")
	info := store.Info()
	require.NotNil(t, info.LastUpdated)
	_, err := store.LastUpdated()
	assert.NoError(t, err)

	assert.Equal(t, cache.Result{Available: true, Cached: false}, c.Lookup(ctx, "220"))

	_, err = os.Stat(store.Path())
	assert.NoError(t, err, "dataset file is persisted")
}

func TestRefresh_CountsAgainstPreviousDataset(t *testing.T) {
	fetcher := &stubFetcher{games: map[int]map[string]curator.GameRecord{
		1: records(1, true, "1", "2"),
	}}
	s, store, _ := newFixture(t, fetcher)
	store.Replace(records(1, true, "1", "2", "3", "4"), nil)

	res := s.Refresh(context.Background(), "test")
	assert.Equal(t, 4, res.OldCount)
	assert.Equal(t, 2, res.NewCount)
	assert.Equal(t, -2, res.Added)
}

func TestRefresh_PersistFailureIsWarning(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defaults"), []byte("not a dir"), 0o644))

	store := database.NewStore(dir)
	c := cache.New(store, cache.DefaultTTL)
	fetcher := &stubFetcher{games: map[int]map[string]curator.GameRecord{1: records(1, true, "220")}}
	s := scheduler.NewScheduler(fetcher, store, c, scheduler.WithSources([]curator.Source{sourceA}))
	t.Cleanup(s.Stop)

	res := s.Refresh(context.Background(), "test")

	assert.Equal(t, scheduler.StatusSuccess, res.Status)
	assert.Contains(t, res.Warning, database.ErrPersistence.Error())
	assert.True(t, store.Contains("220"), "in-memory update survives the failed write")
}

func TestRefresh_MirrorsSnapshot(t *testing.T) {
	fetcher := &stubFetcher{games: map[int]map[string]curator.GameRecord{1: records(1, true, "220")}}

	t.Run("success", func(t *testing.T) {
		mirror := &stubMirror{}
		s, store, _ := newFixture(t, fetcher, scheduler.WithMirror(mirror))

		res := s.Refresh(context.Background(), "test")
		assert.Empty(t, res.Warning)
		require.Len(t, mirror.saved, 1)
		assert.Same(t, store.Snapshot(), mirror.saved[0])
	})

	t.Run("failure is a warning", func(t *testing.T) {
		mirror := &stubMirror{err: errors.New("redis down")}
		s, store, _ := newFixture(t, fetcher, scheduler.WithMirror(mirror))

		res := s.Refresh(context.Background(), "test")
		assert.Equal(t, scheduler.StatusSuccess, res.Status)
		assert.Equal(t, "redis down", res.Warning)
		assert.True(t, store.Contains("220"))
	})
}

func TestRefresh_FailureLeavesDatasetUntouched(t *testing.T) {
	fetcher := &stubFetcher{FetchFunc: func(_ context.Context, src curator.Source) map[string]curator.GameRecord {
		if src.CuratorID == 2 {
			panic("malformed merge input")
		}
		return records(1, true, "new")
	}}
	s, store, c := newFixture(t, fetcher)
	store.Replace(records(1, true, "old"), nil)
	c.Lookup(context.Background(), "old")

	res := s.Refresh(context.Background(), "test")

	assert.Equal(t, scheduler.StatusError, res.Status)
	assert.Contains(t, res.Message, "malformed merge input")
	assert.True(t, store.Contains("old"))
	assert.False(t, store.Contains("new"))
	assert.Equal(t, 1, c.Stats().Total, "cache is only cleared after a successful swap")
}

func TestRefresh_CancelledContextDoesNotSwap(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &stubFetcher{FetchFunc: func(context.Context, curator.Source) map[string]curator.GameRecord {
		cancel()
		return records(1, true, "partial")
	}}
	s, store, _ := newFixture(t, fetcher)
	store.Replace(records(1, true, "old"), nil)

	res := s.Refresh(ctx, "test")

	assert.Equal(t, scheduler.StatusError, res.Status)
	assert.True(t, store.Contains("old"))
}

func TestRefresh_RejectsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	fetcher := &stubFetcher{FetchFunc: func(context.Context, curator.Source) map[string]curator.GameRecord {
		entered <- struct{}{}
		<-release
		return records(1, true, "1")
	}}
	s, _, _ := newFixture(t, fetcher, scheduler.WithSources([]curator.Source{sourceA}))

	done := make(chan scheduler.RefreshResult)
	go func() { done <- s.Refresh(context.Background(), "first") }()
	<-entered

	second := s.Refresh(context.Background(), "second")
	assert.Equal(t, scheduler.StatusError, second.Status)
	assert.Equal(t, scheduler.ErrRefreshInProgress.Error(), second.Message)

	close(release)
	assert.Equal(t, scheduler.StatusSuccess, (<-done).Status)
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2025, 5, 20, 12, 0, 0, 0, time.Local)
	games := records(1, true, "220")

	tests := []struct {
		name     string
		snapshot *database.Snapshot
		expected bool
	}{
		{
			name:     "empty database",
			snapshot: &database.Snapshot{LastUpdated: now.Format(database.TimestampLayout)},
			expected: true,
		},
		{
			name:     "fresh database",
			snapshot: &database.Snapshot{Games: games, LastUpdated: now.Add(-48 * time.Hour).Format(database.TimestampLayout)},
			expected: false,
		},
		{
			name:     "exactly seven days",
			snapshot: &database.Snapshot{Games: games, LastUpdated: now.Add(-scheduler.DefaultMaxAge).Format(database.TimestampLayout)},
			expected: false,
		},
		{
			name:     "older than seven days",
			snapshot: &database.Snapshot{Games: games, LastUpdated: now.Add(-8 * 24 * time.Hour).Format(database.TimestampLayout)},
			expected: true,
		},
		{
			name:     "unparseable timestamp",
			snapshot: &database.Snapshot{Games: games, LastUpdated: "2025-05-20"},
			expected: true,
		},
		{
			name:     "missing timestamp",
			snapshot: &database.Snapshot{Games: games},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := database.NewStore("")
			store.Seed(tt.snapshot)

			needed, reason := scheduler.NeedsRefresh(store, scheduler.DefaultMaxAge, now)
			assert.Equal(t, tt.expected, needed)
			if needed {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestStart_RefreshesEmptyDatabaseInBackground(t *testing.T) {
	release := make(chan struct{})
	fetcher := &stubFetcher{FetchFunc: func(context.Context, curator.Source) map[string]curator.GameRecord {
		<-release
		return records(1, true, "220")
	}}
	s, store, _ := newFixture(t, fetcher)

	s.Start()
	assert.Equal(t, 0, store.Len(), "startup does not wait for the refresh")
	close(release)

	assert.Eventually(t, func() bool { return store.Contains("220") }, 2*time.Second, 10*time.Millisecond)
}

func TestStart_SkipsFreshDatabase(t *testing.T) {
	fetcher := &stubFetcher{}
	s, store, _ := newFixture(t, fetcher)
	store.Replace(records(1, true, "220"), nil)

	s.Start()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

func TestStart_PeriodicRefresh(t *testing.T) {
	fetcher := &stubFetcher{games: map[int]map[string]curator.GameRecord{1: records(1, true, "220")}}
	s, store, _ := newFixture(t, fetcher,
		scheduler.WithSources([]curator.Source{sourceA}),
		scheduler.WithInterval(10*time.Millisecond))
	store.Replace(records(1, true, "220"), nil)

	s.Start()
	assert.Eventually(t, func() bool { return fetcher.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	after := fetcher.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, fetcher.calls.Load(), "no refresh runs after Stop")
}

func TestRefreshResult_JSON(t *testing.T) {
	ok, err := json.Marshal(scheduler.RefreshResult{Status: scheduler.StatusSuccess, OldCount: 1, NewCount: 3, Added: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success","old_count":1,"new_count":3,"added":2}`, string(ok))

	failed, err := json.Marshal(scheduler.RefreshResult{Status: scheduler.StatusError, Message: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","message":"boom"}`, string(failed))
}
