// Package database holds the authoritative offline dataset of GeForce NOW
// friendly Steam games and its durable JSON file.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShawnEdgell/gfn-availability-go/internal/curator"
)

const (
	// TimestampLayout is the format of last_updated in the dataset file.
	TimestampLayout = "2006-01-02 15:04:05"

	defaultsDirName = "defaults"
	datasetFileName = "gfn_games.json"
	fileComment     = "GeForce NOW supported games from Steam curators"
)

var (
	// ErrPersistence wraps every failure to write the dataset file.
	ErrPersistence = errors.New("database persistence error")
	// ErrStaleTimestamp is returned when last_updated is missing or cannot be parsed.
	ErrStaleTimestamp = errors.New("database timestamp unparseable")
)

// Snapshot is an immutable view of the dataset. Replace installs a new one;
// nothing mutates a Snapshot after it is published.
type Snapshot struct {
	Games       map[string]curator.GameRecord
	Sources     []curator.Source
	LastUpdated string
}

// Info summarizes the dataset for display.
type Info struct {
	DBSize      int     `json:"db_size"`
	PluginDir   *string `json:"plugin_dir"`
	LastUpdated *string `json:"last_updated"`
}

// Store keeps the current Snapshot behind an atomic pointer so Contains never
// blocks and never observes a half-built dataset. Writers serialize on mu.
type Store struct {
	pluginDir string
	current   atomic.Pointer[Snapshot]
	mu        sync.Mutex
	now       func() time.Time
}

// NewStore creates an empty store whose dataset file lives under pluginDir/defaults.
// An empty pluginDir disables loading and persisting.
func NewStore(pluginDir string) *Store {
	s := &Store{
		pluginDir: pluginDir,
		now:       time.Now,
	}
	s.current.Store(&Snapshot{Games: map[string]curator.GameRecord{}})
	return s
}

// Path returns the dataset file location, or "" when no plugin directory is configured.
func (s *Store) Path() string {
	if s.pluginDir == "" {
		return ""
	}
	return filepath.Join(s.pluginDir, defaultsDirName, datasetFileName)
}

// Snapshot returns the current dataset. Callers must not modify it.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Contains reports the stored availability flag for appID. Unknown ids are not available.
func (s *Store) Contains(appID string) bool {
	rec, ok := s.current.Load().Games[appID]
	return ok && rec.Available
}

// Available satisfies the cache's lookup source. It never fails.
func (s *Store) Available(_ context.Context, appID string) (bool, error) {
	return s.Contains(appID), nil
}

func (s *Store) Len() int {
	return len(s.current.Load().Games)
}

// Replace swaps the whole dataset and stamps it with the current time.
// It is the only mutation path; games must not be modified afterwards.
func (s *Store) Replace(games map[string]curator.GameRecord, sources []curator.Source) *Snapshot {
	if games == nil {
		games = map[string]curator.GameRecord{}
	}
	next := &Snapshot{
		Games:       games,
		Sources:     append([]curator.Source(nil), sources...),
		LastUpdated: s.now().Format(TimestampLayout),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(next)
	return next
}

// Seed installs a snapshot that was loaded from elsewhere, keeping its timestamp.
func (s *Store) Seed(snap *Snapshot) {
	if snap == nil {
		return
	}
	if snap.Games == nil {
		snap.Games = map[string]curator.GameRecord{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(snap)
}

// LastUpdated parses the dataset timestamp in local time.
func (s *Store) LastUpdated() (time.Time, error) {
	raw := s.current.Load().LastUpdated
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: no timestamp recorded", ErrStaleTimestamp)
	}
	t, err := time.ParseInLocation(TimestampLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %w", ErrStaleTimestamp, raw, err)
	}
	return t, nil
}

func (s *Store) Info() Info {
	snap := s.current.Load()
	info := Info{DBSize: len(snap.Games)}
	if s.pluginDir != "" {
		dir := s.pluginDir
		info.PluginDir = &dir
	}
	if snap.LastUpdated != "" {
		ts := snap.LastUpdated
		info.LastUpdated = &ts
	}
	return info
}

// Load reads the dataset file. A missing or malformed file leaves the dataset
// empty and is only logged, so startup never fails here.
func (s *Store) Load(_ context.Context) {
	path := s.Path()
	if path == "" {
		slog.Warn("Plugin directory not set, cannot load games database")
		return
	}
	slog.Info("Looking for games database", "path", path)

	// #nosec G304 -- path is built from the configured plugin directory
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Error("Games database file not found", "path", path)
		} else {
			slog.Error("Failed to read games database", "path", path, "error", err)
		}
		return
	}

	snap, err := decodeDataset(data)
	if err != nil {
		slog.Error("Failed to parse games database", "path", path, "error", err)
		return
	}

	s.Seed(snap)
	slog.Info("Loaded games from local database", "count", len(snap.Games), "last_updated", snap.LastUpdated)
}
