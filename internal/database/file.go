package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/ShawnEdgell/gfn-availability-go/internal/curator"
)

const (
	lockTimeout    = 5 * time.Second
	lockRetryDelay = 100 * time.Millisecond
)

// datasetFile is the on-disk layout of gfn_games.json.
type datasetFile struct {
	Comment     string               `json:"comment"`
	LastUpdated string               `json:"last_updated"`
	Sources     []curator.Source     `json:"sources"`
	Games       map[string]gameEntry `json:"games"`
}

type gameEntry struct {
	Available bool `json:"available"`
}

func decodeDataset(data []byte) (*Snapshot, error) {
	var file datasetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	games := make(map[string]curator.GameRecord, len(file.Games))
	for appID, entry := range file.Games {
		games[appID] = curator.GameRecord{AppID: appID, Available: entry.Available}
	}
	return &Snapshot{
		Games:       games,
		Sources:     file.Sources,
		LastUpdated: file.LastUpdated,
	}, nil
}

// encodeDataset renders a snapshot; encoding/json emits game ids in sorted order.
func encodeDataset(snap *Snapshot) ([]byte, error) {
	file := datasetFile{
		Comment:     fileComment,
		LastUpdated: snap.LastUpdated,
		Sources:     snap.Sources,
		Games:       make(map[string]gameEntry, len(snap.Games)),
	}
	if file.Sources == nil {
		file.Sources = []curator.Source{}
	}
	for appID, rec := range snap.Games {
		file.Games[appID] = gameEntry{Available: rec.Available}
	}
	return json.MarshalIndent(file, "", "  ")
}

// Persist writes the current snapshot to the dataset file. The write goes to a
// temporary file that is renamed into place while holding a file lock.
// Failures wrap ErrPersistence; the in-memory dataset is left as is.
func (s *Store) Persist(ctx context.Context) error {
	path := s.Path()
	if path == "" {
		slog.Warn("Plugin directory not set, games database kept in memory only")
		return nil
	}
	snap := s.current.Load()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create directory %s: %w", ErrPersistence, dir, err)
	}

	data, err := encodeDataset(snap)
	if err != nil {
		return fmt.Errorf("%w: encode dataset: %w", ErrPersistence, err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("%w: lock %s: %w", ErrPersistence, path, err)
	}
	if !locked {
		return fmt.Errorf("%w: lock %s: not acquired", ErrPersistence, path)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("Failed to release games database lock", "path", path, "error", err)
		}
	}()

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrPersistence, tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: rename %s: %w", ErrPersistence, tempPath, err)
	}

	slog.Info("Games database saved", "path", path, "count", len(snap.Games))
	return nil
}
