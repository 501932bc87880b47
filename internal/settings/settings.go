// Package settings persists the opaque UI settings blob next to the plugin.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/tailscale/hujson"
)

const fileName = "settings.json"

// Defaults are applied before the settings file is merged on top.
func Defaults() map[string]any {
	return map[string]any{
		"logoSize":        64,
		"glowIntensity":   50,
		"position":        "top-right",
		"customX":         16,
		"customY":         16,
		"enabled":         true,
		"hideUnavailable": false,
	}
}

// Result is the outcome of Save.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Store keeps the current settings in memory and mirrors them to settings.json.
// The blob is treated as opaque: keys are never validated or dropped.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings map[string]any
}

// NewStore creates a store rooted at dir. An empty dir keeps settings in memory only.
func NewStore(dir string) *Store {
	s := &Store{settings: Defaults()}
	if dir != "" {
		s.path = filepath.Join(dir, fileName)
	} else {
		slog.Warn("Settings directory not set, settings will not persist")
	}
	return s
}

func (s *Store) Path() string {
	return s.path
}

// Load merges the settings file onto the current values. Existing keys are
// overwritten and unknown keys are kept. Comments and trailing commas are accepted.
func (s *Store) Load() {
	if s.path == "" {
		return
	}

	// #nosec G304 -- path is built from the configured settings directory
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Error("Error loading settings", "path", s.path, "error", err)
		}
		return
	}

	loaded, err := decode(data)
	if err != nil {
		slog.Error("Error loading settings", "path", s.path, "error", err)
		return
	}

	s.mu.Lock()
	maps.Copy(s.settings, loaded)
	s.mu.Unlock()
	slog.Info("Settings loaded successfully", "path", s.path, "keys", len(loaded))
}

func decode(data []byte) (map[string]any, error) {
	standard, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(standard, &out); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

// Get returns a copy of the current settings.
func (s *Store) Get() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.settings)
}

// Save replaces the settings wholesale and writes them to disk.
func (s *Store) Save(blob map[string]any) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = maps.Clone(blob)
	if s.settings == nil {
		s.settings = map[string]any{}
	}

	if s.path == "" {
		return Result{Status: "error", Message: "Settings path not initialized"}
	}

	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		slog.Error("Error saving settings", "error", err)
		return Result{Status: "error", Message: err.Error()}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		slog.Error("Error saving settings", "path", s.path, "error", err)
		return Result{Status: "error", Message: err.Error()}
	}

	slog.Info("Settings saved successfully", "path", s.path)
	return Result{Status: "success"}
}
