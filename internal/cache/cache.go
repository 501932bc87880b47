// Package cache provides the time-bounded availability cache that sits in
// front of the local games database.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ShawnEdgell/gfn-availability-go/internal/telemetry"
)

// DefaultTTL is how long a verdict stays fresh.
const DefaultTTL = 2 * time.Hour

// Source answers availability questions on a cache miss.
type Source interface {
	Available(ctx context.Context, appID string) (bool, error)
}

// Entry is the last known verdict for one app id.
type Entry struct {
	Available bool
	CheckedAt time.Time
}

// Result is returned by Lookup. Error is set when the source failed and the
// answer is a best-effort fallback.
type Result struct {
	Available bool   `json:"available"`
	Cached    bool   `json:"cached"`
	Error     string `json:"error,omitempty"`
}

type Stats struct {
	Total   int `json:"total"`
	Expired int `json:"expired"`
	Fresh   int `json:"fresh"`
}

// AvailabilityCache maps app ids to their last verdict. Entries are never
// evicted; expiry is only checked when an entry is read.
type AvailabilityCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	// generation is bumped by Clear. A lookup only stores its answer if no
	// Clear happened while it was asking the source.
	generation uint64
	ttl        time.Duration
	source     Source
	now        func() time.Time
	metrics    *telemetry.Metrics
}

type Option func(*AvailabilityCache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *AvailabilityCache) {
		c.now = now
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *AvailabilityCache) {
		c.metrics = m
	}
}

// New creates an empty cache over source. A non-positive ttl falls back to DefaultTTL.
func New(source Source, ttl time.Duration, opts ...Option) *AvailabilityCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &AvailabilityCache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		source:  source,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup answers from a fresh entry when there is one, otherwise asks the
// source and records the answer. If the source fails, the last known verdict
// is returned even when expired; with no verdict at all the answer is false.
// Lookup never fails.
func (c *AvailabilityCache) Lookup(ctx context.Context, appID string) Result {
	c.mu.RLock()
	entry, found := c.entries[appID]
	gen := c.generation
	c.mu.RUnlock()

	if found && c.now().Sub(entry.CheckedAt) < c.ttl {
		slog.Debug("Returning cached availability", "appid", appID, "available", entry.Available)
		c.metrics.CacheLookup(telemetry.LookupHit)
		return Result{Available: entry.Available, Cached: true}
	}

	available, err := c.source.Available(ctx, appID)
	if err != nil {
		slog.Error("Error checking availability", "appid", appID, "error", err)
		if found {
			c.metrics.CacheLookup(telemetry.LookupStaleFallback)
			return Result{Available: entry.Available, Cached: true, Error: err.Error()}
		}
		c.metrics.CacheLookup(telemetry.LookupError)
		return Result{Available: false, Cached: false, Error: err.Error()}
	}

	c.mu.Lock()
	if c.generation == gen {
		c.entries[appID] = Entry{Available: available, CheckedAt: c.now()}
	} else {
		slog.Debug("Cache cleared during lookup, not storing verdict", "appid", appID)
	}
	c.mu.Unlock()

	c.metrics.CacheLookup(telemetry.LookupMiss)
	return Result{Available: available, Cached: false}
}

// Clear drops every entry and returns how many there were.
func (c *AvailabilityCache) Clear() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]Entry)
	c.generation++
	c.mu.Unlock()

	c.metrics.CacheCleared(n)
	slog.Info("Cleared cached availability entries", "count", n)
	return n
}

// Stats counts entries by freshness without modifying the cache.
func (c *AvailabilityCache) Stats() Stats {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Stats{Total: len(c.entries)}
	for _, e := range c.entries {
		if now.Sub(e.CheckedAt) >= c.ttl {
			st.Expired++
		}
	}
	st.Fresh = st.Total - st.Expired
	return st
}
