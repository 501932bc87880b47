// Package telemetry holds the Prometheus collectors for the availability service.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gfn"

// Lookup outcomes recorded by the availability cache.
const (
	LookupHit           = "hit"
	LookupMiss          = "miss"
	LookupStaleFallback = "stale_fallback"
	LookupError         = "error"
)

// Metrics groups every collector the service exports. A nil *Metrics is valid
// and records nothing, so components can be built without telemetry in tests.
type Metrics struct {
	pagesFetched    *prometheus.CounterVec
	pageRetries     *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheCleared    prometheus.Counter
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	databaseSize    prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		pagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "curator",
			Name:      "pages_total",
			Help:      "Curator pages requested, by curator and result.",
		}, []string{"curator_id", "result"}),
		pageRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "curator",
			Name:      "page_retries_total",
			Help:      "Curator page attempts that were retried after a failure.",
		}, []string{"curator_id"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Availability lookups, by outcome.",
		}, []string{"outcome"}),
		cacheCleared: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "cleared_entries_total",
			Help:      "Cache entries removed by clear operations.",
		}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "refreshes_total",
			Help:      "Database refresh runs, by status.",
		}, []string{"status"}),
		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of database refresh runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		databaseSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "games",
			Help:      "Number of games in the in-memory database.",
		}),
	}
}

func (m *Metrics) PageFetched(curatorID int, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.pagesFetched.WithLabelValues(strconv.Itoa(curatorID), result).Inc()
}

func (m *Metrics) PageRetried(curatorID int) {
	if m == nil {
		return
	}
	m.pageRetries.WithLabelValues(strconv.Itoa(curatorID)).Inc()
}

func (m *Metrics) CacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheCleared(n int) {
	if m == nil {
		return
	}
	m.cacheCleared.Add(float64(n))
}

func (m *Metrics) RefreshCompleted(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(status).Inc()
	m.refreshDuration.Observe(took.Seconds())
}

func (m *Metrics) SetDatabaseSize(n int) {
	if m == nil {
		return
	}
	m.databaseSize.Set(float64(n))
}
