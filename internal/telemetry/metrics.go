package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "extsearch"

// Metrics holds the Prometheus collectors of the query builder and
// search service. Each Metrics has its own registry.
type Metrics struct {
	registry *prometheus.Registry

	builds          *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	settingsRefresh *prometheus.CounterVec
	searchSeconds   *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		builds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_builds_total",
			Help:      "Query trees built, by model label.",
		}, []string{"model"}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_hits_total",
			Help:      "Query tree lookups served from the cache.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_misses_total",
			Help:      "Query tree lookups that had to build.",
		}),
		settingsRefresh: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_refresh_total",
			Help:      "Settings layer refreshes, by layer.",
		}, []string{"layer"}),
		searchSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_seconds",
			Help:      "Search request latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"model"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// QueryBuilt counts a fresh build for model.
func (m *Metrics) QueryBuilt(model string) { m.builds.WithLabelValues(model).Inc() }

// CacheHit counts a cached lookup.
func (m *Metrics) CacheHit() { m.cacheHits.Inc() }

// CacheMiss counts a lookup that built.
func (m *Metrics) CacheMiss() { m.cacheMisses.Inc() }

// SettingsRefreshed counts a refresh of layer.
func (m *Metrics) SettingsRefreshed(layer string) { m.settingsRefresh.WithLabelValues(layer).Inc() }

// ObserveSearch records the latency of one search on model.
func (m *Metrics) ObserveSearch(model string, d time.Duration) {
	m.searchSeconds.WithLabelValues(model).Observe(d.Seconds())
}
