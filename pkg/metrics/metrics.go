// Package metrics exposes Prometheus metrics for a cell engine: getter
// recomputations, snapshot-cache hits and misses, broadcast notifications,
// and batch flushes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cellflow-dev/cellflow/pkg/cell"
)

// Config configures the engine metrics.
type Config struct {
	// Namespace is the metrics namespace (default: "cellflow").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for flush sizes.
	// Default: 1, 2, 5, 10, 25, 50, 100.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// Option configures the engine metrics.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the flush-size histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "cellflow",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors for one instrumented engine.
type Metrics struct {
	recomputes    prometheus.Counter
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	notifications prometheus.Counter
	batchFlushes  prometheus.Counter
	flushSize     prometheus.Histogram
}

// Instrument registers the collectors and installs hooks on eng, replacing
// any hooks already set.
//
// Metrics collected:
//   - cellflow_recomputes_total: Counter of computed-getter invocations
//   - cellflow_cache_hits_total: Counter of snapshot-cache hits
//   - cellflow_cache_misses_total: Counter of snapshot-cache misses
//   - cellflow_notifications_total: Counter of subscriber callbacks invoked
//   - cellflow_batch_flushes_total: Counter of batch flushes
//   - cellflow_flush_size: Histogram of update checks per flush
//
// Example:
//
//	eng := cell.NewEngine()
//	metrics.Instrument(eng, metrics.WithNamespace("myapp"))
//	http.Handle("/metrics", promhttp.Handler())
func Instrument(eng *cell.Engine, opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)
	m := &Metrics{
		recomputes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recomputes_total",
			Help:        "Total number of computed-cell getter invocations",
			ConstLabels: config.ConstLabels,
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cache_hits_total",
			Help:        "Total number of computed-cell reads served from the snapshot cache",
			ConstLabels: config.ConstLabels,
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "cache_misses_total",
			Help:        "Total number of computed-cell reads that missed the snapshot cache",
			ConstLabels: config.ConstLabels,
		}),
		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total number of subscriber callbacks invoked by change broadcasts",
			ConstLabels: config.ConstLabels,
		}),
		batchFlushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "batch_flushes_total",
			Help:        "Total number of batch flushes",
			ConstLabels: config.ConstLabels,
		}),
		flushSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_size",
			Help:        "Update checks run per batch flush",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}

	eng.SetHooks(cell.Hooks{
		OnRecompute: func(string) { m.recomputes.Inc() },
		OnCacheHit:  func(string) { m.cacheHits.Inc() },
		OnCacheMiss: func(string) { m.cacheMisses.Inc() },
		OnNotify: func(_ string, subscribers int) {
			m.notifications.Add(float64(subscribers))
		},
		OnFlush: func(checks int) {
			m.batchFlushes.Inc()
			m.flushSize.Observe(float64(checks))
		},
	})
	return m
}
