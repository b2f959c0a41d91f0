// Package instrument provides reactive.Hooks implementations that export
// what the engine does to Prometheus, OpenTelemetry and slog.
package instrument

import (
	"strconv"
	"time"

	"github.com/delaneyj/cascade/reactive"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusConfig configures the Prometheus hooks.
type PrometheusConfig struct {
	// Namespace is the metrics namespace (default: "cascade").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for durations.
	// Default: fine grained buckets from 1µs to 100ms
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// PrometheusOption configures the Prometheus hooks.
type PrometheusOption func(*PrometheusConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) PrometheusOption {
	return func(c *PrometheusConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) PrometheusOption {
	return func(c *PrometheusConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) PrometheusOption {
	return func(c *PrometheusConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the duration histogram buckets.
func WithBuckets(buckets []float64) PrometheusOption {
	return func(c *PrometheusConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) PrometheusOption {
	return func(c *PrometheusConfig) {
		c.Registry = registry
	}
}

func defaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		Namespace: "cascade",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 6),
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Prometheus counts and times recomputations, effect runs, flushes, batches
// and disposals.
//
// Metrics collected:
//   - cascade_recomputations_total: Counter of computed runs by whether the value changed
//   - cascade_recompute_duration_seconds: Histogram of computed run duration
//   - cascade_effect_runs_total: Counter of effect runs by status
//   - cascade_effect_duration_seconds: Histogram of effect run duration
//   - cascade_flushes_total: Counter of queue flushes by status
//   - cascade_flush_rounds: Histogram of drain rounds per flush
//   - cascade_flush_duration_seconds: Histogram of flush duration
//   - cascade_flushed_computations_total: Counter of computations run by flushes
//   - cascade_batches_total: Counter of committed outermost batches
//   - cascade_batch_signals: Histogram of distinct signals written per batch
//   - cascade_disposals_total: Counter of disposed nodes by kind
type Prometheus struct {
	recomputations *prometheus.CounterVec
	recomputeTime  prometheus.Histogram
	effectRuns     *prometheus.CounterVec
	effectTime     prometheus.Histogram
	flushes        *prometheus.CounterVec
	flushRounds    prometheus.Histogram
	flushTime      prometheus.Histogram
	flushedNodes   prometheus.Counter
	batches        prometheus.Counter
	batchSignals   prometheus.Histogram
	disposals      *prometheus.CounterVec
}

var _ reactive.Hooks = (*Prometheus)(nil)

// NewPrometheus registers the metrics with the configured registry. Two
// instances sharing a registry need distinct namespaces or subsystems.
//
// Example:
//
//	rs := reactive.CreateReactiveSystem(
//	    reactive.WithHooks(instrument.NewPrometheus(
//	        instrument.WithSubsystem("editor"),
//	    )),
//	)
func NewPrometheus(opts ...PrometheusOption) *Prometheus {
	config := defaultPrometheusConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Prometheus{
		recomputations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recomputations_total",
			Help:        "Total number of computed signal recomputations",
			ConstLabels: config.ConstLabels,
		}, []string{"changed"}),

		recomputeTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "recompute_duration_seconds",
			Help:        "Computed signal recomputation duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		effectRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "effect_runs_total",
			Help:        "Total number of effect runs",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		effectTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "effect_duration_seconds",
			Help:        "Effect run duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flushes_total",
			Help:        "Total number of update queue flushes",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		flushRounds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_rounds",
			Help:        "Drain rounds per update queue flush",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 8), // 1 to 128
		}),

		flushTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_duration_seconds",
			Help:        "Update queue flush duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		batches: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "batches_total",
			Help:        "Total number of committed outermost batches",
			ConstLabels: config.ConstLabels,
		}),

		batchSignals: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "batch_signals",
			Help:        "Distinct signals written per batch",
			ConstLabels: config.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(1, 4, 6), // 1 to 1024
		}),

		disposals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "disposals_total",
			Help:        "Total number of disposed nodes",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		flushedNodes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flushed_computations_total",
			Help:        "Total number of computations run by update queue flushes",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (p *Prometheus) Recomputed(_ reactive.Node, changed bool, took time.Duration) {
	p.recomputations.WithLabelValues(strconv.FormatBool(changed)).Inc()
	p.recomputeTime.Observe(took.Seconds())
}

func (p *Prometheus) EffectRan(_ reactive.Node, took time.Duration, err error) {
	p.effectRuns.WithLabelValues(status(err)).Inc()
	p.effectTime.Observe(took.Seconds())
}

func (p *Prometheus) Flushed(rounds, processed int, took time.Duration, err error) {
	p.flushes.WithLabelValues(status(err)).Inc()
	p.flushRounds.Observe(float64(rounds))
	p.flushTime.Observe(took.Seconds())
	p.flushedNodes.Add(float64(processed))
}

func (p *Prometheus) BatchCommitted(signals int) {
	p.batches.Inc()
	p.batchSignals.Observe(float64(signals))
}

func (p *Prometheus) Disposed(n reactive.Node) {
	p.disposals.WithLabelValues(n.Kind().String()).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
