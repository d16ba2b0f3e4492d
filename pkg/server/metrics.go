package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "liveview").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for event and mount durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "liveview",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors shared by every session of a
// server. A nil *Metrics records nothing.
type Metrics struct {
	activeSessions prometheus.Gauge
	sessionsTotal  prometheus.Counter
	mountDuration  prometheus.Histogram
	mountErrors    prometheus.Counter
	eventsTotal    *prometheus.CounterVec
	eventDuration  prometheus.Histogram
	rejections     *prometheus.CounterVec
	patchesSent    prometheus.Counter
	queueDrops     prometheus.Counter
	terminations   *prometheus.CounterVec
}

// NewMetrics registers the liveview collectors.
// Registering twice against the same registry panics, as with promauto.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of mounted sessions",
			ConstLabels: config.ConstLabels,
		}),

		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_total",
			Help:        "Total number of sessions mounted",
			ConstLabels: config.ConstLabels,
		}),

		mountDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "mount_duration_seconds",
			Help:        "View mount duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		mountErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "mount_errors_total",
			Help:        "Total number of failed mounts",
			ConstLabels: config.ConstLabels,
		}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_total",
			Help:        "Total number of events processed",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		eventDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "event_duration_seconds",
			Help:        "Event processing duration in seconds, render and diff included",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "event_rejections_total",
			Help:        "Total number of rejected events by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		patchesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "patches_sent_total",
			Help:        "Total number of patches sent to clients",
			ConstLabels: config.ConstLabels,
		}),

		queueDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "event_queue_drops_total",
			Help:        "Total number of events dropped on a full queue",
			ConstLabels: config.ConstLabels,
		}),

		terminations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "session_terminations_total",
			Help:        "Total number of terminated sessions by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),
	}
}

func (m *Metrics) mounted(d time.Duration) {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionsTotal.Inc()
	m.mountDuration.Observe(d.Seconds())
}

func (m *Metrics) mountFailed() {
	if m == nil {
		return
	}
	m.mountErrors.Inc()
}

func (m *Metrics) event(d time.Duration, patches int, reason string) {
	if m == nil {
		return
	}
	m.eventDuration.Observe(d.Seconds())
	if reason != "" {
		m.eventsTotal.WithLabelValues("rejected").Inc()
		m.rejections.WithLabelValues(reason).Inc()
		return
	}
	m.eventsTotal.WithLabelValues("ok").Inc()
	m.patchesSent.Add(float64(patches))
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.queueDrops.Inc()
	m.rejections.WithLabelValues("busy").Inc()
}

func (m *Metrics) terminated(reason string, wasMounted bool) {
	if m == nil {
		return
	}
	if wasMounted {
		m.activeSessions.Dec()
	}
	m.terminations.WithLabelValues(reason).Inc()
}
