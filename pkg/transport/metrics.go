package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures transport metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "bidi").
	Namespace string

	// Subsystem is the metrics subsystem (default: "transport").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for command duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures transport metrics.
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
		Namespace: "bidi",
		Subsystem: "transport",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Command outcomes used as the "outcome" label.
const (
	outcomeSuccess     = "success"
	outcomeRemoteError = "remote_error"
	outcomeTimeout     = "timeout"
	outcomeClosed      = "closed"
)

// Event statuses used as the "status" label.
const (
	eventHandled       = "handled"
	eventUnhandled     = "unhandled"
	eventDecodeError   = "decode_error"
	eventObserverError = "observer_error"
)

// Metrics holds the Prometheus collectors for one or more transports. A nil
// *Metrics records nothing.
type Metrics struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	pendingCommands prometheus.Gauge
	eventsTotal     *prometheus.CounterVec
	orphanResponses prometheus.Counter
	malformedFrames prometheus.Counter
	framesTotal     *prometheus.CounterVec
}

// NewMetrics registers transport collectors. Registering twice against the
// same registry panics, as with any promauto collector.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "commands_total",
			Help:        "Total number of completed commands by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "outcome"}),

		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "command_duration_seconds",
			Help:        "Time from sending a command to its completion in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method"}),

		pendingCommands: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pending_commands",
			Help:        "Number of commands awaiting a response",
			ConstLabels: config.ConstLabels,
		}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "events_total",
			Help:        "Total number of inbound events by dispatch status",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "status"}),

		orphanResponses: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "orphan_responses_total",
			Help:        "Total number of responses that matched no pending command",
			ConstLabels: config.ConstLabels,
		}),

		malformedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "malformed_frames_total",
			Help:        "Total number of inbound frames that failed to decode",
			ConstLabels: config.ConstLabels,
		}),

		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_total",
			Help:        "Total number of frames by direction",
			ConstLabels: config.ConstLabels,
		}, []string{"direction"}),
	}
}

func (m *Metrics) commandStarted() {
	if m == nil {
		return
	}
	m.pendingCommands.Inc()
}

func (m *Metrics) commandFinished(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.pendingCommands.Dec()
	m.commandsTotal.WithLabelValues(method, outcome).Inc()
	m.commandDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) event(method, status string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(method, status).Inc()
}

func (m *Metrics) orphanResponse() {
	if m == nil {
		return
	}
	m.orphanResponses.Inc()
}

func (m *Metrics) malformedFrame() {
	if m == nil {
		return
	}
	m.malformedFrames.Inc()
}

func (m *Metrics) frame(dir Direction) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(string(dir)).Inc()
}
