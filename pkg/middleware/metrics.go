package middleware

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/DataRecce/recce-sub014/pkg/server"
	"github.com/DataRecce/recce-sub014/pkg/slot"
)

// MetricsConfig configures the Prometheus navigation middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace. Default: "recce".
	Namespace string

	// Subsystem is the metrics subsystem. Default: "".
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for navigation duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry receives the collectors. Default:
	// prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus navigation middleware.
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

// WithBuckets sets the duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry the collectors register on.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "recce",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// navMetrics holds the collectors one Prometheus middleware records into.
type navMetrics struct {
	navigations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	patches     prometheus.Counter
	slotVisible *prometheus.GaugeVec
	suggestions prometheus.Counter
}

// Collectors on the default registerer are created once per process;
// registering the same names twice panics inside promauto.
var (
	defaultNavMetrics     *navMetrics
	defaultNavMetricsOnce sync.Once
)

func newNavMetrics(config MetricsConfig) *navMetrics {
	factory := promauto.With(config.Registry)

	return &navMetrics{
		navigations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "navigations_total",
			Help:        "Navigations through the slot pipeline by matched slot and outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"slot", "status"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "navigation_duration_seconds",
			Help:        "Navigation pipeline duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"slot"}),

		patches: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "navigation_patches_total",
			Help:        "DOM patches emitted by navigations",
			ConstLabels: config.ConstLabels,
		}),

		slotVisible: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "slot_visible",
			Help:        "Whether a slot is currently visible (1) or mounted hidden (0)",
			ConstLabels: config.ConstLabels,
		}, []string{"slot"}),

		suggestions: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "navigation_suggestions_total",
			Help:        "Unmatched navigations answered with a closest-route suggestion",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Prometheus returns navigation middleware that records metrics for every
// pass through the pipeline.
//
// Metrics collected, under the default "recce" namespace:
//   - recce_navigations_total{slot,status}: navigations by matched slot and
//     outcome (ok, unmatched, rejected, slot_init_error)
//   - recce_navigation_duration_seconds{slot}: pipeline duration
//   - recce_navigation_patches_total: DOM patches emitted
//   - recce_slot_visible{slot}: per-slot visibility gauge
//   - recce_navigation_suggestions_total: did-you-mean answers
//
// The slot label is the matched slot name, or "none" when the path resolved
// to no slot, so cardinality is bounded by the declaration set.
//
// Collectors register on prometheus.DefaultRegisterer once per process.
// Pass WithRegistry to isolate registrations, for example in tests.
func Prometheus(opts ...MetricsOption) server.Middleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	var m *navMetrics
	if config.Registry == prometheus.DefaultRegisterer {
		defaultNavMetricsOnce.Do(func() {
			defaultNavMetrics = newNavMetrics(config)
		})
		m = defaultNavMetrics
	} else {
		m = newNavMetrics(config)
	}

	return func(next server.NavigateFunc) server.NavigateFunc {
		return func(path string) *server.NavigateResult {
			start := time.Now()
			res := next(path)

			slotLabel := res.Match.Slot
			if slotLabel == "" {
				slotLabel = "none"
			}

			m.duration.WithLabelValues(slotLabel).Observe(time.Since(start).Seconds())
			m.navigations.WithLabelValues(slotLabel, statusLabel(res)).Inc()
			m.patches.Add(float64(len(res.Patches)))
			for name, visible := range res.Visibility {
				v := 0.0
				if visible {
					v = 1
				}
				m.slotVisible.WithLabelValues(name).Set(v)
			}
			if res.Suggestion != "" {
				m.suggestions.Inc()
			}
			return res
		}
	}
}

// statusLabel buckets a navigation outcome into a fixed status set so error
// text never becomes a label value.
func statusLabel(res *server.NavigateResult) string {
	switch {
	case res.Err != nil:
		var initErr *slot.InitError
		if errors.As(res.Err, &initErr) {
			return "slot_init_error"
		}
		return "rejected"
	case !res.Match.Matched:
		return "unmatched"
	default:
		return "ok"
	}
}
