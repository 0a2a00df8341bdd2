package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "stage"

	kindLabel  = "kind"
	cacheLabel = "cache"
)

// Metrics exports telemetry to Prometheus.
type Metrics struct {
	factory promauto.Factory

	events        *prometheus.CounterVec
	evicted       *prometheus.CounterVec
	quality       prometheus.Gauge
	pressure      prometheus.Gauge
	memoryPercent prometheus.Gauge
	frameDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		factory: f,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "The number of telemetry events published, by kind.",
		}, []string{kindLabel}),
		evicted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evicted_entries_total",
			Help:      "The number of cache entries evicted under memory pressure.",
		}, []string{cacheLabel}),
		quality: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_quality",
			Help:      "The current adaptive render quality, from 0.5 to 1.",
		}),
		pressure: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_pressure_level",
			Help:      "The memory pressure level: 0 low, 1 medium, 2 high, 3 critical.",
		}),
		memoryPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_used_percent",
			Help:      "The heap usage percentage at the last pressure transition.",
		}),
		frameDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_paint_seconds",
			Help:      "The time spent painting a frame.",
			Buckets:   []float64{.001, .002, .004, .008, .016, .033, .066, .1, .25},
		}),
	}
}

// Observe records e. It is a Listener and is usually subscribed to a Hub.
func (m *Metrics) Observe(e Event) {
	m.events.WithLabelValues(e.Kind.String()).Inc()

	switch e.Kind {
	case KindQuality:
		m.quality.Set(e.Value)
	case KindPressure:
		m.pressure.Set(float64(levelIndex(e.Level)))
		m.memoryPercent.Set(e.Value)
	case KindFrame:
		m.frameDuration.Observe(e.Duration.Seconds())
	case KindEviction:
		m.evicted.WithLabelValues(e.Source).Add(e.Value)
	}
}

// Attach subscribes m to h and returns the unsubscribe function.
func (m *Metrics) Attach(h *Hub) func() {
	m.quality.Set(1)
	return h.Subscribe(m.Observe)
}

// GaugeFunc registers a gauge read from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

// CounterFunc registers a counter read from fn at scrape time.
// fn must be monotonic.
func (m *Metrics) CounterFunc(name, help string, fn func() float64) {
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

func levelIndex(level string) int {
	switch level {
	case "medium":
		return 1
	case "high":
		return 2
	case "critical":
		return 3
	}
	return 0
}
