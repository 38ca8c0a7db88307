package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the ordering service.
type Metrics struct {
	// Coordinate resolution metrics.
	GeocodeRequests  *prometheus.CounterVec // labels: outcome={success,error,empty}
	CoordinateCache  *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeDuration  prometheus.Histogram
	GeocodingEnabled prometheus.Gauge

	// Matching metrics.
	MatchRuns        prometheus.Counter
	MatchDuration    prometheus.Histogram
	Candidates       *prometheus.CounterVec // labels: kind={eligible,unreachable}
	OrdersMatched    prometheus.Counter
	OrdersRegistered prometheus.Counter

	// Background and event metrics.
	WarmerPasses       *prometheus.CounterVec // labels: outcome={success,error}
	EventPublishErrors prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.GeocodeRequests,
		m.CoordinateCache,
		m.GeocodeDuration,
		m.GeocodingEnabled,
		m.MatchRuns,
		m.MatchDuration,
		m.Candidates,
		m.OrdersMatched,
		m.OrdersRegistered,
		m.WarmerPasses,
		m.EventPublishErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "star_burger",
			Name:      "geocode_requests_total",
			Help:      "Geocoder calls by outcome.",
		}, []string{"outcome"}),
		CoordinateCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "star_burger",
			Name:      "coordinate_cache_total",
			Help:      "Coordinate cache lookups by result.",
		}, []string{"result"}),
		GeocodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "star_burger",
			Name:      "geocode_duration_seconds",
			Help:      "Geocoder request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodingEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "star_burger",
			Name:      "geocoding_enabled",
			Help:      "1 when network geocoding is enabled, 0 otherwise.",
		}),
		MatchRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "star_burger",
			Name:      "match_runs_total",
			Help:      "Order matching invocations.",
		}),
		MatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "star_burger",
			Name:      "match_duration_seconds",
			Help:      "Duration of a complete matching run over all unprocessed orders.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		Candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "star_burger",
			Name:      "candidates_total",
			Help:      "Ranked restaurant candidates by kind.",
		}, []string{"kind"}),
		OrdersMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "star_burger",
			Name:      "orders_matched_total",
			Help:      "Orders ranked across all matching runs.",
		}),
		OrdersRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "star_burger",
			Name:      "orders_registered_total",
			Help:      "Orders accepted through the order API.",
		}),
		WarmerPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "star_burger",
			Name:      "warmer_passes_total",
			Help:      "Address warm-up passes by outcome.",
		}, []string{"outcome"}),
		EventPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "star_burger",
			Name:      "event_publish_errors_total",
			Help:      "Order events that could not be published.",
		}),
	}
}
