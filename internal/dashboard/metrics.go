package dashboard

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "densitymap"

// Outcome label for a finished analysis.
const outcomeOK = "ok"

var analysisDurationBuckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}

// metrics is registered on a per-server registry so several servers can
// coexist in one process.
type metrics struct {
	registry *prometheus.Registry
	analyses *prometheus.CounterVec
	duration *prometheus.HistogramVec
	polygons prometheus.Histogram
	points   prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "analyses_total",
			Help:      "Analyses run, by endpoint and outcome (ok or error kind).",
		}, []string{"endpoint", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of one analysis including upload parsing.",
			Buckets:   analysisDurationBuckets,
		}, []string{"endpoint"}),
		polygons: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "layer_polygons",
			Help:      "Polygons per analyzed layer.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		points: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "analysis_points",
			Help:      "Points per analysis.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		}),
	}
	m.registry.MustRegister(
		m.analyses, m.duration, m.polygons, m.points,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *metrics) observe(endpoint, outcome string, start time.Time, polygons, points int) {
	m.analyses.WithLabelValues(endpoint, outcome).Inc()
	m.duration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if outcome == outcomeOK {
		m.polygons.Observe(float64(polygons))
		m.points.Observe(float64(points))
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
