package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are exported in the Prometheus format on /metrics
type Metrics struct {
	registry *prometheus.Registry

	detections      *prometheus.CounterVec
	detectLatency   *prometheus.HistogramVec
	detectFailures  *prometheus.CounterVec
	anonymisations  *prometheus.CounterVec
	uploads         prometheus.Counter
	feedbackFlagged prometheus.Counter
	feedbackText    prometheus.Counter
}

func NewMetrics(activeSessions func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anonymiser_detections_total",
			Help: "Detector selections, by detector and whether the record came from the session cache",
		}, []string{"detector", "cached"}),
		detectLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anonymiser_detector_latency_seconds",
			Help:    "Time taken by uncached detector calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"detector"}),
		detectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anonymiser_detector_failures_total",
			Help: "Detector calls that failed",
		}, []string{"detector"}),
		anonymisations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anonymiser_anonymisations_total",
			Help: "Anonymised images produced, by mode",
		}, []string{"mode", "compound"}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anonymiser_uploads_total",
			Help: "Images uploaded",
		}),
		feedbackFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anonymiser_feedback_flagged_total",
			Help: "Images flagged by users",
		}),
		feedbackText: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anonymiser_feedback_comments_total",
			Help: "Text feedback submissions",
		}),
	}
	m.registry.MustRegister(m.detections, m.detectLatency, m.detectFailures, m.anonymisations, m.uploads, m.feedbackFlagged, m.feedbackText)
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "anonymiser_sessions_active",
			Help: "Sessions currently held in memory",
		},
		func() float64 { return float64(activeSessions()) },
	))
	return m
}

func (m *Metrics) detected(detector string, cached bool, elapsed time.Duration) {
	m.detections.WithLabelValues(detector, strconv.FormatBool(cached)).Inc()
	if !cached {
		m.detectLatency.WithLabelValues(detector).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) detectFailed(detector string) {
	m.detectFailures.WithLabelValues(detector).Inc()
}

func (m *Metrics) anonymised(mode string, compound bool) {
	m.anonymisations.WithLabelValues(mode, strconv.FormatBool(compound)).Inc()
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
