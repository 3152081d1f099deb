package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects gateway level counters for the attached scanner.
type Metrics struct {
	registry *prometheus.Registry

	Captures        *prometheus.CounterVec
	CaptureBytes    prometheus.Counter
	CaptureDuration prometheus.Histogram
	Identifications *prometheus.CounterVec
	Unhandled       prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Captures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdscan_captures_total",
				Help: "Picture captures by result.",
			},
			[]string{"result"},
		),
		CaptureBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pdscan_capture_bytes_total",
			Help: "Picture bytes transferred from the scanner.",
		}),
		CaptureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pdscan_capture_duration_seconds",
			Help:    "Time from picture mode start to picture mode end.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		Identifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pdscan_identifications_total",
				Help: "Device identification requests by result.",
			},
			[]string{"result"},
		),
		Unhandled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pdscan_unhandled_messages",
			Help: "Lines received outside the protocol phase that expected them.",
		}),
	}
	m.registry.MustRegister(
		m.Captures,
		m.CaptureBytes,
		m.CaptureDuration,
		m.Identifications,
		m.Unhandled,
	)
	return m
}

// ObserveCapture records one capture attempt.
func (m *Metrics) ObserveCapture(result string, bytes int, elapsed time.Duration) {
	m.Captures.WithLabelValues(result).Inc()
	m.CaptureBytes.Add(float64(bytes))
	m.CaptureDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
