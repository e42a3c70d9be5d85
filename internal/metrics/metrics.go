// Package metrics exposes Prometheus instrumentation for the upload pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	registry          *prometheus.Registry
	uploadsTotal      *prometheus.CounterVec
	rejectedTotal     *prometheus.CounterVec
	uploadBytesTotal  prometheus.Counter
	watermarkDuration prometheus.Histogram
	watermarkFailures prometheus.Counter
	transferDuration  *prometheus.HistogramVec
	transferFallbacks *prometheus.CounterVec
	downloadsTotal    *prometheus.CounterVec
}

// New creates a new metrics instance backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		uploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "videobooth_uploads_total",
				Help: "Total number of accepted uploads by authoritative storage",
			},
			[]string{"storage"},
		),
		rejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "videobooth_uploads_rejected_total",
				Help: "Total number of rejected uploads by reason",
			},
			[]string{"reason"},
		),
		uploadBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "videobooth_upload_bytes_total",
				Help: "Total bytes written to the staging directory",
			},
		),
		watermarkDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "videobooth_watermark_duration_seconds",
				Help:    "Duration of watermark compositing in seconds",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s to ~2 minutes
			},
		),
		watermarkFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "videobooth_watermark_failures_total",
				Help: "Total number of failed watermark compositing runs",
			},
		),
		transferDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "videobooth_remote_transfer_duration_seconds",
				Help:    "Duration of remote transfers in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~6 minutes
			},
			[]string{"backend"},
		),
		transferFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "videobooth_remote_transfer_fallbacks_total",
				Help: "Total number of remote transfers that failed and fell back to local storage",
			},
			[]string{"backend"},
		),
		downloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "videobooth_downloads_total",
				Help: "Total number of retrieval requests by result",
			},
			[]string{"result"},
		),
	}
}

// Handler returns the HTTP handler serving the metrics exposition.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordUpload records an accepted upload.
func (m *Metrics) RecordUpload(storage string, bytes int64) {
	m.uploadsTotal.WithLabelValues(storage).Inc()
	if bytes > 0 {
		m.uploadBytesTotal.Add(float64(bytes))
	}
}

// RecordRejected records a rejected upload.
func (m *Metrics) RecordRejected(reason string) {
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveWatermark records a compositing run.
func (m *Metrics) ObserveWatermark(d time.Duration, err error) {
	m.watermarkDuration.Observe(d.Seconds())
	if err != nil {
		m.watermarkFailures.Inc()
	}
}

// ObserveTransfer records a remote transfer attempt.
func (m *Metrics) ObserveTransfer(backend string, d time.Duration, fallback bool) {
	m.transferDuration.WithLabelValues(backend).Observe(d.Seconds())
	if fallback {
		m.transferFallbacks.WithLabelValues(backend).Inc()
	}
}

// RecordDownload records a retrieval request.
func (m *Metrics) RecordDownload(result string) {
	m.downloadsTotal.WithLabelValues(result).Inc()
}
