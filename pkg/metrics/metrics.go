// Package metrics exposes Prometheus collectors for a scrape run on a
// dedicated registry. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wellbin"

// Download outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
	OutcomePlanned = "planned"
)

type Metrics struct {
	Registry          *prometheus.Registry
	StudiesDiscovered *prometheus.CounterVec
	Downloads         *prometheus.CounterVec
	DownloadBytes     prometheus.Counter
	DownloadDuration  prometheus.Histogram
	DateSources       *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	RetriesTotal      prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	discovered := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "studies_discovered_total",
			Help:      "Studies kept after type filtering, by study type.",
		},
		[]string{"study_type"},
	)
	downloads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Download attempts by study type and outcome.",
		},
		[]string{"study_type", "outcome"},
	)
	bytes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written to disk.",
		},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Time spent fetching one PDF.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	dateSources := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "date_resolutions_total",
			Help:      "Resolved study dates by the source that produced them.",
		},
		[]string{"source"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Per-study errors by error type.",
		},
		[]string{"error_type"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_retries_total",
			Help:      "Download retries scheduled after transient failures.",
		},
	)

	registry.MustRegister(discovered, downloads, bytes, duration, dateSources, errorsTotal, retries)

	return &Metrics{
		Registry:          registry,
		StudiesDiscovered: discovered,
		Downloads:         downloads,
		DownloadBytes:     bytes,
		DownloadDuration:  duration,
		DateSources:       dateSources,
		ErrorsTotal:       errorsTotal,
		RetriesTotal:      retries,
	}
}

func (m *Metrics) IncDiscovered(studyType string) {
	if m == nil {
		return
	}
	m.StudiesDiscovered.WithLabelValues(studyType).Inc()
}

func (m *Metrics) ObserveDownload(studyType, outcome string, bytes int64, d time.Duration) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(studyType, outcome).Inc()
	if outcome == OutcomeSuccess {
		m.DownloadBytes.Add(float64(bytes))
		m.DownloadDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncDateSource(source string) {
	if m == nil {
		return
	}
	m.DateSources.WithLabelValues(source).Inc()
}

// IncError counts err under its error type; untyped errors count as "other".
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	if errorType == "" {
		errorType = "other"
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
