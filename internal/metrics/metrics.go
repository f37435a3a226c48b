package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cryptostats"

// Recorder owns a Prometheus registry and the application collectors.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	updateCycles    *prometheus.CounterVec
	updateDuration  *prometheus.HistogramVec
	snapshotsStored *prometheus.CounterVec
	fetchFailures   *prometheus.CounterVec
	signals         *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them, together with the
// process and Go runtime collectors, on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		updateCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "update",
				Name:      "cycles_total",
				Help:      "Total number of update cycles by trigger and outcome.",
			},
			[]string{"trigger", "outcome"},
		),

		updateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "update",
				Name:      "cycle_duration_seconds",
				Help:      "Duration of update cycles.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"trigger"},
		),

		snapshotsStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "update",
				Name:      "snapshots_stored_total",
				Help:      "Snapshots persisted per asset.",
			},
			[]string{"asset"},
		),

		fetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "update",
				Name:      "fetch_failures_total",
				Help:      "Provider fetch failures per asset and stage (primary or fallback).",
			},
			[]string{"asset", "stage"},
		),

		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "signals_total",
				Help:      "Refresh signals by direction (published, received) and result.",
			},
			[]string{"direction", "result"},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "path", "status"},
		),
	}

	r.registry.MustRegister(
		r.updateCycles,
		r.updateDuration,
		r.snapshotsStored,
		r.fetchFailures,
		r.signals,
		r.httpRequests,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return r
}

// Handler returns an HTTP handler exposing the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) RecordUpdateCycle(trigger, outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.updateCycles.WithLabelValues(trigger, outcome).Inc()
	r.updateDuration.WithLabelValues(trigger).Observe(seconds)
}

func (r *Recorder) RecordSnapshotStored(asset string) {
	if r == nil {
		return
	}
	r.snapshotsStored.WithLabelValues(asset).Inc()
}

func (r *Recorder) RecordFetchFailure(asset, stage string) {
	if r == nil {
		return
	}
	r.fetchFailures.WithLabelValues(asset, stage).Inc()
}

func (r *Recorder) RecordSignal(direction, result string) {
	if r == nil {
		return
	}
	r.signals.WithLabelValues(direction, result).Inc()
}

func (r *Recorder) RecordHTTPRequest(method, path, status string) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, path, status).Inc()
}
