// Package metrics exposes prometheus counters for verification runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shipcheck"

// Recorder collects run and check metrics in its own registry.
type Recorder struct {
	registry      *prometheus.Registry
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	evidenceFails *prometheus.CounterVec
	lastRun       prometheus.Gauge
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of verification runs by overall status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of verification runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "check",
				Name:      "results_total",
				Help:      "Total number of check results by check and status",
			},
			[]string{"check", "status"},
		),
		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "check",
				Name:      "duration_seconds",
				Help:      "Duration of individual checks in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"check"},
		),
		evidenceFails: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "evidence",
				Name:      "write_errors_total",
				Help:      "Total number of evidence artifacts that could not be written",
			},
			[]string{"artifact"},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last completed verification run",
			},
		),
	}

	r.registry.MustRegister(
		r.runsTotal,
		r.runDuration,
		r.checksTotal,
		r.checkDuration,
		r.evidenceFails,
		r.lastRun,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveCheck records one check result.
func (r *Recorder) ObserveCheck(check, status string, d time.Duration) {
	r.checksTotal.WithLabelValues(check, status).Inc()
	r.checkDuration.WithLabelValues(check).Observe(d.Seconds())
}

// ObserveRun records a completed run.
func (r *Recorder) ObserveRun(status string, d time.Duration, finished time.Time) {
	r.runsTotal.WithLabelValues(status).Inc()
	r.runDuration.Observe(d.Seconds())
	r.lastRun.Set(float64(finished.Unix()))
}

// EvidenceFailed counts an artifact that could not be written.
func (r *Recorder) EvidenceFailed(artifact string) {
	r.evidenceFails.WithLabelValues(artifact).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
