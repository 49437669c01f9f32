package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exposes sync and HTTP metrics on a caller-supplied
// registry.
type PrometheusRecorder struct {
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	lastRun         *prometheus.GaugeVec
	activities      *prometheus.CounterVec
	quota           prometheus.Gauge
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var _ SyncRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates the collectors under namespace and registers
// them on reg.
func NewPrometheusRecorder(reg prometheus.Registerer, namespace string) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished sync runs.",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
		}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the most recent finished run by outcome.",
		}, []string{"outcome"}),
		activities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "activities_total",
			Help:      "Activities seen by the sync loop by outcome.",
		}, []string{"outcome"}),
		quota: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "strava",
			Name:      "quota_remaining",
			Help:      "Requests left in the tighter Strava rate-limit window.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	for _, c := range []prometheus.Collector{
		r.runs, r.runDuration, r.lastRun, r.activities, r.quota, r.requests, r.requestDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) RecordRun(_ context.Context, outcome string, _, _ int, d time.Duration) {
	r.runs.WithLabelValues(outcome).Inc()
	r.lastRun.WithLabelValues(outcome).SetToCurrentTime()
	if d > 0 {
		r.runDuration.Observe(d.Seconds())
	}
}

func (r *PrometheusRecorder) RecordActivity(_ context.Context, outcome string) {
	r.activities.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRecorder) RecordQuota(remaining int) {
	r.quota.Set(float64(remaining))
}

// RecordRequest implements core.MetricsCollector.
func (r *PrometheusRecorder) RecordRequest(method, endpoint, status string, duration time.Duration) {
	r.requests.WithLabelValues(method, endpoint, status).Inc()
	r.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
