package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proclist",
			Subsystem: "refresh",
			Name:      "total",
			Help:      "Number of refresh attempts by trigger and result.",
		}, []string{"trigger", "result"},
	)
	refreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "proclist",
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Observed duration of fetch-and-rebuild cycles.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"},
	)
	refreshLastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "proclist",
			Subsystem: "refresh",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		},
	)
	snapshotRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "proclist",
			Subsystem: "snapshot",
			Name:      "records",
			Help:      "Records in the current snapshot.",
		},
	)
	snapshotState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "proclist",
			Subsystem: "snapshot",
			Name:      "state",
			Help:      "Snapshot validity state (0 empty, 1 valid, 2 stale, 3 invalid).",
		},
	)
	queryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proclist",
			Subsystem: "query",
			Name:      "total",
			Help:      "Queries answered, labeled by the path that served them.",
		}, []string{"path"},
	)
	fallbackWaits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "proclist",
			Subsystem: "query",
			Name:      "fallback_waits_total",
			Help:      "Queries that had to wait for cache validity.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{refreshTotal, refreshDuration, refreshLastSuccess, snapshotRecords, snapshotState, queryTotal, fallbackWaits}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers the collectors with the default registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler that serves Prometheus metrics for the
// DefaultGatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveRefresh(trigger, result string, took time.Duration) {
	if regOK.Load() {
		refreshTotal.WithLabelValues(trigger, result).Inc()
		refreshDuration.WithLabelValues(trigger).Observe(took.Seconds())
	}
}

func SetLastSuccess(t time.Time) {
	if regOK.Load() {
		refreshLastSuccess.Set(float64(t.Unix()))
	}
}

func SetSnapshot(records int, state int) {
	if regOK.Load() {
		snapshotRecords.Set(float64(records))
		snapshotState.Set(float64(state))
	}
}

func IncQuery(path string) {
	if regOK.Load() {
		queryTotal.WithLabelValues(path).Inc()
	}
}

func IncFallbackWait() {
	if regOK.Load() {
		fallbackWaits.Inc()
	}
}
