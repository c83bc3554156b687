package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	ticksTotal    *prometheus.CounterVec
	tickDuration  prometheus.Histogram
	stageDuration *prometheus.HistogramVec
	lastTick      prometheus.Gauge

	privacyDecisions   *prometheus.CounterVec
	recognitionErrors  prometheus.Counter
	contextUnavailable *prometheus.CounterVec

	storeSearchDuration prometheus.Histogram
	storeWriteDuration  prometheus.Histogram
	storeWriteErrors    prometheus.Counter
	memoriesTotal       prometheus.Gauge
	storeBytes          prometheus.Gauge
	retentionDeleted    prometheus.Counter
	searchCacheHits     *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			ticksTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "alexandria_ticks_total",
					Help: "Capture ticks by outcome.",
				},
				[]string{"outcome"},
			),
			tickDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "alexandria_tick_duration_seconds",
					Help:    "Wall-clock duration of a capture tick.",
					Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
				},
			),
			stageDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "alexandria_stage_duration_seconds",
					Help:    "Duration of each tick stage.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"stage", "status"},
			),
			lastTick: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "alexandria_last_tick_timestamp_seconds",
					Help: "Unix time of the last completed tick.",
				},
			),
			privacyDecisions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "alexandria_privacy_decisions_total",
					Help: "Privacy filter decisions by phase and decision.",
				},
				[]string{"phase", "decision"},
			),
			recognitionErrors: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "alexandria_recognition_errors_total",
					Help: "Recognition runs that failed or timed out.",
				},
			),
			contextUnavailable: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "alexandria_window_context_unavailable_total",
					Help: "Window context lookups that returned nothing, by compositor.",
				},
				[]string{"compositor"},
			),
			storeSearchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "alexandria_store_search_duration_seconds",
					Help:    "Memory store search latency.",
					Buckets: prometheus.DefBuckets,
				},
			),
			storeWriteDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "alexandria_store_write_duration_seconds",
					Help:    "Memory store insert latency including image writes.",
					Buckets: prometheus.DefBuckets,
				},
			),
			storeWriteErrors: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "alexandria_store_write_errors_total",
					Help: "Failed memory store inserts.",
				},
			),
			memoriesTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "alexandria_memories",
					Help: "Number of stored memories.",
				},
			),
			storeBytes: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "alexandria_store_image_bytes",
					Help: "Total bytes of stored images.",
				},
			),
			retentionDeleted: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "alexandria_retention_deleted_total",
					Help: "Memories removed by retention or cleanup.",
				},
			),
			searchCacheHits: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "alexandria_search_cache_total",
					Help: "Search cache lookups by result.",
				},
				[]string{"result"},
			),
		}

		prometheus.MustRegister(
			m.ticksTotal,
			m.tickDuration,
			m.stageDuration,
			m.lastTick,
			m.privacyDecisions,
			m.recognitionErrors,
			m.contextUnavailable,
			m.storeSearchDuration,
			m.storeWriteDuration,
			m.storeWriteErrors,
			m.memoriesTotal,
			m.storeBytes,
			m.retentionDeleted,
			m.searchCacheHits,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordTick(outcome string, duration time.Duration) {
	m := getMetrics()
	m.ticksTotal.WithLabelValues(outcome).Inc()
	m.tickDuration.Observe(duration.Seconds())
	m.lastTick.SetToCurrentTime()
}

func RecordStage(stage string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

func RecordPrivacyDecision(phase, decision string) {
	m := getMetrics()
	m.privacyDecisions.WithLabelValues(phase, decision).Inc()
}

func RecordRecognitionError() {
	m := getMetrics()
	m.recognitionErrors.Inc()
}

func RecordContextUnavailable(compositor string) {
	m := getMetrics()
	m.contextUnavailable.WithLabelValues(compositor).Inc()
}

func RecordStoreSearch(duration time.Duration) {
	m := getMetrics()
	m.storeSearchDuration.Observe(duration.Seconds())
}

func RecordStoreWrite(duration time.Duration, success bool) {
	m := getMetrics()
	m.storeWriteDuration.Observe(duration.Seconds())
	if !success {
		m.storeWriteErrors.Inc()
	}
}

func RecordRetention(deleted int) {
	m := getMetrics()
	m.retentionDeleted.Add(float64(deleted))
}

func RecordSearchCache(hit bool) {
	m := getMetrics()
	result := "miss"
	if hit {
		result = "hit"
	}
	m.searchCacheHits.WithLabelValues(result).Inc()
}

func SetStoreTotals(memories int, imageBytes int64) {
	m := getMetrics()
	m.memoriesTotal.Set(float64(memories))
	m.storeBytes.Set(float64(imageBytes))
}
