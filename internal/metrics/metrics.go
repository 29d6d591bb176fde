// Package metrics exposes Prometheus collectors for the crawl engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal        *prometheus.CounterVec
	crawlEntitiesTotal     *prometheus.CounterVec
	crawlSnapshotsTotal    *prometheus.CounterVec
	crawlRejectionsTotal   *prometheus.CounterVec
	crawlTasksTotal        *prometheus.CounterVec
	crawlStallsTotal       *prometheus.CounterVec
	quotaRotationsTotal    prometheus.Counter
	interceptWaitSeconds   *prometheus.HistogramVec
	interceptPayloadsTotal *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendwatch_pages_total",
				Help: "Pages or scroll rounds processed, labeled by platform.",
			},
			[]string{"platform"},
		)

		crawlEntitiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendwatch_entities_total",
				Help: "Upsert results, labeled by platform and outcome.",
			},
			[]string{"platform", "outcome"},
		)

		crawlSnapshotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendwatch_snapshots_total",
				Help: "History snapshots appended, labeled by platform.",
			},
			[]string{"platform"},
		)

		crawlRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendwatch_parse_rejections_total",
				Help: "Raw payload records dropped by normalizers.",
			},
			[]string{"platform"},
		)

		crawlTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendwatch_tasks_total",
				Help: "Finished keyword tasks, labeled by platform and outcome.",
			},
			[]string{"platform", "outcome"},
		)

		crawlStallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendwatch_stall_expansions_total",
				Help: "Variant expansions triggered by stalled pages.",
			},
			[]string{"platform"},
		)

		quotaRotationsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trendwatch_quota_rotations_total",
				Help: "Credentials removed from rotation after exhaustion.",
			},
		)

		interceptWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trendwatch_intercept_wait_seconds",
				Help:    "Time spent waiting for matching network responses.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"platform"},
		)

		interceptPayloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trendwatch_intercept_payloads_total",
				Help: "Matching network payloads captured.",
			},
			[]string{"platform"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the processed page/scroll counter.
func ObservePage(platform string) {
	if crawlPagesTotal != nil {
		crawlPagesTotal.WithLabelValues(platform).Inc()
	}
}

// ObserveUpsert increments the upsert outcome counter.
func ObserveUpsert(platform, outcome string) {
	if crawlEntitiesTotal != nil {
		crawlEntitiesTotal.WithLabelValues(platform, outcome).Inc()
	}
}

// ObserveSnapshot increments the appended snapshot counter.
func ObserveSnapshot(platform string) {
	if crawlSnapshotsTotal != nil {
		crawlSnapshotsTotal.WithLabelValues(platform).Inc()
	}
}

// ObserveRejection increments the normalizer drop counter.
func ObserveRejection(platform string) {
	if crawlRejectionsTotal != nil {
		crawlRejectionsTotal.WithLabelValues(platform).Inc()
	}
}

// ObserveTask increments the finished task counter for the outcome.
func ObserveTask(platform, outcome string) {
	if crawlTasksTotal != nil {
		crawlTasksTotal.WithLabelValues(platform, outcome).Inc()
	}
}

// ObserveStallExpansion increments the stall-triggered variant counter.
func ObserveStallExpansion(platform string) {
	if crawlStallsTotal != nil {
		crawlStallsTotal.WithLabelValues(platform).Inc()
	}
}

// ObserveQuotaRotation increments the exhausted credential counter.
func ObserveQuotaRotation() {
	if quotaRotationsTotal != nil {
		quotaRotationsTotal.Inc()
	}
}

// ObserveInterceptWait records the duration of a bounded response wait.
func ObserveInterceptWait(platform string, d time.Duration) {
	if interceptWaitSeconds != nil {
		interceptWaitSeconds.WithLabelValues(platform).Observe(d.Seconds())
	}
}

// ObserveInterceptPayload increments the captured payload counter.
func ObserveInterceptPayload(platform string) {
	if interceptPayloadsTotal != nil {
		interceptPayloadsTotal.WithLabelValues(platform).Inc()
	}
}
