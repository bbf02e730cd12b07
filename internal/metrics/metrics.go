// Package metrics exposes Prometheus series for the scan pipeline's own
// health: cycle counts, candidates found, throttle events, and pool
// occupancy. Registered in init() on the default Prometheus registry,
// following the teacher pack's client_golang convention. No HTTP /metrics
// handler is mounted in this module.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	scanCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxscan_scan_cycles_total",
			Help: "Scan cycles completed, labeled by outcome.",
		},
		[]string{"outcome"}, // ok|error
	)

	candidatesFound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxscan_candidates_found_total",
			Help: "Box-spread candidates surviving the filter step, per cycle.",
		},
		[]string{"underlying"},
	)

	rateLimitThrottles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxscan_rate_limit_throttles_total",
			Help: "Adaptive rate-limit shrinks triggered by upstream 429s.",
		},
		[]string{"endpoint"},
	)

	poolActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "boxscan_worker_pool_active",
			Help: "Worker-pool tasks currently running.",
		},
	)

	poolQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "boxscan_worker_pool_queued",
			Help: "Worker-pool tasks waiting to start.",
		},
	)

	scanCandidatesLast = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "boxscan_scan_candidates_last",
			Help: "Candidate count returned by the most recent scan cycle.",
		},
	)
)

func init() {
	prometheus.MustRegister(scanCycles, candidatesFound, rateLimitThrottles)
	prometheus.MustRegister(poolActive, poolQueued, scanCandidatesLast)
}

// ObserveCycle records one scan cycle's outcome and candidate count.
func ObserveCycle(underlying string, candidateCount int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	scanCycles.WithLabelValues(outcome).Inc()
	candidatesFound.WithLabelValues(underlying).Add(float64(candidateCount))
	scanCandidatesLast.Set(float64(candidateCount))
}

// ObserveThrottle records one rate-limit shrink for endpoint.
func ObserveThrottle(endpoint string) {
	rateLimitThrottles.WithLabelValues(endpoint).Inc()
}

// ObservePool records the worker pool's current occupancy.
func ObservePool(active, queued int) {
	poolActive.Set(float64(active))
	poolQueued.Set(float64(queued))
}
