// Package metrics holds the Prometheus collectors for an OCR run.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote OCR service metrics
	ocrRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aocr_ocr_requests_total",
			Help: "Total number of HTTP requests sent to the OCR service",
		},
		[]string{"op", "status"}, // op: submit, poll
	)

	ocrBackpressureTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aocr_ocr_backpressure_total",
			Help: "Total number of 429 responses received from the OCR service",
		},
		[]string{"op"},
	)

	ocrAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aocr_ocr_attempts_total",
			Help: "Total number of analysis attempts by outcome",
		},
		[]string{"outcome"}, // outcome: succeeded, failed, timeout, error
	)

	ocrAnalyzeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aocr_ocr_analyze_duration_seconds",
			Help:    "Duration of one submit-and-poll analysis in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 25, 50, 100, 300},
		},
	)

	// Throttling metrics
	throttleWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aocr_throttle_wait_seconds",
			Help:    "Time spent waiting for a throttle slot in seconds",
			Buckets: []float64{0, .1, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Page assembly metrics
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aocr_pages_total",
			Help: "Total number of assembled pages by outcome",
		},
		[]string{"outcome"}, // outcome: annotated, degraded, blank
	)

	// Result cache metrics
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aocr_cache_lookups_total",
			Help: "Total number of analysis cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)
)

// ObserveRequest records one HTTP round trip to the OCR service.
func ObserveRequest(op string, code int) {
	ocrRequestsTotal.WithLabelValues(op, strconv.Itoa(code)).Inc()
	if code == 429 {
		ocrBackpressureTotal.WithLabelValues(op).Inc()
	}
}

// ObserveAttempt records the outcome and duration of one analysis attempt.
func ObserveAttempt(outcome string, d time.Duration) {
	ocrAttemptsTotal.WithLabelValues(outcome).Inc()
	ocrAnalyzeDuration.Observe(d.Seconds())
}

// ObserveThrottle records time spent waiting for a throttle slot.
func ObserveThrottle(d time.Duration) {
	throttleWait.Observe(d.Seconds())
}

// ObservePage records an assembled page.
func ObservePage(outcome string) {
	pagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveCache records a cache lookup.
func ObserveCache(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

// WriteTextfile dumps the default registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
