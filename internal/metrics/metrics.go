// Package metrics declares the Prometheus instruments of the capture
// pipeline. Everything registers on the default registry at init and is
// exposed by the snapshot server's /metrics route.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// eventsCaptured counts events produced by capture callbacks.
	eventsCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mestouches_events_captured_total",
		Help: "Events produced by capture callbacks, by kind",
	}, []string{"kind"})

	// handoffDeferred counts producer hand-offs that found the queue busy.
	handoffDeferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mestouches_queue_handoff_deferred_total",
		Help: "Producer hand-offs deferred because the queue lock was busy",
	}, []string{"kind"})

	// eventsMerged counts events merged into a store by the consumer.
	eventsMerged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mestouches_events_merged_total",
		Help: "Events merged into durable stores, by kind",
	}, []string{"kind"})

	// mergeDeferred counts consumer merge attempts that kept a batch back.
	mergeDeferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mestouches_merge_deferred_total",
		Help: "Consumer merges deferred, by store and reason",
	}, []string{"store", "reason"})

	// storeSaves counts store writes by trigger and result.
	storeSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mestouches_store_saves_total",
		Help: "Store saves by store, trigger and result",
	}, []string{"store", "trigger", "result"})

	// callbackDuration tracks capture callback latency.
	callbackDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mestouches_callback_duration_seconds",
		Help:    "Capture callback duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.000005, 2, 12), // 5µs to ~10ms
	}, []string{"hook"})

	// callbackOverBudget counts callbacks that exceeded the latency budget.
	callbackOverBudget = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mestouches_callback_over_budget_total",
		Help: "Capture callbacks that exceeded the latency budget",
	}, []string{"hook"})

	// relayRecords counts relay records read by the aggregator.
	relayRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mestouches_relay_records_total",
		Help: "Relay records read, by outcome",
	}, []string{"outcome"})
)

// EventCaptured records one event produced by a callback.
func EventCaptured(kind string) { eventsCaptured.WithLabelValues(kind).Inc() }

// HandoffDeferred records a producer hand-off that found the queue busy.
func HandoffDeferred(kind string) { handoffDeferred.WithLabelValues(kind).Inc() }

// EventsMerged records n events merged into a store.
func EventsMerged(kind string, n int) { eventsMerged.WithLabelValues(kind).Add(float64(n)) }

// MergeDeferred records a batch kept back by the consumer.
func MergeDeferred(store, reason string) { mergeDeferred.WithLabelValues(store, reason).Inc() }

// StoreSaved records a save attempt.
func StoreSaved(store, trigger string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeSaves.WithLabelValues(store, trigger, result).Inc()
}

// CallbackObserved records a callback duration and whether it ran over
// budget.
func CallbackObserved(hook string, d time.Duration, over bool) {
	callbackDuration.WithLabelValues(hook).Observe(d.Seconds())
	if over {
		callbackOverBudget.WithLabelValues(hook).Inc()
	}
}

// RelayRecord records the outcome of one relay read.
func RelayRecord(outcome string) { relayRecords.WithLabelValues(outcome).Inc() }
