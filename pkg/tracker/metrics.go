package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTrackedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_tracker_events_tracked_total",
			Help: "Total number of events accepted into the queue",
		},
		[]string{"type"},
	)

	eventsDedupedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_tracker_events_deduped_total",
			Help: "Total number of events discarded by the dedup window",
		},
		[]string{"type"},
	)

	eventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_tracker_events_dropped_total",
			Help: "Total number of events dropped before enqueue",
		},
		[]string{"reason"},
	)

	eventsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_tracker_events_evicted_total",
			Help: "Total number of oldest events evicted from a full queue",
		},
	)

	flushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_tracker_flush_total",
			Help: "Total number of completed flush attempts",
		},
		[]string{"result"},
	)

	flushSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_tracker_flush_skipped_total",
			Help: "Total number of flush attempts skipped before delivery",
		},
		[]string{"reason"},
	)

	flushBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "activity_tracker_flush_batch_size",
			Help:    "Number of events per delivered batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50},
		},
	)
)

const (
	dropReasonUninitialized = "uninitialized"
	dropReasonNoUser        = "no_user"
	dropReasonInvalid       = "invalid"

	skipReasonInFlight    = "in_flight"
	skipReasonOffline     = "offline"
	skipReasonBreakerOpen = "breaker_open"
	skipReasonNoUser      = "no_user"
	skipReasonEmpty       = "empty"
)
