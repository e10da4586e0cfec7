package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_messages_created_total",
		Help: "Messages created by kind (contact, reply)",
	}, []string{"kind"})

	deletionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_message_deletions_total",
		Help: "Per-message deletion outcomes (hard, tombstone, skipped)",
	}, []string{"outcome"})

	threadBackfillConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inbox_thread_backfill_conflicts_total",
		Help: "Thread key backfills that lost a race and re-read the stored key",
	})

	bestEffortFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_best_effort_failures_total",
		Help: "Failed side operations that did not fail the request, by operation",
	}, []string{"op"})

	storeCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "inbox_store_call_duration_seconds",
		Help:    "Store call duration in seconds, including retries",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"op"})

	storeCallRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_store_call_retries_total",
		Help: "Store calls retried after a transient failure, by operation",
	}, []string{"op"})
)
