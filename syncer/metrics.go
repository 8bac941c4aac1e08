package syncer

import (
	"github.com/jd-code76/provinent-scripture-study-sub000/metrics"
)

const subsystem = "syncer"

var (
	messagesReceived = metrics.NewCounter(
		"messages_received",
		subsystem,
		"number of messages received by type",
		[]string{"type"},
	)

	messagesDropped = metrics.NewCounter(
		"messages_dropped",
		subsystem,
		"number of messages dropped by reason",
		[]string{"reason"},
	)
	dropMalformed       = messagesDropped.WithLabelValues("malformed")
	dropUnauthenticated = messagesDropped.WithLabelValues("unauthenticated")
	dropRateLimited     = messagesDropped.WithLabelValues("rate_limited")
	dropVersion         = messagesDropped.WithLabelValues("version")
	dropBusy            = messagesDropped.WithLabelValues("sync_in_progress")

	authOutcomes = metrics.NewCounter(
		"auth",
		subsystem,
		"authentication outcomes",
		[]string{"outcome"},
	)
	authOK       = authOutcomes.WithLabelValues("ok")
	authRejected = authOutcomes.WithLabelValues("rejected")
	authExpired  = authOutcomes.WithLabelValues("expired")

	merges = metrics.NewCounter(
		"merges",
		subsystem,
		"number of merged snapshots",
		[]string{"outcome"},
	)
	mergeChanged   = merges.WithLabelValues("changed")
	mergeUnchanged = merges.WithLabelValues("unchanged")
	mergeFailed    = merges.WithLabelValues("failed")

	liveConnections = metrics.NewGauge(
		"connections",
		subsystem,
		"authenticated connections",
		nil,
	).WithLabelValues()

	mergeDuration = metrics.NewHistogramWithBuckets(
		"merge_duration_seconds",
		subsystem,
		"time to merge an incoming snapshot",
		nil,
		[]float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	).WithLabelValues()
)
