package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway metrics
	IngestRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_ingest_requests_total",
			Help: "Total number of inbound webhook requests",
		},
		[]string{"platform_family", "platform", "status"},
	)

	IngestDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_ingest_dropped_total",
			Help: "Webhooks lost because the raw event could not be recorded",
		},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_ingest_background_duration_seconds",
			Help:    "Duration of the out-of-band record-and-publish step",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Stream metrics
	Published = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stream_published_total",
			Help: "Stream publish attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Dispatcher metrics
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_processed_total",
			Help: "Messages handled by the dispatcher by outcome",
		},
		[]string{"platform", "outcome"},
	)

	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_processing_duration_seconds",
			Help:    "Duration of normalize plus persist per message",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	MessagesClaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_messages_claimed_total",
			Help: "Pending messages taken over for redelivery",
		},
	)

	DeadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_dead_letters_total",
			Help: "Messages acknowledged without success",
		},
		[]string{"reason"},
	)

	// Enrichment metrics
	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_geo_lookups_total",
			Help: "IP geolocation lookups by outcome",
		},
		[]string{"outcome"},
	)

	// Reconciler metrics
	Replayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_reconciler_replayed_total",
			Help: "Raw events re-published by the reconciler by outcome",
		},
		[]string{"outcome"},
	)
)

// Outcome label values shared by the counters above.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomePermanent = "permanent"
	OutcomeCached    = "cached"
	OutcomeSkipped   = "skipped"
)

// UnknownPlatform replaces platform labels that have no registered
// normalizer. The ingest path is open to any URL, so only registered
// platforms get their own series.
const UnknownPlatform = "unknown"
