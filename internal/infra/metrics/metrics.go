package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClicksStored counts click records appended to the store.
	ClicksStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attributor_clicks_stored_total",
		Help: "Number of ad click records persisted.",
	})

	// DuplicateClicks counts click submissions whose identifier was already
	// seen recently.
	DuplicateClicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attributor_clicks_duplicate_total",
		Help: "Number of click submissions carrying an already seen identifier.",
	})

	// LeadsMatched counts processed lead events by attribution source.
	LeadsMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attributor_leads_matched_total",
		Help: "Number of processed lead events, partitioned by source.",
	}, []string{"source"})

	// ConversionUploads counts offline conversion uploads by outcome.
	ConversionUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attributor_conversion_uploads_total",
		Help: "Number of offline conversion uploads, partitioned by outcome.",
	}, []string{"outcome"})

	// ExpiredClicksSwept counts click records evicted by the TTL sweeper.
	ExpiredClicksSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attributor_expired_clicks_swept_total",
		Help: "Number of expired click records deleted by the sweeper.",
	})
)
