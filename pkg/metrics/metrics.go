package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransfersTotal counts transfer requests by outcome
	// (completed, failed, replayed).
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_transfers_total",
		Help: "Transfer requests by outcome.",
	}, []string{"outcome"})

	// EventsProcessedTotal counts consumed completion events by queue and
	// result (ok, retry, dead_letter).
	EventsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bank_events_processed_total",
		Help: "Completion events consumed, by queue and result.",
	}, []string{"queue", "result"})
)
