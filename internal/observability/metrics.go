// Package observability registers the Prometheus instruments shared by the
// API server and the location ingest daemon.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beam", Name: "searches_started_total",
		Help: "Beaming searches started",
	})
	SearchesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beam", Name: "searches_matched_total",
		Help: "Beaming searches that collected at least one proposal",
	})
	SearchesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beam", Name: "searches_exhausted_total",
		Help: "Beaming searches that hit the maximum radius with no proposals",
	})
	SearchWaves = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beam", Name: "search_waves_total",
		Help: "Candidate waves dispatched across all searches",
	})
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "beam", Name: "search_duration_seconds",
		Help:    "Wall time of a beaming search",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	FeeCharges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beam", Name: "platform_fee_charges_total",
		Help: "Platform fees charged",
	})
	FeeRefunds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beam", Name: "platform_fee_refunds_total",
		Help: "Platform fees refunded",
	})
	FeeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beam", Name: "platform_fee_failures_total",
		Help: "Platform fee operations that failed and need reconciliation",
	})

	WalletTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "beam", Name: "wallet_transactions_total",
		Help: "Ledger transactions applied, by type",
	}, []string{"type"})

	LocationsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beam", Name: "locations_ingested_total",
		Help: "Courier location samples ingested",
	})
	LocationsInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "beam", Name: "locations_invalid_total",
		Help: "Location samples dropped as unparseable",
	})
)
