package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreTransactions counts atomic store transactions by backend and result (commit|abort|error).
	StoreTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_store_transactions_total",
			Help: "Total number of atomic store transactions",
		},
		[]string{"backend", "result"},
	)

	// StoreConflicts counts optimistic commit conflicts that caused a transaction to re-run.
	StoreConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_store_conflicts_total",
			Help: "Total number of optimistic store conflicts",
		},
		[]string{"backend"},
	)

	// LeaseAcquisitions records lease attempts by resource and result (acquired|busy|error).
	LeaseAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_lease_acquisitions_total",
			Help: "Total number of lease acquisition attempts",
		},
		[]string{"resource", "result"},
	)

	// Operations counts waitlist operations by operation and result (ok|error kind).
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_operations_total",
			Help: "Total number of waitlist operations",
		},
		[]string{"operation", "result"},
	)

	// CodeUses counts invite/community code redemptions by code type and result.
	CodeUses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_code_uses_total",
			Help: "Total number of code redemption attempts",
		},
		[]string{"type", "result"},
	)

	// WaitlistLength tracks the number of members in the order.
	WaitlistLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waitlist_length",
			Help: "Number of members currently on the waitlist",
		},
	)

	// SignupCutoff tracks the configured signup cutoff.
	SignupCutoff = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waitlist_signup_cutoff",
			Help: "Current signup cutoff (-1 nobody, 0 everybody, n positions 1..n)",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waitlist_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// APIInFlight counts requests currently being served.
	APIInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "waitlist_api_in_flight_requests",
		Help: "HTTP requests currently in flight",
	})
)
