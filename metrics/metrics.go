package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session metrics
var (
	ConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parkey_connection_state",
			Help: "Current wallet connection state (1 for the active state)",
		},
		[]string{"state"},
	)

	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkey_connect_attempts_total",
			Help: "Wallet connect attempts by result",
		},
		[]string{"result"},
	)
)

// Transaction metrics
var (
	TransactionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkey_transactions_submitted_total",
			Help: "Transactions accepted by the signing provider",
		},
		[]string{"kind"},
	)

	TransactionsTerminal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkey_transactions_terminal_total",
			Help: "Transactions reaching a terminal lifecycle state",
		},
		[]string{"kind", "status"},
	)

	ConfirmationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "parkey_confirmation_duration_seconds",
		Help:    "Time from submission to terminal state",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 300},
	})

	PendingTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parkey_pending_transactions",
		Help: "Transactions currently in the Submitted state",
	})
)

// Error metrics
var (
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkey_errors_total",
			Help: "Classified errors returned to callers by kind",
		},
		[]string{"kind"},
	)
)

// Cache metrics
var (
	ListingCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parkey_listing_cache_lookups_total",
			Help: "Listing cache lookups by result",
		},
		[]string{"result"},
	)
)
