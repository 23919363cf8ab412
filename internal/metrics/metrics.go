package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Exchange metrics
	PairCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ccm_pair_count",
		Help: "Total number of registered exchange pairs",
	})

	LiquidityEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccm_liquidity_events_total",
		Help: "Total number of liquidity additions",
	})

	// Settlement metrics
	SwapRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccm_swap_requests_total",
			Help: "Total number of swap settlement requests",
		},
		[]string{"shape", "status"},
	)

	SwapDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ccm_swap_duration_seconds",
			Help:    "Swap settlement duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"shape"},
	)

	SegmentsPerSettlement = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ccm_segments_per_settlement",
		Help:    "Number of exchange segments per settlement",
		Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
	})

	PriceImpact = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ccm_price_impact_bps",
			Help:    "Per-segment price impact in basis points",
			Buckets: []float64{0, 10, 50, 100, 300, 500, 1000, 5000, 10000},
		},
		[]string{"severity"},
	)

	// Tax ledger metrics
	TaxAccrued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccm_tax_accrued_total",
			Help: "Total number of tax accrual events",
		},
		[]string{"direction"},
	)

	TierFeesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccm_tier_fees_collected_total",
		Help: "Total number of tier fee charges",
	})

	TierDeposits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccm_tier_deposits_total",
		Help: "Total number of tier selection deposits",
	})

	AutoClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccm_auto_claims_total",
		Help: "Total number of automatic tax distributions",
	})

	ManualClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccm_manual_claims_total",
		Help: "Total number of manual tax claims",
	})

	RouterTaxWithdrawals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ccm_router_tax_withdrawals_total",
		Help: "Total number of router tax withdrawals",
	})

	// Quote metrics
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccm_quote_requests_total",
			Help: "Total number of quote requests",
		},
		[]string{"swap_mode", "status"},
	)

	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ccm_quote_duration_seconds",
			Help:    "Quote request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"swap_mode"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccm_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ccm_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
