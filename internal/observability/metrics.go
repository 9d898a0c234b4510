package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the loan ledger.
type Metrics struct {
	// --- Loan operations ---
	LoanOpsApplied  *prometheus.CounterVec
	LoanOpsRejected *prometheus.CounterVec
	LoanOpDuration  *prometheus.HistogramVec
	OpenLoans       *prometheus.GaugeVec
	InterestAccrued *prometheus.CounterVec

	// --- Liquidation ---
	LoansLiquidated      *prometheus.CounterVec
	CollateralLiquidated *prometheus.CounterVec

	// --- Manager / aggregates ---
	AggregateLong      *prometheus.GaugeVec
	AggregateShort     *prometheus.GaugeVec
	TotalSystemDebt    prometheus.Gauge
	CeilingRejections  prometheus.Counter
	StaleRateSightings *prometheus.CounterVec

	// --- Persistence ---
	PersistRowsWritten *prometheus.CounterVec
	PersistBatchDur    prometheus.Histogram
	PersistErrors      *prometheus.CounterVec
	PersistQueueSize   prometheus.Gauge

	// --- HTTP API ---
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics registers all metrics on the default registry.
func NewMetrics() *Metrics {
	opBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		LoanOpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_loan_ops_applied_total",
			Help: "Loan operations successfully committed",
		}, []string{"engine", "op"}),

		LoanOpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_loan_ops_rejected_total",
			Help: "Loan operations rejected, by failure condition",
		}, []string{"engine", "op", "reason"}),

		LoanOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_loan_op_duration_seconds",
			Help:    "Time to execute a loan operation under the ledger lock",
			Buckets: opBuckets,
		}, []string{"engine", "op"}),

		OpenLoans: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synth_open_loans",
			Help: "Open loans per engine",
		}, []string{"engine"}),

		InterestAccrued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_interest_accrued_units_total",
			Help: "Interest accrued, in whole currency units",
		}, []string{"currency"}),

		LoansLiquidated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_loans_liquidated_total",
			Help: "Liquidations, partial and full",
		}, []string{"engine", "outcome"}),

		CollateralLiquidated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_collateral_liquidated_units_total",
			Help: "Collateral seized by liquidators, in whole units",
		}, []string{"engine"}),

		AggregateLong: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synth_aggregate_long_units",
			Help: "Aggregate long open interest per currency, whole units",
		}, []string{"currency"}),

		AggregateShort: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synth_aggregate_short_units",
			Help: "Aggregate short open interest per currency, whole units",
		}, []string{"currency"}),

		TotalSystemDebt: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_total_system_debt_units",
			Help: "Total system debt in reference currency, whole units",
		}),

		CeilingRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synth_debt_ceiling_rejections_total",
			Help: "Operations rejected by the global debt ceiling",
		}),

		StaleRateSightings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_stale_rate_sightings_total",
			Help: "Times an operation or total saw a stale oracle rate",
		}, []string{"currency"}),

		PersistRowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_persist_rows_written_total",
			Help: "Rows upserted to Postgres",
		}, []string{"table"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "synth_persist_batch_duration_seconds",
			Help:    "Postgres batch upsert duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_persist_errors_total",
			Help: "Postgres write failures",
		}, []string{"table"}),

		PersistQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synth_persist_queue_size",
			Help: "Rows waiting in the persistence queue",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_http_requests_total",
			Help: "HTTP API requests",
		}, []string{"route", "method", "code"}),

		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_http_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}, []string{"route"}),
	}
}
