package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the custody protocol.
type Metrics struct {
	TransfersTotal        *prometheus.CounterVec
	BatchesMinted         prometheus.Counter
	ProductsCreated       prometheus.Counter
	ProofsGenerated       prometheus.Counter
	CustomerVerifications prometheus.Counter
	LedgerSubmitSeconds   prometheus.Histogram
	LedgerTimeouts        prometheus.Counter
	LedgerMismatches      prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		TransfersTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_transfers_total",
			Help: "Custody transfers by outcome.",
		}, []string{"outcome"}),
		BatchesMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_batches_minted_total",
			Help: "Batches minted on the ledger.",
		}),
		ProductsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_products_created_total",
			Help: "Products created in the registry.",
		}),
		ProofsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_membership_proofs_generated_total",
			Help: "Batch membership proofs generated.",
		}),
		CustomerVerifications: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_customer_verifications_total",
			Help: "Terminal customer verifications recorded.",
		}),
		LedgerSubmitSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodia_ledger_submit_seconds",
			Help:    "Latency of ledger anchor submissions.",
			Buckets: prometheus.DefBuckets,
		}),
		LedgerTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_ledger_timeouts_total",
			Help: "Ledger submissions that timed out before confirmation.",
		}),
		LedgerMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_ledger_mismatches_total",
			Help: "Reconciliation runs that found mirror/ledger disagreement.",
		}),
	}
}
