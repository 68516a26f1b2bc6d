package adapter

import (
	"errors"
	"time"

	"github.com/defistate/defi-liquidity-adapter-go/protocols/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// --- Metrics ---

const (
	opDeposit = "deposit"
	opRedeem  = "redeem"

	resultSettled  = "settled"
	resultRejected = "rejected"
	resultFailed   = "failed"
)

// Metrics holds all the Prometheus metrics for the adapter. One Metrics value
// may be shared by several adapters; calls are labeled by pool.
type Metrics struct {
	callDuration *prometheus.HistogramVec
	callsTotal   *prometheus.CounterVec
	refundsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics for the adapter.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "adapter_call_duration_seconds",
			Help:    "Time taken to settle or abort a single deposit or redemption.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adapter_calls_total",
			Help: "Total number of adapter calls, labeled by pool, operation and result.",
		}, []string{"pool", "op", "result"}),
		refundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adapter_refunds_total",
			Help: "Number of leftover reserve balances returned to callers after a join.",
		}, []string{"pool", "asset"}),
	}
	reg.MustRegister(m.callDuration, m.callsTotal, m.refundsTotal)
	return m
}

func (m *Metrics) observeCall(pool, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.callDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.callsTotal.WithLabelValues(pool, op, resultLabel(err)).Inc()
}

func (m *Metrics) observeRefund(pool string, asset common.Address) {
	if m == nil {
		return
	}
	m.refundsTotal.WithLabelValues(pool, asset.Hex()).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultSettled
	case errors.Is(err, vault.ErrPoolInteractionRejected):
		return resultRejected
	default:
		return resultFailed
	}
}
