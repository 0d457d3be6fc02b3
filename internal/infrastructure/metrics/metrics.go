package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LedgerTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazao_ledger_transfers_total",
		Help: "Ledger token transfers by kind and result",
	}, []string{"kind", "result"})

	LedgerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mazao_ledger_transfer_duration_seconds",
		Help:    "Ledger transfer latency including receipt",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
	}, []string{"kind"})

	FlowOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazao_loan_flows_total",
		Help: "Loan orchestrator flows by name and result",
	}, []string{"flow", "result"})

	FlowLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mazao_loan_flow_duration_seconds",
		Help:    "Loan orchestrator flow latency",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
	}, []string{"flow"})
)

// ObserveFlow records one finished flow.
func ObserveFlow(flow string, start time.Time, err error) {
	FlowLatency.WithLabelValues(flow).Observe(time.Since(start).Seconds())
	FlowOutcomes.WithLabelValues(flow, result(err)).Inc()
}

// ObserveTransfer records one ledger call.
func ObserveTransfer(kind string, start time.Time, err error) {
	LedgerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	LedgerTransfers.WithLabelValues(kind, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func Handler() http.Handler { return promhttp.Handler() }
