package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synthcore_operations_total",
		Help: "Engine operations by type and outcome.",
	}, []string{"type", "outcome"})

	exchangeFeeUSD = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synthcore_exchange_fees_usd_total",
		Help: "Cumulative exchange fees distributed to debt holders, in USD.",
	})

	totalDebtUSDGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synthcore_total_debt_usd",
		Help: "Aggregate protocol debt across all synthetic instruments, in USD.",
	})
)
