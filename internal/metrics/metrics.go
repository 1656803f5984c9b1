// Package metrics exposes the engine's Prometheus surface. It is a
// read-only observer: nothing in the mutation path (admission, matching,
// netting, risk) depends on a successful metrics write, per spec.md
// §4.10's single-writer invariant — an instrumentation outage must never
// be able to stall a trade.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "perpd",
		Name:      "book_depth",
		Help:      "Number of resting orders per asset and side.",
	}, []string{"asset", "side"})

	OpenPositions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "perpd",
		Name:      "open_positions",
		Help:      "Number of open positions per asset.",
	}, []string{"asset"})

	Liquidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpd",
		Name:      "liquidations_total",
		Help:      "Count of positions closed by the risk monitor's maintenance-margin check.",
	}, []string{"asset"})

	TakeProfitCloses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpd",
		Name:      "take_profit_closes_total",
		Help:      "Count of positions closed by a take-profit trigger.",
	}, []string{"asset"})

	StopLossCloses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpd",
		Name:      "stop_loss_closes_total",
		Help:      "Count of positions closed by a stop-loss trigger.",
	}, []string{"asset"})

	ParkedQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "perpd",
		Name:      "parked_queue_depth",
		Help:      "Number of trade requests currently parked awaiting reference data.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "perpd",
		Name:      "events_dropped_total",
		Help:      "Number of outbound events dropped by the bounded sink under backpressure.",
	})

	TradesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpd",
		Name:      "trades_rejected_total",
		Help:      "Count of trade requests rejected at admission, by reason.",
	}, []string{"reason"})
)
