package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "custody"

var (
	DepositsDetected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposits_detected_total",
		Help:      "Balance increases observed by the watchers.",
	}, []string{"network"})

	DepositsCredited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposits_credited_total",
		Help:      "Deposits credited to the ledger.",
	}, []string{"network"})

	DepositsDuplicate = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deposits_duplicate_total",
		Help:      "Deposits skipped because the idempotency key already existed.",
	}, []string{"network"})

	Sweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweeps_total",
		Help:      "Sweep attempts by outcome (sent, empty, insufficient, failed).",
	}, []string{"network", "outcome"})

	WatcherState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "watcher_state",
		Help:      "0 disconnected, 1 connecting, 2 subscribed.",
	}, []string{"network"})

	WatcherReconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watcher_reconnects_total",
		Help:      "Transport failures that triggered a reconnect.",
	}, []string{"network"})

	WatcherSubscribeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watcher_subscribe_failures_total",
		Help:      "Addresses that could not be subscribed and were left for the next refresh.",
	}, []string{"network"})

	DepositQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "deposit_queue_depth",
		Help:      "Deposit events waiting to be credited.",
	}, []string{"network"})

	WatchedAddresses = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "watched_addresses",
		Help:      "Addresses tracked per watcher.",
	}, []string{"network"})
)

func init() {
	prometheus.MustRegister(
		DepositsDetected,
		DepositsCredited,
		DepositsDuplicate,
		Sweeps,
		WatcherState,
		WatcherReconnects,
		WatcherSubscribeFailures,
		DepositQueueDepth,
		WatchedAddresses,
	)
}
