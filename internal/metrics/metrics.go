// Package metrics declares the Prometheus collectors for cache occupancy,
// per-connector health, detected spreads and the alerts that clear the
// cooldown gate. CacheEntries, ConnectorState and ConnectorReconnects are
// set from Engine.Stats() by the httpapi /stats handler; nothing in this
// module updates SpreadObserved, OpportunitiesDetected, AlertsPublished or
// ScanErrors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SpreadObserved records every spread percent the calculator computes,
// regardless of whether it cleared the threshold.
var SpreadObserved = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "spreadup",
		Subsystem: "engine",
		Name:      "spread_observed_percent",
		Help:      "Observed spread values in percent across all scan iterations",
		Buckets:   []float64{0, 0.5, 1, 2, 3, 5, 8, 13, 21},
	},
	[]string{"base_asset"},
)

// OpportunitiesDetected counts opportunities the calculator returned per
// scan iteration, before the cooldown gate.
var OpportunitiesDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spreadup",
		Subsystem: "engine",
		Name:      "opportunities_detected_total",
		Help:      "Number of spread opportunities returned by the calculator",
	},
	[]string{"base_asset"},
)

// AlertsPublished counts alerts that cleared the cooldown gate and were
// handed to the notification sink.
var AlertsPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spreadup",
		Subsystem: "engine",
		Name:      "alerts_published_total",
		Help:      "Number of alerts published to the notification sink",
	},
	[]string{"base_asset"},
)

// ScanErrors counts scan iterations that returned an error and fell back
// to the error backoff sleep.
var ScanErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "spreadup",
		Subsystem: "engine",
		Name:      "scan_errors_total",
		Help:      "Number of scan iterations that errored",
	},
)

// CacheEntries tracks the live entry count, sampled on the status
// endpoint rather than pushed per update.
var CacheEntries = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "spreadup",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Live cache entry count",
	},
)

// ConnectorState reports each connector's feed state as a 1/0 gauge per
// state label, mirroring the Connector.Stats().State string.
var ConnectorState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "spreadup",
		Subsystem: "connector",
		Name:      "state",
		Help:      "Connector feed state (1=current state, 0=otherwise)",
	},
	[]string{"exchange", "state"},
)

// ConnectorReconnects tracks cumulative reconnects per connector.
var ConnectorReconnects = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "spreadup",
		Subsystem: "connector",
		Name:      "reconnects_total",
		Help:      "Cumulative reconnect count per connector",
	},
	[]string{"exchange"},
)

var connectorStates = []string{"disconnected", "connecting", "subscribing", "streaming", "error", "closed"}

// RecordConnectorState zeroes every other state label for the exchange
// before setting the current one, so a dashboard gauge doesn't show a
// connector as being in two states at once.
func RecordConnectorState(exchange, state string) {
	for _, s := range connectorStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		ConnectorState.WithLabelValues(exchange, s).Set(v)
	}
}
