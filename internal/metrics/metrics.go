// Package metrics holds csync's Prometheus instrumentation, following the
// promauto.NewXVec construction style of the teacher's
// internal/escrow.Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broker holds the broker-side counters/gauges: connection lifecycle and
// push/pull/ping throughput. ChannelsActive is registered, but no broker
// component sets it, so it stays at 0.
type Broker struct {
	ConnectionsTotal  *prometheus.CounterVec
	ActiveConnections prometheus.Gauge
	ChannelsActive    prometheus.Gauge
	PushTotal         *prometheus.CounterVec
	PullTotal         *prometheus.CounterVec
	PingTotal         prometheus.Counter
}

func NewBroker() *Broker {
	return &Broker{
		ConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csync_broker_connections_total",
				Help: "Total connections accepted by the broker, by role (publisher/subscriber)",
			},
			[]string{"role"},
		),
		ActiveConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "csync_broker_active_connections",
				Help: "Currently open broker connections",
			},
		),
		ChannelsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "csync_broker_active_channels",
				Help: "Number of device channels currently registered",
			},
		),
		PushTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csync_broker_push_total",
				Help: "Total PUSH frames accepted, by kind",
			},
			[]string{"kind"},
		),
		PullTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csync_broker_pull_total",
				Help: "Total PULL responses, by result (push/none)",
			},
			[]string{"result"},
		),
		PingTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "csync_broker_ping_total",
				Help: "Total PING frames sent to subscribers",
			},
		),
	}
}

// Sync holds the client sync engine's per-kind tick counters.
type Sync struct {
	RemoteTicks     *prometheus.CounterVec
	ClipboardTicks  *prometheus.CounterVec
	PushesCompleted *prometheus.CounterVec
	PullsCompleted  *prometheus.CounterVec
	Errors          *prometheus.CounterVec
}

func NewSync() *Sync {
	return &Sync{
		RemoteTicks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csync_sync_remote_ticks_total",
				Help: "Total remote poll ticks, by resource kind",
			},
			[]string{"kind"},
		),
		ClipboardTicks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csync_sync_clipboard_ticks_total",
				Help: "Total clipboard poll ticks, by resource kind",
			},
			[]string{"kind"},
		),
		PushesCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csync_sync_pushes_total",
				Help: "Total completed pushes to the remote, by resource kind",
			},
			[]string{"kind"},
		),
		PullsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csync_sync_pulls_total",
				Help: "Total completed pulls applied to the clipboard, by resource kind",
			},
			[]string{"kind"},
		),
		Errors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csync_sync_errors_total",
				Help: "Total tick errors, by resource kind and tick type",
			},
			[]string{"kind", "tick"},
		),
	}
}
