package metrics

import "github.com/prometheus/client_golang/prometheus"

// Close reasons used as the "reason" label of ConnectionsClosed.
const (
	CloseReasonClient    = "client"
	CloseReasonHeartbeat = "heartbeat_timeout"
	CloseReasonSlow      = "slow_consumer"
	CloseReasonShutdown  = "shutdown"
	CloseReasonServer    = "server"
)

// WebSocketMetrics holds Prometheus metrics for the real-time core.
type WebSocketMetrics struct {
	ActiveConnections   prometheus.Gauge
	ConnectionsTotal    prometheus.Counter
	ConnectionsClosed   *prometheus.CounterVec
	FramesSent          *prometheus.CounterVec
	DecodeErrors        prometheus.Counter
	ActiveTopics        prometheus.Gauge
	Subscriptions       prometheus.Gauge
	HeartbeatDuration   prometheus.Histogram
	BroadcastRecipients *prometheus.HistogramVec
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of live WebSocket connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_total",
			Help:      "Total number of accepted WebSocket connections.",
		}),
		ConnectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_closed_total",
			Help:      "Total number of closed WebSocket connections by reason.",
		}, []string{"reason"}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frames_sent_total",
			Help:      "Total number of outbound frames enqueued by type.",
		}, []string{"type"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "decode_errors_total",
			Help:      "Total number of inbound frames that were not valid JSON.",
		}),
		ActiveTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_topics",
			Help:      "Number of match topics with at least one subscriber.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "subscriptions",
			Help:      "Number of (topic, connection) subscription pairs.",
		}),
		HeartbeatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "heartbeat_tick_duration_seconds",
			Help:      "Duration of one heartbeat tick over all connections.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		BroadcastRecipients: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "broadcast_recipients",
			Help:      "Number of connections a broadcast was enqueued to.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"mode"}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.ConnectionsTotal,
		m.ConnectionsClosed,
		m.FramesSent,
		m.DecodeErrors,
		m.ActiveTopics,
		m.Subscriptions,
		m.HeartbeatDuration,
		m.BroadcastRecipients,
	)
	return m
}
