// Package metrics defines Prometheus metrics for the Unraid MCP server.
//
// All metrics are registered with the default registry and served on the
// /metrics endpoint of the HTTP transports.
//
// Metric naming follows Prometheus conventions:
//   - unraid_mcp_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ConnectionState is the subscription connection lifecycle state
	// (0=disconnected 1=connecting 2=handshaking 3=ready 4=degraded).
	ConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "unraid_mcp_ws_connection_state",
			Help: "Current WebSocket connection state (0=disconnected 1=connecting 2=handshaking 3=ready 4=degraded).",
		},
	)

	// ConnectsTotal counts successful WebSocket handshakes.
	ConnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unraid_mcp_ws_connects_total",
			Help: "Total successful WebSocket connections including reconnects.",
		},
	)

	// ConnectFailuresTotal counts failed connection attempts by phase.
	ConnectFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unraid_mcp_ws_connect_failures_total",
			Help: "Total failed WebSocket connection attempts by phase.",
		},
		[]string{"phase"},
	)

	// HandshakeSeconds is a histogram of dial-to-ack handshake duration.
	HandshakeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "unraid_mcp_ws_handshake_seconds",
			Help:    "Duration of the WebSocket dial and protocol handshake in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// FramesReceivedTotal counts inbound protocol frames by type.
	FramesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unraid_mcp_ws_frames_received_total",
			Help: "Total inbound graphql-transport-ws frames by type.",
		},
		[]string{"type"},
	)

	// FramesSentTotal counts outbound protocol frames by type.
	FramesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unraid_mcp_ws_frames_sent_total",
			Help: "Total outbound graphql-transport-ws frames by type.",
		},
		[]string{"type"},
	)

	// MalformedFramesTotal counts inbound frames dropped as unparseable.
	MalformedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unraid_mcp_ws_malformed_frames_total",
			Help: "Total inbound frames dropped because they could not be decoded.",
		},
	)

	// EventsDeliveredTotal counts subscription events handed to consumers.
	EventsDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unraid_mcp_events_delivered_total",
			Help: "Total subscription events delivered to consumers.",
		},
	)

	// EventsDroppedTotal counts events discarded because a consumer queue was full.
	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unraid_mcp_events_dropped_total",
			Help: "Total subscription events dropped due to full consumer queues.",
		},
	)

	// ActiveSubscriptions is the number of registered subscriptions
	// (pending plus active).
	ActiveSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "unraid_mcp_active_subscriptions",
			Help: "Number of currently registered GraphQL subscriptions.",
		},
	)

	// SubscriptionErrorsTotal counts subscriptions terminated by server error frames.
	SubscriptionErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unraid_mcp_subscription_errors_total",
			Help: "Total subscriptions terminated by a server error frame.",
		},
	)

	// GraphQLRequestsTotal counts HTTP GraphQL requests by outcome.
	GraphQLRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unraid_mcp_graphql_requests_total",
			Help: "Total GraphQL HTTP requests by outcome.",
		},
		[]string{"status"},
	)

	// GraphQLRequestSeconds is a histogram of GraphQL HTTP request duration.
	GraphQLRequestSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "unraid_mcp_graphql_request_seconds",
			Help:    "Duration of GraphQL HTTP requests in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 90},
		},
	)

	// ToolCallsTotal counts MCP tool invocations by tool name and outcome.
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unraid_mcp_tool_calls_total",
			Help: "Total MCP tool invocations by tool and outcome.",
		},
		[]string{"tool", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectionState,
		ConnectsTotal,
		ConnectFailuresTotal,
		HandshakeSeconds,
		FramesReceivedTotal,
		FramesSentTotal,
		MalformedFramesTotal,
		EventsDeliveredTotal,
		EventsDroppedTotal,
		ActiveSubscriptions,
		SubscriptionErrorsTotal,
		GraphQLRequestsTotal,
		GraphQLRequestSeconds,
		ToolCallsTotal,
	)
}

// RecordConnect records a successful handshake and its duration.
func RecordConnect(d time.Duration) {
	ConnectsTotal.Inc()
	HandshakeSeconds.Observe(d.Seconds())
}

// RecordConnectFailure records a failed connection attempt.
// Phase is "dial" or "handshake".
func RecordConnectFailure(phase string) {
	ConnectFailuresTotal.WithLabelValues(phase).Inc()
}

// RecordFrameReceived records one inbound protocol frame.
func RecordFrameReceived(frameType string) {
	FramesReceivedTotal.WithLabelValues(frameType).Inc()
}

// RecordFrameSent records one outbound protocol frame.
func RecordFrameSent(frameType string) {
	FramesSentTotal.WithLabelValues(frameType).Inc()
}

// RecordGraphQLRequest records one HTTP GraphQL request.
// Status is "ok", "error", or "blocked".
func RecordGraphQLRequest(status string, d time.Duration) {
	GraphQLRequestsTotal.WithLabelValues(status).Inc()
	GraphQLRequestSeconds.Observe(d.Seconds())
}

// RecordToolCall records one MCP tool invocation.
func RecordToolCall(tool, status string) {
	ToolCallsTotal.WithLabelValues(tool, status).Inc()
}
