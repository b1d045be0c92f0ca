// Package metrics provides Prometheus instrumentation for the chat session client
// and the development backend. It exposes counters for channel traffic and send
// failures, gauges for channel state and timeline size, and the HTTP handler that
// serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChannelFrames counts STOMP frames by direction: "in" or "out".
	ChannelFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accompany_channel_frames_total",
		Help: "Total number of live channel frames",
	}, []string{"direction"})

	// ChannelState reports the current channel state per room
	// (0 disconnected, 1 connecting, 2 connected, 3 closing).
	ChannelState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "accompany_channel_state",
		Help: "Current live channel state",
	}, []string{"room"})

	// ChannelReconnects counts reconnect attempts by outcome: "ok" or "failed".
	ChannelReconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accompany_channel_reconnects_total",
		Help: "Total number of live channel reconnect attempts",
	}, []string{"outcome"})

	// SendFailures counts publishes that were not delivered, by content kind.
	SendFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "accompany_send_failures_total",
		Help: "Total number of undelivered publishes",
	}, []string{"kind"})

	// TimelineMessages tracks the number of messages in a room's visible timeline.
	TimelineMessages = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "accompany_timeline_messages",
		Help: "Messages in the visible timeline",
	}, []string{"room"})

	// BrokerSessions tracks live STOMP sessions held by the development backend.
	BrokerSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "accompany_devserver_sessions",
		Help: "Current number of STOMP sessions on the development backend",
	})
)

func init() {
	prometheus.MustRegister(
		ChannelFrames,
		ChannelState,
		ChannelReconnects,
		SendFailures,
		TimelineMessages,
		BrokerSessions,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
