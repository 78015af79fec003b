package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the transport and its consumers.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Datagram metrics
	datagramsReceived prometheus.Counter
	datagramsSent     *prometheus.CounterVec // by command
	bytesReceived     prometheus.Counter
	bytesSent         prometheus.Counter

	// Error metrics
	receiveErrors     prometheus.Counter
	sendErrors        prometheus.Counter
	malformedMessages prometheus.Counter

	// Presence metrics
	knownUsers prometheus.Gauge
}

// NewMetrics registers the metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		datagramsReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lanchat_datagrams_received_total",
				Help: "Total number of datagrams received",
			},
		),
		datagramsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lanchat_datagrams_sent_total",
				Help: "Total number of datagrams sent by command",
			},
			[]string{"command"},
		),
		bytesReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lanchat_received_bytes_total",
				Help: "Total number of datagram bytes received",
			},
		),
		bytesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lanchat_sent_bytes_total",
				Help: "Total number of datagram bytes sent",
			},
		),
		receiveErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lanchat_receive_errors_total",
				Help: "Total number of socket read errors",
			},
		),
		sendErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lanchat_send_errors_total",
				Help: "Total number of socket write errors",
			},
		),
		malformedMessages: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lanchat_malformed_messages_total",
				Help: "Total number of received datagrams that failed to decode",
			},
		),
		knownUsers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "lanchat_known_users",
				Help: "Current number of known users",
			},
		),
	}
}

// RecordReceived counts one received datagram of n bytes
func (m *Metrics) RecordReceived(n int) {
	if m == nil {
		return
	}
	m.datagramsReceived.Inc()
	m.bytesReceived.Add(float64(n))
}

// RecordSent counts one sent datagram of n bytes for a command
func (m *Metrics) RecordSent(command string, n int) {
	if m == nil {
		return
	}
	m.datagramsSent.WithLabelValues(command).Inc()
	m.bytesSent.Add(float64(n))
}

// RecordReceiveError increments the read error counter
func (m *Metrics) RecordReceiveError() {
	if m == nil {
		return
	}
	m.receiveErrors.Inc()
}

// RecordSendError increments the write error counter
func (m *Metrics) RecordSendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

// RecordMalformed increments the malformed message counter
func (m *Metrics) RecordMalformed() {
	if m == nil {
		return
	}
	m.malformedMessages.Inc()
}

// RecordKnownUsers updates the known user count
func (m *Metrics) RecordKnownUsers(count int) {
	if m == nil {
		return
	}
	m.knownUsers.Set(float64(count))
}
