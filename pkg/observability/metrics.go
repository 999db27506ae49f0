package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts echo traffic per port. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	connections *prometheus.CounterVec
	peers       *prometheus.GaugeVec
	bytes       *prometheus.CounterVec
	datagrams   *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echoplex_connections_accepted_total",
			Help: "Stream connections handed to a service loop.",
		}, []string{"port"}),
		peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "echoplex_peers",
			Help: "Peers currently in a service loop's peer set.",
		}, []string{"port"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echoplex_echoed_bytes_total",
			Help: "Bytes written back to peers.",
		}, []string{"protocol", "port"}),
		datagrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echoplex_datagrams_total",
			Help: "Datagrams echoed.",
		}, []string{"port"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echoplex_port_failures_total",
			Help: "Fatal errors that stopped a port loop, by stage.",
		}, []string{"protocol", "port", "stage"}),
	}
	reg.MustRegister(m.connections, m.peers, m.bytes, m.datagrams, m.failures)
	return m
}

func portLabel(port uint16) string { return strconv.Itoa(int(port)) }

func (m *Metrics) ConnectionAccepted(port uint16) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(portLabel(port)).Inc()
}

func (m *Metrics) SetPeers(port uint16, n int) {
	if m == nil {
		return
	}
	m.peers.WithLabelValues(portLabel(port)).Set(float64(n))
}

func (m *Metrics) Echoed(protocol string, port uint16, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.WithLabelValues(protocol, portLabel(port)).Add(float64(n))
	if protocol == "udp" {
		m.datagrams.WithLabelValues(portLabel(port)).Inc()
	}
}

// Failed records a loop-terminating error; stage is bind, accept, read,
// write, recv or send.
func (m *Metrics) Failed(protocol string, port uint16, stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(protocol, portLabel(port), stage).Inc()
}
