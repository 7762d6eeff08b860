package tcp

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "tcpfetch"
	subsystem = "tcp"
)

// Metrics holds the Prometheus instruments this engine updates while
// driving a connection. There is exactly one connection in flight at a
// time in this stack, so none of these carry peer labels; a run's final
// values are read back with Gather rather than served from an HTTP
// endpoint, since the process exits once the fetch completes.
type Metrics struct {
	segmentsSent          prometheus.Counter
	segmentsRetransmitted prometheus.Counter
	bytesDelivered        prometheus.Counter
	cwnd                  prometheus.Gauge
	fragmentsReassembled  prometheus.Counter
}

// NewMetrics creates a Metrics without registering it against any
// registry. Callers that want it exported register it themselves with
// reg.MustRegister(m.Collectors()...).
func NewMetrics() *Metrics {
	return &Metrics{
		segmentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "segments_sent_total",
			Help:      "Total TCP segments transmitted, including retransmissions.",
		}),
		segmentsRetransmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "segments_retransmitted_total",
			Help:      "Total TCP segments resent after sitting unacknowledged past the retransmit threshold.",
		}),
		bytesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_delivered_total",
			Help:      "Total in-order application bytes delivered from the peer.",
		}),
		cwnd: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "congestion_window_segments",
			Help:      "Current congestion window, in segments.",
		}),
		fragmentsReassembled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ip",
			Name:      "fragments_reassembled_total",
			Help:      "Total completed IPv4 datagrams handed up by reassembly.",
		}),
	}
}

// Collectors returns every instrument, for registration against a
// prometheus.Registerer.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.segmentsSent,
		m.segmentsRetransmitted,
		m.bytesDelivered,
		m.cwnd,
		m.fragmentsReassembled,
	}
}

// IncFragmentsReassembled records one completed IP reassembly. The IP
// layer has no Prometheus dependency of its own, so the connection calls
// this after each Recv that yields a reassembled datagram.
func (m *Metrics) IncFragmentsReassembled() {
	m.fragmentsReassembled.Inc()
}
