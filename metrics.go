package rdp

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a Socket's connections as Prometheus metrics, one
// sample per registered connection not in DESTROY. It is grounded on the
// constant-metric collector pattern used for per-TCP-connection stats:
// Describe publishes static descriptors, Collect walks live state and
// emits one prometheus.Metric per descriptor per connection.
type Collector struct {
	socket *Socket

	openConns    *prometheus.Desc
	flightBytes  *prometheus.Desc
	flightLimit  *prometheus.Desc
	rttMillis    *prometheus.Desc
	queueDepth   *prometheus.Desc
	outOfOrder   *prometheus.Desc
}

func newCollector(s *Socket) *Collector {
	labels := []string{"peer", "state"}
	constLabels := prometheus.Labels{"socket": s.id}
	return &Collector{
		socket:      s,
		openConns:   prometheus.NewDesc("rdp_open_connections", "Number of connections registered on this socket.", nil, constLabels),
		flightBytes: prometheus.NewDesc("rdp_flight_bytes", "Bytes currently in flight awaiting acknowledgement.", labels, constLabels),
		flightLimit: prometheus.NewDesc("rdp_flight_limit_bytes", "Current multiplicative flight window cap.", labels, constLabels),
		rttMillis:   prometheus.NewDesc("rdp_rtt_milliseconds", "Smoothed round trip time estimate.", labels, constLabels),
		queueDepth:  prometheus.NewDesc("rdp_send_queue_depth", "Unacknowledged outbound slots.", labels, constLabels),
		outOfOrder:  prometheus.NewDesc("rdp_out_of_order_count", "Buffered out-of-order inbound slots.", labels, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.openConns
	descs <- c.flightBytes
	descs <- c.flightLimit
	descs <- c.rttMillis
	descs <- c.queueDepth
	descs <- c.outOfOrder
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	metrics <- prometheus.MustNewConstMetric(c.openConns, prometheus.GaugeValue, float64(c.socket.reg.len()))

	for _, conn := range c.socket.reg.all {
		if conn.state.IsTerminal() {
			continue
		}
		peer := ""
		if conn.peerAddr != nil {
			peer = conn.peerAddr.String()
		}
		labelValues := []string{peer, conn.state.String()}
		metrics <- prometheus.MustNewConstMetric(c.flightBytes, prometheus.GaugeValue, float64(conn.flightBytes), labelValues...)
		metrics <- prometheus.MustNewConstMetric(c.flightLimit, prometheus.GaugeValue, float64(conn.flightLimit), labelValues...)
		metrics <- prometheus.MustNewConstMetric(c.rttMillis, prometheus.GaugeValue, float64(conn.rtt.Milliseconds()), labelValues...)
		metrics <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(conn.queue), labelValues...)
		metrics <- prometheus.MustNewConstMetric(c.outOfOrder, prometheus.GaugeValue, float64(conn.outOfOrderCount), labelValues...)
	}
}
