package metrics

import (
	"github.com/AndrewLester/delorean/internal/rpc"
	"github.com/prometheus/client_golang/prometheus"
)

// StatusCollector exports a responder's counters and policy, fetching one
// status snapshot per scrape.
type StatusCollector struct {
	fetch func() (rpc.Status, error)

	up        *prometheus.Desc
	received  *prometheus.Desc
	sent      *prometheus.Desc
	malformed *prometheus.Desc
	transient *prometheus.Desc
	clients   *prometheus.Desc
	offset    *prometheus.Desc
	random    *prometheus.Desc
}

func NewStatusCollector(fetch func() (rpc.Status, error)) *StatusCollector {
	return &StatusCollector{
		fetch:     fetch,
		up:        prometheus.NewDesc("delorean_up", "Whether the daemon answered on its control socket", nil, nil),
		received:  prometheus.NewDesc("delorean_received_total", "Datagrams received", nil, nil),
		sent:      prometheus.NewDesc("delorean_sent_total", "Forged replies sent", nil, nil),
		malformed: prometheus.NewDesc("delorean_malformed_total", "Datagrams dropped as malformed", nil, nil),
		transient: prometheus.NewDesc("delorean_transient_errors_total", "Receive or send failures", nil, nil),
		clients:   prometheus.NewDesc("delorean_clients", "Distinct client addresses seen", nil, nil),
		offset:    prometheus.NewDesc("delorean_offset_seconds", "Offset currently in effect", nil, nil),
		random:    prometheus.NewDesc("delorean_random_mode", "Whether random mode is on", nil, nil),
	}
}

func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.received
	ch <- c.sent
	ch <- c.malformed
	ch <- c.transient
	ch <- c.clients
	ch <- c.offset
	ch <- c.random
}

func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	status, err := c.fetch()
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)

	ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(status.Received))
	ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(status.Sent))
	ch <- prometheus.MustNewConstMetric(c.malformed, prometheus.CounterValue, float64(status.Malformed))
	ch <- prometheus.MustNewConstMetric(c.transient, prometheus.CounterValue, float64(status.Transient))
	ch <- prometheus.MustNewConstMetric(c.clients, prometheus.GaugeValue, float64(len(status.Clients)))
	ch <- prometheus.MustNewConstMetric(c.offset, prometheus.GaugeValue, status.BaseOffset)

	random := 0.0
	if status.Random {
		random = 1
	}
	ch <- prometheus.MustNewConstMetric(c.random, prometheus.GaugeValue, random)
}

func NewRegistry(fetch func() (rpc.Status, error)) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewStatusCollector(fetch))
	return registry
}
