package devserver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics live in their own registry so several servers can run in one
// process.
type Metrics struct {
	Registry *prometheus.Registry

	connections prometheus.Gauge
	msgsIn      prometheus.Counter
	msgsOut     prometheus.Counter
	bytesIn     prometheus.Counter
	bytesOut    prometheus.Counter
	noResponses prometheus.Counter
}

func newMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lantern",
			Subsystem: "devserver",
			Name:      "connections",
			Help:      "Number of open client connections.",
		}),
		msgsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lantern",
			Subsystem: "devserver",
			Name:      "messages_in_total",
			Help:      "Messages published by clients.",
		}),
		msgsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lantern",
			Subsystem: "devserver",
			Name:      "messages_out_total",
			Help:      "Messages delivered to subscriptions.",
		}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lantern",
			Subsystem: "devserver",
			Name:      "bytes_in_total",
			Help:      "Payload bytes published by clients.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lantern",
			Subsystem: "devserver",
			Name:      "bytes_out_total",
			Help:      "Payload bytes delivered to subscriptions.",
		}),
		noResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lantern",
			Subsystem: "devserver",
			Name:      "no_responders_total",
			Help:      "Requests answered with a no responders status.",
		}),
	}

	m.Registry.MustRegister(m.connections, m.msgsIn, m.msgsOut, m.bytesIn, m.bytesOut, m.noResponses)

	return m
}
