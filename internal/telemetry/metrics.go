// Package telemetry defines the counters-only metrics sink threaded through
// the pipeline: every increment here is a pure side effect, never consulted
// for control flow.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters exposed to an operator's Prometheus registry.
// A nil *Metrics is valid everywhere it is threaded through: every method
// is a no-op on a nil receiver, so components never need to branch on
// whether the caller opted in.
type Metrics struct {
	PacketsSent     prometheus.Counter
	PacketsReceived prometheus.Counter
	PublishRetries  prometheus.Counter
	Reconnects      prometheus.Counter
	DedupHits       prometheus.Counter
}

// New builds a Metrics set under namespace and registers it with reg. A nil
// reg uses prometheus.DefaultRegisterer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_sent_total", Help: "MQTT control packets sent.",
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_received_total", Help: "MQTT control packets received.",
		}),
		PublishRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_retries_total", Help: "QoS 1/2 PUBLISH retransmissions.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconnects_total", Help: "Reconnect attempts made after a transport loss.",
		}),
		DedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dedup_hits_total", Help: "Inbound QoS1/2 deliveries suppressed as duplicates.",
		}),
	}
	reg.MustRegister(m.PacketsSent, m.PacketsReceived, m.PublishRetries, m.Reconnects, m.DedupHits)
	return m
}

func (m *Metrics) PacketSent() {
	if m != nil && m.PacketsSent != nil {
		m.PacketsSent.Inc()
	}
}

func (m *Metrics) PacketReceived() {
	if m != nil && m.PacketsReceived != nil {
		m.PacketsReceived.Inc()
	}
}

func (m *Metrics) PublishRetry() {
	if m != nil && m.PublishRetries != nil {
		m.PublishRetries.Inc()
	}
}

func (m *Metrics) Reconnect() {
	if m != nil && m.Reconnects != nil {
		m.Reconnects.Inc()
	}
}

func (m *Metrics) DedupHit() {
	if m != nil && m.DedupHits != nil {
		m.DedupHits.Inc()
	}
}
