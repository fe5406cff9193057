package turbomqtt

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/petabridge/TurboMqtt-sub000/internal/telemetry"
)

// Metrics is an optional counters-only telemetry sink: it observes the
// client, it never shapes protocol logic. Pass one via WithMetrics to wire
// it into the session; construct with NewMetrics to register it with a
// prometheus.Registerer.
type Metrics = telemetry.Metrics

// NewMetrics builds a Metrics set registered under the given namespace and
// registers it with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	return telemetry.New(namespace, reg)
}
