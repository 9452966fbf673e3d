package chassis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "chassis"

// Outcome label values of the port event counter.
const (
	eventForwarded   = "forwarded"
	eventNoSink      = "no_sink"
	eventUnknownPort = "unknown_port"
	eventWriteFailed = "write_failed"
)

// Result label values of the config counters.
const (
	resultOK      = "ok"
	resultInvalid = "invalid"
	resultFailed  = "failed"
)

type metrics struct {
	configPushes   *prometheus.CounterVec
	configVerifies *prometheus.CounterVec
	portEvents     *prometheus.CounterVec
	ports          prometheus.Gauge
}

// newMetrics builds the manager collectors and registers them with reg. A nil
// reg leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		configPushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "config_pushes_total",
			Help:      "Chassis config pushes by result.",
		}, []string{"result"}),
		configVerifies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "config_verifications_total",
			Help:      "Chassis config verifications by result.",
		}, []string{"result"}),
		portEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "port_status_events_total",
			Help:      "Port status callbacks received from device drivers, by outcome.",
		}, []string{"outcome"}),
		ports: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "singleton_ports",
			Help:      "Singleton ports tracked by the committed chassis config.",
		}),
	}
}
