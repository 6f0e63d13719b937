package ingest

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	MessagesTotal  *prometheus.CounterVec
	ParseErrors    *prometheus.CounterVec
	DroppedUnknown prometheus.Counter
	SmartTriggers  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Inbound messages processed, by channel family.",
		}, []string{"family"}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "ingest",
			Name:      "parse_errors_total",
			Help:      "Messages dropped at the validation boundary.",
		}, []string{"family"}),
		DroppedUnknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "ingest",
			Name:      "dropped_unknown_device_total",
			Help:      "Messages dropped because the device directory has no entry.",
		}),
		SmartTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "irrigation",
			Subsystem: "ingest",
			Name:      "smart_triggers_total",
			Help:      "Automatic irrigation sessions triggered from telemetry.",
		}),
	}
	reg.MustRegister(m.MessagesTotal, m.ParseErrors, m.DroppedUnknown, m.SmartTriggers)
	return m
}
