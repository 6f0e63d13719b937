package registry

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	SessionsStarted  *prometheus.CounterVec
	SessionsFinished *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigation",
			Name:      "sessions_started_total",
			Help:      "Irrigation sessions started, by type.",
		}, []string{"type"}),
		SessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "irrigation",
			Name:      "sessions_finished_total",
			Help:      "Irrigation sessions reaching a terminal status.",
		}, []string{"status"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "irrigation",
			Name:      "sessions_active",
			Help:      "Sessions currently pending or in progress.",
		}),
	}
	reg.MustRegister(m.SessionsStarted, m.SessionsFinished, m.ActiveSessions)
	return m
}
