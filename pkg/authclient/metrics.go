package authclient

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	TriggerPreflight = "preflight"
	TriggerReactive  = "reactive"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	ReasonNoSession     = "no_session"
	ReasonRefreshFailed = "refresh_failed"
	ReasonRetryRejected = "retry_rejected"
)

type Metrics struct {
	Refreshes    *prometheus.CounterVec
	Terminations *prometheus.CounterVec
}

func (m *Metrics) refreshed(trigger, outcome string) {
	m.Refreshes.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) terminated(reason string) {
	m.Terminations.WithLabelValues(reason).Inc()
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Refreshes, m.Terminations}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Access token refresh exchanges, by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		Terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "terminations_total",
			Help:      "Sessions terminated by the client, by reason.",
		}, []string{"reason"}),
	}
}
