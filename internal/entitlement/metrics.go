package entitlement

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts decisions and counter writes. A nil *Metrics records nothing.
type Metrics struct {
	decisions  *prometheus.CounterVec
	increments *prometheus.CounterVec
	resets     *prometheus.CounterVec
}

// NewMetrics registers the entitlement collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studyhub",
			Subsystem: "entitlement",
			Name:      "decisions_total",
			Help:      "Quota decisions by feature and outcome.",
		}, []string{"feature", "allowed"}),
		increments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studyhub",
			Subsystem: "entitlement",
			Name:      "usage_increments_total",
			Help:      "Usage counter increments by feature; rollover=true when a new window started.",
		}, []string{"feature", "rollover"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studyhub",
			Subsystem: "entitlement",
			Name:      "usage_resets_total",
			Help:      "Administrative usage resets by feature.",
		}, []string{"feature"}),
	}
	reg.MustRegister(m.decisions, m.increments, m.resets)
	return m
}

func (m *Metrics) observeDecision(feature Feature, allowed bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(feature), strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) observeIncrement(feature Feature, rollover bool) {
	if m == nil {
		return
	}
	m.increments.WithLabelValues(string(feature), strconv.FormatBool(rollover)).Inc()
}

func (m *Metrics) observeReset(feature Feature) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(string(feature)).Inc()
}
