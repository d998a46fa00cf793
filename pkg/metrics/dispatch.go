package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics counts claim races and state transitions.
type DispatchMetrics struct {
	claimed     prometheus.Counter
	claimLost   prometheus.Counter
	transitions *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	expired     prometheus.Counter
}

// NewDispatchMetrics registers the dispatch metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	claimed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_claims_won_total",
		Help: "Notifications claimed by this process.",
	})
	claimLost := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_claims_lost_total",
		Help: "Claim attempts lost to a concurrent worker.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_transitions_total",
		Help: "Applied notification state transitions.",
	}, []string{"from", "to"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_transitions_rejected_total",
		Help: "Transitions rejected by the state machine or claim check.",
	}, []string{"reason"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_claims_expired_total",
		Help: "Stale claims released by the sweep.",
	})
	reg.MustRegister(claimed, claimLost, transitions, rejected, expired)
	return &DispatchMetrics{
		claimed:     claimed,
		claimLost:   claimLost,
		transitions: transitions,
		rejected:    rejected,
		expired:     expired,
	}
}

func (d *DispatchMetrics) AddClaimed(n int) {
	if d == nil || d.claimed == nil || n <= 0 {
		return
	}
	d.claimed.Add(float64(n))
}

func (d *DispatchMetrics) AddClaimLost(n int) {
	if d == nil || d.claimLost == nil || n <= 0 {
		return
	}
	d.claimLost.Add(float64(n))
}

func (d *DispatchMetrics) IncTransition(from, to string) {
	if d == nil || d.transitions == nil {
		return
	}
	d.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (d *DispatchMetrics) IncRejected(reason string) {
	if d == nil || d.rejected == nil {
		return
	}
	d.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (d *DispatchMetrics) AddExpired(n int) {
	if d == nil || d.expired == nil || n <= 0 {
		return
	}
	d.expired.Add(float64(n))
}
