// Package metrics holds the Prometheus collectors of the voting service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeLabel = "outcome"
	stateLabel   = "state"
	resultLabel  = "result"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	ballots      *prometheus.CounterVec // outcome
	transitions  *prometheus.CounterVec // state
	cacheLookups *prometheus.CounterVec // result
	pollsCreated prometheus.Counter
}

// New creates the collectors under namespace and registers them with reg.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ballots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ballots_total",
				Help:      "ballot submissions by outcome",
			},
			[]string{outcomeLabel},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poll_transitions_total",
				Help:      "accepted poll state transitions by target state",
			},
			[]string{stateLabel},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_cache_lookups_total",
				Help:      "results cache lookups by result",
			},
			[]string{resultLabel},
		),
		pollsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_created_total",
			Help:      "polls created",
		}),
	}
	for _, c := range []prometheus.Collector{m.ballots, m.transitions, m.cacheLookups, m.pollsCreated} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveBallot counts one submission with the given outcome.
func (m *Metrics) ObserveBallot(outcome string) {
	if m == nil {
		return
	}
	m.ballots.WithLabelValues(outcome).Inc()
}

// ObserveTransition counts one accepted state change.
func (m *Metrics) ObserveTransition(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

// ObserveCache counts a results cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObservePollCreated counts one created poll.
func (m *Metrics) ObservePollCreated() {
	if m == nil {
		return
	}
	m.pollsCreated.Inc()
}
