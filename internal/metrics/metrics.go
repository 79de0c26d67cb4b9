// Package metrics exposes Prometheus collectors for the validation pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeApproved labels validations that passed all three phases.
	OutcomeApproved = "approved"
	// OutcomeRejected labels validations rejected in any phase.
	OutcomeRejected = "rejected"
)

var (
	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mendgate",
			Name:      "validations_total",
			Help:      "Total number of fix validations, partitioned by outcome and terminating phase.",
		},
		[]string{"outcome", "phase"},
	)

	validationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mendgate",
			Name:      "validation_seconds",
			Help:      "End-to-end validation latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	judgeVotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mendgate",
			Name:      "judge_votes_total",
			Help:      "Judge votes received, partitioned by model and result.",
		},
		[]string{"model", "result"},
	)

	judgeSpendUSD = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mendgate",
			Name:      "judge_spend_usd_total",
			Help:      "Cumulative judge spend in USD.",
		},
	)

	breakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mendgate",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		},
	)
)

// Register attaches mendgate collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		validationsTotal,
		validationDurationSeconds,
		judgeVotesTotal,
		judgeSpendUSD,
		breakerState,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveValidation records one terminal validation result.
func ObserveValidation(duration time.Duration, approved bool, phase string) {
	outcome := OutcomeRejected
	if approved {
		outcome = OutcomeApproved
	}
	validationsTotal.WithLabelValues(outcome, phase).Inc()
	if duration < 0 {
		duration = 0
	}
	validationDurationSeconds.Observe(duration.Seconds())
}

// ObserveJudgeVote records one judge vote.
func ObserveJudgeVote(model string, approved bool, errored bool) {
	result := "rejected"
	switch {
	case errored:
		result = "error"
	case approved:
		result = "approved"
	}
	judgeVotesTotal.WithLabelValues(model, result).Inc()
}

// AddJudgeSpend accumulates judge spend.
func AddJudgeSpend(usd float64) {
	if usd > 0 {
		judgeSpendUSD.Add(usd)
	}
}

// SetBreakerState publishes the breaker state.
func SetBreakerState(state float64) {
	breakerState.Set(state)
}
