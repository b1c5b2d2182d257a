package governance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus instrumentation.
type Metrics struct {
	proposalsCreated  prometheus.Counter
	proposalsCanceled prometheus.Counter
	proposalsExecuted prometheus.Counter
	executionFailures prometheus.Counter
	votesCast         *prometheus.CounterVec
	guardianVotes     prometheus.Counter
	guardianCancels   prometheus.Counter
	parameterVersion  prometheus.Gauge
}

// NewMetrics creates and registers the engine metrics against the given
// registerer. A nil registerer creates unregistered metrics, which is
// useful in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		proposalsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "proposals_created_total",
			Help:      "Number of proposals created",
		}),
		proposalsCanceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "proposals_canceled_total",
			Help:      "Number of proposals canceled via the proposer path",
		}),
		proposalsExecuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "proposals_executed_total",
			Help:      "Number of proposals executed successfully",
		}),
		executionFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "execution_failures_total",
			Help:      "Number of rolled-back proposal executions",
		}),
		votesCast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "votes_cast_total",
			Help:      "Number of votes cast, by choice",
		}, []string{"choice"}),
		guardianVotes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "guardian_cancel_votes_total",
			Help:      "Number of guardian emergency cancel votes accepted",
		}),
		guardianCancels: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "governor",
			Name:      "guardian_cancellations_total",
			Help:      "Number of proposals canceled by the guardian brake",
		}),
		parameterVersion: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "governor",
			Name:      "parameter_version",
			Help:      "Version of the active governance parameter set",
		}),
	}
}
