/*
Package observability exposes Prometheus metrics for the controller and
the learning loop.
*/
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the engine and learning loop report to.
type Metrics struct {
	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec
	Steps        prometheus.Counter
	LMCalls      prometheus.Counter
	Retries      prometheus.Counter
	FactsWritten prometheus.Counter
	Proposals    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
}

// NewMetrics registers all collectors against the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riverbed",
			Name:      "runs_started_total",
			Help:      "Number of runs started.",
		}),
		RunsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riverbed",
			Name:      "runs_finished_total",
			Help:      "Number of runs finished, by outcome.",
		}, []string{"outcome"}),
		Steps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riverbed",
			Name:      "steps_total",
			Help:      "Number of controller steps executed.",
		}),
		LMCalls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riverbed",
			Name:      "lm_calls_total",
			Help:      "Number of language model calls.",
		}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riverbed",
			Name:      "retries_total",
			Help:      "Number of retry edge traversals.",
		}),
		FactsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "riverbed",
			Name:      "facts_written_total",
			Help:      "Number of facts committed to the sediment store.",
		}),
		Proposals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riverbed",
			Name:      "proposals_total",
			Help:      "Number of learning proposals, by status.",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "riverbed",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of finished runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}
