package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Set holds the service counters on a private registry so tests can build
// isolated instances.
type Set struct {
	Registry *prometheus.Registry

	RunsTotal          prometheus.Counter
	CommentsFetched    prometheus.Counter
	ClassifierFailures prometheus.Counter
	SpamDetected       prometheus.Counter
	ModerationCalls    *prometheus.CounterVec
}

// New registers the counter set.
func New() *Set {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	s := &Set{
		Registry: registry,
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commentguard_runs_total",
			Help: "Completed pipeline runs.",
		}),
		CommentsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commentguard_comments_fetched_total",
			Help: "Comments fetched from the platform.",
		}),
		ClassifierFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commentguard_classifier_failures_total",
			Help: "Per-comment classification failures that fell back to a neutral verdict.",
		}),
		SpamDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commentguard_spam_detected_total",
			Help: "Comments the classifier flagged as spam.",
		}),
		ModerationCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commentguard_moderation_calls_total",
			Help: "Moderation call outcomes by error class.",
		}, []string{"class"}),
	}

	registry.MustRegister(s.RunsTotal, s.CommentsFetched, s.ClassifierFailures, s.SpamDetected, s.ModerationCalls)
	return s
}
