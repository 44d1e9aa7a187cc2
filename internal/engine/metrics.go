package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "glitchbot_decisions_total",
	Help: "Decision cycles by action and status",
}, []string{"action", "status"})

var denialCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "glitchbot_denials_total",
	Help: "Denied decision cycles by reason",
}, []string{"reason"})

var failureCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "glitchbot_failures_total",
	Help: "Failed decision cycles by failure kind",
}, []string{"kind"})

var originalFetchMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glitchbot_original_fetch_failures_total",
	Help: "Original-post lookups that failed during mention replies",
})

var sideOutputFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glitchbot_side_output_failures_total",
	Help: "Quote side outputs that could not be prepared after a reply",
})

var postsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glitchbot_posts_confirmed_total",
	Help: "Outputs confirmed as published",
})
