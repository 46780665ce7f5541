// Package metrics defines the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ApprovalTransitions counts approval queue transitions by resulting status.
	ApprovalTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showrunner_approval_transitions_total",
		Help: "Approval queue transitions by resulting status.",
	}, []string{"status"})

	// ScheduleOutcomes counts scheduler job terminal outcomes.
	ScheduleOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showrunner_schedule_outcomes_total",
		Help: "Scheduled content job outcomes.",
	}, []string{"outcome"})

	// CronRuns counts periodic job runs by job id and outcome.
	CronRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showrunner_cron_runs_total",
		Help: "Cron job runs by job id and outcome.",
	}, []string{"job", "outcome"})

	// CronDuration observes periodic job wall time.
	CronDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "showrunner_cron_duration_seconds",
		Help:    "Cron job duration in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"job"})

	// Notifications counts notifier decisions by urgency (including dedup drops).
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showrunner_notifications_total",
		Help: "Notifier decisions by urgency classification.",
	}, []string{"urgency"})

	// LLMCalls counts model router invocations by tier and outcome.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showrunner_llm_calls_total",
		Help: "Model router invocations by tier and outcome.",
	}, []string{"tier", "outcome"})

	// LLMTokens counts tokens recorded by the model router.
	LLMTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showrunner_llm_tokens_total",
		Help: "Tokens consumed by the model router.",
	}, []string{"tier", "direction"})

	// ResearchScraped counts scraped research items by source.
	ResearchScraped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showrunner_research_scraped_total",
		Help: "Research items scraped by source.",
	}, []string{"source"})

	// InboxFiles counts processed inbox files by prefix and outcome.
	InboxFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showrunner_inbox_files_total",
		Help: "Operations inbox files processed by prefix and outcome.",
	}, []string{"prefix", "outcome"})

	// PlatformCalls counts outbound publishing-surface calls by adapter,
	// endpoint, and outcome.
	PlatformCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showrunner_platform_calls_total",
		Help: "Publishing platform API calls by adapter, endpoint, and outcome.",
	}, []string{"adapter", "endpoint", "outcome"})
)
