package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "bernard_cycle_duration_sec",
	Help: "Total duration of one report-queue poll cycle",
}, []string{"subreddit"})

var reportCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bernard_reports_processed",
	Help: "Number of moderator reports dispatched to rules",
}, []string{"subreddit"})

var ruleMatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bernard_rule_matches",
	Help: "Number of fresh rule matches acted upon",
}, []string{"subreddit", "rule"})

var actionErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bernard_action_errors",
	Help: "Number of remote-call failures during action execution",
}, []string{"action"})

var ledgerFlushCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bernard_ledger_flushes",
	Help: "Number of successful ledger flushes",
}, []string{"ledger"})

var ledgerFlushErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bernard_ledger_flush_errors",
	Help: "Number of failed ledger flushes",
}, []string{"ledger"})

var wikiConflictCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bernard_wiki_edit_conflicts",
	Help: "Number of optimistic-concurrency conflicts on wiki updates",
}, []string{"page"})
