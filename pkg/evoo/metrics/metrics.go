// Package metrics holds the Prometheus collectors the learning loop
// exposes on its observation surface (§2/§6): counters and histograms for
// runs, strategy selection, tool invocation, and reward, registered once
// at package init and updated through small Record* helpers so callers
// never touch the client_golang API directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evoo_runs_total",
		Help: "Total learning-loop runs completed, labeled by final state.",
	}, []string{"state"})

	IncidentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evoo_incidents_total",
		Help: "Total incidents generated, labeled by incident_type and severity.",
	}, []string{"incident_type", "severity"})

	StrategySelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evoo_strategy_selections_total",
		Help: "Total strategy selections, labeled by strategy and exploratory/exploit.",
	}, []string{"strategy", "mode"})

	ToolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evoo_tool_invocations_total",
		Help: "Total tool invocations, labeled by tool name and result status.",
	}, []string{"tool", "status"})

	GuardrailVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evoo_guardrail_verdicts_total",
		Help: "Total guardrail check verdicts, labeled by rule name and verdict.",
	}, []string{"rule", "verdict"})

	RewardDistribution = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evoo_reward",
		Help:    "Distribution of computed rewards, labeled by incident_type.",
		Buckets: []float64{-100, -50, -20, 0, 20, 50, 80, 100, 150},
	}, []string{"incident_type"})

	RecoveryTimeSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evoo_recovery_time_seconds",
		Help:    "Distribution of simulated recovery time, labeled by strategy.",
		Buckets: []float64{5, 10, 20, 30, 45, 60, 90, 120, 180},
	}, []string{"strategy"})

	LLMCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evoo_llm_call_duration_seconds",
		Help:    "LLM call latency, labeled by provider and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "outcome"})

	LLMCircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evoo_llm_circuit_breaker_state",
		Help: "Current LLM circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"provider"})

	StoreWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evoo_store_write_failures_total",
		Help: "Store write failures after the single retry, labeled by store.",
	}, []string{"store"})
)

// RecordRun records the terminal state of one Run call.
func RecordRun(state string) {
	RunsTotal.WithLabelValues(state).Inc()
}

// RecordIncident records one generated incident.
func RecordIncident(incidentType, severity string) {
	IncidentsTotal.WithLabelValues(incidentType, severity).Inc()
}

// RecordStrategySelection records one Planner decision.
func RecordStrategySelection(strategy string, exploratory bool) {
	mode := "exploit"
	if exploratory {
		mode = "explore"
	}
	StrategySelections.WithLabelValues(strategy, mode).Inc()
}

// RecordToolInvocation records one tool catalog dispatch.
func RecordToolInvocation(tool, status string) {
	ToolInvocations.WithLabelValues(tool, status).Inc()
}

// RecordGuardrailVerdict records one guardrail rule outcome.
func RecordGuardrailVerdict(rule, verdict string) {
	GuardrailVerdicts.WithLabelValues(rule, verdict).Inc()
}

// RecordReward observes one computed reward.
func RecordReward(incidentType string, reward float64) {
	RewardDistribution.WithLabelValues(incidentType).Observe(reward)
}

// RecordRecoveryTime observes one strategy's recovery time.
func RecordRecoveryTime(strategy string, seconds float64) {
	RecoveryTimeSeconds.WithLabelValues(strategy).Observe(seconds)
}

// RecordLLMCall observes one LLM client call's latency and outcome.
func RecordLLMCall(provider, outcome string, seconds float64) {
	LLMCallDuration.WithLabelValues(provider, outcome).Observe(seconds)
}

// SetCircuitBreakerState reports the LLM client's current breaker state.
func SetCircuitBreakerState(provider string, state int) {
	LLMCircuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordStoreWriteFailure records a store write that failed even after
// its single retry (§7).
func RecordStoreWriteFailure(store string) {
	StoreWriteFailures.WithLabelValues(store).Inc()
}
