// Package domain holds the data model EVOO's learning loop operates over:
// incidents, strategies, metrics, experiences, and strategy statistics.
package domain

import "time"

// IncidentType is the closed set of fault classes EVOO recognizes.
type IncidentType string

const (
	ServiceCrash            IncidentType = "service_crash"
	HighLatency              IncidentType = "high_latency"
	CPUSpike                 IncidentType = "cpu_spike"
	MemoryLeak               IncidentType = "memory_leak"
	NetworkDegradation       IncidentType = "network_degradation"
	TimeoutMisconfiguration  IncidentType = "timeout_misconfiguration"
)

// AllIncidentTypes enumerates the closed set in a fixed order, used for
// uniform sampling and validation.
var AllIncidentTypes = []IncidentType{
	ServiceCrash, HighLatency, CPUSpike, MemoryLeak,
	NetworkDegradation, TimeoutMisconfiguration,
}

// Valid reports whether t is one of the six canonical incident types.
func (t IncidentType) Valid() bool {
	for _, v := range AllIncidentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Severity is the ordered incident severity scale.
type Severity string

const (
	Low      Severity = "low"
	Medium   Severity = "medium"
	High     Severity = "high"
	Critical Severity = "critical"
)

// Strategy is the closed set of ten remediation strategy identifiers: seven
// single-action strategies and three combined strategies. This is the
// canonical ten-ID enumeration per spec.md's Open Questions resolution.
type Strategy string

const (
	RestartService         Strategy = "restart_service"
	ScaleHorizontal         Strategy = "scale_horizontal"
	ScaleVertical           Strategy = "scale_vertical"
	ChangeTimeout           Strategy = "change_timeout"
	RollbackDeployment      Strategy = "rollback_deployment"
	ClearCache              Strategy = "clear_cache"
	RebalanceLoad           Strategy = "rebalance_load"
	CombinedRestartScale    Strategy = "combined_restart_scale"
	CombinedCacheRebalance  Strategy = "combined_cache_rebalance"
	CombinedRollbackScale   Strategy = "combined_rollback_scale"
)

// AllStrategies enumerates the closed set in a fixed order.
var AllStrategies = []Strategy{
	RestartService, ScaleHorizontal, ScaleVertical, ChangeTimeout,
	RollbackDeployment, ClearCache, RebalanceLoad,
	CombinedRestartScale, CombinedCacheRebalance, CombinedRollbackScale,
}

// SingleActionStrategies are the seven strategies that dispatch exactly one
// tool; CombinedStrategies dispatch two.
var SingleActionStrategies = []Strategy{
	RestartService, ScaleHorizontal, ScaleVertical, ChangeTimeout,
	RollbackDeployment, ClearCache, RebalanceLoad,
}

// Valid reports whether s is one of the ten canonical strategies.
func (s Strategy) Valid() bool {
	for _, v := range AllStrategies {
		if v == s {
			return true
		}
	}
	return false
}

// InfrastructureCost is the fixed relative cost of running a strategy
// before the §4.1 step-5 instance/CPU adjustment, range 0.05-3.5.
var InfrastructureCost = map[Strategy]float64{
	RestartService:         0.1,
	ScaleHorizontal:        2.0,
	ScaleVertical:          1.5,
	ChangeTimeout:          0.05,
	RollbackDeployment:     0.5,
	ClearCache:             0.1,
	RebalanceLoad:          0.3,
	CombinedRestartScale:   2.1,
	CombinedCacheRebalance: 0.4,
	CombinedRollbackScale:  2.5,
}

// SystemMetrics is the observation vector recorded at every point of
// measurement (detection, post-remediation).
type SystemMetrics struct {
	LatencyMs           float64   `json:"latency_ms"`
	CPUPercent          float64   `json:"cpu_percent"`
	MemoryPercent       float64   `json:"memory_percent"`
	ErrorRate           float64   `json:"error_rate"`
	Availability        float64   `json:"availability"`
	ActiveInstances     int       `json:"active_instances"`
	TimeoutMs           int       `json:"timeout_ms"`
	RecoveryTimeSeconds *float64  `json:"recovery_time_seconds,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// HealthyBaseline is the target metric vector that remediation effects
// interpolate towards (§4.1).
var HealthyBaseline = SystemMetrics{
	LatencyMs:       120,
	CPUPercent:      25,
	MemoryPercent:   45,
	ErrorRate:       0.005,
	Availability:    0.999,
	ActiveInstances: 3,
	TimeoutMs:       5000,
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// HealthScore computes the fixed weighted combination specified in §3:
// latency 0.25, cpu 0.15, memory 0.15, error 0.25, availability 0.20, each
// individually normalised to [0,1] before weighting (lower-is-better
// metrics are inverted so the composite stays "higher is healthier").
func (m SystemMetrics) HealthScore() float64 {
	// latency: 0ms -> 1.0 healthy, 15000ms (worst profile bound) -> 0.0
	latencyNorm := clamp01(1 - m.LatencyMs/15000)
	cpuNorm := clamp01(1 - m.CPUPercent/100)
	memNorm := clamp01(1 - m.MemoryPercent/100)
	errNorm := clamp01(1 - m.ErrorRate)
	availNorm := clamp01(m.Availability)

	return 0.25*latencyNorm + 0.15*cpuNorm + 0.15*memNorm + 0.25*errNorm + 0.20*availNorm
}

// ServiceRestored implements the restore predicate (§4.1 step 4, invariant
// in §8): availability >= 0.95 and error_rate <= 0.05.
func (m SystemMetrics) ServiceRestored() bool {
	return m.Availability >= 0.95 && m.ErrorRate <= 0.05
}

// Incident is a sampled fault scenario. metrics_at_detection is immutable
// once recorded; ID is unique per run.
type Incident struct {
	ID                  string         `json:"id"`
	IncidentType        IncidentType   `json:"incident_type"`
	Severity            Severity       `json:"severity"`
	AffectedService     string         `json:"affected_service"`
	MetricsAtDetection  SystemMetrics  `json:"metrics_at_detection"`
	DetectedAt          time.Time      `json:"detected_at"`
	Description         string         `json:"description"`
}

// ToolResult is the uniform result shape every tool invocation returns
// (§4.8).
type ToolResult struct {
	Tool        string         `json:"tool"`
	Status      string         `json:"status"` // success|error|skipped
	ExecutedAt  time.Time      `json:"executed_at"`
	Fields      map[string]any `json:"fields,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// LLMVerdict is the closed set of qualitative LLM-judge outcomes.
type LLMVerdict string

const (
	VerdictExcellent LLMVerdict = "excellent"
	VerdictGood      LLMVerdict = "good"
	VerdictAdequate  LLMVerdict = "adequate"
	VerdictPoor      LLMVerdict = "poor"
	VerdictFailed    LLMVerdict = "failed"
	VerdictUnknown   LLMVerdict = "unknown"
)

// Experience is the immutable unit of learning: one (incident, strategy,
// outcome) triple.
type Experience struct {
	ID                  string            `json:"id"`
	Timestamp           time.Time         `json:"timestamp"`
	RunIndex            int               `json:"run_index"`
	IncidentType        IncidentType      `json:"incident_type"`
	IncidentSeverity    Severity          `json:"incident_severity"`
	MetricsBefore       SystemMetrics     `json:"metrics_before"`
	StrategyUsed        Strategy          `json:"strategy_used"`
	IsExploratory       bool              `json:"is_exploratory"`
	ToolsCalled         []string          `json:"tools_called"`
	ToolResults         []ToolResult      `json:"tool_results"`
	MetricsAfter        SystemMetrics     `json:"metrics_after"`
	RecoveryTimeSeconds float64           `json:"recovery_time_seconds"`
	ServiceRestored     bool              `json:"service_restored"`
	InfrastructureCost  float64           `json:"infrastructure_cost"`
	Reward              float64           `json:"reward"`
	RewardBreakdown     map[string]float64 `json:"reward_breakdown"`
	LLMVerdict          LLMVerdict        `json:"llm_verdict"`
	LLMAnalysis         string            `json:"llm_analysis"`
}

// Success mirrors ServiceRestored: success is defined as an alias of
// service_restored per the §3 data model.
func (e Experience) Success() bool {
	return e.ServiceRestored
}

// StrategyKey identifies a (incident_type, strategy) pair as used by the
// strategy-statistics store's map key and the persisted file's object key.
func StrategyKey(incident IncidentType, strategy Strategy) string {
	return string(incident) + "::" + string(strategy)
}

// StrategyRecord is the aggregated statistics for one (incident_type,
// strategy) pair.
type StrategyRecord struct {
	IncidentType        IncidentType `json:"incident_type"`
	Strategy            Strategy     `json:"strategy"`
	TotalUses           int          `json:"total_uses"`
	TotalReward         float64      `json:"total_reward"`
	TotalRecoveryTime   float64      `json:"total_recovery_time"`
	SuccessCount        int          `json:"success_count"`
	FailureCount        int          `json:"failure_count"`
	LastUsed            time.Time    `json:"last_used"`
	FirstUsed           time.Time    `json:"first_used"`
}

// AverageReward implements the §3 invariant: total_reward/total_uses, or 0
// when never used.
func (r StrategyRecord) AverageReward() float64 {
	if r.TotalUses == 0 {
		return 0
	}
	return r.TotalReward / float64(r.TotalUses)
}

// AverageRecoveryTime implements total_recovery_time/total_uses.
func (r StrategyRecord) AverageRecoveryTime() float64 {
	if r.TotalUses == 0 {
		return 0
	}
	return r.TotalRecoveryTime / float64(r.TotalUses)
}

// SuccessRate implements success_count/total_uses, 0 when never used.
func (r StrategyRecord) SuccessRate() float64 {
	if r.TotalUses == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(r.TotalUses)
}

// Update folds one new observation into the record in place, preserving
// the §3/§8 invariants: total_uses = success_count + failure_count.
func (r *StrategyRecord) Update(reward, recoveryTime float64, success bool, at time.Time) {
	r.TotalUses++
	r.TotalReward += reward
	r.TotalRecoveryTime += recoveryTime
	if success {
		r.SuccessCount++
	} else {
		r.FailureCount++
	}
	if r.FirstUsed.IsZero() {
		r.FirstUsed = at
	}
	r.LastUsed = at
}
