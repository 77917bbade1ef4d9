// Package evaluator implements the reward computation and LLM judge
// (§4.9): a deterministic formula with a component-wise breakdown, plus
// an optional LLM verdict that is stored but never alters the reward.
package evaluator

import (
	"context"
	"strconv"

	"github.com/evoo/evoo/pkg/evoo/domain"
	"github.com/evoo/evoo/pkg/evoo/llm"
)

// Outcome bundles everything the Evaluator needs (§4.9).
type Outcome struct {
	MetricsBefore      domain.SystemMetrics
	MetricsAfter       domain.SystemMetrics
	RecoveryTimeSeconds float64
	InfrastructureCost float64
	ServiceRestored    bool
	Strategy           domain.Strategy
	IncidentType       domain.IncidentType
}

// Reward is the scalar reward plus its component-wise breakdown, which
// must reconcile (unclamped) to the sum.
type Reward struct {
	Value     float64
	Breakdown map[string]float64
}

var penalizedStrategies = map[domain.Strategy]bool{
	domain.ScaleHorizontal:       true,
	domain.CombinedRestartScale:  true,
	domain.CombinedRollbackScale: true,
}

var penalizedIncidents = map[domain.IncidentType]bool{
	domain.TimeoutMisconfiguration: true,
	domain.MemoryLeak:              true,
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// ComputeReward implements the exact §4.9 formula over before/after
// metrics, returning both the scalar reward and a breakdown that sums
// to it exactly (unclamped).
func ComputeReward(o Outcome) Reward {
	breakdown := map[string]float64{}

	if o.ServiceRestored {
		breakdown["restoration"] = 100
	} else {
		breakdown["restoration"] = -50
	}

	breakdown["recovery_time_penalty"] = -0.5 * o.RecoveryTimeSeconds
	breakdown["infrastructure_cost_penalty"] = -0.2 * o.InfrastructureCost
	breakdown["residual_error_penalty"] = -50 * o.MetricsAfter.ErrorRate

	latencyImprovement := minf(maxf(0, o.MetricsBefore.LatencyMs-o.MetricsAfter.LatencyMs), 500)
	breakdown["latency_improvement_bonus"] = 0.02 * latencyImprovement

	availabilityImprovement := maxf(0, o.MetricsAfter.Availability-o.MetricsBefore.Availability)
	breakdown["availability_improvement_bonus"] = 50 * availabilityImprovement

	cpuImprovement := maxf(0, o.MetricsBefore.CPUPercent-o.MetricsAfter.CPUPercent)
	breakdown["cpu_improvement_bonus"] = 0.05 * cpuImprovement

	breakdown["aggressive_strategy_penalty"] = 0
	if penalizedStrategies[o.Strategy] && penalizedIncidents[o.IncidentType] {
		breakdown["aggressive_strategy_penalty"] = -10
	}

	total := 0.0
	for _, v := range breakdown {
		total += v
	}

	return Reward{Value: total, Breakdown: breakdown}
}

// Verdict is the LLM judge's structured opinion (§4.9); it never
// alters the reward.
type Verdict struct {
	OverallScore    float64
	LLMVerdict      domain.LLMVerdict
	Analysis        string
	BetterStrategy  string
}

// Judge calls the optional LLM judge, falling back to a heuristic
// verdict derived purely from availability_after on any failure.
type Judge struct {
	client *llm.Client
}

// NewJudge builds a Judge; a nil client makes Evaluate always use the
// heuristic fallback.
func NewJudge(client *llm.Client) *Judge {
	return &Judge{client: client}
}

// HeuristicVerdict implements §4.9's fallback thresholds.
func HeuristicVerdict(availabilityAfter float64) domain.LLMVerdict {
	switch {
	case availabilityAfter >= 0.99:
		return domain.VerdictExcellent
	case availabilityAfter >= 0.95:
		return domain.VerdictGood
	case availabilityAfter >= 0.80:
		return domain.VerdictAdequate
	case availabilityAfter >= 0.50:
		return domain.VerdictPoor
	default:
		return domain.VerdictFailed
	}
}

// Evaluate asks the LLM judge to score the outcome; on any failure or
// missing client it returns the heuristic verdict instead (§4.9, §7).
func (j *Judge) Evaluate(ctx context.Context, o Outcome, reward Reward) Verdict {
	if j.client == nil {
		return j.heuristic(o)
	}

	prompt := buildJudgePrompt(o, reward)
	resp, err := j.client.Complete(ctx, llm.Request{
		SystemPrompt: "You are an expert SRE judging the quality of an automated remediation. Respond with a single JSON object only.",
		UserPrompt:   prompt,
		Temperature:  0.2,
		MaxTokens:    500,
		JSONMode:     true,
	})
	if err != nil {
		return j.heuristic(o)
	}

	parsed := llm.ParseJSON(resp)
	score, hasScore := parsed["overall_score"].(float64)
	verdictStr, hasVerdict := parsed["verdict"].(string)
	if !hasScore || !hasVerdict {
		return j.heuristic(o)
	}

	verdict := domain.LLMVerdict(verdictStr)
	if !isValidVerdict(verdict) {
		return j.heuristic(o)
	}

	analysis, _ := parsed["analysis"].(string)
	betterStrategy, _ := parsed["better_strategy"].(string)

	return Verdict{
		OverallScore:   score,
		LLMVerdict:     verdict,
		Analysis:       analysis,
		BetterStrategy: betterStrategy,
	}
}

func (j *Judge) heuristic(o Outcome) Verdict {
	verdict := HeuristicVerdict(o.MetricsAfter.Availability)
	return Verdict{
		OverallScore: heuristicScore(verdict),
		LLMVerdict:   verdict,
		Analysis:     "heuristic fallback derived from post-remediation availability",
	}
}

func heuristicScore(v domain.LLMVerdict) float64 {
	switch v {
	case domain.VerdictExcellent:
		return 9.0
	case domain.VerdictGood:
		return 7.0
	case domain.VerdictAdequate:
		return 5.0
	case domain.VerdictPoor:
		return 3.0
	default:
		return 0.0
	}
}

func isValidVerdict(v domain.LLMVerdict) bool {
	switch v {
	case domain.VerdictExcellent, domain.VerdictGood, domain.VerdictAdequate,
		domain.VerdictPoor, domain.VerdictFailed, domain.VerdictUnknown:
		return true
	default:
		return false
	}
}

func buildJudgePrompt(o Outcome, reward Reward) string {
	return "Evaluate this remediation outcome and respond with JSON " +
		`{"overall_score": 0-10, "verdict": "excellent|good|adequate|poor|failed", "analysis": "...", "better_strategy": "..."}.` +
		"\nStrategy: " + string(o.Strategy) +
		"\nIncident: " + string(o.IncidentType) +
		"\nService restored: " + boolStr(o.ServiceRestored) +
		"\nComputed reward: " + floatStr(reward.Value)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func floatStr(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
