// Package guardrail implements the pre-execution safety gate (§4.4): a
// pure policy check vetting each proposed tool call before the executor
// invokes it, grounded on the original prototype's
// guardrails/safety_rules.py rule set and §9's Rule capability
// (applies_to / evaluate).
package guardrail

import (
	"fmt"
	"os"
	"strconv"
)

// Verdict is a guardrail rule's outcome.
type Verdict string

const (
	Allow Verdict = "allow"
	Warn  Verdict = "warn"
	Block Verdict = "block"
)

// Result is the outcome of evaluating the full ruleset against one
// proposed action.
type Result struct {
	Verdict  Verdict
	RuleName string
	Reason   string
}

// ActionContext is everything a rule needs to evaluate one proposed tool
// call: the action itself, a snapshot of system state, and the incident's
// running history of actions taken so far this run.
type ActionContext struct {
	Action          string
	Parameters      map[string]any
	ActiveInstances int
	HealthScore     float64
	TotalCost       float64
	RestartCount    int
	RollbackCount   int
	TotalActions    int
}

// Config carries every guardrail threshold, each overridable via the
// environment variable named in spec.md §4.4/§6; defaults match the
// table there.
type Config struct {
	Enabled bool

	MinInstancesForRestart  int
	MinInstancesForRollback int

	MaxHorizontalInstances int
	MinHorizontalInstances int
	AggressiveScaleFactor  float64

	MaxVerticalCPU    float64
	MaxVerticalMemory float64

	MinTimeoutMs int
	MaxTimeoutMs int

	MaxCostPerIncident float64

	MaxRestartsPerIncident    int
	MaxRollbacksPerIncident   int
	MaxTotalActionsPerIncident int

	HealthyThreshold float64
}

func envBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(name string, def float64) float64 {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// DefaultConfig builds a Config from environment variables, falling back
// to the §4.4 defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                    envBool("EVOO_GUARDRAILS_ENABLED", true),
		MinInstancesForRestart:     envInt("EVOO_MIN_INSTANCES_FOR_RESTART", 2),
		MinInstancesForRollback:    envInt("EVOO_MIN_INSTANCES_FOR_ROLLBACK", 2),
		MaxHorizontalInstances:     envInt("EVOO_MAX_HORIZONTAL_INSTANCES", 10),
		MinHorizontalInstances:     envInt("EVOO_MIN_HORIZONTAL_INSTANCES", 1),
		AggressiveScaleFactor:      envFloat("EVOO_AGGRESSIVE_SCALE_FACTOR", 3.0),
		MaxVerticalCPU:             envFloat("EVOO_MAX_VERTICAL_CPU", 8.0),
		MaxVerticalMemory:          envFloat("EVOO_MAX_VERTICAL_MEMORY", 16.0),
		MinTimeoutMs:               envInt("EVOO_MIN_TIMEOUT_MS", 500),
		MaxTimeoutMs:               envInt("EVOO_MAX_TIMEOUT_MS", 60000),
		MaxCostPerIncident:         envFloat("EVOO_MAX_COST_PER_INCIDENT", 50.0),
		MaxRestartsPerIncident:     envInt("EVOO_MAX_RESTARTS_PER_INCIDENT", 3),
		MaxRollbacksPerIncident:    envInt("EVOO_MAX_ROLLBACKS_PER_INCIDENT", 1),
		MaxTotalActionsPerIncident: envInt("EVOO_MAX_ACTIONS_PER_INCIDENT", 10),
		HealthyThreshold:           envFloat("EVOO_HEALTHY_THRESHOLD", 0.85),
	}
}

// Rule is one guardrail policy check (§9 DESIGN NOTES).
type Rule interface {
	Name() string
	AppliesTo(action string) bool
	Evaluate(cfg Config, ctx ActionContext) *Result
}

// Engine evaluates an ordered ruleset, first block wins, else first warn
// wins, else allow (§4.4).
type Engine struct {
	cfg   Config
	rules []Rule
}

// NewEngine builds the fixed, ordered ruleset described in §4.4.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg: cfg,
		rules: []Rule{
			minInstancesForRestart{},
			minInstancesForRollback{},
			horizontalScaleLimits{},
			verticalScaleLimits{},
			timeoutBounds{},
			costBudget{},
			actionFrequency{},
			alreadyHealthy{},
		},
	}
}

// Check evaluates every applicable rule and returns the most restrictive
// verdict found.
func (e *Engine) Check(ctx ActionContext) Result {
	if !e.cfg.Enabled {
		return Result{Verdict: Allow, RuleName: "guardrails_disabled", Reason: "guardrails are disabled"}
	}

	var firstWarn *Result
	for _, rule := range e.rules {
		if !rule.AppliesTo(ctx.Action) {
			continue
		}
		res := rule.Evaluate(e.cfg, ctx)
		if res == nil {
			continue
		}
		if res.Verdict == Block {
			return *res
		}
		if res.Verdict == Warn && firstWarn == nil {
			firstWarn = res
		}
	}
	if firstWarn != nil {
		return *firstWarn
	}
	return Result{Verdict: Allow, RuleName: "no_rule_triggered", Reason: "no guardrail rule blocked or warned"}
}

// --- individual rules ---

type minInstancesForRestart struct{}

func (minInstancesForRestart) Name() string             { return "min_instances_for_restart" }
func (minInstancesForRestart) AppliesTo(a string) bool  { return a == "restart_service" }
func (r minInstancesForRestart) Evaluate(cfg Config, ctx ActionContext) *Result {
	if ctx.ActiveInstances < cfg.MinInstancesForRestart {
		return &Result{Verdict: Block, RuleName: r.Name(), Reason: fmt.Sprintf(
			"restart_service would drop below %d active instances (currently %d)", cfg.MinInstancesForRestart, ctx.ActiveInstances)}
	}
	return nil
}

type minInstancesForRollback struct{}

func (minInstancesForRollback) Name() string            { return "min_instances_for_rollback" }
func (minInstancesForRollback) AppliesTo(a string) bool { return a == "rollback_deployment" }
func (r minInstancesForRollback) Evaluate(cfg Config, ctx ActionContext) *Result {
	if ctx.ActiveInstances < cfg.MinInstancesForRollback {
		return &Result{Verdict: Block, RuleName: r.Name(), Reason: fmt.Sprintf(
			"rollback_deployment requires at least %d active instances (currently %d)", cfg.MinInstancesForRollback, ctx.ActiveInstances)}
	}
	return nil
}

type horizontalScaleLimits struct{}

func (horizontalScaleLimits) Name() string            { return "horizontal_scaling_limits" }
func (horizontalScaleLimits) AppliesTo(a string) bool { return a == "scale_horizontal" }
func (r horizontalScaleLimits) Evaluate(cfg Config, ctx ActionContext) *Result {
	target, _ := ctx.Parameters["target_instances"].(int)
	if target > cfg.MaxHorizontalInstances || target < cfg.MinHorizontalInstances {
		return &Result{Verdict: Block, RuleName: "max_min_horizontal_instances", Reason: fmt.Sprintf(
			"target_instances=%d outside [%d,%d]", target, cfg.MinHorizontalInstances, cfg.MaxHorizontalInstances)}
	}
	if ctx.ActiveInstances > 0 && float64(target) > cfg.AggressiveScaleFactor*float64(ctx.ActiveInstances) {
		return &Result{Verdict: Warn, RuleName: "aggressive_horizontal_scaling", Reason: fmt.Sprintf(
			"target_instances=%d is more than %.0fx current %d", target, cfg.AggressiveScaleFactor, ctx.ActiveInstances)}
	}
	return nil
}

type verticalScaleLimits struct{}

func (verticalScaleLimits) Name() string            { return "vertical_scaling_limits" }
func (verticalScaleLimits) AppliesTo(a string) bool { return a == "scale_vertical" }
func (r verticalScaleLimits) Evaluate(cfg Config, ctx ActionContext) *Result {
	cpu, _ := ctx.Parameters["target_cpu"].(float64)
	mem, _ := ctx.Parameters["target_memory_gb"].(float64)
	if cpu > cfg.MaxVerticalCPU {
		return &Result{Verdict: Block, RuleName: "max_vertical_cpu", Reason: fmt.Sprintf(
			"target_cpu=%.1f exceeds limit %.1f", cpu, cfg.MaxVerticalCPU)}
	}
	if mem > cfg.MaxVerticalMemory {
		return &Result{Verdict: Block, RuleName: "max_vertical_memory", Reason: fmt.Sprintf(
			"target_memory_gb=%.1f exceeds limit %.1f", mem, cfg.MaxVerticalMemory)}
	}
	return nil
}

type timeoutBounds struct{}

func (timeoutBounds) Name() string            { return "timeout_bounds" }
func (timeoutBounds) AppliesTo(a string) bool { return a == "change_timeout" }
func (r timeoutBounds) Evaluate(cfg Config, ctx ActionContext) *Result {
	newTimeout, _ := ctx.Parameters["new_timeout_ms"].(int)
	if newTimeout < cfg.MinTimeoutMs || newTimeout > cfg.MaxTimeoutMs {
		return &Result{Verdict: Block, RuleName: r.Name(), Reason: fmt.Sprintf(
			"new_timeout_ms=%d outside [%d,%d]", newTimeout, cfg.MinTimeoutMs, cfg.MaxTimeoutMs)}
	}
	return nil
}

type costBudget struct{}

func (costBudget) Name() string            { return "cost_budget" }
func (costBudget) AppliesTo(a string) bool { return true }
func (r costBudget) Evaluate(cfg Config, ctx ActionContext) *Result {
	if ctx.TotalCost >= cfg.MaxCostPerIncident {
		return &Result{Verdict: Block, RuleName: "cost_budget_exceeded", Reason: fmt.Sprintf(
			"cumulative cost %.2f reached budget %.2f", ctx.TotalCost, cfg.MaxCostPerIncident)}
	}
	if ctx.TotalCost >= 0.8*cfg.MaxCostPerIncident {
		return &Result{Verdict: Warn, RuleName: "cost_budget_warning", Reason: fmt.Sprintf(
			"cumulative cost %.2f is within 80%% of budget %.2f", ctx.TotalCost, cfg.MaxCostPerIncident)}
	}
	return nil
}

type actionFrequency struct{}

func (actionFrequency) Name() string            { return "action_frequency" }
func (actionFrequency) AppliesTo(a string) bool { return true }
func (r actionFrequency) Evaluate(cfg Config, ctx ActionContext) *Result {
	if ctx.Action == "restart_service" && ctx.RestartCount >= cfg.MaxRestartsPerIncident {
		return &Result{Verdict: Block, RuleName: "max_restarts", Reason: fmt.Sprintf(
			"restart_service already invoked %d times (limit %d)", ctx.RestartCount, cfg.MaxRestartsPerIncident)}
	}
	if ctx.Action == "rollback_deployment" && ctx.RollbackCount >= cfg.MaxRollbacksPerIncident {
		return &Result{Verdict: Block, RuleName: "max_rollbacks", Reason: fmt.Sprintf(
			"rollback_deployment already invoked %d times (limit %d)", ctx.RollbackCount, cfg.MaxRollbacksPerIncident)}
	}
	if ctx.TotalActions >= cfg.MaxTotalActionsPerIncident {
		return &Result{Verdict: Block, RuleName: "max_total_actions", Reason: fmt.Sprintf(
			"%d actions already taken this incident (limit %d)", ctx.TotalActions, cfg.MaxTotalActionsPerIncident)}
	}
	return nil
}

type alreadyHealthy struct{}

func (alreadyHealthy) Name() string            { return "system_already_healthy" }
func (alreadyHealthy) AppliesTo(a string) bool { return true }
func (r alreadyHealthy) Evaluate(cfg Config, ctx ActionContext) *Result {
	if ctx.HealthScore >= cfg.HealthyThreshold {
		return &Result{Verdict: Warn, RuleName: r.Name(), Reason: fmt.Sprintf(
			"health_score=%.2f already at or above threshold %.2f", ctx.HealthScore, cfg.HealthyThreshold)}
	}
	return nil
}
