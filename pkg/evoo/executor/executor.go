// Package executor implements the Observe-Think-Act remediation loop
// (§4.7), grounded on the original prototype's agentic SRE loop
// (activities/sre_agent_loop.py): an LLM drives tool selection each
// iteration, with a deterministic fallback to the Plan's tool sequence
// when the LLM fails or proposes an unknown tool.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/evoo/evoo/pkg/evoo/domain"
	"github.com/evoo/evoo/pkg/evoo/guardrail"
	"github.com/evoo/evoo/pkg/evoo/llm"
	"github.com/evoo/evoo/pkg/evoo/metrics"
	"github.com/evoo/evoo/pkg/evoo/planner"
	"github.com/evoo/evoo/pkg/evoo/simulator"
	"github.com/evoo/evoo/pkg/evoo/toolcatalog"
)

// MaxIterations is Imax, the OTA loop iteration cap (§6 default 8).
const MaxIterations = 8

// Trace is one Observe-Think-Act iteration's narrative record.
type Trace struct {
	Iteration int
	Thought   string
	Tool      string
	Params    map[string]any
	Result    toolcatalog.Result
}

// Outcome is everything the executor produces for one run (§4.7): the
// tool trace plus the full-strategy environmental effect applied once
// after the loop, independent of which tools actually fired.
type Outcome struct {
	Trace               []Trace
	IterationsUsed       int
	FinishedNaturally    bool
	MetricsAfter         domain.SystemMetrics
	RecoveryTimeSeconds  float64
	InfrastructureCost   float64
	ServiceRestored      bool
}

// Executor runs the OTA loop against a Simulator, toolcatalog.Registry,
// and Guardrail Engine.
type Executor struct {
	tools       *toolcatalog.Registry
	guardrails  *guardrail.Engine
	sim         *simulator.Simulator
	llmClient   *llm.Client
	maxIterations int
}

// New builds an Executor. llmClient may be nil, in which case every
// iteration uses the deterministic fallback immediately.
func New(tools *toolcatalog.Registry, guardrails *guardrail.Engine, sim *simulator.Simulator, llmClient *llm.Client) *Executor {
	return &Executor{tools: tools, guardrails: guardrails, sim: sim, llmClient: llmClient, maxIterations: MaxIterations}
}

// WithMaxIterations overrides the default cap.
func (e *Executor) WithMaxIterations(n int) *Executor {
	e.maxIterations = n
	return e
}

// Run executes the loop for plan against incident, then applies the
// full-strategy effect once (§4.7).
func (e *Executor) Run(ctx context.Context, incident *domain.Incident, plan planner.Plan, strategyParams simulator.StrategyParams) Outcome {
	var trace []Trace
	executed := map[string]bool{}
	finished := false
	iteration := 0

	for iteration < e.maxIterations {
		iteration++

		thought, tool, params := e.think(ctx, incident, plan, trace)

		if tool == "none" || !validTool(tool) {
			thought, tool, params = e.fallback(plan, executed)
		}

		if tool == "finish" {
			finished = true
			break
		}

		guardCtx := guardrail.ActionContext{
			Action:          tool,
			Parameters:      params,
			ActiveInstances: e.sim.CurrentMetrics().ActiveInstances,
			HealthScore:     e.sim.CurrentMetrics().HealthScore(),
			TotalCost:       cumulativeCost(trace),
			RestartCount:    countTool(trace, "restart_service"),
			RollbackCount:   countTool(trace, "rollback_deployment"),
			TotalActions:    len(trace),
		}
		verdict := e.guardrails.Check(guardCtx)
		metrics.RecordGuardrailVerdict(verdict.RuleName, string(verdict.Verdict))

		var result toolcatalog.Result
		if verdict.Verdict == guardrail.Block {
			result = toolcatalog.Result{
				Tool: tool, Status: toolcatalog.StatusSkipped, ExecutedAt: time.Now(),
				Error: fmt.Sprintf("blocked by guardrail %s: %s", verdict.RuleName, verdict.Reason),
			}
		} else {
			result = e.tools.Invoke(ctx, tool, params)
		}
		metrics.RecordToolInvocation(tool, string(result.Status))

		executed[tool] = true
		trace = append(trace, Trace{Iteration: iteration, Thought: thought, Tool: tool, Params: params, Result: result})
	}

	effect := e.sim.ApplyStrategyEffect(plan.Strategy, strategyParams)

	return Outcome{
		Trace:               trace,
		IterationsUsed:      iteration,
		FinishedNaturally:   finished,
		MetricsAfter:        effect.MetricsAfter,
		RecoveryTimeSeconds: effect.RecoveryTimeSeconds,
		InfrastructureCost:  effect.InfrastructureCost,
		ServiceRestored:     effect.ServiceRestored,
	}
}

var validToolNames = map[string]bool{
	"restart_service": true, "scale_horizontal": true, "scale_vertical": true,
	"change_timeout": true, "rollback_deployment": true, "clear_cache": true,
	"rebalance_load": true, "query_metrics": true, "analyze_logs": true,
	"predict_incident_type": true, "finish": true,
}

func validTool(name string) bool { return validToolNames[name] }

// toolCost estimates one tool invocation's infrastructure cost by
// reusing domain.InfrastructureCost's per-strategy table keyed on the
// remediation tools' names, which match the strategy identifiers
// (restart_service, scale_horizontal, ...) exactly. Read-only/analysis
// tools (query_metrics, analyze_logs, predict_incident_type) carry no
// infrastructure cost.
func toolCost(tool string) float64 {
	return domain.InfrastructureCost[domain.Strategy(tool)]
}

// cumulativeCost sums the cost of every tool actually invoked so far
// this run (§4.4 cost_budget); guardrail-blocked/skipped calls never
// ran, so they contribute nothing.
func cumulativeCost(trace []Trace) float64 {
	var total float64
	for _, t := range trace {
		if t.Result.Status != toolcatalog.StatusSkipped {
			total += toolCost(t.Tool)
		}
	}
	return total
}

// countTool counts how many times tool was actually invoked so far this
// run (§4.4 action_frequency's restart/rollback counters).
func countTool(trace []Trace, tool string) int {
	n := 0
	for _, t := range trace {
		if t.Tool == tool && t.Result.Status != toolcatalog.StatusSkipped {
			n++
		}
	}
	return n
}

// think is the Observe+Think steps: build a context summary and ask
// the LLM for one THOUGHT/ACTION pair. Returns tool "none" on any LLM
// failure so the caller falls through to the deterministic fallback.
func (e *Executor) think(ctx context.Context, incident *domain.Incident, plan planner.Plan, trace []Trace) (string, string, map[string]any) {
	if e.llmClient == nil {
		return "", "none", nil
	}

	prompt := buildObservationPrompt(incident, plan, trace)
	resp, err := e.llmClient.Complete(ctx, llm.Request{
		SystemPrompt: "You are an expert SRE executing remediation. Respond with THOUGHT: then ACTION: on separate lines.",
		UserPrompt:   prompt,
		Temperature:  0.2,
		MaxTokens:    500,
	})
	if err != nil {
		return "", "none", nil
	}

	thought := extractThought(resp)
	tool, params := llm.ParseAction(resp)
	return thought, tool, params
}

// fallback implements §4.7 step 3: the next tool from the Plan's
// sequence that has not yet run this iteration loop; finish once the
// sequence is exhausted.
func (e *Executor) fallback(plan planner.Plan, executed map[string]bool) (string, string, map[string]any) {
	for _, tool := range plan.ToolSequence {
		if !executed[tool] {
			params := plan.ToolParams[tool]
			if params == nil {
				params = map[string]any{}
			}
			return "LLM failed or proposed an invalid tool; following the planned sequence", tool, params
		}
	}
	return "all planned tools executed", "finish", nil
}

func extractThought(resp string) string {
	idx := strings.Index(resp, "THOUGHT:")
	if idx < 0 {
		if len(resp) > 200 {
			return resp[:200]
		}
		return resp
	}
	rest := resp[idx+len("THOUGHT:"):]
	if actionIdx := strings.Index(rest, "ACTION:"); actionIdx >= 0 {
		rest = rest[:actionIdx]
	}
	return strings.TrimSpace(rest)
}

func buildObservationPrompt(incident *domain.Incident, plan planner.Plan, trace []Trace) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INCIDENT: %s (severity: %s)\n", incident.IncidentType, incident.Severity)
	fmt.Fprintf(&b, "Description: %s\n", incident.Description)
	fmt.Fprintf(&b, "Plan strategy: %s, suggested tools: %s\n", plan.Strategy, strings.Join(plan.ToolSequence, ", "))

	if len(trace) == 0 {
		b.WriteString("\nNo actions taken yet.\n")
	} else {
		fmt.Fprintf(&b, "\nACTIONS TAKEN (%d):\n", len(trace))
		for _, t := range trace {
			fmt.Fprintf(&b, "  [%d] %s -> %s\n", t.Iteration, t.Tool, t.Result.Status)
		}
		last := trace[len(trace)-1].Result
		fmt.Fprintf(&b, "\nLAST TOOL RESULT: %s status=%s\n", last.Tool, last.Status)
	}

	fmt.Fprintf(&b, "\nWhat tool should be called next? Respond THOUGHT: then ACTION:, or ACTION: finish() if remediation is complete.\n")
	return b.String()
}
