// Package planner implements the Planner (§4.6): given an incident and
// this run's prior memory, choose a Plan via ε-greedy (default) or
// UCB1, grounded on the original prototype's StrategyManager
// (project/strategy/strategy_manager.py) and generalized from its
// fine-grained strategy catalog onto the canonical ten-strategy set.
package planner

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/evoo/evoo/pkg/evoo/domain"
	"github.com/evoo/evoo/pkg/evoo/llm"
	"github.com/evoo/evoo/pkg/evoo/store"
)

// Plan is the Planner's output (§4.6).
type Plan struct {
	Strategy      domain.Strategy
	ToolSequence  []string
	ToolParams    map[string]map[string]any
	Reasoning     string
	IsExploratory bool
	LLMSelected   bool
}

// Policy selects between the two admissible selection algorithms (§4.6).
type Policy string

const (
	PolicyEpsilonGreedy Policy = "epsilon_greedy"
	PolicyUCB1          Policy = "ucb1"
)

// Input bundles everything the Planner needs to produce a Plan.
type Input struct {
	Incident     *domain.Incident
	RunIndex     int
	ForceExplore bool

	// RecentExperiences informs the LLM exploit-branch prompt; nil or
	// empty is valid (first run for this incident type).
	RecentExperiences []domain.Experience

	// History of recently played strategies for this incident type, most
	// recent last, used by UCB1's repeat-penalty and consecutive-failure
	// penalty.
	StrategyHistory []HistoryEntry
}

// HistoryEntry is one past (strategy, outcome) pair for UCB1's penalty
// terms.
type HistoryEntry struct {
	Strategy domain.Strategy
	Success  bool
}

// Planner owns the ε-greedy/UCB1 selection policy and an optional LLM
// client for the exploit branch.
type Planner struct {
	strategies *store.StrategyStore
	rng        *rand.Rand
	policy     Policy
	epsilon    float64
	ucbC       float64
	llmClient  *llm.Client
}

// Option configures a Planner.
type Option func(*Planner)

func WithPolicy(p Policy) Option           { return func(pl *Planner) { pl.policy = p } }
func WithEpsilon(eps float64) Option       { return func(pl *Planner) { pl.epsilon = eps } }
func WithUCBExploration(c float64) Option  { return func(pl *Planner) { pl.ucbC = c } }
func WithLLMClient(c *llm.Client) Option   { return func(pl *Planner) { pl.llmClient = c } }

// New builds a Planner backed by strategies, seeded from seed for
// reproducible exploration draws.
func New(strategies *store.StrategyStore, seed int64, opts ...Option) *Planner {
	pl := &Planner{
		strategies: strategies,
		rng:        rand.New(rand.NewSource(seed)),
		policy:     PolicyEpsilonGreedy,
		epsilon:    0.2,
		ucbC:       1.4,
	}
	for _, opt := range opts {
		opt(pl)
	}
	return pl
}

func buildPlanForStrategy(strategy domain.Strategy, isExploratory, llmSelected bool, reasoning string) Plan {
	sequence := DefaultToolSequence[strategy]
	params := DefaultToolParameters(strategy)
	return Plan{
		Strategy:      strategy,
		ToolSequence:  append([]string{}, sequence...),
		ToolParams:    params,
		Reasoning:     reasoning,
		IsExploratory: isExploratory,
		LLMSelected:   llmSelected,
	}
}

// Select produces a Plan for in, dispatching to the configured policy.
func (p *Planner) Select(ctx context.Context, in Input) Plan {
	switch p.policy {
	case PolicyUCB1:
		return p.selectUCB1(ctx, in)
	default:
		return p.selectEpsilonGreedy(ctx, in)
	}
}

// selectEpsilonGreedy implements §4.6's exact algorithm.
func (p *Planner) selectEpsilonGreedy(ctx context.Context, in Input) Plan {
	known := p.strategies.KnownStrategies(in.Incident.IncidentType)
	explore := in.ForceExplore || p.rng.Float64() < p.epsilon || len(known) == 0

	if explore {
		return p.explore(in.Incident.IncidentType, known)
	}
	return p.exploit(ctx, in, known)
}

func (p *Planner) explore(incidentType domain.IncidentType, known map[domain.Strategy]float64) Plan {
	if len(known) == 0 {
		priors := StrategyPriors[incidentType]
		if len(priors) == 0 {
			priors = domain.AllStrategies
		}
		chosen := priors[p.rng.Intn(len(priors))]
		return buildPlanForStrategy(chosen, true, false, "exploration: no prior knowledge, drawing from type priors")
	}

	var underTried []domain.Strategy
	for _, s := range domain.AllStrategies {
		if known[s] < 1.0 {
			underTried = append(underTried, s)
		}
	}
	pool := underTried
	if len(pool) == 0 {
		pool = domain.AllStrategies
	}
	chosen := pool[p.rng.Intn(len(pool))]
	return buildPlanForStrategy(chosen, true, false, "exploration: drawing from under-tried strategies")
}

func (p *Planner) exploit(ctx context.Context, in Input, known map[domain.Strategy]float64) Plan {
	if p.llmClient != nil {
		if plan, ok := p.exploitViaLLM(ctx, in, known); ok {
			return plan
		}
	}
	return p.exploitDeterministic(known)
}

// exploitDeterministic is the §4.6 fallback: argmax_s known[s].
func (p *Planner) exploitDeterministic(known map[domain.Strategy]float64) Plan {
	best := domain.RestartService
	bestReward := math.Inf(-1)
	for _, s := range domain.AllStrategies {
		reward, ok := known[s]
		if !ok {
			continue
		}
		if reward > bestReward {
			bestReward = reward
			best = s
		}
	}
	return buildPlanForStrategy(best, false, false, "exploitation: best known average reward (deterministic fallback)")
}

// exploitViaLLM asks the LLM to choose a strategy and validates its
// output per §4.6; returns ok=false on any failure or invalid output so
// the caller falls back to the deterministic path.
func (p *Planner) exploitViaLLM(ctx context.Context, in Input, known map[domain.Strategy]float64) (Plan, bool) {
	prompt := buildExploitPrompt(in, known)
	resp, err := p.llmClient.Complete(ctx, llm.Request{
		SystemPrompt: "You are an expert SRE selecting a remediation strategy. Respond with a single JSON object only.",
		UserPrompt:   prompt,
		Temperature:  0.3,
		MaxTokens:    800,
		JSONMode:     true,
	})
	if err != nil {
		return Plan{}, false
	}

	parsed := llm.ParseJSON(resp)
	strategyName, _ := parsed["strategy"].(string)
	strategy := domain.Strategy(strategyName)
	if !strategy.Valid() {
		return Plan{}, false
	}

	toolsRaw, _ := parsed["tools_to_call"].([]any)
	var tools []string
	for _, t := range toolsRaw {
		if name, ok := t.(string); ok && validToolName(name) {
			tools = append(tools, name)
		}
	}
	if len(tools) == 0 {
		return Plan{}, false
	}

	paramsRaw, _ := parsed["tool_parameters"].(map[string]any)
	toolParams := clampToolParameters(paramsRaw)

	reasoning, _ := parsed["reasoning"].(string)
	if reasoning == "" {
		reasoning = "exploitation: llm-selected strategy"
	}

	return Plan{
		Strategy:      strategy,
		ToolSequence:  tools,
		ToolParams:    toolParams,
		Reasoning:     reasoning,
		IsExploratory: false,
		LLMSelected:   true,
	}, true
}

var validTools = map[string]bool{
	"restart_service": true, "scale_horizontal": true, "scale_vertical": true,
	"change_timeout": true, "rollback_deployment": true, "clear_cache": true,
	"rebalance_load": true, "query_metrics": true, "analyze_logs": true,
	"predict_incident_type": true, "finish": true,
}

func validToolName(name string) bool { return validTools[name] }

// clampToolParameters enforces §4.6's numeric safe ranges.
func clampToolParameters(raw map[string]any) map[string]map[string]any {
	out := map[string]map[string]any{}
	for tool, v := range raw {
		params, ok := v.(map[string]any)
		if !ok {
			continue
		}
		clamped := map[string]any{}
		for k, val := range params {
			switch k {
			case "target_instances":
				clamped[k] = clampInt(val, 1, 10)
			case "target_cpu":
				clamped[k] = clampFloat(val, 0.5, 16)
			case "target_memory_gb":
				clamped[k] = clampFloat(val, 0.5, 64)
			case "new_timeout_ms":
				clamped[k] = clampInt(val, 1000, 300000)
			default:
				clamped[k] = val
			}
		}
		out[tool] = clamped
	}
	return out
}

func clampInt(v any, lo, hi int) int {
	n := 0
	switch x := v.(type) {
	case int:
		n = x
	case float64:
		n = int(x)
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func clampFloat(v any, lo, hi float64) float64 {
	f := 0.0
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	}
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func buildExploitPrompt(in Input, known map[domain.Strategy]float64) string {
	s := fmt.Sprintf("Incident type: %s\nSeverity: %s\nKnown strategy average rewards:\n", in.Incident.IncidentType, in.Incident.Severity)
	for _, strat := range domain.AllStrategies {
		if reward, ok := known[strat]; ok {
			s += fmt.Sprintf("- %s: %.2f\n", strat, reward)
		}
	}
	if len(in.RecentExperiences) > 0 {
		s += "\nRecent experiences for this incident type:\n"
		for _, e := range in.RecentExperiences {
			s += fmt.Sprintf("- %s: reward=%.2f restored=%t recovery=%.1fs\n", e.StrategyUsed, e.Reward, e.ServiceRestored, e.RecoveryTimeSeconds)
		}
	}
	s += "\nChoose the best strategy. Respond with JSON: {\"strategy\": \"...\", \"tools_to_call\": [...], \"tool_parameters\": {...}, \"reasoning\": \"...\"}"
	return s
}

// selectUCB1 implements the admissible alternative policy (§4.6):
// score each strategy average_reward + c*sqrt(ln(N)/n_i), untried
// strategies score +Inf, ties broken by estimated recovery time
// ascending, with a penalty for repeating the previous strategy and an
// additional penalty for consecutive prior failures of the same pair.
func (p *Planner) selectUCB1(ctx context.Context, in Input) Plan {
	incidentType := in.Incident.IncidentType
	rankings := p.strategies.Rankings(ctx, incidentType)
	recordByStrategy := map[domain.Strategy]domain.StrategyRecord{}
	totalPlays := 0
	for _, r := range rankings {
		recordByStrategy[r.Strategy] = r
		totalPlays += r.TotalUses
	}

	var previous domain.Strategy
	consecutiveFailures := 0
	if n := len(in.StrategyHistory); n > 0 {
		previous = in.StrategyHistory[n-1].Strategy
		for i := n - 1; i >= 0; i-- {
			if in.StrategyHistory[i].Strategy != previous {
				break
			}
			if in.StrategyHistory[i].Success {
				break
			}
			consecutiveFailures++
		}
	}

	type scored struct {
		strategy domain.Strategy
		score    float64
		recovery float64
	}
	var candidates []scored
	for _, s := range domain.AllStrategies {
		rec, tried := recordByStrategy[s]
		var score, recovery float64
		if !tried || rec.TotalUses == 0 {
			score = math.Inf(1)
			recovery = 0
		} else {
			score = rec.AverageReward() + p.ucbC*math.Sqrt(math.Log(float64(max(totalPlays, 1)))/float64(rec.TotalUses))
			recovery = rec.AverageRecoveryTime()
		}
		if s == previous {
			score -= 20
		}
		if s == previous && consecutiveFailures > 0 {
			score -= 5 * float64(consecutiveFailures)
		}
		candidates = append(candidates, scored{s, score, recovery})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].recovery < candidates[j].recovery
	})

	best := candidates[0].strategy
	_, tried := recordByStrategy[best]
	return buildPlanForStrategy(best, !tried, false, "ucb1: highest confidence-bound score")
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
