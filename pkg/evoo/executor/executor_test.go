package executor_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evoo/evoo/pkg/evoo/domain"
	"github.com/evoo/evoo/pkg/evoo/executor"
	"github.com/evoo/evoo/pkg/evoo/guardrail"
	"github.com/evoo/evoo/pkg/evoo/planner"
	"github.com/evoo/evoo/pkg/evoo/simulator"
	"github.com/evoo/evoo/pkg/evoo/toolcatalog"
)

func TestExecutor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Executor Suite")
}

var _ = Describe("Executor", func() {
	var (
		tools *toolcatalog.Registry
		guard *guardrail.Engine
		sim   *simulator.Simulator
		exec  *executor.Executor
	)

	BeforeEach(func() {
		tools = toolcatalog.NewDefaultRegistry(nil)
		guard = guardrail.NewEngine(guardrail.DefaultConfig())
		sim = simulator.New(1)
		sim.GenerateIncident(0)
		exec = executor.New(tools, guard, sim, nil)
	})

	It("without an LLM client, follows the plan's tool sequence via fallback then finishes", func() {
		incident := sim.CurrentIncident()
		plan := planner.Plan{
			Strategy:     domain.RestartService,
			ToolSequence: []string{"restart_service"},
			ToolParams:   map[string]map[string]any{"restart_service": {}},
		}

		outcome := exec.Run(context.Background(), incident, plan, simulator.StrategyParams{})

		Expect(outcome.Trace).To(HaveLen(1))
		Expect(outcome.Trace[0].Tool).To(Equal("restart_service"))
		Expect(outcome.FinishedNaturally).To(BeTrue())
		Expect(outcome.IterationsUsed).To(BeNumerically("<=", executor.MaxIterations))
	})

	It("executes every tool in a multi-tool plan exactly once before finishing", func() {
		incident := sim.CurrentIncident()
		plan := planner.Plan{
			Strategy:     domain.ScaleHorizontal,
			ToolSequence: []string{"scale_horizontal", "rebalance_load"},
			ToolParams:   map[string]map[string]any{"scale_horizontal": {"target_instances": 4}},
		}

		outcome := exec.Run(context.Background(), incident, plan, simulator.StrategyParams{TargetInstances: 4})

		var toolsCalled []string
		for _, t := range outcome.Trace {
			toolsCalled = append(toolsCalled, t.Tool)
		}
		Expect(toolsCalled).To(Equal([]string{"scale_horizontal", "rebalance_load"}))
		Expect(outcome.FinishedNaturally).To(BeTrue())
	})

	It("never exceeds the iteration cap even with an empty plan", func() {
		incident := sim.CurrentIncident()
		plan := planner.Plan{Strategy: domain.RestartService, ToolSequence: nil}

		outcome := exec.Run(context.Background(), incident, plan, simulator.StrategyParams{})

		Expect(outcome.IterationsUsed).To(BeNumerically("<=", executor.MaxIterations))
		Expect(outcome.Trace).To(BeEmpty())
		Expect(outcome.FinishedNaturally).To(BeTrue())
	})

	It("applies the full-strategy effect to the simulator regardless of the tool trace", func() {
		incident := sim.CurrentIncident()
		before := sim.CurrentMetrics()
		plan := planner.Plan{
			Strategy:     domain.RestartService,
			ToolSequence: []string{"restart_service"},
			ToolParams:   map[string]map[string]any{},
		}

		outcome := exec.Run(context.Background(), incident, plan, simulator.StrategyParams{})

		Expect(outcome.MetricsAfter).ToNot(Equal(before))
	})

	It("honors a lowered iteration cap", func() {
		incident := sim.CurrentIncident()
		plan := planner.Plan{
			Strategy:     domain.RestartService,
			ToolSequence: []string{"restart_service", "query_metrics", "analyze_logs"},
			ToolParams:   map[string]map[string]any{},
		}
		limited := executor.New(tools, guard, sim, nil).WithMaxIterations(2)

		outcome := limited.Run(context.Background(), incident, plan, simulator.StrategyParams{})

		Expect(outcome.IterationsUsed).To(Equal(2))
		Expect(outcome.Trace).To(HaveLen(2))
	})

	It("marks a blocked action skipped by the guardrail rather than invoking the tool", func() {
		incident := sim.CurrentIncident()
		cfg := guardrail.DefaultConfig()
		cfg.MinInstancesForRestart = 100
		blockingGuard := guardrail.NewEngine(cfg)
		blockingExec := executor.New(tools, blockingGuard, sim, nil)

		plan := planner.Plan{
			Strategy:     domain.RestartService,
			ToolSequence: []string{"restart_service"},
			ToolParams:   map[string]map[string]any{},
		}

		outcome := blockingExec.Run(context.Background(), incident, plan, simulator.StrategyParams{})

		Expect(outcome.Trace).To(HaveLen(1))
		Expect(outcome.Trace[0].Result.Status).To(Equal(toolcatalog.StatusSkipped))
	})
})
