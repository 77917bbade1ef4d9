package guardrail_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evoo/evoo/pkg/evoo/guardrail"
)

func TestGuardrail(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Guardrail Suite")
}

func baseConfig() guardrail.Config {
	cfg := guardrail.DefaultConfig()
	cfg.Enabled = true
	return cfg
}

var _ = Describe("Engine", func() {
	It("allows a harmless action when no rule applies", func() {
		e := guardrail.NewEngine(baseConfig())
		res := e.Check(guardrail.ActionContext{Action: "clear_cache", ActiveInstances: 3, HealthScore: 0.3})
		Expect(res.Verdict).To(Equal(guardrail.Allow))
	})

	It("blocks restart_service when it would drop below the instance floor", func() {
		cfg := baseConfig()
		e := guardrail.NewEngine(cfg)
		res := e.Check(guardrail.ActionContext{Action: "restart_service", ActiveInstances: 1, HealthScore: 0.3})
		Expect(res.Verdict).To(Equal(guardrail.Block))
		Expect(res.RuleName).To(Equal("min_instances_for_restart"))
	})

	It("blocks rollback_deployment below the instance floor", func() {
		e := guardrail.NewEngine(baseConfig())
		res := e.Check(guardrail.ActionContext{Action: "rollback_deployment", ActiveInstances: 0, HealthScore: 0.3})
		Expect(res.Verdict).To(Equal(guardrail.Block))
		Expect(res.RuleName).To(Equal("min_instances_for_rollback"))
	})

	It("blocks scale_horizontal outside the configured instance range", func() {
		e := guardrail.NewEngine(baseConfig())
		res := e.Check(guardrail.ActionContext{
			Action:          "scale_horizontal",
			ActiveInstances: 3,
			HealthScore:     0.3,
			Parameters:      map[string]any{"target_instances": 99},
		})
		Expect(res.Verdict).To(Equal(guardrail.Block))
		Expect(res.RuleName).To(Equal("max_min_horizontal_instances"))
	})

	It("warns (not blocks) on an aggressive but in-range scale-up", func() {
		e := guardrail.NewEngine(baseConfig())
		res := e.Check(guardrail.ActionContext{
			Action:          "scale_horizontal",
			ActiveInstances: 2,
			HealthScore:     0.3,
			Parameters:      map[string]any{"target_instances": 10},
		})
		Expect(res.Verdict).To(Equal(guardrail.Warn))
		Expect(res.RuleName).To(Equal("aggressive_horizontal_scaling"))
	})

	It("blocks scale_vertical beyond the CPU ceiling", func() {
		e := guardrail.NewEngine(baseConfig())
		res := e.Check(guardrail.ActionContext{
			Action:      "scale_vertical",
			HealthScore: 0.3,
			Parameters:  map[string]any{"target_cpu": 16.0, "target_memory_gb": 4.0},
		})
		Expect(res.Verdict).To(Equal(guardrail.Block))
		Expect(res.RuleName).To(Equal("max_vertical_cpu"))
	})

	It("blocks change_timeout outside bounds", func() {
		e := guardrail.NewEngine(baseConfig())
		res := e.Check(guardrail.ActionContext{
			Action:      "change_timeout",
			HealthScore: 0.3,
			Parameters:  map[string]any{"new_timeout_ms": 100},
		})
		Expect(res.Verdict).To(Equal(guardrail.Block))
		Expect(res.RuleName).To(Equal("timeout_bounds"))
	})

	It("blocks once cumulative cost has reached the per-incident budget", func() {
		e := guardrail.NewEngine(baseConfig())
		res := e.Check(guardrail.ActionContext{Action: "restart_service", ActiveInstances: 5, HealthScore: 0.3, TotalCost: 50})
		Expect(res.Verdict).To(Equal(guardrail.Block))
		Expect(res.RuleName).To(Equal("cost_budget_exceeded"))
	})

	It("warns once cumulative cost crosses 80% of budget, block wins over that warn elsewhere", func() {
		e := guardrail.NewEngine(baseConfig())
		res := e.Check(guardrail.ActionContext{Action: "clear_cache", ActiveInstances: 5, HealthScore: 0.3, TotalCost: 45})
		Expect(res.Verdict).To(Equal(guardrail.Warn))
		Expect(res.RuleName).To(Equal("cost_budget_warning"))
	})

	It("blocks once the per-incident restart count is exhausted", func() {
		cfg := baseConfig()
		e := guardrail.NewEngine(cfg)
		res := e.Check(guardrail.ActionContext{
			Action: "restart_service", ActiveInstances: 5, HealthScore: 0.3,
			RestartCount: cfg.MaxRestartsPerIncident,
		})
		Expect(res.Verdict).To(Equal(guardrail.Block))
		Expect(res.RuleName).To(Equal("max_restarts"))
	})

	It("blocks once the total action count per incident is exhausted", func() {
		cfg := baseConfig()
		e := guardrail.NewEngine(cfg)
		res := e.Check(guardrail.ActionContext{
			Action: "clear_cache", ActiveInstances: 5, HealthScore: 0.3,
			TotalActions: cfg.MaxTotalActionsPerIncident,
		})
		Expect(res.Verdict).To(Equal(guardrail.Block))
		Expect(res.RuleName).To(Equal("max_total_actions"))
	})

	It("warns when the system is already healthy, rather than blocking", func() {
		cfg := baseConfig()
		e := guardrail.NewEngine(cfg)
		res := e.Check(guardrail.ActionContext{Action: "clear_cache", ActiveInstances: 5, HealthScore: cfg.HealthyThreshold})
		Expect(res.Verdict).To(Equal(guardrail.Warn))
		Expect(res.RuleName).To(Equal("system_already_healthy"))
	})

	It("prefers block over warn when both would otherwise apply", func() {
		cfg := baseConfig()
		e := guardrail.NewEngine(cfg)
		res := e.Check(guardrail.ActionContext{
			Action:          "restart_service",
			ActiveInstances: 1, // triggers block
			HealthScore:     cfg.HealthyThreshold, // would also trigger warn
		})
		Expect(res.Verdict).To(Equal(guardrail.Block))
	})

	It("allows everything when guardrails are disabled", func() {
		cfg := baseConfig()
		cfg.Enabled = false
		e := guardrail.NewEngine(cfg)
		res := e.Check(guardrail.ActionContext{Action: "restart_service", ActiveInstances: 0})
		Expect(res.Verdict).To(Equal(guardrail.Allow))
		Expect(res.RuleName).To(Equal("guardrails_disabled"))
	})
})
