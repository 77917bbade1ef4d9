package evaluator_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evoo/evoo/pkg/evoo/domain"
	"github.com/evoo/evoo/pkg/evoo/evaluator"
)

func TestEvaluator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Evaluator Suite")
}

var _ = Describe("ComputeReward", func() {
	It("reconciles the breakdown to the scalar reward exactly", func() {
		o := evaluator.Outcome{
			MetricsBefore:       domain.SystemMetrics{LatencyMs: 1000, CPUPercent: 80, Availability: 0.5},
			MetricsAfter:        domain.SystemMetrics{LatencyMs: 200, CPUPercent: 30, Availability: 0.99, ErrorRate: 0.01},
			RecoveryTimeSeconds: 20,
			InfrastructureCost:  1.5,
			ServiceRestored:     true,
			Strategy:            domain.RestartService,
			IncidentType:        domain.ServiceCrash,
		}
		reward := evaluator.ComputeReward(o)

		sum := 0.0
		for _, v := range reward.Breakdown {
			sum += v
		}
		Expect(reward.Value).To(BeNumerically("~", sum, 1e-9))
	})

	It("awards +100 for restoration and -50 otherwise", func() {
		restored := evaluator.ComputeReward(evaluator.Outcome{ServiceRestored: true})
		notRestored := evaluator.ComputeReward(evaluator.Outcome{ServiceRestored: false})
		Expect(restored.Breakdown["restoration"]).To(Equal(100.0))
		Expect(notRestored.Breakdown["restoration"]).To(Equal(-50.0))
	})

	It("caps the latency improvement bonus contribution at 500ms of improvement", func() {
		o := evaluator.Outcome{
			MetricsBefore: domain.SystemMetrics{LatencyMs: 5000},
			MetricsAfter:  domain.SystemMetrics{LatencyMs: 100},
		}
		reward := evaluator.ComputeReward(o)
		Expect(reward.Breakdown["latency_improvement_bonus"]).To(BeNumerically("~", 0.02*500, 1e-9))
	})

	It("never rewards a latency regression", func() {
		o := evaluator.Outcome{
			MetricsBefore: domain.SystemMetrics{LatencyMs: 100},
			MetricsAfter:  domain.SystemMetrics{LatencyMs: 500},
		}
		reward := evaluator.ComputeReward(o)
		Expect(reward.Breakdown["latency_improvement_bonus"]).To(Equal(0.0))
	})

	It("applies the aggressive-strategy penalty only for the documented strategy/incident pairs", func() {
		penalized := evaluator.ComputeReward(evaluator.Outcome{
			Strategy: domain.ScaleHorizontal, IncidentType: domain.MemoryLeak,
		})
		Expect(penalized.Breakdown["aggressive_strategy_penalty"]).To(Equal(-10.0))

		notPenalized := evaluator.ComputeReward(evaluator.Outcome{
			Strategy: domain.ScaleHorizontal, IncidentType: domain.ServiceCrash,
		})
		Expect(notPenalized.Breakdown["aggressive_strategy_penalty"]).To(Equal(0.0))
	})
})

var _ = Describe("HeuristicVerdict", func() {
	It("maps availability thresholds to the documented verdicts", func() {
		Expect(evaluator.HeuristicVerdict(0.999)).To(Equal(domain.VerdictExcellent))
		Expect(evaluator.HeuristicVerdict(0.96)).To(Equal(domain.VerdictGood))
		Expect(evaluator.HeuristicVerdict(0.85)).To(Equal(domain.VerdictAdequate))
		Expect(evaluator.HeuristicVerdict(0.6)).To(Equal(domain.VerdictPoor))
		Expect(evaluator.HeuristicVerdict(0.1)).To(Equal(domain.VerdictFailed))
	})
})

var _ = Describe("Judge", func() {
	It("falls back to the heuristic verdict when no LLM client is configured", func() {
		j := evaluator.NewJudge(nil)
		verdict := j.Evaluate(context.Background(), evaluator.Outcome{
			MetricsAfter: domain.SystemMetrics{Availability: 0.999},
		}, evaluator.Reward{})
		Expect(verdict.LLMVerdict).To(Equal(domain.VerdictExcellent))
	})
})
