package toolcatalog_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evoo/evoo/pkg/evoo/domain"
	"github.com/evoo/evoo/pkg/evoo/toolcatalog"
)

func TestToolCatalog(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ToolCatalog Suite")
}

var _ = Describe("Registry", func() {
	It("registers all ten canonical tools exactly once", func() {
		r := toolcatalog.NewDefaultRegistry(nil)
		Expect(r.Count()).To(Equal(10))
		for _, name := range []string{
			"restart_service", "scale_horizontal", "scale_vertical", "change_timeout",
			"rollback_deployment", "clear_cache", "rebalance_load", "query_metrics",
			"analyze_logs", "predict_incident_type",
		} {
			Expect(r.IsRegistered(name)).To(BeTrue(), name)
		}
	})

	It("rejects a duplicate registration", func() {
		r := toolcatalog.NewRegistry()
		tool := toolcatalog.Tool{Name: "x", Invoke: func(ctx context.Context, p map[string]any) toolcatalog.Result {
			return toolcatalog.Result{Tool: "x", Status: toolcatalog.StatusSuccess}
		}}
		Expect(r.Register(tool)).To(Succeed())
		Expect(r.Register(tool)).To(HaveOccurred())
	})

	It("returns a skipped result for an unknown tool name", func() {
		r := toolcatalog.NewDefaultRegistry(nil)
		res := r.Invoke(context.Background(), "not_a_tool", nil)
		Expect(res.Status).To(Equal(toolcatalog.StatusSkipped))
	})

	It("invokes restart_service with defaulted parameters", func() {
		r := toolcatalog.NewDefaultRegistry(nil)
		res := r.Invoke(context.Background(), "restart_service", map[string]any{})
		Expect(res.Status).To(Equal(toolcatalog.StatusSuccess))
		Expect(res.Fields["service"]).To(Equal("api-service"))
	})

	It("reflects explicit scale_horizontal parameters in the result", func() {
		r := toolcatalog.NewDefaultRegistry(nil)
		res := r.Invoke(context.Background(), "scale_horizontal", map[string]any{"target_instances": 7})
		Expect(res.Fields["target_instances"]).To(Equal(7))
		Expect(res.Fields["scale_direction"]).To(Equal("up"))
	})
})

var _ = Describe("HeuristicPredict", func() {
	It("predicts service_crash for very low availability and high error rate", func() {
		t, confidence, _ := toolcatalog.HeuristicPredict(domain.SystemMetrics{Availability: 0.1, ErrorRate: 0.9})
		Expect(t).To(Equal(domain.ServiceCrash))
		Expect(confidence).To(BeNumerically(">", 0.8))
	})

	It("predicts memory_leak for high memory usage alone", func() {
		t, _, _ := toolcatalog.HeuristicPredict(domain.SystemMetrics{MemoryPercent: 90, Availability: 1.0})
		Expect(t).To(Equal(domain.MemoryLeak))
	})

	It("falls back to high_latency when no rule fires", func() {
		t, confidence, _ := toolcatalog.HeuristicPredict(domain.SystemMetrics{Availability: 1.0})
		Expect(t).To(Equal(domain.HighLatency))
		Expect(confidence).To(Equal(0.50))
	})

	It("picks the highest-confidence candidate when multiple rules fire", func() {
		t, _, _ := toolcatalog.HeuristicPredict(domain.SystemMetrics{
			Availability: 0.1, ErrorRate: 0.9, MemoryPercent: 90, CPUPercent: 90,
		})
		Expect(t).To(Equal(domain.ServiceCrash))
	})
})

type stubClassifier struct {
	incidentType domain.IncidentType
	ok           bool
}

func (s stubClassifier) ClassifyIncident(ctx context.Context, metrics domain.SystemMetrics) (domain.IncidentType, float64, string, bool) {
	return s.incidentType, 0.95, "stub reasoning", s.ok
}

var _ = Describe("predict_incident_type tool", func() {
	It("uses the classifier's verdict when it succeeds", func() {
		r := toolcatalog.NewDefaultRegistry(stubClassifier{incidentType: domain.CPUSpike, ok: true})
		res := r.Invoke(context.Background(), "predict_incident_type", map[string]any{})
		Expect(res.Fields["predicted_type"]).To(Equal(string(domain.CPUSpike)))
		Expect(res.Fields["llm_predicted"]).To(Equal(true))
	})

	It("falls back to the heuristic when the classifier declines", func() {
		r := toolcatalog.NewDefaultRegistry(stubClassifier{ok: false})
		res := r.Invoke(context.Background(), "predict_incident_type", map[string]any{"availability": 1.0})
		Expect(res.Fields["llm_predicted"]).To(Equal(false))
	})
})
