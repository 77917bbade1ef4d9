package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evoo/evoo/pkg/evoo/domain"
	"github.com/evoo/evoo/pkg/evoo/store"
)

func TestStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Store Suite")
}

func experience(reward float64, restored bool) domain.Experience {
	return domain.Experience{
		ID:                  "EXP-1",
		Timestamp:           time.Now(),
		IncidentType:        domain.ServiceCrash,
		StrategyUsed:        domain.RestartService,
		Reward:              reward,
		RecoveryTimeSeconds: 20,
		ServiceRestored:     restored,
	}
}

var _ = Describe("ExperienceStore", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "evoo-store-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("returns the zero summary when empty", func() {
		s, err := store.OpenExperienceStore(filepath.Join(dir, "exp.json"))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Summary(10, 3)).To(Equal(store.ZeroSummary()))
	})

	It("observes a stored experience immediately in queries and summary", func() {
		s, err := store.OpenExperienceStore(filepath.Join(dir, "exp.json"))
		Expect(err).NotTo(HaveOccurred())

		exp := experience(80, true)
		Expect(s.Store(exp)).To(Succeed())

		got := s.QueryByIncident(domain.ServiceCrash, 10)
		Expect(got).To(HaveLen(1))
		Expect(got[0].ID).To(Equal(exp.ID))

		summary := s.Summary(10, 3)
		Expect(summary.TotalExperiences).To(Equal(1))
		Expect(summary.MeanReward).To(Equal(80.0))
	})

	It("round-trips through a file: writing then reading yields equal logical state", func() {
		path := filepath.Join(dir, "exp.json")
		s, err := store.OpenExperienceStore(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Store(experience(50, true))).To(Succeed())
		Expect(s.Store(experience(-10, false))).To(Succeed())

		reopened, err := store.OpenExperienceStore(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(reopened.All()).To(HaveLen(2))
		Expect(reopened.Summary(10, 3).TotalExperiences).To(Equal(2))
	})

	It("returns most-recent-first ordering", func() {
		s, err := store.OpenExperienceStore(filepath.Join(dir, "exp.json"))
		Expect(err).NotTo(HaveOccurred())

		first := experience(1, true)
		first.ID = "EXP-first"
		second := experience(2, true)
		second.ID = "EXP-second"

		Expect(s.Store(first)).To(Succeed())
		Expect(s.Store(second)).To(Succeed())

		got := s.QueryByIncident(domain.ServiceCrash, 10)
		Expect(got[0].ID).To(Equal("EXP-second"))
		Expect(got[1].ID).To(Equal("EXP-first"))
	})

	It("computes stddev correctly across mixed rewards", func() {
		s, err := store.OpenExperienceStore(filepath.Join(dir, "exp.json"))
		Expect(err).NotTo(HaveOccurred())
		for _, r := range []float64{10, 20, 30} {
			Expect(s.Store(experience(r, true))).To(Succeed())
		}
		summary := s.Summary(10, 3)
		Expect(summary.MeanReward).To(BeNumerically("~", 20, 1e-9))
		Expect(summary.StdDevReward).To(BeNumerically("~", 8.16496580927726, 1e-6))
	})
})

var _ = Describe("StrategyStore", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "evoo-strategy-store-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("preserves total_uses = success_count + failure_count across updates", func() {
		s, err := store.OpenStrategyStore(filepath.Join(dir, "strat.json"))
		Expect(err).NotTo(HaveOccurred())
		ctx := context.Background()

		Expect(s.Update(ctx, domain.ServiceCrash, domain.RestartService, 80, 30, true)).To(Succeed())
		Expect(s.Update(ctx, domain.ServiceCrash, domain.RestartService, -10, 45, false)).To(Succeed())

		rec := s.Get(domain.ServiceCrash, domain.RestartService)
		Expect(rec).NotTo(BeNil())
		Expect(rec.TotalUses).To(Equal(rec.SuccessCount + rec.FailureCount))
		Expect(rec.AverageReward()).To(BeNumerically("~", 35.0, 1e-9))
	})

	It("round-trips through a file keyed by incident_type::strategy", func() {
		path := filepath.Join(dir, "strat.json")
		s, err := store.OpenStrategyStore(path)
		Expect(err).NotTo(HaveOccurred())
		ctx := context.Background()
		Expect(s.Update(ctx, domain.HighLatency, domain.ScaleHorizontal, 60, 20, true)).To(Succeed())

		raw, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(raw)).To(ContainSubstring("high_latency::scale_horizontal"))

		reopened, err := store.OpenStrategyStore(path)
		Expect(err).NotTo(HaveOccurred())
		rec := reopened.Get(domain.HighLatency, domain.ScaleHorizontal)
		Expect(rec).NotTo(BeNil())
		Expect(rec.TotalUses).To(Equal(1))
	})

	It("excludes never-used strategies from known_strategies", func() {
		s, err := store.OpenStrategyStore(filepath.Join(dir, "strat.json"))
		Expect(err).NotTo(HaveOccurred())
		ctx := context.Background()
		Expect(s.Update(ctx, domain.ServiceCrash, domain.RestartService, 80, 30, true)).To(Succeed())

		known := s.KnownStrategies(domain.ServiceCrash)
		Expect(known).To(HaveKey(domain.RestartService))
		Expect(known).NotTo(HaveKey(domain.RollbackDeployment))
	})

	It("sorts rankings by average_reward desc, then success_rate desc", func() {
		s, err := store.OpenStrategyStore(filepath.Join(dir, "strat.json"))
		Expect(err).NotTo(HaveOccurred())
		ctx := context.Background()
		Expect(s.Update(ctx, domain.ServiceCrash, domain.RestartService, 50, 30, true)).To(Succeed())
		Expect(s.Update(ctx, domain.ServiceCrash, domain.RollbackDeployment, 90, 60, true)).To(Succeed())

		rankings := s.Rankings(ctx, domain.ServiceCrash)
		Expect(rankings).To(HaveLen(2))
		Expect(rankings[0].Strategy).To(Equal(domain.RollbackDeployment))
	})
})
