package config_test

import (
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/evoo/evoo/internal/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Default", func() {
	It("matches the §6 documented defaults", func() {
		cfg := config.Default()
		Expect(cfg.MaxLearningRuns).To(Equal(50))
		Expect(cfg.ExplorationRate).To(Equal(0.2))
		Expect(cfg.MemoryFilePath).To(Equal("/tmp/evoo_memory.json"))
		Expect(cfg.StrategyFilePath).To(Equal("/tmp/evoo_strategies.json"))
		Expect(cfg.MaxAgentLoopIterations).To(Equal(8))
		Expect(cfg.GuardrailsEnabled).To(BeTrue())
		Expect(cfg.LLM.TemperaturePlanning).To(Equal(0.3))
		Expect(cfg.LLM.TemperatureExecution).To(Equal(0.2))
		Expect(cfg.LLM.MaxTokensPlanning).To(Equal(800))
		Expect(cfg.LLM.MaxTokensExecution).To(Equal(500))
	})
})

var _ = Describe("LoadFromEnv", func() {
	AfterEach(func() {
		for _, k := range []string{"MAX_LEARNING_RUNS", "EXPLORATION_RATE", "OPENAI_API_KEY", "EVOO_GUARDRAILS_ENABLED"} {
			os.Unsetenv(k)
		}
	})

	It("overrides defaults with set environment variables", func() {
		cfg := config.Default()
		cfg.LLM.OpenAIAPIKey = "preset"
		Expect(os.Setenv("MAX_LEARNING_RUNS", "10")).To(Succeed())
		Expect(os.Setenv("EXPLORATION_RATE", "0.5")).To(Succeed())
		Expect(os.Setenv("EVOO_GUARDRAILS_ENABLED", "false")).To(Succeed())

		cfg.LoadFromEnv()

		Expect(cfg.MaxLearningRuns).To(Equal(10))
		Expect(cfg.ExplorationRate).To(Equal(0.5))
		Expect(cfg.GuardrailsEnabled).To(BeFalse())
	})

	It("leaves fields untouched when their environment variable is unset", func() {
		cfg := config.Default()
		cfg.LoadFromEnv()
		Expect(cfg.MaxLearningRuns).To(Equal(50))
	})
})

var _ = Describe("Validate", func() {
	It("passes for the default configuration plus a required API key", func() {
		cfg := config.Default()
		cfg.LLM.OpenAIAPIKey = "sk-test"
		Expect(cfg.Validate()).To(Succeed())
	})

	It("fails when exploration_rate is out of [0,1]", func() {
		cfg := config.Default()
		cfg.LLM.OpenAIAPIKey = "sk-test"
		cfg.ExplorationRate = 1.5
		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("fails when the configured provider's API key is missing", func() {
		cfg := config.Default()
		cfg.LLM.OpenAIAPIKey = ""
		err := cfg.Validate()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("openai api key required"))
	})

	It("fails when memory_file_path is empty", func() {
		cfg := config.Default()
		cfg.LLM.OpenAIAPIKey = "sk-test"
		cfg.MemoryFilePath = ""
		Expect(cfg.Validate()).To(HaveOccurred())
	})
})

var _ = Describe("Load", func() {
	It("returns an error-free config when no YAML file is present and env satisfies validation", func() {
		Expect(os.Setenv("OPENAI_API_KEY", "sk-test")).To(Succeed())
		defer os.Unsetenv("OPENAI_API_KEY")

		cfg, err := config.Load("")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.MaxLearningRuns).To(Equal(50))
	})
})
