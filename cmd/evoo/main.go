// Command evoo runs the EVOO learning loop: it wires the simulator,
// planner, executor, evaluator, and durable stores into the §4.10 state
// machine, then serves the observation surface (§6) over HTTP while the
// loop runs in the background.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/evoo/evoo/internal/config"
	"github.com/evoo/evoo/pkg/evoo/domain"
	"github.com/evoo/evoo/pkg/evoo/evaluator"
	"github.com/evoo/evoo/pkg/evoo/executor"
	"github.com/evoo/evoo/pkg/evoo/guardrail"
	"github.com/evoo/evoo/pkg/evoo/httpcors"
	"github.com/evoo/evoo/pkg/evoo/llm"
	"github.com/evoo/evoo/pkg/evoo/logging"
	"github.com/evoo/evoo/pkg/evoo/planner"
	"github.com/evoo/evoo/pkg/evoo/simulator"
	"github.com/evoo/evoo/pkg/evoo/statemachine"
	"github.com/evoo/evoo/pkg/evoo/store"
	"github.com/evoo/evoo/pkg/evoo/toolcatalog"
)

// llmClassifier adapts llm.Client to toolcatalog.Classifier so the
// predict_incident_type tool can consult the LLM before falling back to
// the heuristic (§4.8).
type llmClassifier struct {
	client *llm.Client
}

func (c *llmClassifier) ClassifyIncident(ctx context.Context, metrics domain.SystemMetrics) (domain.IncidentType, float64, string, bool) {
	prompt := fmt.Sprintf(
		"Classify this incident from its metrics and respond with JSON "+
			`{"incident_type": "...", "confidence": 0-1, "reasoning": "..."}.`+
			"\nlatency_ms=%.1f cpu_percent=%.1f memory_percent=%.1f error_rate=%.3f availability=%.3f",
		metrics.LatencyMs, metrics.CPUPercent, metrics.MemoryPercent, metrics.ErrorRate, metrics.Availability,
	)
	resp, err := c.client.Complete(ctx, llm.Request{
		SystemPrompt: "You are an expert SRE classifying production incidents.",
		UserPrompt:   prompt,
		Temperature:  0.2,
		MaxTokens:    300,
		JSONMode:     true,
	})
	if err != nil {
		return "", 0, "", false
	}

	parsed := llm.ParseJSON(resp)
	typeStr, _ := parsed["incident_type"].(string)
	incidentType := domain.IncidentType(typeStr)
	if !incidentType.Valid() {
		return "", 0, "", false
	}
	confidence, _ := parsed["confidence"].(float64)
	reasoning, _ := parsed["reasoning"].(string)
	return incidentType, confidence, reasoning, true
}

func buildLLMClient(cfg *config.Config) (*llm.Client, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		provider, err := llm.NewAnthropicProvider(cfg.LLM.AnthropicAPIKey, cfg.LLM.AnthropicModel)
		if err != nil {
			return nil, err
		}
		return llm.New(provider, llm.WithProviderName("anthropic")), nil
	case "langchain":
		provider, err := llm.NewLangchainProvider(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIBaseURL, cfg.LLM.OpenAIModel)
		if err != nil {
			return nil, err
		}
		return llm.New(provider, llm.WithProviderName("langchain")), nil
	default:
		provider, err := llm.NewOpenAIProvider(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIBaseURL, cfg.LLM.OpenAIModel)
		if err != nil {
			return nil, err
		}
		return llm.New(provider, llm.WithProviderName("openai")), nil
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	yamlPath := os.Getenv("EVOO_CONFIG_FILE")
	cfg, err := config.Load(yamlPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	strategies, err := store.OpenStrategyStore(cfg.StrategyFilePath)
	if err != nil {
		return fmt.Errorf("open strategy store: %w", err)
	}
	if cfg.RedisAddr != "" {
		strategies = strategies.WithCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.StrategyCacheTTL)
	}
	experiences, err := store.OpenExperienceStore(cfg.MemoryFilePath)
	if err != nil {
		return fmt.Errorf("open experience store: %w", err)
	}

	llmClient, err := buildLLMClient(cfg)
	if err != nil {
		log.Info("LLM client unavailable, running in heuristic-only mode", "error", err.Error())
		llmClient = nil
	}

	sim := simulator.New(time.Now().UnixNano())

	var classifier toolcatalog.Classifier
	if llmClient != nil {
		classifier = &llmClassifier{client: llmClient}
	}
	tools := toolcatalog.NewDefaultRegistry(classifier)

	guardCfg := guardrail.DefaultConfig()
	guardCfg.Enabled = cfg.GuardrailsEnabled
	guard := guardrail.NewEngine(guardCfg)

	exec := executor.New(tools, guard, sim, llmClient).WithMaxIterations(cfg.MaxAgentLoopIterations)

	plannerOpts := []planner.Option{planner.WithEpsilon(cfg.ExplorationRate)}
	if llmClient != nil {
		plannerOpts = append(plannerOpts, planner.WithLLMClient(llmClient))
	}
	pl := planner.New(strategies, time.Now().UnixNano(), plannerOpts...)

	judge := evaluator.NewJudge(llmClient)

	machine := statemachine.New(sim, pl, exec, judge, strategies, experiences, log, cfg.CheckpointFilePath)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	resumed, err := machine.Resume()
	if err != nil {
		return fmt.Errorf("resume state machine: %w", err)
	}
	startRunIndex := 0
	if resumed {
		log.Info("resuming from checkpoint")
	}

	srv := buildObservationServer(cfg, experiences)

	var result statemachine.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("observation surface listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		result = machine.Run(gctx, startRunIndex, cfg.MaxLearningRuns, nil)
		log.Info("learning loop finished", "final_state", string(result.FinalState), "runs_applied", result.RunsApplied)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error(err, "evoo exited with an error")
	}

	if result.Err != nil {
		return result.Err
	}
	return nil
}

// buildObservationServer implements §6's "observation surface for a
// host": /healthz, /metrics, and /runs/latest.
func buildObservationServer(cfg *config.Config, experiences *store.ExperienceStore) *http.Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(httpcors.Handler(httpcors.FromEnvironment()))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	router.Handle("/metrics", promhttp.Handler())

	router.Get("/runs/latest", func(w http.ResponseWriter, r *http.Request) {
		all := experiences.All()
		w.Header().Set("Content-Type", "application/json")
		if len(all) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		latest := all[0]
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(observation{
			RunIndex:            latest.RunIndex,
			IncidentType:        string(latest.IncidentType),
			Strategy:            string(latest.StrategyUsed),
			IsExploratory:       latest.IsExploratory,
			ServiceRestored:     latest.ServiceRestored,
			Reward:              latest.Reward,
			RecoveryTimeSeconds: latest.RecoveryTimeSeconds,
			LLMVerdict:          string(latest.LLMVerdict),
		})
	})

	return &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// observation is the §6 structured tuple the observation surface exposes
// for the most recently completed run.
type observation struct {
	RunIndex            int     `json:"run_index"`
	IncidentType        string  `json:"incident_type"`
	Strategy            string  `json:"strategy"`
	IsExploratory       bool    `json:"is_exploratory"`
	ServiceRestored     bool    `json:"service_restored"`
	Reward              float64 `json:"reward"`
	RecoveryTimeSeconds float64 `json:"recovery_time_seconds"`
	LLMVerdict          string  `json:"llm_verdict"`
}
