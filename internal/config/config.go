// Package config loads EVOO's runtime configuration (§6): environment
// variables as the primary source, with an optional YAML file read first
// and then overridden by environment, matching the teacher's
// LoadConfig/LoadFromEnv/Validate layering
// (pkg/contextapi/config.Config).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/evoo/evoo/pkg/evoo/errs"
)

// LLMConfig is the abstract LLM Client's connection and sampling
// parameters (§4.5, §6).
type LLMConfig struct {
	Provider               string  `yaml:"provider" validate:"omitempty,oneof=openai anthropic langchain"`
	OpenAIAPIKey           string  `yaml:"openai_api_key"`
	OpenAIBaseURL          string  `yaml:"openai_base_url"`
	OpenAIModel            string  `yaml:"openai_model"`
	AnthropicAPIKey        string  `yaml:"anthropic_api_key"`
	AnthropicModel         string  `yaml:"anthropic_model"`
	TemperaturePlanning    float64 `yaml:"temperature_planning" validate:"gte=0,lte=2"`
	TemperatureExecution   float64 `yaml:"temperature_execution" validate:"gte=0,lte=2"`
	MaxTokensPlanning      int     `yaml:"max_tokens_planning" validate:"gt=0"`
	MaxTokensExecution     int     `yaml:"max_tokens_execution" validate:"gt=0"`
}

// Config is EVOO's complete runtime configuration (§6).
type Config struct {
	MaxLearningRuns        int           `yaml:"max_learning_runs" validate:"gte=0"`
	ExplorationRate        float64       `yaml:"exploration_rate" validate:"gte=0,lte=1"`
	MemoryFilePath         string        `yaml:"memory_file_path" validate:"required"`
	StrategyFilePath       string        `yaml:"strategy_file_path" validate:"required"`
	MaxAgentLoopIterations int           `yaml:"max_agent_loop_iterations" validate:"gt=0"`
	GuardrailsEnabled      bool          `yaml:"guardrails_enabled"`
	LLM                    LLMConfig     `yaml:"llm"`
	CheckpointFilePath     string        `yaml:"checkpoint_file_path" validate:"required"`
	LogLevel               string        `yaml:"log_level"`
	LogJSON                bool          `yaml:"log_json"`
	HTTPAddr               string        `yaml:"http_addr" validate:"required"`
	RedisAddr              string        `yaml:"redis_addr"`
	StrategyCacheTTL       time.Duration `yaml:"strategy_cache_ttl"`
}

// Default returns the §6 default configuration before any YAML or
// environment override is applied.
func Default() *Config {
	return &Config{
		MaxLearningRuns:        50,
		ExplorationRate:        0.2,
		MemoryFilePath:         "/tmp/evoo_memory.json",
		StrategyFilePath:       "/tmp/evoo_strategies.json",
		MaxAgentLoopIterations: 8,
		GuardrailsEnabled:      true,
		CheckpointFilePath:     "/tmp/evoo_checkpoint.json",
		LogLevel:               "info",
		LogJSON:                true,
		HTTPAddr:               ":8080",
		StrategyCacheTTL:       5 * time.Minute,
		LLM: LLMConfig{
			Provider:             "openai",
			OpenAIBaseURL:        "https://api.openai.com/v1",
			OpenAIModel:          "gpt-4o-mini",
			AnthropicModel:       "claude-3-5-haiku-latest",
			TemperaturePlanning:  0.3,
			TemperatureExecution: 0.2,
			MaxTokensPlanning:    800,
			MaxTokensExecution:   500,
		},
	}
}

// Load reads yamlPath (if non-empty and present) over the §6 defaults,
// then applies environment overrides, then validates.
func Load(yamlPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		if err := loadYAML(cfg, yamlPath); err != nil {
			return nil, err
		}
	}

	cfg.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &errs.OperationError{Operation: "read config file", Component: "config", Resource: path, Cause: err}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return &errs.OperationError{Operation: "parse config file", Component: "config", Resource: path, Cause: err}
	}
	return nil
}

// LoadFromEnv overrides cfg's fields with the §6 environment variables,
// leaving unset or unparsable variables untouched.
func (c *Config) LoadFromEnv() {
	overrideInt(&c.MaxLearningRuns, "MAX_LEARNING_RUNS")
	overrideFloat(&c.ExplorationRate, "EXPLORATION_RATE")
	overrideString(&c.MemoryFilePath, "MEMORY_FILE_PATH")
	overrideString(&c.StrategyFilePath, "STRATEGY_FILE_PATH")
	overrideInt(&c.MaxAgentLoopIterations, "MAX_AGENT_LOOP_ITERATIONS")
	overrideBool(&c.GuardrailsEnabled, "EVOO_GUARDRAILS_ENABLED")

	overrideString(&c.LLM.Provider, "LLM_PROVIDER")
	overrideString(&c.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	overrideString(&c.LLM.OpenAIBaseURL, "OPENAI_BASE_URL")
	overrideString(&c.LLM.OpenAIModel, "OPENAI_MODEL")
	overrideString(&c.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	overrideString(&c.LLM.AnthropicModel, "ANTHROPIC_MODEL")
	overrideFloat(&c.LLM.TemperaturePlanning, "LLM_TEMPERATURE_PLANNING")
	overrideFloat(&c.LLM.TemperatureExecution, "LLM_TEMPERATURE_EXECUTION")
	overrideInt(&c.LLM.MaxTokensPlanning, "LLM_MAX_TOKENS_PLANNING")
	overrideInt(&c.LLM.MaxTokensExecution, "LLM_MAX_TOKENS_EXECUTION")

	overrideString(&c.CheckpointFilePath, "EVOO_CHECKPOINT_FILE_PATH")
	overrideString(&c.LogLevel, "EVOO_LOG_LEVEL")
	overrideBool(&c.LogJSON, "EVOO_LOG_JSON")
	overrideString(&c.HTTPAddr, "EVOO_HTTP_ADDR")
	overrideString(&c.RedisAddr, "EVOO_REDIS_ADDR")
}

func overrideString(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideFloat(dst *float64, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func overrideBool(dst *bool, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

var validate = validator.New()

// Validate checks every struct tag and translates the first failure into
// an operator-readable message, matching the teacher's
// one-message-per-field Validate() style.
func (c *Config) Validate() error {
	if c.LLM.Provider == "anthropic" && c.LLM.AnthropicAPIKey == "" {
		return fmt.Errorf("anthropic api key required when LLM_PROVIDER=anthropic")
	}
	if c.LLM.Provider == "openai" && c.LLM.OpenAIAPIKey == "" {
		return fmt.Errorf("openai api key required when LLM_PROVIDER=openai")
	}
	if c.LLM.Provider == "langchain" && c.LLM.OpenAIBaseURL == "" {
		return fmt.Errorf("openai base url required when LLM_PROVIDER=langchain")
	}

	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config validation failed: %s (%s)", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
