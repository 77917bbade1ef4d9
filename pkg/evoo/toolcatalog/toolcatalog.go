// Package toolcatalog implements the ten remediation/analysis tools
// (§4.8) behind a registered-map dispatch, grounded on the teacher's
// ActionRegistry pattern (pkg/platform/executor). Remediation tools are
// narrative stubs returning a structured payload; they never mutate the
// simulator directly — the strategy-level effect (§4.1) is the only
// environmental mutator. Analysis tools may consult the LLM with a
// deterministic threshold-based fallback.
package toolcatalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/evoo/evoo/pkg/evoo/domain"
)

// Status is a tool result's outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Result is the uniform shape every tool returns (§4.8).
type Result struct {
	Tool       string
	Status     Status
	ExecutedAt time.Time
	Fields     map[string]any
	Error      string
}

// ToDomain converts a Result to the persisted domain.ToolResult shape.
func (r Result) ToDomain() domain.ToolResult {
	return domain.ToolResult{
		Tool:       r.Tool,
		Status:     string(r.Status),
		ExecutedAt: r.ExecutedAt,
		Fields:     r.Fields,
		Error:      r.Error,
	}
}

// Handler implements one tool's invocation (§9 Tool capability).
type Handler func(ctx context.Context, params map[string]any) Result

// Tool is the registered capability: a name, an invoke function, and
// optional deterministic default parameters, exposed through
// Registry.DefaultParams.
type Tool struct {
	Name           string
	Invoke         Handler
	DefaultParams  func() map[string]any
}

// Registry is the fixed, named set of tools available to the executor,
// a registered map in the style of the teacher's ActionRegistry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds a tool; it is an error to register the same name twice.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// IsRegistered reports whether name has a registered tool.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Names returns every registered tool name, sorted for deterministic
// iteration.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultParams returns name's deterministic default parameters, or an
// empty map if the tool declares none or does not exist.
func (r *Registry) DefaultParams(name string) map[string]any {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok || tool.DefaultParams == nil {
		return map[string]any{}
	}
	return tool.DefaultParams()
}

// Invoke dispatches to the named tool. An unknown tool name yields a
// skipped result rather than an error: per §7, "unknown tool" is an
// invalid-LLM-output case that the executor's fallback absorbs.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) Result {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Result{Tool: name, Status: StatusSkipped, ExecutedAt: time.Now(), Error: "unknown tool"}
	}
	return tool.Invoke(ctx, params)
}

// stringParam / intParam / floatParam read a parameter with a default,
// tolerating both exact and loosely-typed values arriving from
// LLM-parsed JSON or ParseAction's int/float/string coercion.
func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func floatParam(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// NewDefaultRegistry builds the registry with all ten tools (§4.8),
// narrative payload shapes grounded on the original prototype's
// remediation_activities.py.
func NewDefaultRegistry(client Classifier) *Registry {
	r := NewRegistry()
	for _, tool := range []Tool{
		restartServiceTool(),
		scaleHorizontalTool(),
		scaleVerticalTool(),
		changeTimeoutTool(),
		rollbackDeploymentTool(),
		clearCacheTool(),
		rebalanceLoadTool(),
		queryMetricsTool(),
		analyzeLogsTool(),
		predictIncidentTypeTool(client),
	} {
		_ = r.Register(tool)
	}
	return r
}

func restartServiceTool() Tool {
	return Tool{
		Name: "restart_service",
		DefaultParams: func() map[string]any {
			return map[string]any{"service_name": "api-service"}
		},
		Invoke: func(ctx context.Context, params map[string]any) Result {
			service := stringParam(params, "service_name", "api-service")
			return Result{
				Tool: "restart_service", Status: StatusSuccess, ExecutedAt: time.Now(),
				Fields: map[string]any{
					"service":       service,
					"action":        "graceful_restart",
					"uptime_reset":  true,
				},
			}
		},
	}
}

func scaleHorizontalTool() Tool {
	return Tool{
		Name: "scale_horizontal",
		DefaultParams: func() map[string]any {
			return map[string]any{"target_instances": 5, "service_name": "api-service"}
		},
		Invoke: func(ctx context.Context, params map[string]any) Result {
			target := intParam(params, "target_instances", 3)
			service := stringParam(params, "service_name", "api-service")
			direction := "down"
			if target > 1 {
				direction = "up"
			}
			return Result{
				Tool: "scale_horizontal", Status: StatusSuccess, ExecutedAt: time.Now(),
				Fields: map[string]any{
					"service":                  service,
					"target_instances":         target,
					"scale_direction":          direction,
					"estimated_ready_seconds":  15,
				},
			}
		},
	}
}

func scaleVerticalTool() Tool {
	return Tool{
		Name: "scale_vertical",
		DefaultParams: func() map[string]any {
			return map[string]any{"target_cpu": 4.0, "target_memory_gb": 8.0, "service_name": "api-service"}
		},
		Invoke: func(ctx context.Context, params map[string]any) Result {
			cpu := floatParam(params, "target_cpu", 2.0)
			mem := floatParam(params, "target_memory_gb", 4.0)
			service := stringParam(params, "service_name", "api-service")
			return Result{
				Tool: "scale_vertical", Status: StatusSuccess, ExecutedAt: time.Now(),
				Fields: map[string]any{
					"service":          service,
					"target_cpu_cores": cpu,
					"target_memory_gb": mem,
					"restart_required": true,
				},
			}
		},
	}
}

func changeTimeoutTool() Tool {
	return Tool{
		Name: "change_timeout",
		DefaultParams: func() map[string]any {
			return map[string]any{"new_timeout_ms": 15000, "service_name": "api-service"}
		},
		Invoke: func(ctx context.Context, params map[string]any) Result {
			timeout := intParam(params, "new_timeout_ms", 15000)
			service := stringParam(params, "service_name", "api-service")
			return Result{
				Tool: "change_timeout", Status: StatusSuccess, ExecutedAt: time.Now(),
				Fields: map[string]any{
					"service":        service,
					"new_timeout_ms": timeout,
					"config_reload":  true,
				},
			}
		},
	}
}

func rollbackDeploymentTool() Tool {
	return Tool{
		Name: "rollback_deployment",
		DefaultParams: func() map[string]any {
			return map[string]any{"service_name": "api-service"}
		},
		Invoke: func(ctx context.Context, params map[string]any) Result {
			service := stringParam(params, "service_name", "api-service")
			return Result{
				Tool: "rollback_deployment", Status: StatusSuccess, ExecutedAt: time.Now(),
				Fields: map[string]any{
					"service":          service,
					"rolled_back_to":   "v2.1.3",
					"rolled_back_from": "v2.2.0",
					"canary_disabled":  true,
				},
			}
		},
	}
}

func clearCacheTool() Tool {
	return Tool{
		Name: "clear_cache",
		DefaultParams: func() map[string]any {
			return map[string]any{"cache_type": "all", "service_name": "api-service"}
		},
		Invoke: func(ctx context.Context, params map[string]any) Result {
			service := stringParam(params, "service_name", "api-service")
			cacheType := stringParam(params, "cache_type", "all")
			return Result{
				Tool: "clear_cache", Status: StatusSuccess, ExecutedAt: time.Now(),
				Fields: map[string]any{
					"service":           service,
					"cache_type":        cacheType,
					"freed_memory_mb":   512,
				},
			}
		},
	}
}

func rebalanceLoadTool() Tool {
	return Tool{
		Name: "rebalance_load",
		DefaultParams: func() map[string]any {
			return map[string]any{"service_name": "api-service"}
		},
		Invoke: func(ctx context.Context, params map[string]any) Result {
			service := stringParam(params, "service_name", "api-service")
			return Result{
				Tool: "rebalance_load", Status: StatusSuccess, ExecutedAt: time.Now(),
				Fields: map[string]any{
					"service":                  service,
					"algorithm":                "least_connections",
					"overloaded_instances_after": 0,
				},
			}
		},
	}
}

func queryMetricsTool() Tool {
	return Tool{
		Name:          "query_metrics",
		DefaultParams: func() map[string]any { return map[string]any{"service_name": "api-service"} },
		Invoke: func(ctx context.Context, params map[string]any) Result {
			service := stringParam(params, "service_name", "api-service")
			return Result{
				Tool: "query_metrics", Status: StatusSuccess, ExecutedAt: time.Now(),
				Fields: map[string]any{
					"service":    service,
					"source":     "prometheus",
					"time_range": "last_5m",
				},
			}
		},
	}
}

// logFindings maps each incident type to a fixed narrative root cause
// and error pattern, ported from remediation_activities.py's
// log_findings table.
var logFindings = map[domain.IncidentType]struct{ rootCause, errorPattern string }{
	domain.ServiceCrash:             {"OOMKilled by kernel", "FATAL: out of memory"},
	domain.HighLatency:              {"DB connection pool exhaustion", "WARN: pool timeout"},
	domain.CPUSpike:                 {"Recursive loop in processor", "CPU throttling activated"},
	domain.MemoryLeak:               {"EventListener not removed", "memory grew steadily without release"},
	domain.NetworkDegradation:       {"BGP route flap", "TCP retransmission elevated"},
	domain.TimeoutMisconfiguration:  {"timeout threshold too aggressive", "context deadline exceeded"},
}

func analyzeLogsTool() Tool {
	return Tool{
		Name:          "analyze_logs",
		DefaultParams: func() map[string]any { return map[string]any{"incident_type": string(domain.ServiceCrash)} },
		Invoke: func(ctx context.Context, params map[string]any) Result {
			incidentType := domain.IncidentType(stringParam(params, "incident_type", string(domain.ServiceCrash)))
			finding, ok := logFindings[incidentType]
			if !ok {
				finding = struct{ rootCause, errorPattern string }{"unknown", "multiple errors"}
			}
			return Result{
				Tool: "analyze_logs", Status: StatusSuccess, ExecutedAt: time.Now(),
				Fields: map[string]any{
					"incident_type":       string(incidentType),
					"root_cause":          finding.rootCause,
					"error_pattern":       finding.errorPattern,
					"log_lines_analyzed":  15432,
				},
			}
		},
	}
}

// Classifier lets predict_incident_type consult the LLM before falling
// back to the deterministic threshold rules (Appendix D). A nil
// Classifier makes the tool always use the fallback.
type Classifier interface {
	ClassifyIncident(ctx context.Context, metrics domain.SystemMetrics) (domain.IncidentType, float64, string, bool)
}

// HeuristicPredict implements the Appendix D deterministic fallback,
// ported from remediation_activities.py's _heuristic_predict: evaluate
// each rule in a fixed order and take the first/highest-confidence
// match, defaulting to high_latency when nothing else fires.
func HeuristicPredict(metrics domain.SystemMetrics) (domain.IncidentType, float64, string) {
	type candidate struct {
		incidentType domain.IncidentType
		confidence   float64
		reasoning    string
	}
	var candidates []candidate
	if metrics.Availability < 0.3 && metrics.ErrorRate > 0.7 {
		candidates = append(candidates, candidate{domain.ServiceCrash, 0.90, "very low availability with high error rate"})
	}
	if metrics.MemoryPercent > 85 {
		candidates = append(candidates, candidate{domain.MemoryLeak, 0.85, "memory utilization above 85%"})
	}
	if metrics.CPUPercent > 80 {
		candidates = append(candidates, candidate{domain.CPUSpike, 0.85, "CPU utilization above 80%"})
	}
	if metrics.LatencyMs > 4000 {
		candidates = append(candidates, candidate{domain.TimeoutMisconfiguration, 0.70, "latency above 4000ms"})
	}
	if len(candidates) == 0 {
		return domain.HighLatency, 0.50, "no threshold rule fired; defaulting to high_latency"
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].confidence > candidates[j].confidence })
	top := candidates[0]
	return top.incidentType, top.confidence, top.reasoning
}

func predictIncidentTypeTool(classifier Classifier) Tool {
	return Tool{
		Name: "predict_incident_type",
		Invoke: func(ctx context.Context, params map[string]any) Result {
			metrics := domain.SystemMetrics{
				LatencyMs:     floatParam(params, "latency_ms", 0),
				CPUPercent:    floatParam(params, "cpu_percent", 0),
				MemoryPercent: floatParam(params, "memory_percent", 0),
				ErrorRate:     floatParam(params, "error_rate", 0),
				Availability:  floatParam(params, "availability", 1.0),
			}

			if classifier != nil {
				if incidentType, confidence, reasoning, ok := classifier.ClassifyIncident(ctx, metrics); ok {
					return Result{
						Tool: "predict_incident_type", Status: StatusSuccess, ExecutedAt: time.Now(),
						Fields: map[string]any{
							"predicted_type": string(incidentType),
							"confidence":     confidence,
							"reasoning":      reasoning,
							"llm_predicted":  true,
						},
					}
				}
			}

			incidentType, confidence, reasoning := HeuristicPredict(metrics)
			return Result{
				Tool: "predict_incident_type", Status: StatusSuccess, ExecutedAt: time.Now(),
				Fields: map[string]any{
					"predicted_type": string(incidentType),
					"confidence":     confidence,
					"reasoning":      reasoning,
					"llm_predicted":  false,
				},
			}
		},
	}
}
