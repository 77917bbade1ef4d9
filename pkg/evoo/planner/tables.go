package planner

import "github.com/evoo/evoo/pkg/evoo/domain"

// StrategyPriors is the fixed per-incident-type preferred strategy list
// used when exploring with no prior knowledge at all (§4.6 step 3),
// derived from the original prototype's strategy_catalog.py groupings
// collapsed onto the canonical ten-strategy set.
var StrategyPriors = map[domain.IncidentType][]domain.Strategy{
	domain.ServiceCrash:            {domain.RestartService, domain.RollbackDeployment},
	domain.HighLatency:             {domain.ScaleHorizontal, domain.ClearCache},
	domain.CPUSpike:                {domain.ScaleVertical, domain.ScaleHorizontal},
	domain.MemoryLeak:              {domain.RestartService, domain.ClearCache},
	domain.NetworkDegradation:      {domain.RebalanceLoad, domain.RestartService},
	domain.TimeoutMisconfiguration: {domain.ChangeTimeout, domain.RollbackDeployment},
}

// DefaultToolSequence is Appendix C: the deterministic tool sequence
// (its parameters are in DefaultToolParameters) invoked for a strategy when the LLM is
// unavailable or its output is invalid, derived from the action lists
// in the original prototype's strategy_catalog.py.
var DefaultToolSequence = map[domain.Strategy][]string{
	domain.RestartService:         {"restart_service"},
	domain.ScaleHorizontal:        {"scale_horizontal", "rebalance_load"},
	domain.ScaleVertical:          {"scale_vertical"},
	domain.ChangeTimeout:          {"change_timeout"},
	domain.RollbackDeployment:     {"rollback_deployment", "restart_service"},
	domain.ClearCache:             {"clear_cache", "rebalance_load"},
	domain.RebalanceLoad:          {"rebalance_load"},
	domain.CombinedRestartScale:   {"scale_horizontal", "restart_service"},
	domain.CombinedCacheRebalance: {"clear_cache", "rebalance_load"},
	domain.CombinedRollbackScale:  {"rollback_deployment", "scale_horizontal"},
}

// DefaultToolParameters are the deterministic per-strategy parameters
// (Appendix C) applied when a tool from DefaultToolSequence needs
// parameters no LLM has supplied.
func DefaultToolParameters(strategy domain.Strategy) map[string]map[string]any {
	switch strategy {
	case domain.ScaleHorizontal, domain.CombinedRestartScale, domain.CombinedRollbackScale:
		return map[string]map[string]any{"scale_horizontal": {"target_instances": 4}}
	case domain.ScaleVertical:
		return map[string]map[string]any{"scale_vertical": {"target_cpu": 4.0, "target_memory_gb": 8.0}}
	case domain.ChangeTimeout:
		return map[string]map[string]any{"change_timeout": {"new_timeout_ms": 5000}}
	default:
		return map[string]map[string]any{}
	}
}
