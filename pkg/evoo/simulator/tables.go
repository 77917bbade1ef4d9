package simulator

import "github.com/evoo/evoo/pkg/evoo/domain"

// metricRange is an inclusive [lo, hi] sampling range for one metric.
type metricRange struct {
	lo, hi float64
}

// incidentProfile fixes how one incident type degrades the system: the
// sampling range per metric and the severity-weight categorical
// distribution, per spec.md §3/§4.1 and Appendix A. Grounded on
// original_source/project/simulation/production_system.py's
// INCIDENT_PROFILES, narrowed to the ranges spec.md's §3 table specifies.
type incidentProfile struct {
	latency      metricRange
	cpu          metricRange
	memory       metricRange
	errorRate    metricRange
	availability metricRange
	description  string
	// severityWeights sums to 1.0 across the keys present; severities not
	// present have zero probability for this incident type.
	severityWeights map[domain.Severity]float64
}

// Profiles is Appendix A: the fixed incident-generation table.
var Profiles = map[domain.IncidentType]incidentProfile{
	domain.ServiceCrash: {
		latency: metricRange{5000, 15000}, cpu: metricRange{5, 30}, memory: metricRange{10, 40},
		errorRate: metricRange{0.8, 1.0}, availability: metricRange{0.0, 0.2},
		description: "Service has crashed and is not responding to requests",
		severityWeights: map[domain.Severity]float64{
			domain.Critical: 0.6, domain.High: 0.3, domain.Medium: 0.1,
		},
	},
	domain.HighLatency: {
		latency: metricRange{2000, 8000}, cpu: metricRange{40, 70}, memory: metricRange{50, 80},
		errorRate: metricRange{0.1, 0.4}, availability: metricRange{0.6, 0.9},
		description: "Service experiencing abnormally high latency",
		severityWeights: map[domain.Severity]float64{
			domain.High: 0.4, domain.Medium: 0.5, domain.Low: 0.1,
		},
	},
	domain.CPUSpike: {
		latency: metricRange{500, 3000}, cpu: metricRange{85, 99}, memory: metricRange{40, 65},
		errorRate: metricRange{0.05, 0.25}, availability: metricRange{0.7, 0.95},
		description: "CPU utilization has spiked to dangerous levels",
		severityWeights: map[domain.Severity]float64{
			domain.High: 0.5, domain.Medium: 0.4, domain.Low: 0.1,
		},
	},
	domain.MemoryLeak: {
		latency: metricRange{800, 4000}, cpu: metricRange{30, 60}, memory: metricRange{88, 99},
		errorRate: metricRange{0.1, 0.5}, availability: metricRange{0.5, 0.85},
		description: "Memory usage is continuously increasing indicating a memory leak",
		severityWeights: map[domain.Severity]float64{
			domain.High: 0.4, domain.Medium: 0.5, domain.Low: 0.1,
		},
	},
	domain.NetworkDegradation: {
		latency: metricRange{1500, 6000}, cpu: metricRange{20, 50}, memory: metricRange{30, 60},
		errorRate: metricRange{0.2, 0.6}, availability: metricRange{0.4, 0.75},
		description: "Network connectivity is degraded causing packet loss and timeouts",
		severityWeights: map[domain.Severity]float64{
			domain.High: 0.3, domain.Medium: 0.5, domain.Low: 0.2,
		},
	},
	domain.TimeoutMisconfiguration: {
		latency: metricRange{4000, 12000}, cpu: metricRange{20, 45}, memory: metricRange{25, 55},
		errorRate: metricRange{0.3, 0.7}, availability: metricRange{0.3, 0.7},
		description: "Timeout settings are misconfigured causing cascading failures",
		severityWeights: map[domain.Severity]float64{
			domain.Medium: 0.6, domain.High: 0.3, domain.Low: 0.1,
		},
	},
}

// effect is one (incident, strategy) remediation effect: mean
// effectiveness and the recovery-time sampling range in seconds.
type effect struct {
	e          float64
	rLo, rHi   float64
}

// defaultEffect is the §4.1 step-6 fallback for any (strategy, incident)
// pair not present in the table below.
var defaultEffect = effect{e: 0.20, rLo: 30, rHi: 120}

// recoveryBase returns the [lo, hi] base recovery-time range for a
// single-action strategy before the effectiveness-based narrowing, per the
// original prototype's per-action base sampling.
func recoveryBase(s domain.Strategy) (lo, hi float64) {
	switch s {
	case domain.RestartService:
		return 10, 45
	case domain.RollbackDeployment:
		return 30, 90
	case domain.ScaleHorizontal:
		return 20, 60
	default:
		return 5, 30
	}
}

// buildEffect derives an effect from a mean effectiveness, narrowing the
// strategy's base recovery range's upper bound by (1.3 - 0.3e): the more
// effective a remediation, the faster it's expected to converge.
func buildEffect(s domain.Strategy, e float64) effect {
	lo, hi := recoveryBase(s)
	return effect{e: e, rLo: lo, rHi: hi * (1.3 - 0.3*e)}
}

// singleEffects is Appendix B's core: per-incident, per-single-action-
// strategy effectiveness, grounded on original_source's
// REMEDIATION_EFFECTIVENESS table (its recovery_factor column becomes e
// here, since spec.md's deterministic interpolation plays the stochastic
// recovery_factor's role).
var singleEffects = map[domain.IncidentType]map[domain.Strategy]effect{
	domain.ServiceCrash: {
		domain.RestartService:     buildEffect(domain.RestartService, 0.90),
		domain.RollbackDeployment: buildEffect(domain.RollbackDeployment, 0.85),
		domain.ScaleHorizontal:    buildEffect(domain.ScaleHorizontal, 0.50),
		domain.ScaleVertical:      buildEffect(domain.ScaleVertical, 0.40),
		domain.ClearCache:         buildEffect(domain.ClearCache, 0.30),
		domain.RebalanceLoad:      buildEffect(domain.RebalanceLoad, 0.40),
		domain.ChangeTimeout:      buildEffect(domain.ChangeTimeout, 0.10),
	},
	domain.HighLatency: {
		domain.ScaleHorizontal:    buildEffect(domain.ScaleHorizontal, 0.85),
		domain.ClearCache:         buildEffect(domain.ClearCache, 0.75),
		domain.RebalanceLoad:      buildEffect(domain.RebalanceLoad, 0.80),
		domain.ScaleVertical:      buildEffect(domain.ScaleVertical, 0.70),
		domain.RestartService:     buildEffect(domain.RestartService, 0.60),
		domain.ChangeTimeout:      buildEffect(domain.ChangeTimeout, 0.50),
		domain.RollbackDeployment: buildEffect(domain.RollbackDeployment, 0.40),
	},
	domain.CPUSpike: {
		domain.ScaleVertical:      buildEffect(domain.ScaleVertical, 0.90),
		domain.ScaleHorizontal:    buildEffect(domain.ScaleHorizontal, 0.85),
		domain.RestartService:     buildEffect(domain.RestartService, 0.65),
		domain.RebalanceLoad:      buildEffect(domain.RebalanceLoad, 0.60),
		domain.RollbackDeployment: buildEffect(domain.RollbackDeployment, 0.50),
		domain.ClearCache:         buildEffect(domain.ClearCache, 0.35),
		domain.ChangeTimeout:      buildEffect(domain.ChangeTimeout, 0.15),
	},
	domain.MemoryLeak: {
		domain.RestartService:     buildEffect(domain.RestartService, 0.95),
		domain.RollbackDeployment: buildEffect(domain.RollbackDeployment, 0.80),
		domain.ScaleVertical:      buildEffect(domain.ScaleVertical, 0.65),
		domain.ClearCache:         buildEffect(domain.ClearCache, 0.55),
		domain.ScaleHorizontal:    buildEffect(domain.ScaleHorizontal, 0.45),
		domain.RebalanceLoad:      buildEffect(domain.RebalanceLoad, 0.25),
		domain.ChangeTimeout:      buildEffect(domain.ChangeTimeout, 0.10),
	},
	domain.NetworkDegradation: {
		domain.RebalanceLoad:      buildEffect(domain.RebalanceLoad, 0.85),
		domain.ScaleHorizontal:    buildEffect(domain.ScaleHorizontal, 0.65),
		domain.ChangeTimeout:      buildEffect(domain.ChangeTimeout, 0.60),
		domain.RestartService:     buildEffect(domain.RestartService, 0.45),
		domain.ClearCache:         buildEffect(domain.ClearCache, 0.35),
		domain.ScaleVertical:      buildEffect(domain.ScaleVertical, 0.25),
		domain.RollbackDeployment: buildEffect(domain.RollbackDeployment, 0.30),
	},
	domain.TimeoutMisconfiguration: {
		domain.ChangeTimeout:      buildEffect(domain.ChangeTimeout, 0.95),
		domain.RestartService:     buildEffect(domain.RestartService, 0.55),
		domain.RollbackDeployment: buildEffect(domain.RollbackDeployment, 0.75),
		domain.RebalanceLoad:      buildEffect(domain.RebalanceLoad, 0.45),
		domain.ClearCache:         buildEffect(domain.ClearCache, 0.25),
		domain.ScaleHorizontal:    buildEffect(domain.ScaleHorizontal, 0.35),
		domain.ScaleVertical:      buildEffect(domain.ScaleVertical, 0.20),
	},
}

// combinedComponents maps each combined strategy to the two single-action
// strategies it composes; effectFor treats the pair symmetrically.
var combinedComponents = map[domain.Strategy][2]domain.Strategy{
	domain.CombinedRestartScale:   {domain.RestartService, domain.ScaleHorizontal},
	domain.CombinedCacheRebalance: {domain.ClearCache, domain.RebalanceLoad},
	domain.CombinedRollbackScale:  {domain.RollbackDeployment, domain.ScaleHorizontal},
}

const combinedSynergyBonus = 0.08

// effectFor resolves the remediation effect for any (strategy, incident)
// pair, including the three combined strategies (synthesized from their
// components) and the §4.1 step-6 fallback for unknown pairs.
func effectFor(incident domain.IncidentType, strategy domain.Strategy) effect {
	if parts, ok := combinedComponents[strategy]; ok {
		byIncident, ok := singleEffects[incident]
		if !ok {
			return defaultEffect
		}
		a, aok := byIncident[parts[0]]
		b, bok := byIncident[parts[1]]
		if !aok || !bok {
			return defaultEffect
		}
		e := a.e
		if b.e > e {
			e = b.e
		}
		e += combinedSynergyBonus
		if e > 0.97 {
			e = 0.97
		}
		return effect{e: e, rLo: a.rLo + b.rLo, rHi: a.rHi + b.rHi}
	}

	byIncident, ok := singleEffects[incident]
	if !ok {
		return defaultEffect
	}
	e, ok := byIncident[strategy]
	if !ok {
		return defaultEffect
	}
	return e
}
