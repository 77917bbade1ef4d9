// Package simulator implements the incident/remediation simulated
// production environment EVOO's learning loop is optimizing against
// (spec.md §4.1). It is the reward landscape: its tables define which
// strategies work for which incidents.
package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/evoo/evoo/pkg/evoo/domain"
)

// EffectivenessNoiseStdDev is the additive Gaussian noise (§4.1 step 1)
// perturbing the table's mean effectiveness on each application.
const EffectivenessNoiseStdDev = 0.08

// StrategyParams carries the optional tool parameters that influence a
// strategy's infrastructure cost (§4.1 step 5): target instance/CPU/memory
// counts chosen by the planner or executor.
type StrategyParams struct {
	TargetInstances int
	TargetCPU       float64
	TargetMemoryGB  float64
}

// Simulator is a single mutable production-system instance. It is not
// safe for concurrent use; per §5 it is owned exclusively by the run in
// progress.
type Simulator struct {
	rng             *rand.Rand
	currentMetrics  domain.SystemMetrics
	currentIncident *domain.Incident
}

// New builds a Simulator seeded deterministically; the same seed and the
// same call sequence produce the same incident types, severities, metric
// values and effects (§8 Reproducibility). Incident IDs (uuid.New) and
// timestamps (time.Now) are not derived from the seed.
func New(seed int64) *Simulator {
	return &Simulator{
		rng:            rand.New(rand.NewSource(seed)),
		currentMetrics: domain.HealthyBaseline,
	}
}

// CurrentMetrics returns the simulator's live metric vector.
func (s *Simulator) CurrentMetrics() domain.SystemMetrics {
	return s.currentMetrics
}

// CurrentIncident returns the incident active in this run, or nil between
// runs.
func (s *Simulator) CurrentIncident() *domain.Incident {
	return s.currentIncident
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// weightedSeverity draws a Severity from the profile's categorical
// distribution.
func (s *Simulator) weightedSeverity(weights map[domain.Severity]float64) domain.Severity {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	r := s.rng.Float64() * total
	// Iterate in a fixed order so the draw is reproducible regardless of
	// Go's randomized map iteration order.
	order := []domain.Severity{domain.Critical, domain.High, domain.Medium, domain.Low}
	cum := 0.0
	for _, sev := range order {
		w, ok := weights[sev]
		if !ok {
			continue
		}
		cum += w
		if r <= cum {
			return sev
		}
	}
	return domain.Medium
}

// GenerateIncident samples a new incident, discarding any previously
// active one (§4.1): uniformly picks an IncidentType, draws severity from
// that type's profile weights, and samples each metric uniformly from the
// profile's range.
func (s *Simulator) GenerateIncident(runIndex int) *domain.Incident {
	idx := s.rng.Intn(len(domain.AllIncidentTypes))
	it := domain.AllIncidentTypes[idx]
	profile := Profiles[it]

	severity := s.weightedSeverity(profile.severityWeights)

	metrics := domain.SystemMetrics{
		LatencyMs:       s.uniform(profile.latency.lo, profile.latency.hi),
		CPUPercent:      s.uniform(profile.cpu.lo, profile.cpu.hi),
		MemoryPercent:   s.uniform(profile.memory.lo, profile.memory.hi),
		ErrorRate:       s.uniform(profile.errorRate.lo, profile.errorRate.hi),
		Availability:    s.uniform(profile.availability.lo, profile.availability.hi),
		ActiveInstances: 2,
		TimeoutMs:       domain.HealthyBaseline.TimeoutMs,
		Timestamp:       time.Now(),
	}

	incident := &domain.Incident{
		ID:                 fmt.Sprintf("INC-%s", uuid.New().String()[:8]),
		IncidentType:       it,
		Severity:           severity,
		AffectedService:    "production-service",
		MetricsAtDetection: metrics,
		DetectedAt:         metrics.Timestamp,
		Description:        profile.description,
	}

	s.currentIncident = incident
	s.currentMetrics = metrics
	return incident
}

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// gaussianNoise draws a sample from N(0, stddev) using the simulator's rng
// (Go's math/rand NormFloat64 is itself deterministic for a fixed seed and
// call sequence).
func (s *Simulator) gaussianNoise(stddev float64) float64 {
	return s.rng.NormFloat64() * stddev
}

// ApplyStrategyEffectResult is the outcome of applying one strategy's
// full effect to the simulator (§4.1).
type ApplyStrategyEffectResult struct {
	MetricsAfter        domain.SystemMetrics
	RecoveryTimeSeconds float64
	InfrastructureCost  float64
	ServiceRestored     bool
}

// ApplyStrategyEffect implements §4.1's remediation effect: perturbs the
// table effectiveness, samples recovery time, interpolates every metric
// toward the healthy baseline by the perturbed effectiveness, evaluates
// the restore predicate, and computes infrastructure cost. An unknown
// (strategy, incident) pair uses the default effectiveness (§4.1 step 6,
// §7 "Simulator key miss").
func (s *Simulator) ApplyStrategyEffect(strategy domain.Strategy, params StrategyParams) ApplyStrategyEffectResult {
	var incidentType domain.IncidentType
	if s.currentIncident != nil {
		incidentType = s.currentIncident.IncidentType
	}

	eff := effectFor(incidentType, strategy)

	e := clamp01(eff.e + s.gaussianNoise(EffectivenessNoiseStdDev))
	recoveryTime := s.uniform(eff.rLo, eff.rHi)

	before := s.currentMetrics
	healthy := domain.HealthyBaseline

	after := domain.SystemMetrics{
		LatencyMs:       before.LatencyMs + (healthy.LatencyMs-before.LatencyMs)*e,
		CPUPercent:      before.CPUPercent + (healthy.CPUPercent-before.CPUPercent)*e,
		MemoryPercent:   before.MemoryPercent + (healthy.MemoryPercent-before.MemoryPercent)*e,
		ErrorRate:       before.ErrorRate + (healthy.ErrorRate-before.ErrorRate)*e,
		Availability:    before.Availability + (healthy.Availability-before.Availability)*e,
		ActiveInstances: before.ActiveInstances,
		TimeoutMs:       before.TimeoutMs,
		Timestamp:       time.Now(),
	}

	if strategy == domain.ScaleHorizontal || strategy == domain.CombinedRestartScale || strategy == domain.CombinedRollbackScale {
		if params.TargetInstances > after.ActiveInstances {
			after.ActiveInstances = params.TargetInstances
		}
	}

	cost := domain.InfrastructureCost[strategy]
	if params.TargetInstances > 3 {
		cost += 0.5 * float64(params.TargetInstances-3)
	}
	if params.TargetCPU > 2 {
		cost += 0.3 * (params.TargetCPU - 2)
	}

	restored := after.ServiceRestored()

	s.currentMetrics = after
	if restored {
		s.currentIncident = nil
	}

	return ApplyStrategyEffectResult{
		MetricsAfter:        after,
		RecoveryTimeSeconds: math.Round(recoveryTime*100) / 100,
		InfrastructureCost:  cost,
		ServiceRestored:     restored,
	}
}

// Reset restores the simulator to the healthy baseline and clears any
// active incident, preparing it for the next run.
func (s *Simulator) Reset() {
	s.currentMetrics = domain.HealthyBaseline
	s.currentIncident = nil
}
