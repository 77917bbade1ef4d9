// Package statemachine implements the learning-loop state machine (§4.10):
// WaitingForIncident -> PlanningRemediation -> ExecutingRemediation ->
// EvaluatingOutcome -> UpdatingStrategy -> WaitingForIncident, looping
// until the run budget is exhausted (Completed) or an unrecoverable error
// occurs (Failed). Durability is implemented the way the teacher's
// persisted stores are: an atomic JSON checkpoint written after every
// transition. Resume only loads that checkpoint; Run starts at the
// startRunIndex its caller passes, and cmd/evoo passes 0, so a restarted
// process does not continue from the loaded run index or state.
package statemachine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	"github.com/evoo/evoo/pkg/evoo/domain"
	"github.com/evoo/evoo/pkg/evoo/errs"
	"github.com/evoo/evoo/pkg/evoo/evaluator"
	"github.com/evoo/evoo/pkg/evoo/executor"
	"github.com/evoo/evoo/pkg/evoo/logging"
	"github.com/evoo/evoo/pkg/evoo/metrics"
	"github.com/evoo/evoo/pkg/evoo/planner"
	"github.com/evoo/evoo/pkg/evoo/simulator"
	"github.com/evoo/evoo/pkg/evoo/store"
)

// State is the closed set of phases a run passes through (§4.10).
type State string

const (
	WaitingForIncident    State = "waiting_for_incident"
	PlanningRemediation   State = "planning_remediation"
	ExecutingRemediation  State = "executing_remediation"
	EvaluatingOutcome     State = "evaluating_outcome"
	UpdatingStrategy      State = "updating_strategy"
	Completed             State = "completed"
	Failed                State = "failed"
)

// Checkpoint is the durable record of where the state machine is, written
// atomically after every transition so a restarted process can resume.
type Checkpoint struct {
	State       State            `json:"state"`
	RunIndex    int              `json:"run_index"`
	MaxRuns     int              `json:"max_runs"`
	Incident    *domain.Incident `json:"incident,omitempty"`
	FailureNote string           `json:"failure_note,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Machine wires together every component the learning loop needs: the
// simulated environment, strategy selection, OTA execution, reward
// evaluation, and the two durable stores.
type Machine struct {
	sim         *simulator.Simulator
	planner     *planner.Planner
	executor    *executor.Executor
	judge       *evaluator.Judge
	strategies  *store.StrategyStore
	experiences *store.ExperienceStore
	log         logr.Logger

	checkpointPath string
	checkpoint     Checkpoint
}

// New builds a Machine. checkpointPath is where the durable checkpoint is
// written; an empty path disables checkpointing (tests only).
func New(
	sim *simulator.Simulator,
	pl *planner.Planner,
	exec *executor.Executor,
	judge *evaluator.Judge,
	strategies *store.StrategyStore,
	experiences *store.ExperienceStore,
	log logr.Logger,
	checkpointPath string,
) *Machine {
	return &Machine{
		sim:            sim,
		planner:        pl,
		executor:       exec,
		judge:          judge,
		strategies:     strategies,
		experiences:    experiences,
		log:            log,
		checkpointPath: checkpointPath,
	}
}

// Resume loads a prior checkpoint from checkpointPath, if any. Returns
// false if no checkpoint exists (fresh start).
func (m *Machine) Resume() (bool, error) {
	if m.checkpointPath == "" {
		return false, nil
	}
	data, err := os.ReadFile(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &errs.OperationError{Operation: "read state machine checkpoint", Component: "statemachine", Resource: m.checkpointPath, Cause: err}
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return false, &errs.OperationError{Operation: "decode state machine checkpoint", Component: "statemachine", Resource: m.checkpointPath, Cause: err}
	}
	m.checkpoint = cp
	return true, nil
}

func (m *Machine) writeCheckpoint(state State, runIndex, maxRuns int, incident *domain.Incident, failureNote string) error {
	m.checkpoint = Checkpoint{
		State:       state,
		RunIndex:    runIndex,
		MaxRuns:     maxRuns,
		Incident:    incident,
		FailureNote: failureNote,
		UpdatedAt:   time.Now(),
	}
	if m.checkpointPath == "" {
		return nil
	}

	data, err := json.Marshal(m.checkpoint)
	if err != nil {
		return &errs.OperationError{Operation: "encode state machine checkpoint", Component: "statemachine", Cause: err}
	}
	if err := os.MkdirAll(filepath.Dir(m.checkpointPath), 0o755); err != nil {
		return &errs.OperationError{Operation: "create checkpoint directory", Component: "statemachine", Cause: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.checkpointPath), ".checkpoint-*.tmp")
	if err != nil {
		return &errs.OperationError{Operation: "create temp checkpoint file", Component: "statemachine", Cause: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &errs.OperationError{Operation: "write temp checkpoint file", Component: "statemachine", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &errs.OperationError{Operation: "close temp checkpoint file", Component: "statemachine", Cause: err}
	}
	return os.Rename(tmpPath, m.checkpointPath)
}

// Result summarizes a completed call to Run.
type Result struct {
	FinalState  State
	RunsApplied int
	Err         error
}

// Run drives the loop from WaitingForIncident through maxRuns iterations,
// or until stop is closed. Each state writes exactly one artifact (§4.10);
// a store write failure is retried once before the run transitions to
// Failed (§7).
func (m *Machine) Run(ctx context.Context, startRunIndex, maxRuns int, stop <-chan struct{}) Result {
	result := m.run(ctx, startRunIndex, maxRuns, stop)
	metrics.RecordRun(string(result.FinalState))
	return result
}

func (m *Machine) run(ctx context.Context, startRunIndex, maxRuns int, stop <-chan struct{}) Result {
	runIndex := startRunIndex

	for {
		select {
		case <-ctx.Done():
			m.writeCheckpoint(Failed, runIndex, maxRuns, nil, "context cancelled")
			return Result{FinalState: Failed, RunsApplied: runIndex - startRunIndex, Err: ctx.Err()}
		case <-stop:
			m.writeCheckpoint(Completed, runIndex, maxRuns, nil, "")
			return Result{FinalState: Completed, RunsApplied: runIndex - startRunIndex}
		default:
		}

		if runIndex >= maxRuns {
			m.writeCheckpoint(Completed, runIndex, maxRuns, nil, "")
			return Result{FinalState: Completed, RunsApplied: runIndex - startRunIndex}
		}

		if err := m.writeCheckpoint(WaitingForIncident, runIndex, maxRuns, nil, ""); err != nil {
			return Result{FinalState: Failed, RunsApplied: runIndex - startRunIndex, Err: err}
		}
		incident := m.sim.GenerateIncident(runIndex)
		m.log.Info("incident generated", logging.RunFields(runIndex, incident.ID, string(incident.IncidentType))...)
		metrics.RecordIncident(string(incident.IncidentType), string(incident.Severity))

		if err := m.writeCheckpoint(PlanningRemediation, runIndex, maxRuns, incident, ""); err != nil {
			return Result{FinalState: Failed, RunsApplied: runIndex - startRunIndex, Err: err}
		}
		recent := m.experiences.QueryByIncident(incident.IncidentType, 5)
		plan := m.planner.Select(ctx, planner.Input{Incident: incident, RunIndex: runIndex, RecentExperiences: recent})
		m.log.Info("plan selected", append(logging.RunFields(runIndex, incident.ID, string(incident.IncidentType)), logging.StrategyFields(string(plan.Strategy), plan.IsExploratory)...)...)
		metrics.RecordStrategySelection(string(plan.Strategy), plan.IsExploratory)

		if err := m.writeCheckpoint(ExecutingRemediation, runIndex, maxRuns, incident, ""); err != nil {
			return Result{FinalState: Failed, RunsApplied: runIndex - startRunIndex, Err: err}
		}
		strategyParams := simulator.StrategyParams{}
		if p, ok := plan.ToolParams["scale_horizontal"]; ok {
			if v, ok := p["target_instances"].(int); ok {
				strategyParams.TargetInstances = v
			}
		}
		if p, ok := plan.ToolParams["scale_vertical"]; ok {
			if v, ok := p["target_cpu"].(float64); ok {
				strategyParams.TargetCPU = v
			}
			if v, ok := p["target_memory_gb"].(float64); ok {
				strategyParams.TargetMemoryGB = v
			}
		}
		outcome := m.executor.Run(ctx, incident, plan, strategyParams)

		if err := m.writeCheckpoint(EvaluatingOutcome, runIndex, maxRuns, incident, ""); err != nil {
			return Result{FinalState: Failed, RunsApplied: runIndex - startRunIndex, Err: err}
		}
		evalOutcome := evaluator.Outcome{
			MetricsBefore:       incident.MetricsAtDetection,
			MetricsAfter:        outcome.MetricsAfter,
			RecoveryTimeSeconds: outcome.RecoveryTimeSeconds,
			InfrastructureCost:  outcome.InfrastructureCost,
			ServiceRestored:     outcome.ServiceRestored,
			Strategy:            plan.Strategy,
			IncidentType:        incident.IncidentType,
		}
		reward := evaluator.ComputeReward(evalOutcome)
		verdict := m.judge.Evaluate(ctx, evalOutcome, reward)
		metrics.RecordReward(string(incident.IncidentType), reward.Value)
		metrics.RecordRecoveryTime(string(plan.Strategy), outcome.RecoveryTimeSeconds)

		var toolsCalled []string
		var toolResults []domain.ToolResult
		for _, t := range outcome.Trace {
			toolsCalled = append(toolsCalled, t.Tool)
			toolResults = append(toolResults, t.Result.ToDomain())
		}

		exp := domain.Experience{
			ID:                  incident.ID,
			Timestamp:           time.Now(),
			RunIndex:            runIndex,
			IncidentType:        incident.IncidentType,
			IncidentSeverity:    incident.Severity,
			MetricsBefore:       incident.MetricsAtDetection,
			StrategyUsed:        plan.Strategy,
			IsExploratory:       plan.IsExploratory,
			ToolsCalled:         toolsCalled,
			ToolResults:         toolResults,
			MetricsAfter:        outcome.MetricsAfter,
			RecoveryTimeSeconds: outcome.RecoveryTimeSeconds,
			ServiceRestored:     outcome.ServiceRestored,
			InfrastructureCost:  outcome.InfrastructureCost,
			Reward:              reward.Value,
			RewardBreakdown:     reward.Breakdown,
			LLMVerdict:          verdict.LLMVerdict,
			LLMAnalysis:         verdict.Analysis,
		}

		if err := retryOnce(func() error { return m.experiences.Store(exp) }); err != nil {
			m.writeCheckpoint(Failed, runIndex, maxRuns, incident, err.Error())
			return Result{FinalState: Failed, RunsApplied: runIndex - startRunIndex, Err: err}
		}

		if err := m.writeCheckpoint(UpdatingStrategy, runIndex, maxRuns, incident, ""); err != nil {
			return Result{FinalState: Failed, RunsApplied: runIndex - startRunIndex, Err: err}
		}
		updateErr := retryOnce(func() error {
			return m.strategies.Update(ctx, incident.IncidentType, plan.Strategy, reward.Value, outcome.RecoveryTimeSeconds, outcome.ServiceRestored)
		})
		if updateErr != nil {
			// The experience append already succeeded durably; undo it so
			// the two stores never diverge (§4.3: both writes succeed or
			// neither takes effect).
			if rbErr := m.experiences.RemoveLast(exp.ID); rbErr != nil {
				m.log.Error(rbErr, "failed to roll back experience after strategy update failure", "experience_id", exp.ID)
			}
			m.writeCheckpoint(Failed, runIndex, maxRuns, incident, updateErr.Error())
			return Result{FinalState: Failed, RunsApplied: runIndex - startRunIndex, Err: updateErr}
		}

		runIndex++
	}
}

// retryOnce implements the §7 store-write-failure policy: retry once,
// fail the run on the second failure.
func retryOnce(op func() error) error {
	if err := op(); err == nil {
		return nil
	}
	return op()
}
