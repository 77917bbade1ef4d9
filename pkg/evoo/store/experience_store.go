// Package store implements EVOO's two durable stores (§4.2, §4.3): the
// append-only Experience log and the per-(incident, strategy)
// Strategy-Statistics map, both file-backed with atomic-rename writes
// (§5 Shared-resource policy).
package store

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/evoo/evoo/pkg/evoo/domain"
	"github.com/evoo/evoo/pkg/evoo/errs"
)

// ExperienceStore is an append-only, file-backed log of Experiences. It is
// safe for concurrent use, though §5 only ever has one run's Learning/
// Evaluation phase writing at a time.
type ExperienceStore struct {
	mu   sync.Mutex
	path string
	exps []domain.Experience
}

// OpenExperienceStore loads any existing experiences from path (creating
// its parent directory idempotently) or starts empty if the file doesn't
// exist yet.
func OpenExperienceStore(path string) (*ExperienceStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &errs.OperationError{Operation: "create experience store directory", Component: "experience_store", Cause: err}
	}

	s := &ExperienceStore{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, &errs.OperationError{Operation: "read experience store", Component: "experience_store", Resource: path, Cause: err}
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.exps); err != nil {
		return nil, &errs.OperationError{Operation: "decode experience store", Component: "experience_store", Resource: path, Cause: err}
	}
	return s, nil
}

// writeLocked persists the full in-memory experience slice via a
// temp-file-then-rename so a crash mid-write never corrupts the file
// (§5: "write via a temporary file + atomic rename").
func (s *ExperienceStore) writeLocked() error {
	data, err := json.Marshal(s.exps)
	if err != nil {
		return &errs.OperationError{Operation: "encode experience store", Component: "experience_store", Cause: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".experience-*.tmp")
	if err != nil {
		return &errs.OperationError{Operation: "create temp experience file", Component: "experience_store", Cause: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &errs.OperationError{Operation: "write temp experience file", Component: "experience_store", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &errs.OperationError{Operation: "close temp experience file", Component: "experience_store", Cause: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return &errs.OperationError{Operation: "rename temp experience file", Component: "experience_store", Resource: s.path, Cause: err}
	}
	return nil
}

// Store appends exp and durably persists the full log. Per §7 Store write
// failure policy, callers should retry once on error before treating it as
// fatal; Store itself performs no retry so callers control that policy
// (statemachine.Machine retries once through retryOnce, per §7).
func (s *ExperienceStore) Store(exp domain.Experience) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exps = append(s.exps, exp)
	if err := s.writeLocked(); err != nil {
		// Roll back the in-memory append so a failed write never leaves
		// the in-memory view ahead of the durable one.
		s.exps = s.exps[:len(s.exps)-1]
		return fmt.Errorf("%w: %v", errs.ErrStoreWriteFailed, err)
	}
	return nil
}

// RemoveLast reverts a previously-Stored experience identified by id,
// rewriting the durable log without it. The state machine calls this to
// undo an Experience append when the paired StrategyRecord update fails
// even after its own retry, so the two stores never diverge (§4.3: "both
// writes must succeed or neither take effect").
func (s *ExperienceStore) RemoveLast(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := len(s.exps) - 1; i >= 0; i-- {
		if s.exps[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	original := s.exps
	s.exps = append(append([]domain.Experience{}, original[:idx]...), original[idx+1:]...)
	if err := s.writeLocked(); err != nil {
		s.exps = original
		return fmt.Errorf("%w: %v", errs.ErrStoreWriteFailed, err)
	}
	return nil
}

// QueryByIncident returns up to limit experiences of the given incident
// type, most-recent-first. limit <= 0 means unlimited.
func (s *ExperienceStore) QueryByIncident(incidentType domain.IncidentType, limit int) []domain.Experience {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.Experience
	for i := len(s.exps) - 1; i >= 0; i-- {
		if s.exps[i].IncidentType == incidentType {
			matched = append(matched, s.exps[i])
			if limit > 0 && len(matched) >= limit {
				break
			}
		}
	}
	return matched
}

// All returns every stored experience, most-recent-first.
func (s *ExperienceStore) All() []domain.Experience {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Experience, len(s.exps))
	for i := range s.exps {
		out[i] = s.exps[len(s.exps)-1-i]
	}
	return out
}

// StrategyRanking is one entry of a Summary's per-incident-type top-K
// ranking.
type StrategyRanking struct {
	Strategy     domain.Strategy `json:"strategy"`
	AverageReward float64        `json:"average_reward"`
	Count         int            `json:"count"`
}

// Summary is the Experience Store's aggregate view (§4.2).
type Summary struct {
	TotalExperiences int                                      `json:"total_experiences"`
	MeanReward       float64                                  `json:"mean_reward"`
	MinReward        float64                                  `json:"min_reward"`
	MaxReward        float64                                  `json:"max_reward"`
	StdDevReward     float64                                  `json:"stddev_reward"`
	MeanRecoveryTime float64                                  `json:"mean_recovery_time"`
	MinRecoveryTime  float64                                  `json:"min_recovery_time"`
	RollingMeanLastN float64                                  `json:"rolling_mean_last_n"`
	RollingN         int                                      `json:"rolling_n"`
	TopStrategies    map[domain.IncidentType][]StrategyRanking `json:"top_strategies"`
}

// ZeroSummary is the summary of an empty store (§8 round-trip law).
func ZeroSummary() Summary {
	return Summary{TopStrategies: map[domain.IncidentType][]StrategyRanking{}}
}

// Summary computes the aggregate statistics described in §4.2: reward
// mean/min/max/stddev, recovery time mean/min, a rolling last-N mean, and
// per-incident-type top-K strategy rankings by mean reward.
func (s *ExperienceStore) Summary(rollingN, topK int) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.exps) == 0 {
		return ZeroSummary()
	}

	sum, min, max := 0.0, math.Inf(1), math.Inf(-1)
	recoverySum, recoveryMin := 0.0, math.Inf(1)
	for _, e := range s.exps {
		sum += e.Reward
		if e.Reward < min {
			min = e.Reward
		}
		if e.Reward > max {
			max = e.Reward
		}
		recoverySum += e.RecoveryTimeSeconds
		if e.RecoveryTimeSeconds < recoveryMin {
			recoveryMin = e.RecoveryTimeSeconds
		}
	}
	n := float64(len(s.exps))
	mean := sum / n

	variance := 0.0
	for _, e := range s.exps {
		d := e.Reward - mean
		variance += d * d
	}
	variance /= n
	stddev := math.Sqrt(variance)

	if rollingN <= 0 || rollingN > len(s.exps) {
		rollingN = len(s.exps)
	}
	rollingSum := 0.0
	for _, e := range s.exps[len(s.exps)-rollingN:] {
		rollingSum += e.Reward
	}
	rollingMean := rollingSum / float64(rollingN)

	type acc struct {
		sum   float64
		count int
	}
	byIncidentStrategy := map[domain.IncidentType]map[domain.Strategy]*acc{}
	for _, e := range s.exps {
		byStrategy, ok := byIncidentStrategy[e.IncidentType]
		if !ok {
			byStrategy = map[domain.Strategy]*acc{}
			byIncidentStrategy[e.IncidentType] = byStrategy
		}
		a, ok := byStrategy[e.StrategyUsed]
		if !ok {
			a = &acc{}
			byStrategy[e.StrategyUsed] = a
		}
		a.sum += e.Reward
		a.count++
	}

	topStrategies := map[domain.IncidentType][]StrategyRanking{}
	for incidentType, byStrategy := range byIncidentStrategy {
		var rankings []StrategyRanking
		for strat, a := range byStrategy {
			rankings = append(rankings, StrategyRanking{
				Strategy:      strat,
				AverageReward: a.sum / float64(a.count),
				Count:         a.count,
			})
		}
		sort.Slice(rankings, func(i, j int) bool {
			return rankings[i].AverageReward > rankings[j].AverageReward
		})
		if topK > 0 && len(rankings) > topK {
			rankings = rankings[:topK]
		}
		topStrategies[incidentType] = rankings
	}

	return Summary{
		TotalExperiences: len(s.exps),
		MeanReward:       mean,
		MinReward:        min,
		MaxReward:        max,
		StdDevReward:     stddev,
		MeanRecoveryTime: recoverySum / n,
		MinRecoveryTime:  recoveryMin,
		RollingMeanLastN: rollingMean,
		RollingN:         rollingN,
		TopStrategies:    topStrategies,
	}
}
