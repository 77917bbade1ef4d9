package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evoo/evoo/pkg/evoo/domain"
	"github.com/evoo/evoo/pkg/evoo/errs"
)

// StrategyStore is the per-(incident_type, strategy) statistics map
// (§4.3), file-backed and keyed by "<incident_type>::<strategy>" (§6).
type StrategyStore struct {
	mu      sync.Mutex
	path    string
	records map[string]*domain.StrategyRecord

	// cache is an optional Redis cache-aside layer in front of Rankings
	// reads, invalidated on every Update; KnownStrategies always reads the
	// in-memory map. A nil
	// cache simply means every read goes to the in-memory map directly;
	// the file remains the single source of durable truth either way.
	cache    *redis.Client
	cacheTTL time.Duration
}

// OpenStrategyStore loads existing records from path or starts empty.
func OpenStrategyStore(path string) (*StrategyStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &errs.OperationError{Operation: "create strategy store directory", Component: "strategy_store", Cause: err}
	}

	s := &StrategyStore{path: path, records: map[string]*domain.StrategyRecord{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, &errs.OperationError{Operation: "read strategy store", Component: "strategy_store", Resource: path, Cause: err}
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, &errs.OperationError{Operation: "decode strategy store", Component: "strategy_store", Resource: path, Cause: err}
	}
	return s, nil
}

// WithCache attaches a Redis cache-aside layer for Rankings reads, with
// the given TTL; KnownStrategies is not cached. Passing a nil client disables
// caching (the default).
func (s *StrategyStore) WithCache(client *redis.Client, ttl time.Duration) *StrategyStore {
	s.cache = client
	s.cacheTTL = ttl
	return s
}

func (s *StrategyStore) writeLocked() error {
	data, err := json.Marshal(s.records)
	if err != nil {
		return &errs.OperationError{Operation: "encode strategy store", Component: "strategy_store", Cause: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".strategy-*.tmp")
	if err != nil {
		return &errs.OperationError{Operation: "create temp strategy file", Component: "strategy_store", Cause: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &errs.OperationError{Operation: "write temp strategy file", Component: "strategy_store", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &errs.OperationError{Operation: "close temp strategy file", Component: "strategy_store", Cause: err}
	}
	return os.Rename(tmpPath, s.path)
}

// invalidate drops this incident type's cached rankings/known-strategies
// entries after an update.
func (s *StrategyStore) invalidate(ctx context.Context, incident domain.IncidentType) {
	if s.cache == nil {
		return
	}
	s.cache.Del(ctx, "evoo:rankings:"+string(incident), "evoo:known:"+string(incident))
}

// Update folds one new observation into the (incident, strategy) record in
// place, creating it on first use, preserving the §3/§8 invariants.
func (s *StrategyStore) Update(ctx context.Context, incident domain.IncidentType, strategy domain.Strategy, reward, recoveryTime float64, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.StrategyKey(incident, strategy)
	rec, ok := s.records[key]
	if !ok {
		rec = &domain.StrategyRecord{IncidentType: incident, Strategy: strategy}
		s.records[key] = rec
	}
	rec.Update(reward, recoveryTime, success, time.Now())

	if err := s.writeLocked(); err != nil {
		return &errs.OperationError{Operation: "persist strategy update", Component: "strategy_store", Resource: key, Cause: err}
	}
	s.invalidate(ctx, incident)
	return nil
}

// Get returns the record for (incident, strategy), or nil if never used.
func (s *StrategyStore) Get(incident domain.IncidentType, strategy domain.Strategy) *domain.StrategyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[domain.StrategyKey(incident, strategy)]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// KnownStrategies returns {strategy -> average_reward} for every strategy
// with total_uses >= 1 for the given incident type (§4.3).
func (s *StrategyStore) KnownStrategies(incident domain.IncidentType) map[domain.Strategy]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[domain.Strategy]float64{}
	for _, strat := range domain.AllStrategies {
		rec, ok := s.records[domain.StrategyKey(incident, strat)]
		if ok && rec.TotalUses >= 1 {
			out[strat] = rec.AverageReward()
		}
	}
	return out
}

// Rankings returns this incident type's records sorted by
// (average_reward desc, success_rate desc), per §4.3. When a cache is
// attached (WithCache), a hit is served from Redis and a miss is
// computed and written back, cache-aside style.
func (s *StrategyStore) Rankings(ctx context.Context, incident domain.IncidentType) []domain.StrategyRecord {
	cacheKey := "evoo:rankings:" + string(incident)
	if s.cache != nil {
		if cached, ok := s.readCache(ctx, cacheKey); ok {
			return cached
		}
	}

	s.mu.Lock()
	var out []domain.StrategyRecord
	for _, strat := range domain.AllStrategies {
		rec, ok := s.records[domain.StrategyKey(incident, strat)]
		if ok && rec.TotalUses >= 1 {
			out = append(out, *rec)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].AverageReward() != out[j].AverageReward() {
			return out[i].AverageReward() > out[j].AverageReward()
		}
		return out[i].SuccessRate() > out[j].SuccessRate()
	})

	if s.cache != nil {
		s.writeCache(ctx, cacheKey, out)
	}
	return out
}

func (s *StrategyStore) readCache(ctx context.Context, key string) ([]domain.StrategyRecord, bool) {
	raw, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	var out []domain.StrategyRecord
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false
	}
	return out, true
}

func (s *StrategyStore) writeCache(ctx context.Context, key string, records []domain.StrategyRecord) {
	data, err := json.Marshal(records)
	if err != nil {
		return
	}
	s.cache.Set(ctx, key, data, s.cacheTTL)
}
