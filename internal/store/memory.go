package store

import (
	"sync"

	"github.com/nightglove/cadence/api/schemas"
)

// MemoryStore is an in-memory Store for tests. Optional error injection lets
// tests exercise the degraded paths.
type MemoryStore struct {
	mu       sync.Mutex
	learning schemas.LearningLog
	stats    schemas.StatsLog
	limiter  schemas.LimiterState

	// FailSaves, when set, makes every save return this error.
	FailSaves error
	// FailLoads, when set, makes every load return this error alongside an
	// empty state.
	FailLoads error
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		learning: emptyLearning(),
		stats:    emptyStats(),
	}
}

func (m *MemoryStore) LoadLearning() (schemas.LearningLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLoads != nil {
		return emptyLearning(), m.FailLoads
	}
	return cloneLearning(m.learning), nil
}

func (m *MemoryStore) LoadStats() (schemas.StatsLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLoads != nil {
		return emptyStats(), m.FailLoads
	}
	return cloneStats(m.stats), nil
}

func (m *MemoryStore) LoadLimiter() (schemas.LimiterState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLoads != nil {
		return schemas.LimiterState{}, m.FailLoads
	}
	return m.limiter, nil
}

func (m *MemoryStore) SaveLearning(log schemas.LearningLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves != nil {
		return m.FailSaves
	}
	m.learning = cloneLearning(log)
	return nil
}

func (m *MemoryStore) SaveStats(stats schemas.StatsLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves != nil {
		return m.FailSaves
	}
	m.stats = cloneStats(stats)
	return nil
}

func (m *MemoryStore) SaveLimiter(state schemas.LimiterState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves != nil {
		return m.FailSaves
	}
	m.limiter = state
	return nil
}

func cloneLearning(in schemas.LearningLog) schemas.LearningLog {
	out := in
	out.SuccessfulProfiles = append([]schemas.ProfileUse(nil), in.SuccessfulProfiles...)
	out.AdjustmentHistory = append([]schemas.AdaptationRecord(nil), in.AdjustmentHistory...)
	return out
}

func cloneStats(in schemas.StatsLog) schemas.StatsLog {
	out := in
	out.Sessions = append([]schemas.SessionOutcome(nil), in.Sessions...)
	out.Detections = append([]schemas.DetectionSignal(nil), in.Detections...)
	out.Adjustments = append([]schemas.AdaptationRecord(nil), in.Adjustments...)
	out.ActiveFlags = make(map[schemas.SignalKind]bool, len(in.ActiveFlags))
	for k, v := range in.ActiveFlags {
		out.ActiveFlags[k] = v
	}
	return out
}
