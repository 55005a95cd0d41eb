package store

import (
	"github.com/nightglove/cadence/api/schemas"
)

// Store is the persistence boundary for the camouflage engine. The engine
// owns all in-memory state and pushes full snapshots through this interface
// after every durable mutation; implementations decide how to make them
// stick. A failed save must never corrupt the previously persisted state.
type Store interface {
	// LoadLearning returns the persisted learning log, or an empty valid
	// log when nothing has been persisted yet.
	LoadLearning() (schemas.LearningLog, error)
	// LoadStats returns the persisted stats log, or an empty valid log
	// when nothing has been persisted yet.
	LoadStats() (schemas.StatsLog, error)
	// LoadLimiter returns the persisted daily-pacing state, or a zero
	// state when nothing has been persisted yet.
	LoadLimiter() (schemas.LimiterState, error)
	SaveLearning(log schemas.LearningLog) error
	SaveStats(stats schemas.StatsLog) error
	SaveLimiter(state schemas.LimiterState) error
}

func emptyLearning() schemas.LearningLog {
	return schemas.LearningLog{
		SuccessfulProfiles: []schemas.ProfileUse{},
		AdjustmentHistory:  []schemas.AdaptationRecord{},
	}
}

func emptyStats() schemas.StatsLog {
	return schemas.StatsLog{
		Sessions:    []schemas.SessionOutcome{},
		Detections:  []schemas.DetectionSignal{},
		Adjustments: []schemas.AdaptationRecord{},
		ActiveFlags: map[schemas.SignalKind]bool{},
	}
}
