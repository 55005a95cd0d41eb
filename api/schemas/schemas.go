package schemas

import "time"

// SignalKind identifies the class of an externally reported detection signal.
type SignalKind string

const (
	SignalWarning            SignalKind = "warning"
	SignalUnusualBanRate     SignalKind = "unusual_ban_rate"
	SignalPatternDetected    SignalKind = "pattern_detected"
	SignalPerformanceAnomaly SignalKind = "performance_anomaly"
	SignalTimingAnomaly      SignalKind = "timing_anomaly"
)

// KnownSignalKinds lists every kind the engine accepts, in a stable order.
var KnownSignalKinds = []SignalKind{
	SignalWarning,
	SignalUnusualBanRate,
	SignalPatternDetected,
	SignalPerformanceAnomaly,
	SignalTimingAnomaly,
}

// Valid reports whether the kind is one of the known signal kinds.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalWarning, SignalUnusualBanRate, SignalPatternDetected,
		SignalPerformanceAnomaly, SignalTimingAnomaly:
		return true
	}
	return false
}

// RiskLevel is the ordered discrete risk assessment derived from recent
// signals and counters. The numeric ordering is load-bearing: thresholds
// compare levels directly.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler so risk levels serialize as
// their names rather than bare integers.
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RiskLevel) UnmarshalText(text []byte) error {
	switch string(text) {
	case "medium":
		*r = RiskMedium
	case "high":
		*r = RiskHigh
	case "critical":
		*r = RiskCritical
	default:
		*r = RiskLow
	}
	return nil
}

// ProfileParams is a named bundle of behavioral parameters applied atomically.
// Probabilities are in [0, 1]; ReactionTimeBase is in seconds.
type ProfileParams struct {
	ErrorProbability float64 `json:"error_probability"`
	DelayMultiplier  float64 `json:"delay_multiplier"`
	BreakProbability float64 `json:"break_probability"`
	MaxDailyMatches  int     `json:"max_daily_matches"`
	MaxDailyTrades   int     `json:"max_daily_trades"`
	Precision        float64 `json:"precision"`
	ReactionTimeBase float64 `json:"reaction_time_base"`
}

// DetectionSignal is an immutable record of a possible-detection event.
type DetectionSignal struct {
	ID            string     `json:"id"`
	Kind          SignalKind `json:"kind"`
	Severity      int        `json:"severity"`
	Timestamp     time.Time  `json:"timestamp"`
	ActiveProfile string     `json:"active_profile"`
	RiskLevel     RiskLevel  `json:"risk_level"`
}

// AdaptationRecord is one entry of the append-only profile transition audit
// trail.
type AdaptationRecord struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	FromProfile string    `json:"from_profile"`
	ToProfile   string    `json:"to_profile"`
	Reason      string    `json:"reason"`
	RiskLevel   RiskLevel `json:"risk_level"`
}

// SessionOutcome records the result of a completed automation session.
type SessionOutcome struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Warnings  int       `json:"warnings"`
	Profile   string    `json:"profile"`
	RiskLevel RiskLevel `json:"risk_level"`
}

// ProfileUse records that a profile was applied and considered successful at
// the time of application. The evolution pass tallies these.
type ProfileUse struct {
	Profile   string    `json:"profile"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// Pattern describes a recurring signal kind found in the recent signal ring.
type Pattern struct {
	Kind         SignalKind `json:"kind"`
	Frequency    int        `json:"frequency"`
	MeanSeverity float64    `json:"mean_severity"`
}

// LearningLog is the durable learning history: which profiles were applied
// and every adaptation the controller performed.
type LearningLog struct {
	SuccessfulProfiles []ProfileUse       `json:"successful_profiles"`
	AdjustmentHistory  []AdaptationRecord `json:"adjustment_history"`
	LastEvolution      time.Time          `json:"last_evolution,omitempty"`
}

// StatsLog is the durable session statistics file. Sticky flags and the
// suspicious-events counter live here so a restart preserves the fail-safe
// posture the process had when it exited.
type StatsLog struct {
	Sessions         []SessionOutcome    `json:"sessions"`
	Detections       []DetectionSignal   `json:"detections"`
	Adjustments      []AdaptationRecord  `json:"adjustments"`
	ActiveFlags      map[SignalKind]bool `json:"active_flags,omitempty"`
	SuspiciousEvents int                 `json:"suspicious_events"`
	AdaptationCount  int                 `json:"adaptation_count"`
}

// LimiterState is the durable daily-pacing snapshot: counters, the date they
// belong to, and the break clock. Persisting it keeps a mid-day restart from
// re-granting the full daily allowance.
type LimiterState struct {
	DailyMatches  int       `json:"daily_matches"`
	DailyTrades   int       `json:"daily_trades"`
	LastResetDate time.Time `json:"last_reset_date"`
	LastBreakTime time.Time `json:"last_break_time"`
}

// Limits is the externally visible configuration surface mirrored from the
// active profile. Input-emitting collaborators read this before acting.
type Limits struct {
	ErrorProbability float64 `json:"error_probability"`
	BreakProbability float64 `json:"break_probability"`
	MaxDailyMatches  int     `json:"max_daily_matches"`
	MaxDailyTrades   int     `json:"max_daily_trades"`
}
