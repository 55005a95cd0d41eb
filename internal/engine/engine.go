// Package engine implements the adaptive behavioral camouflage engine: it
// scores detection risk from reported signals, switches the active behavior
// profile in response, and periodically evolves new profile variants from
// what worked before. Everything mutable lives behind one mutex; the outside
// world only ever sees snapshots.
package engine

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nightglove/cadence/api/schemas"
	"github.com/nightglove/cadence/internal/store"
)

const (
	// signalRingCapacity bounds the in-memory detection history. Older
	// signals survive only in the persisted stats log.
	signalRingCapacity = 100

	defaultAdaptationInterval = time.Hour
	defaultEvolutionInterval  = 24 * time.Hour
	minEvolutionHistory       = 3
)

// ErrUnknownProfile is returned when a profile name is not in the catalog.
var ErrUnknownProfile = errors.New("unknown behavior profile")

// ErrUnknownSignalKind is returned for signal kinds outside the taxonomy.
var ErrUnknownSignalKind = errors.New("unknown signal kind")

// Config holds the engine's construction-time settings.
type Config struct {
	DefaultProfile     string
	AutoAdjust         bool
	AdaptationInterval time.Duration
	EvolutionInterval  time.Duration
}

func (c *Config) applyDefaults() {
	if c.DefaultProfile == "" {
		c.DefaultProfile = ProfileNormal
	}
	if c.AdaptationInterval <= 0 {
		c.AdaptationInterval = defaultAdaptationInterval
	}
	if c.EvolutionInterval <= 0 {
		c.EvolutionInterval = defaultEvolutionInterval
	}
}

// Result reports what an Evaluate call did.
type Result struct {
	Adapted     bool
	FromProfile string
	ToProfile   string
	Risk        schemas.RiskLevel
	Reason      string
}

// Stats is a read-only snapshot of the engine's adaptation state.
type Stats struct {
	CurrentProfile   string
	CurrentRisk      schemas.RiskLevel
	AdaptationCount  int
	SessionCount     int
	SuspiciousEvents int
	ActiveFlags      map[schemas.SignalKind]bool
	RecentDetections int
	EvolvedProfiles  []string
}

// Engine owns the active profile and every mutable counter. Collaborators
// feed it signals and session outcomes and read derived parameters back; no
// caller mutates risk or profile state directly.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	store  store.Store

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time

	profiles      map[string]schemas.ProfileParams
	activeProfile string
	currentRisk   schemas.RiskLevel
	limits        schemas.Limits

	ring             []schemas.DetectionSignal
	flags            map[schemas.SignalKind]bool
	suspiciousEvents int
	adaptationCount  int
	lastAdaptation   time.Time

	learning schemas.LearningLog
	stats    schemas.StatsLog
}

// Option customizes an Engine, mainly for deterministic tests.
type Option func(*Engine)

// WithRand injects the random source.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithClock injects the wall-clock reader.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine on top of the given store, reloading any persisted
// learning history and session statistics. Load failures degrade to an
// empty state rather than failing construction; a broken state file must
// never stop the camouflage posture from coming up.
func New(cfg Config, st store.Store, logger *zap.Logger, opts ...Option) (*Engine, error) {
	cfg.applyDefaults()
	if _, ok := builtinProfiles[cfg.DefaultProfile]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, cfg.DefaultProfile)
	}

	e := &Engine{
		cfg:      cfg,
		logger:   logger.Named("engine"),
		store:    st,
		now:      time.Now,
		profiles: make(map[string]schemas.ProfileParams, len(builtinProfiles)),
		flags:    make(map[schemas.SignalKind]bool),
		ring:     make([]schemas.DetectionSignal, 0, signalRingCapacity),
	}
	for name, params := range builtinProfiles {
		e.profiles[name] = params
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	learning, err := st.LoadLearning()
	if err != nil {
		e.logger.Error("Failed to load learning log, starting empty", zap.Error(err))
	}
	e.learning = learning

	stats, err := st.LoadStats()
	if err != nil {
		e.logger.Error("Failed to load stats log, starting empty", zap.Error(err))
	}
	e.stats = stats
	if e.stats.ActiveFlags == nil {
		e.stats.ActiveFlags = map[schemas.SignalKind]bool{}
	}
	for kind, set := range e.stats.ActiveFlags {
		if set {
			e.flags[kind] = true
		}
	}
	e.suspiciousEvents = e.stats.SuspiciousEvents
	e.adaptationCount = e.stats.AdaptationCount

	// Rebuild the in-memory ring from the tail of the persisted log so a
	// restart does not forget last night's signals.
	detections := e.stats.Detections
	if len(detections) > signalRingCapacity {
		detections = detections[len(detections)-signalRingCapacity:]
	}
	e.ring = append(e.ring, detections...)

	e.activeProfile = cfg.DefaultProfile
	e.mirrorLimitsLocked()
	e.currentRisk = scoreRisk(e.ring, e.flags, e.suspiciousEvents, e.now())
	e.lastAdaptation = e.now()

	e.logger.Info("Camouflage engine ready",
		zap.String("profile", e.activeProfile),
		zap.Stringer("risk", e.currentRisk),
		zap.Int("restored_signals", len(e.ring)))
	return e, nil
}

// RegisterSignal records a possible-detection event: it enters the bounded
// ring and the durable log, sets the kind's sticky flag, and, for severity
// two or higher with auto-adjust on, immediately attempts an adaptation
// (still subject to the rate limit). The returned error reports persistence
// trouble; the in-memory state is updated regardless.
func (e *Engine) RegisterSignal(kind schemas.SignalKind, severity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registerSignalLocked(kind, severity)
}

func (e *Engine) registerSignalLocked(kind schemas.SignalKind, severity int) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSignalKind, kind)
	}
	if severity < 1 {
		severity = 1
	}

	sig := schemas.DetectionSignal{
		ID:            uuid.New().String(),
		Kind:          kind,
		Severity:      severity,
		Timestamp:     e.now(),
		ActiveProfile: e.activeProfile,
		RiskLevel:     e.currentRisk,
	}

	if len(e.ring) >= signalRingCapacity {
		copy(e.ring, e.ring[1:])
		e.ring = e.ring[:signalRingCapacity-1]
	}
	e.ring = append(e.ring, sig)

	e.flags[kind] = true
	e.stats.Detections = append(e.stats.Detections, sig)
	e.stats.ActiveFlags[kind] = true
	e.currentRisk = scoreRisk(e.ring, e.flags, e.suspiciousEvents, e.now())

	e.logger.Warn("Detection signal registered",
		zap.String("kind", string(kind)),
		zap.Int("severity", severity),
		zap.Stringer("risk", e.currentRisk))

	persistErr := e.saveStatsLocked()

	if e.cfg.AutoAdjust && severity >= 2 {
		e.evaluateLocked("detection_signal")
	}
	return persistErr
}

// Evaluate runs one adaptation pass: pattern analysis, risk scoring, profile
// selection, and application when the selection differs from the active
// profile. Calls inside the adaptation interval are rejected outright; the
// rate limit is a hard oscillation guard, not a hint.
func (e *Engine) Evaluate(reason string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(reason)
}

func (e *Engine) evaluateLocked(reason string) Result {
	now := e.now()
	if now.Sub(e.lastAdaptation) < e.cfg.AdaptationInterval {
		return Result{Adapted: false, Risk: e.currentRisk, Reason: "rate_limited"}
	}

	e.logger.Info("Running adaptation pass", zap.String("reason", reason))

	patterns := e.analyzePatternsLocked()
	risk := scoreRisk(e.ring, e.flags, e.suspiciousEvents, now)
	e.currentRisk = risk

	selected := selectProfile(e.rng, risk, patterns)
	if selected == e.activeProfile {
		return Result{Adapted: false, Risk: risk, Reason: reason}
	}

	from := e.activeProfile
	if err := e.applyProfileLocked(selected, reason); err != nil {
		// Selection only yields built-in names, so this is unreachable in
		// practice, but a failed apply must never pretend to have adapted.
		e.logger.Error("Profile application failed during adaptation", zap.Error(err))
		return Result{Adapted: false, Risk: risk, Reason: reason}
	}

	record := schemas.AdaptationRecord{
		ID:          uuid.New().String(),
		Timestamp:   now,
		FromProfile: from,
		ToProfile:   selected,
		Reason:      reason,
		RiskLevel:   risk,
	}
	e.learning.AdjustmentHistory = append(e.learning.AdjustmentHistory, record)
	e.stats.Adjustments = append(e.stats.Adjustments, record)
	e.adaptationCount++
	e.stats.AdaptationCount = e.adaptationCount
	e.lastAdaptation = now

	if err := e.saveLearningLocked(); err != nil {
		e.logger.Error("Failed to persist learning log after adaptation", zap.Error(err))
	}
	if err := e.saveStatsLocked(); err != nil {
		e.logger.Error("Failed to persist stats after adaptation", zap.Error(err))
	}

	e.logger.Warn("Behavior profile adapted",
		zap.String("from", from),
		zap.String("to", selected),
		zap.String("reason", reason),
		zap.Stringer("risk", risk))

	return Result{Adapted: true, FromProfile: from, ToProfile: selected, Risk: risk, Reason: reason}
}

// ApplyProfile switches the active profile by name. Unknown names are
// rejected with ErrUnknownProfile and leave the active profile untouched.
// Explicit applications bypass the adaptation rate limit; they are operator
// actions, not oscillation.
func (e *Engine) ApplyProfile(name, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.applyProfileLocked(name, reason); err != nil {
		return err
	}
	return e.saveLearningLocked()
}

func (e *Engine) applyProfileLocked(name, reason string) error {
	if _, ok := e.profiles[name]; !ok {
		e.logger.Error("Rejected unknown profile", zap.String("profile", name))
		return fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}

	old := e.activeProfile
	e.activeProfile = name
	e.mirrorLimitsLocked()

	e.learning.SuccessfulProfiles = append(e.learning.SuccessfulProfiles, schemas.ProfileUse{
		Profile:   name,
		Timestamp: e.now(),
		Reason:    reason,
	})

	e.logger.Info("Profile applied",
		zap.String("from", old),
		zap.String("to", name),
		zap.String("reason", reason))
	return nil
}

// mirrorLimitsLocked projects the externally consumed subset of the active
// profile into the limits snapshot. Delay multiplier, precision and reaction
// base stay behind query methods instead.
func (e *Engine) mirrorLimitsLocked() {
	p := e.profiles[e.activeProfile]
	e.limits = schemas.Limits{
		ErrorProbability: p.ErrorProbability,
		BreakProbability: p.BreakProbability,
		MaxDailyMatches:  p.MaxDailyMatches,
		MaxDailyTrades:   p.MaxDailyTrades,
	}
}

// AnalyzePatterns inspects the signal ring for recurring kinds. Finding any
// pattern sets the sticky pattern_detected flag, which raises every
// subsequent risk score until an operator resets the flags. That feedback
// loop is deliberate hysteresis, not an accident.
func (e *Engine) AnalyzePatterns() []schemas.Pattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.analyzePatternsLocked()
}

func (e *Engine) analyzePatternsLocked() []schemas.Pattern {
	patterns := analyzePatterns(e.ring)
	if len(patterns) == 0 {
		return nil
	}
	if !e.flags[schemas.SignalPatternDetected] {
		e.flags[schemas.SignalPatternDetected] = true
		e.stats.ActiveFlags[schemas.SignalPatternDetected] = true
		if err := e.saveStatsLocked(); err != nil {
			e.logger.Error("Failed to persist pattern flag", zap.Error(err))
		}
	}
	for _, p := range patterns {
		e.logger.Warn("Recurring signal pattern",
			zap.String("kind", string(p.Kind)),
			zap.Int("frequency", p.Frequency),
			zap.Float64("mean_severity", p.MeanSeverity))
	}
	return patterns
}

// Evolve creates one new profile variant from the historically most applied
// profile, each numeric field independently nudged by up to ±5%. It runs at
// most once per evolution interval and needs at least three applications of
// history to work from. The variant joins the in-memory catalog under a
// timestamped name; the selection policy never picks evolved names on its
// own, so until ApplyProfile targets one explicitly this is recorded
// learning, not changed behavior.
func (e *Engine) Evolve() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if !e.learning.LastEvolution.IsZero() && now.Sub(e.learning.LastEvolution) < e.cfg.EvolutionInterval {
		return "", nil
	}
	if len(e.learning.SuccessfulProfiles) < minEvolutionHistory {
		return "", nil
	}

	tally := map[string]int{}
	best, bestCount := "", 0
	for _, use := range e.learning.SuccessfulProfiles {
		tally[use.Profile]++
		if tally[use.Profile] > bestCount {
			best, bestCount = use.Profile, tally[use.Profile]
		}
	}
	base, ok := e.profiles[best]
	if !ok {
		return "", fmt.Errorf("%w: most successful profile %q no longer in catalog", ErrUnknownProfile, best)
	}

	evolved := perturb(e.rng, base)
	if err := validateParams(evolved); err != nil {
		return "", fmt.Errorf("evolved variant of %q failed validation: %w", best, err)
	}

	name := fmt.Sprintf("%s_evolved_%d", best, now.Unix())
	e.profiles[name] = evolved
	e.learning.LastEvolution = now

	persistErr := e.saveLearningLocked()

	// TODO: wire evolved variants into low-risk selection once their win
	// rate can be compared against the base profile.
	e.logger.Info("Evolved profile variant registered",
		zap.String("name", name),
		zap.String("base", best),
		zap.Int("base_applications", bestCount))
	return name, persistErr
}

// RegisterSessionOutcome records a finished session. Warnings re-enter the
// engine as warning signals; a failed session counts as a suspicious event
// and registers a severity-2 performance anomaly.
func (e *Engine) RegisterSessionOutcome(success bool, warnings int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcome := schemas.SessionOutcome{
		ID:        uuid.New().String(),
		Timestamp: e.now(),
		Success:   success,
		Warnings:  warnings,
		Profile:   e.activeProfile,
		RiskLevel: e.currentRisk,
	}
	e.stats.Sessions = append(e.stats.Sessions, outcome)

	var firstErr error
	if warnings > 0 {
		if err := e.registerSignalLocked(schemas.SignalWarning, warnings); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if !success {
		e.suspiciousEvents++
		e.stats.SuspiciousEvents = e.suspiciousEvents
		if err := e.registerSignalLocked(schemas.SignalPerformanceAnomaly, 2); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := e.saveStatsLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	e.logger.Info("Session outcome recorded",
		zap.Bool("success", success),
		zap.Int("warnings", warnings))
	return firstErr
}

// ResetFlags clears every sticky detection flag. This is the explicit
// operator action the fail-safe design requires; nothing clears the flags
// automatically.
func (e *Engine) ResetFlags() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.flags = make(map[schemas.SignalKind]bool)
	e.stats.ActiveFlags = map[schemas.SignalKind]bool{}
	e.currentRisk = scoreRisk(e.ring, e.flags, e.suspiciousEvents, e.now())

	e.logger.Warn("Sticky detection flags cleared by operator")
	return e.saveStatsLocked()
}

// CurrentProfile returns the active profile's name.
func (e *Engine) CurrentProfile() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeProfile
}

// ActiveProfile returns a copy of the active profile's parameters.
func (e *Engine) ActiveProfile() schemas.ProfileParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profiles[e.activeProfile]
}

// CurrentRisk returns the most recently computed risk level.
func (e *Engine) CurrentRisk() schemas.RiskLevel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentRisk
}

// Limits returns the externally visible limits snapshot for the active
// profile.
func (e *Engine) Limits() schemas.Limits {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limits
}

// Stats returns a snapshot of adaptation state for status surfaces.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	flags := make(map[schemas.SignalKind]bool, len(e.flags))
	for k, v := range e.flags {
		flags[k] = v
	}
	recent := 0
	now := e.now()
	for _, sig := range e.ring {
		if now.Sub(sig.Timestamp) < recentWindow {
			recent++
		}
	}
	var evolved []string
	for name := range e.profiles {
		if _, builtin := builtinProfiles[name]; !builtin {
			evolved = append(evolved, name)
		}
	}
	sort.Strings(evolved)

	return Stats{
		CurrentProfile:   e.activeProfile,
		CurrentRisk:      e.currentRisk,
		AdaptationCount:  e.adaptationCount,
		SessionCount:     len(e.stats.Sessions),
		SuspiciousEvents: e.suspiciousEvents,
		ActiveFlags:      flags,
		RecentDetections: recent,
		EvolvedProfiles:  evolved,
	}
}

// SignalRingLen reports the in-memory signal count, for tests and status.
func (e *Engine) SignalRingLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ring)
}

func (e *Engine) saveLearningLocked() error {
	if err := e.store.SaveLearning(e.learning); err != nil {
		e.logger.Error("Learning log persistence failed, continuing non-durable", zap.Error(err))
		return err
	}
	return nil
}

func (e *Engine) saveStatsLocked() error {
	if err := e.store.SaveStats(e.stats); err != nil {
		e.logger.Error("Stats persistence failed, continuing non-durable", zap.Error(err))
		return err
	}
	return nil
}
