// Package limiter enforces daily action caps, break scheduling and
// calendar-aware avoidance for the automation layers. All limits derive from
// the active behavior profile; the limiter itself never emits actions, it
// only answers whether the caller should.
package limiter

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nightglove/cadence/api/schemas"
	"github.com/nightglove/cadence/internal/store"
)

// Action kinds tracked against daily caps.
const (
	ActionMatch = "match"
	ActionTrade = "trade"
)

// weekdayWeights models how much a typical player plays on each day.
// Low-weight days both raise the skip-day chance and trigger extra
// avoidance.
var weekdayWeights = map[time.Weekday]float64{
	time.Monday:    0.6,
	time.Tuesday:   0.7,
	time.Wednesday: 0.8,
	time.Thursday:  0.9,
	time.Friday:    1.0,
	time.Saturday:  0.9,
	time.Sunday:    0.8,
}

// ProfileSource supplies the currently active behavior profile.
type ProfileSource interface {
	ActiveProfile() schemas.ProfileParams
}

// Config holds the limiter's construction-time settings. Zero values are
// replaced by the defaults the engine ships with.
type Config struct {
	MaxSessionHours    float64
	MinBreakDuration   time.Duration
	MaxBreakDuration   time.Duration
	BreakProbability   float64
	AvoidPeakHours     bool
	PeakHoursStart     int
	PeakHoursEnd       int
	MaxDailyMatches    int
	MaxDailyTrades     int
	WeekdayVariation   bool
	SkipDayProbability float64
}

func (c *Config) applyDefaults() {
	if c.MaxSessionHours <= 0 {
		c.MaxSessionHours = 4
	}
	if c.MinBreakDuration <= 0 {
		c.MinBreakDuration = 30 * time.Minute
	}
	if c.MaxBreakDuration <= 0 {
		c.MaxBreakDuration = 2 * time.Hour
	}
	if c.BreakProbability <= 0 {
		c.BreakProbability = 0.15
	}
	if c.MaxDailyMatches <= 0 {
		c.MaxDailyMatches = 20
	}
	if c.MaxDailyTrades <= 0 {
		c.MaxDailyTrades = 50
	}
	if c.SkipDayProbability <= 0 {
		c.SkipDayProbability = 0.15
	}
}

// SessionStats is a read-only snapshot of the running session.
type SessionStats struct {
	Duration     time.Duration
	ActionCount  int
	DailyMatches int
	DailyTrades  int
	IsPeakHour   bool
	Weekday      string
}

// Limiter tracks per-day counters and the session clock. Mutating methods
// serialize through one mutex; callers get plain answers, never references
// into internal state.
type Limiter struct {
	cfg      Config
	logger   *zap.Logger
	profiles ProfileSource
	store    store.Store

	mu            sync.Mutex
	rng           *rand.Rand
	now           func() time.Time
	matchesUsed   int
	tradesUsed    int
	lastResetDate time.Time
	sessionStart  time.Time
	lastBreakTime time.Time
	actionCount   int

	// Sequence repetition guard.
	lastSequence []string
	sequenceRing []string
}

// Option customizes a Limiter, mainly for deterministic tests.
type Option func(*Limiter)

// WithRand injects the random source.
func WithRand(rng *rand.Rand) Option {
	return func(l *Limiter) { l.rng = rng }
}

// WithClock injects the wall-clock reader.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New builds a Limiter. The profile source may be nil, in which case the
// config fallbacks apply. The store may be nil for purely in-memory use;
// with a store, same-day counters and the break clock survive a restart, so
// a process bounce cannot re-grant the daily allowance.
func New(cfg Config, profiles ProfileSource, st store.Store, logger *zap.Logger, opts ...Option) *Limiter {
	cfg.applyDefaults()
	l := &Limiter{
		cfg:      cfg,
		logger:   logger.Named("limiter"),
		profiles: profiles,
		store:    st,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.rng == nil {
		l.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	start := l.now()
	l.sessionStart = start
	l.lastBreakTime = start
	l.lastResetDate = dateOf(start)
	l.restoreState(start)
	return l
}

// restoreState reloads the persisted daily-pacing state. Stale state from an
// earlier date is discarded; load failures degrade to fresh counters.
func (l *Limiter) restoreState(start time.Time) {
	if l.store == nil {
		return
	}
	state, err := l.store.LoadLimiter()
	if err != nil {
		l.logger.Error("Failed to load limiter state, starting fresh", zap.Error(err))
		return
	}
	if !dateOf(state.LastResetDate).Equal(dateOf(start)) {
		return
	}
	l.matchesUsed = state.DailyMatches
	l.tradesUsed = state.DailyTrades
	l.lastResetDate = dateOf(state.LastResetDate)
	if !state.LastBreakTime.IsZero() && state.LastBreakTime.Before(start) {
		l.lastBreakTime = state.LastBreakTime
	}
	l.logger.Info("Restored daily pacing state",
		zap.Int("matches_used", l.matchesUsed),
		zap.Int("trades_used", l.tradesUsed))
}

// CheckDailyLimit reports whether one more action of the given kind fits
// within today's cap, incrementing the counter when it does. Unknown kinds
// are always allowed and not counted.
func (l *Limiter) CheckDailyLimit(kind string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDailyLocked()

	switch kind {
	case ActionMatch:
		if l.matchesUsed >= l.maxMatchesLocked() {
			l.logger.Warn("Daily match limit reached", zap.Int("limit", l.maxMatchesLocked()))
			return false
		}
		l.matchesUsed++
		l.saveStateLocked()
		return true
	case ActionTrade:
		if l.tradesUsed >= l.maxTradesLocked() {
			l.logger.Warn("Daily trade limit reached", zap.Int("limit", l.maxTradesLocked()))
			return false
		}
		l.tradesUsed++
		l.saveStateLocked()
		return true
	}
	return true
}

// ShouldTakeBreak reports whether the caller should suspend activity: always
// once the session exceeds its ceiling, otherwise probabilistically when at
// least half the minimum break length has passed since the last one.
func (l *Limiter) ShouldTakeBreak() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDailyLocked()

	sessionDur := l.now().Sub(l.sessionStart)
	if sessionDur > time.Duration(l.cfg.MaxSessionHours*float64(time.Hour)) {
		l.logger.Info("Session ceiling exceeded, break recommended",
			zap.Duration("session", sessionDur))
		return true
	}

	if l.rng.Float64() < l.breakProbabilityLocked() {
		if l.now().Sub(l.lastBreakTime) > l.cfg.MinBreakDuration/2 {
			return true
		}
	}
	return false
}

// TakeBreak draws a break length in [min, max] and resets the break clock.
// The duration is advisory: the caller owns the sleep and must keep watching
// its own cancellation signal while suspended.
func (l *Limiter) TakeBreak() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	span := float64(l.cfg.MaxBreakDuration - l.cfg.MinBreakDuration)
	d := l.cfg.MinBreakDuration + time.Duration(l.rng.Float64()*span)
	l.lastBreakTime = l.now()
	l.saveStateLocked()

	l.logger.Warn("Camouflage break scheduled", zap.Duration("duration", d))
	return d
}

// ShouldAvoidAction composes the independent avoidance checks: skipping the
// whole day, dodging peak hours, and backing off on low-traffic weekdays.
// Any one triggering is enough.
func (l *Limiter) ShouldAvoidAction() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDailyLocked()

	if l.shouldSkipTodayLocked() {
		l.logger.Info("Skipping the day to mimic an intermittent player")
		return true
	}

	if l.isPeakHourLocked() && l.rng.Float64() < 0.3 {
		return true
	}

	if l.weekdayModifierLocked() < 0.7 && l.rng.Float64() < 0.4 {
		return true
	}
	return false
}

// RecordAction appends the action to the session sequence and reports
// whether the trailing pattern has become repetitive. A true return means
// the caller should vary its next actions; the tracked sequence is reset so
// the warning fires once per streak.
func (l *Limiter) RecordAction(kind string) (repetitive bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actionCount++

	l.lastSequence = append(l.lastSequence, kind)
	if len(l.lastSequence) > 5 {
		l.lastSequence = l.lastSequence[1:]
	}
	if len(l.lastSequence) < 3 {
		return false
	}

	gram := strings.Join(l.lastSequence[len(l.lastSequence)-3:], "->")
	count := 0
	for _, seen := range l.sequenceRing {
		if seen == gram {
			count++
		}
	}
	if count > 2 {
		l.logger.Warn("Repetitive action sequence detected", zap.String("sequence", gram))
		l.lastSequence = nil
		return true
	}

	if len(l.sequenceRing) >= 20 {
		copy(l.sequenceRing, l.sequenceRing[1:])
		l.sequenceRing = l.sequenceRing[:19]
	}
	l.sequenceRing = append(l.sequenceRing, gram)
	return false
}

// Stats returns a snapshot of the current session.
func (l *Limiter) Stats() SessionStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDailyLocked()

	return SessionStats{
		Duration:     l.now().Sub(l.sessionStart),
		ActionCount:  l.actionCount,
		DailyMatches: l.matchesUsed,
		DailyTrades:  l.tradesUsed,
		IsPeakHour:   l.isPeakHourLocked(),
		Weekday:      l.now().Weekday().String(),
	}
}

// resetDailyLocked zeroes the daily counters when the local date advances.
func (l *Limiter) resetDailyLocked() {
	today := dateOf(l.now())
	if !today.Equal(l.lastResetDate) {
		l.matchesUsed = 0
		l.tradesUsed = 0
		l.lastResetDate = today
		l.saveStateLocked()
		l.logger.Info("Daily counters reset")
	}
}

// saveStateLocked flushes the daily-pacing snapshot. Failures are logged and
// the limiter continues non-durable; pacing must never block on disk.
func (l *Limiter) saveStateLocked() {
	if l.store == nil {
		return
	}
	err := l.store.SaveLimiter(schemas.LimiterState{
		DailyMatches:  l.matchesUsed,
		DailyTrades:   l.tradesUsed,
		LastResetDate: l.lastResetDate,
		LastBreakTime: l.lastBreakTime,
	})
	if err != nil {
		l.logger.Error("Limiter state persistence failed, continuing non-durable", zap.Error(err))
	}
}

func (l *Limiter) shouldSkipTodayLocked() bool {
	if !l.cfg.WeekdayVariation {
		return false
	}
	// Someone already mid-session today keeps playing.
	if l.matchesUsed > 0 || l.tradesUsed > 0 {
		return false
	}
	weight := weekdayWeights[l.now().Weekday()]
	skipChance := (1.0 - weight) * l.cfg.SkipDayProbability
	return l.rng.Float64() < skipChance
}

func (l *Limiter) isPeakHourLocked() bool {
	if !l.cfg.AvoidPeakHours {
		return false
	}
	hour := l.now().Hour()
	return hour >= l.cfg.PeakHoursStart && hour < l.cfg.PeakHoursEnd
}

func (l *Limiter) weekdayModifierLocked() float64 {
	if !l.cfg.WeekdayVariation {
		return 1.0
	}
	return weekdayWeights[l.now().Weekday()]
}

func (l *Limiter) maxMatchesLocked() int {
	if l.profiles != nil {
		if m := l.profiles.ActiveProfile().MaxDailyMatches; m > 0 {
			return m
		}
	}
	return l.cfg.MaxDailyMatches
}

func (l *Limiter) maxTradesLocked() int {
	if l.profiles != nil {
		if m := l.profiles.ActiveProfile().MaxDailyTrades; m > 0 {
			return m
		}
	}
	return l.cfg.MaxDailyTrades
}

func (l *Limiter) breakProbabilityLocked() float64 {
	if l.profiles != nil {
		if p := l.profiles.ActiveProfile().BreakProbability; p > 0 {
			return p
		}
	}
	return l.cfg.BreakProbability
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
