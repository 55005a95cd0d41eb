package limiter

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/nightglove/cadence/api/schemas"
	"github.com/nightglove/cadence/internal/store"
)

type stubProfiles struct {
	params schemas.ProfileParams
}

func (s *stubProfiles) ActiveProfile() schemas.ProfileParams { return s.params }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newTestLimiter(t *testing.T, cfg Config, src ProfileSource, seed int64) (*Limiter, *testClock) {
	t.Helper()
	// A Tuesday morning, outside every peak window used in the tests.
	clock := &testClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}
	l := New(cfg, src, nil, zaptest.NewLogger(t),
		WithRand(rand.New(rand.NewSource(seed))),
		WithClock(clock.Now),
	)
	return l, clock
}

func TestCheckDailyLimit_ProfileCapsWin(t *testing.T) {
	src := &stubProfiles{params: schemas.ProfileParams{MaxDailyMatches: 3, MaxDailyTrades: 2}}
	l, _ := newTestLimiter(t, Config{}, src, 1)

	for i := 0; i < 3; i++ {
		assert.True(t, l.CheckDailyLimit(ActionMatch), "match %d should fit", i+1)
	}
	assert.False(t, l.CheckDailyLimit(ActionMatch), "fourth match exceeds the cap")

	assert.True(t, l.CheckDailyLimit(ActionTrade))
	assert.True(t, l.CheckDailyLimit(ActionTrade))
	assert.False(t, l.CheckDailyLimit(ActionTrade))
}

func TestCheckDailyLimit_UnknownKindsUncounted(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxDailyMatches: 1}, nil, 2)

	for i := 0; i < 10; i++ {
		assert.True(t, l.CheckDailyLimit("chat"))
	}
	stats := l.Stats()
	assert.Zero(t, stats.DailyMatches)
	assert.Zero(t, stats.DailyTrades)
}

func TestCheckDailyLimit_ResetsOnDateChange(t *testing.T) {
	l, clock := newTestLimiter(t, Config{MaxDailyMatches: 2}, nil, 3)

	assert.True(t, l.CheckDailyLimit(ActionMatch))
	assert.True(t, l.CheckDailyLimit(ActionMatch))
	assert.False(t, l.CheckDailyLimit(ActionMatch))

	// Crossing midnight resets the counters exactly once.
	clock.Advance(24 * time.Hour)
	assert.True(t, l.CheckDailyLimit(ActionMatch))
	assert.Equal(t, 1, l.Stats().DailyMatches)
}

func TestShouldTakeBreak_SessionCeilingIsUnconditional(t *testing.T) {
	l, clock := newTestLimiter(t, Config{MaxSessionHours: 2}, nil, 4)

	clock.Advance(2*time.Hour + time.Minute)
	for i := 0; i < 20; i++ {
		assert.True(t, l.ShouldTakeBreak())
	}
}

func TestShouldTakeBreak_SilentRightAfterABreak(t *testing.T) {
	l, clock := newTestLimiter(t, Config{
		MaxSessionHours:  100,
		MinBreakDuration: time.Hour,
		BreakProbability: 1.0,
	}, nil, 5)

	l.TakeBreak()
	// Under half the minimum break length since the last one: never again,
	// even at probability one.
	clock.Advance(20 * time.Minute)
	for i := 0; i < 50; i++ {
		assert.False(t, l.ShouldTakeBreak())
	}

	clock.Advance(15 * time.Minute)
	assert.True(t, l.ShouldTakeBreak())
}

func TestTakeBreak_DurationInConfiguredRange(t *testing.T) {
	cfg := Config{MinBreakDuration: 30 * time.Minute, MaxBreakDuration: 2 * time.Hour}
	l, _ := newTestLimiter(t, cfg, nil, 6)

	for i := 0; i < 200; i++ {
		d := l.TakeBreak()
		assert.GreaterOrEqual(t, d, cfg.MinBreakDuration)
		assert.LessOrEqual(t, d, cfg.MaxBreakDuration)
	}
}

func TestShouldAvoidAction_QuietConfigNeverAvoids(t *testing.T) {
	l, _ := newTestLimiter(t, Config{}, nil, 7)

	for i := 0; i < 100; i++ {
		assert.False(t, l.ShouldAvoidAction())
	}
}

func TestShouldAvoidAction_PeakHoursBackOff(t *testing.T) {
	cfg := Config{AvoidPeakHours: true, PeakHoursStart: 18, PeakHoursEnd: 23}
	l, clock := newTestLimiter(t, cfg, nil, 8)

	clock.Set(time.Date(2026, 3, 10, 20, 0, 0, 0, time.Local))
	avoided := 0
	const trials = 1000
	for i := 0; i < trials; i++ {
		if l.ShouldAvoidAction() {
			avoided++
		}
	}
	assert.InDelta(t, 0.3, float64(avoided)/trials, 0.05)
}

func TestShouldAvoidAction_LowTrafficWeekday(t *testing.T) {
	l, clock := newTestLimiter(t, Config{WeekdayVariation: true, SkipDayProbability: 1e-9}, nil, 9)

	// Monday carries weight 0.6, below the 0.7 back-off line.
	clock.Set(time.Date(2026, 3, 9, 9, 0, 0, 0, time.Local))
	l.CheckDailyLimit(ActionMatch) // mid-session, so the skip-day gate stays closed

	avoided := 0
	const trials = 1000
	for i := 0; i < trials; i++ {
		if l.ShouldAvoidAction() {
			avoided++
		}
	}
	assert.InDelta(t, 0.4, float64(avoided)/trials, 0.05)
}

func TestShouldAvoidAction_SkipDayOnlyBeforeFirstAction(t *testing.T) {
	l, clock := newTestLimiter(t, Config{WeekdayVariation: true, SkipDayProbability: 0.15}, nil, 10)

	// Friday weight 1.0: skip chance is zero regardless.
	clock.Set(time.Date(2026, 3, 13, 9, 0, 0, 0, time.Local))
	for i := 0; i < 100; i++ {
		assert.False(t, l.ShouldAvoidAction())
	}
}

func TestRecordAction_FlagsRepetitionOncePerStreak(t *testing.T) {
	l, _ := newTestLimiter(t, Config{}, nil, 11)

	// The same three-action loop over and over eventually trips the guard.
	tripped := 0
	for i := 0; i < 30; i++ {
		for _, kind := range []string{"open", "click", "close"} {
			if l.RecordAction(kind) {
				tripped++
			}
		}
	}
	assert.Greater(t, tripped, 0, "a fixed loop must be flagged")

	stats := l.Stats()
	assert.Equal(t, 90, stats.ActionCount)
}

func TestRecordAction_VariedSequencesPass(t *testing.T) {
	l, _ := newTestLimiter(t, Config{}, nil, 12)

	kinds := []string{"a", "b", "c", "d", "e", "f", "g"}
	for i := 0; i < 100; i++ {
		kind := kinds[(i*3+i/7)%len(kinds)]
		assert.False(t, l.RecordAction(kind), "varied traffic should not trip the guard")
	}
}

func TestDailyCounters_SurviveRestart(t *testing.T) {
	st := store.NewMemoryStore()
	clock := &testClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}
	cfg := Config{MaxDailyTrades: 2, MaxDailyMatches: 3}

	l1 := New(cfg, nil, st, zaptest.NewLogger(t),
		WithRand(rand.New(rand.NewSource(20))), WithClock(clock.Now))
	assert.True(t, l1.CheckDailyLimit(ActionTrade))
	assert.True(t, l1.CheckDailyLimit(ActionTrade))
	assert.False(t, l1.CheckDailyLimit(ActionTrade))
	assert.True(t, l1.CheckDailyLimit(ActionMatch))

	// A fresh process on the same day sees the consumed allowance.
	clock.Advance(time.Hour)
	l2 := New(cfg, nil, st, zaptest.NewLogger(t),
		WithRand(rand.New(rand.NewSource(21))), WithClock(clock.Now))
	assert.False(t, l2.CheckDailyLimit(ActionTrade), "restart must not re-grant the daily allowance")
	assert.Equal(t, 1, l2.Stats().DailyMatches)

	// Crossing midnight discards the persisted counters as usual.
	clock.Advance(24 * time.Hour)
	l3 := New(cfg, nil, st, zaptest.NewLogger(t),
		WithRand(rand.New(rand.NewSource(22))), WithClock(clock.Now))
	assert.True(t, l3.CheckDailyLimit(ActionTrade))
	assert.Equal(t, 1, l3.Stats().DailyTrades)
}

func TestBreakClock_SurvivesRestart(t *testing.T) {
	st := store.NewMemoryStore()
	clock := &testClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}
	cfg := Config{
		MaxSessionHours:  100,
		MinBreakDuration: time.Hour,
		BreakProbability: 1.0,
	}

	l1 := New(cfg, nil, st, zaptest.NewLogger(t),
		WithRand(rand.New(rand.NewSource(23))), WithClock(clock.Now))
	l1.TakeBreak()

	// Ten minutes later a new process is still inside the cooldown.
	clock.Advance(10 * time.Minute)
	l2 := New(cfg, nil, st, zaptest.NewLogger(t),
		WithRand(rand.New(rand.NewSource(24))), WithClock(clock.Now))
	for i := 0; i < 50; i++ {
		assert.False(t, l2.ShouldTakeBreak())
	}

	clock.Advance(25 * time.Minute)
	assert.True(t, l2.ShouldTakeBreak())
}

func TestRestoreState_LoadFailureStartsFresh(t *testing.T) {
	st := store.NewMemoryStore()
	clock := &testClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}

	l1 := New(Config{MaxDailyMatches: 2}, nil, st, zaptest.NewLogger(t),
		WithRand(rand.New(rand.NewSource(25))), WithClock(clock.Now))
	assert.True(t, l1.CheckDailyLimit(ActionMatch))

	// Broken persistence degrades to fresh in-memory counters.
	st.FailLoads = assert.AnError
	l2 := New(Config{MaxDailyMatches: 2}, nil, st, zaptest.NewLogger(t),
		WithRand(rand.New(rand.NewSource(26))), WithClock(clock.Now))
	assert.True(t, l2.CheckDailyLimit(ActionMatch))
	assert.True(t, l2.CheckDailyLimit(ActionMatch))
	assert.False(t, l2.CheckDailyLimit(ActionMatch))
}

func TestStats_Snapshot(t *testing.T) {
	l, clock := newTestLimiter(t, Config{}, nil, 13)

	l.CheckDailyLimit(ActionMatch)
	l.CheckDailyLimit(ActionTrade)
	l.RecordAction(ActionMatch)
	clock.Advance(90 * time.Minute)

	stats := l.Stats()
	assert.Equal(t, 90*time.Minute, stats.Duration)
	assert.Equal(t, 1, stats.ActionCount)
	assert.Equal(t, 1, stats.DailyMatches)
	assert.Equal(t, 1, stats.DailyTrades)
	assert.Equal(t, "Tuesday", stats.Weekday)
	assert.False(t, stats.IsPeakHour)
}
