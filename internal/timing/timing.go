// Package timing generates statistically varied, human-looking durations for
// the input-emitting layers. The sampler feeds every value it returns back
// into its own history, so output drifts toward its recent past instead of
// hugging a fixed distribution. That autocorrelation is the point: uniform
// or memoryless timing is what detection heuristics look for.
package timing

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"

	"github.com/nightglove/cadence/api/schemas"
)

const (
	// windowCapacity bounds the rolling sample history.
	windowCapacity = 50
	// minSamplesForStats is the history size below which the sampler falls
	// back to bounds-derived estimates.
	minSamplesForStats = 10

	// perfUpdateInterval limits how often the performance factor drifts.
	perfUpdateInterval = time.Hour
	perfMin            = 0.7
	perfMax            = 1.3
)

// ProfileSource supplies the currently active behavior profile. The engine
// implements it; a nil source means neutral parameters.
type ProfileSource interface {
	ActiveProfile() schemas.ProfileParams
}

// delayRanges maps a named interaction context to its nominal bounds.
var delayRanges = map[string][2]time.Duration{
	"menu_navigation": {800 * time.Millisecond, 2500 * time.Millisecond},
	"button_click":    {300 * time.Millisecond, 1200 * time.Millisecond},
	"text_input":      {500 * time.Millisecond, 1800 * time.Millisecond},
	"match_action":    {200 * time.Millisecond, 800 * time.Millisecond},
	"thinking":        {1500 * time.Millisecond, 4 * time.Second},
	"general":         {500 * time.Millisecond, 2 * time.Second},
}

type sample struct {
	context  string
	duration time.Duration
}

// Sampler draws context-tagged durations from a self-reinforcing history.
type Sampler struct {
	mu       sync.Mutex
	rng      *rand.Rand
	now      func() time.Time
	logger   *zap.Logger
	profiles ProfileSource

	window []sample

	// Good-day/bad-day drift. Perlin noise keeps consecutive updates
	// close, mirroring a person's energy changing gradually over hours.
	perf        float64
	perfUpdated time.Time
	noise       *perlin.Perlin
	noiseT      float64

	reactionVariation float64
}

// Option customizes a Sampler, mainly for deterministic tests.
type Option func(*Sampler)

// WithRand injects the random source.
func WithRand(rng *rand.Rand) Option {
	return func(s *Sampler) { s.rng = rng }
}

// WithClock injects the wall-clock reader.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// NewSampler builds a Sampler bound to the given profile source. A nil
// source yields neutral (multiplier 1.0) behavior.
func NewSampler(profiles ProfileSource, logger *zap.Logger, opts ...Option) *Sampler {
	s := &Sampler{
		now:      time.Now,
		logger:   logger.Named("timing"),
		profiles: profiles,
		perf:     1.0,
		window:   make([]sample, 0, windowCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	seed := s.rng.Int63()
	s.noise = perlin.NewPerlin(2.0, 2.0, 3, seed)
	s.noiseT = s.rng.Float64() * 100
	s.perfUpdated = s.now()
	s.reactionVariation = 0.05 + s.rng.Float64()*0.10
	return s
}

// Sample returns a randomized duration for the given context. The result is
// drawn from a normal distribution centered on the empirical mean of recent
// output (or the midpoint of the bounds when history is thin), scaled by
// half the empirical std, then jittered uniformly by ±20% of the range. The
// value is clamped to [lo/2, hi*2] and appended to the history.
func (s *Sampler) Sample(context string, lo, hi time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	mean, std := s.estimateLocked(lo, hi)

	d := time.Duration(mean + s.rng.NormFloat64()*std*0.5)

	span := float64(hi - lo)
	d += time.Duration((s.rng.Float64()*2 - 1) * 0.2 * span)

	if min := lo / 2; d < min {
		d = min
	}
	if max := hi * 2; d > max {
		d = max
	}

	s.appendLocked(sample{context: context, duration: d})
	return d
}

// HumanDelay returns a delay for a named interaction context, scaled by the
// active profile's delay multiplier. Unknown contexts fall back to
// "general". Occasionally the upper bound doubles, imitating a distracted
// moment.
func (s *Sampler) HumanDelay(context string) time.Duration {
	bounds, ok := delayRanges[context]
	if !ok {
		bounds = delayRanges["general"]
	}
	lo, hi := bounds[0], bounds[1]

	mult := 1.0
	if s.profiles != nil {
		if m := s.profiles.ActiveProfile().DelayMultiplier; m > 0 {
			mult = m
		}
	}
	lo = time.Duration(float64(lo) * mult)
	hi = time.Duration(float64(hi) * mult)

	s.mu.Lock()
	distracted := s.rng.Float64() < 0.1
	s.mu.Unlock()
	if distracted {
		hi *= 2
	}

	return s.Sample(context, lo, hi)
}

// ReactionTime draws a human reaction time from the active profile's base,
// widened when the performance factor says it is a bad day. The result is
// clamped to [100ms, 500ms].
func (s *Sampler) ReactionTime() time.Duration {
	base := 0.20
	if s.profiles != nil {
		if b := s.profiles.ActiveProfile().ReactionTimeBase; b > 0 {
			base = b
		}
	}
	perf := s.PerformanceFactor()

	s.mu.Lock()
	variation := s.reactionVariation * (2 - perf)
	secs := base + s.rng.NormFloat64()*variation
	s.mu.Unlock()

	if secs < 0.1 {
		secs = 0.1
	}
	if secs > 0.5 {
		secs = 0.5
	}
	return time.Duration(secs * float64(time.Second))
}

// MicroPause occasionally asks the caller to insert a short stall, imitating
// human processing hiccups. The second return is false when no pause is due.
func (s *Sampler) MicroPause() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng.Float64() >= 0.15 {
		return 0, false
	}
	return time.Duration(100+s.rng.Float64()*400) * time.Millisecond, true
}

// PerformanceFactor returns the current good-day/bad-day multiplier in
// [0.7, 1.3]. It re-evaluates at most once per hour so the drift stays
// gradual.
func (s *Sampler) PerformanceFactor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.now().Sub(s.perfUpdated) >= perfUpdateInterval {
		s.noiseT += 0.1
		drift := s.noise.Noise1D(s.noiseT)
		s.perf = clampFloat(1.0+0.3*drift, perfMin, perfMax)
		s.perfUpdated = s.now()
		s.logger.Debug("Performance factor updated", zap.Float64("factor", s.perf))
	}
	return s.perf
}

// WindowSize reports how many samples the rolling history currently holds.
func (s *Sampler) WindowSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.window)
}

func (s *Sampler) estimateLocked(lo, hi time.Duration) (mean, std float64) {
	if len(s.window) <= minSamplesForStats {
		return float64(lo+hi) / 2, float64(hi-lo) / 4
	}

	var sum float64
	for _, smp := range s.window {
		sum += float64(smp.duration)
	}
	mean = sum / float64(len(s.window))

	var sq float64
	for _, smp := range s.window {
		diff := float64(smp.duration) - mean
		sq += diff * diff
	}
	std = math.Sqrt(sq / float64(len(s.window)))
	return mean, std
}

func (s *Sampler) appendLocked(smp sample) {
	if len(s.window) >= windowCapacity {
		copy(s.window, s.window[1:])
		s.window = s.window[:windowCapacity-1]
	}
	s.window = append(s.window, smp)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
