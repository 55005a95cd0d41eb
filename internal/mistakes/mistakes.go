// Package mistakes decides when the automation layer should make a
// deliberate human-style error. Flawless input is a detection signature, so
// the model injects misses and slips at a rate driven by the active profile.
package mistakes

import (
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/nightglove/cadence/api/schemas"
)

// Kind enumerates the simulated error classes the action layer knows how to
// perform.
type Kind string

const (
	MissClick    Kind = "miss_click"
	WrongKey     Kind = "wrong_key"
	DelayTooLong Kind = "delay_too_long"
	CancelAction Kind = "cancel_action"
)

var kinds = []Kind{MissClick, WrongKey, DelayTooLong, CancelAction}

// ProfileSource supplies the currently active behavior profile.
type ProfileSource interface {
	ActiveProfile() schemas.ProfileParams
}

// Model holds the per-session error persona. Click and key accuracy are
// fixed at construction, like a player's skill on a given day; the error
// probability is read live from the active profile so adaptations take
// effect immediately.
type Model struct {
	mu       sync.Mutex
	rng      *rand.Rand
	logger   *zap.Logger
	profiles ProfileSource

	// performance returns the current good-day/bad-day factor. Errors get
	// more likely on bad days. May be nil.
	performance func() float64

	clickAccuracy float64
	keyAccuracy   float64
}

// New builds a Model. The performance func may be nil (neutral days only).
func New(profiles ProfileSource, performance func() float64, logger *zap.Logger, rng *rand.Rand) *Model {
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(rand.Uint64())))
	}
	m := &Model{
		rng:         rng,
		logger:      logger.Named("mistakes"),
		profiles:    profiles,
		performance: performance,
	}

	precision := 0.95
	if profiles != nil {
		if p := profiles.ActiveProfile().Precision; p > 0 {
			precision = p
		}
	}
	// Clicks land a touch worse than the profile's precision, keys a touch
	// better; both are sampled once so the persona is stable for the session.
	m.clickAccuracy = precision - 0.03 + rng.Float64()*0.03
	m.keyAccuracy = precision + rng.Float64()*0.02
	if m.keyAccuracy > 0.999 {
		m.keyAccuracy = 0.999
	}
	return m
}

// ShouldErr reports whether the next action should include a simulated
// mistake. Low performance days amplify the profile's base probability by
// half again.
func (m *Model) ShouldErr() bool {
	prob := 0.02
	if m.profiles != nil {
		if p := m.profiles.ActiveProfile().ErrorProbability; p > 0 {
			prob = p
		}
	}
	if m.performance != nil && m.performance() < 0.9 {
		prob *= 1.5
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64() < prob
}

// Pick returns a uniformly random error kind.
func (m *Model) Pick() Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return kinds[m.rng.Intn(len(kinds))]
}

// ClickOffset returns a pixel offset to apply to the next click target.
// Lower accuracy widens the scatter; a perfectly accurate persona still gets
// offset zero rather than an error.
func (m *Model) ClickOffset() (dx, dy int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	max := int((1.0 - m.clickAccuracy) * 10)
	if max <= 0 {
		return 0, 0
	}
	dx = m.rng.Intn(2*max+1) - max
	dy = m.rng.Intn(2*max+1) - max
	return dx, dy
}

// ShouldMissKey reports whether the next keystroke should slip.
func (m *Model) ShouldMissKey() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64() < 1.0-m.keyAccuracy
}

// Accuracies exposes the sampled session persona, mainly for status output.
func (m *Model) Accuracies() (click, key float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clickAccuracy, m.keyAccuracy
}
