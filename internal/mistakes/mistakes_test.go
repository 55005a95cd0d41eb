package mistakes

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/nightglove/cadence/api/schemas"
)

type stubProfiles struct {
	params schemas.ProfileParams
}

func (s *stubProfiles) ActiveProfile() schemas.ProfileParams { return s.params }

func newTestModel(t *testing.T, precision, errProb float64, perf func() float64, seed int64) *Model {
	t.Helper()
	src := &stubProfiles{params: schemas.ProfileParams{
		Precision:        precision,
		ErrorProbability: errProb,
	}}
	return New(src, perf, zaptest.NewLogger(t), rand.New(rand.NewSource(seed)))
}

func TestShouldErr_TracksProfileProbability(t *testing.T) {
	m := newTestModel(t, 0.95, 0.02, nil, 1)

	errs := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		if m.ShouldErr() {
			errs++
		}
	}
	assert.InDelta(t, 0.02, float64(errs)/trials, 0.005)
}

func TestShouldErr_BadDayAmplifies(t *testing.T) {
	badDay := func() float64 { return 0.7 }
	m := newTestModel(t, 0.95, 0.02, badDay, 2)

	errs := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		if m.ShouldErr() {
			errs++
		}
	}
	assert.InDelta(t, 0.03, float64(errs)/trials, 0.005)
}

func TestPick_CoversAllKinds(t *testing.T) {
	m := newTestModel(t, 0.95, 0.02, nil, 3)

	seen := map[Kind]bool{}
	for i := 0; i < 200; i++ {
		seen[m.Pick()] = true
	}
	assert.Len(t, seen, 4)
}

func TestClickOffset_ScatterShrinksWithPrecision(t *testing.T) {
	sloppy := newTestModel(t, 0.80, 0.02, nil, 4)
	sharp := newTestModel(t, 0.99, 0.02, nil, 4)

	maxAbs := func(m *Model) int {
		worst := 0
		for i := 0; i < 500; i++ {
			dx, dy := m.ClickOffset()
			if abs(dx) > worst {
				worst = abs(dx)
			}
			if abs(dy) > worst {
				worst = abs(dy)
			}
		}
		return worst
	}

	assert.Greater(t, maxAbs(sloppy), maxAbs(sharp))
}

func TestClickOffset_PerfectPersonaStaysOnTarget(t *testing.T) {
	m := newTestModel(t, 0.999, 0.02, nil, 5)
	// Force a flawless persona regardless of the sampled jitter.
	m.clickAccuracy = 1.0

	for i := 0; i < 100; i++ {
		dx, dy := m.ClickOffset()
		assert.Zero(t, dx)
		assert.Zero(t, dy)
	}
}

func TestShouldMissKey_RateMatchesPersona(t *testing.T) {
	m := newTestModel(t, 0.95, 0.02, nil, 6)
	_, key := m.Accuracies()

	misses := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		if m.ShouldMissKey() {
			misses++
		}
	}
	assert.InDelta(t, 1.0-key, float64(misses)/trials, 0.01)
}

func TestAccuracies_AnchoredToProfilePrecision(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		m := newTestModel(t, 0.95, 0.02, nil, seed)
		click, key := m.Accuracies()

		assert.GreaterOrEqual(t, click, 0.92)
		assert.LessOrEqual(t, click, 0.95)
		assert.GreaterOrEqual(t, key, 0.95)
		assert.LessOrEqual(t, key, 0.999)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
