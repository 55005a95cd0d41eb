package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightglove/cadence/api/schemas"
)

func TestSelectProfile_DeterministicUnderPressure(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 100; i++ {
		assert.Equal(t, ProfileConservative, selectProfile(rng, schemas.RiskCritical, nil))
		assert.Equal(t, ProfileConservative, selectProfile(rng, schemas.RiskHigh, nil))
		assert.Equal(t, ProfileNormal, selectProfile(rng, schemas.RiskMedium, nil))
	}
}

func TestSelectProfile_LowRiskMix(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	aggressive := 0
	const trials = 1000
	for i := 0; i < trials; i++ {
		switch selectProfile(rng, schemas.RiskLow, nil) {
		case ProfileAggressive:
			aggressive++
		case ProfileNormal:
		default:
			t.Fatal("low risk must only yield normal or aggressive")
		}
	}
	// 30% aggressive with generous slack for the fixed seed.
	assert.InDelta(t, 0.30, float64(aggressive)/trials, 0.05)
}

func TestPerturb_StaysInsideEnvelope(t *testing.T) {
	rng := rand.New(rand.NewSource(99))

	for name, base := range builtinProfiles {
		for i := 0; i < 200; i++ {
			p := perturb(rng, base)
			require.NoError(t, validateParams(p), "variant of %s", name)

			assert.GreaterOrEqual(t, p.ErrorProbability, 0.01)
			assert.LessOrEqual(t, p.ErrorProbability, 0.03)
			assert.GreaterOrEqual(t, p.DelayMultiplier, 0.7)
			assert.LessOrEqual(t, p.DelayMultiplier, 1.5)
			assert.GreaterOrEqual(t, p.BreakProbability, 0.10)
			assert.LessOrEqual(t, p.BreakProbability, 0.25)
			assert.GreaterOrEqual(t, p.MaxDailyMatches, 15)
			assert.LessOrEqual(t, p.MaxDailyMatches, 25)
			assert.GreaterOrEqual(t, p.MaxDailyTrades, 30)
			assert.LessOrEqual(t, p.MaxDailyTrades, 70)
			assert.GreaterOrEqual(t, p.Precision, 0.92)
			assert.LessOrEqual(t, p.Precision, 0.97)
			assert.GreaterOrEqual(t, p.ReactionTimeBase, 0.15)
			assert.LessOrEqual(t, p.ReactionTimeBase, 0.25)
		}
	}
}

func TestPerturb_ActuallyMoves(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	base := builtinProfiles[ProfileNormal]
	moved := false
	for i := 0; i < 10; i++ {
		if perturb(rng, base) != base {
			moved = true
			break
		}
	}
	assert.True(t, moved, "evolution that never changes anything learns nothing")
}

func TestValidateParams_RejectsBadBundles(t *testing.T) {
	good := builtinProfiles[ProfileNormal]

	bad := good
	bad.ErrorProbability = 1.2
	assert.Error(t, validateParams(bad))

	bad = good
	bad.DelayMultiplier = 0
	assert.Error(t, validateParams(bad))

	bad = good
	bad.MaxDailyMatches = 0
	assert.Error(t, validateParams(bad))

	bad = good
	bad.ReactionTimeBase = -0.1
	assert.Error(t, validateParams(bad))

	assert.NoError(t, validateParams(good))
}
