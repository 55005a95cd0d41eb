package engine

import (
	"fmt"
	"math/rand"

	"github.com/nightglove/cadence/api/schemas"
)

// Built-in profile names. These are the only names the selection policy ever
// returns; evolved variants are registered alongside them but must be applied
// explicitly.
const (
	ProfileConservative = "conservative"
	ProfileNormal       = "normal"
	ProfileAggressive   = "aggressive"
)

// builtinProfiles are immutable templates. Catalog copies are handed out by
// value, so nothing downstream can mutate them.
var builtinProfiles = map[string]schemas.ProfileParams{
	ProfileConservative: {
		ErrorProbability: 0.03,
		DelayMultiplier:  1.5,
		BreakProbability: 0.25,
		MaxDailyMatches:  15,
		MaxDailyTrades:   30,
		Precision:        0.92,
		ReactionTimeBase: 0.25,
	},
	ProfileNormal: {
		ErrorProbability: 0.02,
		DelayMultiplier:  1.0,
		BreakProbability: 0.15,
		MaxDailyMatches:  20,
		MaxDailyTrades:   50,
		Precision:        0.95,
		ReactionTimeBase: 0.20,
	},
	ProfileAggressive: {
		ErrorProbability: 0.01,
		DelayMultiplier:  0.7,
		BreakProbability: 0.10,
		MaxDailyMatches:  25,
		MaxDailyTrades:   70,
		Precision:        0.97,
		ReactionTimeBase: 0.15,
	},
}

// fieldBounds is the per-field envelope spanned by the built-in templates.
// Evolved variants are clamped into it so repeated evolution cannot walk a
// parameter out of the safe range.
type fieldBounds struct{ lo, hi float64 }

var evolutionBounds = computeEvolutionBounds()

func computeEvolutionBounds() map[string]fieldBounds {
	bounds := map[string]fieldBounds{}
	update := func(name string, v float64) {
		b, ok := bounds[name]
		if !ok {
			bounds[name] = fieldBounds{lo: v, hi: v}
			return
		}
		if v < b.lo {
			b.lo = v
		}
		if v > b.hi {
			b.hi = v
		}
		bounds[name] = b
	}
	for _, p := range builtinProfiles {
		update("error_probability", p.ErrorProbability)
		update("delay_multiplier", p.DelayMultiplier)
		update("break_probability", p.BreakProbability)
		update("max_daily_matches", float64(p.MaxDailyMatches))
		update("max_daily_trades", float64(p.MaxDailyTrades))
		update("precision", p.Precision)
		update("reaction_time_base", p.ReactionTimeBase)
	}
	return bounds
}

func clampToBounds(name string, v float64) float64 {
	b := bounds(name)
	if v < b.lo {
		return b.lo
	}
	if v > b.hi {
		return b.hi
	}
	return v
}

func bounds(name string) fieldBounds {
	b, ok := evolutionBounds[name]
	if !ok {
		return fieldBounds{lo: 0, hi: 1}
	}
	return b
}

// validateParams rejects parameter bundles that are out of their envelope.
// Used on evolved-profile insert; built-ins are trusted.
func validateParams(p schemas.ProfileParams) error {
	for _, pr := range []struct {
		name string
		v    float64
	}{
		{"error_probability", p.ErrorProbability},
		{"break_probability", p.BreakProbability},
		{"precision", p.Precision},
	} {
		if pr.v < 0 || pr.v > 1 {
			return fmt.Errorf("%s %.4f outside [0, 1]", pr.name, pr.v)
		}
	}
	if p.DelayMultiplier <= 0 {
		return fmt.Errorf("delay_multiplier %.4f must be positive", p.DelayMultiplier)
	}
	if p.MaxDailyMatches < 1 || p.MaxDailyTrades < 1 {
		return fmt.Errorf("daily caps must be at least 1")
	}
	if p.ReactionTimeBase <= 0 {
		return fmt.Errorf("reaction_time_base %.4f must be positive", p.ReactionTimeBase)
	}
	return nil
}

// selectProfile maps the computed risk level to a profile name. High and
// critical risk are deterministic; low risk keeps 30% bounded randomness so
// the engine never settles into a fully predictable cadence. The patterns
// argument is part of the contract for future weighting but does not steer
// the base policy; pattern pressure reaches this decision through the risk
// score instead.
func selectProfile(rng *rand.Rand, risk schemas.RiskLevel, patterns []schemas.Pattern) string {
	_ = patterns
	switch risk {
	case schemas.RiskCritical, schemas.RiskHigh:
		return ProfileConservative
	case schemas.RiskMedium:
		return ProfileNormal
	}
	if rng.Float64() < 0.3 {
		return ProfileAggressive
	}
	return ProfileNormal
}

// perturb derives an evolved copy of base: every numeric field moves
// independently by a uniform factor in [-5%, +5%], then the result is
// clamped back into the built-in envelope.
func perturb(rng *rand.Rand, base schemas.ProfileParams) schemas.ProfileParams {
	vary := func(v float64) float64 {
		return v * (1 + (rng.Float64()*0.10 - 0.05))
	}
	out := schemas.ProfileParams{
		ErrorProbability: clampToBounds("error_probability", vary(base.ErrorProbability)),
		DelayMultiplier:  clampToBounds("delay_multiplier", vary(base.DelayMultiplier)),
		BreakProbability: clampToBounds("break_probability", vary(base.BreakProbability)),
		MaxDailyMatches:  int(clampToBounds("max_daily_matches", vary(float64(base.MaxDailyMatches)))),
		MaxDailyTrades:   int(clampToBounds("max_daily_trades", vary(float64(base.MaxDailyTrades)))),
		Precision:        clampToBounds("precision", vary(base.Precision)),
		ReactionTimeBase: clampToBounds("reaction_time_base", vary(base.ReactionTimeBase)),
	}
	return out
}
