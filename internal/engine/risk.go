package engine

import (
	"time"

	"github.com/nightglove/cadence/api/schemas"
)

// Risk scoring is additive on purpose: a short, auditable rule set beats a
// probabilistic model whose decisions nobody can replay after a ban wave.
const (
	recentWindow = 24 * time.Hour

	scoreCritical = 5
	scoreHigh     = 3
	scoreMedium   = 1
)

// scoreRisk derives the discrete risk level from a snapshot of the signal
// ring, the sticky flags and the suspicious-events counter. Pure function of
// its inputs; identical snapshots always score identically.
func scoreRisk(signals []schemas.DetectionSignal, flags map[schemas.SignalKind]bool, suspiciousEvents int, now time.Time) schemas.RiskLevel {
	score := 0

	recent := 0
	for _, sig := range signals {
		if now.Sub(sig.Timestamp) < recentWindow {
			recent++
		}
	}
	switch {
	case recent > 5:
		score += 2
	case recent > 2:
		score++
	}

	// Sticky flags keep contributing until an operator resets them. Once
	// suspicious, stays suspicious.
	if flags[schemas.SignalWarning] {
		score += 2
	}
	if flags[schemas.SignalUnusualBanRate] {
		score += 2
	}
	if flags[schemas.SignalPatternDetected] {
		score++
	}

	if suspiciousEvents > 3 {
		score++
	}

	switch {
	case score >= scoreCritical:
		return schemas.RiskCritical
	case score >= scoreHigh:
		return schemas.RiskHigh
	case score >= scoreMedium:
		return schemas.RiskMedium
	}
	return schemas.RiskLow
}

// analyzePatterns groups the signal ring by kind and reports every kind seen
// at least three times, with its mean severity. Below five total signals the
// sample is too thin to call anything a pattern. Pure; the caller owns the
// sticky-flag side effect.
func analyzePatterns(signals []schemas.DetectionSignal) []schemas.Pattern {
	if len(signals) < 5 {
		return nil
	}

	byKind := map[schemas.SignalKind][]schemas.DetectionSignal{}
	order := []schemas.SignalKind{}
	for _, sig := range signals {
		if _, seen := byKind[sig.Kind]; !seen {
			order = append(order, sig.Kind)
		}
		byKind[sig.Kind] = append(byKind[sig.Kind], sig)
	}

	var patterns []schemas.Pattern
	for _, kind := range order {
		group := byKind[kind]
		if len(group) < 3 {
			continue
		}
		total := 0
		for _, sig := range group {
			total += sig.Severity
		}
		patterns = append(patterns, schemas.Pattern{
			Kind:         kind,
			Frequency:    len(group),
			MeanSeverity: float64(total) / float64(len(group)),
		})
	}
	return patterns
}
