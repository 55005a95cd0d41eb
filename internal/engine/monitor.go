package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Monitor drives the engine's background cadence: scheduled adaptation
// passes, continuous pattern analysis, and the daily evolution pass. It
// never sleeps on the engine's behalf; every tick is a plain method call and
// the loop exits as soon as the context is cancelled.
type Monitor struct {
	engine   *Engine
	logger   *zap.Logger
	interval time.Duration
}

// NewMonitor builds a monitor ticking at the given interval. Non-positive
// intervals fall back to one minute.
func NewMonitor(e *Engine, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		engine:   e,
		logger:   logger.Named("monitor"),
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, executing one pass per tick.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Adaptation monitor started", zap.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Adaptation monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.pass()
		}
	}
}

// pass is one monitor iteration: a scheduled evaluation (the engine's rate
// limit decides whether anything happens), a pattern sweep that may trigger
// an extra evaluation, and an evolution attempt (self-gated to its 24h
// cadence).
func (m *Monitor) pass() {
	res := m.engine.Evaluate("scheduled")
	if res.Adapted {
		m.logger.Info("Scheduled adaptation applied",
			zap.String("from", res.FromProfile),
			zap.String("to", res.ToProfile))
	}

	if patterns := m.engine.AnalyzePatterns(); len(patterns) > 0 {
		m.engine.Evaluate("pattern_detected")
	}

	if name, err := m.engine.Evolve(); err != nil {
		m.logger.Error("Evolution pass failed", zap.Error(err))
	} else if name != "" {
		m.logger.Info("Evolution pass produced variant", zap.String("name", name))
	}
}
