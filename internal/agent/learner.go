package agent

import (
	"time"

	"github.com/rs/zerolog"

	"finagent/config"
	"finagent/models"
)

// Preference nudge sizes. Losses move risk tolerance twice as fast as
// wins so repeated failures shrink position sizing quickly.
const (
	patternNudge      = 0.05
	riskToleranceGain = 0.01
	riskToleranceLoss = 0.02
)

// learningBatch is everything one Learning phase commits to memory.
type learningBatch struct {
	outcomes   []models.StrategyOutcome
	patternIDs []string
	prefDeltas map[string]float64
}

// learner converts monitored results into the memory batch.
type learner struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// Batch builds outcomes, pattern observations and preference nudges
// from a cycle's measured actions. Unmeasurable attempts are skipped.
func (l *learner) Batch(goal models.Goal, results []measured, now time.Time) learningBatch {
	batch := learningBatch{prefDeltas: make(map[string]float64)}

	for _, r := range results {
		if !r.measurable {
			continue
		}
		action := r.executed.planned.action
		success := l.successful(action.Kind, r)

		batch.outcomes = append(batch.outcomes, models.StrategyOutcome{
			Goal:           goal,
			Action:         action,
			Signals:        *r.executed.planned.signals,
			RealizedReturn: r.realizedReturn,
			RiskDelta:      r.riskDelta,
			Success:        success,
			Timestamp:      now,
		})

		if pid := r.executed.planned.patternID; pid != "" {
			batch.patternIDs = append(batch.patternIDs, pid)
			if success {
				batch.prefDeltas[pid] += patternNudge
			} else {
				batch.prefDeltas[pid] -= patternNudge
			}
		}

		if action.Kind == models.ActionBuy || action.Kind == models.ActionSell {
			if success {
				batch.prefDeltas[prefRiskTolerance] += riskToleranceGain
			} else {
				batch.prefDeltas[prefRiskTolerance] -= riskToleranceLoss
			}
		}

		l.logger.Debug().
			Str("symbol", action.Symbol).
			Str("kind", string(action.Kind)).
			Bool("success", success).
			Float64("realized", r.realizedReturn).
			Msg("outcome recorded")
	}

	return batch
}

// successful applies the per-kind success rule: directional trades must
// beat the configured return floor, Hold must stay within drift
// tolerance, Rebalance must actually reduce concentration, a delivered
// Alert always counts.
func (l *learner) successful(kind models.ActionKind, r measured) bool {
	switch kind {
	case models.ActionBuy, models.ActionSell:
		return r.realizedReturn > l.cfg.LearnSuccessMin
	case models.ActionHold:
		return r.riskDelta <= l.cfg.HoldDriftTolerance
	case models.ActionRebalance:
		return r.riskDelta > 0
	default:
		return true
	}
}
