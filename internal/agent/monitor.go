package agent

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"finagent/models"
)

// measured pairs an executed action with its realized result.
type measured struct {
	executed       executedAction
	realizedReturn float64
	riskDelta      float64
	measurable     bool
}

// monitor waits out the observation window and re-prices the batch.
type monitor struct {
	market models.MarketData
	window time.Duration
	logger zerolog.Logger
}

// Watch sleeps the monitoring window (context-aware), then re-quotes
// every executed symbol and computes per-action realized return and
// risk movement.
func (m *monitor) Watch(ctx context.Context, batch []executedAction) ([]measured, error) {
	if len(batch) > 0 && m.window > 0 {
		timer := time.NewTimer(m.window)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	out := make([]measured, 0, len(batch))
	for _, ex := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, m.measure(ctx, ex))
	}
	return out, nil
}

// measure computes the realized result for one attempt. Rejected and
// failed attempts, and attempts that cannot be re-priced, come back
// unmeasurable and are excluded from learning.
func (m *monitor) measure(ctx context.Context, ex executedAction) measured {
	res := measured{executed: ex}
	if ex.entry.Status != models.HistoryExecuted {
		return res
	}

	action := ex.planned.action
	if action.Kind == models.ActionAlert {
		res.measurable = true
		return res
	}

	price, err := m.market.Quote(ctx, action.Symbol)
	if err != nil || price <= 0 {
		m.logger.Warn().Err(err).Str("symbol", action.Symbol).Msg("re-quote failed, outcome not measurable")
		return res
	}
	base := ex.baseline
	if base <= 0 {
		return res
	}

	res.measurable = true
	switch action.Kind {
	case models.ActionBuy:
		res.realizedReturn = (price - base) / base
	case models.ActionSell:
		res.realizedReturn = (base - price) / base
	case models.ActionHold:
		res.riskDelta = math.Abs(price-base) / base
	case models.ActionRebalance:
		res.riskDelta = m.concentrationDelta(ex, price)
	}

	m.logger.Debug().
		Str("symbol", action.Symbol).
		Str("kind", string(action.Kind)).
		Float64("realized", res.realizedReturn).
		Float64("risk_delta", res.riskDelta).
		Msg("outcome measured")
	return res
}

// concentrationDelta is how much a Rebalance actually reduced the
// position's portfolio weight. Positive means risk came down.
func (m *monitor) concentrationDelta(ex executedAction, price float64) float64 {
	snap := ex.snapshot
	if snap == nil || snap.PortfolioValue <= 0 {
		return 0
	}
	after := snap.PositionQty * price / snap.PortfolioValue
	return ex.planned.preWeight - after
}
