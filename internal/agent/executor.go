package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"finagent/internal/metrics"
	"finagent/internal/notify"
	"finagent/models"
)

// executedAction carries one attempt's result into monitoring.
type executedAction struct {
	planned  plannedAction
	entry    models.HistoryEntry
	snapshot *models.OutcomeSnapshot
	baseline float64 // settle price for trades, planning price otherwise
}

// executor applies ranked actions against the portfolio and routes
// alerts to the notifier.
type executor struct {
	portfolio models.Portfolio
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// ExecuteAll runs the batch in ranked order. Each attempt is
// independent: rejections and failures are recorded and later actions
// still run. Only context cancellation aborts the batch, and it does so
// before the caller commits any history.
func (e *executor) ExecuteAll(ctx context.Context, planned []plannedAction) ([]executedAction, error) {
	out := make([]executedAction, 0, len(planned))
	for _, pa := range planned {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ex, err := e.executeOne(ctx, pa)
		if err != nil {
			return nil, err
		}
		e.metrics.ActionsTotal.WithLabelValues(string(pa.action.Kind), string(ex.entry.Status)).Inc()
		if ex.entry.Status == models.HistoryExecuted {
			e.metrics.ActionConfidence.Observe(pa.action.Confidence)
		}
		out = append(out, ex)
	}
	return out, nil
}

func (e *executor) executeOne(ctx context.Context, pa plannedAction) (executedAction, error) {
	action := pa.action
	ex := executedAction{planned: pa, baseline: pa.refPrice}
	entry := models.HistoryEntry{Action: action, ExecutedAt: time.Now()}

	switch action.Kind {
	case models.ActionHold:
		entry.Status = models.HistoryExecuted
		entry.Detail = "no action taken"

	case models.ActionAlert:
		alert := notify.Alert{
			Level:   notify.LevelWarning,
			Title:   "Signal alert for " + action.Symbol,
			Message: strings.Join(action.Rationale, "; "),
		}
		if err := e.notifier.Send(ctx, alert); err != nil {
			if ctx.Err() != nil {
				return executedAction{}, ctx.Err()
			}
			e.logger.Warn().Err(err).Str("symbol", action.Symbol).Msg("alert not delivered")
			entry.Status = models.HistoryFailed
			entry.Detail = "alert delivery failed"
		} else {
			entry.Status = models.HistoryExecuted
			entry.Detail = "alert delivered"
		}

	default:
		snap, err := e.portfolio.Execute(ctx, action)
		var rejected *models.RejectedError
		switch {
		case err == nil:
			entry.Status = models.HistoryExecuted
			ex.snapshot = snap
			if snap != nil && snap.Price > 0 {
				ex.baseline = snap.Price
			}
			e.logger.Info().
				Str("symbol", action.Symbol).
				Str("kind", string(action.Kind)).
				Float64("quantity", action.Quantity).
				Float64("confidence", action.Confidence).
				Msg("action executed")

		case errors.As(err, &rejected):
			entry.Status = models.HistoryRejected
			entry.Detail = rejected.Reason
			e.logger.Warn().
				Str("symbol", action.Symbol).
				Str("kind", string(action.Kind)).
				Str("reason", rejected.Reason).
				Msg("action rejected by portfolio")

		case ctx.Err() != nil:
			return executedAction{}, ctx.Err()

		default:
			// Raw error text stays here in the log, not in the entry.
			entry.Status = models.HistoryFailed
			entry.Detail = "execution failed"
			e.logger.Error().Err(err).
				Str("symbol", action.Symbol).
				Str("kind", string(action.Kind)).
				Msg("action execution failed")
		}
	}

	ex.entry = entry
	return ex, nil
}

func historyEntries(batch []executedAction) []models.HistoryEntry {
	entries := make([]models.HistoryEntry, len(batch))
	for i, ex := range batch {
		entries[i] = ex.entry
	}
	return entries
}
