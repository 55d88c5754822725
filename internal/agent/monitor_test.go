package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"finagent/models"
)

type quoteStub struct {
	mu     sync.Mutex
	quotes map[string]float64
	calls  int
}

func (q *quoteStub) FetchSeries(context.Context, string, models.SeriesRange) (models.PriceSeries, error) {
	return models.PriceSeries{}, models.ErrUnavailable
}

func (q *quoteStub) FetchFundamentals(context.Context, string) (models.Fundamentals, error) {
	return models.Fundamentals{}, models.ErrUnavailable
}

func (q *quoteStub) Quote(_ context.Context, symbol string) (float64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	price, ok := q.quotes[symbol]
	if !ok {
		return 0, models.ErrUnavailable
	}
	return price, nil
}

func newTestMonitor(quotes map[string]float64, window time.Duration) (*monitor, *quoteStub) {
	stub := &quoteStub{quotes: quotes}
	return &monitor{market: stub, window: window, logger: zerolog.Nop()}, stub
}

func watchInput(kind models.ActionKind, symbol string, status models.HistoryStatus, baseline float64) executedAction {
	return executedAction{
		planned: plannedAction{
			action:  models.Action{Kind: kind, Symbol: symbol},
			signals: signalsFor(symbol, map[string]float64{models.IndLastClose: baseline}),
		},
		entry:    models.HistoryEntry{Action: models.Action{Kind: kind, Symbol: symbol}, Status: status},
		baseline: baseline,
	}
}

func TestWatchEmptyBatchSkipsTheWindow(t *testing.T) {
	m, _ := newTestMonitor(nil, time.Hour)

	start := time.Now()
	out, err := m.Watch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("got %d results, want 0", len(out))
	}
	if time.Since(start) > time.Second {
		t.Error("empty batch must not wait out the monitoring window")
	}
}

func TestWatchCancelledDuringWindow(t *testing.T) {
	m, _ := newTestMonitor(map[string]float64{"AAPL": 100}, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Watch(ctx, []executedAction{watchInput(models.ActionBuy, "AAPL", models.HistoryExecuted, 100)})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestWatchMeasuresEachKind(t *testing.T) {
	m, _ := newTestMonitor(map[string]float64{
		"AAPL": 105,
		"MSFT": 90,
		"NVDA": 103,
	}, 0)
	batch := []executedAction{
		watchInput(models.ActionBuy, "AAPL", models.HistoryExecuted, 100),
		watchInput(models.ActionSell, "MSFT", models.HistoryExecuted, 100),
		watchInput(models.ActionHold, "NVDA", models.HistoryExecuted, 100),
	}

	out, err := m.Watch(context.Background(), batch)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d results, want 3", len(out))
	}

	if !out[0].measurable || !almostEqual(out[0].realizedReturn, 0.05) {
		t.Errorf("buy = %+v, want realized 0.05", out[0])
	}
	if !out[1].measurable || !almostEqual(out[1].realizedReturn, 0.10) {
		t.Errorf("sell = %+v, want realized 0.10 on the price drop", out[1])
	}
	if !out[2].measurable || !almostEqual(out[2].riskDelta, 0.03) {
		t.Errorf("hold = %+v, want drift 0.03", out[2])
	}
}

func TestWatchRebalanceConcentrationDelta(t *testing.T) {
	m, _ := newTestMonitor(map[string]float64{"AAPL": 100}, 0)
	ex := watchInput(models.ActionRebalance, "AAPL", models.HistoryExecuted, 100)
	ex.planned.preWeight = 0.5
	ex.snapshot = &models.OutcomeSnapshot{
		Symbol:         "AAPL",
		PositionQty:    250,
		PortfolioValue: 100000,
	}

	out, err := m.Watch(context.Background(), []executedAction{ex})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if !out[0].measurable {
		t.Fatal("rebalance with a snapshot should be measurable")
	}
	if !almostEqual(out[0].riskDelta, 0.25) {
		t.Errorf("riskDelta = %v, want weight cut from 0.50 to 0.25", out[0].riskDelta)
	}
}

func TestWatchSkipsNonExecutedEntries(t *testing.T) {
	m, stub := newTestMonitor(map[string]float64{"AAPL": 100}, 0)
	batch := []executedAction{
		watchInput(models.ActionBuy, "AAPL", models.HistoryRejected, 100),
		watchInput(models.ActionSell, "AAPL", models.HistoryFailed, 100),
	}

	out, err := m.Watch(context.Background(), batch)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	for i, r := range out {
		if r.measurable {
			t.Errorf("result %d measurable, rejected and failed attempts have no outcome", i)
		}
	}
	if stub.calls != 0 {
		t.Errorf("quote called %d times for entries that never executed", stub.calls)
	}
}

func TestWatchAlertIsMeasurableWithoutQuote(t *testing.T) {
	m, stub := newTestMonitor(nil, 0)

	out, err := m.Watch(context.Background(), []executedAction{watchInput(models.ActionAlert, "AAPL", models.HistoryExecuted, 0)})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if !out[0].measurable || out[0].realizedReturn != 0 || out[0].riskDelta != 0 {
		t.Errorf("alert = %+v, want measurable with zero movement", out[0])
	}
	if stub.calls != 0 {
		t.Errorf("quote called %d times for an alert", stub.calls)
	}
}

func TestWatchQuoteFailureNotMeasurable(t *testing.T) {
	m, _ := newTestMonitor(nil, 0) // every quote fails

	out, err := m.Watch(context.Background(), []executedAction{watchInput(models.ActionBuy, "AAPL", models.HistoryExecuted, 100)})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if out[0].measurable {
		t.Error("an attempt that cannot be re-priced must stay out of learning")
	}
}
