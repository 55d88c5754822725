package agent

import (
	"testing"
	"time"

	"finagent/models"
)

func entryAt(symbol string, kind models.ActionKind, ts time.Time) models.HistoryEntry {
	return models.HistoryEntry{
		Action: models.Action{
			ID:        symbol + "-" + string(kind),
			Kind:      kind,
			Symbol:    symbol,
			Timestamp: ts,
		},
		Status:     models.HistoryExecuted,
		ExecutedAt: ts,
	}
}

func TestHistoryDropsDuplicateKeys(t *testing.T) {
	h := newActionHistory(10)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	h.CommitBatch([]models.HistoryEntry{
		entryAt("AAPL", models.ActionBuy, ts),
		entryAt("AAPL", models.ActionBuy, ts), // same (symbol, timestamp, kind)
		entryAt("AAPL", models.ActionSell, ts),
		entryAt("MSFT", models.ActionBuy, ts),
	})
	if got := h.Len(); got != 3 {
		t.Fatalf("len = %d, want 3 after duplicate dropped", got)
	}

	// A later batch repeating an existing key is also dropped.
	h.CommitBatch([]models.HistoryEntry{entryAt("MSFT", models.ActionBuy, ts)})
	if got := h.Len(); got != 3 {
		t.Errorf("len = %d, duplicate across batches not dropped", got)
	}
}

func TestHistoryCapDropsOldestFirst(t *testing.T) {
	h := newActionHistory(3)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var batch []models.HistoryEntry
	symbols := []string{"A", "B", "C", "D", "E"}
	for i, s := range symbols {
		batch = append(batch, entryAt(s, models.ActionBuy, base.Add(time.Duration(i)*time.Minute)))
	}
	h.CommitBatch(batch)

	tail := h.Tail(0)
	if len(tail) != 3 {
		t.Fatalf("len = %d, want 3", len(tail))
	}
	for i, want := range []string{"C", "D", "E"} {
		if tail[i].Action.Symbol != want {
			t.Errorf("tail[%d] = %s, want %s", i, tail[i].Action.Symbol, want)
		}
	}
}

func TestHistoryTailLimit(t *testing.T) {
	h := newActionHistory(10)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.CommitBatch([]models.HistoryEntry{
			entryAt("AAPL", models.ActionHold, base.Add(time.Duration(i)*time.Minute)),
		})
	}

	tail := h.Tail(2)
	if len(tail) != 2 {
		t.Fatalf("len = %d, want 2", len(tail))
	}
	if !tail[0].Action.Timestamp.Before(tail[1].Action.Timestamp) {
		t.Error("tail must stay in chronological order")
	}
	if got := tail[1].Action.Timestamp; !got.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("newest entry = %s, want the last committed", got)
	}
}
