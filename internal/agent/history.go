package agent

import (
	"sync"

	"finagent/models"
)

type historyKey struct {
	symbol string
	nanos  int64
	kind   models.ActionKind
}

// actionHistory is the capped audit log of execution attempts. Entries
// land in whole-cycle batches after the Executing phase completes, so
// an aborted cycle leaves no trace here.
type actionHistory struct {
	mu      sync.RWMutex
	limit   int
	entries []models.HistoryEntry
	seen    map[historyKey]struct{}
}

func newActionHistory(limit int) *actionHistory {
	if limit < 1 {
		limit = 1
	}
	return &actionHistory{
		limit: limit,
		seen:  make(map[historyKey]struct{}),
	}
}

// CommitBatch appends a cycle's entries in order. Entries that repeat
// an already-recorded (symbol, timestamp, kind) are dropped.
func (h *actionHistory) CommitBatch(entries []models.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, entry := range entries {
		key := historyKey{
			symbol: entry.Action.Symbol,
			nanos:  entry.Action.Timestamp.UnixNano(),
			kind:   entry.Action.Kind,
		}
		if _, dup := h.seen[key]; dup {
			continue
		}
		h.seen[key] = struct{}{}
		h.entries = append(h.entries, entry)
	}

	if excess := len(h.entries) - h.limit; excess > 0 {
		for _, old := range h.entries[:excess] {
			delete(h.seen, historyKey{
				symbol: old.Action.Symbol,
				nanos:  old.Action.Timestamp.UnixNano(),
				kind:   old.Action.Kind,
			})
		}
		h.entries = append([]models.HistoryEntry(nil), h.entries[excess:]...)
	}
}

// Tail returns the most recent limit entries in chronological order.
// Limit <= 0 returns everything retained.
func (h *actionHistory) Tail(limit int) []models.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.HistoryEntry, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// Len reports how many entries are currently retained.
func (h *actionHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
