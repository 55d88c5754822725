package memory

import (
	"path/filepath"
	"testing"
	"time"

	"finagent/models"
)

func makeOutcome(goal models.Goal, symbol string, success bool, rsi float64, ts time.Time) models.StrategyOutcome {
	return models.StrategyOutcome{
		Goal: goal,
		Action: models.Action{
			ID:         symbol + ts.Format("150405"),
			Kind:       models.ActionBuy,
			Symbol:     symbol,
			Confidence: 0.7,
			Timestamp:  ts,
		},
		Signals: models.SignalSet{
			Symbol:     symbol,
			Timestamp:  ts,
			Indicators: map[string]float64{models.IndRSI: rsi},
		},
		RealizedReturn: 0.01,
		Success:        success,
		Timestamp:      ts,
	}
}

func TestCommitCountsEveryOutcome(t *testing.T) {
	store := New(100)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var batch []models.StrategyOutcome
	for i := 0; i < 6; i++ {
		batch = append(batch, makeOutcome(models.GoalBalancedGrowth, "AAPL", i%3 != 0, 50, base.Add(time.Duration(i)*time.Minute)))
	}
	store.Commit(batch, nil, nil)

	succ, fail := store.Counts()
	if succ+fail != 6 {
		t.Fatalf("retained %d outcomes, want 6", succ+fail)
	}
	if succ != 4 || fail != 2 {
		t.Errorf("counts = %d/%d, want 4/2", succ, fail)
	}
}

func TestRetentionDropsOldestFirst(t *testing.T) {
	store := New(3)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		store.Record(makeOutcome(models.GoalMinimizeRisk, "MSFT", true, float64(10*i), base.Add(time.Duration(i)*time.Hour)))
	}

	got := store.Query(models.GoalMinimizeRisk, &models.SignalSet{}, 0)
	if len(got) != 3 {
		t.Fatalf("retained %d outcomes, want 3", len(got))
	}
	for _, o := range got {
		if o.Timestamp.Before(base.Add(2 * time.Hour)) {
			t.Errorf("outcome from %s should have been dropped", o.Timestamp)
		}
	}
}

func TestQueryRanksBySignalSimilarity(t *testing.T) {
	store := New(100)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Record(makeOutcome(models.GoalBalancedGrowth, "FAR", true, 30, base))
	store.Record(makeOutcome(models.GoalBalancedGrowth, "NEAR", true, 78, base.Add(time.Minute)))
	// Outcomes for another goal must never surface.
	store.Record(makeOutcome(models.GoalMinimizeRisk, "OTHER", true, 80, base))

	current := &models.SignalSet{Indicators: map[string]float64{models.IndRSI: 80}}
	got := store.Query(models.GoalBalancedGrowth, current, 0)

	if len(got) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(got))
	}
	if got[0].Action.Symbol != "NEAR" {
		t.Errorf("closest context should rank first, got %s", got[0].Action.Symbol)
	}

	limited := store.Query(models.GoalBalancedGrowth, current, 1)
	if len(limited) != 1 || limited[0].Action.Symbol != "NEAR" {
		t.Errorf("limit=1 should keep only the closest outcome, got %+v", limited)
	}
}

func TestQueryToleratesSparseSignalSets(t *testing.T) {
	store := New(100)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	sparse := makeOutcome(models.GoalBalancedGrowth, "SPARSE", true, 0, base)
	sparse.Signals.Indicators = map[string]float64{}
	store.Record(sparse)
	store.Record(makeOutcome(models.GoalBalancedGrowth, "DENSE", true, 79, base.Add(time.Minute)))

	current := &models.SignalSet{Indicators: map[string]float64{models.IndRSI: 80}}
	got := store.Query(models.GoalBalancedGrowth, current, 0)
	if len(got) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(got))
	}
	// Shared-key distance of the empty set is zero, so it ranks first.
	if got[0].Action.Symbol != "SPARSE" {
		t.Errorf("sparse context should rank first on zero distance, got %s", got[0].Action.Symbol)
	}
}

func TestPatternCountsOnlyGrow(t *testing.T) {
	store := New(100)

	for i := 0; i < 3; i++ {
		store.PatternObserved("rsi_overbought+trend_bullish")
	}
	snap := store.Snapshot()
	if snap.MarketPatterns["rsi_overbought+trend_bullish"].Count != 3 {
		t.Fatalf("count = %d, want 3", snap.MarketPatterns["rsi_overbought+trend_bullish"].Count)
	}

	fresh := New(100)
	fresh.Restore(snap)
	fresh.PatternObserved("rsi_overbought+trend_bullish")
	if got := fresh.Snapshot().MarketPatterns["rsi_overbought+trend_bullish"].Count; got != 4 {
		t.Errorf("count after restore+observe = %d, want 4", got)
	}
}

func TestPreferenceDefaultsAndClamping(t *testing.T) {
	store := New(100)

	if got := store.PreferenceWeight("risk_tolerance"); got != DefaultPreference {
		t.Errorf("unset preference = %v, want %v", got, DefaultPreference)
	}

	store.NudgePreference("risk_tolerance", 0.8)
	if got := store.PreferenceWeight("risk_tolerance"); got != 1 {
		t.Errorf("nudge above one should clamp, got %v", got)
	}

	store.NudgePreference("risk_tolerance", -2)
	if got := store.PreferenceWeight("risk_tolerance"); got != 0 {
		t.Errorf("nudge below zero should clamp, got %v", got)
	}

	store.SetPreference("pattern:macd_cross", 0.7)
	if got := store.PreferenceWeight("pattern:macd_cross"); got != 0.7 {
		t.Errorf("set preference = %v, want 0.7", got)
	}
}

func TestSnapshotRestoreRoundtrip(t *testing.T) {
	store := New(100)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	store.Record(makeOutcome(models.GoalIncomeGeneration, "KO", true, 55, base))
	store.Record(makeOutcome(models.GoalIncomeGeneration, "T", false, 40, base.Add(time.Minute)))
	store.PatternObserved("bb_breakout_up")
	store.SetPreference("risk_tolerance", 0.3)

	snap := store.Snapshot()

	restored := New(100)
	restored.Restore(snap)

	succ, fail := restored.Counts()
	if succ != 1 || fail != 1 {
		t.Fatalf("restored counts = %d/%d, want 1/1", succ, fail)
	}
	if got := restored.PreferenceWeight("risk_tolerance"); got != 0.3 {
		t.Errorf("restored preference = %v, want 0.3", got)
	}
	if restored.Snapshot().MarketPatterns["bb_breakout_up"].Count != 1 {
		t.Error("restored pattern count missing")
	}

	// The snapshot is a deep copy: mutating it must not reach the store.
	snap.SuccessfulStrategies[0].Signals.Indicators[models.IndRSI] = -1
	if got := store.Query(models.GoalIncomeGeneration, &models.SignalSet{}, 0); len(got) > 0 {
		for _, o := range got {
			if o.Signals.Indicators[models.IndRSI] == -1 {
				t.Error("snapshot aliases store state")
			}
		}
	}
}

func TestSimilarityBounds(t *testing.T) {
	a := &models.SignalSet{Indicators: map[string]float64{models.IndRSI: 60, models.IndTrend: 1}}
	b := &models.SignalSet{Indicators: map[string]float64{models.IndRSI: 60, models.IndTrend: 1}}
	if got := Similarity(a, b); got != 1 {
		t.Errorf("identical contexts = %v, want 1", got)
	}

	c := &models.SignalSet{Indicators: map[string]float64{models.IndRSI: 10, models.IndTrend: -1}}
	sim := Similarity(a, c)
	if sim <= 0 || sim >= 1 {
		t.Errorf("diverging contexts = %v, want within (0,1)", sim)
	}
}

func TestSnapshotStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")

	db, err := OpenSnapshotStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, found, err := db.LoadLatest(); err != nil || found {
		t.Fatalf("empty store: found=%v err=%v", found, err)
	}

	store := New(100)
	store.Record(makeOutcome(models.GoalBalancedGrowth, "AAPL", true, 65, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	store.PatternObserved("trend_bullish+macd_bullish")

	if err := db.Save(store.Snapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, found, err := db.LoadLatest()
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	if len(loaded.SuccessfulStrategies) != 1 {
		t.Errorf("loaded %d successful outcomes, want 1", len(loaded.SuccessfulStrategies))
	}
	if loaded.MarketPatterns["trend_bullish+macd_bullish"].Count != 1 {
		t.Error("loaded pattern count missing")
	}
}
