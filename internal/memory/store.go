// Package memory keeps the agent's learned state: strategy outcomes
// split by result, observed market-pattern counts, and preference
// weights. One agent instance owns one store; learning commits whole
// batches under a single lock so a cancelled cycle never leaves a
// partial write behind.
package memory

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"finagent/models"
)

// DefaultPreference is returned for any preference key never set.
const DefaultPreference = 0.5

// Store is the in-process memory of a single agent.
type Store struct {
	mu        sync.RWMutex
	retention int
	outcomes  map[models.Goal][]models.StrategyOutcome
	patterns  map[string]models.PatternStat
	prefs     map[string]float64
	logger    zerolog.Logger
}

// New creates a store keeping at most retention outcomes per goal.
func New(retention int) *Store {
	if retention < 1 {
		retention = 1
	}
	return &Store{
		retention: retention,
		outcomes:  make(map[models.Goal][]models.StrategyOutcome),
		patterns:  make(map[string]models.PatternStat),
		prefs:     make(map[string]float64),
		logger:    log.With().Str("component", "memory").Logger(),
	}
}

// Record appends one outcome. The signal snapshot is deep-copied so the
// stored entry cannot alias maps still held by the running cycle.
func (s *Store) Record(outcome models.StrategyOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(outcome)
}

func (s *Store) record(outcome models.StrategyOutcome) {
	outcome.Signals = *outcome.Signals.Clone()
	list := append(s.outcomes[outcome.Goal], outcome)
	if len(list) > s.retention {
		list = list[len(list)-s.retention:]
	}
	s.outcomes[outcome.Goal] = list
}

// Commit applies a learning batch atomically: outcomes, pattern
// observations and preference nudges land together or not at all.
func (s *Store) Commit(outcomes []models.StrategyOutcome, patternIDs []string, prefDeltas map[string]float64) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range outcomes {
		s.record(o)
	}
	for _, id := range patternIDs {
		s.observe(id, now)
	}
	for key, delta := range prefDeltas {
		s.prefs[key] = clamp01(s.preference(key) + delta)
	}

	s.logger.Debug().
		Int("outcomes", len(outcomes)).
		Int("patterns", len(patternIDs)).
		Int("preferences", len(prefDeltas)).
		Msg("memory batch committed")
}

// Query returns prior outcomes for the goal ranked most-similar-first
// against the current signal context. Ties fall back to recency, then
// symbol. Limit <= 0 returns everything.
func (s *Store) Query(goal models.Goal, current *models.SignalSet, limit int) []models.StrategyOutcome {
	s.mu.RLock()
	stored := s.outcomes[goal]
	out := make([]models.StrategyOutcome, len(stored))
	copy(out, stored)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		di := signalDistance(current, &out[i].Signals)
		dj := signalDistance(current, &out[j].Signals)
		if di != dj {
			return di < dj
		}
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Action.Symbol < out[j].Action.Symbol
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PatternObserved bumps a market-pattern counter. Counts never decrease.
func (s *Store) PatternObserved(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observe(id, time.Now())
}

func (s *Store) observe(id string, now time.Time) {
	stat := s.patterns[id]
	stat.Count++
	stat.LastSeen = now
	s.patterns[id] = stat
}

// PreferenceWeight returns the weight for key, DefaultPreference when
// never set.
func (s *Store) PreferenceWeight(key string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preference(key)
}

func (s *Store) preference(key string) float64 {
	if w, ok := s.prefs[key]; ok {
		return w
	}
	return DefaultPreference
}

// SetPreference stores a weight, clamped to [0,1].
func (s *Store) SetPreference(key string, w float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[key] = clamp01(w)
}

// NudgePreference shifts a weight by delta, clamped to [0,1].
func (s *Store) NudgePreference(key string, delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[key] = clamp01(s.preference(key) + delta)
}

// PatternCount reports how many distinct patterns have been observed.
func (s *Store) PatternCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// Counts reports how many successful and failed outcomes are retained.
func (s *Store) Counts() (successful, failed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, list := range s.outcomes {
		for _, o := range list {
			if o.Success {
				successful++
			} else {
				failed++
			}
		}
	}
	return successful, failed
}

// Snapshot returns a deep copy of the full memory state, outcome logs
// ordered by timestamp.
func (s *Store) Snapshot() models.MemorySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.MemorySnapshot{
		MarketPatterns:  make(map[string]models.PatternStat, len(s.patterns)),
		UserPreferences: make(map[string]float64, len(s.prefs)),
	}
	for id, stat := range s.patterns {
		snap.MarketPatterns[id] = stat
	}
	for key, w := range s.prefs {
		snap.UserPreferences[key] = w
	}

	for _, list := range s.outcomes {
		for _, o := range list {
			o.Signals = *o.Signals.Clone()
			if o.Success {
				snap.SuccessfulStrategies = append(snap.SuccessfulStrategies, o)
			} else {
				snap.FailedStrategies = append(snap.FailedStrategies, o)
			}
		}
	}
	sortOutcomes(snap.SuccessfulStrategies)
	sortOutcomes(snap.FailedStrategies)
	return snap
}

// Restore replaces the store contents with a previously taken snapshot.
func (s *Store) Restore(snap models.MemorySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes = make(map[models.Goal][]models.StrategyOutcome)
	merged := make([]models.StrategyOutcome, 0, len(snap.SuccessfulStrategies)+len(snap.FailedStrategies))
	merged = append(merged, snap.SuccessfulStrategies...)
	merged = append(merged, snap.FailedStrategies...)
	sortOutcomes(merged)
	for _, o := range merged {
		s.record(o)
	}

	s.patterns = make(map[string]models.PatternStat, len(snap.MarketPatterns))
	for id, stat := range snap.MarketPatterns {
		s.patterns[id] = stat
	}
	s.prefs = make(map[string]float64, len(snap.UserPreferences))
	for key, w := range snap.UserPreferences {
		s.prefs[key] = clamp01(w)
	}
}

func sortOutcomes(list []models.StrategyOutcome) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.Before(list[j].Timestamp)
	})
}

// Similarity maps the weighted signal distance into (0,1]: identical
// indicator contexts score 1, diverging ones fall toward 0.
func Similarity(a, b *models.SignalSet) float64 {
	return 1 / (1 + signalDistance(a, b))
}

// signalDistance sums per-key normalized differences over the indicator
// keys both sets share. Missing keys contribute zero, so sparse sets
// compare without failing.
func signalDistance(a, b *models.SignalSet) float64 {
	if a == nil || b == nil {
		return 0
	}
	var dist float64
	for key, av := range a.Indicators {
		bv, ok := b.Indicators[key]
		if !ok {
			continue
		}
		dist += math.Abs(av-bv) / indicatorScale(key, av, bv)
	}
	return dist
}

// indicatorScale normalizes each indicator family to a comparable unit:
// bounded oscillators by their range, price-scale and volume-scale keys
// by magnitude.
func indicatorScale(key string, a, b float64) float64 {
	switch key {
	case models.IndRSI, models.IndStochK, models.IndStochD:
		return 100
	case models.IndTrend:
		return 2
	default:
		scale := math.Max(math.Abs(a), math.Abs(b))
		if scale < 1 {
			return 1
		}
		return scale
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
