package models

import (
	"fmt"
	"sort"
	"time"
)

// Candle represents a single price bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume,omitempty"`
}

// PriceSeries is a sequence of candles ascending by timestamp with no
// duplicate timestamps. It is treated as immutable once fetched.
type PriceSeries []Candle

// Validate checks ordering and timestamp uniqueness.
func (s PriceSeries) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Timestamp.After(s[i-1].Timestamp) {
			return fmt.Errorf("price series out of order at index %d (%s >= %s)",
				i, s[i-1].Timestamp.Format(time.RFC3339), s[i].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// Closes returns the close prices in series order.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Last returns the most recent candle.
func (s PriceSeries) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// Fundamentals maps fundamental ratio names to values. Absent keys mean
// the data source did not provide the field, not zero.
type Fundamentals map[string]float64

// Fundamental ratio keys.
const (
	FundPERatio       = "pe_ratio"
	FundForwardPE     = "forward_pe"
	FundEPS           = "eps"
	FundDividendYield = "dividend_yield"
	FundMarketCap     = "market_cap"
	FundPriceToBook   = "price_to_book"
)

// Indicator map keys shared by the analysis and planning layers.
const (
	IndRSI        = "RSI14"
	IndMACD       = "MACD"
	IndMACDSignal = "MACD_signal"
	IndMACDHist   = "MACD_hist"
	IndBBUpper    = "BB_upper"
	IndBBMiddle   = "BB_middle"
	IndBBLower    = "BB_lower"
	IndSMA20      = "SMA20"
	IndSMA50      = "SMA50"
	IndEMA20      = "EMA20"
	IndStochK     = "STOCH_K"
	IndStochD     = "STOCH_D"
	IndOBV        = "OBV"
	IndATR        = "ATR14"
	IndTrend      = "trend" // +1 bullish, -1 bearish, 0 neutral
	IndLastClose  = "last_close"
)

// Insight is the optional AI enrichment attached to a SignalSet.
type Insight struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// SignalSet is the per-symbol analysis result consumed by the decision
// engine. Created fresh each cycle and never mutated after creation.
type SignalSet struct {
	Symbol            string             `json:"symbol"`
	Timestamp         time.Time          `json:"timestamp"`
	Indicators        map[string]float64 `json:"indicators"`
	SupportLevels     []float64          `json:"support_levels"`
	ResistanceLevels  []float64          `json:"resistance_levels"`
	FundamentalRatios map[string]float64 `json:"fundamental_ratios,omitempty"`
	AIInsight         *Insight           `json:"ai_insight,omitempty"`
}

// Indicator returns a named indicator value and whether it was computed.
func (s *SignalSet) Indicator(key string) (float64, bool) {
	if s == nil || s.Indicators == nil {
		return 0, false
	}
	v, ok := s.Indicators[key]
	return v, ok
}

// Clone returns a deep copy, used when a SignalSet is snapshotted into
// memory so later cycles cannot alias its maps.
func (s *SignalSet) Clone() *SignalSet {
	if s == nil {
		return nil
	}
	out := &SignalSet{
		Symbol:           s.Symbol,
		Timestamp:        s.Timestamp,
		Indicators:       make(map[string]float64, len(s.Indicators)),
		SupportLevels:    append([]float64(nil), s.SupportLevels...),
		ResistanceLevels: append([]float64(nil), s.ResistanceLevels...),
	}
	for k, v := range s.Indicators {
		out.Indicators[k] = v
	}
	if s.FundamentalRatios != nil {
		out.FundamentalRatios = make(map[string]float64, len(s.FundamentalRatios))
		for k, v := range s.FundamentalRatios {
			out.FundamentalRatios[k] = v
		}
	}
	if s.AIInsight != nil {
		ins := *s.AIInsight
		out.AIInsight = &ins
	}
	return out
}

// Goal is the agent's active optimization objective.
type Goal string

const (
	GoalMaximizeReturns     Goal = "maximize_returns"
	GoalMinimizeRisk        Goal = "minimize_risk"
	GoalBalancedGrowth      Goal = "balanced_growth"
	GoalIncomeGeneration    Goal = "income_generation"
	GoalCapitalPreservation Goal = "capital_preservation"
)

// Goals lists every valid goal in a stable order.
func Goals() []Goal {
	return []Goal{
		GoalMaximizeReturns,
		GoalMinimizeRisk,
		GoalBalancedGrowth,
		GoalIncomeGeneration,
		GoalCapitalPreservation,
	}
}

// ParseGoal converts a string into a Goal.
func ParseGoal(s string) (Goal, error) {
	g := Goal(s)
	for _, known := range Goals() {
		if g == known {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown goal %q", s)
}

// ActionKind classifies what an action does to the portfolio.
type ActionKind string

const (
	ActionBuy       ActionKind = "buy"
	ActionSell      ActionKind = "sell"
	ActionHold      ActionKind = "hold"
	ActionRebalance ActionKind = "rebalance"
	ActionAlert     ActionKind = "alert"
)

// Directional reports whether the kind moves money when executed.
func (k ActionKind) Directional() bool {
	return k == ActionBuy || k == ActionSell || k == ActionRebalance
}

// Action is a candidate decision produced during planning. Immutable
// after creation; Quantity is zero for Hold and Alert.
type Action struct {
	ID         string     `json:"id"`
	Kind       ActionKind `json:"kind"`
	Symbol     string     `json:"symbol"`
	Quantity   float64    `json:"quantity,omitempty"`
	Rationale  []string   `json:"rationale"`
	Confidence float64    `json:"confidence"`
	Timestamp  time.Time  `json:"timestamp"`
}

// HistoryStatus records how an action execution ended.
type HistoryStatus string

const (
	HistoryExecuted HistoryStatus = "executed"
	HistoryRejected HistoryStatus = "rejected"
	HistoryFailed   HistoryStatus = "failed"
)

// HistoryEntry is the audit record of one execution attempt.
type HistoryEntry struct {
	Action     Action        `json:"action"`
	Status     HistoryStatus `json:"status"`
	Detail     string        `json:"detail,omitempty"`
	ExecutedAt time.Time     `json:"executed_at"`
}

// OutcomeSnapshot is the portfolio's view right after settling an action.
type OutcomeSnapshot struct {
	Symbol         string  `json:"symbol"`
	ExecutedQty    float64 `json:"executed_qty"`
	Price          float64 `json:"price"`
	CashAfter      float64 `json:"cash_after"`
	PositionQty    float64 `json:"position_qty"`
	PortfolioValue float64 `json:"portfolio_value"`
}

// Position is a single holding as seen by the decision engine.
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// StrategyOutcome ties an executed action and its signal context to the
// realized result. Written once at the learning phase, append-only.
type StrategyOutcome struct {
	Goal           Goal      `json:"goal"`
	Action         Action    `json:"action"`
	Signals        SignalSet `json:"signals"`
	RealizedReturn float64   `json:"realized_return"`
	RiskDelta      float64   `json:"risk_delta"`
	Success        bool      `json:"success"`
	Timestamp      time.Time `json:"timestamp"`
}

// PatternStat tracks how often a signal combination has been observed.
type PatternStat struct {
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// MemorySnapshot is a deep copy of the agent's learned state.
type MemorySnapshot struct {
	SuccessfulStrategies []StrategyOutcome      `json:"successful_strategies"`
	FailedStrategies     []StrategyOutcome      `json:"failed_strategies"`
	MarketPatterns       map[string]PatternStat `json:"market_patterns"`
	UserPreferences      map[string]float64     `json:"user_preferences"`
}

// AgentState is the decision engine's lifecycle state.
type AgentState string

const (
	StateIdle       AgentState = "idle"
	StateAnalyzing  AgentState = "analyzing"
	StatePlanning   AgentState = "planning"
	StateExecuting  AgentState = "executing"
	StateMonitoring AgentState = "monitoring"
	StateLearning   AgentState = "learning"
)

// AgentStatus is the operator-facing view of the agent.
type AgentStatus struct {
	State       AgentState  `json:"state"`
	Goal        Goal        `json:"goal"`
	CycleCount  uint64      `json:"cycle_count"`
	LastCycleAt time.Time   `json:"last_cycle_at,omitempty"`
	LastError   *CycleError `json:"last_error,omitempty"`
}

// SortLevels sorts a price-level slice ascending in place and returns it.
func SortLevels(levels []float64) []float64 {
	sort.Float64s(levels)
	return levels
}
