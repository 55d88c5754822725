package agent

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"finagent/config"
	"finagent/internal/memory"
	"finagent/internal/metrics"
	"finagent/models"
)

// Evidence thresholds. These decide when an indicator value counts as
// evidence at all; how much it counts is the goal weight table's job.
const (
	rsiOversold       = 30.0
	rsiOverbought     = 70.0
	stochOversold     = 20.0
	stochOverbought   = 80.0
	levelProximity    = 0.02
	richDividendYield = 0.03
	cheapPERatio      = 15.0
	richPERatio       = 40.0
	highVolatility    = 0.03
)

// Conflict bounds: both sides carry real weight and neither wins.
const (
	conflictFloor     = 1.5
	conflictAgreement = 0.25
)

const (
	sellHalf    = 0.5
	sellQuarter = 0.25

	profitTakeConfidence = 0.75
	stopLossConfidence   = 0.90
	rebalanceConfidence  = 0.80

	atrFallbackFrac = 0.02
)

// prefRiskTolerance scales buy sizing and is nudged by trade outcomes.
const prefRiskTolerance = "risk_tolerance"

// portfolioView is the portfolio state snapshot every planning decision
// in one cycle works from.
type portfolioView struct {
	cash      float64
	value     float64
	positions map[string]models.Position
}

// evidenceItem is one scored observation about a symbol.
type evidenceItem struct {
	key     string // weight-table key
	token   string // canonical pattern token
	detail  string
	bullish bool
}

// plannedAction pairs a candidate Action with the planning context the
// monitoring and learning phases need afterwards.
type plannedAction struct {
	action    models.Action
	signals   *models.SignalSet
	patternID string
	refPrice  float64
	preWeight float64 // position weight before a Rebalance
}

// planner turns a cycle's SignalSets into ranked candidate actions.
type planner struct {
	cfg     *config.Config
	weights config.WeightTable
	memory  *memory.Store
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Plan produces at most one candidate per symbol, ranked by confidence
// descending with ties broken by symbol. Identical inputs yield
// identical kinds, quantities and confidences.
func (p *planner) Plan(goal models.Goal, signals map[string]*models.SignalSet, view portfolioView, now time.Time) []plannedAction {
	symbols := make([]string, 0, len(signals))
	for symbol := range signals {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	out := make([]plannedAction, 0, len(symbols))
	for _, symbol := range symbols {
		set := signals[symbol]
		price, _ := set.Indicator(models.IndLastClose)
		if price <= 0 {
			p.logger.Warn().Str("symbol", symbol).Msg("no usable price, symbol not planned")
			continue
		}

		items := collectEvidence(set)
		pid := patternIDOf(items)

		candidate, ok := p.positionRule(symbol, set, price, pid, view, now)
		if !ok {
			candidate = p.scoreSignals(goal, symbol, set, price, items, pid, view, now)
		}
		p.logger.Debug().
			Str("symbol", symbol).
			Str("kind", string(candidate.action.Kind)).
			Float64("confidence", candidate.action.Confidence).
			Float64("quantity", candidate.action.Quantity).
			Msg("candidate planned")
		out = append(out, candidate)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].action.Confidence != out[j].action.Confidence {
			return out[i].action.Confidence > out[j].action.Confidence
		}
		return out[i].action.Symbol < out[j].action.Symbol
	})
	return out
}

// positionRule checks the position-aware overrides in priority order:
// stop loss, soft stop on a bearish trend, profit taking, concentration.
// A firing rule produces the candidate directly with its own confidence.
func (p *planner) positionRule(symbol string, set *models.SignalSet, price float64, pid string, view portfolioView, now time.Time) (plannedAction, bool) {
	pos, held := view.positions[symbol]
	if !held || pos.Quantity <= 0 || pos.AvgCost <= 0 {
		return plannedAction{}, false
	}

	gain := (price - pos.AvgCost) / pos.AvgCost
	trend, _ := set.Indicator(models.IndTrend)
	rsi, hasRSI := set.Indicator(models.IndRSI)

	switch {
	case gain <= p.cfg.StopLossPct:
		return p.candidate(models.ActionSell, symbol, roundQty(pos.Quantity),
			[]string{fmt.Sprintf("loss %.1f%% breaches stop loss", gain*100)},
			stopLossConfidence, set, pid, price, now), true

	case gain <= p.cfg.SoftStopPct && trend < 0:
		return p.candidate(models.ActionSell, symbol, roundQty(pos.Quantity),
			[]string{fmt.Sprintf("loss %.1f%% with bearish trend triggers soft stop", gain*100)},
			stopLossConfidence, set, pid, price, now), true

	case gain >= p.cfg.ProfitTakeGain && hasRSI && rsi >= p.cfg.ProfitTakeRSI:
		return p.candidate(models.ActionSell, symbol, roundQty(pos.Quantity*sellQuarter),
			[]string{fmt.Sprintf("gain %.1f%% with RSI %.1f, taking profit", gain*100, rsi)},
			profitTakeConfidence, set, pid, price, now), true
	}

	if view.value > 0 {
		weight := pos.Quantity * price / view.value
		if weight > p.cfg.MaxConcentration {
			qty := roundQty((weight - p.cfg.MaxPositionWeight) * view.value / price)
			if qty > 0 {
				c := p.candidate(models.ActionRebalance, symbol, qty,
					[]string{fmt.Sprintf("position is %.0f%% of portfolio, cap is %.0f%%",
						weight*100, p.cfg.MaxConcentration*100)},
					rebalanceConfidence, set, pid, price, now)
				c.preWeight = weight
				return c, true
			}
		}
	}

	return plannedAction{}, false
}

// scoreSignals runs the evidence path: weighted bull/bear sums, memory
// adjustment, AI blend, sizing, then the confidence-threshold gate.
func (p *planner) scoreSignals(goal models.Goal, symbol string, set *models.SignalSet, price float64, items []evidenceItem, pid string, view portfolioView, now time.Time) plannedAction {
	var bull, bear float64
	rationale := make([]string, 0, len(items)+3)
	for _, item := range items {
		w := p.weights.Weight(goal, item.key)
		if w == 0 {
			continue
		}
		if item.bullish {
			bull += w
		} else {
			bear += w
		}
		rationale = append(rationale, item.detail)
	}

	kind := models.ActionHold
	conf := 0.5
	agreement := 0.0
	if total := bull + bear; total > 0 {
		agreement = math.Abs(bull-bear) / total
		magnitude := math.Min(1, total/p.cfg.EvidenceScale)
		conf = 0.5 + 0.5*agreement*magnitude
		switch {
		case bull > bear:
			kind = models.ActionBuy
		case bear > bull:
			kind = models.ActionSell
		}
	}
	conflict := math.Min(bull, bear) >= conflictFloor && agreement < conflictAgreement

	if adj, matched := p.memoryAdjustment(goal, set); matched > 0 && adj != 0 {
		conf = clamp01(conf + adj)
		rationale = append(rationale, fmt.Sprintf("memory: %d similar outcomes shift confidence %+.3f", matched, adj))
	}

	if ins := set.AIInsight; ins != nil {
		conf = p.cfg.AIWeight*ins.Confidence + (1-p.cfg.AIWeight)*conf
		rationale = append(rationale, fmt.Sprintf("ai: %s (%.2f)", ins.Text, ins.Confidence))
	} else {
		p.metrics.ReasonerFallbacks.Inc()
	}

	var qty float64
	switch kind {
	case models.ActionBuy:
		var note string
		qty, note = p.sizeBuy(symbol, set, price, view)
		if note != "" {
			rationale = append(rationale, note)
		}
		if qty <= 0 {
			kind = models.ActionHold
		}
	case models.ActionSell:
		pos, held := view.positions[symbol]
		if !held || pos.Quantity <= 0 {
			kind = models.ActionHold
			rationale = append(rationale, "bearish signals with no open position")
		} else {
			qty = roundQty(pos.Quantity * sellHalf)
		}
	}

	if kind.Directional() && conf < p.cfg.ConfidenceThreshold {
		kind = models.ActionHold
		qty = 0
	}
	if kind == models.ActionHold && conflict {
		kind = models.ActionAlert
		rationale = append(rationale, fmt.Sprintf("conflicting evidence, bullish %.1f vs bearish %.1f", bull, bear))
	}
	if !kind.Directional() {
		qty = 0
	}

	return p.candidate(kind, symbol, qty, rationale, conf, set, pid, price, now)
}

// memoryAdjustment turns top-K similar prior outcomes into a bounded
// confidence shift: successes push up, failures push down, each scaled
// by context similarity and the pattern's preference weight.
func (p *planner) memoryAdjustment(goal models.Goal, set *models.SignalSet) (float64, int) {
	similar := p.memory.Query(goal, set, p.cfg.MemoryTopK)
	if len(similar) == 0 {
		return 0, 0
	}

	var support float64
	for i := range similar {
		outcome := &similar[i]
		contribution := memory.Similarity(set, &outcome.Signals) * p.memory.PreferenceWeight(patternID(&outcome.Signals))
		if !outcome.Success {
			contribution = -contribution
		}
		support += contribution
	}
	return p.cfg.MemoryInfluence * support / float64(len(similar)), len(similar)
}

// sizeBuy derives a buy quantity from the ATR risk distance, bounded by
// the max position weight and available cash. A zero return means the
// buy is not affordable and the caller downgrades to Hold.
func (p *planner) sizeBuy(symbol string, set *models.SignalSet, price float64, view portfolioView) (float64, string) {
	var note string
	atr, ok := set.Indicator(models.IndATR)
	if !ok || atr <= 0 {
		atr = price * atrFallbackFrac
		note = "ATR unavailable, sizing on 2% price risk"
	}

	riskScale := 0.5 + p.memory.PreferenceWeight(prefRiskTolerance)
	budget := view.cash * p.cfg.RiskPerTrade * riskScale
	qty := budget / (atr * p.cfg.ATRMultiplier)

	if view.value > 0 {
		var held float64
		if pos, ok := view.positions[symbol]; ok {
			held = pos.Quantity * price
		}
		room := p.cfg.MaxPositionWeight*view.value - held
		if room <= 0 {
			return 0, "position already at maximum weight"
		}
		if qty*price > room {
			qty = room / price
		}
	}
	if qty*price > view.cash {
		qty = view.cash / price
	}

	qty = roundQty(qty)
	if qty <= 0 {
		return 0, "no affordable size at current risk budget"
	}
	return qty, note
}

func (p *planner) candidate(kind models.ActionKind, symbol string, qty float64, rationale []string, conf float64, set *models.SignalSet, pid string, price float64, now time.Time) plannedAction {
	return plannedAction{
		action: models.Action{
			ID:         uuid.New().String(),
			Kind:       kind,
			Symbol:     symbol,
			Quantity:   qty,
			Rationale:  rationale,
			Confidence: clamp01(conf),
			Timestamp:  now,
		},
		signals:   set,
		patternID: pid,
		refPrice:  price,
	}
}

// collectEvidence scans a SignalSet for observations worth scoring.
// Absent indicator keys simply contribute nothing.
func collectEvidence(set *models.SignalSet) []evidenceItem {
	price, _ := set.Indicator(models.IndLastClose)
	items := make([]evidenceItem, 0, 8)

	if trend, ok := set.Indicator(models.IndTrend); ok {
		switch {
		case trend > 0:
			items = append(items, evidenceItem{config.WeightTrend, "trend_bullish", "trend bullish, SMA20 above SMA50", true})
		case trend < 0:
			items = append(items, evidenceItem{config.WeightTrend, "trend_bearish", "trend bearish, SMA20 below SMA50", false})
		}
	}

	if hist, ok := set.Indicator(models.IndMACDHist); ok {
		switch {
		case hist > 0:
			items = append(items, evidenceItem{config.WeightMACD, "macd_bullish", fmt.Sprintf("MACD histogram %.3f above zero", hist), true})
		case hist < 0:
			items = append(items, evidenceItem{config.WeightMACD, "macd_bearish", fmt.Sprintf("MACD histogram %.3f below zero", hist), false})
		}
	}

	if rsi, ok := set.Indicator(models.IndRSI); ok {
		switch {
		case rsi <= rsiOversold:
			items = append(items, evidenceItem{config.WeightRSIExtreme, "rsi_oversold", fmt.Sprintf("RSI %.1f oversold", rsi), true})
		case rsi >= rsiOverbought:
			items = append(items, evidenceItem{config.WeightRSIExtreme, "rsi_overbought", fmt.Sprintf("RSI %.1f overbought", rsi), false})
		}
	}

	if k, ok := set.Indicator(models.IndStochK); ok {
		switch {
		case k <= stochOversold:
			items = append(items, evidenceItem{config.WeightStochastic, "stoch_oversold", fmt.Sprintf("stochastic %%K %.1f oversold", k), true})
		case k >= stochOverbought:
			items = append(items, evidenceItem{config.WeightStochastic, "stoch_overbought", fmt.Sprintf("stochastic %%K %.1f overbought", k), false})
		}
	}

	if price > 0 {
		upper, hasUpper := set.Indicator(models.IndBBUpper)
		lower, hasLower := set.Indicator(models.IndBBLower)
		switch {
		case hasUpper && price > upper:
			items = append(items, evidenceItem{config.WeightBollinger, "bb_upper_break", fmt.Sprintf("close %.2f above upper band %.2f, overextended", price, upper), false})
		case hasLower && price < lower:
			items = append(items, evidenceItem{config.WeightBollinger, "bb_lower_break", fmt.Sprintf("close %.2f below lower band %.2f, oversold", price, lower), true})
		}

		if support, ok := nearestBelow(set.SupportLevels, price); ok && (price-support)/price <= levelProximity {
			items = append(items, evidenceItem{config.WeightLevels, "near_support", fmt.Sprintf("close %.2f holding support %.2f", price, support), true})
		}
		if resistance, ok := nearestAbove(set.ResistanceLevels, price); ok && (resistance-price)/price <= levelProximity {
			items = append(items, evidenceItem{config.WeightLevels, "near_resistance", fmt.Sprintf("close %.2f under resistance %.2f", price, resistance), false})
		}
	}

	if obv, ok := set.Indicator(models.IndOBV); ok {
		switch {
		case obv > 0:
			items = append(items, evidenceItem{config.WeightOBV, "obv_accumulation", "volume accumulating over the window", true})
		case obv < 0:
			items = append(items, evidenceItem{config.WeightOBV, "obv_distribution", "volume distributing over the window", false})
		}
	}

	if yield, ok := set.FundamentalRatios[models.FundDividendYield]; ok && yield >= richDividendYield {
		items = append(items, evidenceItem{config.WeightDividend, "dividend_rich", fmt.Sprintf("dividend yield %.1f%%", yield*100), true})
	}

	if pe, ok := set.FundamentalRatios[models.FundPERatio]; ok && pe > 0 {
		switch {
		case pe <= cheapPERatio:
			items = append(items, evidenceItem{config.WeightValuation, "value_cheap", fmt.Sprintf("P/E %.1f undervalued", pe), true})
		case pe >= richPERatio:
			items = append(items, evidenceItem{config.WeightValuation, "value_rich", fmt.Sprintf("P/E %.1f stretched", pe), false})
		}
	}

	if atr, ok := set.Indicator(models.IndATR); ok && price > 0 && atr/price >= highVolatility {
		items = append(items, evidenceItem{config.WeightVolatility, "volatility_high", fmt.Sprintf("ATR is %.1f%% of price", atr/price*100), false})
	}

	return items
}

// patternIDOf joins the fired evidence tokens into a canonical pattern
// id, e.g. "rsi_overbought+trend_bullish". Empty when nothing fired.
func patternIDOf(items []evidenceItem) string {
	if len(items) == 0 {
		return ""
	}
	tokens := make([]string, len(items))
	for i, item := range items {
		tokens[i] = item.token
	}
	sort.Strings(tokens)
	return strings.Join(tokens, "+")
}

// patternID is patternIDOf over a stored signal context.
func patternID(set *models.SignalSet) string {
	return patternIDOf(collectEvidence(set))
}

func nearestBelow(levels []float64, price float64) (float64, bool) {
	best, found := 0.0, false
	for _, level := range levels {
		if level <= price && (!found || level > best) {
			best, found = level, true
		}
	}
	return best, found
}

func nearestAbove(levels []float64, price float64) (float64, bool) {
	best, found := 0.0, false
	for _, level := range levels {
		if level >= price && (!found || level < best) {
			best, found = level, true
		}
	}
	return best, found
}

func roundQty(q float64) float64 {
	return math.Floor(q*100) / 100
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
