// Package analysis turns raw market data into the per-symbol SignalSet
// the decision engine reasons over: technical indicators, trend,
// support/resistance levels, fundamental ratios and an optional AI
// insight.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"finagent/internal/indicator"
	"finagent/models"
)

// Required fundamental fields; when one is absent the engine reports
// ErrMissingFundamentals in the log and proceeds technicals-only.
var requiredFundamentals = []string{
	models.FundPERatio,
	models.FundEPS,
	models.FundDividendYield,
}

// Windowed analytics, at least one of which must compute for a series
// to be analyzable. OBV and the raw last close always compute and do
// not count toward this.
var coreIndicators = []string{
	models.IndRSI, models.IndMACD, models.IndBBMiddle, models.IndStochK,
	models.IndSMA20, models.IndSMA50, models.IndEMA20, models.IndATR,
	models.IndTrend,
}

// Options tunes one analysis engine instance.
type Options struct {
	Range            models.SeriesRange
	ReasoningTimeout time.Duration
	LevelLookback    int
	LevelSeparation  float64
}

// Engine computes SignalSets. Safe for concurrent use: it holds no
// per-cycle state of its own.
type Engine struct {
	market   models.MarketData
	reasoner models.Reasoner
	opts     Options
	logger   zerolog.Logger
}

// New creates an analysis engine. The reasoner may be nil, which
// permanently selects the rule-based fallback path.
func New(market models.MarketData, reasoner models.Reasoner, opts Options) *Engine {
	if opts.Range.Days == 0 {
		opts.Range = models.SeriesRange{Days: 90, Interval: "1day"}
	}
	if opts.ReasoningTimeout == 0 {
		opts.ReasoningTimeout = 5 * time.Second
	}
	if opts.LevelLookback == 0 {
		opts.LevelLookback = indicator.DefaultLevelLookback
	}
	if opts.LevelSeparation == 0 {
		opts.LevelSeparation = indicator.DefaultLevelSeparation
	}
	return &Engine{
		market:   market,
		reasoner: reasoner,
		opts:     opts,
		logger:   log.With().Str("component", "analysis").Logger(),
	}
}

// Analyze produces a SignalSet for one symbol. Market-data failures and
// a series too short for every core indicator propagate (the caller
// skips the symbol); per-indicator gaps, missing fundamentals and AI
// failures degrade without error.
func (e *Engine) Analyze(ctx context.Context, symbol string, goal models.Goal) (*models.SignalSet, error) {
	series, err := e.market.FetchSeries(ctx, symbol, e.opts.Range)
	if err != nil {
		return nil, fmt.Errorf("fetching series for %s: %w", symbol, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("empty series for %s: %w", symbol, models.ErrUnavailable)
	}
	if err := series.Validate(); err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("malformed series from provider")
		return nil, fmt.Errorf("series for %s: %w", symbol, models.ErrUnavailable)
	}

	set := &models.SignalSet{
		Symbol:     symbol,
		Indicators: make(map[string]float64),
	}

	e.computeIndicators(series, set)
	if !hasCoreIndicator(set.Indicators) {
		return nil, fmt.Errorf("no indicator window fits the %d bars for %s: %w",
			len(series), symbol, models.ErrInsufficientData)
	}

	if support, resistance, err := indicator.Levels(series, e.opts.LevelLookback, e.opts.LevelSeparation); err == nil {
		set.SupportLevels = support
		set.ResistanceLevels = resistance
	} else {
		e.logger.Debug().Err(err).Str("symbol", symbol).Msg("level detection skipped")
	}

	e.attachFundamentals(ctx, symbol, set)

	// The signal timestamp never precedes the newest bar.
	set.Timestamp = time.Now()
	if last, ok := series.Last(); ok && last.Timestamp.After(set.Timestamp) {
		set.Timestamp = last.Timestamp
	}

	e.enrich(ctx, set, goal)

	return set, nil
}

// computeIndicators fills the indicator map. Each indicator fails
// independently; a short series simply leaves its key absent.
func (e *Engine) computeIndicators(series models.PriceSeries, set *models.SignalSet) {
	put := func(key string, v float64, err error) {
		if err != nil {
			if !errors.Is(err, models.ErrInsufficientData) {
				e.logger.Warn().Err(err).Str("symbol", set.Symbol).Str("indicator", key).Msg("indicator failed")
			}
			return
		}
		set.Indicators[key] = v
	}

	rsi, err := indicator.RSI(series, indicator.DefaultRSIPeriod)
	put(models.IndRSI, rsi, err)

	if macd, err := indicator.MACD(series); err == nil {
		set.Indicators[models.IndMACD] = macd.Line
		set.Indicators[models.IndMACDSignal] = macd.Signal
		set.Indicators[models.IndMACDHist] = macd.Hist
	}

	if bands, err := indicator.Bollinger(series, indicator.DefaultBollingerN, indicator.DefaultBollingerK); err == nil {
		set.Indicators[models.IndBBUpper] = bands.Upper
		set.Indicators[models.IndBBMiddle] = bands.Middle
		set.Indicators[models.IndBBLower] = bands.Lower
	}

	if stoch, err := indicator.Stochastic(series, indicator.DefaultStochasticK, indicator.DefaultStochasticD); err == nil {
		set.Indicators[models.IndStochK] = stoch.K
		set.Indicators[models.IndStochD] = stoch.D
	}

	sma20, err := indicator.SMA(series, 20)
	put(models.IndSMA20, sma20, err)

	sma50, err := indicator.SMA(series, 50)
	put(models.IndSMA50, sma50, err)

	ema, err := indicator.EMA(series, indicator.DefaultEMAPeriod)
	put(models.IndEMA20, ema, err)

	obv, err := indicator.OBV(series)
	put(models.IndOBV, obv, err)

	atr, err := indicator.ATR(series, indicator.DefaultATRPeriod)
	put(models.IndATR, atr, err)

	trend, err := indicator.Trend(series)
	put(models.IndTrend, trend, err)

	if last, ok := series.Last(); ok {
		set.Indicators[models.IndLastClose] = last.Close
	}
}

func hasCoreIndicator(indicators map[string]float64) bool {
	for _, key := range coreIndicators {
		if _, ok := indicators[key]; ok {
			return true
		}
	}
	return false
}

// attachFundamentals fetches fundamentals and derives the ratio map.
// Any failure leaves the SignalSet technicals-only.
func (e *Engine) attachFundamentals(ctx context.Context, symbol string, set *models.SignalSet) {
	fundamentals, err := e.market.FetchFundamentals(ctx, symbol)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("fundamentals unavailable, proceeding technical-only")
		return
	}

	ratios, err := fundamentalRatios(fundamentals)
	if err != nil {
		e.logger.Debug().Err(err).Str("symbol", symbol).Msg("fundamental set incomplete")
	}
	if len(ratios) > 0 {
		set.FundamentalRatios = ratios
	}
}

// fundamentalRatios copies the known fields and derives earnings yield.
// Reports ErrMissingFundamentals when a required field is absent; the
// returned map still carries everything that was present.
func fundamentalRatios(f models.Fundamentals) (map[string]float64, error) {
	ratios := make(map[string]float64, len(f)+1)
	for _, key := range []string{
		models.FundPERatio, models.FundForwardPE, models.FundEPS,
		models.FundDividendYield, models.FundMarketCap, models.FundPriceToBook,
	} {
		if v, ok := f[key]; ok {
			ratios[key] = v
		}
	}
	if pe, ok := ratios[models.FundPERatio]; ok && pe > 0 {
		ratios["earnings_yield"] = 1 / pe
	}

	for _, key := range requiredFundamentals {
		if _, ok := ratios[key]; !ok {
			return ratios, fmt.Errorf("%s absent: %w", key, models.ErrMissingFundamentals)
		}
	}
	return ratios, nil
}

// enrich asks the reasoner for an insight under a hard timeout. Failure
// or timeout means no insight, never an error: the decision engine's
// fallback contract depends on it.
func (e *Engine) enrich(ctx context.Context, set *models.SignalSet, goal models.Goal) {
	if e.reasoner == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.ReasoningTimeout)
	defer cancel()

	insight, err := e.reasoner.Infer(ctx, models.InsightRequest{
		Symbol:       set.Symbol,
		Goal:         goal,
		Indicators:   set.Indicators,
		Fundamentals: set.FundamentalRatios,
	})
	if err != nil || insight == nil {
		e.logger.Debug().Err(err).Str("symbol", set.Symbol).Msg("no AI insight available")
		return
	}

	if insight.Confidence < 0 {
		insight.Confidence = 0
	}
	if insight.Confidence > 1 {
		insight.Confidence = 1
	}
	set.AIInsight = insight
}
