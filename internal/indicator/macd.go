package indicator

import (
	"fmt"

	"finagent/models"
)

// MACDResult bundles the MACD line, its signal line and the histogram.
type MACDResult struct {
	Line   float64
	Signal float64
	Hist   float64
}

// MACD computes the indicator with the default (12,26,9) periods.
func MACD(series models.PriceSeries) (MACDResult, error) {
	return MACDPeriods(series, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
}

// MACDPeriods computes fast EMA minus slow EMA as the MACD line and the
// signal-period EMA of that line as the signal. Requires slow+signal
// bars of history.
func MACDPeriods(series models.PriceSeries, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return MACDResult{}, fmt.Errorf("invalid macd periods (%d,%d,%d)", fast, slow, signal)
	}
	if len(series) < slow+signal {
		return MACDResult{}, fmt.Errorf("macd(%d,%d,%d) over %d bars: %w",
			fast, slow, signal, len(series), models.ErrInsufficientData)
	}

	closes := series.Closes()
	fastSeries := emaSeries(closes, fast)
	slowSeries := emaSeries(closes, slow)

	// MACD line history, aligned from the first bar where the slow EMA
	// exists. fastSeries is longer; index shift lines the two up.
	shift := slow - fast
	macdLine := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdLine[i] = fastSeries[i+shift] - slowSeries[i]
	}

	signalSeries := emaSeries(macdLine, signal)

	line := macdLine[len(macdLine)-1]
	sig := signalSeries[len(signalSeries)-1]
	return MACDResult{Line: line, Signal: sig, Hist: line - sig}, nil
}
