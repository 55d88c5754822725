// Package indicator provides pure technical-indicator functions over a
// price series. All functions are deterministic, never mutate their
// input, and report ErrInsufficientData when the series is shorter than
// the indicator window instead of inventing a neutral value.
package indicator

import (
	"math"

	"finagent/models"
)

// Default windows used by the analysis engine.
const (
	DefaultSMAPeriod       = 20
	DefaultEMAPeriod       = 20
	DefaultRSIPeriod       = 14
	DefaultMACDFast        = 12
	DefaultMACDSlow        = 26
	DefaultMACDSignal      = 9
	DefaultBollingerN      = 20
	DefaultBollingerK      = 2.0
	DefaultStochasticK     = 14
	DefaultStochasticD     = 3
	DefaultATRPeriod       = 14
	DefaultLevelLookback   = 60
	DefaultLevelSeparation = 0.005
)

func sliceMean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sliceStddev(values []float64, mean float64) float64 {
	var variance float64
	for _, v := range values {
		variance += math.Pow(v-mean, 2)
	}
	return math.Sqrt(variance / float64(len(values)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func lastCloses(series models.PriceSeries, n int) []float64 {
	return series.Closes()[len(series)-n:]
}
