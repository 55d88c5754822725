package indicator

import (
	"fmt"

	"finagent/models"
)

// StochasticResult holds %K and its dN-period moving average %D.
type StochasticResult struct {
	K float64
	D float64
}

// Stochastic computes the oscillator: %K positions the latest close
// inside the high/low range of the last kN bars (a flat range reads as
// 50), %D averages the last dN %K values. Requires kN+dN-1 bars.
func Stochastic(series models.PriceSeries, kN, dN int) (StochasticResult, error) {
	if kN <= 0 || dN <= 0 {
		return StochasticResult{}, fmt.Errorf("invalid stochastic periods k=%d d=%d", kN, dN)
	}
	need := kN + dN - 1
	if len(series) < need {
		return StochasticResult{}, fmt.Errorf("stochastic(%d,%d) over %d bars: %w",
			kN, dN, len(series), models.ErrInsufficientData)
	}

	kValues := make([]float64, dN)
	for i := 0; i < dN; i++ {
		end := len(series) - (dN - 1 - i)
		kValues[i] = percentK(series[:end], kN)
	}

	return StochasticResult{
		K: kValues[dN-1],
		D: sliceMean(kValues),
	}, nil
}

// percentK computes %K for the final bar of the slice. Callers
// guarantee at least kN bars.
func percentK(series models.PriceSeries, kN int) float64 {
	latest := series[len(series)-1]

	highest := series[len(series)-kN].High
	lowest := series[len(series)-kN].Low
	for i := len(series) - kN + 1; i < len(series); i++ {
		if series[i].High > highest {
			highest = series[i].High
		}
		if series[i].Low < lowest {
			lowest = series[i].Low
		}
	}

	if highest-lowest <= 0 {
		return 50
	}
	return (latest.Close - lowest) / (highest - lowest) * 100
}
