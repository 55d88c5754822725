package indicator

import (
	"fmt"

	"finagent/models"
)

// SMA returns the simple moving average of the last n closes.
func SMA(series models.PriceSeries, n int) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("sma period must be positive, got %d", n)
	}
	if len(series) < n {
		return 0, fmt.Errorf("sma(%d) over %d bars: %w", n, len(series), models.ErrInsufficientData)
	}
	return sliceMean(lastCloses(series, n)), nil
}

// EMA returns the exponential moving average of the closes, seeded with
// the SMA of the first n values.
func EMA(series models.PriceSeries, n int) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("ema period must be positive, got %d", n)
	}
	if len(series) < n {
		return 0, fmt.Errorf("ema(%d) over %d bars: %w", n, len(series), models.ErrInsufficientData)
	}
	out := emaSeries(series.Closes(), n)
	return out[len(out)-1], nil
}

// emaSeries computes the EMA value at every index from n-1 onward. The
// returned slice has len(values)-n+1 entries, the first being the seed
// SMA of values[:n]. Callers guarantee len(values) >= n.
func emaSeries(values []float64, n int) []float64 {
	multiplier := 2.0 / float64(n+1)

	ema := sliceMean(values[:n])
	out := make([]float64, 0, len(values)-n+1)
	out = append(out, ema)
	for i := n; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out
}
