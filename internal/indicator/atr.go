package indicator

import (
	"fmt"
	"math"

	"finagent/models"
)

// ATR returns the Wilder-smoothed Average True Range over n periods.
// Requires n+1 bars (true range needs the previous close).
func ATR(series models.PriceSeries, n int) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("atr period must be positive, got %d", n)
	}
	if len(series) < n+1 {
		return 0, fmt.Errorf("atr(%d) over %d bars: %w", n, len(series), models.ErrInsufficientData)
	}

	trueRanges := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		highLow := series[i].High - series[i].Low
		highPrevClose := math.Abs(series[i].High - series[i-1].Close)
		lowPrevClose := math.Abs(series[i].Low - series[i-1].Close)
		trueRanges = append(trueRanges, math.Max(highLow, math.Max(highPrevClose, lowPrevClose)))
	}

	atr := sliceMean(trueRanges[:n])
	for i := n; i < len(trueRanges); i++ {
		atr = (atr*float64(n-1) + trueRanges[i]) / float64(n)
	}
	return atr, nil
}
