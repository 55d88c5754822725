package indicator

import (
	"fmt"

	"finagent/models"
)

// RSI returns the Relative Strength Index over the last n periods using
// Wilder smoothing. Requires n+1 bars; output is clamped to [0,100]. A
// series with no losses yields 100, no gains yields 0, flat input 50.
func RSI(series models.PriceSeries, n int) (float64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("rsi period must be positive, got %d", n)
	}
	if len(series) < n+1 {
		return 0, fmt.Errorf("rsi(%d) over %d bars: %w", n, len(series), models.ErrInsufficientData)
	}

	var gains, losses float64
	for i := 1; i <= n; i++ {
		change := series[i].Close - series[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(n)
	avgLoss := losses / float64(n)

	// Wilder smoothing over the remaining bars.
	for i := n + 1; i < len(series); i++ {
		change := series[i].Close - series[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(n-1) + gain) / float64(n)
		avgLoss = (avgLoss*float64(n-1) + loss) / float64(n)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}

	rs := avgGain / avgLoss
	return clamp(100-100/(1+rs), 0, 100), nil
}
