package indicator

import (
	"fmt"

	"finagent/models"
)

// BollingerBands holds the three band values; Upper >= Middle >= Lower
// for every valid input.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger computes the bands over the last n closes: middle is the
// SMA, upper/lower are middle +/- k population standard deviations.
func Bollinger(series models.PriceSeries, n int, k float64) (BollingerBands, error) {
	if n <= 0 || k < 0 {
		return BollingerBands{}, fmt.Errorf("invalid bollinger parameters n=%d k=%v", n, k)
	}
	if len(series) < n {
		return BollingerBands{}, fmt.Errorf("bollinger(%d) over %d bars: %w", n, len(series), models.ErrInsufficientData)
	}

	window := lastCloses(series, n)
	middle := sliceMean(window)
	sd := sliceStddev(window, middle)

	return BollingerBands{
		Upper:  middle + k*sd,
		Middle: middle,
		Lower:  middle - k*sd,
	}, nil
}
