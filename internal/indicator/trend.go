package indicator

import (
	"fmt"

	"finagent/models"
)

// Trend classification values stored under the "trend" indicator key.
const (
	TrendBullish float64 = 1
	TrendNeutral float64 = 0
	TrendBearish float64 = -1
)

// Trend classifies the series by comparing the 20- and 50-period SMAs
// and the latest close: bullish when the fast average and price both sit
// above, bearish when both sit below, neutral otherwise. Requires 50
// bars.
func Trend(series models.PriceSeries) (float64, error) {
	if len(series) < 50 {
		return 0, fmt.Errorf("trend over %d bars: %w", len(series), models.ErrInsufficientData)
	}

	fast, err := SMA(series, 20)
	if err != nil {
		return 0, err
	}
	slow, err := SMA(series, 50)
	if err != nil {
		return 0, err
	}
	price := series[len(series)-1].Close

	switch {
	case fast > slow && price > fast:
		return TrendBullish, nil
	case fast < slow && price < fast:
		return TrendBearish, nil
	default:
		return TrendNeutral, nil
	}
}
