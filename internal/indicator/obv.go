package indicator

import (
	"fmt"

	"finagent/models"
)

// OBV returns On-Balance Volume: a cumulative sum starting at zero that
// adds each bar's volume on an up close and subtracts it on a down
// close. There is no incremental form; it restarts from the full series.
func OBV(series models.PriceSeries) (float64, error) {
	if len(series) == 0 {
		return 0, fmt.Errorf("obv over empty series: %w", models.ErrInsufficientData)
	}

	var obv float64
	for i := 1; i < len(series); i++ {
		switch {
		case series[i].Close > series[i-1].Close:
			obv += float64(series[i].Volume)
		case series[i].Close < series[i-1].Close:
			obv -= float64(series[i].Volume)
		}
	}
	return obv, nil
}
