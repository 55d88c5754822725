package indicator

import (
	"fmt"
	"math"
	"sort"

	"finagent/models"
)

type priceLevel struct {
	price    float64
	strength int
}

// Levels detects support and resistance as swing extrema over the last
// lookback bars. A swing point must dominate two bars on each side;
// levels closer together than minSeparation (relative to price) merge
// into one, with repeated touches raising its strength. Both slices are
// returned ascending, at most five per side (strongest kept on trim).
func Levels(series models.PriceSeries, lookback int, minSeparation float64) (support, resistance []float64, err error) {
	const wing = 2
	if minSeparation <= 0 {
		minSeparation = DefaultLevelSeparation
	}
	if len(series) < wing*2+1 {
		return nil, nil, fmt.Errorf("levels over %d bars: %w", len(series), models.ErrInsufficientData)
	}
	if lookback <= 0 || lookback > len(series) {
		lookback = len(series)
	}
	window := series[len(series)-lookback:]

	var levels []priceLevel
	touch := func(price float64) {
		for i := range levels {
			if math.Abs(levels[i].price-price) <= levels[i].price*minSeparation {
				levels[i].strength++
				return
			}
		}
		levels = append(levels, priceLevel{price: price, strength: 1})
	}

	for i := wing; i < len(window)-wing; i++ {
		if window[i].Low < window[i-1].Low && window[i].Low < window[i-2].Low &&
			window[i].Low < window[i+1].Low && window[i].Low < window[i+2].Low {
			touch(window[i].Low)
		}
		if window[i].High > window[i-1].High && window[i].High > window[i-2].High &&
			window[i].High > window[i+1].High && window[i].High > window[i+2].High {
			touch(window[i].High)
		}
	}

	// Recent closes revisiting a level confirm it.
	recent := 10
	if recent > len(window) {
		recent = len(window)
	}
	for i := len(window) - recent; i < len(window); i++ {
		for j := range levels {
			if math.Abs(window[i].Close-levels[j].price) <= levels[j].price*minSeparation*2 {
				levels[j].strength++
			}
		}
	}

	sort.Slice(levels, func(i, j int) bool {
		if levels[i].strength != levels[j].strength {
			return levels[i].strength > levels[j].strength
		}
		return levels[i].price < levels[j].price
	})

	current := window[len(window)-1].Close
	for _, lv := range levels {
		switch {
		case lv.price < current && len(support) < 5:
			support = append(support, lv.price)
		case lv.price > current && len(resistance) < 5:
			resistance = append(resistance, lv.price)
		}
	}

	return models.SortLevels(support), models.SortLevels(resistance), nil
}
