package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"finagent/models"
)

// Evidence keys the planner scores. Each goal assigns every key a
// non-negative weight; higher means the evidence moves that goal more.
const (
	WeightTrend      = "trend"
	WeightMACD       = "macd"
	WeightRSIExtreme = "rsi_extreme"
	WeightStochastic = "stochastic"
	WeightBollinger  = "bollinger"
	WeightLevels     = "levels"
	WeightOBV        = "obv"
	WeightDividend   = "dividend"
	WeightValuation  = "valuation"
	WeightVolatility = "volatility"
)

// GoalWeights maps evidence keys to weights for one goal.
type GoalWeights map[string]float64

// WeightTable holds the evidence weights for every goal.
type WeightTable map[models.Goal]GoalWeights

// DefaultWeights returns the built-in table. Risk-averse goals upweight
// overbought/volatility evidence, income upweights dividend/valuation,
// return-seeking upweights trend and momentum.
func DefaultWeights() WeightTable {
	return WeightTable{
		models.GoalMaximizeReturns: {
			WeightTrend: 2.0, WeightMACD: 1.5, WeightRSIExtreme: 1.0,
			WeightStochastic: 0.8, WeightBollinger: 1.0, WeightLevels: 0.8,
			WeightOBV: 1.0, WeightDividend: 0.2, WeightValuation: 0.5,
			WeightVolatility: 0.4,
		},
		models.GoalMinimizeRisk: {
			WeightTrend: 0.8, WeightMACD: 0.6, WeightRSIExtreme: 2.5,
			WeightStochastic: 1.2, WeightBollinger: 1.8, WeightLevels: 1.2,
			WeightOBV: 0.5, WeightDividend: 0.5, WeightValuation: 0.8,
			WeightVolatility: 2.0,
		},
		models.GoalBalancedGrowth: {
			WeightTrend: 1.5, WeightMACD: 1.2, WeightRSIExtreme: 1.2,
			WeightStochastic: 0.8, WeightBollinger: 1.0, WeightLevels: 1.0,
			WeightOBV: 0.8, WeightDividend: 0.8, WeightValuation: 1.0,
			WeightVolatility: 0.8,
		},
		models.GoalIncomeGeneration: {
			WeightTrend: 0.8, WeightMACD: 0.5, WeightRSIExtreme: 1.0,
			WeightStochastic: 0.5, WeightBollinger: 0.8, WeightLevels: 0.8,
			WeightOBV: 0.4, WeightDividend: 2.5, WeightValuation: 1.5,
			WeightVolatility: 1.0,
		},
		models.GoalCapitalPreservation: {
			WeightTrend: 0.6, WeightMACD: 0.5, WeightRSIExtreme: 2.2,
			WeightStochastic: 1.0, WeightBollinger: 1.5, WeightLevels: 1.5,
			WeightOBV: 0.4, WeightDividend: 1.0, WeightValuation: 1.2,
			WeightVolatility: 2.5,
		},
	}
}

type weightsFile struct {
	Goals map[string]map[string]float64 `yaml:"goals"`
}

// LoadWeights returns the default table overlaid with the YAML file at
// path. An empty path means defaults only.
func LoadWeights(path string) (WeightTable, error) {
	table := DefaultWeights()
	if path == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading weights file: %w", err)
	}
	var wf weightsFile
	if err := yaml.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("parsing weights file: %w", err)
	}

	for goalName, overrides := range wf.Goals {
		goal, err := models.ParseGoal(goalName)
		if err != nil {
			return nil, fmt.Errorf("weights file: %w", err)
		}
		for key, w := range overrides {
			if w < 0 {
				return nil, fmt.Errorf("weights file: negative weight %v for %s/%s", w, goal, key)
			}
			table[goal][key] = w
		}
	}
	return table, nil
}

// Weight looks up the weight of an evidence key for a goal, falling
// back to the balanced-growth row for unknown goals.
func (t WeightTable) Weight(goal models.Goal, key string) float64 {
	gw, ok := t[goal]
	if !ok {
		gw = t[models.GoalBalancedGrowth]
	}
	return gw[key]
}
