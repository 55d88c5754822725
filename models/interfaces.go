package models

import "context"

// SeriesRange selects how much history a series fetch returns.
type SeriesRange struct {
	Days     int
	Interval string // "1day", "1h", ...
}

// MarketData provides price history, live quotes and fundamentals.
// Failures surface as ErrUnavailable and lead to a per-symbol skip.
type MarketData interface {
	FetchSeries(ctx context.Context, symbol string, rng SeriesRange) (PriceSeries, error)
	FetchFundamentals(ctx context.Context, symbol string) (Fundamentals, error)
	Quote(ctx context.Context, symbol string) (float64, error)
}

// InsightRequest is the context handed to the AI reasoning collaborator.
type InsightRequest struct {
	Symbol       string             `json:"symbol"`
	Goal         Goal               `json:"goal"`
	Indicators   map[string]float64 `json:"indicators"`
	Fundamentals map[string]float64 `json:"fundamentals,omitempty"`
}

// Reasoner produces an optional AI insight for a signal context. Callers
// bound it with a timeout; any failure means "no insight", never fatal.
type Reasoner interface {
	Infer(ctx context.Context, req InsightRequest) (*Insight, error)
}

// Portfolio settles actions and reports positions.
type Portfolio interface {
	Execute(ctx context.Context, action Action) (*OutcomeSnapshot, error)
	Holdings() map[string]Position
	Cash() float64
	Value(ctx context.Context) (float64, error)
}
