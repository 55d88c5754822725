package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/piquette/finance-go/quote"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"finagent/models"
)

// YahooClient serves series, quotes and fundamentals from Yahoo
// Finance. The underlying SDK carries no context support, so requests
// are bounded only by its internal HTTP timeouts; ctx is still checked
// before each call.
type YahooClient struct {
	logger zerolog.Logger
}

// NewYahooClient creates a Yahoo Finance provider. No credentials
// needed.
func NewYahooClient() *YahooClient {
	return &YahooClient{logger: log.With().Str("component", "yahoo").Logger()}
}

// FetchSeries returns daily (or hourly) bars covering rng.Days.
func (y *YahooClient) FetchSeries(ctx context.Context, symbol string, rng models.SeriesRange) (models.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	end := time.Now()
	start := end.AddDate(0, 0, -rng.Days)
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: chartInterval(rng.Interval),
	}

	iter := chart.Get(params)
	series := make(models.PriceSeries, 0, rng.Days)
	for iter.Next() {
		bar := iter.Bar()
		open, _ := bar.Open.Float64()
		high, _ := bar.High.Float64()
		low, _ := bar.Low.Float64()
		closePrice, _ := bar.Close.Float64()
		series = append(series, models.Candle{
			Timestamp: time.Unix(int64(bar.Timestamp), 0).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    int64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		y.logger.Warn().Err(err).Str("symbol", symbol).Msg("chart fetch failed")
		return nil, fmt.Errorf("yahoo series for %s: %w", symbol, models.ErrUnavailable)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("yahoo returned no bars for %s: %w", symbol, models.ErrUnavailable)
	}

	y.logger.Debug().Str("symbol", symbol).Int("bars", len(series)).Msg("series fetched")
	return series, nil
}

// FetchFundamentals maps the equity quote's valuation fields onto the
// fundamentals keys. Fields Yahoo does not report stay absent.
func (y *YahooClient) FetchFundamentals(ctx context.Context, symbol string) (models.Fundamentals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	eq, err := equity.Get(symbol)
	if err != nil || eq == nil {
		y.logger.Warn().Err(err).Str("symbol", symbol).Msg("equity fetch failed")
		return nil, fmt.Errorf("yahoo fundamentals for %s: %w", symbol, models.ErrUnavailable)
	}

	f := models.Fundamentals{}
	if eq.TrailingPE > 0 {
		f[models.FundPERatio] = eq.TrailingPE
	}
	if eq.ForwardPE > 0 {
		f[models.FundForwardPE] = eq.ForwardPE
	}
	if eq.EpsTrailingTwelveMonths != 0 {
		f[models.FundEPS] = eq.EpsTrailingTwelveMonths
	}
	if eq.TrailingAnnualDividendYield > 0 {
		f[models.FundDividendYield] = eq.TrailingAnnualDividendYield
	}
	if eq.MarketCap > 0 {
		f[models.FundMarketCap] = float64(eq.MarketCap)
	}
	if eq.PriceToBook > 0 {
		f[models.FundPriceToBook] = eq.PriceToBook
	}
	return f, nil
}

// Quote returns the regular-market price.
func (y *YahooClient) Quote(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q, err := quote.Get(symbol)
	if err != nil || q == nil {
		y.logger.Warn().Err(err).Str("symbol", symbol).Msg("quote fetch failed")
		return 0, fmt.Errorf("yahoo quote for %s: %w", symbol, models.ErrUnavailable)
	}
	if q.RegularMarketPrice <= 0 {
		return 0, fmt.Errorf("yahoo quote for %s has no price: %w", symbol, models.ErrUnavailable)
	}
	return q.RegularMarketPrice, nil
}

// chartInterval maps the configured interval onto the SDK's. Anything
// finer than hourly falls back to daily bars.
func chartInterval(interval string) datetime.Interval {
	switch interval {
	case "1h":
		return datetime.OneHour
	default:
		return datetime.OneDay
	}
}
