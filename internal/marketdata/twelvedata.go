package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"finagent/models"
)

const twelveDataBaseURL = "https://api.twelvedata.com"

// TwelveDataClient serves price series and live quotes from the Twelve
// Data REST API. Fundamentals are not available on its standard plan;
// FetchFundamentals always reports ErrUnavailable and the analysis
// engine proceeds technical-only.
type TwelveDataClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
	logger     zerolog.Logger
}

// TwelveDataOptions configures the client.
type TwelveDataOptions struct {
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond int
	BaseURL           string // overridden in tests
}

// NewTwelveDataClient creates a rate-limited, retrying client.
func NewTwelveDataClient(opts TwelveDataOptions) *TwelveDataClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.BaseURL == "" {
		opts.BaseURL = twelveDataBaseURL
	}
	return &TwelveDataClient{
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), opts.RequestsPerSecond),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		logger:     log.With().Str("component", "twelvedata").Logger(),
	}
}

// timeSeriesResponse mirrors /time_series; prices arrive string-encoded.
type timeSeriesResponse struct {
	Values []struct {
		Datetime string  `json:"datetime"`
		Open     float64 `json:"open,string"`
		High     float64 `json:"high,string"`
		Low      float64 `json:"low,string"`
		Close    float64 `json:"close,string"`
		Volume   int64   `json:"volume,string,omitempty"`
	} `json:"values"`
	Status string `json:"status"`
}

type priceResponse struct {
	Price float64 `json:"price,string"`
}

// FetchSeries returns rng.Days worth of bars, oldest first.
func (c *TwelveDataClient) FetchSeries(ctx context.Context, symbol string, rng models.SeriesRange) (models.PriceSeries, error) {
	url := fmt.Sprintf("%s/time_series?symbol=%s&interval=%s&outputsize=%d&apikey=%s",
		c.baseURL, symbol, rng.Interval, barCount(rng.Interval, rng.Days), c.apiKey)

	body, err := c.get(ctx, url)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("time series request failed")
		return nil, fmt.Errorf("twelvedata series for %s: %w", symbol, models.ErrUnavailable)
	}

	if strings.Contains(string(body), `"status":"error"`) {
		c.logger.Error().Str("symbol", symbol).Str("response", string(body)).Msg("twelvedata api error")
		return nil, fmt.Errorf("twelvedata series for %s: %w", symbol, models.ErrUnavailable)
	}

	var data timeSeriesResponse
	if err := json.Unmarshal(body, &data); err != nil {
		c.logger.Error().Err(err).Str("symbol", symbol).Msg("unparseable time series payload")
		return nil, fmt.Errorf("twelvedata series for %s: %w", symbol, models.ErrUnavailable)
	}
	if len(data.Values) == 0 {
		return nil, fmt.Errorf("twelvedata returned no bars for %s: %w", symbol, models.ErrUnavailable)
	}

	// Bars arrive newest-first; indicator math needs oldest-first. The
	// datetime strings are ISO-ordered, so a string sort is enough.
	sort.Slice(data.Values, func(i, j int) bool {
		return data.Values[i].Datetime < data.Values[j].Datetime
	})

	series := make(models.PriceSeries, 0, len(data.Values))
	for _, v := range data.Values {
		ts, err := parseBarTime(v.Datetime)
		if err != nil {
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("bar with unreadable timestamp")
			return nil, fmt.Errorf("twelvedata series for %s: %w", symbol, models.ErrUnavailable)
		}
		series = append(series, models.Candle{
			Timestamp: ts,
			Open:      v.Open,
			High:      v.High,
			Low:       v.Low,
			Close:     v.Close,
			Volume:    v.Volume,
		})
	}

	c.logger.Debug().Str("symbol", symbol).Int("bars", len(series)).Msg("series fetched")
	return series, nil
}

// FetchFundamentals is not served by this provider.
func (c *TwelveDataClient) FetchFundamentals(_ context.Context, symbol string) (models.Fundamentals, error) {
	return nil, fmt.Errorf("twelvedata fundamentals for %s: %w", symbol, models.ErrUnavailable)
}

// Quote returns the latest traded price.
func (c *TwelveDataClient) Quote(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/price?symbol=%s&apikey=%s", c.baseURL, symbol, c.apiKey)

	body, err := c.get(ctx, url)
	if err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("price request failed")
		return 0, fmt.Errorf("twelvedata quote for %s: %w", symbol, models.ErrUnavailable)
	}
	if strings.Contains(string(body), `"status":"error"`) {
		c.logger.Error().Str("symbol", symbol).Str("response", string(body)).Msg("twelvedata api error")
		return 0, fmt.Errorf("twelvedata quote for %s: %w", symbol, models.ErrUnavailable)
	}

	var data priceResponse
	if err := json.Unmarshal(body, &data); err != nil || data.Price <= 0 {
		return 0, fmt.Errorf("twelvedata quote for %s: %w", symbol, models.ErrUnavailable)
	}
	return data.Price, nil
}

// get performs a rate-limited GET with exponential-backoff retries.
func (c *TwelveDataClient) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var resp *http.Response
	operation := func() error {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		return nil, fmt.Errorf("after retries: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func parseBarTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized bar time %q", s)
}

// barCount converts a day span into the output size the API expects for
// an interval, with a small buffer for market closures.
func barCount(interval string, days int) int {
	if days <= 0 {
		days = 1
	}
	perDay := 1
	switch interval {
	case "1min":
		perDay = 24 * 60
	case "5min":
		perDay = 24 * 12
	case "15min":
		perDay = 24 * 4
	case "30min":
		perDay = 24 * 2
	case "1h":
		perDay = 24
	case "2h":
		perDay = 12
	case "4h":
		perDay = 6
	case "1day":
		perDay = 1
	case "1week":
		days = days / 7
		if days < 1 {
			days = 1
		}
	case "1month":
		days = days / 30
		if days < 1 {
			days = 1
		}
	}
	return int(float64(perDay) * float64(days) * 1.1)
}
