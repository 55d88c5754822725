// Package marketdata implements the market data sources the analysis
// engine draws from: a Yahoo Finance provider, a rate-limited Twelve
// Data provider, and an optional Redis read-through cache over either.
package marketdata

import (
	"fmt"

	"finagent/config"
	"finagent/models"
)

// New builds the provider chain the configuration asks for.
func New(cfg *config.Config) (models.MarketData, error) {
	var provider models.MarketData
	switch cfg.MarketProvider {
	case "", "yahoo":
		provider = NewYahooClient()
	case "twelvedata":
		if cfg.TwelveDataAPIKey == "" {
			return nil, fmt.Errorf("market provider twelvedata requires TWELVEDATA_API_KEY")
		}
		provider = NewTwelveDataClient(TwelveDataOptions{
			APIKey:            cfg.TwelveDataAPIKey,
			Timeout:           cfg.MarketTimeout,
			RequestsPerSecond: cfg.MarketRPS,
		})
	default:
		return nil, fmt.Errorf("unknown market provider %q", cfg.MarketProvider)
	}

	if cfg.RedisAddr == "" {
		return provider, nil
	}
	cached, err := NewCache(provider, CacheOptions{Addr: cfg.RedisAddr, TTL: cfg.CacheTTL})
	if err != nil {
		return nil, fmt.Errorf("market data cache: %w", err)
	}
	return cached, nil
}
