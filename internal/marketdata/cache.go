package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"finagent/models"
)

// Cache is a Redis read-through decorator over another provider. Series
// and fundamentals are cached with a TTL; quotes always pass through
// because monitoring needs live prices. Any Redis failure after startup
// degrades to the wrapped provider.
type Cache struct {
	next   models.MarketData
	rdb    *goredis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// CacheOptions configures the Redis connection and entry lifetime.
type CacheOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewCache connects to Redis and wraps next. A failed ping is a
// configuration error and fails construction.
func NewCache(next models.MarketData, opts CacheOptions) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	return &Cache{
		next:   next,
		rdb:    client,
		ttl:    opts.TTL,
		logger: log.With().Str("component", "mdcache").Logger(),
	}, nil
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// FetchSeries reads through the cache.
func (c *Cache) FetchSeries(ctx context.Context, symbol string, rng models.SeriesRange) (models.PriceSeries, error) {
	key := fmt.Sprintf("md:series:%s:%s:%d", symbol, rng.Interval, rng.Days)

	var cached models.PriceSeries
	if c.load(ctx, key, &cached) && len(cached) > 0 {
		return cached, nil
	}

	series, err := c.next.FetchSeries(ctx, symbol, rng)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, series)
	return series, nil
}

// FetchFundamentals reads through the cache.
func (c *Cache) FetchFundamentals(ctx context.Context, symbol string) (models.Fundamentals, error) {
	key := "md:fund:" + symbol

	var cached models.Fundamentals
	if c.load(ctx, key, &cached) && len(cached) > 0 {
		return cached, nil
	}

	fundamentals, err := c.next.FetchFundamentals(ctx, symbol)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, fundamentals)
	return fundamentals, nil
}

// Quote always hits the wrapped provider.
func (c *Cache) Quote(ctx context.Context, symbol string) (float64, error) {
	return c.next.Quote(ctx, symbol)
}

func (c *Cache) load(ctx context.Context, key string, out interface{}) bool {
	data, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != goredis.Nil {
			c.logger.Debug().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache entry unreadable")
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}
