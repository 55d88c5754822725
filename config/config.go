// Package config loads every tunable of the agent from the environment,
// with an optional .env file for local runs and an optional YAML file
// overriding the built-in per-goal signal weights.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"finagent/models"
)

// Config holds the agent's runtime configuration.
type Config struct {
	// Agent loop.
	Symbols         []string      `envconfig:"AGENT_SYMBOLS" default:"AAPL,MSFT,GOOG"`
	Goal            string        `envconfig:"AGENT_GOAL" default:"balanced_growth"`
	CycleInterval   time.Duration `envconfig:"CYCLE_INTERVAL" default:"5m"`
	MonitorWindow   time.Duration `envconfig:"MONITOR_WINDOW" default:"30s"`
	AnalysisWorkers int           `envconfig:"ANALYSIS_WORKERS" default:"4"`
	HistoryLimit    int           `envconfig:"HISTORY_LIMIT" default:"500"`

	// Planning.
	ConfidenceThreshold float64 `envconfig:"CONFIDENCE_THRESHOLD" default:"0.6"`
	AIWeight            float64 `envconfig:"AI_WEIGHT" default:"0.5"`
	EvidenceScale       float64 `envconfig:"EVIDENCE_SCALE" default:"6.0"`
	MemoryInfluence     float64 `envconfig:"MEMORY_INFLUENCE" default:"0.15"`
	MemoryTopK          int     `envconfig:"MEMORY_TOP_K" default:"5"`
	MemoryRetention     int     `envconfig:"MEMORY_RETENTION" default:"100"`
	WeightsFile         string  `envconfig:"WEIGHTS_FILE" default:""`

	// Position rules.
	RiskPerTrade      float64 `envconfig:"RISK_PER_TRADE" default:"0.02"`
	ATRMultiplier     float64 `envconfig:"ATR_MULTIPLIER" default:"1.5"`
	MaxPositionWeight float64 `envconfig:"MAX_POSITION_WEIGHT" default:"0.25"`
	MaxConcentration  float64 `envconfig:"MAX_CONCENTRATION" default:"0.35"`
	ProfitTakeGain    float64 `envconfig:"PROFIT_TAKE_GAIN" default:"0.20"`
	ProfitTakeRSI     float64 `envconfig:"PROFIT_TAKE_RSI" default:"70"`
	StopLossPct       float64 `envconfig:"STOP_LOSS_PCT" default:"-0.15"`
	SoftStopPct       float64 `envconfig:"SOFT_STOP_PCT" default:"-0.10"`

	// Learning.
	LearnSuccessMin    float64 `envconfig:"LEARN_SUCCESS_MIN" default:"0"`
	HoldDriftTolerance float64 `envconfig:"HOLD_DRIFT_TOLERANCE" default:"0.02"`

	// Market data.
	MarketProvider   string        `envconfig:"MARKET_PROVIDER" default:"yahoo"`
	TwelveDataAPIKey string        `envconfig:"TWELVEDATA_API_KEY" default:""`
	SeriesDays       int           `envconfig:"SERIES_DAYS" default:"90"`
	SeriesInterval   string        `envconfig:"SERIES_INTERVAL" default:"1day"`
	MarketTimeout    time.Duration `envconfig:"MARKET_TIMEOUT" default:"10s"`
	MarketRPS        int           `envconfig:"MARKET_RPS" default:"5"`
	RedisAddr        string        `envconfig:"REDIS_ADDR" default:""`
	CacheTTL         time.Duration `envconfig:"CACHE_TTL" default:"60s"`

	// AI reasoning.
	ReasoningURL     string        `envconfig:"REASONING_URL" default:""`
	ReasoningTimeout time.Duration `envconfig:"REASONING_TIMEOUT" default:"5s"`

	// Portfolio.
	StartingCash float64 `envconfig:"STARTING_CASH" default:"100000"`
	DatabaseURL  string  `envconfig:"DATABASE_URL" default:""`

	// Memory persistence.
	MemoryDBPath string `envconfig:"MEMORY_DB_PATH" default:"agent_memory.db"`

	// Notifications and observability.
	TelegramToken  string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramChatID int64  `envconfig:"TELEGRAM_CHAT_ID" default:"0"`
	MetricsAddr    string `envconfig:"METRICS_ADDR" default:""`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the .env file when present, then the process environment.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the agent cannot run with.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("AGENT_SYMBOLS must list at least one symbol")
	}
	if _, err := models.ParseGoal(c.Goal); err != nil {
		return fmt.Errorf("AGENT_GOAL: %w", err)
	}
	if c.CycleInterval <= 0 {
		return errors.New("CYCLE_INTERVAL must be positive")
	}
	if c.MonitorWindow < 0 {
		return errors.New("MONITOR_WINDOW must not be negative")
	}
	if c.AnalysisWorkers < 1 {
		return errors.New("ANALYSIS_WORKERS must be at least 1")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.New("CONFIDENCE_THRESHOLD must be within [0,1]")
	}
	if c.AIWeight < 0 || c.AIWeight > 1 {
		return errors.New("AI_WEIGHT must be within [0,1]")
	}
	if c.EvidenceScale <= 0 {
		return errors.New("EVIDENCE_SCALE must be positive")
	}
	if c.MemoryInfluence < 0 || c.MemoryInfluence > 0.5 {
		return errors.New("MEMORY_INFLUENCE must be within [0,0.5]")
	}
	if c.MemoryTopK < 1 {
		return errors.New("MEMORY_TOP_K must be at least 1")
	}
	if c.MemoryRetention < 1 {
		return errors.New("MEMORY_RETENTION must be at least 1")
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 0.5 {
		return errors.New("RISK_PER_TRADE must be within (0,0.5]")
	}
	if c.MaxPositionWeight <= 0 || c.MaxPositionWeight > 1 {
		return errors.New("MAX_POSITION_WEIGHT must be within (0,1]")
	}
	if c.MaxConcentration <= 0 || c.MaxConcentration > 1 {
		return errors.New("MAX_CONCENTRATION must be within (0,1]")
	}
	if c.StopLossPct >= 0 || c.SoftStopPct >= 0 {
		return errors.New("stop loss thresholds must be negative")
	}
	if c.StopLossPct > c.SoftStopPct {
		return errors.New("STOP_LOSS_PCT must be at or below SOFT_STOP_PCT")
	}
	switch c.MarketProvider {
	case "yahoo":
	case "twelvedata":
		if c.TwelveDataAPIKey == "" {
			return errors.New("TWELVEDATA_API_KEY is required with MARKET_PROVIDER=twelvedata")
		}
	default:
		return fmt.Errorf("unknown MARKET_PROVIDER %q", c.MarketProvider)
	}
	if c.SeriesDays < 1 {
		return errors.New("SERIES_DAYS must be at least 1")
	}
	if c.StartingCash <= 0 {
		return errors.New("STARTING_CASH must be positive")
	}
	return nil
}

// ActiveGoal returns the configured goal as a typed value. Call after
// Validate.
func (c *Config) ActiveGoal() models.Goal {
	g, _ := models.ParseGoal(c.Goal)
	return g
}
