package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"finagent/config"
	"finagent/internal/agent"
	"finagent/internal/marketdata"
	"finagent/internal/memory"
	"finagent/internal/metrics"
	"finagent/internal/notify"
	"finagent/internal/portfolio"
	"finagent/internal/reasoning"
	"finagent/models"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("finagent exited with error")
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "finagent",
		Short: "Autonomous portfolio decision agent",
		Long: `finagent watches a set of symbols, scores technical and fundamental
evidence against an investment goal, sizes and settles trades on an
in-process portfolio, and learns from realized outcomes.`,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newOnceCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the decision loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stopMetrics := serveMetrics(rt.cfg.MetricsAddr)
			defer stopMetrics()

			if err := rt.agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single decision cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := rt.agent.RunOnce(ctx); err != nil {
				return err
			}
			status := rt.agent.Status()
			log.Info().
				Str("goal", string(status.Goal)).
				Uint64("cycles", status.CycleCount).
				Msg("cycle complete")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("finagent %s\n", version)
		},
	}
}

// runtime bundles the wired agent with everything that needs closing.
type runtime struct {
	cfg       *config.Config
	agent     *agent.Agent
	market    models.MarketData
	snapshots *memory.SnapshotStore
	ledger    *portfolio.Ledger
}

func (rt *runtime) close() {
	if c, ok := rt.market.(io.Closer); ok {
		c.Close()
	}
	if rt.ledger != nil {
		rt.ledger.Close()
	}
	if rt.snapshots != nil {
		rt.snapshots.Close()
	}
}

func buildRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.LogLevel)

	weights, err := config.LoadWeights(cfg.WeightsFile)
	if err != nil {
		return nil, err
	}

	market, err := marketdata.New(cfg)
	if err != nil {
		return nil, err
	}

	var reasoner models.Reasoner
	if cfg.ReasoningURL != "" {
		reasoner = reasoning.New(reasoning.Options{URL: cfg.ReasoningURL, Timeout: cfg.ReasoningTimeout})
		log.Info().Str("url", cfg.ReasoningURL).Msg("ai reasoning enabled")
	}

	var ledger *portfolio.Ledger
	if cfg.DatabaseURL != "" {
		ledger, err = portfolio.OpenLedger(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening trade ledger: %w", err)
		}
		log.Info().Msg("trade ledger enabled")
	}

	book := portfolio.NewManager(portfolio.Options{
		StartingCash: cfg.StartingCash,
		Quotes:       market,
		Ledger:       ledger,
	})

	mem := memory.New(cfg.MemoryRetention)
	snapshots, err := memory.OpenSnapshotStore(cfg.MemoryDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening memory database: %w", err)
	}
	if snap, ok, err := snapshots.LoadLatest(); err != nil {
		log.Warn().Err(err).Msg("memory snapshot unreadable, starting fresh")
	} else if ok {
		mem.Restore(snap)
		log.Info().
			Int("successes", len(snap.SuccessfulStrategies)).
			Int("failures", len(snap.FailedStrategies)).
			Msg("memory restored")
	}

	var notifier notify.Notifier = notify.NewLogNotifier()
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("telegram unavailable, alerts go to the log")
		} else {
			notifier = tg
			log.Info().Msg("telegram alerts enabled")
		}
	}

	a, err := agent.New(agent.Options{
		Config:    cfg,
		Weights:   weights,
		Market:    market,
		Portfolio: book,
		Reasoner:  reasoner,
		Notifier:  notifier,
		Memory:    mem,
		Snapshots: snapshots,
		Metrics:   metrics.New(),
	})
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:       cfg,
		agent:     a,
		market:    market,
		snapshots: snapshots,
		ledger:    ledger,
	}, nil
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)
}

// serveMetrics exposes /metrics when an address is configured and
// returns a shutdown func.
func serveMetrics(addr string) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Info().Str("addr", addr).Msg("metrics endpoint up")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
