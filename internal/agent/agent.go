// Package agent implements the autonomous decision loop: analyze
// tracked symbols, plan actions for the active goal, execute them
// against the portfolio, monitor the outcome, learn from it, idle.
// One cycle runs at a time.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"finagent/config"
	"finagent/internal/analysis"
	"finagent/internal/memory"
	"finagent/internal/metrics"
	"finagent/internal/notify"
	"finagent/models"
)

// Options bundles the agent's collaborators. Config, Market and
// Portfolio are required; everything else has a working default.
type Options struct {
	Config    *config.Config
	Weights   config.WeightTable
	Market    models.MarketData
	Portfolio models.Portfolio
	Reasoner  models.Reasoner
	Notifier  notify.Notifier
	Memory    *memory.Store
	Snapshots *memory.SnapshotStore
	Metrics   *metrics.Metrics
}

// Agent is the single decision-making instance over one portfolio.
type Agent struct {
	cfg       *config.Config
	analysis  *analysis.Engine
	planner   *planner
	executor  *executor
	monitor   *monitor
	learner   *learner
	memory    *memory.Store
	snapshots *memory.SnapshotStore
	portfolio models.Portfolio
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	machine   *stateMachine
	history   *actionHistory
	trigger   chan struct{}
	logger    zerolog.Logger

	mu          sync.RWMutex
	goal        models.Goal
	cycleCount  uint64
	lastCycleAt time.Time
	lastErr     *models.CycleError
}

// New wires an agent from its collaborators.
func New(opts Options) (*Agent, error) {
	if opts.Config == nil {
		return nil, errors.New("agent: config is required")
	}
	if opts.Market == nil {
		return nil, errors.New("agent: market data source is required")
	}
	if opts.Portfolio == nil {
		return nil, errors.New("agent: portfolio is required")
	}
	if opts.Weights == nil {
		opts.Weights = config.DefaultWeights()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier()
	}
	if opts.Memory == nil {
		opts.Memory = memory.New(opts.Config.MemoryRetention)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}

	cfg := opts.Config
	engine := analysis.New(opts.Market, opts.Reasoner, analysis.Options{
		Range:            models.SeriesRange{Days: cfg.SeriesDays, Interval: cfg.SeriesInterval},
		ReasoningTimeout: cfg.ReasoningTimeout,
	})

	return &Agent{
		cfg:      cfg,
		analysis: engine,
		planner: &planner{
			cfg:     cfg,
			weights: opts.Weights,
			memory:  opts.Memory,
			metrics: opts.Metrics,
			logger:  log.With().Str("component", "planner").Logger(),
		},
		executor: &executor{
			portfolio: opts.Portfolio,
			notifier:  opts.Notifier,
			metrics:   opts.Metrics,
			logger:    log.With().Str("component", "executor").Logger(),
		},
		monitor: &monitor{
			market: opts.Market,
			window: cfg.MonitorWindow,
			logger: log.With().Str("component", "monitor").Logger(),
		},
		learner: &learner{
			cfg:    cfg,
			logger: log.With().Str("component", "learner").Logger(),
		},
		memory:    opts.Memory,
		snapshots: opts.Snapshots,
		portfolio: opts.Portfolio,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		machine:   newStateMachine(),
		history:   newActionHistory(cfg.HistoryLimit),
		trigger:   make(chan struct{}, 1),
		logger:    log.With().Str("component", "agent").Logger(),
		goal:      cfg.ActiveGoal(),
	}, nil
}

// Run drives the loop until ctx is cancelled: a cycle on every tick of
// the configured interval, plus on-demand cycles via TriggerCycle.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.CycleInterval)
	defer ticker.Stop()

	a.logger.Info().
		Dur("interval", a.cfg.CycleInterval).
		Strs("symbols", a.cfg.Symbols).
		Str("goal", string(a.ActiveGoal())).
		Msg("agent loop started")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("agent loop stopped")
			return ctx.Err()
		case <-ticker.C:
			a.runCycle(ctx)
		case <-a.trigger:
			a.runCycle(ctx)
		}
	}
}

// RunOnce executes a single cycle synchronously. Not for use while Run
// is active; the loop owns cycle scheduling then.
func (a *Agent) RunOnce(ctx context.Context) error {
	return a.runCycle(ctx)
}

// TriggerCycle requests an immediate cycle without blocking. Requests
// arriving while a cycle runs collapse into at most one pending run.
func (a *Agent) TriggerCycle() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

// SetGoal switches the optimization objective. Takes effect from the
// next cycle; a running cycle keeps the goal it started with.
func (a *Agent) SetGoal(goal models.Goal) error {
	if _, err := models.ParseGoal(string(goal)); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if goal != a.goal {
		a.logger.Info().Str("from", string(a.goal)).Str("to", string(goal)).Msg("goal changed")
		a.goal = goal
	}
	return nil
}

// ActiveGoal returns the goal the next cycle will plan for.
func (a *Agent) ActiveGoal() models.Goal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.goal
}

// State returns the current lifecycle state.
func (a *Agent) State() models.AgentState {
	return a.machine.Current()
}

// Status returns the operator-facing view of the agent.
func (a *Agent) Status() models.AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	status := models.AgentStatus{
		State:       a.machine.Current(),
		Goal:        a.goal,
		CycleCount:  a.cycleCount,
		LastCycleAt: a.lastCycleAt,
	}
	if a.lastErr != nil {
		e := *a.lastErr
		status.LastError = &e
	}
	return status
}

// ActionHistory returns the most recent limit entries oldest-first.
func (a *Agent) ActionHistory(limit int) []models.HistoryEntry {
	return a.history.Tail(limit)
}

// MemorySnapshot returns a deep copy of the learned state.
func (a *Agent) MemorySnapshot() models.MemorySnapshot {
	return a.memory.Snapshot()
}

// runCycle enters the cycle if the agent is idle. The busy check is
// non-destructive: a dropped request never touches a running cycle.
func (a *Agent) runCycle(ctx context.Context) error {
	if err := a.machine.To(models.StateAnalyzing); err != nil {
		a.logger.Warn().Err(err).Msg("cycle request ignored")
		return err
	}
	return a.cycle(ctx, a.ActiveGoal(), time.Now())
}

// cycle walks the phases. Any returned error or panic abandons the
// cycle: state drops to Idle and nothing reaches history or memory.
func (a *Agent) cycle(ctx context.Context, goal models.Goal, start time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &models.FatalCycleError{
				Phase: string(a.machine.Current()),
				Err:   fmt.Errorf("panic: %v", r),
			}
		}
		if err != nil {
			a.abortCycle(err)
		}
	}()

	a.logger.Debug().Str("goal", string(goal)).Msg("cycle started")

	phase := time.Now()
	signals := a.analyzeAll(ctx, goal)
	a.observePhase(models.StateAnalyzing, phase)
	if err = ctx.Err(); err != nil {
		return err
	}

	if err = a.transition(models.StatePlanning); err != nil {
		return err
	}
	phase = time.Now()
	view := a.portfolioView(ctx)
	planned := a.planner.Plan(goal, signals, view, time.Now())
	a.observePhase(models.StatePlanning, phase)
	if err = ctx.Err(); err != nil {
		return err
	}

	if err = a.transition(models.StateExecuting); err != nil {
		return err
	}
	phase = time.Now()
	executed, execErr := a.executor.ExecuteAll(ctx, planned)
	a.observePhase(models.StateExecuting, phase)
	if execErr != nil {
		return execErr
	}
	// History commits only once the whole Executing phase is done.
	a.history.CommitBatch(historyEntries(executed))

	if err = a.transition(models.StateMonitoring); err != nil {
		return err
	}
	phase = time.Now()
	results, monErr := a.monitor.Watch(ctx, executed)
	a.observePhase(models.StateMonitoring, phase)
	if monErr != nil {
		return monErr
	}

	if err = a.transition(models.StateLearning); err != nil {
		return err
	}
	phase = time.Now()
	batch := a.learner.Batch(goal, results, time.Now())
	a.memory.Commit(batch.outcomes, batch.patternIDs, batch.prefDeltas)
	a.persistMemory()
	a.observePhase(models.StateLearning, phase)

	if err = a.transition(models.StateIdle); err != nil {
		return err
	}
	a.completeCycle(ctx, start, len(signals), len(executed))
	return nil
}

// analyzeAll fans the symbol list over a bounded worker pool and joins
// every result before returning. Failed symbols are skipped, never
// fatal; Planning always sees the complete surviving batch.
func (a *Agent) analyzeAll(ctx context.Context, goal models.Goal) map[string]*models.SignalSet {
	symbols := a.cfg.Symbols
	out := make(map[string]*models.SignalSet, len(symbols))

	workers := a.cfg.AnalysisWorkers
	if workers > len(symbols) {
		workers = len(symbols)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				set, err := a.analysis.Analyze(ctx, symbol, goal)
				if err != nil {
					a.metrics.SymbolsSkipped.Inc()
					a.logger.Warn().Err(err).
						Str("symbol", symbol).
						Str("kind", string(models.Classify(err))).
						Msg("symbol skipped this cycle")
					continue
				}
				mu.Lock()
				out[symbol] = set
				mu.Unlock()
			}
		}()
	}

feed:
	for _, symbol := range symbols {
		select {
		case jobs <- symbol:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return out
}

// portfolioView snapshots the portfolio once per cycle so every
// planning decision works from the same numbers.
func (a *Agent) portfolioView(ctx context.Context) portfolioView {
	view := portfolioView{
		cash:      a.portfolio.Cash(),
		positions: a.portfolio.Holdings(),
	}
	value, err := a.portfolio.Value(ctx)
	if err != nil {
		// Cost-basis fallback keeps planning alive when quotes are down.
		value = view.cash
		for _, pos := range view.positions {
			value += pos.Quantity * pos.AvgCost
		}
		a.logger.Warn().Err(err).Msg("live valuation unavailable, using cost basis")
	}
	view.value = value
	return view
}

func (a *Agent) transition(next models.AgentState) error {
	if err := a.machine.To(next); err != nil {
		return &models.FatalCycleError{Phase: string(a.machine.Current()), Err: err}
	}
	return nil
}

func (a *Agent) observePhase(state models.AgentState, since time.Time) {
	a.metrics.PhaseDuration.WithLabelValues(string(state)).Observe(time.Since(since).Seconds())
}

// abortCycle abandons the current cycle: log, count, retain the error
// kind for status, notify when fatal, and force the machine back to
// Idle. Cancellation is a shutdown, not an error, and is only logged.
func (a *Agent) abortCycle(err error) {
	phase := a.machine.Current()
	a.machine.ForceIdle()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		a.logger.Info().Str("phase", string(phase)).Msg("cycle cancelled, partial state discarded")
		return
	}

	kind := models.Classify(err)
	a.metrics.CycleErrors.WithLabelValues(string(phase)).Inc()
	a.logger.Error().Err(err).
		Str("phase", string(phase)).
		Str("kind", string(kind)).
		Msg("cycle aborted")

	a.mu.Lock()
	a.lastErr = &models.CycleError{Kind: kind, At: time.Now()}
	a.mu.Unlock()

	var fatal *models.FatalCycleError
	if errors.As(err, &fatal) {
		// The cycle context may already be dead; alert on a fresh one.
		sendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		alert := notify.Alert{
			Level:   notify.LevelCritical,
			Title:   "Decision cycle aborted",
			Message: fmt.Sprintf("phase %s hit an internal error; agent returned to idle", fatal.Phase),
		}
		if serr := a.notifier.Send(sendCtx, alert); serr != nil {
			a.logger.Warn().Err(serr).Msg("fatal-cycle alert not delivered")
		}
	}
}

func (a *Agent) completeCycle(ctx context.Context, start time.Time, analyzed, executed int) {
	a.metrics.CyclesTotal.Inc()
	a.metrics.CycleDuration.Observe(time.Since(start).Seconds())

	successful, failed := a.memory.Counts()
	a.metrics.MemoryOutcomes.Set(float64(successful + failed))
	a.metrics.PatternsObserved.Set(float64(a.memory.PatternCount()))
	a.metrics.CashBalance.Set(a.portfolio.Cash())
	if value, err := a.portfolio.Value(ctx); err == nil {
		a.metrics.PortfolioValue.Set(value)
	}

	a.mu.Lock()
	a.cycleCount++
	a.lastCycleAt = time.Now()
	a.lastErr = nil
	count := a.cycleCount
	a.mu.Unlock()

	a.logger.Info().
		Uint64("cycle", count).
		Int("symbols", analyzed).
		Int("actions", executed).
		Dur("took", time.Since(start)).
		Msg("cycle complete")
}

func (a *Agent) persistMemory() {
	if a.snapshots == nil {
		return
	}
	if err := a.snapshots.Save(a.memory.Snapshot()); err != nil {
		a.logger.Warn().Err(err).Msg("memory snapshot not persisted")
	}
}
