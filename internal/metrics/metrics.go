// Package metrics exposes Prometheus instrumentation for the decision
// engine: cycle throughput, phase latency, action outcomes and
// portfolio gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the agent.
type Metrics struct {
	CyclesTotal   prometheus.Counter
	CycleErrors   *prometheus.CounterVec // labels: phase
	CycleDuration prometheus.Histogram
	PhaseDuration *prometheus.HistogramVec // labels: phase

	ActionsTotal     *prometheus.CounterVec // labels: kind, status
	ActionConfidence prometheus.Histogram
	SymbolsSkipped   prometheus.Counter

	PortfolioValue prometheus.Gauge
	CashBalance    prometheus.Gauge

	MemoryOutcomes    prometheus.Gauge
	PatternsObserved  prometheus.Gauge
	ReasonerFallbacks prometheus.Counter
}

// New registers and returns all collectors on the default registry.
func New() *Metrics {
	m := newCollectors()
	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleErrors,
		m.CycleDuration,
		m.PhaseDuration,
		m.ActionsTotal,
		m.ActionConfidence,
		m.SymbolsSkipped,
		m.PortfolioValue,
		m.CashBalance,
		m.MemoryOutcomes,
		m.PatternsObserved,
		m.ReasonerFallbacks,
	)
	return m
}

// Nop returns unregistered collectors, used by tests.
func Nop() *Metrics {
	return newCollectors()
}

func newCollectors() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finagent_cycles_total",
			Help: "Completed decision cycles",
		}),
		CycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finagent_cycle_errors_total",
			Help: "Cycle-aborting errors by phase",
		}, []string{"phase"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "finagent_cycle_duration_seconds",
			Help:    "Wall-clock duration of a full decision cycle",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finagent_phase_duration_seconds",
			Help:    "Duration of each cycle phase",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		}, []string{"phase"}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finagent_actions_total",
			Help: "Planned actions by kind and execution status",
		}, []string{"kind", "status"}),
		ActionConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "finagent_action_confidence",
			Help:    "Confidence of executed actions",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
		}),
		SymbolsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finagent_symbols_skipped_total",
			Help: "Symbols skipped in a cycle because analysis failed",
		}),
		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "finagent_portfolio_value",
			Help: "Total portfolio value after the last cycle",
		}),
		CashBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "finagent_cash_balance",
			Help: "Uninvested cash after the last cycle",
		}),
		MemoryOutcomes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "finagent_memory_outcomes",
			Help: "Strategy outcomes currently retained in memory",
		}),
		PatternsObserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "finagent_memory_patterns",
			Help: "Distinct market patterns observed so far",
		}),
		ReasonerFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finagent_reasoner_fallbacks_total",
			Help: "Decisions made rule-only because no AI insight arrived",
		}),
	}
}
