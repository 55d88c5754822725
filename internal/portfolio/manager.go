// Package portfolio keeps the agent's cash and positions and settles
// the actions the decision engine retains. Cash and quantities are
// decimals so fractional trades accumulate no float drift.
package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"finagent/models"
)

// position is the internal decimal view of one holding.
type position struct {
	qty     decimal.Decimal
	avgCost decimal.Decimal
}

// Manager is an in-process portfolio book. It is the authoritative
// record for a session; the optional ledger only mirrors it. Safe for
// concurrent use, though the decision engine settles sequentially.
type Manager struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]*position

	quotes models.MarketData
	ledger *Ledger
	logger zerolog.Logger
}

// Options configures a Manager.
type Options struct {
	StartingCash float64
	Quotes       models.MarketData
	Ledger       *Ledger // nil disables mirroring
}

// NewManager creates a portfolio book holding opts.StartingCash.
func NewManager(opts Options) *Manager {
	return &Manager{
		cash:      decimal.NewFromFloat(opts.StartingCash),
		positions: make(map[string]*position),
		quotes:    opts.Quotes,
		ledger:    opts.Ledger,
		logger:    log.With().Str("component", "portfolio").Logger(),
	}
}

// Execute settles a Buy, Sell or Rebalance at the live quote. Business
// declines (not enough cash, no or too small a position) come back as
// RejectedError; anything else is an infrastructure failure.
func (m *Manager) Execute(ctx context.Context, action models.Action) (*models.OutcomeSnapshot, error) {
	switch action.Kind {
	case models.ActionBuy, models.ActionSell, models.ActionRebalance:
	default:
		return nil, fmt.Errorf("portfolio cannot settle %s actions", action.Kind)
	}
	if action.Quantity <= 0 {
		return nil, &models.RejectedError{Reason: "nonpositive quantity"}
	}

	price, err := m.quotes.Quote(ctx, action.Symbol)
	if err != nil {
		return nil, fmt.Errorf("quoting %s for settlement: %w", action.Symbol, err)
	}

	qty := decimal.NewFromFloat(action.Quantity)
	fill := decimal.NewFromFloat(price)
	gross := qty.Mul(fill)

	m.mu.Lock()
	var after position
	switch action.Kind {
	case models.ActionBuy:
		if gross.GreaterThan(m.cash) {
			m.mu.Unlock()
			return nil, &models.RejectedError{Reason: "insufficient cash for buy"}
		}
		m.cash = m.cash.Sub(gross)
		pos := m.positions[action.Symbol]
		if pos == nil {
			pos = &position{}
			m.positions[action.Symbol] = pos
		}
		newQty := pos.qty.Add(qty)
		pos.avgCost = pos.qty.Mul(pos.avgCost).Add(gross).Div(newQty)
		pos.qty = newQty
		after = *pos

	default: // Sell and Rebalance both reduce the position
		pos := m.positions[action.Symbol]
		if pos == nil {
			m.mu.Unlock()
			return nil, &models.RejectedError{Reason: "no position in " + action.Symbol + " to sell"}
		}
		if qty.GreaterThan(pos.qty) {
			m.mu.Unlock()
			return nil, &models.RejectedError{Reason: "sell quantity exceeds position"}
		}
		m.cash = m.cash.Add(gross)
		pos.qty = pos.qty.Sub(qty)
		after = *pos
		if pos.qty.IsZero() {
			delete(m.positions, action.Symbol)
		}
	}
	cashAfter := m.cash
	book := m.holdingsLocked()
	m.mu.Unlock()

	value := m.estimateValue(ctx, cashAfter, book, action.Symbol, price)

	if m.ledger != nil {
		afterQty, _ := after.qty.Float64()
		afterAvg, _ := after.avgCost.Float64()
		cashF, _ := cashAfter.Float64()
		rec := TradeRecord{
			ActionID:    action.ID,
			Kind:        action.Kind,
			Symbol:      action.Symbol,
			Quantity:    action.Quantity,
			Price:       price,
			CashAfter:   cashF,
			PositionQty: afterQty,
			AvgCost:     afterAvg,
			At:          time.Now(),
		}
		if err := m.ledger.RecordTrade(ctx, rec); err != nil {
			m.logger.Warn().Err(err).Str("symbol", action.Symbol).Msg("ledger write failed")
		}
	}

	m.logger.Debug().
		Str("symbol", action.Symbol).
		Str("kind", string(action.Kind)).
		Float64("quantity", action.Quantity).
		Float64("price", price).
		Msg("trade settled")

	snapCash, _ := cashAfter.Float64()
	snapQty, _ := after.qty.Float64()
	return &models.OutcomeSnapshot{
		Symbol:         action.Symbol,
		ExecutedQty:    action.Quantity,
		Price:          price,
		CashAfter:      snapCash,
		PositionQty:    snapQty,
		PortfolioValue: value,
	}, nil
}

// Holdings returns a float copy of the current book.
func (m *Manager) Holdings() map[string]models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holdingsLocked()
}

func (m *Manager) holdingsLocked() map[string]models.Position {
	out := make(map[string]models.Position, len(m.positions))
	for symbol, pos := range m.positions {
		qty, _ := pos.qty.Float64()
		avg, _ := pos.avgCost.Float64()
		out[symbol] = models.Position{Symbol: symbol, Quantity: qty, AvgCost: avg}
	}
	return out
}

// Cash returns the free cash balance.
func (m *Manager) Cash() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	cash, _ := m.cash.Float64()
	return cash
}

// Value prices the full book with live quotes. Any quote failure is an
// error so the caller can choose its own fallback.
func (m *Manager) Value(ctx context.Context) (float64, error) {
	m.mu.Lock()
	cash := m.cash
	book := m.holdingsLocked()
	m.mu.Unlock()

	total, _ := cash.Float64()
	for symbol, pos := range book {
		price, err := m.quotes.Quote(ctx, symbol)
		if err != nil {
			return 0, fmt.Errorf("valuing %s: %w", symbol, err)
		}
		total += pos.Quantity * price
	}
	return total, nil
}

// estimateValue prices the book for an outcome snapshot, reusing the
// fill price for the symbol just settled. A failed quote degrades that
// one position to cost basis rather than losing the whole estimate.
func (m *Manager) estimateValue(ctx context.Context, cash decimal.Decimal, book map[string]models.Position, settled string, fill float64) float64 {
	value, _ := cash.Float64()
	for symbol, pos := range book {
		price := fill
		if symbol != settled {
			quoted, err := m.quotes.Quote(ctx, symbol)
			if err != nil {
				m.logger.Debug().Err(err).Str("symbol", symbol).Msg("cost basis used in snapshot value")
				price = pos.AvgCost
			} else {
				price = quoted
			}
		}
		value += pos.Quantity * price
	}
	return value
}
