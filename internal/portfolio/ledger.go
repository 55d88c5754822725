package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/lib/pq"

	"finagent/models"
)

// Ledger mirrors settled trades and the resulting holdings to Postgres
// for audit. The in-process book stays authoritative; a failed mirror
// write is logged by the manager and never blocks settlement.
type Ledger struct {
	db     *sql.DB
	logger zerolog.Logger
}

// TradeRecord is one settled trade with the book state it produced.
type TradeRecord struct {
	ActionID    string
	Kind        models.ActionKind
	Symbol      string
	Quantity    float64
	Price       float64
	CashAfter   float64
	PositionQty float64
	AvgCost     float64
	At          time.Time
}

// OpenLedger connects to the Postgres at url and ensures the schema.
func OpenLedger(url string) (*Ledger, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{
		db:     db,
		logger: log.With().Str("component", "ledger").Logger(),
	}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id          BIGSERIAL PRIMARY KEY,
			action_id   TEXT NOT NULL,
			kind        TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			quantity    NUMERIC(18,4) NOT NULL,
			price       NUMERIC(18,4) NOT NULL,
			cash_after  NUMERIC(18,2) NOT NULL,
			executed_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("transactions schema: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS holdings (
			symbol     TEXT PRIMARY KEY,
			quantity   NUMERIC(18,4) NOT NULL,
			avg_cost   NUMERIC(18,4) NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("holdings schema: %w", err)
	}
	return nil
}

// RecordTrade appends the transaction and upserts the holding it left
// behind, atomically.
func (l *Ledger) RecordTrade(ctx context.Context, rec TradeRecord) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (
			action_id, kind, symbol, quantity, price, cash_after, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ActionID, string(rec.Kind), rec.Symbol, rec.Quantity, rec.Price, rec.CashAfter, rec.At)
	if err != nil {
		return fmt.Errorf("ledger transaction insert: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO holdings (symbol, quantity, avg_cost, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol)
		DO UPDATE SET
			quantity   = EXCLUDED.quantity,
			avg_cost   = EXCLUDED.avg_cost,
			updated_at = EXCLUDED.updated_at
	`, rec.Symbol, rec.PositionQty, rec.AvgCost, rec.At)
	if err != nil {
		return fmt.Errorf("ledger holdings upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger commit: %w", err)
	}

	l.logger.Debug().Str("symbol", rec.Symbol).Str("kind", string(rec.Kind)).Msg("trade mirrored")
	return nil
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}
