package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/mattn/go-sqlite3"

	"finagent/models"
)

// keepSnapshots bounds how many historical snapshots stay on disk.
const keepSnapshots = 10

// SnapshotStore persists memory snapshots to a local SQLite file so the
// agent's learned state survives restarts.
type SnapshotStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSnapshotStore opens (and if needed initializes) the snapshot
// database at path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer, single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_snapshots (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_at INTEGER NOT NULL,
			payload  TEXT    NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	return &SnapshotStore{
		db:     db,
		logger: log.With().Str("component", "memory_snapshot").Logger(),
	}, nil
}

// Save writes a snapshot row and prunes old ones.
func (s *SnapshotStore) Save(snap models.MemorySnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if _, err := s.db.Exec(
		`INSERT INTO memory_snapshots (taken_at, payload) VALUES (?, ?)`,
		time.Now().Unix(), string(payload),
	); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	if _, err := s.db.Exec(
		`DELETE FROM memory_snapshots WHERE id NOT IN
			(SELECT id FROM memory_snapshots ORDER BY id DESC LIMIT ?)`,
		keepSnapshots,
	); err != nil {
		s.logger.Warn().Err(err).Msg("pruning old snapshots failed")
	}

	return nil
}

// LoadLatest returns the most recent snapshot, reporting found=false on
// an empty store.
func (s *SnapshotStore) LoadLatest() (models.MemorySnapshot, bool, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM memory_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MemorySnapshot{}, false, nil
	}
	if err != nil {
		return models.MemorySnapshot{}, false, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap models.MemorySnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return models.MemorySnapshot{}, false, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, true, nil
}

// Close releases the database handle.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
