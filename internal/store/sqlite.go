package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

func NewSQLite(dbFile string) (*SQLite, error) {
	if dbFile == "" {
		return nil, fmt.Errorf("must set db_file")
	}
	if _, err := os.Stat(dbFile); errors.Is(err, os.ErrNotExist) {
		f, err := os.Create(dbFile)
		if err != nil {
			return nil, err
		}
		f.Close()
	}

	db, err := sqlx.Connect("sqlite3", dbFile)
	if err != nil {
		return nil, fmt.Errorf("sqlx.Connect: %w", err)
	}

	s := SQLite{db: db}
	if err := s.createSchema(); err != nil {
		return nil, err
	}
	return &s, nil
}

type SQLite struct {
	db *sqlx.DB
}

func (s *SQLite) createSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS spent_nonce (
    nonce TEXT PRIMARY KEY,
    spent_at DATETIME DEFAULT CURRENT_TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS event (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    payload BLOB NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_kind ON event(kind);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("db.Exec schema: %w", err)
	}
	return nil
}

func (s *SQLite) SpendNonce(ctx context.Context, nonce string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO spent_nonce (nonce) VALUES (?)`, nonce)
	if err != nil {
		return false, fmt.Errorf("db.Exec spend nonce: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLite) ResetNonces(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM spent_nonce`); err != nil {
		return fmt.Errorf("db.Exec reset nonces: %w", err)
	}
	return nil
}

func (s *SQLite) AppendEvent(ctx context.Context, ev Event) error {
	const query = `INSERT INTO event (id, kind, payload, created_at) VALUES (:id, :kind, :payload, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, query, ev); err != nil {
		return fmt.Errorf("db.Exec append event: %w", err)
	}
	return nil
}

func (s *SQLite) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	const query = `SELECT * FROM event ORDER BY created_at DESC, id LIMIT ?`

	var events []Event
	if err := s.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("db.Select events: %w", err)
	}
	return events, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
