package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func NewPostgres(dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("must set dsn")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlx.Connect: %w", err)
	}

	p := Postgres{db: db}
	if err := p.createSchema(); err != nil {
		return nil, err
	}
	return &p, nil
}

type Postgres struct {
	db *sqlx.DB
}

func (p *Postgres) createSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS spent_nonce (
    nonce TEXT PRIMARY KEY,
    spent_at TIMESTAMPTZ DEFAULT now() NOT NULL
);
CREATE TABLE IF NOT EXISTS event (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    payload BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_kind ON event(kind);
	`

	if _, err := p.db.Exec(schema); err != nil {
		return fmt.Errorf("db.Exec schema: %w", err)
	}
	return nil
}

func (p *Postgres) SpendNonce(ctx context.Context, nonce string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `INSERT INTO spent_nonce (nonce) VALUES ($1) ON CONFLICT DO NOTHING`, nonce)
	if err != nil {
		return false, fmt.Errorf("db.Exec spend nonce: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *Postgres) ResetNonces(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM spent_nonce`); err != nil {
		return fmt.Errorf("db.Exec reset nonces: %w", err)
	}
	return nil
}

func (p *Postgres) AppendEvent(ctx context.Context, ev Event) error {
	const query = `INSERT INTO event (id, kind, payload, created_at) VALUES (:id, :kind, :payload, :created_at)`
	if _, err := p.db.NamedExecContext(ctx, query, ev); err != nil {
		return fmt.Errorf("db.Exec append event: %w", err)
	}
	return nil
}

func (p *Postgres) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	const query = `SELECT * FROM event ORDER BY created_at DESC, id LIMIT $1`

	var events []Event
	if err := p.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("db.Select events: %w", err)
	}
	return events, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
