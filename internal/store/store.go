// Package store persists the marketplace's side state: the spent
// access-token nonces and the append-only event journal. Deployments
// pick the sqlite or the postgres backend through config.
package store

import (
	"context"
	"time"
)

// Event is one journaled marketplace event. Payload is the JSON
// encoding of the emitted event struct.
type Event struct {
	ID        string    `db:"id"`
	Kind      string    `db:"kind"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

type Store interface {
	// SpendNonce records a nonce as used. Returns false when it was
	// already present.
	SpendNonce(ctx context.Context, nonce string) (bool, error)
	ResetNonces(ctx context.Context) error

	AppendEvent(ctx context.Context, ev Event) error
	// ListEvents returns the newest events first, up to limit.
	ListEvents(ctx context.Context, limit int) ([]Event, error)

	Close() error
}
