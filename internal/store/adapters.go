package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/smaug-iot/marketplace/internal/accesstoken"
	"github.com/smaug-iot/marketplace/internal/marketplace"
)

// Nonces exposes a backend's spent-nonce table as the authorizer's
// nonce store.
func Nonces(s Store) accesstoken.NonceStore {
	return nonceStore{s}
}

type nonceStore struct {
	s Store
}

func (n nonceStore) Spend(ctx context.Context, nonce [32]byte) (bool, error) {
	return n.s.SpendNonce(ctx, hex.EncodeToString(nonce[:]))
}

func (n nonceStore) Reset(ctx context.Context) error {
	return n.s.ResetNonces(ctx)
}

// Journal records every marketplace event into the backing store. Write
// failures are logged and swallowed so a journal outage never fails the
// operation that produced the event.
type Journal struct {
	s Store
}

func NewJournal(s Store) *Journal {
	return &Journal{s: s}
}

func (j *Journal) Emit(ctx context.Context, ev marketplace.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("error marshaling %s event: %v", ev.Kind(), err)
		return
	}

	rec := Event{
		ID:        uuid.NewString(),
		Kind:      ev.Kind(),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := j.s.AppendEvent(ctx, rec); err != nil {
		log.Printf("error journaling %s event: %v", ev.Kind(), err)
	}
}
