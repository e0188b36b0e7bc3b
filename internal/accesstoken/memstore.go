package accesstoken

import (
	"context"
	"sync"
)

// MemoryNonceStore keeps the spent-nonce set in process memory.
type MemoryNonceStore struct {
	mu    sync.Mutex
	spent map[[32]byte]bool
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{spent: make(map[[32]byte]bool)}
}

func (s *MemoryNonceStore) Spend(_ context.Context, nonce [32]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spent[nonce] {
		return false, nil
	}
	s.spent[nonce] = true
	return true, nil
}

func (s *MemoryNonceStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spent = make(map[[32]byte]bool)
	return nil
}
