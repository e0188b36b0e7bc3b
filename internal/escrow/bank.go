package escrow

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryBank is an in-process Bank keeping plain account balances. The
// production deployment points the ledger at the platform's native
// currency instead; this one backs tests and the single-node demo.
type MemoryBank struct {
	mu       sync.Mutex
	balances map[common.Address]uint64
}

func NewMemoryBank(initial map[common.Address]uint64) *MemoryBank {
	balances := make(map[common.Address]uint64, len(initial))
	for addr, amount := range initial {
		balances[addr] = amount
	}
	return &MemoryBank{balances: balances}
}

func (b *MemoryBank) Transfer(_ context.Context, from, to common.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[from] < amount {
		return ErrInsufficientFunds
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	return nil
}

func (b *MemoryBank) Balance(addr common.Address) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[addr]
}

// Credit mints balance for an account. Demo faucet only.
func (b *MemoryBank) Credit(addr common.Address, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] += amount
}
