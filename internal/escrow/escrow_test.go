package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

var (
	vault = common.HexToAddress("0x01")
	alice = common.HexToAddress("0xaa")
	bob   = common.HexToAddress("0xbb")
)

func TestDeposit(t *testing.T) {
	ctx := context.Background()

	t.Run("moves funds into the vault", func(t *testing.T) {
		bank := NewMemoryBank(map[common.Address]uint64{alice: 100})
		l := New(bank, vault)

		err := l.Deposit(ctx, 1, alice, 60)
		assert.NoError(t, err)
		assert.Equal(t, uint64(40), bank.Balance(alice))
		assert.Equal(t, uint64(60), bank.Balance(vault))
		assert.Equal(t, uint64(60), l.VaultBalance())
	})

	t.Run("insufficient funds leaves no entry", func(t *testing.T) {
		bank := NewMemoryBank(map[common.Address]uint64{alice: 10})
		l := New(bank, vault)

		err := l.Deposit(ctx, 1, alice, 60)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		_, err = l.Entry(1)
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})

	t.Run("duplicate offer rejected", func(t *testing.T) {
		bank := NewMemoryBank(map[common.Address]uint64{alice: 100})
		l := New(bank, vault)

		assert.NoError(t, l.Deposit(ctx, 1, alice, 30))
		assert.Error(t, l.Deposit(ctx, 1, alice, 30))
		assert.Equal(t, uint64(70), bank.Balance(alice))
	})
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("pays out exactly once", func(t *testing.T) {
		bank := NewMemoryBank(map[common.Address]uint64{alice: 100})
		l := New(bank, vault)
		assert.NoError(t, l.Deposit(ctx, 1, alice, 60))

		amount, err := l.Withdraw(ctx, 1, bob)
		assert.NoError(t, err)
		assert.Equal(t, uint64(60), amount)
		assert.Equal(t, uint64(60), bank.Balance(bob))
		assert.Equal(t, uint64(0), bank.Balance(vault))

		_, err = l.Withdraw(ctx, 1, bob)
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})

	t.Run("unknown offer", func(t *testing.T) {
		l := New(NewMemoryBank(nil), vault)

		_, err := l.Withdraw(ctx, 42, bob)
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})

	t.Run("transfer failure rolls back", func(t *testing.T) {
		bank := &failingBank{failAfter: 1}
		l := New(bank, vault)
		assert.NoError(t, l.Deposit(ctx, 1, alice, 60))

		_, err := l.Withdraw(ctx, 1, bob)
		assert.Error(t, err)

		// The entry must still be live and withdrawable.
		e, err := l.Entry(1)
		assert.NoError(t, err)
		assert.Equal(t, EntryPending, e.Status)

		bank.failAfter = 1
		amount, err := l.Withdraw(ctx, 1, bob)
		assert.NoError(t, err)
		assert.Equal(t, uint64(60), amount)
	})
}

// failingBank accepts failAfter transfers, then errors.
type failingBank struct {
	failAfter int
}

func (b *failingBank) Transfer(context.Context, common.Address, common.Address, uint64) error {
	if b.failAfter <= 0 {
		return errors.New("bank unavailable")
	}
	b.failAfter--
	return nil
}
