// Package escrow tracks the deposits locked against marketplace offers
// and moves native-currency value through an external Bank. The ledger
// itself never decides who may withdraw; that authorization lives in the
// marketplace service.
package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

type EntryStatus int

const (
	EntryPending EntryStatus = iota
	EntryWithdrawn
)

// Entry is one escrowed deposit, keyed by the offer it backs.
type Entry struct {
	OfferID uint64
	Payer   common.Address
	Amount  uint64
	Status  EntryStatus
}

// Bank is the external custody collaborator. Transfer either moves the
// full amount or fails without side effects.
type Bank interface {
	Transfer(ctx context.Context, from, to common.Address, amount uint64) error
}

// Ledger holds deposits in a vault account. It is not safe for
// concurrent use on its own; the marketplace service serializes access.
type Ledger struct {
	bank    Bank
	vault   common.Address
	entries map[uint64]*Entry
}

func New(bank Bank, vault common.Address) *Ledger {
	return &Ledger{
		bank:    bank,
		vault:   vault,
		entries: make(map[uint64]*Entry),
	}
}

// Deposit locks amount from payer against offerID. The bank transfer and
// the bookkeeping succeed or fail together.
func (l *Ledger) Deposit(ctx context.Context, offerID uint64, payer common.Address, amount uint64) error {
	if _, ok := l.entries[offerID]; ok {
		return fmt.Errorf("escrow entry for offer %d already exists", offerID)
	}
	if err := l.bank.Transfer(ctx, payer, l.vault, amount); err != nil {
		return fmt.Errorf("deposit transfer: %w", err)
	}
	l.entries[offerID] = &Entry{
		OfferID: offerID,
		Payer:   payer,
		Amount:  amount,
		Status:  EntryPending,
	}
	return nil
}

// Entry returns the live escrow entry for an offer. Withdrawn entries
// are reported as not found: the money is gone, not double-payable.
func (l *Ledger) Entry(offerID uint64) (*Entry, error) {
	e, ok := l.entries[offerID]
	if !ok || e.Status == EntryWithdrawn {
		return nil, ErrPaymentNotFound
	}
	return e, nil
}

// Withdraw pays out the deposit behind offerID to the given account,
// exactly once. Bookkeeping is flipped before the transfer and rolled
// back if the receiver cannot accept the funds, so books and custody
// never diverge.
func (l *Ledger) Withdraw(ctx context.Context, offerID uint64, to common.Address) (uint64, error) {
	e, err := l.Entry(offerID)
	if err != nil {
		return 0, err
	}
	e.Status = EntryWithdrawn
	if err := l.bank.Transfer(ctx, l.vault, to, e.Amount); err != nil {
		e.Status = EntryPending
		return 0, fmt.Errorf("withdraw transfer: %w", err)
	}
	return e.Amount, nil
}

// VaultBalance sums the still-locked deposits.
func (l *Ledger) VaultBalance() uint64 {
	var total uint64
	for _, e := range l.entries {
		if e.Status == EntryPending {
			total += e.Amount
		}
	}
	return total
}
