package chain

import (
	"errors"
	"fmt"

	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/vault"
)

// Transfer failures.
var (
	ErrZeroAmount          = errors.New("transfer amount must be positive")
	ErrSelfTransfer        = errors.New("sender and recipient are the same")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("recipient balance overflow")
)

// Bank is the ledger's native token balance sheet.
type Bank struct {
	balances map[vault.Principal]uint64
}

// NewBank returns a bank seeded with genesis balances.
func NewBank(genesis map[vault.Principal]uint64) *Bank {
	balances := make(map[vault.Principal]uint64, len(genesis))
	for p, amount := range genesis {
		balances[p] = amount
	}
	return &Bank{balances: balances}
}

// Balance returns p's balance.
func (b *Bank) Balance(p vault.Principal) uint64 {
	return b.balances[p]
}

// Transfer moves amount from one principal to another.
func (b *Bank) Transfer(from, to vault.Principal, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if from == to {
		return ErrSelfTransfer
	}
	if b.balances[from] < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientBalance, from, b.balances[from], amount)
	}
	if b.balances[to]+amount < b.balances[to] {
		return ErrBalanceOverflow
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	return nil
}
