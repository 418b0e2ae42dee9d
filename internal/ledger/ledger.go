// Package ledger holds the single shared account that every payment draws on.
package ledger

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

type Account struct {
	mu              sync.Mutex
	balance         decimal.Decimal
	limitPerPayment decimal.Decimal
}

func NewAccount(initialBalance, limitPerPayment decimal.Decimal) (*Account, error) {
	if initialBalance.IsNegative() {
		return nil, fmt.Errorf("initial balance must not be negative: %s", initialBalance)
	}
	if !limitPerPayment.IsPositive() {
		return nil, fmt.Errorf("limit per payment must be positive: %s", limitPerPayment)
	}
	return &Account{
		balance:         initialBalance,
		limitPerPayment: limitPerPayment,
	}, nil
}

// TryReserve approves amounts at or below the per-payment limit.
// It never touches the balance.
func (a *Account) TryReserve(amount decimal.Decimal) bool {
	return amount.LessThanOrEqual(a.limitPerPayment)
}

// TryDebit subtracts amount from the balance if it is covered.
// The comparison and the subtraction happen under the same lock.
func (a *Account) TryDebit(amount decimal.Decimal) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if amount.GreaterThan(a.balance) {
		return false
	}
	a.balance = a.balance.Sub(amount)
	return true
}

// Restore gives back a debit whose transition could not be persisted.
func (a *Account) Restore(amount decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = a.balance.Add(amount)
}

func (a *Account) Balance() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

func (a *Account) Limit() decimal.Decimal {
	return a.limitPerPayment
}
