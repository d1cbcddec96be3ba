package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"eduquiz-ledger/internal/domain"
)

// Bank is an in-memory settlement bank: per-account balances, atomic
// debit-then-credit transfers. It stands in for whatever payment rail the
// ledger is deployed against; tests script it to fail for chosen recipients.
type Bank struct {
	mu       sync.Mutex
	balances map[domain.Address]decimal.Decimal
	opening  decimal.Decimal
	rejects  map[domain.Address]struct{}
}

// BankOption configures a Bank.
type BankOption func(*Bank)

// WithOpeningBalance seeds every account with the given balance on first
// touch. Demo servers use it; tests usually mint explicitly instead.
func WithOpeningBalance(amount decimal.Decimal) BankOption {
	return func(b *Bank) { b.opening = amount }
}

func NewBank(opts ...BankOption) *Bank {
	b := &Bank{
		balances: make(map[domain.Address]decimal.Decimal),
		opening:  decimal.Zero,
		rejects:  make(map[domain.Address]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Transfer moves amount from one account to another. It fails on unknown or
// underfunded payers and on recipients marked as rejecting; on failure no
// balance changes.
func (b *Bank) Transfer(_ context.Context, from, to domain.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("negative amount %s", amount)
	}
	if from == "" || to == "" {
		return fmt.Errorf("transfer requires both accounts")
	}
	if from == to {
		return fmt.Errorf("transfer to self")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, rejecting := b.rejects[to]; rejecting {
		return fmt.Errorf("account %s rejects transfers", to)
	}
	balance := b.balanceLocked(from)
	if balance.LessThan(amount) {
		return fmt.Errorf("insufficient funds on %s: have %s, need %s", from, balance, amount)
	}
	b.balances[from] = balance.Sub(amount)
	b.balances[to] = b.balanceLocked(to).Add(amount)
	return nil
}

// Mint credits an account out of thin air.
func (b *Bank) Mint(account domain.Address, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] = b.balanceLocked(account).Add(amount)
}

// Balance returns the current balance of an account.
func (b *Bank) Balance(account domain.Address) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balanceLocked(account)
}

// Reject makes future transfers to account fail, emulating a recipient whose
// transfer hook reverts.
func (b *Bank) Reject(account domain.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejects[account] = struct{}{}
}

// Accept clears a rejection set with Reject.
func (b *Bank) Accept(account domain.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rejects, account)
}

func (b *Bank) balanceLocked(account domain.Address) decimal.Decimal {
	if bal, ok := b.balances[account]; ok {
		return bal
	}
	if b.opening.IsPositive() {
		b.balances[account] = b.opening
		return b.opening
	}
	return decimal.Zero
}
