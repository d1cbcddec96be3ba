package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"eduquiz-ledger/internal/domain"
)

// Escrow accounting. The pool of a quiz always equals participantCount ×
// entryFee until resolution; settlement drains it to zero exactly once.
// Callers hold the ledger mutex.

// recordContribution validates and applies one entry-fee payment: exact
// amount, open window, no duplicate participant. The inbound transfer runs
// before any state changes, so a failed debit leaves the quiz untouched.
func (l *Ledger) recordContribution(ctx context.Context, quiz *domain.Quiz, payer domain.Address, amount decimal.Decimal) error {
	if !quiz.OpenForJoining(l.now()) {
		return domain.ErrQuizEnded
	}
	if quiz.HasParticipant(payer) {
		return domain.ErrAlreadyJoined
	}
	if !amount.Equal(quiz.EntryFee) {
		return fmt.Errorf("%w: entry fee is %s, got %s", domain.ErrWrongAmount, quiz.EntryFee, amount)
	}

	if err := l.bank.Transfer(ctx, payer, domain.EscrowAccount, amount); err != nil {
		return fmt.Errorf("%w: entry fee: %v", domain.ErrTransferFailed, err)
	}

	quiz.Participants = append(quiz.Participants, payer)
	quiz.PrizePool = quiz.PrizePool.Add(amount)
	return nil
}

// settleWinner drains the pool to the recorded winner. The quiz is already
// marked resolved by the caller; the pool is zeroed before the transfer is
// attempted (checks-effects-interactions), so the transfer can at worst park
// the payout, never re-open settlement.
func (l *Ledger) settleWinner(ctx context.Context, quiz *domain.Quiz) {
	payout := quiz.PrizePool
	quiz.PrizePool = decimal.Zero
	if !payout.IsPositive() {
		return
	}
	l.payOut(ctx, quiz.ID, quiz.Winner, payout)
}

// settleRefund returns each participant's exact contribution. Every
// participant is settled independently: a failing account parks that one
// share as a credit and the loop continues. An empty participant list
// resolves with no movement.
func (l *Ledger) settleRefund(ctx context.Context, quiz *domain.Quiz) {
	share := quiz.EntryFee
	quiz.PrizePool = decimal.Zero
	if !share.IsPositive() {
		return
	}
	for _, participant := range quiz.Participants {
		l.payOut(ctx, quiz.ID, participant, share)
	}
}

// payOut pushes funds from escrow to account, falling back to a pull-payment
// credit when the transfer fails. The funds stay on the escrow account until
// claimed.
func (l *Ledger) payOut(ctx context.Context, id domain.QuizID, account domain.Address, amount decimal.Decimal) {
	err := l.bank.Transfer(ctx, domain.EscrowAccount, account, amount)
	if err == nil {
		return
	}
	l.log.Warn("payout transfer failed, parking credit",
		"quiz", uint64(id), "account", string(account), "amount", amount.String(), "err", err)
	l.credits[account] = l.creditOf(account).Add(amount)
	l.journalErr("SetCredit", l.journal.SetCredit(ctx, account, l.credits[account]))
	l.emit(domain.FeedEvent{Kind: domain.FeedPayoutParked, Quiz: &id, Account: account, Amount: amount})
}

func (l *Ledger) creditOf(account domain.Address) decimal.Decimal {
	if c, ok := l.credits[account]; ok {
		return c
	}
	return decimal.Zero
}

// Credits returns the caller's parked payout balance. Pure query.
func (l *Ledger) Credits(account domain.Address) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.creditOf(account)
}

// Withdraw claims the caller's parked payout. The credit is cleared before
// the transfer and restored only if that transfer fails, so a credit can
// never be paid twice. Deliberately not gated by the pause switch: an
// emergency stop must not trap funds already owed.
func (l *Ledger) Withdraw(ctx context.Context, caller domain.Address) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	amount := l.creditOf(caller)
	if !amount.IsPositive() {
		return decimal.Zero, domain.ErrNothingToWithdraw
	}

	delete(l.credits, caller)
	l.journalErr("SetCredit", l.journal.SetCredit(ctx, caller, decimal.Zero))

	if err := l.bank.Transfer(ctx, domain.EscrowAccount, caller, amount); err != nil {
		l.credits[caller] = amount
		l.journalErr("SetCredit", l.journal.SetCredit(ctx, caller, amount))
		return decimal.Zero, fmt.Errorf("%w: withdraw: %v", domain.ErrTransferFailed, err)
	}
	l.emit(domain.FeedEvent{Kind: domain.FeedWithdrawal, Account: caller, Amount: amount})
	return amount, nil
}
