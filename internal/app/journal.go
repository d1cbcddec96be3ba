package app

import (
	"context"

	"github.com/shopspring/decimal"

	"eduquiz-ledger/internal/domain"
)

// nopJournal is the default journal when no durable store is configured.
type nopJournal struct{}

func (nopJournal) UpsertQuiz(context.Context, domain.Quiz) error { return nil }
func (nopJournal) AddParticipant(context.Context, domain.QuizID, domain.Address, decimal.Decimal) error {
	return nil
}
func (nopJournal) UpsertCourse(context.Context, domain.Course) error { return nil }
func (nopJournal) UpsertEvent(context.Context, domain.Event) error   { return nil }
func (nopJournal) SetRole(context.Context, domain.Role, domain.Address, bool) error {
	return nil
}
func (nopJournal) SetCredit(context.Context, domain.Address, decimal.Decimal) error {
	return nil
}
func (nopJournal) SetPaused(context.Context, bool) error                  { return nil }
func (nopJournal) SetCollectedFees(context.Context, decimal.Decimal) error { return nil }
