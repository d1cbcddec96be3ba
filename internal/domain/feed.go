package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeedKind tags the records published on the ledger event feed.
type FeedKind string

const (
	FeedRoleGranted   FeedKind = "roleGranted"
	FeedRoleRevoked   FeedKind = "roleRevoked"
	FeedPaused        FeedKind = "paused"
	FeedUnpaused      FeedKind = "unpaused"
	FeedQuizCreated   FeedKind = "quizCreated"
	FeedQuizJoined    FeedKind = "quizJoined"
	FeedQuizEnded     FeedKind = "quizEnded"
	FeedQuizCancelled FeedKind = "quizCancelled"
	FeedCourseCreated FeedKind = "courseCreated"
	FeedEventCreated  FeedKind = "eventCreated"
	FeedPayoutParked  FeedKind = "payoutParked"
	FeedWithdrawal    FeedKind = "withdrawal"
	FeedFeesWithdrawn FeedKind = "feesWithdrawn"
)

// FeedEvent is one observable ledger state change. Zero-valued fields are
// omitted on the wire; Amount is present only for money movements.
type FeedEvent struct {
	ID      string          `json:"id"`
	Kind    FeedKind        `json:"kind"`
	Quiz    *QuizID         `json:"quizId,omitempty"`
	Account Address         `json:"account,omitempty"`
	Role    string          `json:"role,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	At      time.Time       `json:"at"`
}
