package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuizID is a sequential quiz identifier, allocated from 0.
type QuizID uint64

// Quiz is a paid, time-bounded competitive event with pooled entry fees.
// Active is true from creation until the quiz is resolved, either by paying
// the whole pool to a winner or by refunding every participant. Once false it
// never flips back.
type Quiz struct {
	ID           QuizID
	Teacher      Address
	Name         string
	EntryFee     decimal.Decimal
	StartTime    time.Time
	EndTime      time.Time
	PrizePool    decimal.Decimal
	Active       bool
	Winner       Address // empty until resolved with a winner
	Participants []Address
}

// HasParticipant reports whether account already joined.
func (q *Quiz) HasParticipant(account Address) bool {
	for _, p := range q.Participants {
		if p == account {
			return true
		}
	}
	return false
}

// OpenForJoining reports whether a join at the given instant is allowed.
// Joining before StartTime is permitted; only EndTime closes the window.
func (q *Quiz) OpenForJoining(now time.Time) bool {
	return q.Active && now.Before(q.EndTime)
}

// Details is the read-model snapshot of a quiz, field order matching the
// getQuizDetails tuple clients already know.
type Details struct {
	ID               QuizID          `json:"id"`
	Teacher          Address         `json:"teacher"`
	Name             string          `json:"name"`
	EntryFee         decimal.Decimal `json:"entryFee"`
	StartTime        time.Time       `json:"startTime"`
	EndTime          time.Time       `json:"endTime"`
	PrizePool        decimal.Decimal `json:"prizePool"`
	Active           bool            `json:"active"`
	Winner           Address         `json:"winner,omitempty"`
	ParticipantCount int             `json:"participantCount"`
}

// Snapshot builds the read model, copying nothing mutable.
func (q *Quiz) Snapshot() Details {
	return Details{
		ID:               q.ID,
		Teacher:          q.Teacher,
		Name:             q.Name,
		EntryFee:         q.EntryFee,
		StartTime:        q.StartTime,
		EndTime:          q.EndTime,
		PrizePool:        q.PrizePool,
		Active:           q.Active,
		Winner:           q.Winner,
		ParticipantCount: len(q.Participants),
	}
}

// Course is a priced catalog listing. Ids are sequential from 1.
type Course struct {
	ID    uint64          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Event is a priced catalog listing with a start date. Ids are sequential
// from 1, counted separately from courses.
type Event struct {
	ID        uint64          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	StartDate time.Time       `json:"startDate"`
}
