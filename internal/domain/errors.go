package domain

import "errors"

var (
	// ErrUnauthorized is returned when the caller lacks the role or
	// administrator authority an operation requires.
	ErrUnauthorized = errors.New("caller not authorized")
	// ErrPaused is returned by mutating operations while the emergency
	// switch is on.
	ErrPaused = errors.New("ledger is paused")
	// ErrQuizNotFound indicates an unknown quiz id.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrCourseNotFound indicates an unknown course id.
	ErrCourseNotFound = errors.New("course not found")
	// ErrEventNotFound indicates an unknown event id.
	ErrEventNotFound = errors.New("event not found")
	// ErrInvalidStateTransition covers pause toggles in the wrong state.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrAlreadyResolved is returned when ending or cancelling a quiz that
	// already reached a terminal state.
	ErrAlreadyResolved = errors.New("quiz already resolved")
	// ErrQuizEnded is returned when joining after the end time or after
	// resolution.
	ErrQuizEnded = errors.New("quiz has ended")
	// ErrWrongAmount means the payment does not equal the required fee.
	ErrWrongAmount = errors.New("payment does not match required amount")
	// ErrAlreadyJoined means the payer is already a participant.
	ErrAlreadyJoined = errors.New("already joined quiz")
	// ErrInvalidWinner means the declared winner never joined the quiz.
	ErrInvalidWinner = errors.New("winner is not a participant")
	// ErrInvalidTimeWindow means startTime/endTime do not form a valid
	// future window.
	ErrInvalidTimeWindow = errors.New("invalid quiz time window")
	// ErrTransferFailed wraps a settlement bank failure.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrNothingToWithdraw means the caller has no parked payout credit.
	ErrNothingToWithdraw = errors.New("no claimable funds")
)
