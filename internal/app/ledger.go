package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"eduquiz-ledger/internal/domain"
)

// Bank moves value between external accounts. It is the only point where
// control leaves the ledger, so every call happens after the ledger's own
// bookkeeping is final.
type Bank interface {
	Transfer(ctx context.Context, from, to domain.Address, amount decimal.Decimal) error
}

// Journal receives every committed mutation write-through. The in-memory
// state stays authoritative; journal failures are logged and do not fail the
// operation (the projection catches up on the next write or a reload).
type Journal interface {
	UpsertQuiz(ctx context.Context, q domain.Quiz) error
	AddParticipant(ctx context.Context, id domain.QuizID, account domain.Address, paid decimal.Decimal) error
	UpsertCourse(ctx context.Context, c domain.Course) error
	UpsertEvent(ctx context.Context, e domain.Event) error
	SetRole(ctx context.Context, role domain.Role, account domain.Address, held bool) error
	SetCredit(ctx context.Context, account domain.Address, amount decimal.Decimal) error
	SetPaused(ctx context.Context, paused bool) error
	SetCollectedFees(ctx context.Context, amount decimal.Decimal) error
}

// RoleGrant is one row of the persisted role table.
type RoleGrant struct {
	Role    domain.Role
	Account domain.Address
}

// State is a full snapshot of ledger state, used to rebuild a ledger from a
// journal at startup.
type State struct {
	Quizzes       []domain.Quiz
	Courses       []domain.Course
	Events        []domain.Event
	Roles         []RoleGrant
	Credits       map[domain.Address]decimal.Decimal
	Paused        bool
	CollectedFees decimal.Decimal
}

// Ledger is the role-gated escrow and event-lifecycle ledger. All state lives
// on this object; there are no package-level singletons. A single mutex
// serializes every mutating operation, so each one is applied atomically and
// in full before the next is considered.
type Ledger struct {
	mu     sync.RWMutex
	access *accessControl
	pause  pauseSwitch

	bank    Bank
	journal Journal
	feed    *Feed
	log     *slog.Logger
	now     func() time.Time

	listingFee decimal.Decimal

	quizzes       []*domain.Quiz
	courses       map[uint64]domain.Course
	nextCourseID  uint64
	events        map[uint64]domain.Event
	nextEventID   uint64
	credits       map[domain.Address]decimal.Decimal
	collectedFees decimal.Decimal
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithListingFee overrides the fixed fee charged on quiz creation.
func WithListingFee(fee decimal.Decimal) Option {
	return func(l *Ledger) { l.listingFee = fee }
}

// WithClock injects a deterministic time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithJournal attaches a write-through journal.
func WithJournal(j Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

// WithLogger attaches a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithState seeds the ledger from a journal snapshot.
func WithState(s State) Option {
	return func(l *Ledger) { l.restore(s) }
}

// NewLedger builds a ledger with the given administrator identity and
// settlement bank. The default listing fee matches the original deployment
// (0.0001).
func NewLedger(admin domain.Address, bank Bank, opts ...Option) *Ledger {
	l := &Ledger{
		access:        newAccessControl(admin),
		bank:          bank,
		journal:       nopJournal{},
		feed:          NewFeed(),
		log:           slog.Default(),
		now:           time.Now,
		listingFee:    decimal.RequireFromString("0.0001"),
		courses:       make(map[uint64]domain.Course),
		nextCourseID:  1,
		events:        make(map[uint64]domain.Event),
		nextEventID:   1,
		credits:       make(map[domain.Address]decimal.Decimal),
		collectedFees: decimal.Zero,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) restore(s State) {
	quizzes := make([]domain.Quiz, len(s.Quizzes))
	copy(quizzes, s.Quizzes)
	sort.Slice(quizzes, func(i, j int) bool { return quizzes[i].ID < quizzes[j].ID })
	l.quizzes = l.quizzes[:0]
	for i := range quizzes {
		q := quizzes[i]
		l.quizzes = append(l.quizzes, &q)
	}
	for _, c := range s.Courses {
		l.courses[c.ID] = c
		if c.ID >= l.nextCourseID {
			l.nextCourseID = c.ID + 1
		}
	}
	for _, e := range s.Events {
		l.events[e.ID] = e
		if e.ID >= l.nextEventID {
			l.nextEventID = e.ID + 1
		}
	}
	for _, g := range s.Roles {
		l.access.grant(g.Role, g.Account)
	}
	for account, amount := range s.Credits {
		if amount.IsPositive() {
			l.credits[account] = amount
		}
	}
	l.pause.paused = s.Paused
	if !s.CollectedFees.IsZero() {
		l.collectedFees = s.CollectedFees
	}
}

// Subscribe attaches to the ledger event feed.
func (l *Ledger) Subscribe() (<-chan domain.FeedEvent, func()) {
	return l.feed.Subscribe()
}

// Administrator returns the privileged identity.
func (l *Ledger) Administrator() domain.Address {
	return l.access.admin
}

func (l *Ledger) emit(ev domain.FeedEvent) {
	ev.ID = uuid.NewString()
	ev.At = l.now()
	l.feed.publish(ev)
	l.log.Debug("ledger event", "kind", string(ev.Kind), "account", string(ev.Account))
}

func (l *Ledger) journalErr(op string, err error) {
	if err != nil {
		l.log.Warn("journal write failed", "op", op, "err", err)
	}
}

// --- roles ---

// GrantRole adds a role membership. Administrator only. Granting an
// already-held role succeeds and still emits the event.
func (l *Ledger) GrantRole(ctx context.Context, caller domain.Address, role domain.Role, account domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireAdmin(caller); err != nil {
		return err
	}
	if l.access.grant(role, account) {
		l.journalErr("SetRole", l.journal.SetRole(ctx, role, account, true))
	}
	l.emit(domain.FeedEvent{Kind: domain.FeedRoleGranted, Account: account, Role: role.String()})
	return nil
}

// SetUserRole is a convenience alias for GrantRole kept for callers of the
// original interface.
func (l *Ledger) SetUserRole(ctx context.Context, caller domain.Address, role domain.Role, account domain.Address) error {
	return l.GrantRole(ctx, caller, role, account)
}

// RevokeRole removes a role membership. Administrator only. Revoking an
// unheld role succeeds and still emits the event.
func (l *Ledger) RevokeRole(ctx context.Context, caller domain.Address, role domain.Role, account domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireAdmin(caller); err != nil {
		return err
	}
	if l.access.revoke(role, account) {
		l.journalErr("SetRole", l.journal.SetRole(ctx, role, account, false))
	}
	l.emit(domain.FeedEvent{Kind: domain.FeedRoleRevoked, Account: account, Role: role.String()})
	return nil
}

// RevokeUserRole is a convenience alias for RevokeRole.
func (l *Ledger) RevokeUserRole(ctx context.Context, caller domain.Address, role domain.Role, account domain.Address) error {
	return l.RevokeRole(ctx, caller, role, account)
}

// HasRole reports role membership. Pure query, available while paused.
func (l *Ledger) HasRole(role domain.Role, account domain.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.access.has(role, account)
}

// --- pause switch ---

// Pause engages the emergency stop. Administrator only; fails if already
// paused.
func (l *Ledger) Pause(ctx context.Context, caller domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireAdmin(caller); err != nil {
		return err
	}
	if err := l.pause.pause(); err != nil {
		return err
	}
	l.journalErr("SetPaused", l.journal.SetPaused(ctx, true))
	l.emit(domain.FeedEvent{Kind: domain.FeedPaused, Account: caller})
	l.log.Info("ledger paused", "by", string(caller))
	return nil
}

// Unpause releases the emergency stop. Administrator only; fails if not
// paused.
func (l *Ledger) Unpause(ctx context.Context, caller domain.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.requireAdmin(caller); err != nil {
		return err
	}
	if err := l.pause.unpause(); err != nil {
		return err
	}
	l.journalErr("SetPaused", l.journal.SetPaused(ctx, false))
	l.emit(domain.FeedEvent{Kind: domain.FeedUnpaused, Account: caller})
	l.log.Info("ledger unpaused", "by", string(caller))
	return nil
}

// Paused reports the switch state.
func (l *Ledger) Paused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pause.paused
}

// --- quiz lifecycle ---

// CreateQuiz registers a new quiz. The caller must hold TEACHER_ROLE, pay the
// listing fee exactly, and supply a window that lies fully in the future.
// The listing fee goes to the treasury, never into the prize pool.
func (l *Ledger) CreateQuiz(ctx context.Context, caller domain.Address, name string, entryFee decimal.Decimal, startTime, endTime time.Time, payment decimal.Decimal) (domain.Details, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.pause.requireRunning(); err != nil {
		return domain.Details{}, err
	}
	if err := l.access.requireRole(caller, domain.RoleTeacher); err != nil {
		return domain.Details{}, err
	}
	if entryFee.IsNegative() {
		return domain.Details{}, fmt.Errorf("%w: entry fee must not be negative", domain.ErrWrongAmount)
	}
	if !payment.Equal(l.listingFee) {
		return domain.Details{}, fmt.Errorf("%w: listing fee is %s, got %s", domain.ErrWrongAmount, l.listingFee, payment)
	}
	now := l.now()
	if !now.Before(startTime) || !startTime.Before(endTime) {
		return domain.Details{}, fmt.Errorf("%w: want now < start < end", domain.ErrInvalidTimeWindow)
	}

	if err := l.bank.Transfer(ctx, caller, domain.TreasuryAccount, payment); err != nil {
		return domain.Details{}, fmt.Errorf("%w: listing fee: %v", domain.ErrTransferFailed, err)
	}

	quiz := &domain.Quiz{
		ID:        domain.QuizID(len(l.quizzes)),
		Teacher:   caller,
		Name:      name,
		EntryFee:  entryFee,
		StartTime: startTime,
		EndTime:   endTime,
		PrizePool: decimal.Zero,
		Active:    true,
	}
	l.quizzes = append(l.quizzes, quiz)
	l.collectedFees = l.collectedFees.Add(payment)

	l.journalErr("UpsertQuiz", l.journal.UpsertQuiz(ctx, *quiz))
	l.journalErr("SetCollectedFees", l.journal.SetCollectedFees(ctx, l.collectedFees))
	id := quiz.ID
	l.emit(domain.FeedEvent{Kind: domain.FeedQuizCreated, Quiz: &id, Account: caller, Amount: entryFee})
	l.log.Info("quiz created", "quiz", uint64(id), "teacher", string(caller), "entryFee", entryFee.String())
	return quiz.Snapshot(), nil
}

// JoinQuiz adds the caller to an open quiz against exact payment of the entry
// fee. Joining is allowed from creation until the end time; the start time
// does not gate it.
func (l *Ledger) JoinQuiz(ctx context.Context, caller domain.Address, id domain.QuizID, payment decimal.Decimal) (domain.Details, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.pause.requireRunning(); err != nil {
		return domain.Details{}, err
	}
	quiz, err := l.quizByID(id)
	if err != nil {
		return domain.Details{}, err
	}
	if err := l.recordContribution(ctx, quiz, caller, payment); err != nil {
		return domain.Details{}, err
	}

	l.journalErr("AddParticipant", l.journal.AddParticipant(ctx, id, caller, payment))
	l.journalErr("UpsertQuiz", l.journal.UpsertQuiz(ctx, *quiz))
	l.emit(domain.FeedEvent{Kind: domain.FeedQuizJoined, Quiz: &id, Account: caller, Amount: payment})
	return quiz.Snapshot(), nil
}

// EndQuiz resolves a quiz by paying the entire pool to winner. Any TEACHER
// may end any active quiz; the winner must be a recorded participant. The
// resolution is committed before the payout transfer, so a failing recipient
// cannot re-enter settlement: the amount is parked as a claimable credit
// instead.
func (l *Ledger) EndQuiz(ctx context.Context, caller domain.Address, id domain.QuizID, winner domain.Address) (domain.Details, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.pause.requireRunning(); err != nil {
		return domain.Details{}, err
	}
	if err := l.access.requireRole(caller, domain.RoleTeacher); err != nil {
		return domain.Details{}, err
	}
	quiz, err := l.quizByID(id)
	if err != nil {
		return domain.Details{}, err
	}
	if !quiz.Active {
		return domain.Details{}, domain.ErrAlreadyResolved
	}
	if !quiz.HasParticipant(winner) {
		return domain.Details{}, fmt.Errorf("%w: %s", domain.ErrInvalidWinner, winner)
	}

	quiz.Active = false
	quiz.Winner = winner
	l.settleWinner(ctx, quiz)

	l.journalErr("UpsertQuiz", l.journal.UpsertQuiz(ctx, *quiz))
	l.emit(domain.FeedEvent{Kind: domain.FeedQuizEnded, Quiz: &id, Account: winner})
	l.log.Info("quiz ended", "quiz", uint64(id), "winner", string(winner))
	return quiz.Snapshot(), nil
}

// CancelQuiz resolves a quiz by refunding every participant their exact
// contribution. A quiz with no participants still resolves cleanly. One
// participant's failing account never blocks the others; their share is
// parked as a claimable credit.
func (l *Ledger) CancelQuiz(ctx context.Context, caller domain.Address, id domain.QuizID) (domain.Details, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.pause.requireRunning(); err != nil {
		return domain.Details{}, err
	}
	if err := l.access.requireRole(caller, domain.RoleTeacher); err != nil {
		return domain.Details{}, err
	}
	quiz, err := l.quizByID(id)
	if err != nil {
		return domain.Details{}, err
	}
	if !quiz.Active {
		return domain.Details{}, domain.ErrAlreadyResolved
	}

	quiz.Active = false
	l.settleRefund(ctx, quiz)

	l.journalErr("UpsertQuiz", l.journal.UpsertQuiz(ctx, *quiz))
	l.emit(domain.FeedEvent{Kind: domain.FeedQuizCancelled, Quiz: &id, Account: caller})
	l.log.Info("quiz cancelled", "quiz", uint64(id))
	return quiz.Snapshot(), nil
}

// GetQuizDetails returns the full quiz snapshot. Available while paused.
func (l *Ledger) GetQuizDetails(id domain.QuizID) (domain.Details, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	quiz, err := l.quizByID(id)
	if err != nil {
		return domain.Details{}, err
	}
	return quiz.Snapshot(), nil
}

// ListQuizzes returns snapshots of every quiz in id order.
func (l *Ledger) ListQuizzes() []domain.Details {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Details, 0, len(l.quizzes))
	for _, q := range l.quizzes {
		out = append(out, q.Snapshot())
	}
	return out
}

func (l *Ledger) quizByID(id domain.QuizID) (*domain.Quiz, error) {
	if uint64(id) >= uint64(len(l.quizzes)) {
		return nil, fmt.Errorf("%w: id %d", domain.ErrQuizNotFound, id)
	}
	return l.quizzes[id], nil
}

// --- catalog ---

// CreateCourse adds a priced course listing. TEACHER only, no payment
// captured at creation.
func (l *Ledger) CreateCourse(ctx context.Context, caller domain.Address, name string, price decimal.Decimal) (domain.Course, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.pause.requireRunning(); err != nil {
		return domain.Course{}, err
	}
	if err := l.access.requireRole(caller, domain.RoleTeacher); err != nil {
		return domain.Course{}, err
	}
	if price.IsNegative() {
		return domain.Course{}, fmt.Errorf("%w: price must not be negative", domain.ErrWrongAmount)
	}

	course := domain.Course{ID: l.nextCourseID, Name: name, Price: price}
	l.courses[course.ID] = course
	l.nextCourseID++

	l.journalErr("UpsertCourse", l.journal.UpsertCourse(ctx, course))
	l.emit(domain.FeedEvent{Kind: domain.FeedCourseCreated, Account: caller, Amount: price})
	return course, nil
}

// CreateEvent adds a priced event listing with a start date. TEACHER only.
func (l *Ledger) CreateEvent(ctx context.Context, caller domain.Address, name string, price decimal.Decimal, startDate time.Time) (domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.pause.requireRunning(); err != nil {
		return domain.Event{}, err
	}
	if err := l.access.requireRole(caller, domain.RoleTeacher); err != nil {
		return domain.Event{}, err
	}
	if price.IsNegative() {
		return domain.Event{}, fmt.Errorf("%w: price must not be negative", domain.ErrWrongAmount)
	}

	event := domain.Event{ID: l.nextEventID, Name: name, Price: price, StartDate: startDate}
	l.events[event.ID] = event
	l.nextEventID++

	l.journalErr("UpsertEvent", l.journal.UpsertEvent(ctx, event))
	l.emit(domain.FeedEvent{Kind: domain.FeedEventCreated, Account: caller, Amount: price})
	return event, nil
}

// GetCourse looks up a course by id.
func (l *Ledger) GetCourse(id uint64) (domain.Course, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	course, ok := l.courses[id]
	if !ok {
		return domain.Course{}, fmt.Errorf("%w: id %d", domain.ErrCourseNotFound, id)
	}
	return course, nil
}

// GetEvent looks up an event by id.
func (l *Ledger) GetEvent(id uint64) (domain.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	event, ok := l.events[id]
	if !ok {
		return domain.Event{}, fmt.Errorf("%w: id %d", domain.ErrEventNotFound, id)
	}
	return event, nil
}

// ListCourses returns every course in id order.
func (l *Ledger) ListCourses() []domain.Course {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Course, 0, len(l.courses))
	for _, c := range l.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListEvents returns every event in id order.
func (l *Ledger) ListEvents() []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Event, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- treasury ---

// CollectedFees returns the accumulated listing fees. Administrator only.
func (l *Ledger) CollectedFees(caller domain.Address) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.access.requireAdmin(caller); err != nil {
		return decimal.Zero, err
	}
	return l.collectedFees, nil
}

// WithdrawFees pays the accumulated listing fees out of the treasury.
// Administrator only; fails while paused.
func (l *Ledger) WithdrawFees(ctx context.Context, caller, to domain.Address) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.pause.requireRunning(); err != nil {
		return decimal.Zero, err
	}
	if err := l.access.requireAdmin(caller); err != nil {
		return decimal.Zero, err
	}
	if !l.collectedFees.IsPositive() {
		return decimal.Zero, domain.ErrNothingToWithdraw
	}

	amount := l.collectedFees
	l.collectedFees = decimal.Zero
	l.journalErr("SetCollectedFees", l.journal.SetCollectedFees(ctx, decimal.Zero))

	if err := l.bank.Transfer(ctx, domain.TreasuryAccount, to, amount); err != nil {
		l.collectedFees = amount
		l.journalErr("SetCollectedFees", l.journal.SetCollectedFees(ctx, amount))
		return decimal.Zero, fmt.Errorf("%w: fees: %v", domain.ErrTransferFailed, err)
	}
	l.emit(domain.FeedEvent{Kind: domain.FeedFeesWithdrawn, Account: to, Amount: amount})
	l.log.Info("fees withdrawn", "to", string(to), "amount", amount.String())
	return amount, nil
}
