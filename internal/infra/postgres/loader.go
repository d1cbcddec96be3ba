package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"eduquiz-ledger/internal/app"
	"eduquiz-ledger/internal/domain"
)

// Loader rebuilds a full ledger state snapshot from the journal tables,
// used once at startup.
type Loader struct {
	pool *pgxpool.Pool
}

func NewLoader(pool *pgxpool.Pool) *Loader {
	return &Loader{pool: pool}
}

func (l *Loader) Load(ctx context.Context) (app.State, error) {
	state := app.State{
		Credits:       make(map[domain.Address]decimal.Decimal),
		CollectedFees: decimal.Zero,
	}

	if err := l.loadQuizzes(ctx, &state); err != nil {
		return app.State{}, err
	}
	if err := l.loadCatalog(ctx, &state); err != nil {
		return app.State{}, err
	}
	if err := l.loadRoles(ctx, &state); err != nil {
		return app.State{}, err
	}
	if err := l.loadCredits(ctx, &state); err != nil {
		return app.State{}, err
	}
	if err := l.loadMeta(ctx, &state); err != nil {
		return app.State{}, err
	}
	return state, nil
}

func (l *Loader) loadQuizzes(ctx context.Context, state *app.State) error {
	rows, err := l.pool.Query(ctx, `
		SELECT id, teacher, name, entry_fee::text, start_time, end_time, prize_pool::text, active, winner
		FROM quizzes ORDER BY id`)
	if err != nil {
		return fmt.Errorf("load quizzes: %w", err)
	}
	defer rows.Close()

	// Indices, not pointers: appends below reallocate the backing array.
	byID := make(map[domain.QuizID]int)
	for rows.Next() {
		var (
			id                  int64
			teacher, name       string
			entryFee, prizePool string
			start, end          time.Time
			active              bool
			winner              string
		)
		if err := rows.Scan(&id, &teacher, &name, &entryFee, &start, &end, &prizePool, &active, &winner); err != nil {
			return fmt.Errorf("scan quiz: %w", err)
		}
		fee, err := decimal.NewFromString(entryFee)
		if err != nil {
			return fmt.Errorf("quiz %d entry fee: %w", id, err)
		}
		pool, err := decimal.NewFromString(prizePool)
		if err != nil {
			return fmt.Errorf("quiz %d prize pool: %w", id, err)
		}
		quiz := domain.Quiz{
			ID:        domain.QuizID(id),
			Teacher:   domain.Address(teacher),
			Name:      name,
			EntryFee:  fee,
			StartTime: start,
			EndTime:   end,
			PrizePool: pool,
			Active:    active,
			Winner:    domain.Address(winner),
		}
		state.Quizzes = append(state.Quizzes, quiz)
		byID[quiz.ID] = len(state.Quizzes) - 1
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load quizzes: %w", err)
	}

	prows, err := l.pool.Query(ctx, `SELECT quiz_id, account FROM quiz_participants ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var (
			quizID  int64
			account string
		)
		if err := prows.Scan(&quizID, &account); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		if i, ok := byID[domain.QuizID(quizID)]; ok {
			state.Quizzes[i].Participants = append(state.Quizzes[i].Participants, domain.Address(account))
		}
	}
	return prows.Err()
}

func (l *Loader) loadCatalog(ctx context.Context, state *app.State) error {
	rows, err := l.pool.Query(ctx, `SELECT id, name, price::text FROM courses ORDER BY id`)
	if err != nil {
		return fmt.Errorf("load courses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    int64
			name  string
			price string
		)
		if err := rows.Scan(&id, &name, &price); err != nil {
			return fmt.Errorf("scan course: %w", err)
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("course %d price: %w", id, err)
		}
		state.Courses = append(state.Courses, domain.Course{ID: uint64(id), Name: name, Price: p})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	erows, err := l.pool.Query(ctx, `SELECT id, name, price::text, start_date FROM events ORDER BY id`)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var (
			id        int64
			name      string
			price     string
			startDate time.Time
		)
		if err := erows.Scan(&id, &name, &price, &startDate); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		p, err := decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("event %d price: %w", id, err)
		}
		state.Events = append(state.Events, domain.Event{ID: uint64(id), Name: name, Price: p, StartDate: startDate})
	}
	return erows.Err()
}

func (l *Loader) loadRoles(ctx context.Context, state *app.State) error {
	rows, err := l.pool.Query(ctx, `SELECT role, account FROM roles`)
	if err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role, account string
		if err := rows.Scan(&role, &account); err != nil {
			return fmt.Errorf("scan role: %w", err)
		}
		r, err := domain.ParseRole(role)
		if err != nil {
			return fmt.Errorf("stored role: %w", err)
		}
		state.Roles = append(state.Roles, app.RoleGrant{Role: r, Account: domain.Address(account)})
	}
	return rows.Err()
}

func (l *Loader) loadCredits(ctx context.Context, state *app.State) error {
	rows, err := l.pool.Query(ctx, `SELECT account, amount::text FROM payout_credits`)
	if err != nil {
		return fmt.Errorf("load credits: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var account, amount string
		if err := rows.Scan(&account, &amount); err != nil {
			return fmt.Errorf("scan credit: %w", err)
		}
		a, err := decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("credit for %s: %w", account, err)
		}
		state.Credits[domain.Address(account)] = a
	}
	return rows.Err()
}

func (l *Loader) loadMeta(ctx context.Context, state *app.State) error {
	var (
		paused bool
		fees   string
	)
	err := l.pool.QueryRow(ctx, `SELECT paused, collected_fees::text FROM ledger_meta WHERE id = 1`).
		Scan(&paused, &fees)
	if err != nil {
		return fmt.Errorf("load meta: %w", err)
	}
	f, err := decimal.NewFromString(fees)
	if err != nil {
		return fmt.Errorf("collected fees: %w", err)
	}
	state.Paused = paused
	state.CollectedFees = f
	return nil
}
