package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"eduquiz-ledger/internal/app"
	"eduquiz-ledger/internal/domain"
)

// Journal persists committed ledger mutations to Postgres write-through.
// Amounts travel as text and live in NUMERIC columns, so nothing ever touches
// a float.
type Journal struct {
	pool *pgxpool.Pool
}

func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

func (j *Journal) UpsertQuiz(ctx context.Context, q domain.Quiz) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO quizzes (id, teacher, name, entry_fee, start_time, end_time, prize_pool, active, winner)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::numeric, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET prize_pool = EXCLUDED.prize_pool, active = EXCLUDED.active, winner = EXCLUDED.winner`,
		int64(q.ID), string(q.Teacher), q.Name, q.EntryFee.String(),
		q.StartTime, q.EndTime, q.PrizePool.String(), q.Active, string(q.Winner))
	if err != nil {
		return fmt.Errorf("upsert quiz %d: %w", q.ID, err)
	}
	return nil
}

func (j *Journal) AddParticipant(ctx context.Context, id domain.QuizID, account domain.Address, paid decimal.Decimal) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO quiz_participants (quiz_id, account, paid)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (quiz_id, account) DO NOTHING`,
		int64(id), string(account), paid.String())
	if err != nil {
		return fmt.Errorf("add participant %s to quiz %d: %w", account, id, err)
	}
	return nil
}

func (j *Journal) UpsertCourse(ctx context.Context, c domain.Course) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO courses (id, name, price)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price`,
		int64(c.ID), c.Name, c.Price.String())
	if err != nil {
		return fmt.Errorf("upsert course %d: %w", c.ID, err)
	}
	return nil
}

func (j *Journal) UpsertEvent(ctx context.Context, e domain.Event) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO events (id, name, price, start_date)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, start_date = EXCLUDED.start_date`,
		int64(e.ID), e.Name, e.Price.String(), e.StartDate)
	if err != nil {
		return fmt.Errorf("upsert event %d: %w", e.ID, err)
	}
	return nil
}

func (j *Journal) SetRole(ctx context.Context, role domain.Role, account domain.Address, held bool) error {
	var err error
	if held {
		_, err = j.pool.Exec(ctx, `
			INSERT INTO roles (role, account) VALUES ($1, $2)
			ON CONFLICT (role, account) DO NOTHING`,
			role.String(), string(account))
	} else {
		_, err = j.pool.Exec(ctx, `DELETE FROM roles WHERE role = $1 AND account = $2`,
			role.String(), string(account))
	}
	if err != nil {
		return fmt.Errorf("set role %s for %s: %w", role.Label(), account, err)
	}
	return nil
}

func (j *Journal) SetCredit(ctx context.Context, account domain.Address, amount decimal.Decimal) error {
	var err error
	if amount.IsPositive() {
		_, err = j.pool.Exec(ctx, `
			INSERT INTO payout_credits (account, amount)
			VALUES ($1, $2::numeric)
			ON CONFLICT (account) DO UPDATE SET amount = EXCLUDED.amount`,
			string(account), amount.String())
	} else {
		_, err = j.pool.Exec(ctx, `DELETE FROM payout_credits WHERE account = $1`, string(account))
	}
	if err != nil {
		return fmt.Errorf("set credit for %s: %w", account, err)
	}
	return nil
}

func (j *Journal) SetPaused(ctx context.Context, paused bool) error {
	_, err := j.pool.Exec(ctx, `UPDATE ledger_meta SET paused = $1 WHERE id = 1`, paused)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	return nil
}

func (j *Journal) SetCollectedFees(ctx context.Context, amount decimal.Decimal) error {
	_, err := j.pool.Exec(ctx, `UPDATE ledger_meta SET collected_fees = $1::numeric WHERE id = 1`, amount.String())
	if err != nil {
		return fmt.Errorf("set collected fees: %w", err)
	}
	return nil
}

var _ app.Journal = (*Journal)(nil)
