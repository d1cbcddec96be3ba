package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"eduquiz-ledger/internal/app"
	"eduquiz-ledger/internal/domain"
	"eduquiz-ledger/internal/infra/memory"
	pgjournal "eduquiz-ledger/internal/infra/postgres"
	pgmigrations "eduquiz-ledger/internal/infra/postgres/migrations"
	rediscache "eduquiz-ledger/internal/infra/redis"
)

const (
	admin    = domain.Address("admin")
	teacher  = domain.Address("teacher-1")
	student  = domain.Address("student-1")
	student2 = domain.Address("student-2")
)

func TestLedgerSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	bank := memory.NewBank()
	bank.Mint(teacher, decimal.RequireFromString("1"))
	bank.Mint(student, decimal.RequireFromString("1"))
	bank.Mint(student2, decimal.RequireFromString("1"))

	entryFee := decimal.RequireFromString("0.01")
	listingFee := decimal.RequireFromString("0.0001")

	ledger := app.NewLedger(admin, bank, app.WithJournal(pgjournal.NewJournal(pool)))

	if err := ledger.GrantRole(ctx, admin, domain.RoleTeacher, teacher); err != nil {
		t.Fatalf("grant: %v", err)
	}
	start := time.Now().Add(time.Hour)
	quiz, err := ledger.CreateQuiz(ctx, teacher, "Test Quiz", entryFee, start, start.Add(2*time.Hour), listingFee)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	second, err := ledger.CreateQuiz(ctx, teacher, "Second Quiz", entryFee, start, start.Add(2*time.Hour), listingFee)
	if err != nil {
		t.Fatalf("create second quiz: %v", err)
	}
	if _, err := ledger.JoinQuiz(ctx, student, quiz.ID, entryFee); err != nil {
		t.Fatalf("join: %v", err)
	}
	for _, s := range []domain.Address{student, student2} {
		if _, err := ledger.JoinQuiz(ctx, s, second.ID, entryFee); err != nil {
			t.Fatalf("join second quiz %s: %v", s, err)
		}
	}
	if _, err := ledger.CreateCourse(ctx, teacher, "Test Course", decimal.RequireFromString("0.1")); err != nil {
		t.Fatalf("create course: %v", err)
	}
	if err := ledger.Pause(ctx, admin); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// A second process starts from the journal and sees the same world.
	state, err := pgjournal.NewLoader(pool).Load(ctx)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	restored := app.NewLedger(admin, bank, app.WithState(state))

	details, err := restored.GetQuizDetails(quiz.ID)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if details.Name != "Test Quiz" || details.ParticipantCount != 1 || !details.PrizePool.Equal(entryFee) || !details.Active {
		t.Fatalf("restored quiz mismatch: %+v", details)
	}
	// Participant lists must survive for every quiz, not just the last
	// loaded one.
	if len(state.Quizzes) != 2 {
		t.Fatalf("expected 2 journaled quizzes, got %d", len(state.Quizzes))
	}
	if got := state.Quizzes[0].Participants; len(got) != 1 || got[0] != student {
		t.Fatalf("first quiz participants lost: %v", got)
	}
	if got := state.Quizzes[1].Participants; len(got) != 2 || got[0] != student || got[1] != student2 {
		t.Fatalf("second quiz participants lost: %v", got)
	}
	secondDetails, err := restored.GetQuizDetails(second.ID)
	if err != nil {
		t.Fatalf("second details: %v", err)
	}
	if secondDetails.ParticipantCount != 2 || !secondDetails.PrizePool.Equal(entryFee.Mul(decimal.NewFromInt(2))) {
		t.Fatalf("restored second quiz mismatch: %+v", secondDetails)
	}
	if !restored.HasRole(domain.RoleTeacher, teacher) {
		t.Fatalf("restored role table missing grant")
	}
	if !restored.Paused() {
		t.Fatalf("restored ledger must still be paused")
	}
	course, err := restored.GetCourse(1)
	if err != nil || course.Name != "Test Course" {
		t.Fatalf("restored course mismatch: %+v (%v)", course, err)
	}
	fees, err := restored.CollectedFees(admin)
	if err != nil {
		t.Fatalf("collected fees: %v", err)
	}
	if !fees.Equal(listingFee) {
		t.Fatalf("restored fees %s, want %s", fees, listingFee)
	}

	// Resolution on the restored ledger settles against the same escrow.
	if err := restored.Unpause(ctx, admin); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	before := bank.Balance(student)
	if _, err := restored.EndQuiz(ctx, teacher, quiz.ID, student); err != nil {
		t.Fatalf("end: %v", err)
	}
	if !bank.Balance(student).Sub(before).Equal(entryFee) {
		t.Fatalf("payout missing after restart")
	}

	// And the resolution is journaled for the next restart; the second quiz
	// stays untouched.
	state, err = pgjournal.NewLoader(pool).Load(ctx)
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if len(state.Quizzes) != 2 || state.Quizzes[0].Active || state.Quizzes[0].Winner != student {
		t.Fatalf("journaled resolution mismatch: %+v", state.Quizzes)
	}
	if !state.Quizzes[1].Active || len(state.Quizzes[1].Participants) != 2 {
		t.Fatalf("second quiz drifted: %+v", state.Quizzes[1])
	}
}

func TestParkedCreditSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	bank := memory.NewBank()
	bank.Mint(teacher, decimal.RequireFromString("1"))
	bank.Mint(student, decimal.RequireFromString("1"))
	entryFee := decimal.RequireFromString("0.01")

	ledger := app.NewLedger(admin, bank, app.WithJournal(pgjournal.NewJournal(pool)))
	if err := ledger.GrantRole(ctx, admin, domain.RoleTeacher, teacher); err != nil {
		t.Fatalf("grant: %v", err)
	}
	start := time.Now().Add(time.Hour)
	quiz, err := ledger.CreateQuiz(ctx, teacher, "Test Quiz", entryFee, start, start.Add(time.Hour), decimal.RequireFromString("0.0001"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := ledger.JoinQuiz(ctx, student, quiz.ID, entryFee); err != nil {
		t.Fatalf("join: %v", err)
	}

	bank.Reject(student)
	if _, err := ledger.CancelQuiz(ctx, teacher, quiz.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	bank.Accept(student)

	state, err := pgjournal.NewLoader(pool).Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	restored := app.NewLedger(admin, bank,
		app.WithState(state),
		app.WithJournal(pgjournal.NewJournal(pool)),
	)

	if !restored.Credits(student).Equal(entryFee) {
		t.Fatalf("parked credit lost across restart: %s", restored.Credits(student))
	}
	amount, err := restored.Withdraw(ctx, student)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !amount.Equal(entryFee) {
		t.Fatalf("withdrew %s, want %s", amount, entryFee)
	}

	// The claim is journaled too.
	state, err = pgjournal.NewLoader(pool).Load(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(state.Credits) != 0 {
		t.Fatalf("claimed credit still journaled: %+v", state.Credits)
	}
}

func TestCachedDetailsAgainstRealRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	bank := memory.NewBank()
	bank.Mint(teacher, decimal.RequireFromString("1"))
	bank.Mint(student, decimal.RequireFromString("1"))
	entryFee := decimal.RequireFromString("0.01")

	ledger := app.NewLedger(admin, bank)
	if err := ledger.GrantRole(ctx, admin, domain.RoleTeacher, teacher); err != nil {
		t.Fatalf("grant: %v", err)
	}
	start := time.Now().Add(time.Hour)
	quiz, err := ledger.CreateQuiz(ctx, teacher, "Test Quiz", entryFee, start, start.Add(time.Hour), decimal.RequireFromString("0.0001"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cache := rediscache.NewDetailsCache(client, ledger, 5*time.Minute)

	details, err := cache.GetQuizDetails(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if details.ParticipantCount != 0 {
		t.Fatalf("unexpected snapshot %+v", details)
	}

	if _, err := ledger.JoinQuiz(ctx, student, quiz.ID, entryFee); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Stale until invalidated.
	details, err = cache.GetQuizDetails(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if details.ParticipantCount != 0 {
		t.Fatalf("expected stale snapshot before invalidation, got %+v", details)
	}

	cache.Invalidate(ctx, quiz.ID)
	details, err = cache.GetQuizDetails(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if details.ParticipantCount != 1 {
		t.Fatalf("expected fresh snapshot after invalidation, got %+v", details)
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "ledger", "POSTGRES_PASSWORD": "ledgerpass", "POSTGRES_DB": "ledgerdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://ledger:ledgerpass@%s:%s/ledgerdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
