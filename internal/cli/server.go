package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"eduquiz-ledger/internal/app"
	"eduquiz-ledger/internal/config"
	"eduquiz-ledger/internal/domain"
	"eduquiz-ledger/internal/infra/memory"
	pgjournal "eduquiz-ledger/internal/infra/postgres"
	rediscache "eduquiz-ledger/internal/infra/redis"
	"eduquiz-ledger/internal/lib/logx"
	transport "eduquiz-ledger/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the ledger server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Ledger.Administrator == "" {
		return fmt.Errorf("ledger administrator not configured")
	}

	log := logx.New(os.Stderr, slog.LevelInfo)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		log.Info("migrations applied")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	bank := memory.NewBank(
		memory.WithOpeningBalance(config.Amount(cfg.Ledger.OpeningBalance, decimal.Zero)),
	)

	opts := []app.Option{
		app.WithLogger(log),
		app.WithListingFee(config.Amount(cfg.Ledger.ListingFee, decimal.RequireFromString("0.0001"))),
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		state, err := pgjournal.NewLoader(pool).Load(ctx)
		if err != nil {
			return err
		}
		opts = append(opts, app.WithState(state), app.WithJournal(pgjournal.NewJournal(pool)))
	} else {
		opts = append(opts, app.WithJournal(memory.NewJournal()))
	}

	ledger := app.NewLedger(domain.Address(cfg.Ledger.Administrator), bank, opts...)

	var details transport.DetailsReader
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cacheTTL := config.TTLDuration(cfg.Cache.TTL, 10*time.Minute)
		details = rediscache.NewDetailsCache(redisClient, ledger, cacheTTL)
	}

	handler := transport.NewHandler(ledger, details)
	feed := transport.NewFeedHandler(ledger, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("GET /ws", feed.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting eduquiz ledger", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
